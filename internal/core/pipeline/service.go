package pipeline

import "context"

// Service is the facade the transports (Telegram, HTTP, MQTT) talk to. Image
// work is routed through the worker pool; the lightweight label and note
// operations go straight to the pipeline.
type Service struct {
	p *Pipeline
}

// Service returns the pool-backed facade for this pipeline.
func (p *Pipeline) Service() *Service {
	return &Service{p: p}
}

// Train enrolls an image under a label through the worker pool.
func (s *Service) Train(ctx context.Context, imageData []byte, label, source string) error {
	return s.p.pool.Train(ctx, imageData, NormalizeLabel(label), source)
}

// Predict classifies an image through the worker pool.
func (s *Service) Predict(ctx context.Context, imageData []byte, source string) (*Result, error) {
	return s.p.pool.Predict(ctx, imageData, source)
}

// Retrain re-encodes all stored samples and refits the model.
func (s *Service) Retrain(ctx context.Context) error {
	return s.p.Retrain(ctx)
}

// CheckLabel verifies that a label has been enrolled.
func (s *Service) CheckLabel(label string) error {
	return s.p.CheckLabel(NormalizeLabel(label))
}

// SetNote attaches a note to an enrolled label.
func (s *Service) SetNote(label, note string) error {
	return s.p.SetNote(NormalizeLabel(label), note)
}
