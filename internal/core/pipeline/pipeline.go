package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"facebot-go/internal/classifier"
	"facebot-go/internal/config"
	"facebot-go/internal/core/models"
	"facebot-go/internal/db/repository"
	"facebot-go/internal/recognizer"
	"facebot-go/internal/util/timezone"

	log "github.com/sirupsen/logrus"
)

var (
	// ErrNoModel is returned when prediction is requested before any
	// training has happened.
	ErrNoModel = errors.New("no trained model available")

	// ErrUnknownLabel is returned when a note targets a label that was
	// never enrolled.
	ErrUnknownLabel = errors.New("label does not exist")
)

// Encoder extracts face encodings from raw image bytes. Satisfied by
// *recognizer.Client; tests provide a stub.
type Encoder interface {
	Encode(ctx context.Context, imageData []byte, filename string) ([]recognizer.Face, error)
	EncodeSingle(ctx context.Context, imageData []byte, filename string) (*recognizer.Face, error)
}

// FacePrediction is the classification of one detected face.
type FacePrediction struct {
	Box recognizer.Box `json:"box"`
	classifier.Prediction
}

// NoteEntry pairs a predicted label with its stored note.
type NoteEntry struct {
	Label string `json:"label"`
	Note  string `json:"note"`
}

// Reference points at a stored enrollment image for a predicted label.
type Reference struct {
	Label     string `json:"label"`
	ImagePath string `json:"image_path"`
}

// Result is the full prediction answer for one image.
type Result struct {
	Faces      []FacePrediction `json:"faces"`
	Caption    string           `json:"caption"`
	Notes      []NoteEntry      `json:"notes"`
	References []Reference      `json:"references"`
}

// Pipeline orchestrates encoding, classification and persistence. The
// in-memory model is guarded by a RWMutex; when absent it is lazily loaded
// from the latest stored snapshot.
type Pipeline struct {
	cfg     *config.Config
	repo    repository.Repository
	encoder Encoder

	mu    sync.RWMutex
	model *classifier.Ensemble

	pool *WorkerPool
}

// New creates a pipeline and starts its worker pool.
func New(cfg *config.Config, repo repository.Repository, encoder Encoder) *Pipeline {
	p := &Pipeline{
		cfg:     cfg,
		repo:    repo,
		encoder: encoder,
	}
	p.pool = NewWorkerPool(p)
	return p
}

// Pool returns the worker pool, used by callers that want bounded
// concurrency and by the stats endpoint.
func (p *Pipeline) Pool() *WorkerPool {
	return p.pool
}

// Shutdown stops the worker pool.
func (p *Pipeline) Shutdown() {
	p.pool.Shutdown()
}

// Train enrolls a new face image under the given label and refits the model.
// The image must contain exactly one face.
func (p *Pipeline) Train(ctx context.Context, imageData []byte, label, source string) error {
	face, err := p.encoder.EncodeSingle(ctx, imageData, "enroll.jpg")
	if err != nil {
		return err
	}
	if err := validateEncoding(face.Encoding); err != nil {
		return err
	}

	hash := contentHash(imageData)
	existing, err := p.repo.FindSampleByHash(hash)
	if err != nil {
		return fmt.Errorf("failed to check for duplicate image: %w", err)
	}

	var imagePath string
	if existing != nil {
		log.Warnf("Image already enrolled as %q (hash %s), refitting without a new sample", existing.Label, hash[:12])
	} else {
		imagePath, err = p.storeImage(imageData, hash)
		if err != nil {
			return err
		}

		sample := &models.FaceSample{
			Label:       label,
			ImagePath:   imagePath,
			ContentHash: hash,
			Source:      source,
		}
		if err := sample.SetEncoding(face.Encoding); err != nil {
			return err
		}
		if err := p.repo.SaveSample(sample); err != nil {
			return fmt.Errorf("failed to save face sample: %w", err)
		}
	}

	if err := p.refit(); err != nil {
		return err
	}

	p.countCommand("train")
	log.Infof("Trained model with new sample for label %q", label)
	return nil
}

// Predict classifies every face in the image against the current model.
func (p *Pipeline) Predict(ctx context.Context, imageData []byte) (*Result, error) {
	faces, err := p.encoder.Encode(ctx, imageData, "query.jpg")
	if err != nil {
		return nil, err
	}

	model, err := p.getModel()
	if err != nil {
		return nil, err
	}

	result := &Result{}
	for _, face := range faces {
		if err := validateEncoding(face.Encoding); err != nil {
			return nil, err
		}
		pred, err := model.Classify(face.Encoding, p.cfg.Classifier.DistThreshold, p.cfg.Classifier.ProbThreshold)
		if err != nil {
			return nil, fmt.Errorf("prediction failed: %w", err)
		}
		result.Faces = append(result.Faces, FacePrediction{Box: face.Box, Prediction: pred})
	}

	result.Caption = predictCaption(result.Faces)
	if err := p.attachNotesAndReferences(result); err != nil {
		return nil, err
	}

	p.countCommand("predict")
	return result, nil
}

// Retrain re-encodes every stored sample image and refits the model. Used
// after the external encoder's model is upgraded, when old encodings are no
// longer comparable with new ones.
func (p *Pipeline) Retrain(ctx context.Context) error {
	samples, err := p.repo.GetSamples()
	if err != nil {
		return fmt.Errorf("failed to load samples: %w", err)
	}
	if len(samples) == 0 {
		return nil
	}

	for i := range samples {
		sample := &samples[i]
		imagePath := filepath.Join(p.cfg.Server.ImageDir, sample.ImagePath)
		imageData, err := os.ReadFile(imagePath)
		if err != nil {
			log.Warnf("Retrain: skipping sample %d, cannot read image %s: %v", sample.ID, imagePath, err)
			continue
		}
		face, err := p.encoder.EncodeSingle(ctx, imageData, sample.ImagePath)
		if err != nil {
			log.Warnf("Retrain: skipping sample %d (label %q): %v", sample.ID, sample.Label, err)
			continue
		}
		// A wrong-length encoding means the encoder itself is broken; abort
		// before any sample is updated with it.
		if err := validateEncoding(face.Encoding); err != nil {
			return fmt.Errorf("retrain aborted at sample %d: %w", sample.ID, err)
		}
		if err := sample.SetEncoding(face.Encoding); err != nil {
			return err
		}
		if err := p.repo.SaveSample(sample); err != nil {
			return fmt.Errorf("failed to update sample %d: %w", sample.ID, err)
		}
	}

	if err := p.refit(); err != nil {
		return err
	}

	p.countCommand("retrain")
	log.Infof("Retrained model from %d re-encoded samples", len(samples))
	return nil
}

// CheckLabel verifies that a label has been enrolled.
func (p *Pipeline) CheckLabel(label string) error {
	exists, err := p.repo.LabelExists(label)
	if err != nil {
		return err
	}
	if !exists {
		return ErrUnknownLabel
	}
	return nil
}

// SetNote attaches a note to an enrolled label.
func (p *Pipeline) SetNote(label, note string) error {
	if err := p.CheckLabel(label); err != nil {
		return err
	}
	if err := p.repo.UpsertNote(label, note); err != nil {
		return fmt.Errorf("failed to save note: %w", err)
	}
	p.countCommand("note")
	return nil
}

// refit rebuilds the ensemble from all stored samples, swaps it in and
// persists a snapshot, keeping only the newest one.
func (p *Pipeline) refit() error {
	samples, err := p.repo.GetSamples()
	if err != nil {
		return fmt.Errorf("failed to load training set: %w", err)
	}
	if len(samples) == 0 {
		return fmt.Errorf("%w: no samples enrolled", ErrNoModel)
	}
	if min := p.cfg.Classifier.MinSamples; len(samples) < min {
		return fmt.Errorf("%w: %d sample(s) enrolled, %d required", ErrNoModel, len(samples), min)
	}

	encodings := make([][]float32, 0, len(samples))
	labels := make([]string, 0, len(samples))
	for i := range samples {
		enc, err := samples[i].GetEncoding()
		if err != nil {
			return err
		}
		encodings = append(encodings, enc)
		labels = append(labels, samples[i].Label)
	}

	model, err := classifier.Train(encodings, labels, classifier.Options{
		KNNWeight: p.cfg.Classifier.KNNWeight,
		SVMWeight: p.cfg.Classifier.SVMWeight,
		Neighbors: p.cfg.Classifier.Neighbors,
	})
	if err != nil {
		return err
	}

	blob, err := model.Marshal()
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.model = model
	p.mu.Unlock()

	if err := p.repo.SaveSnapshot(&models.ModelSnapshot{Blob: blob, FaceCount: model.FaceCount()}); err != nil {
		return fmt.Errorf("failed to persist model snapshot: %w", err)
	}
	if err := p.repo.DeleteOutdatedSnapshots(); err != nil {
		log.Warnf("Failed to delete outdated model snapshots: %v", err)
	}
	return nil
}

// getModel returns the in-memory model, loading the latest snapshot when the
// process has not trained yet.
func (p *Pipeline) getModel() (*classifier.Ensemble, error) {
	p.mu.RLock()
	model := p.model
	p.mu.RUnlock()
	if model != nil {
		return model, nil
	}

	snapshot, err := p.repo.LatestSnapshot()
	if err != nil {
		return nil, fmt.Errorf("failed to load model snapshot: %w", err)
	}
	if snapshot == nil {
		return nil, ErrNoModel
	}

	model, err = classifier.Unmarshal(snapshot.Blob)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.model = model
	p.mu.Unlock()
	log.Infof("Loaded model snapshot %d (%d faces)", snapshot.ID, snapshot.FaceCount)
	return model, nil
}

// attachNotesAndReferences collects the stored note and one reference image
// for each distinct predicted label.
func (p *Pipeline) attachNotesAndReferences(result *Result) error {
	seen := make(map[string]struct{})
	for _, face := range result.Faces {
		label := face.Label
		if label == classifier.UnknownLabel {
			continue
		}
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}

		note, err := p.repo.GetNote(label)
		if err != nil {
			return fmt.Errorf("failed to load note for %q: %w", label, err)
		}
		entry := NoteEntry{Label: label, Note: "No note"}
		if note != nil {
			entry.Note = note.Note
		}
		result.Notes = append(result.Notes, entry)

		ref, err := p.repo.FirstSampleForLabel(label)
		if err != nil {
			return fmt.Errorf("failed to load reference for %q: %w", label, err)
		}
		if ref != nil && ref.ImagePath != "" {
			result.References = append(result.References, Reference{
				Label:     label,
				ImagePath: filepath.Join(p.cfg.Server.ImageDir, ref.ImagePath),
			})
		}
	}
	return nil
}

// storeImage writes the enrollment image below the image directory, named by
// its content hash.
func (p *Pipeline) storeImage(imageData []byte, hash string) (string, error) {
	if err := os.MkdirAll(p.cfg.Server.ImageDir, 0750); err != nil {
		return "", fmt.Errorf("failed to create image directory: %w", err)
	}
	name := hash + ".jpg"
	fullPath := filepath.Join(p.cfg.Server.ImageDir, name)
	if err := os.WriteFile(fullPath, imageData, 0640); err != nil {
		return "", fmt.Errorf("failed to store image: %w", err)
	}
	return name, nil
}

func (p *Pipeline) countCommand(command string) {
	if err := p.repo.IncrementCommand(timezone.DateKey(), command); err != nil {
		log.Warnf("Failed to increment %s counter: %v", command, err)
	}
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// validateEncoding rejects encoder output whose length does not match the
// expected embedding dimension. A wrong length would otherwise surface as a
// panic deep inside the neighbor search.
func validateEncoding(encoding []float32) error {
	if len(encoding) != classifier.EncodingDim {
		return fmt.Errorf("%w: encoder returned a %d-dim encoding, want %d",
			classifier.ErrSizeMismatch, len(encoding), classifier.EncodingDim)
	}
	return nil
}
