package classifier

import (
	"fmt"
	"math"
	"math/rand"
)

// LinearSVM is a one-vs-rest linear classifier trained with stochastic
// gradient descent on the modified Huber loss. The loss keeps the model
// probability-capable, which the soft-voting ensemble relies on.
type LinearSVM struct {
	MaxIter int     // Maximum number of epochs
	Tol     float64 // Stop when the epoch loss improves by less than this
	Alpha   float64 // L2 regularization strength

	ClassList []string
	Weights   [][]float64 // One weight vector per class
	Bias      []float64
}

// Defaults matching the training parameters the service has always shipped.
const (
	svmDefaultMaxIter = 10000
	svmDefaultTol     = 1e-5
	svmDefaultAlpha   = 1e-4
)

// Fit trains one binary classifier per class. The sample order is shuffled
// with a fixed seed so training stays deterministic.
func (s *LinearSVM) Fit(samples [][]float32, labels []string) error {
	if len(samples) != len(labels) {
		return fmt.Errorf("%w: %d samples, %d labels", ErrSizeMismatch, len(samples), len(labels))
	}
	if len(samples) == 0 {
		return fmt.Errorf("%w: empty training set", ErrTrain)
	}

	if s.MaxIter <= 0 {
		s.MaxIter = svmDefaultMaxIter
	}
	if s.Tol <= 0 {
		s.Tol = svmDefaultTol
	}
	if s.Alpha <= 0 {
		s.Alpha = svmDefaultAlpha
	}

	s.ClassList = distinctSorted(labels)
	dim := len(samples[0])
	s.Weights = make([][]float64, len(s.ClassList))
	s.Bias = make([]float64, len(s.ClassList))

	for ci, class := range s.ClassList {
		y := make([]float64, len(samples))
		for i, l := range labels {
			if l == class {
				y[i] = 1
			} else {
				y[i] = -1
			}
		}
		w, b := s.fitBinary(samples, y, dim)
		s.Weights[ci] = w
		s.Bias[ci] = b
	}
	return nil
}

// fitBinary runs SGD for a single one-vs-rest problem.
func (s *LinearSVM) fitBinary(samples [][]float32, y []float64, dim int) ([]float64, float64) {
	w := make([]float64, dim)
	var b float64

	rng := rand.New(rand.NewSource(1))
	order := rng.Perm(len(samples))

	prevLoss := math.Inf(1)
	t := 1.0
	for epoch := 0; epoch < s.MaxIter; epoch++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		var epochLoss float64
		for _, i := range order {
			x := samples[i]
			f := b
			for j := range w {
				f += w[j] * float64(x[j])
			}
			z := y[i] * f

			// Modified Huber: quadratically smoothed hinge with a linear
			// tail below z = -1.
			var grad float64 // dL/df
			switch {
			case z >= 1:
				grad = 0
			case z >= -1:
				epochLoss += (1 - z) * (1 - z)
				grad = -2 * (1 - z) * y[i]
			default:
				epochLoss += -4 * z
				grad = -4 * y[i]
			}

			eta := 1.0 / (s.Alpha * (1e4 + t))
			t++
			for j := range w {
				w[j] -= eta * (grad*float64(x[j]) + s.Alpha*w[j])
			}
			b -= eta * grad
		}

		avgLoss := epochLoss / float64(len(samples))
		if math.Abs(prevLoss-avgLoss) < s.Tol {
			break
		}
		prevLoss = avgLoss
	}
	return w, b
}

// Classes returns the sorted distinct labels seen during Fit.
func (s *LinearSVM) Classes() []string {
	return s.ClassList
}

// decision returns the raw per-class scores for the query.
func (s *LinearSVM) decision(query []float32) ([]float64, error) {
	if len(s.Weights) == 0 {
		return nil, ErrNotFitted
	}
	if len(query) != len(s.Weights[0]) {
		return nil, fmt.Errorf("%w: query has %d dimensions, want %d", ErrSizeMismatch, len(query), len(s.Weights[0]))
	}
	scores := make([]float64, len(s.ClassList))
	for ci, w := range s.Weights {
		f := s.Bias[ci]
		for j := range w {
			f += w[j] * float64(query[j])
		}
		scores[ci] = f
	}
	return scores, nil
}

// PredictProba maps the modified Huber decision values into probabilities:
// each score is clipped into [0, 1] via (f+1)/2 and the result normalized
// across classes.
func (s *LinearSVM) PredictProba(query []float32) ([]float64, error) {
	scores, err := s.decision(query)
	if err != nil {
		return nil, err
	}

	probs := make([]float64, len(scores))
	var total float64
	for i, f := range scores {
		p := (f + 1) / 2
		if p < 0 {
			p = 0
		}
		if p > 1 {
			p = 1
		}
		probs[i] = p
		total += p
	}
	if total == 0 {
		// No class claims the query: fall back to uniform.
		for i := range probs {
			probs[i] = 1.0 / float64(len(probs))
		}
		return probs, nil
	}
	for i := range probs {
		probs[i] /= total
	}
	return probs, nil
}
