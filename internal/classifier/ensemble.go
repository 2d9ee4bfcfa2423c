package classifier

import (
	"fmt"
)

const (
	// NullLabel pads single-class training sets so the estimators always see
	// at least two classes.
	NullLabel = "NULL_LABEL"

	// UnknownLabel is reported for queries rejected by the thresholds.
	UnknownLabel = "unknown"

	// EncodingDim is the expected length of a face encoding.
	EncodingDim = 128
)

// Prediction is the classification result for one face encoding.
type Prediction struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
	Distance    float64 `json:"distance"` // Euclidean distance to the nearest enrolled encoding
}

// Options tunes the ensemble.
type Options struct {
	KNNWeight float64
	SVMWeight float64
	Neighbors int // 0 = round(sqrt(n))
}

// Ensemble soft-votes between a distance-weighted KNN and a linear SVM.
type Ensemble struct {
	KNN       *KNN
	SVM       *LinearSVM
	KNNWeight float64
	SVMWeight float64
}

// Train fits a new ensemble on the given encodings. A training set with fewer
// than two distinct labels is padded with a zero encoding under NullLabel,
// matching the dimensionality of the real samples.
func Train(samples [][]float32, labels []string, opts Options) (*Ensemble, error) {
	if len(samples) != len(labels) {
		return nil, fmt.Errorf("%w: %d samples, %d labels", ErrSizeMismatch, len(samples), len(labels))
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: empty training set", ErrTrain)
	}

	if len(distinctSorted(labels)) < 2 {
		dim := len(samples[0])
		samples = append(append([][]float32{}, samples...), make([]float32, dim))
		labels = append(append([]string{}, labels...), NullLabel)
	}

	if opts.KNNWeight == 0 && opts.SVMWeight == 0 {
		opts.KNNWeight = 1
	}

	knn := &KNN{K: opts.Neighbors}
	if err := knn.Fit(samples, labels); err != nil {
		return nil, err
	}
	svm := &LinearSVM{}
	if err := svm.Fit(samples, labels); err != nil {
		return nil, err
	}

	return &Ensemble{
		KNN:       knn,
		SVM:       svm,
		KNNWeight: opts.KNNWeight,
		SVMWeight: opts.SVMWeight,
	}, nil
}

// Predict returns the best label with its soft-vote probability and the
// nearest-neighbor distance, without applying any rejection thresholds.
func (e *Ensemble) Predict(query []float32) (Prediction, error) {
	if e.KNN == nil || e.SVM == nil {
		return Prediction{}, ErrNotFitted
	}

	knnProbs, err := e.KNN.PredictProba(query)
	if err != nil {
		return Prediction{}, err
	}
	svmProbs, err := e.SVM.PredictProba(query)
	if err != nil {
		return Prediction{}, err
	}

	// Both estimators were fitted on the same labels, so the class axes align.
	classes := e.KNN.Classes()
	total := e.KNNWeight + e.SVMWeight
	best := -1
	var bestProb float64
	for i := range classes {
		p := (e.KNNWeight*knnProbs[i] + e.SVMWeight*svmProbs[i]) / total
		if best < 0 || p > bestProb {
			best = i
			bestProb = p
		}
	}

	dist, err := e.KNN.NearestDistance(query)
	if err != nil {
		return Prediction{}, err
	}

	return Prediction{
		Label:       classes[best],
		Probability: bestProb,
		Distance:    dist,
	}, nil
}

// Classify predicts and applies the unknown-face rejection thresholds: the
// query is rejected when its probability falls below probThreshold or its
// nearest-neighbor distance exceeds distThreshold.
func (e *Ensemble) Classify(query []float32, distThreshold, probThreshold float64) (Prediction, error) {
	pred, err := e.Predict(query)
	if err != nil {
		return Prediction{}, err
	}
	if pred.Probability < probThreshold || pred.Distance > distThreshold {
		return Prediction{
			Label:       UnknownLabel,
			Probability: 1.0,
			Distance:    pred.Distance,
		}, nil
	}
	return pred, nil
}

// FaceCount returns the number of training samples the ensemble was fitted
// on, including any null-label padding.
func (e *Ensemble) FaceCount() int {
	if e.KNN == nil {
		return 0
	}
	return len(e.KNN.Samples)
}
