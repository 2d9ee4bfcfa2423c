package classifier

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// snapshot is the gob wire form of a trained ensemble. The HNSW graph is not
// serialized; it is rebuilt deterministically from the training samples on
// load. The SVM weights are carried as-is so no retraining happens.
type snapshot struct {
	Samples   [][]float32
	Labels    []string
	K         int
	KNNWeight float64
	SVMWeight float64

	SVMClasses []string
	SVMWeights [][]float64
	SVMBias    []float64
	SVMMaxIter int
	SVMTol     float64
	SVMAlpha   float64
}

// Marshal serializes the ensemble for storage in a model snapshot.
func (e *Ensemble) Marshal() ([]byte, error) {
	if e.KNN == nil || e.SVM == nil {
		return nil, ErrNotFitted
	}

	snap := snapshot{
		Samples:    e.KNN.Samples,
		Labels:     e.KNN.Labels,
		K:          e.KNN.K,
		KNNWeight:  e.KNNWeight,
		SVMWeight:  e.SVMWeight,
		SVMClasses: e.SVM.ClassList,
		SVMWeights: e.SVM.Weights,
		SVMBias:    e.SVM.Bias,
		SVMMaxIter: e.SVM.MaxIter,
		SVMTol:     e.SVM.Tol,
		SVMAlpha:   e.SVM.Alpha,
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, fmt.Errorf("failed to encode model: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal reconstructs an ensemble from a stored model snapshot.
func Unmarshal(data []byte) (*Ensemble, error) {
	var snap snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode model: %w", err)
	}

	knn := &KNN{K: snap.K}
	if err := knn.Fit(snap.Samples, snap.Labels); err != nil {
		return nil, fmt.Errorf("failed to rebuild neighbor index: %w", err)
	}

	svm := &LinearSVM{
		MaxIter:   snap.SVMMaxIter,
		Tol:       snap.SVMTol,
		Alpha:     snap.SVMAlpha,
		ClassList: snap.SVMClasses,
		Weights:   snap.SVMWeights,
		Bias:      snap.SVMBias,
	}

	return &Ensemble{
		KNN:       knn,
		SVM:       svm,
		KNNWeight: snap.KNNWeight,
		SVMWeight: snap.SVMWeight,
	}, nil
}
