package classifier

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Two well-separated clusters in four dimensions.
func clusterSamples() ([][]float32, []string) {
	samples := [][]float32{
		{0.1, 0, 0, 0},
		{0, 0.1, 0, 0},
		{5.1, 5, 5, 5},
		{5, 5.1, 5, 5},
	}
	labels := []string{"alice", "alice", "bob", "bob"}
	return samples, labels
}

func TestEuclideanDistance(t *testing.T) {
	assert.Equal(t, 0.0, EuclideanDistance([]float32{1, 2, 3}, []float32{1, 2, 3}))
	assert.InDelta(t, 5.0, EuclideanDistance([]float32{0, 0}, []float32{3, 4}), 1e-9)
	assert.True(t, math.IsInf(EuclideanDistance([]float32{1}, []float32{1, 2}), 1))
}

func TestKNNAutoK(t *testing.T) {
	samples := make([][]float32, 9)
	labels := make([]string, 9)
	for i := range samples {
		samples[i] = []float32{float32(i), 0}
		labels[i] = "a"
	}

	knn := &KNN{}
	require.NoError(t, knn.Fit(samples, labels))
	assert.Equal(t, 3, knn.K)
}

func TestKNNPredictProba(t *testing.T) {
	samples, labels := clusterSamples()
	knn := &KNN{K: 2}
	require.NoError(t, knn.Fit(samples, labels))
	require.Equal(t, []string{"alice", "bob"}, knn.Classes())

	probs, err := knn.PredictProba([]float32{0.05, 0.05, 0, 0})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, probs[0], 1e-9, "both neighbors belong to the near cluster")
	assert.InDelta(t, 0.0, probs[1], 1e-9)
}

func TestKNNExactMatchDominates(t *testing.T) {
	samples, labels := clusterSamples()
	knn := &KNN{K: 4}
	require.NoError(t, knn.Fit(samples, labels))

	probs, err := knn.PredictProba(samples[2])
	require.NoError(t, err)
	assert.InDelta(t, 1.0, probs[1], 1e-9, "a zero-distance neighbor takes the full vote")
}

func TestKNNNeighborsOrderedByDistance(t *testing.T) {
	// Enrollment order deliberately scrambled relative to distance.
	samples := [][]float32{
		{4, 0, 0, 0},
		{1, 0, 0, 0},
		{3, 0, 0, 0},
		{5, 0, 0, 0},
		{2, 0, 0, 0},
	}
	labels := []string{"a", "a", "b", "b", "a"}
	knn := &KNN{K: 3}
	require.NoError(t, knn.Fit(samples, labels))

	idx, dists, err := knn.Neighbors([]float32{0, 0, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, idx, 5)

	assert.Equal(t, []int{1, 4, 2, 0, 3}, idx)
	assert.InDeltaSlice(t, []float64{1, 2, 3, 4, 5}, dists, 1e-6)
	for i := 1; i < len(dists); i++ {
		assert.GreaterOrEqual(t, dists[i], dists[i-1])
	}
}

func TestKNNFitRejectsMixedDimensions(t *testing.T) {
	knn := &KNN{}
	err := knn.Fit([][]float32{{1, 2}, {1, 2, 3}}, []string{"a", "b"})
	assert.ErrorIs(t, err, ErrSizeMismatch)
}

func TestKNNQueryDimensionMismatch(t *testing.T) {
	samples, labels := clusterSamples()
	knn := &KNN{K: 2}
	require.NoError(t, knn.Fit(samples, labels))

	_, _, err := knn.Neighbors([]float32{1, 2}, 2)
	assert.ErrorIs(t, err, ErrSizeMismatch)
}

func TestKNNNearestDistance(t *testing.T) {
	samples, labels := clusterSamples()
	knn := &KNN{K: 1}
	require.NoError(t, knn.Fit(samples, labels))

	dist, err := knn.NearestDistance([]float32{0.1, 0, 0, 0})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, dist, 1e-9)

	dist, err = knn.NearestDistance([]float32{0.1, 0.3, 0.4, 0})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, dist, 1e-6)
}

func TestSVMSeparable(t *testing.T) {
	samples, labels := clusterSamples()
	svm := &LinearSVM{}
	require.NoError(t, svm.Fit(samples, labels))
	require.Equal(t, []string{"alice", "bob"}, svm.ClassList)

	probs, err := svm.PredictProba([]float32{0, 0, 0, 0})
	require.NoError(t, err)
	assert.Greater(t, probs[0], probs[1])

	probs, err = svm.PredictProba([]float32{5, 5, 5, 5})
	require.NoError(t, err)
	assert.Greater(t, probs[1], probs[0])
}

func TestTrainPadsSingleLabel(t *testing.T) {
	samples := [][]float32{{1, 0, 0, 0}, {0.9, 0, 0, 0}}
	labels := []string{"alice", "alice"}

	ens, err := Train(samples, labels, Options{})
	require.NoError(t, err)

	assert.Equal(t, 3, ens.FaceCount(), "a zero-vector padding sample is added")
	assert.Contains(t, ens.KNN.Classes(), NullLabel)

	pred, err := ens.Predict([]float32{0.95, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, "alice", pred.Label)
}

func TestTrainSizeMismatch(t *testing.T) {
	_, err := Train([][]float32{{1}}, []string{"a", "b"}, Options{})
	assert.ErrorIs(t, err, ErrSizeMismatch)

	_, err = Train(nil, nil, Options{})
	assert.ErrorIs(t, err, ErrTrain)
}

func TestEnsemblePredict(t *testing.T) {
	samples, labels := clusterSamples()
	ens, err := Train(samples, labels, Options{KNNWeight: 1})
	require.NoError(t, err)

	pred, err := ens.Predict([]float32{0.05, 0.05, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, "alice", pred.Label)
	assert.Greater(t, pred.Probability, 0.5)
	assert.Less(t, pred.Distance, 0.2)
}

func TestClassifyRejectsDistantQuery(t *testing.T) {
	samples, labels := clusterSamples()
	ens, err := Train(samples, labels, Options{KNNWeight: 1})
	require.NoError(t, err)

	pred, err := ens.Classify([]float32{20, 20, 20, 20}, 0.6, 0)
	require.NoError(t, err)
	assert.Equal(t, UnknownLabel, pred.Label)
	assert.Equal(t, 1.0, pred.Probability)
	assert.Greater(t, pred.Distance, 0.6)
}

func TestClassifyRejectsLowProbability(t *testing.T) {
	samples, labels := clusterSamples()
	// All four samples vote, so a query halfway between the clusters splits
	// the probability mass evenly.
	ens, err := Train(samples, labels, Options{KNNWeight: 1, Neighbors: 4})
	require.NoError(t, err)

	pred, err := ens.Classify([]float32{2.5, 2.5, 2.5, 2.5}, 100, 0.9)
	require.NoError(t, err)
	assert.Equal(t, UnknownLabel, pred.Label)
	assert.Equal(t, 1.0, pred.Probability)
}

func TestClassifyAcceptsCloseQuery(t *testing.T) {
	samples, labels := clusterSamples()
	ens, err := Train(samples, labels, Options{KNNWeight: 1})
	require.NoError(t, err)

	pred, err := ens.Classify(samples[0], 0.6, 0.5)
	require.NoError(t, err)
	assert.Equal(t, "alice", pred.Label)
	assert.InDelta(t, 0.0, pred.Distance, 1e-9)
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	samples, labels := clusterSamples()
	ens, err := Train(samples, labels, Options{KNNWeight: 1, SVMWeight: 1})
	require.NoError(t, err)

	query := []float32{5.05, 5.05, 5, 5}
	want, err := ens.Predict(query)
	require.NoError(t, err)

	data, err := ens.Marshal()
	require.NoError(t, err)

	restored, err := Unmarshal(data)
	require.NoError(t, err)

	got, err := restored.Predict(query)
	require.NoError(t, err)
	assert.Equal(t, want.Label, got.Label)
	assert.InDelta(t, want.Probability, got.Probability, 1e-9)
	assert.InDelta(t, want.Distance, got.Distance, 1e-9)

	assert.Equal(t, ens.SVM.Weights, restored.SVM.Weights, "SVM weights are carried verbatim, not refitted")
	assert.Equal(t, ens.KNN.K, restored.KNN.K)
}

func TestPredictNotFitted(t *testing.T) {
	var ens Ensemble
	_, err := ens.Predict([]float32{1})
	assert.ErrorIs(t, err, ErrNotFitted)
}
