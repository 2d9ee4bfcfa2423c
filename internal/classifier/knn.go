package classifier

import (
	"fmt"
	"math"
	"sort"

	"github.com/coder/hnsw"
)

// KNN is a distance-weighted k-nearest-neighbors classifier over euclidean
// distance. Neighbor search goes through an HNSW graph keyed by sample index.
type KNN struct {
	K       int
	Samples [][]float32
	Labels  []string

	classes []string
	dim     int
	graph   *hnsw.Graph[int]
}

// hnswMaxNeighbors is the M parameter of the graph.
const hnswMaxNeighbors = 16

// Fit trains the classifier. When K is unset it is chosen as round(sqrt(n)),
// the heuristic the service has always used for face sets.
func (k *KNN) Fit(samples [][]float32, labels []string) error {
	if len(samples) != len(labels) {
		return fmt.Errorf("%w: %d samples, %d labels", ErrSizeMismatch, len(samples), len(labels))
	}
	if len(samples) == 0 {
		return fmt.Errorf("%w: empty training set", ErrTrain)
	}

	// The graph's distance function requires uniform dimensionality; a mixed
	// set must fail here, not deep inside a search.
	dim := len(samples[0])
	for i, vec := range samples {
		if len(vec) != dim {
			return fmt.Errorf("%w: sample %d has %d dimensions, want %d", ErrSizeMismatch, i, len(vec), dim)
		}
	}

	if k.K <= 0 {
		k.K = int(math.Round(math.Sqrt(float64(len(samples)))))
	}
	if k.K < 1 {
		k.K = 1
	}
	if k.K > len(samples) {
		k.K = len(samples)
	}

	k.Samples = samples
	k.Labels = labels
	k.classes = distinctSorted(labels)
	k.dim = dim

	g := hnsw.NewGraph[int]()
	g.M = hnswMaxNeighbors
	g.Ml = 1.0 / float64(hnswMaxNeighbors)
	g.Distance = hnsw.EuclideanDistance
	for i, vec := range samples {
		g.Add(hnsw.MakeNode(i, vec))
	}
	k.graph = g

	return nil
}

// Classes returns the sorted distinct labels seen during Fit.
func (k *KNN) Classes() []string {
	return k.classes
}

// Neighbors returns the indices and distances of the n nearest training
// samples, ordered by increasing distance.
func (k *KNN) Neighbors(query []float32, n int) ([]int, []float64, error) {
	if k.graph == nil {
		return nil, nil, ErrNotFitted
	}
	if len(query) != k.dim {
		return nil, nil, fmt.Errorf("%w: query has %d dimensions, want %d", ErrSizeMismatch, len(query), k.dim)
	}
	if n > len(k.Samples) {
		n = len(k.Samples)
	}
	nodes := k.graph.Search(query, n)

	idx := make([]int, len(nodes))
	dists := make([]float64, len(nodes))
	for i, node := range nodes {
		idx[i] = node.Key
		dists[i] = EuclideanDistance(query, node.Value)
	}
	// HNSW returns approximate order; enforce exact ranking.
	sort.Sort(&neighborSort{idx: idx, dists: dists})
	return idx, dists, nil
}

// NearestDistance returns the distance to the closest training sample.
func (k *KNN) NearestDistance(query []float32) (float64, error) {
	_, dists, err := k.Neighbors(query, 1)
	if err != nil {
		return 0, err
	}
	if len(dists) == 0 {
		return math.Inf(1), nil
	}
	return dists[0], nil
}

// PredictProba returns the distance-weighted class probabilities for the
// query, aligned with Classes(). An exact match (distance zero) takes the
// full vote.
func (k *KNN) PredictProba(query []float32) ([]float64, error) {
	idx, dists, err := k.Neighbors(query, k.K)
	if err != nil {
		return nil, err
	}

	weights := make(map[string]float64, len(k.classes))

	// Zero-distance neighbors dominate: they are the same encoding.
	exact := false
	for i, d := range dists {
		if d == 0 {
			weights[k.Labels[idx[i]]]++
			exact = true
		}
	}
	if !exact {
		for i, d := range dists {
			weights[k.Labels[idx[i]]] += 1.0 / d
		}
	}

	var total float64
	for _, w := range weights {
		total += w
	}

	probs := make([]float64, len(k.classes))
	if total == 0 {
		return probs, nil
	}
	for i, class := range k.classes {
		probs[i] = weights[class] / total
	}
	return probs, nil
}

type neighborSort struct {
	idx   []int
	dists []float64
}

func (s *neighborSort) Len() int           { return len(s.idx) }
func (s *neighborSort) Less(i, j int) bool { return s.dists[i] < s.dists[j] }
func (s *neighborSort) Swap(i, j int) {
	s.idx[i], s.idx[j] = s.idx[j], s.idx[i]
	s.dists[i], s.dists[j] = s.dists[j], s.dists[i]
}

func distinctSorted(labels []string) []string {
	seen := make(map[string]struct{}, len(labels))
	var out []string
	for _, l := range labels {
		if _, ok := seen[l]; !ok {
			seen[l] = struct{}{}
			out = append(out, l)
		}
	}
	sort.Strings(out)
	return out
}
