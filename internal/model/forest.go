package model

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
)

// forestVersion is bumped whenever the persisted layout changes.
const forestVersion = 1

// leaf marks a node without children.
const leaf = -1

var (
	// ErrNoSamples means Fit was called without training data.
	ErrNoSamples = errors.New("no training samples")
	// ErrFeatureMismatch means a persisted model was trained on a different feature set.
	ErrFeatureMismatch = errors.New("feature set mismatch")
)

// ForestParams controls forest fitting.
type ForestParams struct {
	NTrees   int
	MaxDepth int // 0 grows trees until leaves are pure
	Seed     uint64
}

// Forest is a bagged ensemble of regression trees. Each tree is fit on a
// bootstrap sample and splits on the feature and threshold that minimise the
// squared error of the two children; predictions are the mean over trees.
type Forest struct {
	Version  int      `json:"version"`
	Features []string `json:"features"`
	Trees    []Tree   `json:"trees"`
}

// Tree stores nodes in a flat slice; node 0 is the root.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Node is either a split (Feature >= 0) or a leaf carrying Value.
type Node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Value     float64 `json:"v"`
}

// Fit grows a forest over rows of X with targets y.
func Fit(features []string, X [][]float64, y []float64, p ForestParams) (*Forest, error) {
	if len(X) == 0 {
		return nil, ErrNoSamples
	}
	if len(X) != len(y) {
		return nil, fmt.Errorf("fit: %d rows but %d targets", len(X), len(y))
	}
	if p.NTrees < 1 {
		p.NTrees = 1
	}

	rng := rand.New(rand.NewPCG(p.Seed, p.Seed))
	f := &Forest{Version: forestVersion, Features: slices.Clone(features), Trees: make([]Tree, p.NTrees)}
	for i := range f.Trees {
		sample := make([]int, len(X))
		for j := range sample {
			sample[j] = rng.IntN(len(X))
		}
		b := treeBuilder{X: X, y: y, maxDepth: p.MaxDepth}
		b.grow(sample, 0)
		f.Trees[i] = Tree{Nodes: b.nodes}
	}
	return f, nil
}

// Predict returns the ensemble estimate for one feature vector.
func (f *Forest) Predict(x []float64) float64 {
	var sum float64
	for i := range f.Trees {
		sum += f.Trees[i].predict(x)
	}
	return sum / float64(len(f.Trees))
}

func (t *Tree) predict(x []float64) float64 {
	n := &t.Nodes[0]
	for n.Feature != leaf {
		if x[n.Feature] <= n.Threshold {
			n = &t.Nodes[n.Left]
		} else {
			n = &t.Nodes[n.Right]
		}
	}
	return n.Value
}

type treeBuilder struct {
	X        [][]float64
	y        []float64
	maxDepth int
	nodes    []Node
}

// grow appends the subtree for idx and returns its node index.
func (b *treeBuilder) grow(idx []int, depth int) int {
	at := len(b.nodes)
	b.nodes = append(b.nodes, Node{Feature: leaf, Value: b.mean(idx)})

	if len(idx) < 2 || (b.maxDepth > 0 && depth >= b.maxDepth) {
		return at
	}
	feature, threshold, ok := b.bestSplit(idx)
	if !ok {
		return at
	}

	var left, right []int
	for _, i := range idx {
		if b.X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return at
	}
	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[at] = Node{Feature: feature, Threshold: threshold, Left: l, Right: r}
	return at
}

// bestSplit sweeps every feature in sorted order and keeps the split with the
// largest reduction in squared error. ok is false when no split improves on
// the parent, including when all targets are equal.
func (b *treeBuilder) bestSplit(idx []int) (feature int, threshold float64, ok bool) {
	n := float64(len(idx))
	var total, totalSq float64
	for _, i := range idx {
		total += b.y[i]
		totalSq += b.y[i] * b.y[i]
	}
	parentSSE := totalSq - total*total/n
	if parentSSE <= 1e-12 {
		return 0, 0, false
	}

	best := parentSSE
	sorted := slices.Clone(idx)
	for f := range b.X[idx[0]] {
		slices.SortFunc(sorted, func(a, c int) int { return cmp.Compare(b.X[a][f], b.X[c][f]) })

		var leftSum, leftSq float64
		for k := 0; k < len(sorted)-1; k++ {
			v := b.y[sorted[k]]
			leftSum += v
			leftSq += v * v
			lo, hi := b.X[sorted[k]][f], b.X[sorted[k+1]][f]
			if lo == hi {
				continue
			}
			nl := float64(k + 1)
			nr := n - nl
			rightSum := total - leftSum
			rightSq := totalSq - leftSq
			sse := (leftSq - leftSum*leftSum/nl) + (rightSq - rightSum*rightSum/nr)
			if sse < best-1e-12 {
				best = sse
				feature = f
				threshold = lo + (hi-lo)/2
				if threshold >= hi {
					threshold = lo
				}
				ok = true
			}
		}
	}
	return feature, threshold, ok
}

func (b *treeBuilder) mean(idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	var sum float64
	for _, i := range idx {
		sum += b.y[i]
	}
	return sum / float64(len(idx))
}

// Save writes the forest as JSON, replacing any existing file.
func (f *Forest) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create model directory: %w", err)
	}
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal model: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write model %s: %w", path, err)
	}
	return nil
}

// LoadForest reads a persisted forest and checks it was trained on features.
func LoadForest(path string, features []string) (*Forest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model %s: %w", path, err)
	}
	var f Forest
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode model %s: %w", path, err)
	}
	if f.Version != forestVersion || len(f.Trees) == 0 {
		return nil, fmt.Errorf("decode model %s: unsupported version %d", path, f.Version)
	}
	if !slices.Equal(f.Features, features) {
		return nil, fmt.Errorf("%w: model has %v", ErrFeatureMismatch, f.Features)
	}
	return &f, nil
}

// rmse is the root mean squared error of predictions against targets.
func rmse(pred, want []float64) float64 {
	if len(pred) == 0 {
		return math.NaN()
	}
	var sum float64
	for i := range pred {
		d := pred[i] - want[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(pred)))
}
