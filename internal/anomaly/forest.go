// Package anomaly implements an isolation forest for batch outlier flagging.
package anomaly

import (
	"errors"
	"math"
	"math/rand/v2"
	"sort"
)

// Defaults match the common isolation forest parameterization.
const (
	DefaultTrees     = 100
	DefaultSubsample = 256
	eulerGamma       = 0.5772156649015329
)

// ErrInvalidContamination is returned when contamination is outside (0, 0.5].
var ErrInvalidContamination = errors.New("contamination must be in (0, 0.5]")

// Options configures a forest fit.
type Options struct {
	Trees         int
	Subsample     int
	Contamination float64
	Seed          uint64
}

// Forest is a fitted isolation forest. It holds no state beyond one fit.
type Forest struct {
	trees      []*node
	sampleSize int
}

type node struct {
	feature int
	split   float64
	left    *node
	right   *node
	size    int // set on external nodes
}

func (n *node) external() bool { return n.left == nil && n.right == nil }

// Fit grows a forest over rows, where each row is a feature vector of equal length.
func Fit(rows [][]float64, opts Options) *Forest {
	trees := opts.Trees
	if trees <= 0 {
		trees = DefaultTrees
	}
	psi := opts.Subsample
	if psi <= 0 {
		psi = DefaultSubsample
	}
	if psi > len(rows) {
		psi = len(rows)
	}

	f := &Forest{sampleSize: psi}
	if psi == 0 {
		return f
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	heightLimit := int(math.Ceil(math.Log2(float64(max(psi, 2)))))

	f.trees = make([]*node, trees)
	for i := range f.trees {
		sample := subsample(rows, psi, rng)
		f.trees[i] = grow(sample, 0, heightLimit, rng)
	}
	return f
}

// Scores returns the anomaly score s(x) in (0, 1] for every row; higher is
// more anomalous.
func (f *Forest) Scores(rows [][]float64) []float64 {
	out := make([]float64, len(rows))
	if len(f.trees) == 0 {
		return out
	}
	norm := averagePathLength(f.sampleSize)
	for i, x := range rows {
		var total float64
		for _, t := range f.trees {
			total += pathLength(t, x, 0)
		}
		mean := total / float64(len(f.trees))
		if norm == 0 {
			out[i] = 0.5
			continue
		}
		out[i] = math.Pow(2, -mean/norm)
	}
	return out
}

// Detect fits a forest over rows and labels the top contamination share as
// outliers. The returned slice is parallel to rows.
func Detect(rows [][]float64, opts Options) ([]bool, error) {
	if opts.Contamination <= 0 || opts.Contamination > 0.5 {
		return nil, ErrInvalidContamination
	}
	if len(rows) == 0 {
		return nil, nil
	}

	scores := Fit(rows, opts).Scores(rows)
	threshold := quantile(scores, 1-opts.Contamination)

	flags := make([]bool, len(rows))
	for i, s := range scores {
		flags[i] = s > threshold
	}
	return flags, nil
}

func subsample(rows [][]float64, n int, rng *rand.Rand) [][]float64 {
	if n == len(rows) {
		out := make([][]float64, len(rows))
		copy(out, rows)
		return out
	}
	idx := rng.Perm(len(rows))[:n]
	out := make([][]float64, n)
	for i, j := range idx {
		out[i] = rows[j]
	}
	return out
}

func grow(rows [][]float64, depth, limit int, rng *rand.Rand) *node {
	if depth >= limit || len(rows) <= 1 {
		return &node{size: len(rows)}
	}

	// Only features with spread can split.
	dims := len(rows[0])
	candidates := make([]int, 0, dims)
	lo := make([]float64, dims)
	hi := make([]float64, dims)
	for d := range dims {
		lo[d], hi[d] = rows[0][d], rows[0][d]
		for _, r := range rows[1:] {
			lo[d] = math.Min(lo[d], r[d])
			hi[d] = math.Max(hi[d], r[d])
		}
		if hi[d] > lo[d] {
			candidates = append(candidates, d)
		}
	}
	if len(candidates) == 0 {
		return &node{size: len(rows)}
	}

	feature := candidates[rng.IntN(len(candidates))]
	split := lo[feature] + rng.Float64()*(hi[feature]-lo[feature])

	var left, right [][]float64
	for _, r := range rows {
		if r[feature] < split {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}

	return &node{
		feature: feature,
		split:   split,
		left:    grow(left, depth+1, limit, rng),
		right:   grow(right, depth+1, limit, rng),
	}
}

func pathLength(n *node, x []float64, depth int) float64 {
	if n.external() {
		return float64(depth) + averagePathLength(n.size)
	}
	if x[n.feature] < n.split {
		return pathLength(n.left, x, depth+1)
	}
	return pathLength(n.right, x, depth+1)
}

// averagePathLength is c(n), the mean path length of an unsuccessful BST search.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	fn := float64(n)
	harmonic := math.Log(fn-1) + eulerGamma
	return 2*harmonic - 2*(fn-1)/fn
}

// quantile returns the q-th quantile of values using linear interpolation.
func quantile(values []float64, q float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	frac := pos - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}
