// Package assign solves the rectangular linear assignment problem: pair
// every row of a cost matrix with a distinct column (or every column with a
// distinct row, whichever side is smaller) at minimum total cost.
package assign

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/mat"
)

// ErrInvalidCost reports a NaN or infinite cost, for which no optimal
// assignment is defined.
var ErrInvalidCost = errors.New("cost matrix contains non-finite entries")

// Pair is one selected (row, col) cell.
type Pair struct {
	Row, Col int
}

// Minimize returns min(rows, cols) pairs of minimum total cost, ordered by
// row. It runs the shortest augmenting path form of the Hungarian method in
// O(n²m) for an n×m matrix with n ≤ m.
func Minimize(cost mat.Matrix) ([]Pair, error) {
	r, c := cost.Dims()
	if r == 0 || c == 0 {
		return nil, nil
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := cost.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: (%d, %d) is %v", ErrInvalidCost, i, j, v)
			}
		}
	}
	if r > c {
		pairs, err := solve(cost.T())
		if err != nil {
			return nil, err
		}
		for i := range pairs {
			pairs[i].Row, pairs[i].Col = pairs[i].Col, pairs[i].Row
		}
		slices.SortFunc(pairs, func(a, b Pair) int { return a.Row - b.Row })
		return pairs, nil
	}
	return solve(cost)
}

// Maximize is Minimize over the negated matrix.
func Maximize(score mat.Matrix) ([]Pair, error) {
	r, c := score.Dims()
	if r == 0 || c == 0 {
		return nil, nil
	}
	var neg mat.Dense
	neg.Scale(-1, score)
	return Minimize(&neg)
}

// Total sums the matrix cells selected by pairs.
func Total(m mat.Matrix, pairs []Pair) float64 {
	var sum float64
	for _, p := range pairs {
		sum += m.At(p.Row, p.Col)
	}
	return sum
}

// solve requires rows ≤ cols. Indices are 1-based internally; row 0 and
// column 0 are the virtual source of each augmenting search.
func solve(a mat.Matrix) ([]Pair, error) {
	n, m := a.Dims()
	u := make([]float64, n+1)
	v := make([]float64, m+1)
	p := make([]int, m+1)
	way := make([]int, m+1)
	minv := make([]float64, m+1)
	used := make([]bool, m+1)

	for i := 1; i <= n; i++ {
		p[0] = i
		j0 := 0
		for j := range minv {
			minv[j] = math.Inf(1)
			used[j] = false
		}
		for {
			used[j0] = true
			i0 := p[j0]
			delta := math.Inf(1)
			j1 := 0
			for j := 1; j <= m; j++ {
				if used[j] {
					continue
				}
				cur := a.At(i0-1, j-1) - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			for j := 0; j <= m; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}
			if j1 == 0 {
				return nil, fmt.Errorf("%w: no augmenting path for row %d", ErrInvalidCost, i)
			}
			j0 = j1
			if p[j0] == 0 {
				break
			}
		}
		for j0 != 0 {
			j1 := way[j0]
			p[j0] = p[j1]
			j0 = j1
		}
	}

	rowToCol := make([]int, n)
	for j := 1; j <= m; j++ {
		if p[j] != 0 {
			rowToCol[p[j]-1] = j - 1
		}
	}
	pairs := make([]Pair, n)
	for i, j := range rowToCol {
		pairs[i] = Pair{Row: i, Col: j}
	}
	return pairs, nil
}
