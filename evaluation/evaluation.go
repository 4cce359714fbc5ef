// Package evaluation summarizes match scores labelled genuine or impostor:
// ROC curve, area under it, and equal error rate.
//
// Scores are distances: a comparison is accepted at threshold t when
// score ≤ t. Scores without a value are recorded as +Inf and are never
// accepted at a finite threshold.
package evaluation

import (
	"math"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/exp/slices"

	"github.com/high-horse/fingerprint-server/matcher"
)

// Point is one operating point of the ROC curve.
type Point struct {
	Threshold float64 `json:"threshold"`
	FPR       float64 `json:"fpr"`
	TPR       float64 `json:"tpr"`
}

// MarshalJSON writes a null threshold for the infinite end points.
func (p Point) MarshalJSON() ([]byte, error) {
	var t *float64
	if !math.IsInf(p.Threshold, 0) && !math.IsNaN(p.Threshold) {
		t = &p.Threshold
	}
	return jsoniter.Marshal(struct {
		Threshold *float64 `json:"threshold"`
		FPR       float64  `json:"fpr"`
		TPR       float64  `json:"tpr"`
	}{t, p.FPR, p.TPR})
}

// Evaluator accumulates labelled scores. Safe for concurrent use.
type Evaluator struct {
	mu       sync.Mutex
	genuine  []float64
	impostor []float64
}

func New() *Evaluator {
	return &Evaluator{}
}

// Add records one comparison.
func (e *Evaluator) Add(score matcher.Score, genuine bool) {
	e.AddFloat(score.Float(), genuine)
}

func (e *Evaluator) AddFloat(score float64, genuine bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if genuine {
		e.genuine = append(e.genuine, score)
	} else {
		e.impostor = append(e.impostor, score)
	}
}

// Counts returns how many genuine and impostor scores were recorded.
func (e *Evaluator) Counts() (genuine, impostor int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.genuine), len(e.impostor)
}

// ROC returns operating points from the strictest threshold (nothing
// accepted) to the loosest (everything accepted). It is nil unless both
// classes have at least one score.
func (e *Evaluator) ROC() []Point {
	e.mu.Lock()
	genuine := slices.Clone(e.genuine)
	impostor := slices.Clone(e.impostor)
	e.mu.Unlock()

	if len(genuine) == 0 || len(impostor) == 0 {
		return nil
	}
	slices.Sort(genuine)
	slices.Sort(impostor)

	thresholds := append(slices.Clone(genuine), impostor...)
	slices.Sort(thresholds)
	thresholds = slices.Compact(thresholds)

	g, i := float64(len(genuine)), float64(len(impostor))
	points := make([]Point, 0, len(thresholds)+1)
	points = append(points, Point{Threshold: math.Inf(-1)})
	for _, t := range thresholds {
		points = append(points, Point{
			Threshold: t,
			FPR:       float64(countAtMost(impostor, t)) / i,
			TPR:       float64(countAtMost(genuine, t)) / g,
		})
	}
	return points
}

// AUC integrates the ROC curve with the trapezoid rule. 1 means genuine
// scores are all strictly lower than impostor scores; 0.5 is chance.
func (e *Evaluator) AUC() float64 {
	roc := e.ROC()
	var area float64
	for k := 1; k < len(roc); k++ {
		area += (roc[k].FPR - roc[k-1].FPR) * (roc[k].TPR + roc[k-1].TPR) / 2
	}
	return area
}

// EER returns the false accept rate at the operating point where it is
// closest to the false reject rate, and the threshold of that point.
func (e *Evaluator) EER() (rate, threshold float64) {
	roc := e.ROC()
	if roc == nil {
		return math.NaN(), math.NaN()
	}
	best := math.Inf(1)
	for _, p := range roc {
		fnr := 1 - p.TPR
		if d := math.Abs(p.FPR - fnr); d < best {
			best = d
			rate, threshold = p.FPR, p.Threshold
		}
	}
	return rate, threshold
}

// countAtMost counts values ≤ t in an ascending slice.
func countAtMost(sorted []float64, t float64) int {
	n, _ := slices.BinarySearchFunc(sorted, t, func(v, target float64) int {
		if v <= target {
			return -1
		}
		return 1
	})
	return n
}
