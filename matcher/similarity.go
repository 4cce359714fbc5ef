package matcher

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/high-horse/fingerprint-server/feature"
)

// spatialScale is the distance in pixels over which similarity falls by 1/e.
const spatialScale = 50.0

// Similarity scores two minutiae in (0, 1]. Identical points score 1;
// similarity decays with spatial and circular angular distance and is halved
// for a type mismatch.
func Similarity(a, b feature.Tuple) float64 {
	spatial := math.Hypot(a.X-b.X, a.Y-b.Y)
	orient := AngleDistance(a.Orientation, b.Orientation)
	typeDiff := math.Abs(a.Type - b.Type)

	return math.Exp(-spatial/spatialScale) * math.Exp(-orient/math.Pi) * (1 - 0.5*typeDiff)
}

// AngleDistance is the circular distance between two angles in radians, in
// [0, π]. Angles need not be normalized.
func AngleDistance(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 2*math.Pi)
	return math.Min(d, 2*math.Pi-d)
}

// similarityMatrix scores every query minutia against every template one.
func similarityMatrix(query, template []feature.Tuple) *mat.Dense {
	m := mat.NewDense(len(query), len(template), nil)
	for i, q := range query {
		for j, t := range template {
			m.Set(i, j, Similarity(q, t))
		}
	}
	return m
}
