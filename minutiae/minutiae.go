// Package minutiae detects ridge endings and bifurcations on a skeleton
// image using the crossing number of each ridge pixel's 8-neighbourhood.
package minutiae

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/high-horse/fingerprint-server/skeleton"
	"github.com/high-horse/fingerprint-server/transparency"
)

type Type int

const (
	RidgeEnding Type = iota + 1
	Bifurcation
)

func (t Type) String() string {
	switch t {
	case RidgeEnding:
		return "ridge_ending"
	case Bifurcation:
		return "bifurcation"
	default:
		return "unknown"
	}
}

// typeOf maps a crossing number to a minutia type. Only 1 and 3 qualify.
func typeOf(cn int) (Type, bool) {
	switch cn {
	case 1:
		return RidgeEnding, true
	case 3:
		return Bifurcation, true
	}
	return 0, false
}

// Point is one detected minutia. X is the column, Y the row.
type Point struct {
	X           int     `cbor:"x" json:"x"`
	Y           int     `cbor:"y" json:"y"`
	Type        Type    `cbor:"type" json:"type"`
	Orientation float64 `cbor:"orientation" json:"orientation"`
}

const (
	DefaultBorderMargin = 20
	DefaultMinDistance  = 10
)

// Detector scans skeleton images for minutiae. The zero value is not
// useful; use NewDetector.
type Detector struct {
	BorderMargin int
	MinDistance  int

	log         *logrus.Logger
	transparent *transparency.Logger
}

type Option func(*Detector)

func WithBorderMargin(px int) Option {
	return func(d *Detector) { d.BorderMargin = px }
}

func WithMinDistance(px int) Option {
	return func(d *Detector) { d.MinDistance = px }
}

func WithLogger(l *logrus.Logger) Option {
	return func(d *Detector) { d.log = l }
}

func WithTransparency(t *transparency.Logger) Option {
	return func(d *Detector) { d.transparent = t }
}

func NewDetector(opts ...Option) *Detector {
	d := &Detector{
		BorderMargin: DefaultBorderMargin,
		MinDistance:  DefaultMinDistance,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect returns the minutiae of img in row-major scan order. Candidates
// near the border or within MinDistance of an earlier accepted point are
// dropped, so the result depends on scan order.
func (d *Detector) Detect(img *skeleton.Image) []Point {
	rows, cols := img.Rows(), img.Cols()
	points := []Point{}
	candidates := 0

	for i := 1; i < rows-1; i++ {
		for j := 1; j < cols-1; j++ {
			if !img.On(i, j) {
				continue
			}
			t, ok := typeOf(CrossingNumber(Neighbours(img, i, j)))
			if !ok {
				continue
			}
			candidates++
			if !d.valid(j, i, points, rows, cols) {
				continue
			}
			points = append(points, Point{
				X:           j,
				Y:           i,
				Type:        t,
				Orientation: Orientation(img, i, j),
			})
		}
	}

	if d.log != nil {
		d.log.WithFields(logrus.Fields{
			"rows":       rows,
			"cols":       cols,
			"candidates": candidates,
			"accepted":   len(points),
		}).Debug("minutiae detected")
	}
	if err := d.transparent.Log(transparency.KeyMinutiae, points); err != nil && d.log != nil {
		d.log.WithError(err).Warn("transparency log failed")
	}
	return points
}

func (d *Detector) valid(x, y int, accepted []Point, rows, cols int) bool {
	m := d.BorderMargin
	if x < m || x > cols-m || y < m || y > rows-m {
		return false
	}
	limit := float64(d.MinDistance)
	for _, p := range accepted {
		if math.Hypot(float64(x-p.X), float64(y-p.Y)) < limit {
			return false
		}
	}
	return true
}

// Neighbours samples the 8-neighbourhood of (i, j) clockwise from the top:
// top, top-right, right, bottom-right, bottom, bottom-left, left, top-left.
func Neighbours(img *skeleton.Image, i, j int) [8]bool {
	return [8]bool{
		img.On(i-1, j),
		img.On(i-1, j+1),
		img.On(i, j+1),
		img.On(i+1, j+1),
		img.On(i+1, j),
		img.On(i+1, j-1),
		img.On(i, j-1),
		img.On(i-1, j-1),
	}
}

// CrossingNumber counts the off/on transitions around the ring. Each
// transition is seen from both sides, hence the halving.
func CrossingNumber(ring [8]bool) int {
	sum := 0
	for k := 0; k < 8; k++ {
		if ring[k] != ring[(k+1)%8] {
			sum++
		}
	}
	return sum / 2
}

// Orientation is a coarse gradient over the 3×3 block centred on (i, j):
// atan2(bottom row - top row, right column - left column).
func Orientation(img *skeleton.Image, i, j int) float64 {
	var dy, dx int
	for k := -1; k <= 1; k++ {
		dy += bit(img.On(i+1, j+k)) - bit(img.On(i-1, j+k))
		dx += bit(img.On(i+k, j+1)) - bit(img.On(i+k, j-1))
	}
	return math.Atan2(float64(dy), float64(dx))
}

func bit(b bool) int {
	if b {
		return 1
	}
	return 0
}
