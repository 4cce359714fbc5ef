// Package feature flattens minutiae into the stride-4 vector used for
// storage and transmission: [x, y, type, orientation, ...].
//
// Type is encoded as 1 for a ridge ending and 0 for a bifurcation.
package feature

import (
	"errors"
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"

	"github.com/high-horse/fingerprint-server/minutiae"
)

// Stride is the number of values per minutia.
const Stride = 4

const (
	RidgeEnding = 1.0
	Bifurcation = 0.0
)

var (
	// ErrShape reports a vector whose length is not a multiple of Stride.
	ErrShape = errors.New("feature vector length is not a multiple of 4")
	// ErrNonFinite reports a NaN or infinite value.
	ErrNonFinite = errors.New("feature vector contains non-finite values")
)

type Vector []float64

// Len returns the number of minutiae encoded in v, ignoring a ragged tail.
func (v Vector) Len() int { return len(v) / Stride }

// Validate returns ErrShape or ErrNonFinite if v is malformed.
func (v Vector) Validate() error {
	if len(v)%Stride != 0 {
		return fmt.Errorf("%w: got %d values", ErrShape, len(v))
	}
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("%w: index %d is %v", ErrNonFinite, i, x)
		}
	}
	return nil
}

// Tuple is one decoded minutia.
type Tuple struct {
	X, Y        float64
	Type        float64
	Orientation float64
}

func Encode(points []minutiae.Point) Vector {
	v := make(Vector, 0, len(points)*Stride)
	for _, p := range points {
		t := Bifurcation
		if p.Type == minutiae.RidgeEnding {
			t = RidgeEnding
		}
		v = append(v, float64(p.X), float64(p.Y), t, p.Orientation)
	}
	return v
}

func Decode(v Vector) ([]Tuple, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	out := make([]Tuple, 0, v.Len())
	for i := 0; i < len(v); i += Stride {
		out = append(out, Tuple{X: v[i], Y: v[i+1], Type: v[i+2], Orientation: v[i+3]})
	}
	return out, nil
}

// Flatten is the inverse of Decode.
func Flatten(tuples []Tuple) Vector {
	v := make(Vector, 0, len(tuples)*Stride)
	for _, t := range tuples {
		v = append(v, t.X, t.Y, t.Type, t.Orientation)
	}
	return v
}

var encMode = mustEncMode()

func mustEncMode() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

// Marshal encodes v as a CBOR array of floats. Floats are shortened only
// when lossless.
func Marshal(v Vector) ([]byte, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return encMode.Marshal([]float64(v))
}

func Unmarshal(data []byte) (Vector, error) {
	var raw []float64
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode feature vector: %w", err)
	}
	v := Vector(raw)
	if err := v.Validate(); err != nil {
		return nil, err
	}
	if v == nil {
		v = Vector{}
	}
	return v, nil
}
