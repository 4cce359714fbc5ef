package feature

import (
	"math"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/high-horse/fingerprint-server/minutiae"
)

func TestEncode(t *testing.T) {
	v := Encode([]minutiae.Point{
		{X: 10, Y: 12, Type: minutiae.RidgeEnding, Orientation: 0.5},
		{X: 40, Y: 41, Type: minutiae.Bifurcation, Orientation: -1.25},
	})
	assert.Equal(t, Vector{10, 12, 1, 0.5, 40, 41, 0, -1.25}, v)
	assert.Equal(t, 2, v.Len())

	empty := Encode(nil)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestDecodeShape(t *testing.T) {
	for _, n := range []int{1, 3, 5, 7} {
		_, err := Decode(make(Vector, n))
		assert.ErrorIsf(t, err, ErrShape, "length %d", n)
	}

	tuples, err := Decode(Vector{})
	require.NoError(t, err)
	assert.Empty(t, tuples)
}

func TestValidateNonFinite(t *testing.T) {
	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		v := Vector{10, 10, 1, 0, 20, bad, 0, 1}
		assert.ErrorIs(t, v.Validate(), ErrNonFinite)

		_, err := Decode(v)
		assert.ErrorIs(t, err, ErrNonFinite)

		_, err = Marshal(v)
		assert.ErrorIs(t, err, ErrNonFinite)

		data, err := cbor.Marshal([]float64(v))
		require.NoError(t, err)
		_, err = Unmarshal(data)
		assert.ErrorIs(t, err, ErrNonFinite)
	}
}

func TestDecodeEncodeAgree(t *testing.T) {
	points := []minutiae.Point{
		{X: 21, Y: 30, Type: minutiae.RidgeEnding, Orientation: 3.14},
		{X: 50, Y: 22, Type: minutiae.Bifurcation, Orientation: -0.78},
	}
	tuples, err := Decode(Encode(points))
	require.NoError(t, err)
	require.Len(t, tuples, 2)

	assert.Equal(t, Tuple{X: 21, Y: 30, Type: RidgeEnding, Orientation: 3.14}, tuples[0])
	assert.Equal(t, Tuple{X: 50, Y: 22, Type: Bifurcation, Orientation: -0.78}, tuples[1])
}

func TestFlattenRoundTrip(t *testing.T) {
	v := Vector{10, 10, 1, 0.0, 50, 50, 0, 1.57, 33.5, 21, 1, -2.9}
	tuples, err := Decode(v)
	require.NoError(t, err)
	assert.Equal(t, v, Flatten(tuples))
}

func TestCBOR(t *testing.T) {
	v := Vector{10, 10, 1, 0.1234567890123, 50, 50, 0, 1.57}
	data, err := Marshal(v)
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = Marshal(Vector{1, 2, 3})
	assert.ErrorIs(t, err, ErrShape)

	bad, err := encMode.Marshal([]float64{1, 2, 3})
	require.NoError(t, err)
	_, err = Unmarshal(bad)
	assert.ErrorIs(t, err, ErrShape)

	_, err = Unmarshal([]byte{0xff})
	assert.Error(t, err)

	assert.NotPanics(t, func() { mustEncMode() })
}
