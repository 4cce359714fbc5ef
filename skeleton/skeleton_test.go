package skeleton

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/jtejido/go-wsq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cross() *image.Gray {
	g := image.NewGray(image.Rect(0, 0, 5, 4))
	for x := 0; x < 5; x++ {
		g.SetGray(x, 2, color.Gray{Y: 255})
	}
	g.SetGray(2, 1, color.Gray{Y: 255})
	g.SetGray(0, 0, color.Gray{Y: 128})
	return g
}

func TestNewDegenerate(t *testing.T) {
	_, err := New(2, 10)
	assert.ErrorIs(t, err, ErrDegenerate)

	_, err = FromRows(nil)
	assert.ErrorIs(t, err, ErrDegenerate)

	img, err := New(3, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, img.Count())
}

func TestFromRows(t *testing.T) {
	img, err := FromRows([][]uint8{
		{0, 0, 0},
		{0, 1, 1},
		{0, 0, 0},
	})
	require.NoError(t, err)
	assert.True(t, img.On(1, 1))
	assert.True(t, img.On(1, 2))
	assert.False(t, img.On(0, 0))
	assert.False(t, img.On(-1, 5), "out of range reads are off")
	assert.Equal(t, 2, img.Count())

	_, err = FromRows([][]uint8{{0, 0, 0}, {0, 0}, {0, 0, 0}})
	assert.Error(t, err)
}

func TestFromGray(t *testing.T) {
	img, err := FromGray(cross(), 255)
	require.NoError(t, err)

	assert.Equal(t, 4, img.Rows())
	assert.Equal(t, 5, img.Cols())
	assert.True(t, img.On(2, 0))
	assert.True(t, img.On(1, 2))
	assert.False(t, img.On(0, 0), "only the exact ridge value counts")
	assert.Equal(t, 6, img.Count())
}

func TestDecodePNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, cross()))

	img, err := Decode(bytes.NewReader(buf.Bytes()), 255)
	require.NoError(t, err)
	assert.Equal(t, 6, img.Count())

	url := "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
	img, err = DecodeBase64(url, 255)
	require.NoError(t, err)
	assert.Equal(t, 6, img.Count())
}

func TestDecodePGM(t *testing.T) {
	pgm := "P2\n3 3\n255\n0 255 0\n255 255 255\n0 255 0\n"

	img, err := DecodeBytes([]byte(pgm), 255)
	require.NoError(t, err)
	assert.Equal(t, 5, img.Count())
	assert.True(t, img.On(1, 1))
	assert.False(t, img.On(0, 0))
}

func TestDecodePBM(t *testing.T) {
	plain := "P1\n3 3\n0 0 0\n0 1 0\n0 0 0\n"
	img, err := DecodeBytes([]byte(plain), 255)
	require.NoError(t, err)
	assert.True(t, img.On(1, 1), "black ink is the ridge")
	assert.False(t, img.On(0, 0))
	assert.Equal(t, 1, img.Count())

	// Raw rows are padded to a byte; 0x40 sets the middle column.
	raw := append([]byte("P4\n3 3\n"), 0x00, 0x40, 0x40)
	img, err = DecodeBytes(raw, 0)
	require.NoError(t, err)
	assert.False(t, img.On(0, 1))
	assert.True(t, img.On(1, 1))
	assert.True(t, img.On(2, 1))
	assert.Equal(t, 2, img.Count())
}

func TestDecodeWSQ(t *testing.T) {
	path := filepath.Join("testdata", "sample.wsq")
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	ref, err := wsq.Decode(f)
	require.NoError(t, err)

	img, err := Load(path, 255)
	require.NoError(t, err)
	assert.Equal(t, ref.Bounds().Dy(), img.Rows())
	assert.Equal(t, ref.Bounds().Dx(), img.Cols())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "wsq", format)
	assert.Equal(t, img.Cols(), cfg.Width)
}

func TestDecodeErrors(t *testing.T) {
	_, err := DecodeBytes([]byte("definitely not an image"), 255)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = DecodeBase64("%%%", 255)
	assert.ErrorIs(t, err, ErrBadEncoding)

	_, err = DecodeBase64("data:image/png;base64", 255)
	assert.ErrorIs(t, err, ErrBadEncoding)

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 2, 2))))
	_, err = DecodeBytes(buf.Bytes(), 255)
	assert.ErrorIs(t, err, ErrDegenerate)
}
