package skeleton

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"strings"

	"github.com/jtejido/go-wsq"
	"github.com/spakin/netpbm"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

func init() {
	image.RegisterFormat("wsq", "\xff\xa0", wsq.Decode, decodeWSQConfig)
}

// decodeWSQConfig decodes the whole image; WSQ has no cheap header read.
func decodeWSQConfig(r io.Reader) (image.Config, error) {
	img, err := wsq.Decode(r)
	if err != nil {
		return image.Config{}, err
	}
	b := img.Bounds()
	return image.Config{ColorModel: img.ColorModel(), Width: b.Dx(), Height: b.Dy()}, nil
}

var (
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrBadEncoding       = errors.New("malformed image data")
)

// Decode reads a skeleton image in any registered format (PNG, JPEG, GIF,
// BMP, TIFF, WSQ) or Netpbm. Pixels equal to ridge become ridge pixels,
// except in PBM bitmaps where black ink is the ridge.
func Decode(r io.Reader, ridge uint8) (*Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return DecodeBytes(data, ridge)
}

func DecodeBytes(data []byte, ridge uint8) (*Image, error) {
	var (
		img image.Image
		err error
	)
	switch {
	case isPBM(data):
		pbm, err := netpbm.Decode(bytes.NewReader(data), &netpbm.DecodeOptions{
			Target: netpbm.PBM,
			Exact:  true,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadEncoding, err)
		}
		bw, ok := pbm.(*netpbm.BW)
		if !ok {
			return nil, fmt.Errorf("%w: pbm decoded as %T", ErrBadEncoding, pbm)
		}
		return fromBW(bw)
	case isNetpbm(data):
		img, err = netpbm.Decode(bytes.NewReader(data), &netpbm.DecodeOptions{
			Target: netpbm.PGM,
		})
	default:
		img, _, err = image.Decode(bytes.NewReader(data))
	}
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, ErrUnsupportedFormat
		}
		return nil, fmt.Errorf("%w: %v", ErrBadEncoding, err)
	}
	return FromGray(toGray(img), ridge)
}

// DecodeBase64 accepts plain base64 or a data URL (data:image/png;base64,...).
func DecodeBase64(s string, ridge uint8) (*Image, error) {
	if strings.HasPrefix(s, "data:") {
		parts := strings.SplitN(s, ",", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("%w: invalid data url", ErrBadEncoding)
		}
		s = parts[1]
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrBadEncoding, err)
	}
	return DecodeBytes(data, ridge)
}

func Load(path string, ridge uint8) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := Decode(f, ridge)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// isPBM matches plain (P1) and raw (P4) bitmaps.
func isPBM(data []byte) bool {
	return len(data) >= 2 && data[0] == 'P' && (data[1] == '1' || data[1] == '4')
}

// fromBW maps PBM ink (bit 1, black) to ridge pixels.
func fromBW(bw *netpbm.BW) (*Image, error) {
	b := bw.Bounds()
	img, err := New(b.Dy(), b.Dx())
	if err != nil {
		return nil, err
	}
	for i := 0; i < img.rows; i++ {
		for j := 0; j < img.cols; j++ {
			img.Set(i, j, bw.ColorIndexAt(b.Min.X+j, b.Min.Y+i) == 1)
		}
	}
	return img, nil
}

func isNetpbm(data []byte) bool {
	return len(data) >= 2 && data[0] == 'P' && data[1] >= '1' && data[1] <= '6'
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			gray.Set(x, y, color.GrayModel.Convert(img.At(x, y)))
		}
	}
	return gray
}
