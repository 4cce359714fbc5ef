// Package skeleton is the boundary with the preprocessing stage: a binary
// image of 1-pixel-wide ridges, addressed as rows × cols.
package skeleton

import (
	"errors"
	"fmt"
	"image"
)

// ErrDegenerate is returned for images smaller than 3×3, which have no
// interior pixel to scan.
var ErrDegenerate = errors.New("skeleton image must be at least 3x3")

// Image is an immutable-by-convention binary raster. On marks a ridge pixel.
type Image struct {
	rows, cols int
	pix        []bool
}

func New(rows, cols int) (*Image, error) {
	if rows < 3 || cols < 3 {
		return nil, fmt.Errorf("%w: got %dx%d", ErrDegenerate, rows, cols)
	}
	return &Image{rows: rows, cols: cols, pix: make([]bool, rows*cols)}, nil
}

// FromRows builds an Image from a row-major byte grid where any non-zero
// value is a ridge pixel. Mostly useful for fixtures.
func FromRows(grid [][]uint8) (*Image, error) {
	if len(grid) == 0 {
		return nil, fmt.Errorf("%w: got 0 rows", ErrDegenerate)
	}
	img, err := New(len(grid), len(grid[0]))
	if err != nil {
		return nil, err
	}
	for i, row := range grid {
		if len(row) != img.cols {
			return nil, fmt.Errorf("row %d has %d columns, want %d", i, len(row), img.cols)
		}
		for j, v := range row {
			img.Set(i, j, v != 0)
		}
	}
	return img, nil
}

// FromGray thresholds g: pixels equal to ridge are on, all others off.
func FromGray(g *image.Gray, ridge uint8) (*Image, error) {
	b := g.Bounds()
	img, err := New(b.Dy(), b.Dx())
	if err != nil {
		return nil, err
	}
	for i := 0; i < img.rows; i++ {
		for j := 0; j < img.cols; j++ {
			img.pix[i*img.cols+j] = g.GrayAt(b.Min.X+j, b.Min.Y+i).Y == ridge
		}
	}
	return img, nil
}

func (m *Image) Rows() int { return m.rows }
func (m *Image) Cols() int { return m.cols }

// On reports whether (i, j) is a ridge pixel. Out-of-range reads are off.
func (m *Image) On(i, j int) bool {
	if i < 0 || j < 0 || i >= m.rows || j >= m.cols {
		return false
	}
	return m.pix[i*m.cols+j]
}

func (m *Image) Set(i, j int, on bool) {
	m.pix[i*m.cols+j] = on
}

// Count returns the number of ridge pixels.
func (m *Image) Count() int {
	n := 0
	for _, p := range m.pix {
		if p {
			n++
		}
	}
	return n
}
