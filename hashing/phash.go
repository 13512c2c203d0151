package hashing

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

const (
	// GridSize is the width and height of the luma grid fed to the DCT
	GridSize = 32

	// BlockSize is the width and height of the low-frequency block kept after the DCT
	BlockSize = 8

	// PerceptualHashBits is the length of a DCT perceptual hash. The DC term is dropped.
	PerceptualHashBits = BlockSize*BlockSize - 1

	// DifferenceWidth and DifferenceHeight describe the gradient hash grid
	DifferenceWidth  = 9
	DifferenceHeight = 8

	// DifferenceHashBits is the length of a gradient hash
	DifferenceHashBits = (DifferenceWidth - 1) * DifferenceHeight
)

// ErrEmptyImage is returned for grids with no pixels
var ErrEmptyImage = errors.New("image has zero dimensions")

// cosTable[u][i] = cos((2i+1) * u * pi / 2N)
var cosTable = func() [GridSize][GridSize]float64 {
	var t [GridSize][GridSize]float64
	for u := 0; u < GridSize; u++ {
		for i := 0; i < GridSize; i++ {
			t[u][i] = math.Cos(float64((2*i+1)*u) * math.Pi / (2 * GridSize))
		}
	}
	return t
}()

// Luma converts 8-bit RGB components to brightness
func Luma(r, g, b float64) float64 {
	return 0.299*r + 0.587*g + 0.114*b
}

// DCT applies a 2-D DCT-II to a GridSize x GridSize grid and returns the
// first BlockSize rows and columns of the result.
func DCT(grid [][]float64) ([BlockSize][BlockSize]float64, error) {
	var out [BlockSize][BlockSize]float64
	if err := checkGrid(grid, GridSize, GridSize); err != nil {
		return out, err
	}

	// Separable transform: rows first, then columns.
	var rows [GridSize][BlockSize]float64
	for i := 0; i < GridSize; i++ {
		for v := 0; v < BlockSize; v++ {
			var sum float64
			for j := 0; j < GridSize; j++ {
				sum += grid[i][j] * cosTable[v][j]
			}
			rows[i][v] = sum
		}
	}

	scale := 2.0 / GridSize
	for u := 0; u < BlockSize; u++ {
		cu := 1.0
		if u == 0 {
			cu = 1 / math.Sqrt2
		}
		for v := 0; v < BlockSize; v++ {
			cv := 1.0
			if v == 0 {
				cv = 1 / math.Sqrt2
			}
			var sum float64
			for i := 0; i < GridSize; i++ {
				sum += rows[i][v] * cosTable[u][i]
			}
			out[u][v] = scale * cu * cv * sum
		}
	}
	return out, nil
}

// PerceptualHash computes the DCT hash of a GridSize x GridSize luma grid.
// Each of the BlockSize^2-1 low-frequency coefficients, DC excluded, becomes
// '1' when it is above their mean, in raster order.
func PerceptualHash(grid [][]float64) (string, error) {
	block, err := DCT(grid)
	if err != nil {
		return "", err
	}

	var sum float64
	for y := 0; y < BlockSize; y++ {
		for x := 0; x < BlockSize; x++ {
			if x == 0 && y == 0 {
				continue
			}
			sum += block[y][x]
		}
	}
	mean := sum / PerceptualHashBits

	var b strings.Builder
	b.Grow(PerceptualHashBits)
	for y := 0; y < BlockSize; y++ {
		for x := 0; x < BlockSize; x++ {
			if x == 0 && y == 0 {
				continue
			}
			if block[y][x] > mean {
				b.WriteByte('1')
			} else {
				b.WriteByte('0')
			}
		}
	}
	return b.String(), nil
}

// DifferenceHash computes the gradient hash of a DifferenceHeight x
// DifferenceWidth luma grid: '1' where a pixel is brighter than its right
// neighbour.
func DifferenceHash(grid [][]float64) (string, error) {
	if err := checkGrid(grid, DifferenceWidth, DifferenceHeight); err != nil {
		return "", err
	}

	var b strings.Builder
	b.Grow(DifferenceHashBits)
	for y := 0; y < DifferenceHeight; y++ {
		for x := 0; x < DifferenceWidth-1; x++ {
			if grid[y][x] > grid[y][x+1] {
				b.WriteByte('1')
			} else {
				b.WriteByte('0')
			}
		}
	}
	return b.String(), nil
}

func checkGrid(grid [][]float64, width, height int) error {
	if len(grid) == 0 || len(grid[0]) == 0 {
		return ErrEmptyImage
	}
	if len(grid) != height {
		return fmt.Errorf("grid has %d rows, want %d", len(grid), height)
	}
	for y, row := range grid {
		if len(row) != width {
			return fmt.Errorf("grid row %d has %d columns, want %d", y, len(row), width)
		}
	}
	return nil
}
