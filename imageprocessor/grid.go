package imageprocessor

import (
	"errors"
	"fmt"
	"image"

	"dupfinder/hashing"
	"dupfinder/logging"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"
	_ "golang.org/x/image/webp"
)

// LumaGrid decodes path and samples it down to a w×h grid of luma values.
// OpenCV is tried first; files it cannot read fall back to the pure-Go
// decoders.
func LumaGrid(registry *ImageLoaderRegistry, path string, w, h int) ([][]float64, error) {
	mat, err := registry.LoadImage(path)
	if err == nil {
		defer mat.Close()
		return GridFromMat(mat, w, h)
	}
	mat.Close()
	if errors.Is(err, ErrNoLoader) || errors.Is(err, ErrUnreadable) {
		return nil, err
	}

	logging.DebugLog("OpenCV could not load %s (%v), trying Go decoders", path, err)
	img, ferr := imaging.Open(path, imaging.AutoOrientation(true))
	if ferr != nil {
		return nil, fmt.Errorf("cannot decode %s: %w", path, ferr)
	}
	return GridFromImage(img, w, h)
}

// GridFromMat resizes a BGR or grayscale Mat with area interpolation and
// converts it to luma
func GridFromMat(mat gocv.Mat, w, h int) ([][]float64, error) {
	if mat.Empty() || mat.Rows() == 0 || mat.Cols() == 0 {
		return nil, hashing.ErrEmptyImage
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(mat, &resized, image.Point{X: w, Y: h}, 0, 0, gocv.InterpolationArea)

	channels := resized.Channels()
	grid := make([][]float64, h)
	for y := 0; y < h; y++ {
		row := make([]float64, w)
		for x := 0; x < w; x++ {
			if channels == 1 {
				row[x] = float64(resized.GetUCharAt(y, x))
				continue
			}
			bgr := resized.GetVecbAt(y, x)
			row[x] = hashing.Luma(float64(bgr[2]), float64(bgr[1]), float64(bgr[0]))
		}
		grid[y] = row
	}
	return grid, nil
}

// GridFromImage is the pure-Go equivalent of GridFromMat
func GridFromImage(img image.Image, w, h int) ([][]float64, error) {
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, hashing.ErrEmptyImage
	}

	small := imaging.Resize(img, w, h, imaging.Box)
	grid := make([][]float64, h)
	for y := 0; y < h; y++ {
		row := make([]float64, w)
		for x := 0; x < w; x++ {
			i := y*small.Stride + x*4
			p := small.Pix[i : i+3 : i+3]
			row[x] = hashing.Luma(float64(p[0]), float64(p[1]), float64(p[2]))
		}
		grid[y] = row
	}
	return grid, nil
}

// loadGoImage decodes path into an image.Image. RAW files go through the
// registry so their embedded preview is used.
func loadGoImage(registry *ImageLoaderRegistry, path string) (image.Image, error) {
	if !IsRawFormat(path) {
		img, err := imaging.Open(path, imaging.AutoOrientation(true))
		if err == nil {
			return img, nil
		}
		logging.DebugLog("Go decoders could not load %s (%v), trying OpenCV", path, err)
	}

	mat, err := registry.LoadImage(path)
	if err != nil {
		mat.Close()
		return nil, err
	}
	defer mat.Close()
	if mat.Empty() {
		return nil, hashing.ErrEmptyImage
	}
	return mat.ToImage()
}
