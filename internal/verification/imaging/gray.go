package imaging

import (
	"image"
	"math"

	xdraw "golang.org/x/image/draw"
)

// Crop copies r (clipped to g) into a new zero-origin raster.
func Crop(g *image.Gray, r image.Rectangle) *image.Gray {
	r = r.Intersect(g.Bounds())
	out := image.NewGray(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := 0; y < r.Dy(); y++ {
		srcOff := g.PixOffset(r.Min.X, r.Min.Y+y)
		copy(out.Pix[y*out.Stride:y*out.Stride+r.Dx()], g.Pix[srcOff:srcOff+r.Dx()])
	}
	return out
}

// Resize scales g to w x h with bilinear interpolation.
func Resize(g *image.Gray, w, h int) *image.Gray {
	out := image.NewGray(image.Rect(0, 0, w, h))
	xdraw.BiLinear.Scale(out, out.Bounds(), g, g.Bounds(), xdraw.Src, nil)
	return out
}

// Band returns the sub-raster between fractional rows and columns of g.
func Band(g *image.Gray, top, bottom, left, right float64) *image.Gray {
	w, h := g.Bounds().Dx(), g.Bounds().Dy()
	r := image.Rect(int(left*float64(w)), int(top*float64(h)), int(right*float64(w)), int(bottom*float64(h)))
	return Crop(g, r)
}

// Mean is the average luminance.
func Mean(g *image.Gray) float64 {
	n := len(g.Pix)
	if n == 0 {
		return 0
	}
	var sum float64
	for _, p := range g.Pix {
		sum += float64(p)
	}
	return sum / float64(n)
}

// Variance is the luminance variance.
func Variance(g *image.Gray) float64 {
	n := len(g.Pix)
	if n == 0 {
		return 0
	}
	mean := Mean(g)
	var acc float64
	for _, p := range g.Pix {
		d := float64(p) - mean
		acc += d * d
	}
	return acc / float64(n)
}

// LaplacianVariance is the variance of the 4-neighbour Laplacian, a focus measure.
func LaplacianVariance(g *image.Gray) float64 {
	w, h := g.Bounds().Dx(), g.Bounds().Dy()
	if w < 3 || h < 3 {
		return 0
	}
	values := make([]float64, 0, (w-2)*(h-2))
	var sum float64
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			c := 4 * float64(g.GrayAt(x, y).Y)
			l := c - float64(g.GrayAt(x-1, y).Y) - float64(g.GrayAt(x+1, y).Y) -
				float64(g.GrayAt(x, y-1).Y) - float64(g.GrayAt(x, y+1).Y)
			values = append(values, l)
			sum += l
		}
	}
	mean := sum / float64(len(values))
	var acc float64
	for _, v := range values {
		acc += (v - mean) * (v - mean)
	}
	return acc / float64(len(values))
}

// GradientMean is the mean absolute forward difference, high for crisp edges.
func GradientMean(g *image.Gray) float64 {
	w, h := g.Bounds().Dx(), g.Bounds().Dy()
	if w < 2 || h < 2 {
		return 0
	}
	var sum float64
	for y := 0; y < h-1; y++ {
		for x := 0; x < w-1; x++ {
			p := float64(g.GrayAt(x, y).Y)
			sum += math.Abs(float64(g.GrayAt(x+1, y).Y)-p) + math.Abs(float64(g.GrayAt(x, y+1).Y)-p)
		}
	}
	return sum / float64((w-1)*(h-1))
}

// SobelMean is the mean Sobel gradient magnitude.
func SobelMean(g *image.Gray) float64 {
	w, h := g.Bounds().Dx(), g.Bounds().Dy()
	if w < 3 || h < 3 {
		return 0
	}
	px := func(x, y int) float64 { return float64(g.GrayAt(x, y).Y) }
	var sum float64
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := -px(x-1, y-1) - 2*px(x-1, y) - px(x-1, y+1) + px(x+1, y-1) + 2*px(x+1, y) + px(x+1, y+1)
			gy := -px(x-1, y-1) - 2*px(x, y-1) - px(x+1, y-1) + px(x-1, y+1) + 2*px(x, y+1) + px(x+1, y+1)
			sum += math.Hypot(gx, gy)
		}
	}
	return sum / float64((w-2)*(h-2))
}

// MirrorSimilarity compares the left half of g with the mirrored right half;
// 1 means perfectly symmetric.
func MirrorSimilarity(g *image.Gray) float64 {
	w, h := g.Bounds().Dx(), g.Bounds().Dy()
	half := w / 2
	if half == 0 || h == 0 {
		return 0
	}
	var diff float64
	for y := 0; y < h; y++ {
		for x := 0; x < half; x++ {
			diff += math.Abs(float64(g.GrayAt(x, y).Y) - float64(g.GrayAt(w-1-x, y).Y))
		}
	}
	return 1 - diff/float64(half*h)/255
}

// Clamp01 bounds v to [0,1].
func Clamp01(v float64) float64 {
	switch {
	case v < 0 || math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
