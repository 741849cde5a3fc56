package preprocess

import (
	"image"
	"runtime"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"
)

// toGray converts any image to an 8-bit grayscale image anchored at the origin.
func toGray(img image.Image) *image.Gray {
	return fromNRGBA(imaging.Grayscale(img))
}

// fromNRGBA takes the red channel of an already gray NRGBA image.
func fromNRGBA(n *image.NRGBA) *image.Gray {
	b := n.Bounds()
	w, h := b.Dx(), b.Dy()
	g := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		src := n.Pix[y*n.Stride : y*n.Stride+w*4]
		dst := g.Pix[y*g.Stride : y*g.Stride+w]
		for x := range dst {
			dst[x] = src[x*4]
		}
	}
	return g
}

func gaussianBlur(src *image.Gray, sigma float64) *image.Gray {
	if sigma <= 0 {
		return src
	}
	return fromNRGBA(imaging.Blur(src, sigma))
}

// parallelRows splits [0, height) into bands and runs fn on each concurrently.
func parallelRows(height int, fn func(y0, y1 int)) {
	workers := runtime.GOMAXPROCS(0)
	if workers > height {
		workers = height
	}
	if workers <= 1 {
		fn(0, height)
		return
	}

	step := (height + workers - 1) / workers
	var g errgroup.Group
	for y0 := 0; y0 < height; y0 += step {
		y1 := min(y0+step, height)
		g.Go(func() error {
			fn(y0, y1)
			return nil
		})
	}
	_ = g.Wait()
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
