package preprocess

import (
	"image"
	"math"
)

// bilateral smooths while keeping edges: each neighbor is weighted by its
// distance (sigmaSpace) and by its intensity difference (sigmaColor).
func bilateral(src *image.Gray, diameter int, sigmaColor, sigmaSpace float64) *image.Gray {
	radius := diameter / 2
	if diameter <= 0 {
		radius = int(math.Round(sigmaSpace * 1.5))
	}
	if radius < 1 || sigmaColor <= 0 || sigmaSpace <= 0 {
		return src
	}

	type tap struct {
		dx, dy int
		w      float64
	}
	var taps []tap
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			r2 := float64(dx*dx + dy*dy)
			if r2 > float64(radius*radius) {
				continue
			}
			taps = append(taps, tap{dx, dy, math.Exp(-r2 / (2 * sigmaSpace * sigmaSpace))})
		}
	}

	var colorWeight [256]float64
	for i := range colorWeight {
		colorWeight[i] = math.Exp(-float64(i*i) / (2 * sigmaColor * sigmaColor))
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))

	parallelRows(h, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < w; x++ {
				center := int(src.Pix[y*src.Stride+x])
				var sum, wsum float64
				for _, t := range taps {
					sx := clamp(x+t.dx, 0, w-1)
					sy := clamp(y+t.dy, 0, h-1)
					v := int(src.Pix[sy*src.Stride+sx])
					diff := v - center
					if diff < 0 {
						diff = -diff
					}
					wt := t.w * colorWeight[diff]
					sum += wt * float64(v)
					wsum += wt
				}
				dst.Pix[y*dst.Stride+x] = uint8(math.Round(sum / wsum))
			}
		}
	})

	return dst
}

// nlMeans is non-local means denoising. Each pixel becomes the weighted mean
// of pixels in a search window, weighted by how similar their surrounding
// template patches are. Patch distances are computed per search offset with
// separable box sums so the cost does not grow with the template size.
func nlMeans(src *image.Gray, strength float64, templateSize, searchSize int) *image.Gray {
	if strength <= 0 {
		return src
	}

	tr := templateSize / 2
	sr := searchSize / 2
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	area := float64((2*tr + 1) * (2*tr + 1))

	// Weights below 1e-3 are dropped, which bounds the lookup table.
	maxSSD := int(math.Ceil(-math.Log(1e-3) * strength * strength * area))
	weights := make([]float64, maxSSD+1)
	for ssd := range weights {
		weights[ssd] = math.Exp(-(float64(ssd) / area) / (strength * strength))
	}

	at := func(x, y int) int32 {
		return int32(src.Pix[clamp(y, 0, h-1)*src.Stride+clamp(x, 0, w-1)])
	}

	dst := image.NewGray(image.Rect(0, 0, w, h))

	parallelRows(h, func(y0, y1 int) {
		bandH := y1 - y0
		dw := w + 2*tr
		dh := bandH + 2*tr

		diff := make([]int32, dw*dh)
		cols := make([]int32, dw*bandH)
		sumW := make([]float64, w*bandH)
		sumV := make([]float64, w*bandH)

		for oy := -sr; oy <= sr; oy++ {
			for ox := -sr; ox <= sr; ox++ {
				// squared differences over the band plus template halo
				for r := 0; r < dh; r++ {
					y := y0 - tr + r
					for c := 0; c < dw; c++ {
						x := c - tr
						d := at(x, y) - at(x+ox, y+oy)
						diff[r*dw+c] = d * d
					}
				}

				// vertical box sums
				for c := 0; c < dw; c++ {
					var s int32
					for r := 0; r < 2*tr+1; r++ {
						s += diff[r*dw+c]
					}
					cols[c] = s
					for r := 1; r < bandH; r++ {
						s += diff[(r+2*tr)*dw+c] - diff[(r-1)*dw+c]
						cols[r*dw+c] = s
					}
				}

				// horizontal box sums give the patch distance
				for r := 0; r < bandH; r++ {
					row := cols[r*dw : (r+1)*dw]
					var s int32
					for c := 0; c < 2*tr+1; c++ {
						s += row[c]
					}
					y := y0 + r
					for x := 0; x < w; x++ {
						if x > 0 {
							s += row[x+2*tr] - row[x-1]
						}
						if int(s) > maxSSD {
							continue
						}
						wt := weights[s]
						i := r*w + x
						sumW[i] += wt
						sumV[i] += wt * float64(at(x+ox, y+oy))
					}
				}
			}
		}

		for r := 0; r < bandH; r++ {
			for x := 0; x < w; x++ {
				i := r*w + x
				v := float64(src.Pix[(y0+r)*src.Stride+x])
				if sumW[i] > 0 {
					v = sumV[i] / sumW[i]
				}
				dst.Pix[(y0+r)*dst.Stride+x] = uint8(math.Round(v))
			}
		}
	})

	return dst
}
