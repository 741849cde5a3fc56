package preprocess

import (
	"image"
	"math"
)

// clahe applies contrast limited adaptive histogram equalization over a
// tiles x tiles grid. Histogram bins are clipped at clipLimit times the mean
// bin height and the excess is spread evenly; per-pixel results are
// bilinearly interpolated between the four nearest tile mappings.
func clahe(src *image.Gray, clipLimit float64, tiles int) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if tiles < 1 || clipLimit <= 0 {
		return src
	}

	tileW := (w + tiles - 1) / tiles
	tileH := (h + tiles - 1) / tiles
	tilesX := (w + tileW - 1) / tileW
	tilesY := (h + tileH - 1) / tileH

	luts := make([][256]uint8, tilesX*tilesY)
	for ty := 0; ty < tilesY; ty++ {
		for tx := 0; tx < tilesX; tx++ {
			x0, y0 := tx*tileW, ty*tileH
			x1, y1 := min(x0+tileW, w), min(y0+tileH, h)
			luts[ty*tilesX+tx] = tileLUT(src, x0, y0, x1, y1, clipLimit)
		}
	}

	dst := image.NewGray(image.Rect(0, 0, w, h))

	parallelRows(h, func(ry0, ry1 int) {
		for y := ry0; y < ry1; y++ {
			fy := (float64(y)+0.5)/float64(tileH) - 0.5
			ty0 := int(math.Floor(fy))
			wy := fy - float64(ty0)
			ty1 := clamp(ty0+1, 0, tilesY-1)
			ty0 = clamp(ty0, 0, tilesY-1)

			for x := 0; x < w; x++ {
				fx := (float64(x)+0.5)/float64(tileW) - 0.5
				tx0 := int(math.Floor(fx))
				wx := fx - float64(tx0)
				tx1 := clamp(tx0+1, 0, tilesX-1)
				tx0 = clamp(tx0, 0, tilesX-1)

				v := src.Pix[y*src.Stride+x]
				top := (1-wx)*float64(luts[ty0*tilesX+tx0][v]) + wx*float64(luts[ty0*tilesX+tx1][v])
				bottom := (1-wx)*float64(luts[ty1*tilesX+tx0][v]) + wx*float64(luts[ty1*tilesX+tx1][v])
				dst.Pix[y*dst.Stride+x] = uint8(math.Round((1-wy)*top + wy*bottom))
			}
		}
	})

	return dst
}

func tileLUT(src *image.Gray, x0, y0, x1, y1 int, clipLimit float64) [256]uint8 {
	var hist [256]int
	for y := y0; y < y1; y++ {
		for _, v := range src.Pix[y*src.Stride+x0 : y*src.Stride+x1] {
			hist[v]++
		}
	}

	area := (x1 - x0) * (y1 - y0)
	clip := max(int(clipLimit*float64(area)/256), 1)

	excess := 0
	for i := range hist {
		if hist[i] > clip {
			excess += hist[i] - clip
			hist[i] = clip
		}
	}

	redist := excess / 256
	residual := excess - redist*256
	for i := range hist {
		hist[i] += redist
	}
	if residual > 0 {
		step := max(256/residual, 1)
		for i := 0; i < 256 && residual > 0; i += step {
			hist[i]++
			residual--
		}
	}

	var lut [256]uint8
	scale := 255.0 / float64(area)
	sum := 0
	for i := range hist {
		sum += hist[i]
		lut[i] = uint8(clamp(int(math.Round(float64(sum)*scale)), 0, 255))
	}
	return lut
}
