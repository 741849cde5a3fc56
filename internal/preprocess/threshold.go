package preprocess

import "image"

// adaptiveThreshold binarizes against a Gaussian-weighted local mean: a pixel
// turns white when it is brighter than the mean of its block minus c.
func adaptiveThreshold(src *image.Gray, blockSize int, c float64) *image.Gray {
	sigma := 0.3*(float64(blockSize-1)*0.5-1) + 0.8
	mean := gaussianBlur(src, sigma)

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := float64(src.Pix[y*src.Stride+x])
			m := float64(mean.Pix[y*mean.Stride+x])
			if v > m-c {
				dst.Pix[y*dst.Stride+x] = 255
			}
		}
	}
	return dst
}

// fixedThreshold maps pixels above t to white and everything else to black.
func fixedThreshold(src *image.Gray, t uint8) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if src.Pix[y*src.Stride+x] > t {
				dst.Pix[y*dst.Stride+x] = 255
			}
		}
	}
	return dst
}

// otsuThreshold picks the global threshold that maximizes the between-class
// variance of the histogram.
func otsuThreshold(src *image.Gray) *image.Gray {
	return fixedThreshold(src, otsuLevel(src))
}

func otsuLevel(src *image.Gray) uint8 {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	var hist [256]float64
	for y := 0; y < h; y++ {
		for _, v := range src.Pix[y*src.Stride : y*src.Stride+w] {
			hist[v]++
		}
	}

	total := float64(w * h)
	var sumAll float64
	for i, n := range hist {
		sumAll += float64(i) * n
	}

	var (
		best     float64
		level    int
		weightBg float64
		sumBg    float64
	)
	for t := 0; t < 256; t++ {
		weightBg += hist[t]
		if weightBg == 0 {
			continue
		}
		weightFg := total - weightBg
		if weightFg == 0 {
			break
		}
		sumBg += float64(t) * hist[t]
		meanBg := sumBg / weightBg
		meanFg := (sumAll - sumBg) / weightFg
		between := weightBg * weightFg * (meanBg - meanFg) * (meanBg - meanFg)
		if between > best {
			best = between
			level = t
		}
	}
	return uint8(level)
}
