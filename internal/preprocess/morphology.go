package preprocess

import "image"

// closing is a dilation followed by an erosion with a k x k square. On dark
// text over a light background it removes dark specks smaller than the
// kernel while restoring the outline of larger shapes. k <= 1 is a no-op.
func closing(src *image.Gray, k int) *image.Gray {
	if k <= 1 {
		return src
	}
	anchor := k / 2
	dilated := rankFilter(src, -anchor, k-1-anchor, true)
	// erosion uses the reflected element so shapes do not drift
	return rankFilter(dilated, -(k - 1 - anchor), anchor, false)
}

// rankFilter applies a separable max (or min) over offsets [lo, hi] on both
// axes. Borders replicate the edge pixels.
func rankFilter(src *image.Gray, lo, hi int, takeMax bool) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	pick := func(a, b uint8) uint8 {
		if takeMax == (b > a) {
			return b
		}
		return a
	}

	tmp := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+w]
		for x := 0; x < w; x++ {
			v := row[clamp(x+lo, 0, w-1)]
			for o := lo + 1; o <= hi; o++ {
				v = pick(v, row[clamp(x+o, 0, w-1)])
			}
			tmp.Pix[y*tmp.Stride+x] = v
		}
	}

	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := tmp.Pix[clamp(y+lo, 0, h-1)*tmp.Stride+x]
			for o := lo + 1; o <= hi; o++ {
				v = pick(v, tmp.Pix[clamp(y+o, 0, h-1)*tmp.Stride+x])
			}
			dst.Pix[y*dst.Stride+x] = v
		}
	}
	return dst
}
