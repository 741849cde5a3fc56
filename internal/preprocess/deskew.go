package preprocess

import (
	"image"
	"math"
	"sort"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

const (
	cannyLow  = 50
	cannyHigh = 150

	// tan(22.5°) and tan(67.5°) scaled by 1<<tanShift for the integer
	// gradient direction test in non-maximum suppression.
	tanShift = 15
	tan22    = 13573
	tan67    = 79109

	houghThreshold = 200
	houghAngles    = 180

	// Skew below this many degrees is left alone.
	minSkewDegrees = 0.5
	// Lines steeper than this are not text baselines.
	maxSkewDegrees = 45
)

// Deskew estimates the dominant text line angle and rotates the image so
// lines become horizontal. Images without a clear skew are returned as is.
func Deskew(src *image.Gray) *image.Gray {
	angle, ok := EstimateSkew(src)
	if !ok || math.Abs(angle) < minSkewDegrees {
		return src
	}
	return rotate(src, angle)
}

// EstimateSkew returns the median angle in degrees of the near-horizontal
// lines found by a Hough transform over Canny edges. Positive angles mean
// lines descend to the right. ok is false when no line was found.
func EstimateSkew(src *image.Gray) (angle float64, ok bool) {
	edges, w, h := canny(src, cannyLow, cannyHigh)
	thetas := houghLines(edges, w, h, houghThreshold)

	var angles []float64
	for _, theta := range thetas {
		deg := theta*180/math.Pi - 90
		if math.Abs(deg) <= maxSkewDegrees {
			angles = append(angles, deg)
		}
	}
	if len(angles) == 0 {
		return 0, false
	}

	sort.Float64s(angles)
	mid := len(angles) / 2
	if len(angles)%2 == 0 {
		return (angles[mid-1] + angles[mid]) / 2, true
	}
	return angles[mid], true
}

// rotate turns the image counter-clockwise by deg degrees about its centre
// using cubic interpolation. Pixels that fall outside the source repeat the
// nearest edge pixel.
func rotate(src *image.Gray, deg float64) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	phi := deg * math.Pi / 180
	cos, sin := math.Cos(phi), math.Sin(phi)
	cx, cy := float64(w/2), float64(h/2)

	dst := image.NewGray(image.Rect(0, 0, w, h))

	// Edge replication first; the cubic pass below overwrites every pixel
	// whose source lies inside the image.
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx, dy := float64(x)+0.5-cx, float64(y)+0.5-cy
			sx := int(math.Floor(cos*dx - sin*dy + cx))
			sy := int(math.Floor(sin*dx + cos*dy + cy))
			dst.Pix[y*dst.Stride+x] = src.Pix[clamp(sy, 0, h-1)*src.Stride+clamp(sx, 0, w-1)]
		}
	}

	s2d := f64.Aff3{
		cos, sin, (1-cos)*cx - sin*cy,
		-sin, cos, sin*cx + (1-cos)*cy,
	}
	draw.CatmullRom.Transform(dst, s2d, src, b, draw.Src, nil)

	return dst
}

// canny returns an edge map using 3x3 Sobel gradients, L1 magnitude,
// non-maximum suppression and hysteresis between low and high.
func canny(src *image.Gray, low, high int) ([]bool, int, int) {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	edges := make([]bool, w*h)
	if w < 3 || h < 3 {
		return edges, w, h
	}

	px := func(x, y int) int {
		return int(src.Pix[clamp(y, 0, h-1)*src.Stride+clamp(x, 0, w-1)])
	}

	gx := make([]int, w*h)
	gy := make([]int, w*h)
	mag := make([]int, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			gx[i] = px(x+1, y-1) + 2*px(x+1, y) + px(x+1, y+1) - px(x-1, y-1) - 2*px(x-1, y) - px(x-1, y+1)
			gy[i] = px(x-1, y+1) + 2*px(x, y+1) + px(x+1, y+1) - px(x-1, y-1) - 2*px(x, y-1) - px(x+1, y-1)
			mag[i] = abs(gx[i]) + abs(gy[i])
		}
	}

	const (
		none = iota
		weak
		strong
	)
	state := make([]uint8, w*h)
	var stack []int

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			m := mag[i]
			if m <= low {
				continue
			}

			ax, ay := abs(gx[i]), abs(gy[i])
			ay15 := ay << tanShift
			var n1, n2 int
			switch {
			case ay15 < tan22*ax: // horizontal gradient
				n1, n2 = mag[i-1], mag[i+1]
			case ay15 > tan67*ax: // vertical gradient
				n1, n2 = mag[i-w], mag[i+w]
			default:
				if (gx[i] < 0) != (gy[i] < 0) {
					n1, n2 = mag[i-w+1], mag[i+w-1]
				} else {
					n1, n2 = mag[i-w-1], mag[i+w+1]
				}
			}
			if m <= n1 || m < n2 {
				continue
			}

			if m > high {
				state[i] = strong
				stack = append(stack, i)
			} else {
				state[i] = weak
			}
		}
	}

	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		edges[i] = true
		x, y := i%w, i/w
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				nx, ny := x+dx, y+dy
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				j := ny*w + nx
				if state[j] == weak {
					state[j] = strong
					stack = append(stack, j)
				}
			}
		}
	}

	return edges, w, h
}

// houghLines runs the standard Hough transform with 1 pixel and 1 degree
// resolution and returns the normal angle (radians) of every local maximum
// with more than threshold votes, strongest first.
func houghLines(edges []bool, w, h, threshold int) []float64 {
	numRho := (w+h)*2 + 1
	offset := (numRho - 1) / 2

	var cosT, sinT [houghAngles]float64
	for n := 0; n < houghAngles; n++ {
		theta := float64(n) * math.Pi / houghAngles
		cosT[n], sinT[n] = math.Cos(theta), math.Sin(theta)
	}

	acc := make([]int, houghAngles*numRho)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !edges[y*w+x] {
				continue
			}
			for n := 0; n < houghAngles; n++ {
				r := int(math.Round(float64(x)*cosT[n]+float64(y)*sinT[n])) + offset
				acc[n*numRho+r]++
			}
		}
	}

	vote := func(n, r int) int {
		if n < 0 || n >= houghAngles || r < 0 || r >= numRho {
			return 0
		}
		return acc[n*numRho+r]
	}

	type peak struct {
		theta float64
		votes int
	}
	var peaks []peak
	for n := 0; n < houghAngles; n++ {
		for r := 0; r < numRho; r++ {
			v := acc[n*numRho+r]
			if v > threshold &&
				v > vote(n, r-1) && v >= vote(n, r+1) &&
				v > vote(n-1, r) && v >= vote(n+1, r) {
				peaks = append(peaks, peak{float64(n) * math.Pi / houghAngles, v})
			}
		}
	}

	sort.SliceStable(peaks, func(i, j int) bool { return peaks[i].votes > peaks[j].votes })

	thetas := make([]float64, len(peaks))
	for i, p := range peaks {
		thetas[i] = p.theta
	}
	return thetas
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
