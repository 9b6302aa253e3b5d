package classify

import (
	"image"
	"math"
)

const (
	gridSize = 4
	// mean r, g, b, saturation, dark fraction, edge density, aspect, grid luma
	FeatureCount = 7 + gridSize*gridSize
	darkLevel    = 96
	edgeLevel    = 40
	sampleTarget = 256
)

// Features summarises colour and layout of a page as a fixed-length vector
// in [0,1]. Large pages are sampled on a regular lattice.
func Features(page image.Image) []float64 {
	b := page.Bounds()
	w, h := b.Dx(), b.Dy()
	step := max(1, max(w, h)/sampleTarget)

	var sumR, sumG, sumB, sumSat float64
	var dark, edges, edgeChecks, n int
	var cells [gridSize * gridSize]float64
	var cellN [gridSize * gridSize]int

	lumaAt := func(x, y int) float64 {
		r, g, bl, _ := page.At(x, y).RGBA()
		return (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bl)) / 257
	}

	for y := b.Min.Y; y < b.Max.Y; y += step {
		for x := b.Min.X; x < b.Max.X; x += step {
			r16, g16, b16, _ := page.At(x, y).RGBA()
			r, g, bl := float64(r16)/65535, float64(g16)/65535, float64(b16)/65535
			sumR, sumG, sumB = sumR+r, sumG+g, sumB+bl

			hi, lo := math.Max(r, math.Max(g, bl)), math.Min(r, math.Min(g, bl))
			if hi > 0 {
				sumSat += (hi - lo) / hi
			}
			l := (0.299*r + 0.587*g + 0.114*bl) * 255
			if l < darkLevel {
				dark++
			}
			if x+step < b.Max.X {
				edgeChecks++
				if math.Abs(l-lumaAt(x+step, y)) > edgeLevel {
					edges++
				}
			}

			cx := min((x-b.Min.X)*gridSize/w, gridSize-1)
			cy := min((y-b.Min.Y)*gridSize/h, gridSize-1)
			cells[cy*gridSize+cx] += l / 255
			cellN[cy*gridSize+cx]++
			n++
		}
	}

	f := make([]float64, 0, FeatureCount)
	fn := float64(n)
	f = append(f, sumR/fn, sumG/fn, sumB/fn, sumSat/fn, float64(dark)/fn)
	if edgeChecks > 0 {
		f = append(f, float64(edges)/float64(edgeChecks))
	} else {
		f = append(f, 0)
	}
	// aspect mapped into [0,1]: 0.5 is square, >0.5 landscape
	f = append(f, float64(w)/float64(w+h))
	for i := range cells {
		if cellN[i] > 0 {
			f = append(f, cells[i]/float64(cellN[i]))
		} else {
			f = append(f, 0)
		}
	}
	return f
}
