package imaging

import (
	"errors"
	"image"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

var errNonFinite = errors.New("deconvolution produced non-finite values")

// DeblurStage applies Wiener deconvolution against a 3x3 box blur with a
// Laplacian regularizer. It works on the grayscale projection of the page and
// returns a gray RGB image.
type DeblurStage struct {
	Balance float64
}

func (s *DeblurStage) Name() string { return "deblur" }

func (s *DeblurStage) Apply(img *image.RGBA) (*image.RGBA, error) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	data := make([]complex128, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			data[y*w+x] = complex(float64(luma(img.Pix, y*img.Stride+x*4))/255, 0)
		}
	}

	rows, cols := fourier.NewCmplxFFT(w), fourier.NewCmplxFFT(h)
	fft2(data, w, h, rows, cols, false)

	// Both kernels are symmetric about the origin, so their transfer
	// functions are real and separable in cosines.
	cosX := make([]float64, w)
	for u := range cosX {
		cosX[u] = math.Cos(2 * math.Pi * float64(u) / float64(w))
	}
	for v := 0; v < h; v++ {
		cy := math.Cos(2 * math.Pi * float64(v) / float64(h))
		for u := 0; u < w; u++ {
			psf := (1 + 2*cosX[u]) * (1 + 2*cy) / 9
			reg := 4 - 2*cosX[u] - 2*cy
			den := psf*psf + s.Balance*reg*reg
			if den == 0 {
				return nil, errNonFinite
			}
			data[v*w+u] *= complex(psf/den, 0)
		}
	}

	fft2(data, w, h, rows, cols, true)

	norm := 1 / float64(w*h)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := data[y*w+x]
			if cmplx.IsNaN(c) || cmplx.IsInf(c) {
				return nil, errNonFinite
			}
			v := min(max(real(c)*norm, 0), 1)
			g := uint8(math.Round(v * 255))
			i := y*dst.Stride + x*4
			dst.Pix[i], dst.Pix[i+1], dst.Pix[i+2], dst.Pix[i+3] = g, g, g, 0xff
		}
	}
	return dst, nil
}

// fft2 transforms a row-major w x h grid in place. The inverse is
// unnormalized.
func fft2(data []complex128, w, h int, rows, cols *fourier.CmplxFFT, inverse bool) {
	step := func(fft *fourier.CmplxFFT, seq []complex128) {
		if inverse {
			fft.Sequence(seq, seq)
		} else {
			fft.Coefficients(seq, seq)
		}
	}
	for y := 0; y < h; y++ {
		step(rows, data[y*w:(y+1)*w])
	}
	col := make([]complex128, h)
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			col[y] = data[y*w+x]
		}
		step(cols, col)
		for y := 0; y < h; y++ {
			data[y*w+x] = col[y]
		}
	}
}
