package imaging

import (
	"image"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// DeskewStage rotates a page so its content bounding rectangle is axis
// aligned.
type DeskewStage struct {
	BackgroundLevel uint8
	MinAngle        float64
}

func (s *DeskewStage) Name() string { return "deskew" }

func (s *DeskewStage) Apply(img *image.RGBA) (*image.RGBA, error) {
	angle, ok := EstimateSkew(img, s.BackgroundLevel)
	if !ok || math.Abs(angle) < s.MinAngle {
		return img, nil
	}
	return rotate(img, angle), nil
}

// EstimateSkew returns the correction angle in degrees, in (-45, 45].
// ok is false when the page has no content pixels.
func EstimateSkew(img *image.RGBA, background uint8) (angle float64, ok bool) {
	pts := contentExtremes(img, background)
	if len(pts) == 0 {
		return 0, false
	}
	hull := convexHull(pts)
	return correctionAngle(minAreaRectAngle(hull)), true
}

// contentExtremes collects, per row, the outer corners of the leftmost and
// rightmost content pixel. Interior pixels can never be on the hull.
func contentExtremes(img *image.RGBA, background uint8) []point {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	var pts []point
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		left, right := -1, -1
		for x := 0; x < w; x++ {
			if luma(row, x*4) < background {
				left = x
				break
			}
		}
		if left < 0 {
			continue
		}
		for x := w - 1; x >= left; x-- {
			if luma(row, x*4) < background {
				right = x
				break
			}
		}
		fy := float64(y)
		pts = append(pts,
			point{float64(left), fy}, point{float64(left), fy + 1},
			point{float64(right + 1), fy}, point{float64(right + 1), fy + 1},
		)
	}
	return pts
}

// rotate turns the page by deg degrees about its centre. Samples that fall
// outside the page take the nearest edge pixel.
func rotate(src *image.RGBA, deg float64) *image.RGBA {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	margin := int(math.Ceil(math.Hypot(float64(w), float64(h))/2-math.Min(float64(w), float64(h))/2)) + 3
	padded := replicatePad(src, margin)

	rad := deg * math.Pi / 180
	cos, sin := math.Cos(rad), math.Sin(rad)
	cx, cy := float64(w)/2, float64(h)/2
	px, py := cx+float64(margin), cy+float64(margin)
	s2d := f64.Aff3{
		cos, -sin, cx - (cos*px - sin*py),
		sin, cos, cy - (sin*px + cos*py),
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Transform(dst, s2d, padded, padded.Bounds(), xdraw.Src, nil)
	return dst
}

// replicatePad returns src surrounded by margin pixels copied from its edges.
func replicatePad(src *image.RGBA, margin int) *image.RGBA {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	pw := w + 2*margin
	dst := image.NewRGBA(image.Rect(0, 0, pw, h+2*margin))
	for y := 0; y < dst.Rect.Dy(); y++ {
		sy := min(max(y-margin, 0), h-1)
		srow := src.Pix[sy*src.Stride : sy*src.Stride+w*4]
		drow := dst.Pix[y*dst.Stride : y*dst.Stride+pw*4]
		copy(drow[margin*4:], srow)
		for x := 0; x < margin; x++ {
			copy(drow[x*4:x*4+4], srow[:4])
			copy(drow[(margin+w+x)*4:(margin+w+x)*4+4], srow[(w-1)*4:])
		}
	}
	return dst
}
