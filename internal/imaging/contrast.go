package imaging

import (
	"image"
	"image/color"
	"math"
)

// ContrastStage equalizes the luma channel with contrast-limited adaptive
// histogram equalization, leaving chroma untouched.
type ContrastStage struct {
	ClipLimit float64
	TileGrid  int
}

func (s *ContrastStage) Name() string { return "contrast" }

func (s *ContrastStage) Apply(img *image.RGBA) (*image.RGBA, error) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	n := w * h
	ys, cbs, crs := make([]uint8, n), make([]uint8, n), make([]uint8, n)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*img.Stride + x*4
			ys[y*w+x], cbs[y*w+x], crs[y*w+x] = color.RGBToYCbCr(img.Pix[i], img.Pix[i+1], img.Pix[i+2])
		}
	}

	eq := clahe(ys, w, h, s.TileGrid, s.ClipLimit)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			j := y*w + x
			i := y*dst.Stride + x*4
			r, g, b := color.YCbCrToRGB(eq[j], cbs[j], crs[j])
			dst.Pix[i], dst.Pix[i+1], dst.Pix[i+2], dst.Pix[i+3] = r, g, b, img.Pix[y*img.Stride+x*4+3]
		}
	}
	return dst, nil
}

// clahe equalizes an 8-bit plane using grid x grid tiles. Each tile histogram
// is clipped at clipLimit times the uniform bin height, the excess spread
// evenly, and pixels are mapped by bilinear interpolation between the four
// nearest tile mappings.
func clahe(plane []uint8, w, h, grid int, clipLimit float64) []uint8 {
	tilesX, tilesY := min(grid, w), min(grid, h)
	tw := float64(w) / float64(tilesX)
	th := float64(h) / float64(tilesY)

	luts := make([][256]uint8, tilesX*tilesY)
	for ty := 0; ty < tilesY; ty++ {
		y0, y1 := int(float64(ty)*th), int(float64(ty+1)*th)
		for tx := 0; tx < tilesX; tx++ {
			x0, x1 := int(float64(tx)*tw), int(float64(tx+1)*tw)
			luts[ty*tilesX+tx] = tileLUT(plane, w, x0, y0, x1, y1, clipLimit)
		}
	}

	out := make([]uint8, len(plane))
	for y := 0; y < h; y++ {
		fy := (float64(y)+0.5)/th - 0.5
		ty1 := int(math.Floor(fy))
		ya := fy - float64(ty1)
		ty2 := min(ty1+1, tilesY-1)
		ty1 = max(ty1, 0)
		for x := 0; x < w; x++ {
			fx := (float64(x)+0.5)/tw - 0.5
			tx1 := int(math.Floor(fx))
			xa := fx - float64(tx1)
			tx2 := min(tx1+1, tilesX-1)
			tx1 = max(tx1, 0)

			v := plane[y*w+x]
			top := (1-xa)*float64(luts[ty1*tilesX+tx1][v]) + xa*float64(luts[ty1*tilesX+tx2][v])
			bot := (1-xa)*float64(luts[ty2*tilesX+tx1][v]) + xa*float64(luts[ty2*tilesX+tx2][v])
			out[y*w+x] = uint8(math.Round((1-ya)*top + ya*bot))
		}
	}
	return out
}

func tileLUT(plane []uint8, stride, x0, y0, x1, y1 int, clipLimit float64) [256]uint8 {
	var hist [256]int
	for y := y0; y < y1; y++ {
		for _, v := range plane[y*stride+x0 : y*stride+x1] {
			hist[v]++
		}
	}
	area := (x1 - x0) * (y1 - y0)
	var lut [256]uint8
	if area == 0 {
		for i := range lut {
			lut[i] = uint8(i)
		}
		return lut
	}

	limit := max(int(clipLimit*float64(area)/256), 1)
	excess := 0
	for i, c := range hist {
		if c > limit {
			excess += c - limit
			hist[i] = limit
		}
	}
	perBin, residual := excess/256, excess%256
	for i := range hist {
		hist[i] += perBin
	}
	if residual > 0 {
		step := max(256/residual, 1)
		for i := 0; i < 256 && residual > 0; i += step {
			hist[i]++
			residual--
		}
	}

	scale := 255.0 / float64(area)
	sum := 0
	for i, c := range hist {
		sum += c
		lut[i] = uint8(min(math.Round(float64(sum)*scale), 255))
	}
	return lut
}
