// Package imaging turns stored documents into raster pages, restores them and
// reassembles restored pages into PDFs.
package imaging

// Policy holds the fixed constants of page extraction and restoration.
// A zero field means "use the default".
type Policy struct {
	// RenderScale multiplies PDF page dimensions (in points) into pixels.
	RenderScale float64
	// BackgroundLevel is the luma at or above which a pixel counts as page
	// background for deskew.
	BackgroundLevel uint8
	// MinDeskewAngle is the smallest correction (degrees) worth rotating for.
	MinDeskewAngle float64
	// ClipLimit and TileGrid configure adaptive histogram equalization.
	ClipLimit float64
	TileGrid  int
	// DeblurBalance is the Wiener regularization weight.
	DeblurBalance float64
	// MaxWidth is the width restored pages are downscaled to.
	MaxWidth int
	// JPEGQuality is used when embedding pages into reassembled PDFs.
	JPEGQuality int
}

// DefaultPolicy returns the production restoration constants.
func DefaultPolicy() Policy {
	return Policy{
		RenderScale:     2.0,
		BackgroundLevel: 250,
		MinDeskewAngle:  0.05,
		ClipLimit:       2.0,
		TileGrid:        8,
		DeblurBalance:   0.1,
		MaxWidth:        1800,
		JPEGQuality:     90,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.RenderScale <= 0 {
		p.RenderScale = d.RenderScale
	}
	if p.BackgroundLevel == 0 {
		p.BackgroundLevel = d.BackgroundLevel
	}
	if p.MinDeskewAngle <= 0 {
		p.MinDeskewAngle = d.MinDeskewAngle
	}
	if p.ClipLimit <= 0 {
		p.ClipLimit = d.ClipLimit
	}
	if p.TileGrid <= 0 {
		p.TileGrid = d.TileGrid
	}
	if p.DeblurBalance <= 0 {
		p.DeblurBalance = d.DeblurBalance
	}
	if p.MaxWidth <= 0 {
		p.MaxWidth = d.MaxWidth
	}
	if p.JPEGQuality <= 0 || p.JPEGQuality > 100 {
		p.JPEGQuality = d.JPEGQuality
	}
	return p
}
