package imgmatch

import (
	"fmt"
	"image"

	"github.com/nfnt/resize"
)

// Template is a reference image to locate on screen. Region, when not
// empty, restricts the search to that frame rectangle. RefSize, when set,
// is the screen resolution the template was captured at; the template is
// rescaled once by the frame/reference ratio when the first frame arrives.
type Template struct {
	Image   *image.NRGBA
	Region  image.Rectangle
	RefSize image.Point
	Path    string

	scaled bool
}

// LoadTemplate reads the template image from path.
func LoadTemplate(path string, region image.Rectangle, refSize image.Point) (*Template, error) {
	img, err := Open(path)
	if err != nil {
		return nil, fmt.Errorf("load template: %w", err)
	}
	return &Template{Image: img, Region: region, RefSize: refSize, Path: path}, nil
}

// NewTemplate wraps an in-memory image.
func NewTemplate(img image.Image, region image.Rectangle) *Template {
	return &Template{Image: AsNRGBA(img), Region: region}
}

// CenterAt maps a match's top-left corner to the template center, the
// point worth tapping.
func (t *Template) CenterAt(topLeft image.Point) image.Point {
	b := t.Image.Bounds()
	return image.Pt(topLeft.X+b.Dx()/2, topLeft.Y+b.Dy()/2)
}

// fitTo rescales the template image for the actual frame size, once.
func (t *Template) fitTo(frameSize image.Point) {
	if t.scaled || t.RefSize == (image.Point{}) {
		return
	}
	t.scaled = true
	if t.RefSize == frameSize {
		return
	}

	b := t.Image.Bounds()
	w := b.Dx() * frameSize.X / t.RefSize.X
	h := b.Dy() * frameSize.Y / t.RefSize.Y
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	t.Image = AsNRGBA(resize.Resize(uint(w), uint(h), t.Image, resize.Lanczos3))
}

// Bound ties a template and threshold into a per-frame matcher.
type Bound struct {
	Tmpl      *Template
	Threshold float64
}

func NewBound(tmpl *Template, threshold float64) *Bound {
	return &Bound{Tmpl: tmpl, Threshold: threshold}
}

// Find searches one frame. On a hit the returned point is the template
// center in frame coordinates.
func (b *Bound) Find(frame image.Image) (Result, error) {
	b.Tmpl.fitTo(frame.Bounds().Size())

	src := AsNRGBA(frame)
	var search image.Image = src
	if !b.Tmpl.Region.Empty() {
		reg := src.Bounds().Intersect(b.Tmpl.Region)
		if reg.Empty() {
			return Result{}, fmt.Errorf("%w: region %v outside frame %v",
				ErrGeometry, b.Tmpl.Region, src.Bounds())
		}
		search = src.SubImage(reg)
	}

	res, err := Find(search, b.Tmpl.Image, b.Threshold)
	if err != nil || !res.Found {
		return res, err
	}
	res.Point = b.Tmpl.CenterAt(res.Point)
	return res, nil
}
