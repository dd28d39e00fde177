package imgmatch

import (
	"errors"
	"image"
	"path/filepath"
	"testing"
)

func TestLoadTemplateRoundtrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "button.png")

	src := solid(16, 12, berry)
	if err := Save(src, path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	tmpl, err := LoadTemplate(path, image.Rectangle{}, image.Point{})
	if err != nil {
		t.Fatalf("LoadTemplate: %v", err)
	}
	if got := tmpl.Image.Bounds().Size(); got != image.Pt(16, 12) {
		t.Fatalf("template size = %v, want (16,12)", got)
	}
	if tmpl.Path != path {
		t.Fatalf("template path = %q, want %q", tmpl.Path, path)
	}
	if got := tmpl.Image.NRGBAAt(8, 6); got != berry {
		t.Fatalf("pixel (8,6) = %v, want %v", got, berry)
	}
}

func TestLoadTemplateMissing(t *testing.T) {
	_, err := LoadTemplate(filepath.Join(t.TempDir(), "nope.png"), image.Rectangle{}, image.Point{})
	if err == nil {
		t.Fatal("missing file accepted")
	}
}

func TestSaveUnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "button.bmp")
	if err := Save(solid(4, 4, berry), path); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestCenterAt(t *testing.T) {
	tmpl := NewTemplate(solid(16, 12, berry), image.Rectangle{})
	if got := tmpl.CenterAt(image.Pt(100, 60)); got != image.Pt(108, 66) {
		t.Fatalf("center = %v, want (108,66)", got)
	}

	one := NewTemplate(solid(1, 1, berry), image.Rectangle{})
	if got := one.CenterAt(image.Pt(5, 7)); got != image.Pt(5, 7) {
		t.Fatalf("1x1 center = %v, want (5,7)", got)
	}
}

func TestBoundRescalesForSmallerScreen(t *testing.T) {
	// Captured at 120x80, matched on a 60x40 frame: the 16x12 template
	// shrinks to 8x6 before the first search.
	tmpl := NewTemplate(solid(16, 12, berry), image.Rectangle{})
	tmpl.RefSize = image.Pt(120, 80)

	frame := solid(60, 40, black)
	paste(frame, solid(8, 6, berry), image.Pt(10, 5))

	b := NewBound(tmpl, 0.9)
	res, err := b.Find(frame)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if got := tmpl.Image.Bounds().Size(); got != image.Pt(8, 6) {
		t.Fatalf("rescaled size = %v, want (8,6)", got)
	}
	if !res.Found || res.Point != image.Pt(14, 8) {
		t.Fatalf("match = %+v, want found at center (14,8)", res)
	}

	// A later frame with another size must not rescale again.
	res, err = b.Find(solid(30, 20, black))
	if err != nil {
		t.Fatalf("second Find: %v", err)
	}
	if res.Found {
		t.Fatalf("blank frame matched at %v", res.Point)
	}
	if got := tmpl.Image.Bounds().Size(); got != image.Pt(8, 6) {
		t.Fatalf("size after second frame = %v, want (8,6)", got)
	}
}

func TestBoundSkipsRescaleAtReferenceSize(t *testing.T) {
	tmpl := NewTemplate(solid(16, 12, berry), image.Rectangle{})
	tmpl.RefSize = image.Pt(60, 40)

	frame := solid(60, 40, black)
	paste(frame, solid(16, 12, berry), image.Pt(20, 10))

	res, err := NewBound(tmpl, 0.9).Find(frame)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if got := tmpl.Image.Bounds().Size(); got != image.Pt(16, 12) {
		t.Fatalf("template size = %v, want unchanged (16,12)", got)
	}
	if !res.Found || res.Point != image.Pt(28, 16) {
		t.Fatalf("match = %+v, want found at center (28,16)", res)
	}
}
