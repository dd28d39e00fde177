package imgmatch

import (
	"errors"
	"fmt"
	"image"
	"runtime"
	"sync"
)

// Result is the outcome of one template search. Point is the top-left
// corner of the best match in frame coordinates and is only valid when
// Found; Score is the similarity in [0,1], 0 when nothing cleared the
// threshold.
type Result struct {
	Found bool
	Point image.Point
	Score float64
}

// ErrGeometry means the template and frame shapes cannot be compared.
var ErrGeometry = errors.New("template does not fit the frame")

// Worst possible squared difference of one RGB pixel; alpha is ignored.
const maxPixelDiff = 255 * 255 * 3

// Find locates tmpl inside frame. A position counts as a match when its
// similarity reaches threshold; the threshold also bounds the per-position
// early abort, so high thresholds search faster. Rows are swept by one
// worker per CPU and the result is deterministic: ties resolve to the
// lowest y, then x.
func Find(frame, tmpl image.Image, threshold float64) (Result, error) {
	if threshold < 0 || threshold > 1 {
		return Result{}, fmt.Errorf("threshold %v outside [0,1]", threshold)
	}

	src := AsNRGBA(frame)
	sub := AsNRGBA(tmpl)

	tw, th := sub.Rect.Dx(), sub.Rect.Dy()
	if tw <= 0 || th <= 0 {
		return Result{}, fmt.Errorf("%w: empty template", ErrGeometry)
	}
	if tw > src.Rect.Dx() || th > src.Rect.Dy() {
		return Result{}, fmt.Errorf("%w: template %dx%d, frame %dx%d",
			ErrGeometry, tw, th, src.Rect.Dx(), src.Rect.Dy())
	}

	startX, startY := src.Rect.Min.X, src.Rect.Min.Y
	endX := src.Rect.Max.X - tw // inclusive
	endY := src.Rect.Max.Y - th // inclusive

	maxDiff := int64(tw) * int64(th) * maxPixelDiff
	limit := int64((1 - threshold) * float64(maxDiff))

	type candidate struct {
		diff int64
		pt   image.Point
	}

	rows := endY - startY + 1
	workers := runtime.GOMAXPROCS(0)
	if workers > rows {
		workers = rows
	}
	chunk := (rows + workers - 1) / workers
	found := make([]candidate, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			lo := startY + w*chunk
			hi := lo + chunk
			if hi > endY+1 {
				hi = endY + 1
			}
			best := candidate{diff: limit + 1}
			for y := lo; y < hi; y++ {
				for x := startX; x <= endX; x++ {
					d := diffAt(src, sub, x, y, best.diff-1)
					if d < best.diff {
						best.diff = d
						best.pt = image.Pt(x, y)
					}
				}
			}
			found[w] = best
		}(w)
	}
	wg.Wait()

	best := candidate{diff: limit + 1}
	for _, c := range found {
		if c.diff < best.diff {
			best = c
		}
	}

	if best.diff > limit {
		return Result{}, nil
	}
	return Result{
		Found: true,
		Point: best.pt,
		Score: 1 - float64(best.diff)/float64(maxDiff),
	}, nil
}

// diffAt sums the squared RGB differences of sub laid over img at
// (offX, offY), aborting once the sum exceeds limit. The caller must keep
// the overlay inside img's bounds.
func diffAt(img, sub *image.NRGBA, offX, offY int, limit int64) int64 {
	w, h := sub.Rect.Dx(), sub.Rect.Dy()

	var diff int64
	for y := 0; y < h; y++ {
		oi := img.PixOffset(offX, offY+y)
		si := sub.PixOffset(sub.Rect.Min.X, sub.Rect.Min.Y+y)
		for x := 0; x < w; x++ {
			diff += sq(img.Pix[oi+0], sub.Pix[si+0])
			diff += sq(img.Pix[oi+1], sub.Pix[si+1])
			diff += sq(img.Pix[oi+2], sub.Pix[si+2])
			if diff > limit {
				return diff
			}
			oi += 4
			si += 4
		}
	}
	return diff
}

func sq(a, b uint8) int64 {
	d := int64(a) - int64(b)
	return d * d
}
