package evidence

import (
	"fmt"
	"image"
)

// Comparator computes the fraction of differing pixels between a baseline
// and a current screenshot. The real pixel-diff algorithm is an external
// collaborator; anything satisfying this interface can be injected.
type Comparator interface {
	Compare(baseline, current image.Image) (float64, error)
}

// GridComparator is a coarse stand-in comparator: it samples the image on a
// fixed grid and counts samples whose channels differ beyond a tolerance.
// Good enough to catch gross layout regressions without an image-processing
// dependency; swap in a real comparator for pixel-precise work.
type GridComparator struct {
	// Step is the sampling stride in pixels. Zero means 2.
	Step int
	// Tolerance is the per-channel 8-bit delta treated as equal. Zero means 8.
	Tolerance int
}

func (c GridComparator) Compare(baseline, current image.Image) (float64, error) {
	bb, cb := baseline.Bounds(), current.Bounds()
	if bb.Dx() != cb.Dx() || bb.Dy() != cb.Dy() {
		return 0, fmt.Errorf("image size mismatch: %dx%d vs %dx%d", bb.Dx(), bb.Dy(), cb.Dx(), cb.Dy())
	}
	step := c.Step
	if step <= 0 {
		step = 2
	}
	tolerance := uint32(c.Tolerance)
	if tolerance == 0 {
		tolerance = 8
	}

	var sampled, mismatched int
	for y := 0; y < bb.Dy(); y += step {
		for x := 0; x < bb.Dx(); x += step {
			sampled++
			br, bg, bbl, _ := baseline.At(bb.Min.X+x, bb.Min.Y+y).RGBA()
			cr, cg, cbl, _ := current.At(cb.Min.X+x, cb.Min.Y+y).RGBA()
			if delta8(br, cr) > tolerance || delta8(bg, cg) > tolerance || delta8(bbl, cbl) > tolerance {
				mismatched++
			}
		}
	}
	if sampled == 0 {
		return 0, nil
	}
	return float64(mismatched) / float64(sampled), nil
}

func delta8(a, b uint32) uint32 {
	a >>= 8
	b >>= 8
	if a > b {
		return a - b
	}
	return b - a
}
