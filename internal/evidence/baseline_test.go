package evidence

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func writePNG(t *testing.T, path string, w, h int, c color.RGBA) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close %s: %v", path, err)
	}
}

func newDiff(t *testing.T, threshold float64) (*baselineDiff, string) {
	t.Helper()
	dir := t.TempDir()
	return &baselineDiff{dir: filepath.Join(dir, "baseline"), threshold: threshold, cmp: GridComparator{}}, dir
}

func TestDiffSeedsMissingBaseline(t *testing.T) {
	d, dir := newDiff(t, 0.05)
	if err := os.MkdirAll(d.dir, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	current := filepath.Join(dir, "current.png")
	writePNG(t, current, 32, 32, color.RGBA{R: 200, G: 200, B: 200, A: 255})

	verdict, err := d.diff("login_000", current, true)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if !verdict.Passed || verdict.MismatchRatio != 0 {
		t.Fatalf("seeding verdict should pass: %+v", verdict)
	}
	if _, err := os.Stat(filepath.Join(d.dir, "login_000_baseline.png")); err != nil {
		t.Fatalf("baseline not seeded: %v", err)
	}
}

func TestDiffMissingBaselineWithoutUpdate(t *testing.T) {
	d, dir := newDiff(t, 0.05)
	if err := os.MkdirAll(d.dir, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	current := filepath.Join(dir, "current.png")
	writePNG(t, current, 32, 32, color.RGBA{A: 255})

	verdict, err := d.diff("login_000", current, false)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if verdict.Passed || verdict.ErrorDetail == "" {
		t.Fatalf("expected failing verdict with detail: %+v", verdict)
	}
}

func TestDiffAgainstBaseline(t *testing.T) {
	d, dir := newDiff(t, 0.05)
	if err := os.MkdirAll(d.dir, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writePNG(t, filepath.Join(d.dir, "page_baseline.png"), 32, 32, color.RGBA{R: 10, G: 10, B: 10, A: 255})

	same := filepath.Join(dir, "same.png")
	writePNG(t, same, 32, 32, color.RGBA{R: 10, G: 10, B: 10, A: 255})
	verdict, err := d.diff("page", same, false)
	if err != nil {
		t.Fatalf("diff same: %v", err)
	}
	if !verdict.Passed || verdict.MismatchRatio != 0 {
		t.Fatalf("identical images should pass: %+v", verdict)
	}

	changed := filepath.Join(dir, "changed.png")
	writePNG(t, changed, 32, 32, color.RGBA{R: 250, G: 250, B: 250, A: 255})
	verdict, err = d.diff("page", changed, false)
	if err != nil {
		t.Fatalf("diff changed: %v", err)
	}
	if verdict.Passed || verdict.MismatchRatio <= 0.05 {
		t.Fatalf("fully changed image should fail: %+v", verdict)
	}
}

func TestDiffSizeMismatchIsVerdictDetail(t *testing.T) {
	d, dir := newDiff(t, 0.05)
	if err := os.MkdirAll(d.dir, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writePNG(t, filepath.Join(d.dir, "page_baseline.png"), 32, 32, color.RGBA{A: 255})
	current := filepath.Join(dir, "current.png")
	writePNG(t, current, 16, 16, color.RGBA{A: 255})

	verdict, err := d.diff("page", current, false)
	if err != nil {
		t.Fatalf("size mismatch should degrade, not error: %v", err)
	}
	if verdict.Passed || verdict.ErrorDetail == "" {
		t.Fatalf("expected failing verdict with size detail: %+v", verdict)
	}
}

func TestGridComparatorTolerance(t *testing.T) {
	a := image.NewRGBA(image.Rect(0, 0, 16, 16))
	b := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			a.Set(x, y, color.RGBA{R: 100, G: 100, B: 100, A: 255})
			// Below the default per-channel tolerance.
			b.Set(x, y, color.RGBA{R: 103, G: 100, B: 98, A: 255})
		}
	}
	ratio, err := GridComparator{}.Compare(a, b)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if ratio != 0 {
		t.Fatalf("sub-tolerance noise should not count: %v", ratio)
	}
}

func TestWriteThumbnail(t *testing.T) {
	dir := t.TempDir()
	img := image.NewRGBA(image.Rect(0, 0, 640, 480))
	dst := filepath.Join(dir, "thumb.png")
	if err := writeThumbnail(img, dst); err != nil {
		t.Fatalf("writeThumbnail: %v", err)
	}
	thumb, err := loadImage(dst)
	if err != nil {
		t.Fatalf("load thumbnail: %v", err)
	}
	if thumb.Bounds().Dx() != thumbnailWidth {
		t.Fatalf("thumbnail width = %d, want %d", thumb.Bounds().Dx(), thumbnailWidth)
	}
}
