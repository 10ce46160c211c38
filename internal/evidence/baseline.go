package evidence

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/nfnt/resize"

	"github.com/nwtk/flowrec/internal/model"
)

const thumbnailWidth = 320

// baselineDiff owns baseline bookkeeping for visual verification: baselines
// live one PNG per label under dir, are seeded from the first capture when
// updateIfMissing allows it, and later captures are compared against them.
// It is independent of the browser so the rod source and tests share it.
type baselineDiff struct {
	dir       string
	threshold float64
	cmp       Comparator
}

func (d *baselineDiff) diff(label, currentRef string, updateIfMissing bool) (model.VisualVerdict, error) {
	verdict := model.VisualVerdict{Label: label}
	baselinePath := filepath.Join(d.dir, label+"_baseline.png")

	_, err := os.Stat(baselinePath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if !updateIfMissing {
			verdict.ErrorDetail = "baseline missing"
			return verdict, nil
		}
		if err := copyFile(currentRef, baselinePath); err != nil {
			return verdict, fmt.Errorf("seed baseline %s: %w", label, err)
		}
		verdict.Passed = true
		return verdict, nil
	case err != nil:
		return verdict, fmt.Errorf("stat baseline %s: %w", label, err)
	}

	baseline, err := loadImage(baselinePath)
	if err != nil {
		return verdict, fmt.Errorf("load baseline %s: %w", label, err)
	}
	current, err := loadImage(currentRef)
	if err != nil {
		return verdict, fmt.Errorf("load current %s: %w", label, err)
	}

	ratio, err := d.cmp.Compare(baseline, current)
	if err != nil {
		verdict.ErrorDetail = err.Error()
		return verdict, nil
	}
	verdict.MismatchRatio = ratio
	verdict.Passed = ratio <= d.threshold
	return verdict, nil
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, err
	}
	return img, nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o600)
}

// writeThumbnail renders a small preview next to full-size captures so
// listing views never need the originals.
func writeThumbnail(img image.Image, dst string) error {
	thumb := resize.Resize(thumbnailWidth, 0, img, resize.Lanczos3)
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	if err := png.Encode(f, thumb); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
