// Package evidence supplies screenshot capture and visual-diff verdicts to
// the recorder. The recorder only sees the Source interface; a failing or
// absent source degrades recording (missing evidence fields), never aborts it.
package evidence

import (
	"errors"

	"github.com/nwtk/flowrec/internal/model"
)

// ErrUnavailable is returned when the evidence source has not been started
// or its browser is gone.
var ErrUnavailable = errors.New("evidence source unavailable")

// Source produces screenshot artifacts and visual-diff verdicts.
// Timeouts are the source's own responsibility; callers treat any error as
// a soft failure.
type Source interface {
	// Start acquires the underlying browser. An error puts the session in
	// degraded mode; it does not abort recording.
	Start() error
	Stop() error
	// Capture takes a screenshot and returns a durable artifact reference
	// (a file path for the rod implementation).
	Capture(label string) (string, error)
	// Diff compares the referenced artifact against the stored baseline for
	// label. When the baseline is missing and updateIfMissing is set, the
	// artifact becomes the baseline and the verdict passes.
	Diff(label, currentRef string, updateIfMissing bool) (model.VisualVerdict, error)
}

// Navigator is implemented by sources that can drive the live page. The
// recorder uses it so a recorded navigation actually happens against the
// browser that will be screenshotted.
type Navigator interface {
	Navigate(url string, waitSeconds float64) error
}
