package evidence

import (
	"bytes"
	"fmt"
	"image"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/nwtk/flowrec/internal/model"
)

// Options configures the rod-backed source.
type Options struct {
	ScreenshotDir string
	BaselineDir   string
	ThumbnailDir  string
	Width         int
	Height        int
	Headless      bool
	// Threshold is the mismatch ratio above which a diff fails.
	Threshold float64
	// SettleTimeout bounds the post-navigation network-idle wait so
	// persistent connections cannot hang a recording step.
	SettleTimeout time.Duration
}

// RodSource captures evidence from a Chromium instance driven by rod.
// Start launches the browser; Capture screenshots the current page; Diff
// compares captures against stored baselines.
type RodSource struct {
	opts    Options
	diffs   *baselineDiff
	logger  *slog.Logger
	browser *rod.Browser
	page    *rod.Page
}

func NewRodSource(opts Options, cmp Comparator, logger *slog.Logger) *RodSource {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Width == 0 {
		opts.Width = 1920
	}
	if opts.Height == 0 {
		opts.Height = 1080
	}
	if opts.SettleTimeout == 0 {
		opts.SettleTimeout = 5 * time.Second
	}
	if cmp == nil {
		cmp = GridComparator{}
	}
	return &RodSource{
		opts:   opts,
		logger: logger,
		diffs: &baselineDiff{
			dir:       opts.BaselineDir,
			threshold: opts.Threshold,
			cmp:       cmp,
		},
	}
}

func (s *RodSource) Start() error {
	for _, dir := range []string{s.opts.ScreenshotDir, s.opts.BaselineDir, s.opts.ThumbnailDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create evidence dir: %w", err)
		}
	}

	bin, has := launcher.LookPath()
	if !has {
		return fmt.Errorf("%w: no chromium binary found", ErrUnavailable)
	}
	controlURL, err := launcher.New().Bin(bin).Headless(s.opts.Headless).Launch()
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect browser: %w", err)
	}
	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		browser.Close() //nolint:errcheck
		return fmt.Errorf("open page: %w", err)
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             s.opts.Width,
		Height:            s.opts.Height,
		DeviceScaleFactor: 1,
	}); err != nil {
		browser.Close() //nolint:errcheck
		return fmt.Errorf("set viewport: %w", err)
	}

	s.browser = browser
	s.page = page
	return nil
}

func (s *RodSource) Stop() error {
	var firstErr error
	if s.page != nil {
		if err := s.page.Close(); err != nil {
			firstErr = err
		}
		s.page = nil
	}
	if s.browser != nil {
		if err := s.browser.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.browser = nil
	}
	return firstErr
}

// Navigate loads url in the capture page and waits for it to settle.
func (s *RodSource) Navigate(url string, waitSeconds float64) error {
	if s.page == nil {
		return ErrUnavailable
	}
	if err := s.page.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := s.page.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	// Bounded idle wait; SPAs keep sockets open forever.
	s.page.Timeout(s.opts.SettleTimeout).WaitRequestIdle(500*time.Millisecond, nil, nil, nil)()
	if waitSeconds > 0 {
		time.Sleep(time.Duration(waitSeconds * float64(time.Second)))
	}
	return nil
}

func (s *RodSource) Capture(label string) (string, error) {
	if s.page == nil {
		return "", ErrUnavailable
	}
	data, err := s.page.Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return "", fmt.Errorf("screenshot %s: %w", label, err)
	}

	path := filepath.Join(s.opts.ScreenshotDir, label+".png")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write screenshot %s: %w", label, err)
	}

	if s.opts.ThumbnailDir != "" {
		if err := s.writeThumbnailFor(label, data); err != nil {
			s.logger.Warn("thumbnail generation failed", "label", label, "error", err)
		}
	}
	return path, nil
}

func (s *RodSource) Diff(label, currentRef string, updateIfMissing bool) (model.VisualVerdict, error) {
	return s.diffs.diff(label, currentRef, updateIfMissing)
}

func (s *RodSource) writeThumbnailFor(label string, data []byte) error {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return err
	}
	return writeThumbnail(img, filepath.Join(s.opts.ThumbnailDir, label+"_thumb.png"))
}
