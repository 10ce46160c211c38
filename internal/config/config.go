package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	DataDir        string
	FlowsDBPath    string
	FlowsDir       string
	ScreenshotsDir string
	BaselineDir    string
	ThumbnailsDir  string

	ViewportWidth  int
	ViewportHeight int
	Headless       bool

	VisualThreshold float64
	UpdateBaseline  bool

	NavigationSettle time.Duration
}

func DefaultConfig() Config {
	dataDir := defaultDataDir()
	return Config{
		DataDir:          dataDir,
		FlowsDBPath:      filepath.Join(dataDir, "flows.db"),
		FlowsDir:         filepath.Join(dataDir, "flows"),
		ScreenshotsDir:   filepath.Join(dataDir, "screenshots"),
		BaselineDir:      filepath.Join(dataDir, "baseline"),
		ThumbnailsDir:    filepath.Join(dataDir, "thumbnails"),
		ViewportWidth:    1920,
		ViewportHeight:   1080,
		Headless:         true,
		VisualThreshold:  0.05,
		UpdateBaseline:   true,
		NavigationSettle: 5 * time.Second,
	}
}

// FromEnv layers FLOWREC_* environment overrides onto the defaults. Unset
// variables keep their default; malformed values are an error rather than a
// silent fallback.
func FromEnv() (Config, error) {
	cfg := DefaultConfig()
	if v := os.Getenv("FLOWREC_DATA_DIR"); v != "" {
		cfg.DataDir = v
		cfg.FlowsDBPath = filepath.Join(v, "flows.db")
		cfg.FlowsDir = filepath.Join(v, "flows")
		cfg.ScreenshotsDir = filepath.Join(v, "screenshots")
		cfg.BaselineDir = filepath.Join(v, "baseline")
		cfg.ThumbnailsDir = filepath.Join(v, "thumbnails")
	}
	if v := os.Getenv("FLOWREC_DB_PATH"); v != "" {
		cfg.FlowsDBPath = v
	}
	if v := os.Getenv("FLOWREC_VIEWPORT_WIDTH"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("FLOWREC_VIEWPORT_WIDTH: %q is not a positive integer", v)
		}
		cfg.ViewportWidth = n
	}
	if v := os.Getenv("FLOWREC_VIEWPORT_HEIGHT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("FLOWREC_VIEWPORT_HEIGHT: %q is not a positive integer", v)
		}
		cfg.ViewportHeight = n
	}
	if v := os.Getenv("FLOWREC_HEADLESS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("FLOWREC_HEADLESS: %q is not a boolean", v)
		}
		cfg.Headless = b
	}
	if v := os.Getenv("FLOWREC_VISUAL_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			return Config{}, fmt.Errorf("FLOWREC_VISUAL_THRESHOLD: %q is not in [0,1]", v)
		}
		cfg.VisualThreshold = f
	}
	if v := os.Getenv("FLOWREC_UPDATE_BASELINE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("FLOWREC_UPDATE_BASELINE: %q is not a boolean", v)
		}
		cfg.UpdateBaseline = b
	}
	if v := os.Getenv("FLOWREC_NAVIGATION_SETTLE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("FLOWREC_NAVIGATION_SETTLE: %q is not a positive duration", v)
		}
		cfg.NavigationSettle = d
	}
	return cfg, nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "flowrec-data"
	}
	return filepath.Join(home, ".local", "share", "flowrec")
}
