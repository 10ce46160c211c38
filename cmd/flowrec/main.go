package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/nwtk/flowrec/internal/config"
	"github.com/nwtk/flowrec/internal/evidence"
	"github.com/nwtk/flowrec/internal/notify"
	"github.com/nwtk/flowrec/internal/recorder"
	"github.com/nwtk/flowrec/internal/store"
)

var (
	backend  string
	name     string
	describe string
	script   string
	headed   bool
	verbose  bool
)

func main() {
	// Load .env if present; absence is fine.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "flowrec",
		Short: "Record browser flows with screenshots and visual verification",
	}
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "sqlite", "Flow storage backend: sqlite, files")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")

	recordCmd := &cobra.Command{
		Use:   "record <url>",
		Short: "Record a flow by running a step script against a page",
		Long: `Starts a recording session, navigates to the URL, then executes the
steps from --script (or stdin), one per line:

  navigate <url>
  click <selector>
  input <selector> <text...>
  wait <seconds>
  verify <check> <expected...>`,
		Args: cobra.ExactArgs(1),
		RunE: runRecord,
	}
	recordCmd.Flags().StringVar(&name, "name", "recorded flow", "Flow name")
	recordCmd.Flags().StringVar(&describe, "description", "", "Flow description")
	recordCmd.Flags().StringVar(&script, "script", "", "Step script file (default: stdin)")
	recordCmd.Flags().BoolVar(&headed, "headed", false, "Run the browser with a visible window")
	rootCmd.AddCommand(recordCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List recorded flows, newest first",
		Args:  cobra.NoArgs,
		RunE:  runList,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "show <flow-id>",
		Short: "Print one recorded flow as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runShow,
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Store, error) {
	switch backend {
	case "sqlite":
		return store.OpenSQLite(ctx, cfg.FlowsDBPath)
	case "files":
		return store.OpenFileStore(cfg.FlowsDir, logger)
	default:
		return nil, fmt.Errorf("unknown backend %q (want sqlite or files)", backend)
	}
}

func runRecord(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := newLogger()
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	if headed {
		cfg.Headless = false
	}

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	hub := notify.NewHub(logger)
	hub.Subscribe(notify.ActionRecorded, func(ev notify.Event) {
		fmt.Printf("  [%s] %s\n", ev.Action.ID, ev.Action.Kind)
	})

	src := evidence.NewRodSource(evidence.Options{
		ScreenshotDir: cfg.ScreenshotsDir,
		BaselineDir:   cfg.BaselineDir,
		ThumbnailDir:  cfg.ThumbnailsDir,
		Width:         cfg.ViewportWidth,
		Height:        cfg.ViewportHeight,
		Headless:      cfg.Headless,
		Threshold:     cfg.VisualThreshold,
		SettleTimeout: cfg.NavigationSettle,
	}, nil, logger)

	rec := recorder.New(st, src, hub, logger, recorder.Options{UpdateBaseline: cfg.UpdateBaseline})
	flowID, err := rec.Start(name, describe, nil)
	if err != nil {
		return err
	}
	fmt.Printf("recording %s\n", flowID)
	if !rec.EvidenceActive() {
		fmt.Println("  (no browser available; recording without screenshots)")
	}

	if _, err := rec.RecordNavigation(args[0], 0); err != nil {
		return err
	}
	if err := runSteps(rec); err != nil {
		// Persist what was recorded before reporting the script error.
		if _, stopErr := rec.Stop(ctx); stopErr != nil {
			logger.Error("stop after script error", "error", stopErr)
		}
		return err
	}

	flow, err := rec.Stop(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("saved %s: %d actions, %d screenshots, status %s\n",
		flow.ID, len(flow.Actions), len(flow.EvidenceRefs), flow.Status)
	return nil
}

func runSteps(rec *recorder.Recorder) error {
	in := os.Stdin
	if script != "" {
		f, err := os.Open(script)
		if err != nil {
			return fmt.Errorf("open script: %w", err)
		}
		defer f.Close() //nolint:errcheck
		in = f
	}

	scanner := bufio.NewScanner(in)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := runStep(rec, line); err != nil {
			return fmt.Errorf("script line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	return nil
}

func runStep(rec *recorder.Recorder, line string) error {
	fields := strings.Fields(line)
	op, rest := fields[0], fields[1:]
	switch op {
	case "navigate":
		if len(rest) != 1 {
			return fmt.Errorf("navigate wants 1 argument, got %d", len(rest))
		}
		_, err := rec.RecordNavigation(rest[0], 0)
		return err
	case "click":
		if len(rest) != 1 {
			return fmt.Errorf("click wants 1 argument, got %d", len(rest))
		}
		_, err := rec.RecordClick(rest[0], "", nil)
		return err
	case "input":
		if len(rest) < 2 {
			return fmt.Errorf("input wants a selector and text")
		}
		_, err := rec.RecordInput(rest[0], strings.Join(rest[1:], " "), true)
		return err
	case "wait":
		if len(rest) != 1 {
			return fmt.Errorf("wait wants a duration in seconds")
		}
		if _, err := strconv.ParseFloat(rest[0], 64); err != nil {
			return fmt.Errorf("wait: %q is not a number", rest[0])
		}
		_, err := rec.RecordWait("time", rest[0], 0)
		return err
	case "verify":
		if len(rest) < 2 {
			return fmt.Errorf("verify wants a check and an expected value")
		}
		_, err := rec.RecordVerification(rest[0], strings.Join(rest[1:], " "), "")
		return err
	default:
		return fmt.Errorf("unknown step %q", op)
	}
}

func runList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	st, err := openStore(ctx, cfg, newLogger())
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	summaries, err := st.List(ctx)
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Println("no recorded flows")
		return nil
	}
	for _, s := range summaries {
		fmt.Printf("%s  %-10s  %s  %d actions  %d screenshots  %s\n",
			s.ID, s.Status, s.StartedAt.Local().Format("2006-01-02 15:04:05"), s.ActionCount, s.EvidenceCount, s.Name)
	}
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	st, err := openStore(ctx, cfg, newLogger())
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	flow, err := st.Load(ctx, args[0])
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(flow, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
