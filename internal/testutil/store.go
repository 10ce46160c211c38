package testutil

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/nwtk/flowrec/internal/model"
	"github.com/nwtk/flowrec/internal/store"
)

func NewSQLiteStore(t *testing.T) (*store.SQLiteStore, context.Context) {
	t.Helper()
	ctx := context.Background()
	s, err := store.OpenSQLite(ctx, filepath.Join(t.TempDir(), "flowrec-test.db"))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s, ctx
}

func NewFileStore(t *testing.T) (*store.FileStore, context.Context) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := store.OpenFileStore(filepath.Join(t.TempDir(), "flows"), logger)
	if err != nil {
		t.Fatalf("open test file store: %v", err)
	}
	return s, context.Background()
}

// SeedCompletedFlow saves a small finished flow and returns it.
func SeedCompletedFlow(t *testing.T, s store.Store, ctx context.Context, id string, startedAt time.Time) *model.Flow {
	t.Helper()
	ended := startedAt.Add(30 * time.Second)
	flow := &model.Flow{
		ID:             id,
		Name:           "seeded",
		StartedAt:      startedAt.UTC(),
		EndedAt:        &ended,
		Status:         model.StatusCompleted,
		EvidenceRefs:   []string{},
		VisualVerdicts: []model.VisualVerdict{},
		Actions: []model.Action{
			{
				ID:         "000",
				Kind:       model.KindNavigate,
				OccurredAt: startedAt.UTC(),
				Payload:    model.NavigatePayload{URL: "https://example.test"},
			},
			{
				ID:         "001",
				Kind:       model.KindClick,
				OccurredAt: startedAt.Add(time.Second).UTC(),
				Target:     model.TargetDescriptor{Selector: "#go"},
				Payload:    model.ClickPayload{ClickType: "element"},
			},
		},
	}
	if err := s.Save(ctx, flow); err != nil {
		t.Fatalf("seed flow %s: %v", id, err)
	}
	return flow
}
