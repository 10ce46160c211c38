package store

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/nwtk/flowrec/internal/model"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	v, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t.Fatalf("parse time %q: %v", s, err)
	}
	return v
}

func sampleFlow(t *testing.T, id string, startedAt time.Time) *model.Flow {
	t.Helper()
	ended := startedAt.Add(42 * time.Second)
	ok := true
	return &model.Flow{
		ID:          id,
		Name:        "login",
		Description: "login happy path",
		StartedAt:   startedAt,
		EndedAt:     &ended,
		Status:      model.StatusCompleted,
		Metadata:    map[string]string{"env": "staging"},
		EvidenceRefs: []string{
			"/tmp/evidence/" + id + "_000.png",
			"/tmp/evidence/" + id + "_001.png",
		},
		VisualVerdicts: []model.VisualVerdict{
			{Label: id + "_001", Passed: true, MismatchRatio: 0.01},
		},
		Actions: []model.Action{
			{
				ID:          "000",
				Kind:        model.KindNavigate,
				OccurredAt:  startedAt.Add(time.Second),
				Payload:     model.NavigatePayload{URL: "https://example.test/login", WaitSeconds: 1, NavigationOK: &ok},
				EvidenceRef: "/tmp/evidence/" + id + "_000.png",
			},
			{
				ID:          "001",
				Kind:        model.KindInput,
				OccurredAt:  startedAt.Add(2 * time.Second),
				Target:      model.TargetDescriptor{Selector: "#username"},
				Payload:     model.InputPayload{Text: "alice", ClearFirst: true},
				EvidenceRef: "/tmp/evidence/" + id + "_001.png",
				Verdict:     &model.VisualVerdict{Label: id + "_001", Passed: true, MismatchRatio: 0.01},
			},
			{
				ID:         "002",
				Kind:       model.KindClick,
				OccurredAt: startedAt.Add(3 * time.Second),
				Target:     model.TargetDescriptor{Selector: "#submit", Text: "Sign in"},
				Payload:    model.ClickPayload{ClickType: "element"},
				Extra:      map[string]string{"note": "double-checked"},
			},
		},
	}
}

func testRoundTrip(t *testing.T, s Store) {
	ctx := context.Background()
	flow := sampleFlow(t, "flow_ab12cd34", mustTime(t, "2026-08-29T10:00:00.123456789Z"))

	if err := s.Save(ctx, flow); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := s.Load(ctx, flow.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(loaded, flow) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", loaded, flow)
	}

	// Saving again replaces the flow in place.
	flow.Status = model.StatusFailed
	flow.Actions = flow.Actions[:2]
	if err := s.Save(ctx, flow); err != nil {
		t.Fatalf("re-Save: %v", err)
	}
	loaded, err = s.Load(ctx, flow.ID)
	if err != nil {
		t.Fatalf("re-Load: %v", err)
	}
	if loaded.Status != model.StatusFailed || len(loaded.Actions) != 2 {
		t.Fatalf("re-save not reflected: status=%s actions=%d", loaded.Status, len(loaded.Actions))
	}
}

func testNotFound(t *testing.T, s Store) {
	if _, err := s.Load(context.Background(), "flow_00000000"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load missing flow: err = %v, want ErrNotFound", err)
	}
}

func testListOrdering(t *testing.T, s Store) {
	ctx := context.Background()
	base := mustTime(t, "2026-08-29T09:00:00Z")
	for i, id := range []string{"flow_011111aa", "flow_022222bb", "flow_033333cc"} {
		flow := sampleFlow(t, id, base.Add(time.Duration(i)*time.Minute))
		if err := s.Save(ctx, flow); err != nil {
			t.Fatalf("Save %s: %v", id, err)
		}
	}

	summaries, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(summaries) != 3 {
		t.Fatalf("List returned %d summaries, want 3", len(summaries))
	}
	want := []string{"flow_033333cc", "flow_022222bb", "flow_011111aa"}
	for i, summary := range summaries {
		if summary.ID != want[i] {
			t.Fatalf("List[%d] = %s, want %s (newest first)", i, summary.ID, want[i])
		}
		if summary.ActionCount != 3 || summary.EvidenceCount != 2 {
			t.Fatalf("List[%d] counts = %d/%d, want 3/2", i, summary.ActionCount, summary.EvidenceCount)
		}
	}
}

func testRejectsInvalidSave(t *testing.T, s Store) {
	flow := sampleFlow(t, "flow_badbadba", mustTime(t, "2026-08-29T09:00:00Z"))
	flow.Actions[1].ID = "005"
	if err := s.Save(context.Background(), flow); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Save with gapped ids: err = %v, want ErrCorrupt", err)
	}
}
