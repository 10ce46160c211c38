package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestFormatAndParseActionID(t *testing.T) {
	cases := []struct {
		seq int
		id  string
	}{
		{0, "000"},
		{1, "001"},
		{42, "042"},
		{999, "999"},
		{1000, "1000"},
	}
	for _, tc := range cases {
		id := FormatActionID(tc.seq)
		if id != tc.id {
			t.Fatalf("FormatActionID(%d) = %q, want %q", tc.seq, id, tc.id)
		}
		n, err := ParseActionID(id)
		if err != nil {
			t.Fatalf("ParseActionID(%q): %v", id, err)
		}
		if n != tc.seq {
			t.Fatalf("ParseActionID(%q) = %d, want %d", id, n, tc.seq)
		}
	}

	for _, bad := range []string{"", "abc", "-1", "1.5"} {
		if _, err := ParseActionID(bad); err == nil {
			t.Fatalf("expected ParseActionID(%q) to fail", bad)
		}
	}
}

func TestValidateActionOrder(t *testing.T) {
	mk := func(ids ...string) []Action {
		out := make([]Action, 0, len(ids))
		for _, id := range ids {
			out = append(out, Action{ID: id, Kind: KindClick})
		}
		return out
	}

	if err := ValidateActionOrder(nil); err != nil {
		t.Fatalf("empty sequence should be valid: %v", err)
	}
	if err := ValidateActionOrder(mk("000", "001", "002")); err != nil {
		t.Fatalf("contiguous sequence should be valid: %v", err)
	}
	if err := ValidateActionOrder(mk("001", "002")); err == nil {
		t.Fatalf("sequence not starting at zero should be invalid")
	}
	if err := ValidateActionOrder(mk("000", "002")); err == nil {
		t.Fatalf("gapped sequence should be invalid")
	}
	if err := ValidateActionOrder(mk("001", "000")); err == nil {
		t.Fatalf("reordered sequence should be invalid")
	}
}

func TestCustomKind(t *testing.T) {
	k := CustomKind("search_submit")
	if string(k) != "custom_search_submit" {
		t.Fatalf("unexpected custom kind: %q", k)
	}
	if !k.IsCustom() || k.CustomName() != "search_submit" {
		t.Fatalf("custom kind accessors broken: %q", k)
	}
	if KindClick.IsCustom() || KindClick.CustomName() != "" {
		t.Fatalf("builtin kind must not be custom")
	}
	if !k.Valid() {
		t.Fatalf("named custom kind should be valid")
	}
	if ActionKind("custom_").Valid() {
		t.Fatalf("nameless custom kind should be invalid")
	}
}

func TestActionPayloadRoundTrip(t *testing.T) {
	ok := true
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	cases := []Action{
		{
			ID:         "000",
			Kind:       KindNavigate,
			OccurredAt: now,
			Payload:    NavigatePayload{URL: "https://app.test/login", WaitSeconds: 2, NavigationOK: &ok},
		},
		{
			ID:         "001",
			Kind:       KindInput,
			OccurredAt: now,
			Target:     TargetDescriptor{Selector: "#user"},
			Payload:    InputPayload{Text: "alice", ClearFirst: true},
		},
		{
			ID:         "002",
			Kind:       KindClick,
			OccurredAt: now,
			Target:     TargetDescriptor{Selector: "#submit", Text: "Log in", Coordinates: &Coordinates{X: 10, Y: 20}},
			Payload:    ClickPayload{ClickType: "element"},
		},
		{
			ID:         "003",
			Kind:       KindWait,
			OccurredAt: now,
			Payload:    WaitPayload{WaitKind: "time", Value: "2", TimeoutSeconds: 10},
		},
		{
			ID:         "004",
			Kind:       KindVerify,
			OccurredAt: now,
			Payload:    VerifyPayload{Check: "element_present", Expected: "true"},
			Verdict:    &VisualVerdict{Passed: true, MismatchRatio: 0.01},
		},
		{
			ID:         "005",
			Kind:       CustomKind("search_submit"),
			OccurredAt: now,
			Payload:    CustomPayload{Name: "search_submit", Data: map[string]any{"method": "enter_key"}},
			Extra:      map[string]string{"origin": "demo"},
		},
	}

	for _, in := range cases {
		buf, err := json.Marshal(in)
		if err != nil {
			t.Fatalf("marshal %s: %v", in.Kind, err)
		}
		var out Action
		if err := json.Unmarshal(buf, &out); err != nil {
			t.Fatalf("unmarshal %s: %v", in.Kind, err)
		}
		if out.ID != in.ID || out.Kind != in.Kind {
			t.Fatalf("identity lost for %s: %+v", in.Kind, out)
		}
		if !out.OccurredAt.Equal(in.OccurredAt) {
			t.Fatalf("timestamp lost for %s: %v", in.Kind, out.OccurredAt)
		}
		if in.Payload != nil && out.Payload == nil {
			t.Fatalf("payload lost for %s", in.Kind)
		}
		if out.Payload != nil && out.Payload.PayloadKind() != in.Payload.PayloadKind() {
			t.Fatalf("payload kind changed for %s: %v", in.Kind, out.Payload.PayloadKind())
		}
	}

	// Payload field types must survive, not collapse into maps.
	buf, _ := json.Marshal(cases[1])
	var action Action
	if err := json.Unmarshal(buf, &action); err != nil {
		t.Fatalf("unmarshal input action: %v", err)
	}
	p, okCast := action.Payload.(InputPayload)
	if !okCast || p.Text != "alice" || !p.ClearFirst {
		t.Fatalf("unexpected input payload: %#v", action.Payload)
	}
}

func TestActionWithoutPayload(t *testing.T) {
	in := Action{ID: "000", Kind: KindWait, OccurredAt: time.Now().UTC()}
	buf, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Action
	if err := json.Unmarshal(buf, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Payload != nil {
		t.Fatalf("expected nil payload, got %#v", out.Payload)
	}
}

func TestFlowValidate(t *testing.T) {
	flow := &Flow{ID: NewFlowID(), Status: StatusCompleted, Actions: []Action{{ID: "000", Kind: KindClick}}}
	if err := flow.Validate(); err != nil {
		t.Fatalf("valid flow rejected: %v", err)
	}

	flow.Status = FlowStatus("paused")
	if err := flow.Validate(); err == nil {
		t.Fatalf("unknown status accepted")
	}

	flow.Status = StatusCompleted
	flow.Actions = []Action{{ID: "001", Kind: KindClick}}
	if err := flow.Validate(); err == nil {
		t.Fatalf("non-contiguous actions accepted")
	}

	flow.ID = ""
	flow.Actions = nil
	if err := flow.Validate(); err == nil {
		t.Fatalf("empty id accepted")
	}
}

func TestNewFlowID(t *testing.T) {
	id := NewFlowID()
	if len(id) != len("flow_")+8 || id[:5] != "flow_" {
		t.Fatalf("unexpected flow id format: %q", id)
	}
	if id == NewFlowID() {
		t.Fatalf("flow ids should not collide")
	}
}

func TestFlowSummary(t *testing.T) {
	end := time.Now().UTC()
	flow := &Flow{
		ID:           "flow_ab12cd34",
		Name:         "login",
		Status:       StatusCompleted,
		StartedAt:    end.Add(-time.Minute),
		EndedAt:      &end,
		Actions:      []Action{{ID: "000"}, {ID: "001"}},
		EvidenceRefs: []string{"a.png"},
	}
	s := flow.Summary()
	if s.ActionCount != 2 || s.EvidenceCount != 1 || s.Status != StatusCompleted || s.ID != flow.ID {
		t.Fatalf("unexpected summary: %+v", s)
	}
}
