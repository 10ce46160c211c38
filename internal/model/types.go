package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FlowStatus is the lifecycle state persisted with a flow.
type FlowStatus string

const (
	StatusRecording FlowStatus = "recording"
	StatusCompleted FlowStatus = "completed"
	StatusFailed    FlowStatus = "failed"
)

// ActionKind tags a recorded interaction. Custom kinds carry a caller-chosen
// name behind the "custom_" prefix.
type ActionKind string

const (
	KindNavigate ActionKind = "navigate"
	KindClick    ActionKind = "click"
	KindInput    ActionKind = "input"
	KindWait     ActionKind = "wait"
	KindVerify   ActionKind = "verify"
)

const customKindPrefix = "custom_"

func CustomKind(name string) ActionKind {
	return ActionKind(customKindPrefix + strings.TrimSpace(name))
}

func (k ActionKind) IsCustom() bool {
	return strings.HasPrefix(string(k), customKindPrefix)
}

// CustomName returns the caller-chosen suffix of a custom kind, or "".
func (k ActionKind) CustomName() string {
	if !k.IsCustom() {
		return ""
	}
	return strings.TrimPrefix(string(k), customKindPrefix)
}

func (k ActionKind) Valid() bool {
	switch k {
	case KindNavigate, KindClick, KindInput, KindWait, KindVerify:
		return true
	}
	return k.IsCustom() && k.CustomName() != ""
}

type Coordinates struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// TargetDescriptor locates the element an action touched. It is opaque to the
// recorder; only a replaying driver interprets it.
type TargetDescriptor struct {
	Selector    string       `json:"selector,omitempty"`
	Text        string       `json:"text,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

// VisualVerdict is the outcome of comparing current evidence to a baseline.
type VisualVerdict struct {
	Label         string  `json:"label,omitempty"`
	Passed        bool    `json:"passed"`
	MismatchRatio float64 `json:"mismatch_ratio"`
	ErrorDetail   string  `json:"error_detail,omitempty"`
}

// Action is one immutable recorded interaction. Corrections are new actions,
// never in-place edits.
type Action struct {
	ID          string            `json:"id"`
	Kind        ActionKind        `json:"kind"`
	OccurredAt  time.Time         `json:"occurred_at"`
	Target      TargetDescriptor  `json:"target"`
	Payload     Payload           `json:"payload,omitempty"`
	EvidenceRef string            `json:"evidence_ref,omitempty"`
	Verdict     *VisualVerdict    `json:"visual_verdict,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// UnmarshalJSON decodes the payload into its kind-specific struct.
func (a *Action) UnmarshalJSON(data []byte) error {
	type alias Action
	aux := struct {
		*alias
		Payload json.RawMessage `json:"payload,omitempty"`
	}{alias: (*alias)(a)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.Payload) == 0 || string(aux.Payload) == "null" {
		a.Payload = nil
		return nil
	}
	p, err := DecodePayload(a.Kind, aux.Payload)
	if err != nil {
		return err
	}
	a.Payload = p
	return nil
}

// Flow is one recording: ordered actions plus the evidence and verdicts
// produced during the session.
type Flow struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Description    string            `json:"description"`
	StartedAt      time.Time         `json:"started_at"`
	EndedAt        *time.Time        `json:"ended_at,omitempty"`
	Actions        []Action          `json:"actions"`
	EvidenceRefs   []string          `json:"evidence_refs"`
	VisualVerdicts []VisualVerdict   `json:"visual_verdicts"`
	Status         FlowStatus        `json:"status"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// NewFlowID returns a session identifier in the persisted "flow_<hex8>" form.
func NewFlowID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "flow_" + hex[:8]
}

// FlowSummary is the listing view of a stored flow. It is derived without
// loading action payloads or evidence.
type FlowSummary struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	Status        FlowStatus `json:"status"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	ActionCount   int        `json:"action_count"`
	EvidenceCount int        `json:"evidence_count"`
}

func (f *Flow) Summary() FlowSummary {
	return FlowSummary{
		ID:            f.ID,
		Name:          f.Name,
		Description:   f.Description,
		Status:        f.Status,
		StartedAt:     f.StartedAt,
		EndedAt:       f.EndedAt,
		ActionCount:   len(f.Actions),
		EvidenceCount: len(f.EvidenceRefs),
	}
}

// Validate checks the structural invariants a stored flow must satisfy:
// a known status and action ids forming a contiguous sequence from zero.
func (f *Flow) Validate() error {
	switch f.Status {
	case StatusRecording, StatusCompleted, StatusFailed:
	default:
		return fmt.Errorf("unknown flow status %q", f.Status)
	}
	if f.ID == "" {
		return fmt.Errorf("flow id is empty")
	}
	return ValidateActionOrder(f.Actions)
}
