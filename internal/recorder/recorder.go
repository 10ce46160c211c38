// Package recorder drives flow recording sessions: it owns the single active
// session, assigns action ids, collects visual evidence, and hands finished
// flows to the store.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/nwtk/flowrec/internal/evidence"
	"github.com/nwtk/flowrec/internal/model"
	"github.com/nwtk/flowrec/internal/notify"
	"github.com/nwtk/flowrec/internal/security"
	"github.com/nwtk/flowrec/internal/store"
)

var (
	// ErrAlreadyRecording is returned by Start when a session is active.
	ErrAlreadyRecording = errors.New("a flow recording is already active")
	// ErrNotRecording is returned by the record and stop operations when no
	// session is active.
	ErrNotRecording = errors.New("no flow recording is active")
)

// Options tune a Recorder. The zero value is usable.
type Options struct {
	// UpdateBaseline seeds missing visual baselines from the current
	// capture instead of failing the verdict.
	UpdateBaseline bool
	// Clock overrides time.Now, for tests.
	Clock func() time.Time
	// Sleep overrides time.Sleep, for tests.
	Sleep func(time.Duration)
}

// Recorder is the session controller. At most one flow records at a time;
// all session state is guarded by mu and every record operation, including
// its evidence capture, completes under the lock before the next one starts.
type Recorder struct {
	store          store.Store
	source         evidence.Source
	hub            *notify.Hub
	logger         *slog.Logger
	clock          func() time.Time
	sleep          func(time.Duration)
	updateBaseline bool

	mu           sync.Mutex
	current      *model.Flow
	log          *actionLog
	sourceActive bool
}

func New(st store.Store, src evidence.Source, hub *notify.Hub, logger *slog.Logger, opts Options) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if hub == nil {
		hub = notify.NewHub(logger)
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	return &Recorder{
		store:          st,
		source:         src,
		hub:            hub,
		logger:         logger,
		clock:          clock,
		sleep:          sleep,
		updateBaseline: opts.UpdateBaseline,
	}
}

// Start opens a new recording session and returns its flow id. A failing
// evidence source degrades the session to metadata-only recording; it does
// not fail Start.
func (r *Recorder) Start(name, description string, metadata map[string]string) (string, error) {
	r.mu.Lock()
	if r.current != nil {
		r.mu.Unlock()
		return "", ErrAlreadyRecording
	}
	flow := &model.Flow{
		ID:             model.NewFlowID(),
		Name:           name,
		Description:    description,
		StartedAt:      r.clock().UTC(),
		Status:         model.StatusRecording,
		Metadata:       security.RedactBag(metadata),
		Actions:        []model.Action{},
		EvidenceRefs:   []string{},
		VisualVerdicts: []model.VisualVerdict{},
	}
	r.current = flow
	r.log = &actionLog{}
	r.sourceActive = false
	if r.source != nil {
		if err := r.source.Start(); err != nil {
			r.logger.Warn("evidence source unavailable, recording without screenshots",
				"flow_id", flow.ID, "error", err)
		} else {
			r.sourceActive = true
		}
	}
	id := flow.ID
	r.mu.Unlock()

	r.hub.Publish(notify.Event{Kind: notify.SessionStarted, FlowID: id})
	r.logger.Info("flow recording started", "flow_id", id, "name", name)
	return id, nil
}

// Active reports the id of the recording session, if one is open.
func (r *Recorder) Active() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return "", false
	}
	return r.current.ID, true
}

// EvidenceActive reports whether the evidence source came up for the current
// session.
func (r *Recorder) EvidenceActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sourceActive
}

type actionRequest struct {
	kind   model.ActionKind
	target model.TargetDescriptor
	// Exactly one of payload and drive is set. drive runs under the session
	// lock with the evidence-source state, so browser interaction cannot
	// interleave with a concurrent Stop.
	payload         model.Payload
	drive           func(sourceActive bool) model.Payload
	extra           map[string]string
	captureEvidence bool
	verifyVisually  bool
}

// RecordAction appends one action to the active session. Evidence capture
// and visual verification run synchronously inside the append, so the stored
// action already carries its evidence ref and verdict when RecordAction
// returns. Evidence failures degrade the action, never fail it.
func (r *Recorder) RecordAction(kind model.ActionKind, target model.TargetDescriptor, payload model.Payload, captureEvidence, verifyVisually bool) (*model.Action, error) {
	return r.record(actionRequest{
		kind:            kind,
		target:          target,
		payload:         payload,
		captureEvidence: captureEvidence,
		verifyVisually:  verifyVisually,
	})
}

func (r *Recorder) record(req actionRequest) (*model.Action, error) {
	r.mu.Lock()
	if r.current == nil {
		r.mu.Unlock()
		return nil, ErrNotRecording
	}
	payload := req.payload
	if req.drive != nil {
		payload = req.drive(r.sourceActive)
	}
	action := model.Action{
		ID:         r.log.nextID(),
		Kind:       req.kind,
		OccurredAt: r.clock().UTC(),
		Target:     req.target,
		Payload:    payload,
		Extra:      req.extra,
	}
	flowID := r.current.ID
	if req.captureEvidence && r.sourceActive {
		label := flowID + "_" + action.ID
		ref, err := r.source.Capture(label)
		if err != nil {
			r.logger.Warn("screenshot capture failed",
				"flow_id", flowID, "action_id", action.ID, "error", err)
		} else {
			action.EvidenceRef = ref
			r.current.EvidenceRefs = append(r.current.EvidenceRefs, ref)
			if req.verifyVisually {
				verdict, err := r.source.Diff(label, ref, r.updateBaseline)
				if err != nil {
					r.logger.Warn("visual verification failed",
						"flow_id", flowID, "action_id", action.ID, "error", err)
				} else {
					action.Verdict = &verdict
					r.current.VisualVerdicts = append(r.current.VisualVerdicts, verdict)
				}
			}
		}
	}
	r.log.append(action)
	r.mu.Unlock()

	published := action
	r.hub.Publish(notify.Event{Kind: notify.ActionRecorded, FlowID: flowID, Action: &published})
	return &published, nil
}

// RecordNavigation drives the browser to url when an evidence source is up,
// then records the navigate action with evidence and a visual verdict. A
// navigation failure is recorded in the payload, not returned.
func (r *Recorder) RecordNavigation(url string, waitSeconds float64) (*model.Action, error) {
	return r.record(actionRequest{
		kind: model.KindNavigate,
		drive: func(sourceActive bool) model.Payload {
			payload := model.NavigatePayload{URL: url, WaitSeconds: waitSeconds}
			if nav, ok := r.source.(evidence.Navigator); ok && sourceActive {
				navOK := true
				if err := nav.Navigate(url, waitSeconds); err != nil {
					navOK = false
					payload.NavigationError = err.Error()
					r.logger.Warn("navigation failed", "url", url, "error", err)
				}
				payload.NavigationOK = &navOK
			}
			return payload
		},
		captureEvidence: true,
		verifyVisually:  true,
	})
}

// RecordClick records a click on a selector, visible text, or raw
// coordinates, with evidence.
func (r *Recorder) RecordClick(selector, text string, coords *model.Coordinates) (*model.Action, error) {
	clickType := "element"
	if selector == "" && coords != nil {
		clickType = "coordinate"
	}
	return r.record(actionRequest{
		kind:            model.KindClick,
		target:          model.TargetDescriptor{Selector: selector, Text: text, Coordinates: coords},
		payload:         model.ClickPayload{ClickType: clickType},
		captureEvidence: true,
	})
}

// RecordInput records a text entry action. The stored text is masked when
// the selector looks like a credential field and scrubbed of secrets
// otherwise; the raw input never reaches the flow log.
func (r *Recorder) RecordInput(selector, text string, clearFirst bool) (*model.Action, error) {
	return r.record(actionRequest{
		kind:            model.KindInput,
		target:          model.TargetDescriptor{Selector: selector},
		payload:         model.InputPayload{Text: security.MaskInput(selector, text), ClearFirst: clearFirst},
		captureEvidence: true,
	})
}

// RecordWait records a wait action. Time waits are executed before the
// action is appended; element and condition waits are recorded for replay
// only. Waits carry no evidence.
func (r *Recorder) RecordWait(waitKind, value string, timeoutSeconds float64) (*model.Action, error) {
	payload := model.WaitPayload{WaitKind: waitKind, Value: value, TimeoutSeconds: timeoutSeconds}
	if waitKind == "time" {
		secs, err := strconv.ParseFloat(value, 64)
		switch {
		case err != nil || secs < 0:
			payload.WaitError = fmt.Sprintf("bad wait duration %q", value)
		default:
			r.sleep(time.Duration(secs * float64(time.Second)))
		}
	}
	return r.record(actionRequest{
		kind:    model.KindWait,
		payload: payload,
	})
}

// RecordVerification records a verification step with evidence and a visual
// verdict against the step's baseline.
func (r *Recorder) RecordVerification(check, expected, selector string) (*model.Action, error) {
	return r.record(actionRequest{
		kind:            model.KindVerify,
		target:          model.TargetDescriptor{Selector: selector},
		payload:         model.VerifyPayload{Check: check, Expected: expected},
		captureEvidence: true,
		verifyVisually:  true,
	})
}

// RecordCustom records a caller-defined action kind with evidence.
func (r *Recorder) RecordCustom(name string, data map[string]any, target model.TargetDescriptor) (*model.Action, error) {
	return r.record(actionRequest{
		kind:            model.CustomKind(name),
		target:          target,
		payload:         model.CustomPayload{Name: name, Data: data},
		captureEvidence: true,
	})
}

// VerifyVisually captures the current page under label and compares it to
// that label's baseline, outside any action. The verdict is attached to the
// session.
func (r *Recorder) VerifyVisually(label string) (model.VisualVerdict, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return model.VisualVerdict{}, ErrNotRecording
	}
	if !r.sourceActive {
		return model.VisualVerdict{}, fmt.Errorf("visual verification %q: %w", label, evidence.ErrUnavailable)
	}
	ref, err := r.source.Capture(label)
	if err != nil {
		return model.VisualVerdict{}, fmt.Errorf("capture %q: %w", label, err)
	}
	r.current.EvidenceRefs = append(r.current.EvidenceRefs, ref)
	verdict, err := r.source.Diff(label, ref, r.updateBaseline)
	if err != nil {
		return model.VisualVerdict{}, fmt.Errorf("diff %q: %w", label, err)
	}
	r.current.VisualVerdicts = append(r.current.VisualVerdicts, verdict)
	return verdict, nil
}

// Stop closes the active session and persists the flow. The session slot is
// freed whether or not persistence succeeds; on a storage failure the
// returned flow is marked failed and the error is reported alongside it.
func (r *Recorder) Stop(ctx context.Context) (*model.Flow, error) {
	r.mu.Lock()
	if r.current == nil {
		r.mu.Unlock()
		return nil, ErrNotRecording
	}
	flow := r.current
	flow.Actions = r.log.snapshot()
	now := r.clock().UTC()
	flow.EndedAt = &now
	flow.Status = model.StatusCompleted

	if r.sourceActive {
		if err := r.source.Stop(); err != nil {
			r.logger.Warn("evidence source shutdown failed", "flow_id", flow.ID, "error", err)
		}
		r.sourceActive = false
	}

	saveErr := r.store.Save(ctx, flow)
	if saveErr != nil {
		flow.Status = model.StatusFailed
	}
	r.current = nil
	r.log = nil
	r.mu.Unlock()

	r.hub.Publish(notify.Event{Kind: notify.SessionCompleted, FlowID: flow.ID, Flow: flow})
	if saveErr != nil {
		r.logger.Error("flow persistence failed", "flow_id", flow.ID, "error", saveErr)
		return flow, fmt.Errorf("persist flow %s: %w", flow.ID, saveErr)
	}
	r.logger.Info("flow recording completed",
		"flow_id", flow.ID, "actions", len(flow.Actions), "evidence", len(flow.EvidenceRefs))
	return flow, nil
}
