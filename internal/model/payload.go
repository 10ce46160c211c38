package model

import (
	"encoding/json"
	"fmt"
)

// Payload carries the kind-specific data an action needs for replay. The
// concrete structs below are the only implementations; open-ended extension
// data goes in Action.Extra, not here.
type Payload interface {
	PayloadKind() ActionKind
}

type NavigatePayload struct {
	URL             string  `json:"url"`
	WaitSeconds     float64 `json:"wait_seconds,omitempty"`
	NavigationOK    *bool   `json:"navigation_ok,omitempty"`
	NavigationError string  `json:"navigation_error,omitempty"`
}

func (NavigatePayload) PayloadKind() ActionKind { return KindNavigate }

type ClickPayload struct {
	// ClickType is "element" when a selector located the target,
	// "coordinate" when raw coordinates did.
	ClickType string `json:"click_type"`
}

func (ClickPayload) PayloadKind() ActionKind { return KindClick }

type InputPayload struct {
	Text       string `json:"text"`
	ClearFirst bool   `json:"clear_first"`
}

func (InputPayload) PayloadKind() ActionKind { return KindInput }

type WaitPayload struct {
	// WaitKind is "time", "element", or "condition".
	WaitKind       string  `json:"wait_kind"`
	Value          string  `json:"value"`
	TimeoutSeconds float64 `json:"timeout_seconds,omitempty"`
	WaitError      string  `json:"wait_error,omitempty"`
}

func (WaitPayload) PayloadKind() ActionKind { return KindWait }

type VerifyPayload struct {
	// Check is "text", "element_present", "url", or "title".
	Check    string `json:"check"`
	Expected string `json:"expected"`
}

func (VerifyPayload) PayloadKind() ActionKind { return KindVerify }

type CustomPayload struct {
	Name string         `json:"name"`
	Data map[string]any `json:"data,omitempty"`
}

func (p CustomPayload) PayloadKind() ActionKind { return CustomKind(p.Name) }

// DecodePayload rebuilds the concrete payload struct for a persisted action.
func DecodePayload(kind ActionKind, raw json.RawMessage) (Payload, error) {
	var (
		p   Payload
		err error
	)
	switch {
	case kind == KindNavigate:
		var v NavigatePayload
		err = json.Unmarshal(raw, &v)
		p = v
	case kind == KindClick:
		var v ClickPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case kind == KindInput:
		var v InputPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case kind == KindWait:
		var v WaitPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case kind == KindVerify:
		var v VerifyPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case kind.IsCustom():
		var v CustomPayload
		err = json.Unmarshal(raw, &v)
		if v.Name == "" {
			v.Name = kind.CustomName()
		}
		p = v
	default:
		return nil, fmt.Errorf("decode payload: unknown action kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", kind, err)
	}
	return p, nil
}
