package recorder

import "github.com/nwtk/flowrec/internal/model"

// actionLog is the append-only action sequence of one recording session. Ids
// are handed out in append order, so the contiguous-from-zero invariant holds
// by construction.
type actionLog struct {
	actions []model.Action
}

func (l *actionLog) nextID() string {
	return model.FormatActionID(len(l.actions))
}

func (l *actionLog) append(a model.Action) {
	l.actions = append(l.actions, a)
}

func (l *actionLog) snapshot() []model.Action {
	out := make([]model.Action, len(l.actions))
	copy(out, l.actions)
	return out
}
