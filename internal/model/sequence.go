package model

import (
	"fmt"
	"strconv"
)

// FormatActionID renders a per-session sequence number as the zero-padded
// action id ("000", "001", ...). Width grows past three digits rather than
// truncating, and ordering validation compares integer values, so long
// sessions stay well-formed.
func FormatActionID(seq int) string {
	return fmt.Sprintf("%03d", seq)
}

// ParseActionID inverts FormatActionID.
func ParseActionID(id string) (int, error) {
	n, err := strconv.Atoi(id)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid action id %q", id)
	}
	return n, nil
}

// ValidateActionOrder enforces the replay invariant: ids form a contiguous
// increasing sequence starting at zero, in slice order.
func ValidateActionOrder(actions []Action) error {
	for i, a := range actions {
		n, err := ParseActionID(a.ID)
		if err != nil {
			return err
		}
		if n != i {
			return fmt.Errorf("action id %q at position %d breaks sequence", a.ID, i)
		}
	}
	return nil
}
