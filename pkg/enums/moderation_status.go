package enums

import "fmt"

// ModerationStatus is the lifecycle state of a moderation result row.
type ModerationStatus string

const (
	ModerationPending   ModerationStatus = "pending"
	ModerationCompleted ModerationStatus = "completed"
	ModerationFailed    ModerationStatus = "failed"
)

var validModerationStatuses = []ModerationStatus{
	ModerationPending,
	ModerationCompleted,
	ModerationFailed,
}

// IsValid reports whether the value matches the canonical status set.
func (s ModerationStatus) IsValid() bool {
	for _, candidate := range validModerationStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible for the row.
func (s ModerationStatus) IsTerminal() bool {
	return s == ModerationCompleted || s == ModerationFailed
}

// ParseModerationStatus converts raw input into ModerationStatus.
func ParseModerationStatus(value string) (ModerationStatus, error) {
	for _, candidate := range validModerationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid moderation status %q", value)
}
