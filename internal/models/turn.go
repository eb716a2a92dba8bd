package models

import "time"

// Role tells who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a conversation. Turns are immutable once appended.
type Turn struct {
	ID           string    `json:"id"`
	Role         Role      `json:"role"`
	Content      string    `json:"content"`
	IsTranslated bool      `json:"isTranslated,omitempty"`
	Suggestions  []string  `json:"suggestions,omitempty"`
	CreatedAt    time.Time `json:"timestamp"`
}

// Clone returns a copy that shares no slices with t.
func (t Turn) Clone() Turn {
	if t.Suggestions != nil {
		t.Suggestions = append([]string(nil), t.Suggestions...)
	}
	return t
}
