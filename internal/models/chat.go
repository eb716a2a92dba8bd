package models

import "time"

// ChatRequest is the body of POST /chat. Language is the legacy alias of
// UILanguage and is still sent for older servers.
type ChatRequest struct {
	Message      string `json:"message"`
	Language     string `json:"language"`
	UILanguage   string `json:"uiLanguage"`
	UserLanguage string `json:"userLanguage"`
}

// ChatResponse is the body returned by POST /chat on both success and failure.
// Content is a pointer so a missing field can be told apart from an empty reply.
type ChatResponse struct {
	Role        Role       `json:"role,omitempty"`
	Content     *string    `json:"content"`
	Suggestions []string   `json:"suggestions,omitempty"`
	Timestamp   *time.Time `json:"timestamp,omitempty"`
	Error       bool       `json:"error,omitempty"`
}
