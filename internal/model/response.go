package model

import "time"

// ErrorResponse is the envelope for error responses. Dashboard clients read
// "error"; the auth gates historically answered with "message".
type ErrorResponse struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// ValidationResponse is the owner-checked validation payload.
type ValidationResponse struct {
	Valid      bool       `json:"valid"`
	Error      string     `json:"error,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	OwnerLabel string     `json:"discordUsername,omitempty"`
	Message    string     `json:"message,omitempty"`
}

// LegacyValidationResponse is returned by the unchecked validation route kept
// for older clients. Key is null unless the key is valid.
type LegacyValidationResponse struct {
	Valid   bool   `json:"valid"`
	Key     *Key   `json:"key"`
	Message string `json:"message"`
}

// BotStatus reports whether the command front-end is connected.
type BotStatus struct {
	Online bool   `json:"online"`
	Uptime string `json:"uptime"`
}
