package model

import "time"

// Level is the severity of an audit log entry.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// LogEntry is an immutable audit record.
type LogEntry struct {
	ID        int64     `json:"id" db:"id"`
	Timestamp time.Time `json:"timestamp" db:"logged_at"`
	Level     Level     `json:"level" db:"level"`
	Message   string    `json:"message" db:"message"`
	ActorID   *string   `json:"discordUserId" db:"actor_id"`
}

// Actor returns the actor id or an empty string.
func (e *LogEntry) Actor() string {
	if e.ActorID == nil {
		return ""
	}
	return *e.ActorID
}

// Stats is the dashboard summary.
type Stats struct {
	TotalKeys   int     `json:"totalKeys"`
	ActiveKeys  int     `json:"activeKeys"`
	UsersToday  int     `json:"usersToday"`
	SuccessRate float64 `json:"successRate"`
}
