package model

import "time"

// Cooldown tracks the last issuance per owner. It is advisory: the issuance
// engine records it but never refuses a request because of it.
type Cooldown struct {
	ID             int64     `json:"id" db:"id"`
	OwnerID        string    `json:"discordUserId" db:"owner_id"`
	OwnerLabel     string    `json:"discordUsername" db:"owner_label"`
	LastIssuedAt   time.Time `json:"lastKeyGenerated" db:"last_issued_at"`
	CooldownEndsAt time.Time `json:"cooldownEnds" db:"cooldown_ends_at"`
}
