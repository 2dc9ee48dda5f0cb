package model

import "time"

// User is an external identity cached on first dashboard login. Only VIP
// users ever reach the store.
type User struct {
	ID          string    `json:"id" db:"id"`
	Email       string    `json:"email" db:"email"`
	DisplayName string    `json:"firstName" db:"display_name"`
	AvatarURL   string    `json:"profileImageUrl" db:"avatar_url"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}

// AvatarURLFor builds the CDN URL for a Discord avatar hash. An empty hash
// yields an empty URL.
func AvatarURLFor(userID, avatarHash string) string {
	if avatarHash == "" {
		return ""
	}
	return "https://cdn.discordapp.com/avatars/" + userID + "/" + avatarHash + ".png"
}
