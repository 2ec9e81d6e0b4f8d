package models

import (
	"time"

	"gorm.io/gorm"
)

/** --------------------ENTITIES-------------------- */
// User is the subset of the account the realtime layer reads.
type User struct {
	gorm.Model
	Username   string    `gorm:"uniqueIndex;not null" json:"username"`
	KnownAs    string    `json:"knownAs"`
	LastActive time.Time `json:"lastActive"`
}

// DisplayName falls back to the username when no display name is set.
func (u *User) DisplayName() string {
	if u.KnownAs != "" {
		return u.KnownAs
	}
	return u.Username
}

/** -------------------- DTOs -------------------- */
// PresenceResponse describes a user's realtime status.
type PresenceResponse struct {
	Username string     `json:"username"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}
