package model

import "time"

// PresenceStatus is an identity's process-wide status. OFFLINE is derived
// from connection count and never settable by clients.
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "ONLINE"
	PresenceAway    PresenceStatus = "AWAY"
	PresenceOffline PresenceStatus = "OFFLINE"
)

// Valid reports whether s is one of the known presence states.
func (s PresenceStatus) Valid() bool {
	switch s {
	case PresenceOnline, PresenceAway, PresenceOffline:
		return true
	}
	return false
}

type User struct {
	ID           string         `json:"id"`
	Username     string         `json:"username"`
	Email        string         `json:"email"`
	PasswordHash string         `json:"-"`
	ProfileImage string         `json:"profile_image"`
	Presence     PresenceStatus `json:"presence_status"`
	LastSeenAt   time.Time      `json:"last_seen_at"`
	CreatedAt    time.Time      `json:"created_at"`
}

type UserPublic struct {
	ID           string         `json:"id"`
	Username     string         `json:"username"`
	ProfileImage string         `json:"profile_image"`
	Presence     PresenceStatus `json:"presence_status"`
	LastSeenAt   time.Time      `json:"last_seen_at"`
}

func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:           u.ID,
		Username:     u.Username,
		ProfileImage: u.ProfileImage,
		Presence:     u.Presence,
		LastSeenAt:   u.LastSeenAt,
	}
}
