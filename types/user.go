package types

import "time"

type User struct {
	Id            string    `json:"id" gorm:"primaryKey"`             // e-mail for authenticated users, uuid for anonymous ones
	Name          string    `json:"name" gorm:"uniqueIndex;not null"` // unique, compared case-sensitively
	DisplayName   string    `json:"display_name"`                     // optional, falls back to Name
	Anonymous     bool      `json:"anonymous"`                        // ephemeral guest, deleted on disconnect
	Authenticated bool      `json:"authenticated"`                    // verified identity (oidc or provisioned)
	LastOnline    time.Time `json:"last_online"`                      // last seen online
	CreatedAt     time.Time `json:"created_at"`
}

// Registered reports whether the user may act above the anonymous tier.
func (u *User) Registered() bool {
	return u.Authenticated && !u.Anonymous
}

func (u *User) Nick() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Name
}
