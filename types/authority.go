package types

import "time"

// Adminship grants a user admin rights in one room. There is at most one per (room, user).
type Adminship struct {
	RoomId    string    `json:"room_id" gorm:"primaryKey"`
	UserId    string    `json:"user_id" gorm:"primaryKey"`
	IssuerId  string    `json:"issuer_id"`
	Unlimited bool      `json:"unlimited"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (a *Adminship) Tier() Tier {
	if a.Unlimited {
		return TierUnlimitedAdmin
	}
	return TierAdmin
}

// Ban keeps a user out of a room until it is lifted. Lifted bans are kept as history, so there may
// be many per (room, user) but at most one active.
type Ban struct {
	Id       string    `json:"id" gorm:"primaryKey"`
	RoomId   string    `json:"room_id" gorm:"index:idx_ban_room_user"`
	UserId   string    `json:"user_id" gorm:"index:idx_ban_room_user"`
	IssuerId string    `json:"issuer_id"`
	Created  time.Time `json:"created"`
	Lifted   bool      `json:"lifted"`
}

func (b *Ban) Active() bool {
	return !b.Lifted
}
