package types

import (
	"strings"
	"time"
)

// Room is the persisted part of a chat room. The live part (connected sessions) is kept by the hub.
type Room struct {
	Id          string    `json:"id" gorm:"primaryKey"`
	Name        string    `json:"name" gorm:"uniqueIndex;not null"` // lower-cased identity
	DisplayName string    `json:"display_name"`
	OwnerId     string    `json:"owner_id" gorm:"index"` // empty for private rooms
	Private     bool      `json:"private"`
	PairKey     string    `json:"pair_key,omitempty" gorm:"index"` // "<idA>:<idB>" with idA < idB, private rooms only
	CreatedAt   time.Time `json:"created_at"`
}

func (r *Room) IsOwner(user *User) bool {
	return user != nil && r.OwnerId != "" && r.OwnerId == user.Id
}

// IsParty reports whether userId is one of the two users of a private room.
func (r *Room) IsParty(userId string) bool {
	return strings.HasPrefix(r.PairKey, userId+":") || strings.HasSuffix(r.PairKey, ":"+userId)
}

func (r *Room) Title() string {
	if r.DisplayName != "" {
		return r.DisplayName
	}
	return r.Name
}

// NormalizeRoomName returns the identity form of a room name.
func NormalizeRoomName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// PairKey builds the key of the private room shared by two users, independent of their order.
func PairKey(userIdA, userIdB string) string {
	if userIdB < userIdA {
		userIdA, userIdB = userIdB, userIdA
	}
	return userIdA + ":" + userIdB
}

// Occupancy marks a user as present in a room.
type Occupancy struct {
	RoomId   string `gorm:"primaryKey"`
	UserId   string `gorm:"primaryKey"`
	JoinedAt time.Time
}
