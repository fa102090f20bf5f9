package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tcriess/lightspeed-rooms/config"
	"github.com/tcriess/lightspeed-rooms/types"
)

// ErrNotFound is returned by all getters if the requested row does not exist.
var ErrNotFound = errors.New("not found")

// Persister is the durable store behind the rooms. Every call may block on I/O, so all of them take a context.
type Persister interface {
	StoreUser(context.Context, *types.User) error
	GetUser(ctx context.Context, id string) (*types.User, error)
	GetUserByName(ctx context.Context, name string) (*types.User, error)
	GetUsers(context.Context) ([]*types.User, error)
	// DeleteUser removes the user together with its occupancies, adminships, bans and private rooms.
	DeleteUser(context.Context, *types.User) error

	StoreRoom(context.Context, *types.Room) error
	GetRoom(ctx context.Context, id string) (*types.Room, error)
	GetRoomByName(ctx context.Context, name string) (*types.Room, error)
	GetRoomByPairKey(ctx context.Context, pairKey string) (*types.Room, error)
	GetRooms(context.Context) ([]*types.Room, error)
	// DeleteRoom removes the room together with its occupancies, adminships, bans and messages.
	DeleteRoom(context.Context, *types.Room) error

	StoreAdminship(context.Context, *types.Adminship) error
	GetAdminship(ctx context.Context, roomId, userId string) (*types.Adminship, error)
	GetAdminships(ctx context.Context, roomId string) ([]*types.Adminship, error)
	DeleteAdminship(context.Context, *types.Adminship) error

	StoreBan(context.Context, *types.Ban) error
	GetActiveBan(ctx context.Context, roomId, userId string) (*types.Ban, error)
	GetBans(ctx context.Context, roomId string) ([]*types.Ban, error)

	AddOccupant(ctx context.Context, roomId, userId string) error
	RemoveOccupant(ctx context.Context, roomId, userId string) error
	IsOccupant(ctx context.Context, roomId, userId string) (bool, error)
	GetOccupants(ctx context.Context, roomId string) ([]*types.User, error)
	GetOccupiedRoomIds(ctx context.Context, userId string) ([]string, error)

	StoreMessage(context.Context, *types.Message) error
	// GetMessageHistory returns the newest messages of a room created in [fromTs, toTs], newest first.
	// Use fromIdx/maxCount for pagination, maxCount <= 0 means no limit.
	GetMessageHistory(ctx context.Context, roomId string, fromTs, toTs time.Time, fromIdx, maxCount int) ([]*types.Message, error)

	Close() error
}

// NewPersister creates the persister selected in the configuration.
func NewPersister(cfg *config.Config) (Persister, error) {
	switch cfg.PersistenceConfig.Type {
	case "", "buntdb":
		return NewBuntPersister(cfg)
	case "sqlite", "postgres":
		return NewGormPersister(cfg)
	}
	return nil, fmt.Errorf("unknown persistence type %q", cfg.PersistenceConfig.Type)
}
