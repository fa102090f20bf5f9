package membership

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/tcriess/lightspeed-rooms/persistence"
	"github.com/tcriess/lightspeed-rooms/types"
)

// Bootstrap makes sure the default room exists. A missing room is created with adminName as its owner, the
// owner is created as an authenticated user if necessary.
func Bootstrap(ctx context.Context, p persistence.Persister, adminName, roomName string) (*types.Room, error) {
	roomName = types.NormalizeRoomName(roomName)
	room, err := p.GetRoomByName(ctx, roomName)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, persistence.ErrNotFound) {
		return nil, err
	}
	now := time.Now().UTC()
	owner, err := p.GetUserByName(ctx, adminName)
	if errors.Is(err, persistence.ErrNotFound) {
		owner = &types.User{
			Id:            adminName,
			Name:          adminName,
			Authenticated: true,
			CreatedAt:     now,
		}
		err = p.StoreUser(ctx, owner)
	}
	if err != nil {
		return nil, err
	}
	room = &types.Room{
		Id:        uuid.NewString(),
		Name:      roomName,
		OwnerId:   owner.Id,
		CreatedAt: now,
	}
	if err := p.StoreRoom(ctx, room); err != nil {
		return nil, err
	}
	return room, nil
}
