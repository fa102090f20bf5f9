package commands

import (
	"context"

	"github.com/tcriess/lightspeed-rooms/types"
)

// Broadcaster delivers messages to the live sessions of a room group.
type Broadcaster interface {
	// Deliver sends message to every session of its room whose user passes the recipient and exclusion lists.
	Deliver(ctx context.Context, message *types.Message) error
	// ForceClose signals the room group that the sessions bound to userId have to close.
	ForceClose(ctx context.Context, roomId, userId string) error
	// CloseRoom closes every session of the room group, f.e. after the room was deleted.
	CloseRoom(ctx context.Context, roomId string) error
}
