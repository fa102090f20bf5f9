package commands

import (
	"context"
	"fmt"

	"github.com/tcriess/lightspeed-rooms/types"
)

// deleteCommand removes the current room. The owner confirms by naming the room and themselves.
type deleteCommand struct {
	*base
	deleted bool
}

func newDeleteCommand(b *base) Command {
	return &deleteCommand{base: b}
}

func (c *deleteCommand) confirmation() string {
	return fmt.Sprintf("To delete %s, type /%s %s %s. This can't be undone.", c.room.Title(), c.name, c.room.Name, c.sender.Name)
}

func (c *deleteCommand) checkInitialErrors(ctx context.Context) (bool, error) {
	if err := c.resolveSender(ctx); err != nil {
		return false, err
	}
	if c.senderTier != types.TierOwner {
		c.reject(AuthorizationError, "Only the owner can delete %s.", c.room.Title())
		return false, nil
	}
	if len(c.args) != 2 {
		c.reject(UsageError, "%s", c.confirmation())
		return false, nil
	}
	return true, nil
}

func (c *deleteCommand) checkArguments(ctx context.Context) (bool, error) {
	if types.NormalizeRoomName(c.args[0]) != c.room.Name || c.args[1] != c.sender.Name {
		c.reject(UsageError, "That doesn't match. %s", c.confirmation())
		return false, nil
	}
	return true, nil
}

func (c *deleteCommand) executeImplementation(ctx context.Context) error {
	if err := c.env.Persister.DeleteRoom(ctx, c.room); err != nil {
		return err
	}
	c.deleted = true
	c.receipt(fmt.Sprintf("Deleted %s.", c.room.Title()))
	c.notifyOccupants(fmt.Sprintf("%s has been deleted by its owner. Goodbye.", c.room.Title()))
	return nil
}

// sendResponses closes all sessions of the deleted room once everybody was told.
func (c *deleteCommand) sendResponses(ctx context.Context) {
	c.base.sendResponses(ctx)
	if !c.deleted {
		return
	}
	if err := c.env.Broadcaster.CloseRoom(ctx, c.room.Id); err != nil {
		c.env.Logger.Error("could not close room", "room", c.room.Name, "error", err)
	}
}
