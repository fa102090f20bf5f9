package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/tcriess/lightspeed-rooms/types"
)

// privateCommand sends a message to the private room shared by the sender and one other user.
type privateCommand struct {
	*base
	target      *types.User
	text        string
	privateRoom *types.Room
	// rooms the target is in, the notification is shown in each of them
	targetRoomIds []string
}

func newPrivateCommand(b *base) Command {
	return &privateCommand{base: b}
}

func (c *privateCommand) checkInitialErrors(ctx context.Context) (bool, error) {
	if len(c.args) == 0 || !strings.HasPrefix(c.args[0], targetMarker) || c.args[0] == targetMarker {
		c.reject(UsageError, "%s", usage(c.name, targetMarker+"<user> <message>"))
		return false, nil
	}
	return true, nil
}

func (c *privateCommand) checkArguments(ctx context.Context) (bool, error) {
	name := strings.TrimPrefix(c.args[0], targetMarker)
	target, err := c.lookupUser(ctx, name)
	if err != nil {
		return false, err
	}
	if target == nil {
		c.reject(TargetError, "Nobody named %s exists.", name)
		return false, nil
	}
	if target.Id == c.sender.Id {
		c.reject(TargetError, "Talking to yourself? Try a private message to somebody else.")
		return false, nil
	}
	_, c.text = splitFirst(c.rest)
	if strings.TrimSpace(c.text) == "" {
		c.reject(UsageError, "What do you want to tell %s?", target.Name)
		return false, nil
	}
	c.target = target
	return true, nil
}

func (c *privateCommand) executeImplementation(ctx context.Context) error {
	room, err := c.env.PrivateRooms.Get(ctx, c.sender, c.target)
	if err != nil {
		return err
	}
	msg := types.NewMessage(room.Id, c.sender, c.text)
	if err := msg.CreateId(); err != nil {
		return err
	}
	if err := c.env.Persister.StoreMessage(ctx, msg); err != nil {
		return err
	}
	c.deliver(ctx, msg)
	c.privateRoom = room
	roomIds, err := c.env.Persister.GetOccupiedRoomIds(ctx, c.target.Id)
	if err != nil {
		return err
	}
	c.targetRoomIds = lo.Without(roomIds, room.Id)
	c.receipt(fmt.Sprintf("To %s (private): %s", c.target.Name, c.text))
	return nil
}

func (c *privateCommand) sendResponses(ctx context.Context) {
	c.base.sendResponses(ctx)
	if c.privateRoom == nil {
		return
	}
	for _, roomId := range c.targetRoomIds {
		msg := types.NewMessage(roomId, nil,
			fmt.Sprintf("From %s (private): %s", c.sender.Name, c.text),
			fmt.Sprintf("Answer with /p %s%s <message>, or join %s to see the whole conversation.", targetMarker, c.sender.Name, c.privateRoom.Name))
		msg.Recipients = types.IdList{c.target.Id}
		msg.Transient = true
		c.deliver(ctx, msg)
	}
}
