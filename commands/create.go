package commands

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tcriess/lightspeed-rooms/persistence"
	"github.com/tcriess/lightspeed-rooms/types"
)

// RoomNamePattern is the form of a normalized room name, shared with the http routes.
const RoomNamePattern = "[a-z][a-z0-9_-]+"

var roomNameRegexp = regexp.MustCompile("^" + RoomNamePattern + "$")

// ValidRoomName reports whether a normalized name may be used for a new room.
func ValidRoomName(name string) bool {
	return roomNameRegexp.MatchString(name) && !strings.HasPrefix(name, privateRoomPrefix)
}

type createCommand struct {
	*base
	displayName string
	roomName    string
}

func newCreateCommand(b *base) Command {
	return &createCommand{base: b}
}

func (c *createCommand) checkInitialErrors(ctx context.Context) (bool, error) {
	if !c.sender.Registered() {
		c.reject(AuthorizationError, "You need to be logged in to create rooms.")
		return false, nil
	}
	switch len(c.args) {
	case 0:
		c.reject(UsageError, "%s", usage(c.name, "<room name>"))
		return false, nil
	case 1:
	default:
		c.reject(UsageError, "Room names can't contain whitespace.")
		return false, nil
	}
	return true, nil
}

func (c *createCommand) checkArguments(ctx context.Context) (bool, error) {
	c.displayName = c.args[0]
	c.roomName = types.NormalizeRoomName(c.displayName)
	if !ValidRoomName(c.roomName) {
		c.reject(UsageError, "%s is not a valid room name. Use a letter followed by letters, digits, - or _.", c.displayName)
		return false, nil
	}
	_, err := c.env.Persister.GetRoomByName(ctx, c.roomName)
	if err == nil {
		c.reject(StateError, "A room named %s already exists.", c.roomName)
		return false, nil
	}
	if !errors.Is(err, persistence.ErrNotFound) {
		return false, err
	}
	return true, nil
}

func (c *createCommand) executeImplementation(ctx context.Context) error {
	room := &types.Room{
		Id:        uuid.NewString(),
		Name:      c.roomName,
		OwnerId:   c.sender.Id,
		CreatedAt: time.Now().UTC(),
	}
	if c.displayName != c.roomName {
		room.DisplayName = c.displayName
	}
	if err := c.env.Persister.StoreRoom(ctx, room); err != nil {
		return err
	}
	c.receipt(fmt.Sprintf("Created %s. You are its owner.", room.Name))
	return nil
}
