package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/tcriess/lightspeed-rooms/membership"
	"github.com/tcriess/lightspeed-rooms/persistence"
	"github.com/tcriess/lightspeed-rooms/types"
)

type whoCommand struct {
	*base
	rooms []*types.Room
}

func newWhoCommand(b *base) Command {
	return &whoCommand{base: b}
}

func (c *whoCommand) checkInitialErrors(ctx context.Context) (bool, error) {
	return true, nil
}

// checkArguments collects the rooms to list, no arguments means the current room.
func (c *whoCommand) checkArguments(ctx context.Context) (bool, error) {
	if len(c.args) == 0 {
		c.rooms = append(c.rooms, c.room)
		return true, nil
	}
	for _, name := range c.args {
		room, err := c.env.Persister.GetRoomByName(ctx, types.NormalizeRoomName(name))
		if errors.Is(err, persistence.ErrNotFound) || (err == nil && !c.mayList(room)) {
			c.reject(TargetError, "No room named %s exists.", name)
			continue
		}
		if err != nil {
			return false, err
		}
		c.rooms = append(c.rooms, room)
	}
	return len(c.rooms) > 0, nil
}

// mayList hides private rooms from everybody but their two parties.
func (c *whoCommand) mayList(room *types.Room) bool {
	if !room.Private || room.Id == c.room.Id {
		return true
	}
	return room.IsParty(c.sender.Id)
}

type listedOccupant struct {
	user *types.User
	tier types.Tier
}

func (c *whoCommand) executeImplementation(ctx context.Context) error {
	for _, room := range c.rooms {
		lines, err := c.listing(ctx, room)
		if err != nil {
			return err
		}
		c.receipt(lines...)
	}
	return nil
}

func (c *whoCommand) listing(ctx context.Context, room *types.Room) ([]string, error) {
	users, err := c.env.Persister.GetOccupants(ctx, room.Id)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return []string{fmt.Sprintf("%s is empty.", room.Title())}, nil
	}
	occupants := make([]listedOccupant, 0, len(users))
	for _, user := range users {
		tier, err := membership.Resolve(ctx, c.env.Persister, user, room)
		if err != nil {
			return nil, err
		}
		occupants = append(occupants, listedOccupant{user: user, tier: tier})
	}
	sort.SliceStable(occupants, func(i, j int) bool {
		if occupants[i].tier != occupants[j].tier {
			return occupants[i].tier > occupants[j].tier
		}
		return occupants[i].user.Name < occupants[j].user.Name
	})
	items := make([]string, 0, len(occupants))
	for _, o := range occupants {
		item := o.user.Name
		switch {
		case o.tier == types.TierOwner:
			item += " [Owner]"
		case o.tier.IsAdmin():
			item += " [Admin]"
		}
		if o.user.Id == c.sender.Id {
			item += " [you]"
		}
		items = append(items, item)
	}
	return list(fmt.Sprintf("Users in %s:", room.Title()), items, ""), nil
}
