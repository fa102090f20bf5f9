package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tcriess/lightspeed-rooms/persistence"
	"github.com/tcriess/lightspeed-rooms/types"
)

// removalCommand implements /kick and /ban. Both take their targets out of the room and close their sessions,
// a ban additionally keeps them out until it is lifted.
type removalCommand struct {
	*base
	ban      bool
	targets  []*types.User
	affected []*types.User
}

func newKickCommand(b *base) Command {
	return &removalCommand{base: b}
}

func newBanCommand(b *base) Command {
	return &removalCommand{base: b, ban: true}
}

func (c *removalCommand) verb() string {
	if c.ban {
		return "ban"
	}
	return "kick"
}

func (c *removalCommand) checkInitialErrors(ctx context.Context) (bool, error) {
	if err := c.resolveSender(ctx); err != nil {
		return false, err
	}
	if !c.senderTier.IsAdmin() {
		c.reject(AuthorizationError, "Only admins can %s users.", c.verb())
		return false, nil
	}
	if len(c.args) == 0 {
		c.reject(UsageError, "%s", usage(c.name, "<user> [more users ...]"))
		return false, nil
	}
	return true, nil
}

func (c *removalCommand) checkArguments(ctx context.Context) (bool, error) {
	for _, name := range c.args {
		if err := c.checkTarget(ctx, name); err != nil {
			return false, err
		}
	}
	return len(c.targets) > 0, nil
}

func (c *removalCommand) checkTarget(ctx context.Context, name string) error {
	target, err := c.lookupUser(ctx, name)
	if err != nil {
		return err
	}
	if target == nil {
		if c.ban {
			c.reject(TargetError, "Nobody named %s exists.", name)
		} else {
			c.reject(TargetError, "Nobody named %s is in this room.", name)
		}
		return nil
	}
	if !c.ban {
		present, err := c.env.Persister.IsOccupant(ctx, c.room.Id, target.Id)
		if err != nil {
			return err
		}
		if !present {
			c.reject(TargetError, "Nobody named %s is in this room.", name)
			return nil
		}
	}
	if target.Id == c.sender.Id {
		c.reject(TargetError, "You can't %s yourself.", c.verb())
		return nil
	}
	if c.room.IsOwner(target) {
		c.reject(TargetError, "%s is the owner of this room, so you can't %s them.", target.Name, c.verb())
		return nil
	}
	tier, err := c.tierOf(ctx, target)
	if err != nil {
		return err
	}
	if !c.mayActOn(target, tier, c.verb()) {
		return nil
	}
	if c.ban {
		_, err := c.env.Persister.GetActiveBan(ctx, c.room.Id, target.Id)
		if err == nil {
			c.reject(StateError, "%s is already banned.", target.Name)
			return nil
		}
		if !errors.Is(err, persistence.ErrNotFound) {
			return err
		}
	}
	c.targets = append(c.targets, target)
	return nil
}

func (c *removalCommand) executeImplementation(ctx context.Context) error {
	var err error
	for _, target := range c.targets {
		if c.ban {
			ban := &types.Ban{
				Id:       uuid.NewString(),
				RoomId:   c.room.Id,
				UserId:   target.Id,
				IssuerId: c.sender.Id,
				Created:  time.Now().UTC(),
			}
			if err = c.env.Persister.StoreBan(ctx, ban); err != nil {
				break
			}
			c.affected = append(c.affected, target)
			if err = c.env.Persister.RemoveOccupant(ctx, c.room.Id, target.Id); err != nil {
				break
			}
			continue
		}
		if err = c.env.Persister.RemoveOccupant(ctx, c.room.Id, target.Id); err != nil {
			break
		}
		c.affected = append(c.affected, target)
	}
	if len(c.affected) == 0 {
		return err
	}
	affectedNames := names(c.affected)
	if c.ban {
		c.receipt(list("Banned:", affectedNames, "Good riddance.")...)
		c.notifyOccupants(list("One or more users have been banned:", affectedNames, "Let this be a lesson to you all.")...)
	} else {
		c.receipt(list("Kicked:", affectedNames, "That'll show them.")...)
		c.notifyOccupants(list("One or more users have been kicked:", affectedNames, "Let this be a lesson to you all.")...)
	}
	for _, target := range c.affected {
		if c.ban {
			c.notify(target, fmt.Sprintf("You have been banned from %s by %s.", c.room.Title(), c.sender.Name))
		} else {
			c.notify(target, fmt.Sprintf("You have been kicked from %s by %s. You can come back once you've cooled off.", c.room.Title(), c.sender.Name))
		}
	}
	return err
}

// sendResponses closes the sessions of the removed users after they got their notification.
func (c *removalCommand) sendResponses(ctx context.Context) {
	c.base.sendResponses(ctx)
	for _, target := range c.affected {
		c.forceClose(ctx, c.room.Id, target.Id)
	}
}
