package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tcriess/lightspeed-rooms/persistence"
	"github.com/tcriess/lightspeed-rooms/types"
)

// staffChange is one grant or revocation of admin rights by /hire or /fire.
type staffChange struct {
	user      *types.User
	adminship *types.Adminship // nil if the user is not an admin yet
}

type hireCommand struct {
	*base
	changes  []staffChange
	affected []staffChange
}

func newHireCommand(b *base) Command {
	return &hireCommand{base: b}
}

func (c *hireCommand) checkInitialErrors(ctx context.Context) (bool, error) {
	if err := c.resolveSender(ctx); err != nil {
		return false, err
	}
	if c.senderTier < types.TierUnlimitedAdmin {
		c.reject(AuthorizationError, "Only unlimited admins and the owner can hire admins.")
		return false, nil
	}
	if len(c.args) == 0 {
		c.reject(UsageError, "%s", usage(c.name, "<user> [more users ...]"))
		return false, nil
	}
	return true, nil
}

func (c *hireCommand) checkArguments(ctx context.Context) (bool, error) {
	for _, name := range c.args {
		target, err := c.lookupUser(ctx, name)
		if err != nil {
			return false, err
		}
		switch {
		case target == nil:
			c.reject(TargetError, "Nobody named %s exists.", name)
			continue
		case target.Id == c.sender.Id:
			c.reject(TargetError, "You can't hire yourself.")
			continue
		case c.room.IsOwner(target):
			c.reject(TargetError, "%s is the owner of this room, so you can't hire them.", target.Name)
			continue
		case !target.Registered():
			c.reject(TargetError, "%s isn't logged in, so they can't be an admin.", target.Name)
			continue
		}
		_, err = c.env.Persister.GetActiveBan(ctx, c.room.Id, target.Id)
		if err == nil {
			c.reject(StateError, "%s is banned from this room. Lift the ban first.", target.Name)
			continue
		}
		if !errors.Is(err, persistence.ErrNotFound) {
			return false, err
		}
		adminship, err := c.env.Persister.GetAdminship(ctx, c.room.Id, target.Id)
		if errors.Is(err, persistence.ErrNotFound) {
			c.changes = append(c.changes, staffChange{user: target})
			continue
		}
		if err != nil {
			return false, err
		}
		if adminship.Unlimited {
			c.reject(StateError, "%s is already an unlimited admin.", target.Name)
			continue
		}
		if c.senderTier != types.TierOwner {
			c.reject(AuthorizationError, "%s is already an admin. Only the owner can make them an unlimited admin.", target.Name)
			continue
		}
		c.changes = append(c.changes, staffChange{user: target, adminship: adminship})
	}
	return len(c.changes) > 0, nil
}

func (c *hireCommand) executeImplementation(ctx context.Context) error {
	var err error
	for _, change := range c.changes {
		adminship := change.adminship
		if adminship == nil {
			adminship = &types.Adminship{
				RoomId:    c.room.Id,
				UserId:    change.user.Id,
				CreatedAt: time.Now().UTC(),
			}
		} else {
			adminship.Unlimited = true
		}
		adminship.IssuerId = c.sender.Id
		adminship.UpdatedAt = time.Now().UTC()
		if err = c.env.Persister.StoreAdminship(ctx, adminship); err != nil {
			break
		}
		change.adminship = adminship
		c.affected = append(c.affected, change)
	}
	if len(c.affected) == 0 {
		return err
	}
	items := make([]string, 0, len(c.affected))
	for _, change := range c.affected {
		tier := change.adminship.Tier()
		items = append(items, fmt.Sprintf("%s (%s)", change.user.Name, tier))
		c.notify(change.user, fmt.Sprintf("%s made you %s of %s.", c.sender.Name, withArticle(tier), c.room.Title()))
	}
	c.receipt(list("Hired:", items, "Use your new staff wisely.")...)
	c.notifyOccupants(list("One or more users have been promoted:", items, "Show them some respect.")...)
	return err
}
