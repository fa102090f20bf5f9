package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tcriess/lightspeed-rooms/persistence"
	"github.com/tcriess/lightspeed-rooms/types"
)

type fireCommand struct {
	*base
	changes  []staffChange
	affected []staffChange
}

func newFireCommand(b *base) Command {
	return &fireCommand{base: b}
}

func (c *fireCommand) checkInitialErrors(ctx context.Context) (bool, error) {
	if err := c.resolveSender(ctx); err != nil {
		return false, err
	}
	if c.senderTier < types.TierUnlimitedAdmin {
		c.reject(AuthorizationError, "Only unlimited admins and the owner can fire admins.")
		return false, nil
	}
	if len(c.args) == 0 {
		c.reject(UsageError, "%s", usage(c.name, "<user> [more users ...]"))
		return false, nil
	}
	return true, nil
}

func (c *fireCommand) checkArguments(ctx context.Context) (bool, error) {
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
			c.reject(TargetError, "You can't fire yourself.")
			continue
		case c.room.IsOwner(target):
			c.reject(TargetError, "%s is the owner of this room, so you can't fire them.", target.Name)
			continue
		}
		adminship, err := c.env.Persister.GetAdminship(ctx, c.room.Id, target.Id)
		if errors.Is(err, persistence.ErrNotFound) {
			c.reject(StateError, "%s isn't an admin.", target.Name)
			continue
		}
		if err != nil {
			return false, err
		}
		if adminship.Unlimited && c.senderTier != types.TierOwner {
			c.reject(TargetError, "%s is an unlimited admin, so only the owner can demote them. %s", target.Name, elevateHint)
			continue
		}
		c.changes = append(c.changes, staffChange{user: target, adminship: adminship})
	}
	return len(c.changes) > 0, nil
}

// executeImplementation demotes unlimited admins to admins and revokes the adminship of admins.
func (c *fireCommand) executeImplementation(ctx context.Context) error {
	var err error
	items := []string{}
	for _, change := range c.changes {
		adminship := change.adminship
		if adminship.Unlimited {
			adminship.Unlimited = false
			adminship.IssuerId = c.sender.Id
			adminship.UpdatedAt = time.Now().UTC()
			if err = c.env.Persister.StoreAdminship(ctx, adminship); err != nil {
				break
			}
			items = append(items, fmt.Sprintf("%s (now %s)", change.user.Name, withArticle(types.TierAdmin)))
			c.notify(change.user, fmt.Sprintf("%s demoted you to %s of %s.", c.sender.Name, withArticle(types.TierAdmin), c.room.Title()))
		} else {
			if err = c.env.Persister.DeleteAdminship(ctx, adminship); err != nil {
				break
			}
			items = append(items, fmt.Sprintf("%s (no longer an admin)", change.user.Name))
			c.notify(change.user, fmt.Sprintf("%s removed your admin rights in %s.", c.sender.Name, c.room.Title()))
		}
		c.affected = append(c.affected, change)
	}
	if len(c.affected) > 0 {
		c.receipt(list("Fired:", items, "Hope they find their calling elsewhere.")...)
		c.notifyOccupants(list("One or more admins have been demoted:", items, "")...)
	}
	return err
}
