package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/tcriess/lightspeed-rooms/types"
)

// applyCommand forwards a request to users with more authority than the sender. The first argument may
// name a recipient with the target marker, otherwise the owner gets requests of admins and the unlimited
// admins get all others.
type applyCommand struct {
	*base
	text       string
	recipients []*types.User
}

func newApplyCommand(b *base) Command {
	return &applyCommand{base: b}
}

func (c *applyCommand) checkInitialErrors(ctx context.Context) (bool, error) {
	if err := c.resolveSender(ctx); err != nil {
		return false, err
	}
	if c.senderTier < types.TierAuthenticated {
		c.reject(AuthorizationError, "You need to be logged in to apply for anything.")
		return false, nil
	}
	if c.senderTier >= types.TierUnlimitedAdmin {
		c.reject(AuthorizationError, "You are %s already, there is nobody to apply to.", withArticle(c.senderTier))
		return false, nil
	}
	return true, nil
}

func (c *applyCommand) checkArguments(ctx context.Context) (bool, error) {
	c.text = c.rest
	if len(c.args) > 0 && strings.HasPrefix(c.args[0], targetMarker) {
		name := strings.TrimPrefix(c.args[0], targetMarker)
		_, c.text = splitFirst(c.rest)
		target, err := c.lookupUser(ctx, name)
		if err != nil {
			return false, err
		}
		if target == nil {
			c.reject(TargetError, "Nobody named %s exists.", name)
			return false, nil
		}
		tier, err := c.tierOf(ctx, target)
		if err != nil {
			return false, err
		}
		if tier <= c.senderTier {
			c.reject(TargetError, "%s is %s, they can't help you. %s", target.Name, withArticle(tier), elevateHint)
			return false, nil
		}
		c.recipients = []*types.User{target}
		return true, nil
	}
	recipients, err := c.defaultRecipients(ctx)
	if err != nil {
		return false, err
	}
	if len(recipients) == 0 {
		c.reject(StateError, "There is nobody in charge of %s to apply to.", c.room.Title())
		return false, nil
	}
	c.recipients = recipients
	return true, nil
}

func (c *applyCommand) defaultRecipients(ctx context.Context) ([]*types.User, error) {
	if c.senderTier != types.TierAdmin {
		adminships, err := c.env.Persister.GetAdminships(ctx, c.room.Id)
		if err != nil {
			return nil, err
		}
		var unlimited []*types.User
		for _, adminship := range adminships {
			if !adminship.Unlimited {
				continue
			}
			user, err := c.env.Persister.GetUser(ctx, adminship.UserId)
			if err != nil {
				return nil, err
			}
			unlimited = append(unlimited, user)
		}
		if len(unlimited) > 0 {
			return unlimited, nil
		}
	}
	if c.room.OwnerId == "" {
		return nil, nil
	}
	owner, err := c.env.Persister.GetUser(ctx, c.room.OwnerId)
	if err != nil {
		return nil, err
	}
	return []*types.User{owner}, nil
}

func (c *applyCommand) executeImplementation(ctx context.Context) error {
	c.durableNotifications = true
	text := strings.TrimSpace(c.text)
	for _, recipient := range c.recipients {
		if text == "" {
			c.notify(recipient, fmt.Sprintf("%s (%s) applies for more authority in %s.", c.sender.Name, c.senderTier, c.room.Title()))
		} else {
			c.notify(recipient, fmt.Sprintf("%s (%s) applies for more authority in %s:", c.sender.Name, c.senderTier, c.room.Title()), text)
		}
	}
	c.receipt(list("Your application was sent to:", names(c.recipients), "")...)
	return nil
}
