package commands

import (
	"context"
	"errors"

	"github.com/tcriess/lightspeed-rooms/persistence"
	"github.com/tcriess/lightspeed-rooms/types"
)

type liftCommand struct {
	*base
	bans     []*types.Ban
	targets  []*types.User
	affected []*types.User
}

func newLiftCommand(b *base) Command {
	return &liftCommand{base: b}
}

func (c *liftCommand) checkInitialErrors(ctx context.Context) (bool, error) {
	if err := c.resolveSender(ctx); err != nil {
		return false, err
	}
	if !c.senderTier.IsAdmin() {
		c.reject(AuthorizationError, "Only admins can lift bans.")
		return false, nil
	}
	if len(c.args) == 0 {
		c.reject(UsageError, "%s", usage(c.name, "<user> [more users ...]"))
		return false, nil
	}
	return true, nil
}

func (c *liftCommand) checkArguments(ctx context.Context) (bool, error) {
	for _, name := range c.args {
		target, err := c.lookupUser(ctx, name)
		if err != nil {
			return false, err
		}
		if target == nil {
			c.reject(TargetError, "Nobody named %s exists.", name)
			continue
		}
		ban, err := c.env.Persister.GetActiveBan(ctx, c.room.Id, target.Id)
		if errors.Is(err, persistence.ErrNotFound) {
			c.reject(StateError, "%s is not banned.", target.Name)
			continue
		}
		if err != nil {
			return false, err
		}
		if ban.IssuerId != c.sender.Id {
			issuerTier, issuerName, err := c.issuer(ctx, ban)
			if err != nil {
				return false, err
			}
			if issuerTier >= c.senderTier {
				c.reject(TargetError, "%s was banned by %s, who is %s, so you can't lift that ban. %s",
					target.Name, issuerName, withArticle(issuerTier), elevateHint)
				continue
			}
		}
		c.bans = append(c.bans, ban)
		c.targets = append(c.targets, target)
	}
	return len(c.bans) > 0, nil
}

// issuer resolves the current tier of the user who issued ban. Deleted issuers count as anonymous.
func (c *liftCommand) issuer(ctx context.Context, ban *types.Ban) (types.Tier, string, error) {
	issuer, err := c.env.Persister.GetUser(ctx, ban.IssuerId)
	if errors.Is(err, persistence.ErrNotFound) {
		return types.TierAnonymous, "a former user", nil
	}
	if err != nil {
		return types.TierAnonymous, "", err
	}
	tier, err := c.tierOf(ctx, issuer)
	return tier, issuer.Name, err
}

func (c *liftCommand) executeImplementation(ctx context.Context) error {
	var err error
	for i, ban := range c.bans {
		ban.Lifted = true
		if err = c.env.Persister.StoreBan(ctx, ban); err != nil {
			break
		}
		c.affected = append(c.affected, c.targets[i])
	}
	if len(c.affected) > 0 {
		c.receipt(list("Ban lifted:", names(c.affected), "Fully reformed and ready to integrate into society.")...)
	}
	return err
}
