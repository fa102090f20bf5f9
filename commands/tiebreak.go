package commands

import (
	"fmt"

	"github.com/tcriess/lightspeed-rooms/types"
)

func withArticle(t types.Tier) string {
	switch t {
	case types.TierOwner:
		return "the owner"
	case types.TierAuthenticated:
		return "a user"
	}
	return "an " + t.String()
}

// mayActOn applies the tie-break rule: nobody acts on a user of equal or higher tier, except the owner who may
// act on anyone. A rejection is reported if the sender may not act on target.
func (b *base) mayActOn(target *types.User, targetTier types.Tier, verb string) bool {
	if b.senderTier == types.TierOwner || targetTier < b.senderTier {
		return true
	}
	switch {
	case targetTier == types.TierOwner:
		b.reject(TargetError, "%s is the owner of this room, so you can't %s them.", target.Name, verb)
	case targetTier == b.senderTier:
		b.reject(TargetError, "%s is %s just like you, so you can't %s them. %s", target.Name, withArticle(targetTier), verb, elevateHint)
	default:
		b.reject(TargetError, "%s is %s, so you can't %s them. %s", target.Name, withArticle(targetTier), verb, elevateHint)
	}
	return false
}

func usage(name, args string) string {
	return fmt.Sprintf("Usage: /%s %s", name, args)
}
