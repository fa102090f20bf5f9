package membership

import (
	"context"
	"errors"

	"github.com/tcriess/lightspeed-rooms/persistence"
	"github.com/tcriess/lightspeed-rooms/types"
)

// Resolve computes the tier of user in room from the current owner and adminship facts. Nothing is cached,
// every call reads the persister.
func Resolve(ctx context.Context, p persistence.Persister, user *types.User, room *types.Room) (types.Tier, error) {
	if room.IsOwner(user) {
		return types.TierOwner, nil
	}
	adminship, err := p.GetAdminship(ctx, room.Id, user.Id)
	switch {
	case err == nil:
		return adminship.Tier(), nil
	case !errors.Is(err, persistence.ErrNotFound):
		return types.TierAnonymous, err
	}
	if user.Registered() {
		return types.TierAuthenticated, nil
	}
	return types.TierAnonymous, nil
}
