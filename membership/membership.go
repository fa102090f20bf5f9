package membership

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/folkengine/goname"
	"github.com/google/uuid"
	"github.com/tcriess/lightspeed-rooms/persistence"
	"github.com/tcriess/lightspeed-rooms/types"
)

var (
	ErrBanned      = errors.New("user is banned from this room")
	ErrPrivateRoom = errors.New("private room")
)

// Admit adds user to the occupants of room. The ban check comes first, a banned user never shows up as an occupant.
func Admit(ctx context.Context, p persistence.Persister, user *types.User, room *types.Room) error {
	if room.Private && !room.IsParty(user.Id) {
		return ErrPrivateRoom
	}
	_, err := p.GetActiveBan(ctx, room.Id, user.Id)
	if err == nil {
		return ErrBanned
	}
	if !errors.Is(err, persistence.ErrNotFound) {
		return fmt.Errorf("could not check ban: %w", err)
	}
	return p.AddOccupant(ctx, room.Id, user.Id)
}

// Leave removes user from the occupants of room. Anonymous users are deleted once they are not in any room.
func Leave(ctx context.Context, p persistence.Persister, user *types.User, room *types.Room) error {
	err := p.RemoveOccupant(ctx, room.Id, user.Id)
	if err != nil {
		return err
	}
	if !user.Anonymous {
		user.LastOnline = time.Now().UTC()
		return p.StoreUser(ctx, user)
	}
	roomIds, err := p.GetOccupiedRoomIds(ctx, user.Id)
	if err != nil {
		return err
	}
	if len(roomIds) > 0 {
		return nil
	}
	err = p.DeleteUser(ctx, user)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil
	}
	return err
}

func anonymousName() string {
	name := strings.ReplaceAll(goname.New(goname.FantasyMap).FirstLast(), " ", "")
	return fmt.Sprintf("%s_%s", name, uuid.NewString()[:4])
}

// NewAnonymousUser creates and stores a guest user with a generated, whitespace-free name.
func NewAnonymousUser(ctx context.Context, p persistence.Persister) (*types.User, error) {
	now := time.Now().UTC()
	var lastErr error
	for i := 0; i < 3; i++ {
		user := &types.User{
			Id:         uuid.NewString(),
			Name:       anonymousName(),
			Anonymous:  true,
			LastOnline: now,
			CreatedAt:  now,
		}
		_, err := p.GetUserByName(ctx, user.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, persistence.ErrNotFound) {
			return nil, err
		}
		if lastErr = p.StoreUser(ctx, user); lastErr == nil {
			return user, nil
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("could not find a free guest name")
	}
	return nil, lastErr
}

// sweepGracePeriod protects guests that were just created and are about to be admitted.
const sweepGracePeriod = time.Minute

// SweepAnonymousUsers deletes anonymous users which are not in any room, f.e. left over after a crash.
// It returns the number of deleted users.
func SweepAnonymousUsers(ctx context.Context, p persistence.Persister) (int, error) {
	users, err := p.GetUsers(ctx)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, user := range users {
		if !user.Anonymous || time.Since(user.CreatedAt) < sweepGracePeriod {
			continue
		}
		roomIds, err := p.GetOccupiedRoomIds(ctx, user.Id)
		if err != nil {
			return deleted, err
		}
		if len(roomIds) > 0 {
			continue
		}
		err = p.DeleteUser(ctx, user)
		if err != nil && !errors.Is(err, persistence.ErrNotFound) {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}
