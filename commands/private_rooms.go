package commands

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"github.com/tcriess/lightspeed-rooms/persistence"
	"github.com/tcriess/lightspeed-rooms/types"
)

const privateRoomPrefix = "private-"

// PrivateRooms finds or creates the two-party room of a pair of users. Lookups are cached by pair key.
type PrivateRooms struct {
	persister persistence.Persister
	cache     *lru.Cache
	sync.Mutex
}

func NewPrivateRooms(persister persistence.Persister, cacheSize int) (*PrivateRooms, error) {
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	return &PrivateRooms{persister: persister, cache: cache}, nil
}

// PrivateRoomName derives the stable name of the private room of a pair key.
func PrivateRoomName(pairKey string) string {
	return privateRoomPrefix + uuid.NewSHA1(uuid.NameSpaceOID, []byte(pairKey)).String()
}

// Get returns the private room shared by a and b, creating it on first use.
func (pr *PrivateRooms) Get(ctx context.Context, a, b *types.User) (*types.Room, error) {
	pairKey := types.PairKey(a.Id, b.Id)
	if cached, ok := pr.cache.Get(pairKey); ok {
		room := cached.(*types.Room)
		_, err := pr.persister.GetRoom(ctx, room.Id)
		if err == nil {
			return room, nil
		}
		if !errors.Is(err, persistence.ErrNotFound) {
			return nil, err
		}
		// deleted together with one of its users
		pr.Forget(room)
	}
	pr.Lock()
	defer pr.Unlock()
	room, err := pr.persister.GetRoomByPairKey(ctx, pairKey)
	if errors.Is(err, persistence.ErrNotFound) {
		room = &types.Room{
			Id:      uuid.NewString(),
			Name:    PrivateRoomName(pairKey),
			Private: true,
			PairKey: pairKey,
		}
		err = pr.persister.StoreRoom(ctx, room)
	}
	if err != nil {
		return nil, err
	}
	pr.cache.Add(pairKey, room)
	return room, nil
}

// Forget drops a cached room.
func (pr *PrivateRooms) Forget(room *types.Room) {
	if room.PairKey != "" {
		pr.cache.Remove(room.PairKey)
	}
}
