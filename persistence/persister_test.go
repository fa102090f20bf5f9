package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcriess/lightspeed-rooms/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestBuntDBPersister(t *testing.T) {
	p, err := OpenBuntPersister(":memory:")
	require.NoError(t, err)
	defer p.Close()
	runPersisterTests(t, p)
}

func TestGormPersister(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	p, err := NewGormPersisterFromDB(db)
	require.NoError(t, err)
	defer p.Close()
	runPersisterTests(t, p)
}

func runPersisterTests(t *testing.T, p Persister) {
	ctx := context.Background()
	owner := &types.User{Id: "owner@example.com", Name: "owner", Authenticated: true}
	alice := &types.User{Id: "alice@example.com", Name: "alice", Authenticated: true}
	guest := &types.User{Id: "guest-1", Name: "Guest_1", Anonymous: true}
	for _, u := range []*types.User{owner, alice, guest} {
		require.NoError(t, p.StoreUser(ctx, u))
	}
	room := &types.Room{Id: "room-1", Name: "lobby", DisplayName: "Lobby", OwnerId: owner.Id}
	require.NoError(t, p.StoreRoom(ctx, room))

	t.Run("users", func(t *testing.T) {
		u, err := p.GetUserByName(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, alice.Id, u.Id)
		assert.True(t, u.Authenticated)

		_, err = p.GetUserByName(ctx, "Alice")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = p.GetUser(ctx, "nobody")
		assert.ErrorIs(t, err, ErrNotFound)

		users, err := p.GetUsers(ctx)
		require.NoError(t, err)
		assert.Len(t, users, 3)
	})

	t.Run("rooms", func(t *testing.T) {
		r, err := p.GetRoomByName(ctx, "LOBBY")
		require.NoError(t, err)
		assert.Equal(t, room.Id, r.Id)
		assert.Equal(t, "Lobby", r.DisplayName)
		assert.Equal(t, owner.Id, r.OwnerId)

		private := &types.Room{Id: "room-p", Name: "private-a-b", Private: true, PairKey: types.PairKey(alice.Id, owner.Id)}
		require.NoError(t, p.StoreRoom(ctx, private))
		r, err = p.GetRoomByPairKey(ctx, types.PairKey(owner.Id, alice.Id))
		require.NoError(t, err)
		assert.Equal(t, private.Id, r.Id)
	})

	t.Run("adminships", func(t *testing.T) {
		require.NoError(t, p.StoreAdminship(ctx, &types.Adminship{RoomId: room.Id, UserId: alice.Id, IssuerId: owner.Id}))
		a, err := p.GetAdminship(ctx, room.Id, alice.Id)
		require.NoError(t, err)
		assert.Equal(t, types.TierAdmin, a.Tier())

		a.Unlimited = true
		require.NoError(t, p.StoreAdminship(ctx, a))
		a, err = p.GetAdminship(ctx, room.Id, alice.Id)
		require.NoError(t, err)
		assert.Equal(t, types.TierUnlimitedAdmin, a.Tier())

		all, err := p.GetAdminships(ctx, room.Id)
		require.NoError(t, err)
		assert.Len(t, all, 1)

		require.NoError(t, p.DeleteAdminship(ctx, a))
		_, err = p.GetAdminship(ctx, room.Id, alice.Id)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("bans", func(t *testing.T) {
		ban := &types.Ban{Id: "ban-1", RoomId: room.Id, UserId: guest.Id, IssuerId: owner.Id}
		require.NoError(t, p.StoreBan(ctx, ban))
		active, err := p.GetActiveBan(ctx, room.Id, guest.Id)
		require.NoError(t, err)
		assert.Equal(t, ban.Id, active.Id)

		// a second active ban for the same user is refused
		assert.Error(t, p.StoreBan(ctx, &types.Ban{Id: "ban-2", RoomId: room.Id, UserId: guest.Id, IssuerId: owner.Id}))

		active.Lifted = true
		require.NoError(t, p.StoreBan(ctx, active))
		_, err = p.GetActiveBan(ctx, room.Id, guest.Id)
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, p.StoreBan(ctx, &types.Ban{Id: "ban-3", RoomId: room.Id, UserId: guest.Id, IssuerId: owner.Id}))
		bans, err := p.GetBans(ctx, room.Id)
		require.NoError(t, err)
		assert.Len(t, bans, 2)
	})

	t.Run("occupants", func(t *testing.T) {
		require.NoError(t, p.AddOccupant(ctx, room.Id, owner.Id))
		require.NoError(t, p.AddOccupant(ctx, room.Id, alice.Id))
		require.NoError(t, p.AddOccupant(ctx, room.Id, alice.Id))
		occupants, err := p.GetOccupants(ctx, room.Id)
		require.NoError(t, err)
		assert.Len(t, occupants, 2)

		ok, err := p.IsOccupant(ctx, room.Id, alice.Id)
		require.NoError(t, err)
		assert.True(t, ok)

		roomIds, err := p.GetOccupiedRoomIds(ctx, alice.Id)
		require.NoError(t, err)
		assert.Equal(t, []string{room.Id}, roomIds)

		require.NoError(t, p.RemoveOccupant(ctx, room.Id, alice.Id))
		ok, err = p.IsOccupant(ctx, room.Id, alice.Id)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("messages", func(t *testing.T) {
		start := time.Now().UTC().Add(-time.Minute)
		for i, text := range []string{"first", "second", "third"} {
			msg := types.NewMessage(room.Id, alice, text)
			msg.Created = start.Add(time.Duration(i) * time.Second)
			if i == 2 {
				msg.Recipients = types.IdList{owner.Id}
			}
			require.NoError(t, p.StoreMessage(ctx, msg))
		}
		messages, err := p.GetMessageHistory(ctx, room.Id, start, time.Now().UTC(), 0, 2)
		require.NoError(t, err)
		require.Len(t, messages, 2)
		assert.Equal(t, "third", messages[0].Text)
		assert.Equal(t, types.IdList{owner.Id}, messages[0].Recipients)
		assert.Equal(t, "second", messages[1].Text)
		assert.Nil(t, messages[1].Recipients)

		messages, err = p.GetMessageHistory(ctx, room.Id, start, time.Now().UTC(), 2, 0)
		require.NoError(t, err)
		require.Len(t, messages, 1)
		assert.Equal(t, "first", messages[0].Text)
	})

	t.Run("delete user cascades", func(t *testing.T) {
		require.NoError(t, p.AddOccupant(ctx, room.Id, guest.Id))
		guestRoom := &types.Room{Id: "pair-1", Name: "private-1", Private: true, PairKey: types.PairKey(guest.Id, alice.Id)}
		keptRoom := &types.Room{Id: "pair-2", Name: "private-2", Private: true, PairKey: types.PairKey(owner.Id, alice.Id)}
		for _, r := range []*types.Room{guestRoom, keptRoom} {
			require.NoError(t, p.StoreRoom(ctx, r))
			require.NoError(t, p.StoreMessage(ctx, types.NewMessage(r.Id, alice, "psst")))
		}
		require.NoError(t, p.DeleteUser(ctx, guest))

		_, err := p.GetRoomByPairKey(ctx, guestRoom.PairKey)
		assert.ErrorIs(t, err, ErrNotFound)
		messages, err := p.GetMessageHistory(ctx, guestRoom.Id, time.Time{}, time.Now().UTC().Add(time.Minute), 0, 0)
		require.NoError(t, err)
		assert.Empty(t, messages)
		kept, err := p.GetRoomByPairKey(ctx, keptRoom.PairKey)
		require.NoError(t, err)
		assert.Equal(t, keptRoom.Id, kept.Id)
		messages, err = p.GetMessageHistory(ctx, keptRoom.Id, time.Time{}, time.Now().UTC().Add(time.Minute), 0, 0)
		require.NoError(t, err)
		assert.Len(t, messages, 1)

		_, err = p.GetUserByName(ctx, guest.Name)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = p.GetActiveBan(ctx, room.Id, guest.Id)
		assert.ErrorIs(t, err, ErrNotFound)
		ok, err := p.IsOccupant(ctx, room.Id, guest.Id)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("delete room cascades", func(t *testing.T) {
		require.NoError(t, p.StoreAdminship(ctx, &types.Adminship{RoomId: room.Id, UserId: alice.Id, IssuerId: owner.Id}))
		require.NoError(t, p.StoreBan(ctx, &types.Ban{Id: "ban-4", RoomId: room.Id, UserId: alice.Id, IssuerId: owner.Id}))
		require.NoError(t, p.DeleteRoom(ctx, room))

		_, err := p.GetRoomByName(ctx, "lobby")
		assert.ErrorIs(t, err, ErrNotFound)
		admins, err := p.GetAdminships(ctx, room.Id)
		require.NoError(t, err)
		assert.Empty(t, admins)
		bans, err := p.GetBans(ctx, room.Id)
		require.NoError(t, err)
		assert.Empty(t, bans)
		occupants, err := p.GetOccupants(ctx, room.Id)
		require.NoError(t, err)
		assert.Empty(t, occupants)
		messages, err := p.GetMessageHistory(ctx, room.Id, time.Time{}, time.Now().UTC(), 0, 0)
		require.NoError(t, err)
		assert.Empty(t, messages)

		// the room name can be reused
		require.NoError(t, p.StoreRoom(ctx, &types.Room{Id: "room-2", Name: "lobby", OwnerId: alice.Id}))
	})
}
