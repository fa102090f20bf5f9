package membership

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcriess/lightspeed-rooms/persistence"
	"github.com/tcriess/lightspeed-rooms/types"
)

func setup(t *testing.T) (*persistence.BuntDBPersist, *types.Room, map[string]*types.User) {
	t.Helper()
	p, err := persistence.OpenBuntPersister(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	ctx := context.Background()
	users := map[string]*types.User{
		"owner":     {Id: "owner", Name: "owner", Authenticated: true},
		"unlimited": {Id: "unlimited", Name: "unlimited", Authenticated: true},
		"limited":   {Id: "limited", Name: "limited", Authenticated: true},
		"user":      {Id: "user", Name: "user", Authenticated: true},
		"guest":     {Id: "guest", Name: "guest", Anonymous: true},
	}
	for _, u := range users {
		require.NoError(t, p.StoreUser(ctx, u))
	}
	room := &types.Room{Id: "r1", Name: "lobby", OwnerId: "owner"}
	require.NoError(t, p.StoreRoom(ctx, room))
	require.NoError(t, p.StoreAdminship(ctx, &types.Adminship{RoomId: room.Id, UserId: "unlimited", IssuerId: "owner", Unlimited: true}))
	require.NoError(t, p.StoreAdminship(ctx, &types.Adminship{RoomId: room.Id, UserId: "limited", IssuerId: "owner"}))
	return p, room, users
}

func TestResolve(t *testing.T) {
	p, room, users := setup(t)
	ctx := context.Background()
	tests := map[string]types.Tier{
		"owner":     types.TierOwner,
		"unlimited": types.TierUnlimitedAdmin,
		"limited":   types.TierAdmin,
		"user":      types.TierAuthenticated,
		"guest":     types.TierAnonymous,
	}
	for name, want := range tests {
		got, err := Resolve(ctx, p, users[name], room)
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}

	// an authenticated user flagged anonymous stays anonymous
	odd := &types.User{Id: "odd", Name: "odd", Authenticated: true, Anonymous: true}
	got, err := Resolve(ctx, p, odd, room)
	require.NoError(t, err)
	assert.Equal(t, types.TierAnonymous, got)
}

func TestResolveFollowsAdminships(t *testing.T) {
	p, room, users := setup(t)
	ctx := context.Background()
	require.NoError(t, p.DeleteAdminship(ctx, &types.Adminship{RoomId: room.Id, UserId: "limited"}))
	got, err := Resolve(ctx, p, users["limited"], room)
	require.NoError(t, err)
	assert.Equal(t, types.TierAuthenticated, got)

	// the owner outranks everything, even with a stray adminship row
	require.NoError(t, p.StoreAdminship(ctx, &types.Adminship{RoomId: room.Id, UserId: "owner", IssuerId: "owner"}))
	got, err = Resolve(ctx, p, users["owner"], room)
	require.NoError(t, err)
	assert.Equal(t, types.TierOwner, got)
}

func TestAdmitRefusesBannedUsers(t *testing.T) {
	p, room, users := setup(t)
	ctx := context.Background()
	ban := &types.Ban{Id: "b1", RoomId: room.Id, UserId: "user", IssuerId: "owner"}
	require.NoError(t, p.StoreBan(ctx, ban))

	err := Admit(ctx, p, users["user"], room)
	assert.ErrorIs(t, err, ErrBanned)
	ok, err := p.IsOccupant(ctx, room.Id, "user")
	require.NoError(t, err)
	assert.False(t, ok)

	ban.Lifted = true
	require.NoError(t, p.StoreBan(ctx, ban))
	require.NoError(t, Admit(ctx, p, users["user"], room))
	ok, err = p.IsOccupant(ctx, room.Id, "user")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAdmitPrivateRoom(t *testing.T) {
	p, _, users := setup(t)
	ctx := context.Background()
	private := &types.Room{Id: "p1", Name: "private-owner-user", Private: true, PairKey: types.PairKey("user", "owner")}
	require.NoError(t, p.StoreRoom(ctx, private))
	assert.NoError(t, Admit(ctx, p, users["user"], private))
	assert.NoError(t, Admit(ctx, p, users["owner"], private))
	assert.ErrorIs(t, Admit(ctx, p, users["limited"], private), ErrPrivateRoom)
}

func TestLeaveDeletesAnonymousUsers(t *testing.T) {
	p, room, users := setup(t)
	ctx := context.Background()
	other := &types.Room{Id: "r2", Name: "other", OwnerId: "owner"}
	require.NoError(t, p.StoreRoom(ctx, other))
	guest := users["guest"]
	require.NoError(t, Admit(ctx, p, guest, room))
	require.NoError(t, Admit(ctx, p, guest, other))

	require.NoError(t, Leave(ctx, p, guest, room))
	_, err := p.GetUser(ctx, guest.Id)
	require.NoError(t, err, "still in another room")

	private := &types.Room{Id: "r3", Name: "private-r3", Private: true, PairKey: types.PairKey(guest.Id, "user")}
	require.NoError(t, p.StoreRoom(ctx, private))
	require.NoError(t, p.StoreMessage(ctx, types.NewMessage(private.Id, guest, "hi")))

	require.NoError(t, Leave(ctx, p, guest, other))
	_, err = p.GetUser(ctx, guest.Id)
	assert.ErrorIs(t, err, persistence.ErrNotFound)
	_, err = p.GetRoom(ctx, private.Id)
	assert.ErrorIs(t, err, persistence.ErrNotFound, "private rooms go with the guest")

	require.NoError(t, Admit(ctx, p, users["user"], room))
	require.NoError(t, Leave(ctx, p, users["user"], room))
	u, err := p.GetUser(ctx, "user")
	require.NoError(t, err)
	assert.False(t, u.LastOnline.IsZero())
}

func TestNewAnonymousUser(t *testing.T) {
	p, _, _ := setup(t)
	ctx := context.Background()
	user, err := NewAnonymousUser(ctx, p)
	require.NoError(t, err)
	assert.True(t, user.Anonymous)
	assert.False(t, user.Authenticated)
	assert.False(t, strings.ContainsAny(user.Name, " \t"))

	stored, err := p.GetUserByName(ctx, user.Name)
	require.NoError(t, err)
	assert.Equal(t, user.Id, stored.Id)
}

func TestSweepAnonymousUsers(t *testing.T) {
	p, room, _ := setup(t)
	ctx := context.Background()
	old := time.Now().UTC().Add(-time.Hour)
	orphan := &types.User{Id: "orphan", Name: "orphan", Anonymous: true, CreatedAt: old}
	present := &types.User{Id: "present", Name: "present", Anonymous: true, CreatedAt: old}
	fresh := &types.User{Id: "fresh", Name: "fresh", Anonymous: true}
	for _, u := range []*types.User{orphan, present, fresh} {
		require.NoError(t, p.StoreUser(ctx, u))
	}
	require.NoError(t, Admit(ctx, p, present, room))

	deleted, err := SweepAnonymousUsers(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	_, err = p.GetUser(ctx, "orphan")
	assert.ErrorIs(t, err, persistence.ErrNotFound)
	_, err = p.GetUser(ctx, "present")
	assert.NoError(t, err)
	_, err = p.GetUser(ctx, "fresh")
	assert.NoError(t, err)
}

func TestBootstrap(t *testing.T) {
	p, err := persistence.OpenBuntPersister(":memory:")
	require.NoError(t, err)
	defer p.Close()
	ctx := context.Background()

	room, err := Bootstrap(ctx, p, "admin", "Lobby")
	require.NoError(t, err)
	assert.Equal(t, "lobby", room.Name)
	owner, err := p.GetUserByName(ctx, "admin")
	require.NoError(t, err)
	assert.True(t, owner.Registered())
	assert.True(t, room.IsOwner(owner))

	again, err := Bootstrap(ctx, p, "someone-else", "lobby")
	require.NoError(t, err)
	assert.Equal(t, room.Id, again.Id)
	assert.Equal(t, owner.Id, again.OwnerId)
}
