package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcriess/lightspeed-rooms/types"
	"golang.org/x/time/rate"
)

func testClient(hub *Hub, id string) *Client {
	return &Client{
		hub:     hub,
		send:    make(chan *types.Event, sendChannelSize),
		user:    &types.User{Id: id, Name: id},
		room:    hub.room,
		limiter: rate.NewLimiter(rate.Inf, 0),
		logger:  hclog.NewNullLogger(),
	}
}

// nextEvent returns the next event of the client, optionally skipping info events.
func nextEvent(t *testing.T, c *Client, skipInfo bool) *types.Event {
	t.Helper()
	for {
		select {
		case event, ok := <-c.send:
			require.True(t, ok, "send channel closed")
			if skipInfo && event.Info != nil {
				continue
			}
			return event
		case <-time.After(2 * time.Second):
			require.FailNow(t, "timeout waiting for event")
		}
	}
}

func assertNoMessage(t *testing.T, c *Client) {
	t.Helper()
	for {
		select {
		case event := <-c.send:
			if event.Info != nil {
				continue
			}
			assert.Failf(t, "unexpected event", "%+v", event)
			return
		case <-time.After(50 * time.Millisecond):
			return
		}
	}
}

func newTestRegistry(t *testing.T) (*Registry, *Hub) {
	t.Helper()
	registry := NewRegistry(nil, 3, hclog.NewNullLogger())
	t.Cleanup(registry.Close)
	hub := registry.Acquire(context.Background(), &types.Room{Id: "room-1", Name: "lobby"})
	return registry, hub
}

func TestDeliverHonorsRecipientsAndExclusions(t *testing.T) {
	registry, hub := newTestRegistry(t)
	ctx := context.Background()
	a, b, c := testClient(hub, "a"), testClient(hub, "b"), testClient(hub, "c")
	for _, client := range []*Client{a, b, c} {
		require.True(t, hub.Register(client))
	}

	direct := types.NewMessage("room-1", nil, "for a")
	direct.Recipients = types.IdList{"a"}
	require.NoError(t, registry.Deliver(ctx, direct))
	everyone := types.NewMessage("room-1", nil, "for all but b")
	everyone.Exclusions = types.IdList{"b"}
	require.NoError(t, registry.Deliver(ctx, everyone))

	assert.Equal(t, "for a", nextEvent(t, a, true).Message.Text)
	assert.Equal(t, "for all but b", nextEvent(t, a, true).Message.Text)
	assert.Equal(t, "for all but b", nextEvent(t, c, true).Message.Text)
	assertNoMessage(t, b)
	assertNoMessage(t, c)
}

func TestKickIsFilteredBySession(t *testing.T) {
	registry, hub := newTestRegistry(t)
	a, b := testClient(hub, "a"), testClient(hub, "b")
	require.True(t, hub.Register(a))
	require.True(t, hub.Register(b))

	require.NoError(t, registry.ForceClose(context.Background(), "room-1", "b"))
	kickA := nextEvent(t, a, true)
	kickB := nextEvent(t, b, true)
	require.True(t, kickA.IsKick())

	data, closeAfter, err := a.frame(kickA)
	require.NoError(t, err)
	assert.Nil(t, data)
	assert.False(t, closeAfter)

	data, closeAfter, err = b.frame(kickB)
	require.NoError(t, err)
	assert.True(t, closeAfter)
	wire := types.WireKick{}
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, types.WireKick{Type: types.WireEventTypeKick, TargetId: "b"}, wire)
}

func TestHistoryReplay(t *testing.T) {
	registry, hub := newTestRegistry(t)
	ctx := context.Background()
	for _, text := range []string{"one", "two", "three", "four"} {
		require.NoError(t, registry.Deliver(ctx, types.NewMessage("room-1", nil, text)))
	}
	transient := types.NewMessage("room-1", nil, "receipt")
	transient.Transient = true
	require.NoError(t, registry.Deliver(ctx, transient))
	private := types.NewMessage("room-1", nil, "only for z")
	private.Recipients = types.IdList{"z"}
	require.NoError(t, registry.Deliver(ctx, private))

	late := testClient(hub, "late")
	require.True(t, hub.Register(late))
	// history size is 3 and the message for z is not visible
	for _, want := range []string{"three", "four"} {
		assert.Equal(t, want, nextEvent(t, late, false).Message.Text)
	}
	info := nextEvent(t, late, false)
	require.NotNil(t, info.Info)
	assert.Equal(t, 1, info.Info.Connections)
}

func TestCloseRoomClosesSessions(t *testing.T) {
	registry, hub := newTestRegistry(t)
	a := testClient(hub, "a")
	require.True(t, hub.Register(a))
	assert.Equal(t, 1, hub.SessionsOf("a"))

	require.NoError(t, registry.CloseRoom(context.Background(), "room-1"))
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-a.send:
			if !ok {
				assert.False(t, hub.Register(testClient(hub, "b")))
				return
			}
		case <-deadline:
			require.FailNow(t, "send channel was not closed")
		}
	}
}

func TestReleaseStopsIdleHubs(t *testing.T) {
	registry := NewRegistry(nil, 3, hclog.NewNullLogger())
	t.Cleanup(registry.Close)
	ctx := context.Background()
	room := &types.Room{Id: "room-1", Name: "lobby"}

	first := registry.Acquire(ctx, room)
	second := registry.Acquire(ctx, room)
	require.Same(t, first, second)
	registry.Release(first)
	assert.Same(t, first, registry.existing(room.Id), "still held by a session")

	registry.Release(second)
	assert.Nil(t, registry.existing(room.Id))
	select {
	case <-first.done:
	default:
		assert.Fail(t, "hub was not stopped")
	}
	// releasing twice is harmless
	registry.Release(first)

	next := registry.Acquire(ctx, room)
	assert.NotSame(t, first, next)
	registry.Release(next)

	for i := 0; i < 100; i++ {
		hub := registry.Acquire(ctx, &types.Room{Id: fmt.Sprintf("room-%d", i), Name: fmt.Sprintf("room%d", i)})
		registry.Release(hub)
	}
	registry.Lock()
	defer registry.Unlock()
	assert.Empty(t, registry.hubs)
	assert.Empty(t, registry.holders)
}

func TestLargeHistoryDoesNotDropJoiningSessions(t *testing.T) {
	registry := NewRegistry(nil, 10*sendChannelSize, hclog.NewNullLogger())
	t.Cleanup(registry.Close)
	ctx := context.Background()
	hub := registry.Acquire(ctx, &types.Room{Id: "room-1", Name: "lobby"})
	assert.Equal(t, maxHistorySize+1, hub.historyStart.Len())

	for i := 0; i < 2*sendChannelSize; i++ {
		require.NoError(t, hub.Publish(ctx, types.NewMessageEvent(types.NewMessage("room-1", nil, fmt.Sprintf("message %d", i)))))
	}
	a := testClient(hub, "a")
	require.True(t, hub.Register(a))
	assert.Equal(t, 1, hub.SessionsOf("a"))
	assert.Len(t, hub.History(), maxHistorySize)
}

type recordingHandler struct {
	sync.Mutex
	lines []string
}

func (h *recordingHandler) Handle(ctx context.Context, sender *types.User, room *types.Room, raw string) error {
	h.Lock()
	defer h.Unlock()
	h.lines = append(h.lines, raw)
	return nil
}

func TestHandleLineEchoesCommandsAndThrottles(t *testing.T) {
	_, hub := newTestRegistry(t)
	handler := &recordingHandler{}
	a := testClient(hub, "a")
	a.handler = handler
	a.limiter = rate.NewLimiter(rate.Every(time.Hour), 2)
	require.True(t, hub.Register(a))
	ctx := context.Background()

	a.handleLine(ctx, "/who")
	echo := nextEvent(t, a, true)
	assert.Equal(t, "/who", echo.Message.Text)
	assert.Equal(t, types.IdList{"a"}, echo.Message.Recipients)

	a.handleLine(ctx, "hello")
	a.handleLine(ctx, "too much")
	notice := nextEvent(t, a, true)
	assert.Equal(t, throttleNotice, notice.Message.Text)
	assert.Equal(t, types.SystemSenderName, notice.Message.SenderName)

	handler.Lock()
	defer handler.Unlock()
	assert.Equal(t, []string{"/who", "hello"}, handler.lines)
}

func TestDecode(t *testing.T) {
	_, hub := newTestRegistry(t)
	a := testClient(hub, "a")
	line, ok := a.decode([]byte(`{"event":"chat","data":{"message":"/k bob"}}`))
	assert.True(t, ok)
	assert.Equal(t, "/k bob", line)

	_, ok = a.decode([]byte(`{"event":"login","data":{}}`))
	assert.False(t, ok)
	_, ok = a.decode([]byte(`not json`))
	assert.False(t, ok)
}
