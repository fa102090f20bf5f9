package ws

import (
	"container/ring"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/tcriess/lightspeed-rooms/persistence"
	"github.com/tcriess/lightspeed-rooms/types"
)

const (
	maxMessageSize       = 4096
	pongWait             = 2 * time.Minute
	pingPeriod           = time.Minute
	writeWait            = 10 * time.Second
	defaultHistorySize   = 20
	broadcastChannelSize = 1000
	sendChannelSize      = 256
	// the history is replayed into the send channel of a new session before its write loop runs
	maxHistorySize = sendChannelSize / 2
)

var errHubStopped = errors.New("hub stopped")

// hubEvent is an event for the whole room group (target is nil), an event for a single session, or a session
// joining or leaving the group. All of them share one queue, so they are processed in the order they were queued.
type hubEvent struct {
	event      *types.Event
	target     *Client
	register   *Client
	unregister *Client
	ack        chan struct{} // closed once the event was processed
}

// Hub is the room group of one room. All sessions of the room are registered here, the hub loop is the only
// writer to their send channels, so events reach every session in the order they were published.
type Hub struct {
	// there is one hub per room
	room *types.Room

	// Registered clients.
	clients map[*Client]struct{}

	events chan hubEvent

	// keep the stored messages in a ring buffer
	historyStart, historyEnd *ring.Ring

	// the number of clients changed since the last info broadcast
	infoChanged bool

	logger hclog.Logger

	done     chan struct{}
	stopOnce sync.Once

	// mutex for reading the clients outside of the hub loop
	sync.RWMutex
}

func NewHub(ctx context.Context, room *types.Room, persister persistence.Persister, historySize int, logger hclog.Logger) *Hub {
	if historySize <= 0 {
		historySize = defaultHistorySize
	}
	if historySize > maxHistorySize {
		logger.Warn("history size too large", "history_size", historySize, "max", maxHistorySize)
		historySize = maxHistorySize
	}
	history := ring.New(historySize + 1)
	hub := &Hub{
		room:         room,
		clients:      make(map[*Client]struct{}),
		events:       make(chan hubEvent, broadcastChannelSize),
		historyStart: history,
		historyEnd:   history,
		logger:       logger.With("room", room.Name),
		done:         make(chan struct{}),
	}
	if persister != nil {
		messages, err := persister.GetMessageHistory(ctx, room.Id, time.Time{}, time.Now().Add(time.Minute), 0, historySize)
		if err != nil {
			hub.logger.Error("could not load persisted messages", "error", err)
		}
		// newest first
		for i := len(messages) - 1; i >= 0; i-- {
			hub.remember(messages[i])
		}
	}
	return hub
}

// NoClients returns the number of clients registered
func (h *Hub) NoClients() int {
	h.RLock()
	defer h.RUnlock()
	return len(h.clients)
}

// SessionsOf returns the number of sessions bound to userId.
func (h *Hub) SessionsOf(userId string) int {
	h.RLock()
	defer h.RUnlock()
	n := 0
	for client := range h.clients {
		if client.user.Id == userId {
			n++
		}
	}
	return n
}

func (h *Hub) remember(message *types.Message) {
	h.historyEnd.Value = message
	h.historyEnd = h.historyEnd.Next()
	if h.historyEnd == h.historyStart {
		h.historyStart = h.historyStart.Next()
	}
}

// History returns the remembered messages, oldest first. Only call it from the hub loop or before Run.
func (h *Hub) History() []*types.Message {
	history := make([]*types.Message, 0)
	for current := h.historyStart; current != h.historyEnd; current = current.Next() {
		history = append(history, current.Value.(*types.Message))
	}
	return history
}

// Publish queues an event for all sessions of the room. Events for a stopped hub are discarded.
func (h *Hub) Publish(ctx context.Context, event *types.Event) error {
	return h.enqueue(ctx, hubEvent{event: event})
}

// SendTo queues an event for a single session, ordered with all other events of the room.
func (h *Hub) SendTo(ctx context.Context, client *Client, event *types.Event) error {
	return h.enqueue(ctx, hubEvent{event: event, target: client})
}

func (h *Hub) enqueue(ctx context.Context, he hubEvent) error {
	err := h.queue(ctx, he)
	if errors.Is(err, errHubStopped) {
		return nil
	}
	return err
}

func (h *Hub) queue(ctx context.Context, he hubEvent) error {
	select {
	case h.events <- he:
		return nil
	case <-h.done:
		return errHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// wait queues he and blocks until the hub loop processed it. It returns false if the hub was stopped.
func (h *Hub) wait(he hubEvent) bool {
	he.ack = make(chan struct{})
	if err := h.queue(context.Background(), he); err != nil {
		return false
	}
	select {
	case <-he.ack:
		return true
	case <-h.done:
		return false
	}
}

// Register adds a client to the hub and replays the history to it. It returns false if the hub was stopped.
func (h *Hub) Register(client *Client) bool {
	return h.wait(hubEvent{register: client})
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(client *Client) {
	h.wait(hubEvent{unregister: client})
}

// Stop closes all sessions and ends the hub loop.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
	})
}

// Run is the main hub event loop handling register, unregister and broadcast events.
func (h *Hub) Run() {
	h.logger.Debug("start hub run loop")
	for {
		select {
		case he := <-h.events:
			switch {
			case he.register != nil:
				h.add(he.register)
			case he.unregister != nil:
				h.drop(he.unregister)
			case he.target != nil:
				h.send(he.target, he.event)
			default:
				if he.event.Message != nil && !he.event.Message.Transient {
					h.remember(he.event.Message)
				}
				h.broadcast(he.event)
			}
			if he.ack != nil {
				close(he.ack)
			}

		case <-h.done:
			h.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.Unlock()
			h.logger.Debug("hub stopped")
			return
		}
		for h.infoChanged {
			h.infoChanged = false
			h.broadcast(types.NewInfoEvent(h.room.Name, h.NoClients()))
		}
	}
}

func (h *Hub) add(client *Client) {
	h.Lock()
	h.clients[client] = struct{}{}
	h.Unlock()
	h.infoChanged = true
	for _, message := range h.History() {
		if client.accepts(message) {
			h.send(client, types.NewMessageEvent(message))
		}
	}
}

func (h *Hub) broadcast(event *types.Event) {
	h.RLock()
	receivers := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		if event.Message != nil && !client.accepts(event.Message) {
			continue
		}
		receivers = append(receivers, client)
	}
	h.RUnlock()
	for _, client := range receivers {
		h.send(client, event)
	}
}

// send never blocks the hub loop, a client that does not keep up is dropped.
func (h *Hub) send(client *Client, event *types.Event) {
	h.RLock()
	_, ok := h.clients[client]
	h.RUnlock()
	if !ok {
		return
	}
	select {
	case client.send <- event:
	default:
		h.logger.Warn("send buffer full, dropping client", "user", client.user.Name)
		h.drop(client)
	}
}

// drop removes a client and closes its send channel.
func (h *Hub) drop(client *Client) {
	h.Lock()
	defer h.Unlock()
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	h.infoChanged = true
}
