package ws

import (
	"context"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/tcriess/lightspeed-rooms/persistence"
	"github.com/tcriess/lightspeed-rooms/types"
)

// Registry keeps one hub per room id. Hubs are started on first use and stopped when the last session
// releases them or their room is closed. It is the Broadcaster of the commands.
type Registry struct {
	persister   persistence.Persister
	historySize int
	logger      hclog.Logger

	hubs map[string]*Hub
	// number of sessions holding each hub
	holders map[*Hub]int
	sync.Mutex
}

func NewRegistry(persister persistence.Persister, historySize int, logger hclog.Logger) *Registry {
	return &Registry{
		persister:   persister,
		historySize: historySize,
		logger:      logger,
		hubs:        make(map[string]*Hub),
		holders:     make(map[*Hub]int),
	}
}

// Acquire returns the hub of room, starting it if necessary. Every Acquire is paired with a Release.
func (r *Registry) Acquire(ctx context.Context, room *types.Room) *Hub {
	r.Lock()
	defer r.Unlock()
	hub, ok := r.hubs[room.Id]
	if !ok {
		hub = NewHub(ctx, room, r.persister, r.historySize, r.logger)
		r.hubs[room.Id] = hub
		go hub.Run()
	}
	r.holders[hub]++
	return hub
}

// Release stops the hub once nobody holds it anymore.
func (r *Registry) Release(hub *Hub) {
	r.Lock()
	n, ok := r.holders[hub]
	if !ok {
		r.Unlock()
		return
	}
	if n > 1 {
		r.holders[hub] = n - 1
		r.Unlock()
		return
	}
	delete(r.holders, hub)
	if r.hubs[hub.room.Id] == hub {
		delete(r.hubs, hub.room.Id)
	}
	r.Unlock()
	hub.Stop()
	r.logger.Debug("released hub", "room", hub.room.Name)
}

func (r *Registry) existing(roomId string) *Hub {
	r.Lock()
	defer r.Unlock()
	return r.hubs[roomId]
}

// Deliver publishes message to its room group. Rooms without a running hub have no sessions, stored messages
// are picked up from the persister once the hub starts.
func (r *Registry) Deliver(ctx context.Context, message *types.Message) error {
	hub := r.existing(message.RoomId)
	if hub == nil {
		return nil
	}
	return hub.Publish(ctx, types.NewMessageEvent(message))
}

// ForceClose publishes a kick event to the room group, the sessions of userId close themselves.
func (r *Registry) ForceClose(ctx context.Context, roomId, userId string) error {
	hub := r.existing(roomId)
	if hub == nil {
		return nil
	}
	return hub.Publish(ctx, types.NewKickEvent(userId))
}

// CloseRoom stops the hub of the room, which closes all of its sessions.
func (r *Registry) CloseRoom(ctx context.Context, roomId string) error {
	r.Lock()
	hub, ok := r.hubs[roomId]
	delete(r.hubs, roomId)
	delete(r.holders, hub)
	r.Unlock()
	if ok {
		hub.Stop()
	}
	return nil
}

// Close stops all hubs.
func (r *Registry) Close() {
	r.Lock()
	defer r.Unlock()
	for roomId, hub := range r.hubs {
		hub.Stop()
		delete(r.hubs, roomId)
		delete(r.holders, hub)
	}
}
