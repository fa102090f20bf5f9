package commands

import (
	"context"
	"strings"

	"github.com/tcriess/lightspeed-rooms/types"
)

// Dispatcher routes the lines of a session either to a command or to the room as chat.
type Dispatcher struct {
	env      *Env
	registry *Registry
}

func NewDispatcher(env *Env) *Dispatcher {
	return &Dispatcher{env: env, registry: NewRegistry()}
}

// Handle processes one raw line sent by sender in room. The returned error is only set if the line could not be
// processed because of a persistence failure, the sender was informed already.
func (d *Dispatcher) Handle(ctx context.Context, sender *types.User, room *types.Room, raw string) error {
	in := Parse(raw)
	if !in.IsCommand {
		return d.chat(ctx, sender, room, in.Text)
	}
	e, ok := d.registry.Lookup(in.Command)
	if !ok {
		b := newBase(d.env, d.registry.help.name, in, sender, room, false)
		_, err := Run(ctx, &helpCommand{base: b, unknown: in.Command, menu: d.registry.Menu()})
		return err
	}
	_, err := Run(ctx, e.build(newBase(d.env, e.name, in, sender, room, !e.freeText)))
	return err
}

func (d *Dispatcher) chat(ctx context.Context, sender *types.User, room *types.Room, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	msg := types.NewMessage(room.Id, sender, text)
	err := msg.CreateId()
	if err == nil {
		err = d.env.Persister.StoreMessage(ctx, msg)
	}
	if err != nil {
		d.env.Logger.Error("could not store message", "room", room.Name, "sender", sender.Name, "error", err)
		failure := types.NewMessage(room.Id, nil, genericFailure)
		failure.Recipients = types.IdList{sender.Id}
		failure.Transient = true
		if derr := d.env.Broadcaster.Deliver(ctx, failure); derr != nil {
			d.env.Logger.Error("could not deliver message", "room", room.Name, "error", derr)
		}
		return err
	}
	if err := d.env.Broadcaster.Deliver(ctx, msg); err != nil {
		d.env.Logger.Error("could not deliver message", "room", room.Name, "error", err)
	}
	return nil
}
