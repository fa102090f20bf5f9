package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/samber/lo"
	"github.com/tcriess/lightspeed-rooms/membership"
	"github.com/tcriess/lightspeed-rooms/persistence"
	"github.com/tcriess/lightspeed-rooms/types"
)

const (
	listIndent     = "   "
	genericFailure = "Something went wrong and your command could not be completed."
	elevateHint    = "Feel free to /elevate your complaints to someone who has more authority."
)

// ErrorKind classifies a rejected command or argument. Rejections are reported to the sender only.
type ErrorKind int

const (
	UsageError ErrorKind = iota + 1
	AuthorizationError
	TargetError
	StateError
)

func (k ErrorKind) String() string {
	switch k {
	case UsageError:
		return "usage"
	case AuthorizationError:
		return "authorization"
	case TargetError:
		return "target"
	case StateError:
		return "state"
	}
	return "unknown"
}

type Rejection struct {
	Kind ErrorKind
	Line string
}

// Env holds the collaborators shared by all commands.
type Env struct {
	Persister    persistence.Persister
	Broadcaster  Broadcaster
	PrivateRooms *PrivateRooms
	Logger       hclog.Logger
}

// Command is implemented by every command of the registry. Each phase may end the command early by returning
// false, a returned error aborts it. Responses are sent in any case.
type Command interface {
	checkInitialErrors(ctx context.Context) (bool, error)
	checkArguments(ctx context.Context) (bool, error)
	executeImplementation(ctx context.Context) error
	sendResponses(ctx context.Context)
	state() *base
}

// base carries the arguments of one command invocation and its three response buffers.
type base struct {
	env    *Env
	name   string
	args   []string
	rest   string
	sender *types.User
	room   *types.Room

	senderTier types.Tier

	senderReceipt         []string
	notified              []string            // user ids in the order their notifications were added
	targetNotifications   map[string][]string // per-target lines, keyed by user id
	occupantsNotification []string
	durableNotifications  bool // target notifications are stored in the room history
	rejections            []Rejection
}

func newBase(env *Env, name string, in Input, sender *types.User, room *types.Room, dedupe bool) *base {
	args := in.Args
	if args == nil {
		args = []string{}
	}
	if dedupe {
		args = lo.Uniq(args)
	}
	return &base{
		env:                 env,
		name:                name,
		args:                args,
		rest:                in.Rest,
		sender:              sender,
		room:                room,
		targetNotifications: make(map[string][]string),
	}
}

func (b *base) state() *base {
	return b
}

// Run executes the four phases of cmd and returns the rejections reported to the sender.
// The returned error is only set if a persistence call failed.
func Run(ctx context.Context, cmd Command) ([]Rejection, error) {
	b := cmd.state()
	err := runPhases(ctx, cmd)
	if err != nil {
		b.env.Logger.Error("command failed", "command", b.name, "sender", b.sender.Name, "room", b.room.Name, "error", err)
		b.senderReceipt = append(b.senderReceipt, genericFailure)
	}
	for _, r := range b.rejections {
		b.env.Logger.Debug("command rejected", "command", b.name, "sender", b.sender.Name, "kind", r.Kind, "reason", r.Line)
	}
	cmd.sendResponses(ctx)
	return b.rejections, err
}

func runPhases(ctx context.Context, cmd Command) error {
	ok, err := cmd.checkInitialErrors(ctx)
	if err != nil || !ok {
		return err
	}
	ok, err = cmd.checkArguments(ctx)
	if err != nil || !ok {
		return err
	}
	return cmd.executeImplementation(ctx)
}

// reject adds a line to the sender receipt.
func (b *base) reject(kind ErrorKind, format string, a ...interface{}) {
	line := fmt.Sprintf(format, a...)
	b.rejections = append(b.rejections, Rejection{Kind: kind, Line: line})
	b.senderReceipt = append(b.senderReceipt, line)
}

func (b *base) receipt(lines ...string) {
	b.senderReceipt = append(b.senderReceipt, lines...)
}

func (b *base) notify(user *types.User, lines ...string) {
	if _, ok := b.targetNotifications[user.Id]; !ok {
		b.notified = append(b.notified, user.Id)
	}
	b.targetNotifications[user.Id] = append(b.targetNotifications[user.Id], lines...)
}

func (b *base) notifyOccupants(lines ...string) {
	b.occupantsNotification = append(b.occupantsNotification, lines...)
}

// resolveSender stores the tier of the sender, commands with a privilege floor call it first.
func (b *base) resolveSender(ctx context.Context) error {
	tier, err := membership.Resolve(ctx, b.env.Persister, b.sender, b.room)
	if err != nil {
		return err
	}
	b.senderTier = tier
	return nil
}

func (b *base) tierOf(ctx context.Context, user *types.User) (types.Tier, error) {
	return membership.Resolve(ctx, b.env.Persister, user, b.room)
}

// lookupUser returns nil if no user with that name exists.
func (b *base) lookupUser(ctx context.Context, name string) (*types.User, error) {
	user, err := b.env.Persister.GetUserByName(ctx, name)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil, nil
	}
	return user, err
}

func (b *base) sendResponses(ctx context.Context) {
	if len(b.senderReceipt) > 0 {
		msg := types.NewMessage(b.room.Id, nil, b.senderReceipt...)
		msg.Recipients = types.IdList{b.sender.Id}
		msg.Transient = true
		b.deliver(ctx, msg)
	}
	for _, userId := range b.notified {
		msg := types.NewMessage(b.room.Id, nil, b.targetNotifications[userId]...)
		msg.Recipients = types.IdList{userId}
		if b.durableNotifications {
			msg.SenderId = b.sender.Id
			msg.SenderName = b.sender.Nick()
			if err := msg.CreateId(); err != nil {
				b.env.Logger.Error("could not create message id", "command", b.name, "error", err)
				continue
			}
			if err := b.env.Persister.StoreMessage(ctx, msg); err != nil {
				b.env.Logger.Error("could not store notification", "command", b.name, "recipient", userId, "error", err)
				continue
			}
		} else {
			msg.Transient = true
		}
		b.deliver(ctx, msg)
	}
	if len(b.occupantsNotification) > 0 {
		msg := types.NewMessage(b.room.Id, nil, b.occupantsNotification...)
		msg.Exclusions = append(types.IdList{b.sender.Id}, b.notified...)
		msg.Transient = true
		b.deliver(ctx, msg)
	}
}

func (b *base) deliver(ctx context.Context, msg *types.Message) {
	if err := b.env.Broadcaster.Deliver(ctx, msg); err != nil {
		b.env.Logger.Error("could not deliver message", "command", b.name, "room", msg.RoomId, "error", err)
	}
}

func (b *base) forceClose(ctx context.Context, roomId, userId string) {
	if err := b.env.Broadcaster.ForceClose(ctx, roomId, userId); err != nil {
		b.env.Logger.Error("could not close session", "command", b.name, "room", roomId, "user", userId, "error", err)
	}
}

// list renders a headline, one indented line per item and an optional footer.
func list(headline string, items []string, footer string) []string {
	lines := make([]string, 0, len(items)+2)
	lines = append(lines, headline)
	for _, item := range items {
		lines = append(lines, listIndent+item)
	}
	if footer != "" {
		lines = append(lines, footer)
	}
	return lines
}

func names(users []*types.User) []string {
	return lo.Map(users, func(u *types.User, _ int) string {
		return u.Name
	})
}
