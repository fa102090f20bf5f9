package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/mapstructure"
	"github.com/tcriess/lightspeed-rooms/commands"
	"github.com/tcriess/lightspeed-rooms/types"
	"golang.org/x/time/rate"
)

const throttleNotice = "You're sending messages too quickly."

// LineHandler processes the lines a session sends, implemented by commands.Dispatcher.
type LineHandler interface {
	Handle(ctx context.Context, sender *types.User, room *types.Room, raw string) error
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound events, written and closed by the hub loop only.
	send chan *types.Event

	user *types.User
	room *types.Room

	handler LineHandler
	limiter *rate.Limiter
	logger  hclog.Logger
}

func NewClient(hub *Hub, conn *websocket.Conn, user *types.User, handler LineHandler, limiter *rate.Limiter, logger hclog.Logger) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan *types.Event, sendChannelSize),
		user:    user,
		room:    hub.room,
		handler: handler,
		limiter: limiter,
		logger:  logger.With("user", user.Name, "room", hub.room.Name),
	}
}

// ReadLoop pumps lines from the websocket connection to the line handler until the connection is closed.
//
// The application runs ReadLoop in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) ReadLoop(ctx context.Context) {
	defer c.conn.Close()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { return c.conn.SetReadDeadline(time.Now().Add(pongWait)) })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info("ws closed unexpected", "error", err)
			}
			return
		}
		line, ok := c.decode(raw)
		if !ok {
			continue
		}
		c.handleLine(ctx, line)
	}
}

// decode extracts the line of an inbound chat event.
func (c *Client) decode(raw []byte) (string, bool) {
	message := types.WebsocketMessage{}
	if err := json.Unmarshal(raw, &message); err != nil {
		c.logger.Debug("could not unmarshal ws message", "error", err)
		return "", false
	}
	if message.Event != types.MessageTypeChat {
		c.logger.Debug("ignoring ws message", "event", message.Event)
		return "", false
	}
	chatMsgMap := make(map[string]interface{})
	if err := json.Unmarshal(message.Data, &chatMsgMap); err != nil {
		c.logger.Debug("could not unmarshal chat message", "error", err)
		return "", false
	}
	chatMsg := types.ChatMessage{}
	if err := mapstructure.WeakDecode(chatMsgMap, &chatMsg); err != nil {
		c.logger.Debug("could not decode chat message", "error", err)
		return "", false
	}
	return chatMsg.Message, true
}

func (c *Client) handleLine(ctx context.Context, line string) {
	if !c.limiter.Allow() {
		notice := types.NewMessage(c.room.Id, nil, throttleNotice)
		c.sendToSelf(ctx, notice)
		return
	}
	// commands are echoed to the sender only, chat lines come back through the room
	if commands.Parse(line).IsCommand {
		echo := types.NewMessage(c.room.Id, c.user, line)
		c.sendToSelf(ctx, echo)
	}
	if err := c.handler.Handle(ctx, c.user, c.room, line); err != nil {
		c.logger.Debug("line was not processed", "error", err)
	}
}

func (c *Client) sendToSelf(ctx context.Context, message *types.Message) {
	message.Recipients = types.IdList{c.user.Id}
	message.Transient = true
	if err := c.hub.SendTo(ctx, c, types.NewMessageEvent(message)); err != nil {
		c.logger.Error("could not queue message", "error", err)
	}
}

// frame renders an outbound event. It returns nil for events this session ignores and whether the session has to
// close after writing the frame.
func (c *Client) frame(event *types.Event) ([]byte, bool, error) {
	switch {
	case event.IsKick():
		if !c.closesOn(event) {
			return nil, false, nil
		}
		data, err := json.Marshal(types.WireKick{Type: types.WireEventTypeKick, TargetId: event.KickedId})
		return data, true, err
	case event.Info != nil:
		data, err := json.Marshal(types.NewWireInfo(event.Info))
		return data, false, err
	case event.Message != nil:
		data, err := json.Marshal(types.NewWireMessage(event.Message))
		return data, false, err
	}
	return nil, false, nil
}

// WriteLoop pumps events from the hub to the websocket connection.
//
// A goroutine running WriteLoop is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WriteLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case event, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, closeAfter, err := c.frame(event)
			if err != nil {
				c.logger.Error("could not marshal event", "error", err)
				continue
			}
			if data == nil {
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("could not write to ws connection, exiting write loop", "error", err)
				return
			}
			if closeAfter {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "kicked"))
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
