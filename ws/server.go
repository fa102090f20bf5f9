package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	"github.com/tcriess/lightspeed-rooms/auth"
	"github.com/tcriess/lightspeed-rooms/commands"
	"github.com/tcriess/lightspeed-rooms/config"
	"github.com/tcriess/lightspeed-rooms/membership"
	"github.com/tcriess/lightspeed-rooms/persistence"
	"github.com/tcriess/lightspeed-rooms/types"
	"golang.org/x/time/rate"
)

// Authenticator verifies an id token of a provider and returns the e-mail address of its subject.
type Authenticator func(ctx context.Context, idToken, provider string) (string, error)

// Server admits sessions to rooms and binds them to the hub of their room.
type Server struct {
	cfg          *config.Config
	persister    persistence.Persister
	registry     *Registry
	handler      LineHandler
	authenticate Authenticator
	upgrader     websocket.Upgrader
	logger       hclog.Logger
}

func NewServer(cfg *config.Config, persister persistence.Persister, registry *Registry, handler LineHandler, logger hclog.Logger) *Server {
	return &Server{
		cfg:       cfg,
		persister: persister,
		registry:  registry,
		handler:   handler,
		authenticate: func(ctx context.Context, idToken, provider string) (string, error) {
			return auth.Authenticate(ctx, idToken, provider, cfg)
		},
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/chat/{room:"+commands.RoomNamePattern+"}", s.ServeChat).Methods(http.MethodGet)
	return router
}

// ServeChat admits the requesting user to the room and runs the session until the connection closes.
// Unknown rooms, banned users and outsiders of private rooms are refused before the upgrade.
func (s *Server) ServeChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	roomName := types.NormalizeRoomName(mux.Vars(r)["room"])
	room, err := s.persister.GetRoomByName(ctx, roomName)
	if errors.Is(err, persistence.ErrNotFound) {
		http.Error(w, "no such room", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("could not get room", "room", roomName, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	user, err := s.user(ctx, r.URL.Query())
	if err != nil {
		s.logger.Info("could not authenticate user", "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	err = membership.Admit(ctx, s.persister, user, room)
	if err != nil {
		s.discard(user)
		switch {
		case errors.Is(err, membership.ErrBanned):
			http.Error(w, "you are banned from this room", http.StatusForbidden)
		case errors.Is(err, membership.ErrPrivateRoom):
			http.Error(w, "this room is private", http.StatusForbidden)
		default:
			s.logger.Error("could not admit user", "user", user.Name, "room", room.Name, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade error", "error", err)
		s.leave(user, room)
		return
	}

	hub := s.registry.Acquire(ctx, room)
	defer s.registry.Release(hub)
	limiter := rate.NewLimiter(rate.Limit(s.cfg.RateLimitConfig.PerSecond), s.cfg.RateLimitConfig.Burst)
	client := NewClient(hub, conn, user, s.handler, limiter, s.logger)
	if !hub.Register(client) {
		conn.Close()
		s.leave(user, room)
		return
	}
	s.logger.Debug("session started", "user", user.Name, "room", room.Name)
	go client.WriteLoop()
	client.ReadLoop(ctx)

	hub.Unregister(client)
	if hub.SessionsOf(user.Id) == 0 {
		s.leave(user, room)
	}
	s.logger.Debug("session ended", "user", user.Name, "room", room.Name)
}

// user returns the authenticated user of an id token, or a new anonymous user if there is none.
func (s *Server) user(ctx context.Context, vals url.Values) (*types.User, error) {
	if idToken := vals.Get("id_token"); idToken != "" {
		email, err := s.authenticate(ctx, idToken, vals.Get("provider"))
		if err != nil {
			return nil, err
		}
		return s.authenticatedUser(ctx, email)
	}
	return membership.NewAnonymousUser(ctx, s.persister)
}

func (s *Server) authenticatedUser(ctx context.Context, email string) (*types.User, error) {
	user, err := s.persister.GetUser(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, persistence.ErrNotFound) {
		return nil, err
	}
	name := email
	if idx := strings.Index(email, "@"); idx > 0 {
		name = email[:idx]
	}
	if _, err := s.persister.GetUserByName(ctx, name); err == nil {
		name = fmt.Sprintf("%s_%s", name, uuid.NewString()[:4])
	}
	now := time.Now().UTC()
	user = &types.User{
		Id:            email,
		Name:          name,
		Authenticated: true,
		LastOnline:    now,
		CreatedAt:     now,
	}
	if err := s.persister.StoreUser(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("created user", "user", user.Name)
	return user, nil
}

// discard removes a guest that never made it into a room.
func (s *Server) discard(user *types.User) {
	if !user.Anonymous {
		return
	}
	if err := s.persister.DeleteUser(context.Background(), user); err != nil && !errors.Is(err, persistence.ErrNotFound) {
		s.logger.Error("could not delete anonymous user", "user", user.Name, "error", err)
	}
}

func (s *Server) leave(user *types.User, room *types.Room) {
	if err := membership.Leave(context.Background(), s.persister, user, room); err != nil && !errors.Is(err, persistence.ErrNotFound) {
		s.logger.Error("could not leave room", "user", user.Name, "room", room.Name, "error", err)
	}
}
