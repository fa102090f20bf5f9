package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tcriess/lightspeed-rooms/config"
	"github.com/tcriess/lightspeed-rooms/globals"
	"github.com/tcriess/lightspeed-rooms/types"
	"github.com/tidwall/buntdb"
)

/*
Key layout:

	user:<id>                      -> json User
	username:<name>                -> user id
	room:<id>                      -> json Room
	roomname:<name>                -> room id
	roompair:<pair key>            -> room id
	admin:<room id>:<user id>      -> json Adminship
	ban:<room id>:<user id>:<id>   -> json Ban
	occupant:<room id>:<user id>   -> joined (RFC3339)
	occupied:<user id>:<room id>   -> joined (RFC3339)
	message:<room id>:<message id> -> json Message (message ids start with the creation time)
*/

type BuntDBPersist struct {
	db *buntdb.DB
}

func NewBuntPersister(cfg *config.Config) (Persister, error) {
	if cfg.PersistenceConfig.DSN == "" {
		return nil, fmt.Errorf("no buntdb file configured")
	}
	return OpenBuntPersister(cfg.PersistenceConfig.DSN)
}

// OpenBuntPersister opens (or creates) the buntdb file at path, ":memory:" keeps everything in memory.
func OpenBuntPersister(path string) (*BuntDBPersist, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, err
	}
	return &BuntDBPersist{db: db}, nil
}

func mapBuntError(err error) error {
	if errors.Is(err, buntdb.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func getJSON(tx *buntdb.Tx, key string, v interface{}) error {
	raw, err := tx.Get(key)
	if err != nil {
		return mapBuntError(err)
	}
	return json.Unmarshal([]byte(raw), v)
}

func setJSON(tx *buntdb.Tx, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, _, err = tx.Set(key, string(raw), nil)
	return err
}

// deleteMatching removes all keys matching pattern. Keys are collected first, buntdb does not allow
// modifications while iterating.
func deleteMatching(tx *buntdb.Tx, pattern string) error {
	keys := make([]string, 0)
	err := tx.AscendKeys(pattern, func(key, _ string) bool {
		keys = append(keys, key)
		return true
	})
	if err != nil {
		return err
	}
	for _, key := range keys {
		if _, err := tx.Delete(key); err != nil && !errors.Is(err, buntdb.ErrNotFound) {
			return err
		}
	}
	return nil
}

func (p *BuntDBPersist) StoreUser(ctx context.Context, user *types.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if user.Id == "" || user.Name == "" {
		return fmt.Errorf("user needs an id and a name")
	}
	return p.db.Update(func(tx *buntdb.Tx) error {
		if id, err := tx.Get("username:" + user.Name); err == nil && id != user.Id {
			return fmt.Errorf("user name %q is already taken", user.Name)
		}
		old := types.User{}
		if err := getJSON(tx, "user:"+user.Id, &old); err == nil && old.Name != user.Name {
			if _, err := tx.Delete("username:" + old.Name); err != nil && !errors.Is(err, buntdb.ErrNotFound) {
				return err
			}
		}
		if user.CreatedAt.IsZero() {
			user.CreatedAt = time.Now().UTC()
		}
		if err := setJSON(tx, "user:"+user.Id, user); err != nil {
			return err
		}
		_, _, err := tx.Set("username:"+user.Name, user.Id, nil)
		return err
	})
}

func (p *BuntDBPersist) GetUser(ctx context.Context, id string) (*types.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, fmt.Errorf("no user id")
	}
	user := &types.User{}
	err := p.db.View(func(tx *buntdb.Tx) error {
		return getJSON(tx, "user:"+id, user)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (p *BuntDBPersist) GetUserByName(ctx context.Context, name string) (*types.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	user := &types.User{}
	err := p.db.View(func(tx *buntdb.Tx) error {
		id, err := tx.Get("username:" + name)
		if err != nil {
			return mapBuntError(err)
		}
		return getJSON(tx, "user:"+id, user)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (p *BuntDBPersist) GetUsers(ctx context.Context) ([]*types.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	users := make([]*types.User, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("user:*", func(key, val string) bool {
			user := &types.User{}
			if err := json.Unmarshal([]byte(val), user); err == nil {
				users = append(users, user)
			} else {
				globals.AppLogger.Error("could not unmarshal user", "key", key, "error", err)
			}
			return true
		})
	})
	return users, err
}

func (p *BuntDBPersist) DeleteUser(ctx context.Context, user *types.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.db.Update(func(tx *buntdb.Tx) error {
		old := types.User{}
		if err := getJSON(tx, "user:"+user.Id, &old); err != nil {
			return err
		}
		if _, err := tx.Delete("user:" + user.Id); err != nil {
			return mapBuntError(err)
		}
		if _, err := tx.Delete("username:" + old.Name); err != nil && !errors.Is(err, buntdb.ErrNotFound) {
			return err
		}
		roomIds := make([]string, 0)
		err := tx.AscendKeys("occupied:"+user.Id+":*", func(key, _ string) bool {
			roomIds = append(roomIds, strings.TrimPrefix(key, "occupied:"+user.Id+":"))
			return true
		})
		if err != nil {
			return err
		}
		for _, roomId := range roomIds {
			if _, err := tx.Delete("occupant:" + roomId + ":" + user.Id); err != nil && !errors.Is(err, buntdb.ErrNotFound) {
				return err
			}
		}
		for _, pattern := range []string{"occupied:" + user.Id + ":*", "admin:*:" + user.Id, "ban:*:" + user.Id + ":*"} {
			if err := deleteMatching(tx, pattern); err != nil {
				return err
			}
		}
		// private rooms of the user go with it
		privateRoomIds := make([]string, 0)
		err = tx.AscendKeys("roompair:*", func(key, val string) bool {
			room := types.Room{PairKey: strings.TrimPrefix(key, "roompair:")}
			if room.IsParty(user.Id) {
				privateRoomIds = append(privateRoomIds, val)
			}
			return true
		})
		if err != nil {
			return err
		}
		for _, roomId := range privateRoomIds {
			if err := deleteBuntRoom(tx, roomId); err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
		}
		return nil
	})
}

func (p *BuntDBPersist) StoreRoom(ctx context.Context, room *types.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if room.Id == "" || room.Name == "" {
		return fmt.Errorf("room needs an id and a name")
	}
	return p.db.Update(func(tx *buntdb.Tx) error {
		if id, err := tx.Get("roomname:" + room.Name); err == nil && id != room.Id {
			return fmt.Errorf("room name %q is already taken", room.Name)
		}
		old := types.Room{}
		if err := getJSON(tx, "room:"+room.Id, &old); err == nil && old.Name != room.Name {
			if _, err := tx.Delete("roomname:" + old.Name); err != nil && !errors.Is(err, buntdb.ErrNotFound) {
				return err
			}
		}
		if room.CreatedAt.IsZero() {
			room.CreatedAt = time.Now().UTC()
		}
		if err := setJSON(tx, "room:"+room.Id, room); err != nil {
			return err
		}
		if _, _, err := tx.Set("roomname:"+room.Name, room.Id, nil); err != nil {
			return err
		}
		if room.PairKey != "" {
			if _, _, err := tx.Set("roompair:"+room.PairKey, room.Id, nil); err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *BuntDBPersist) GetRoom(ctx context.Context, id string) (*types.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, fmt.Errorf("no room id")
	}
	room := &types.Room{}
	err := p.db.View(func(tx *buntdb.Tx) error {
		return getJSON(tx, "room:"+id, room)
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

func (p *BuntDBPersist) getRoomByIndex(ctx context.Context, indexKey string) (*types.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	room := &types.Room{}
	err := p.db.View(func(tx *buntdb.Tx) error {
		id, err := tx.Get(indexKey)
		if err != nil {
			return mapBuntError(err)
		}
		return getJSON(tx, "room:"+id, room)
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

func (p *BuntDBPersist) GetRoomByName(ctx context.Context, name string) (*types.Room, error) {
	return p.getRoomByIndex(ctx, "roomname:"+types.NormalizeRoomName(name))
}

func (p *BuntDBPersist) GetRoomByPairKey(ctx context.Context, pairKey string) (*types.Room, error) {
	return p.getRoomByIndex(ctx, "roompair:"+pairKey)
}

func (p *BuntDBPersist) GetRooms(ctx context.Context) ([]*types.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rooms := make([]*types.Room, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("room:*", func(key, val string) bool {
			room := &types.Room{}
			if err := json.Unmarshal([]byte(val), room); err == nil {
				rooms = append(rooms, room)
			} else {
				globals.AppLogger.Error("could not unmarshal room", "key", key, "error", err)
			}
			return true
		})
	})
	return rooms, err
}

func (p *BuntDBPersist) DeleteRoom(ctx context.Context, room *types.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.db.Update(func(tx *buntdb.Tx) error {
		return deleteBuntRoom(tx, room.Id)
	})
}

func deleteBuntRoom(tx *buntdb.Tx, roomId string) error {
	old := types.Room{}
	if err := getJSON(tx, "room:"+roomId, &old); err != nil {
		return err
	}
	userIds := make([]string, 0)
	err := tx.AscendKeys("occupant:"+roomId+":*", func(key, _ string) bool {
		userIds = append(userIds, strings.TrimPrefix(key, "occupant:"+roomId+":"))
		return true
	})
	if err != nil {
		return err
	}
	for _, userId := range userIds {
		if _, err := tx.Delete("occupied:" + userId + ":" + roomId); err != nil && !errors.Is(err, buntdb.ErrNotFound) {
			return err
		}
	}
	for _, pattern := range []string{"occupant:" + roomId + ":*", "admin:" + roomId + ":*", "ban:" + roomId + ":*", "message:" + roomId + ":*"} {
		if err := deleteMatching(tx, pattern); err != nil {
			return err
		}
	}
	for _, key := range []string{"room:" + roomId, "roomname:" + old.Name, "roompair:" + old.PairKey} {
		if _, err := tx.Delete(key); err != nil && !errors.Is(err, buntdb.ErrNotFound) {
			return err
		}
	}
	return nil
}

func (p *BuntDBPersist) StoreAdminship(ctx context.Context, adminship *types.Adminship) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if adminship.CreatedAt.IsZero() {
		adminship.CreatedAt = now
	}
	adminship.UpdatedAt = now
	return p.db.Update(func(tx *buntdb.Tx) error {
		return setJSON(tx, "admin:"+adminship.RoomId+":"+adminship.UserId, adminship)
	})
}

func (p *BuntDBPersist) GetAdminship(ctx context.Context, roomId, userId string) (*types.Adminship, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	adminship := &types.Adminship{}
	err := p.db.View(func(tx *buntdb.Tx) error {
		return getJSON(tx, "admin:"+roomId+":"+userId, adminship)
	})
	if err != nil {
		return nil, err
	}
	return adminship, nil
}

func (p *BuntDBPersist) GetAdminships(ctx context.Context, roomId string) ([]*types.Adminship, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	adminships := make([]*types.Adminship, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("admin:"+roomId+":*", func(key, val string) bool {
			adminship := &types.Adminship{}
			if err := json.Unmarshal([]byte(val), adminship); err == nil {
				adminships = append(adminships, adminship)
			}
			return true
		})
	})
	return adminships, err
}

func (p *BuntDBPersist) DeleteAdminship(ctx context.Context, adminship *types.Adminship) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete("admin:" + adminship.RoomId + ":" + adminship.UserId)
		return mapBuntError(err)
	})
}

func (p *BuntDBPersist) StoreBan(ctx context.Context, ban *types.Ban) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ban.Id == "" {
		return fmt.Errorf("no ban id")
	}
	if ban.Created.IsZero() {
		ban.Created = time.Now().UTC()
	}
	return p.db.Update(func(tx *buntdb.Tx) error {
		if ban.Active() {
			var conflict bool
			err := tx.AscendKeys("ban:"+ban.RoomId+":"+ban.UserId+":*", func(key, val string) bool {
				other := types.Ban{}
				if err := json.Unmarshal([]byte(val), &other); err == nil && other.Id != ban.Id && other.Active() {
					conflict = true
					return false
				}
				return true
			})
			if err != nil {
				return err
			}
			if conflict {
				return fmt.Errorf("user %s already has an active ban in room %s", ban.UserId, ban.RoomId)
			}
		}
		return setJSON(tx, "ban:"+ban.RoomId+":"+ban.UserId+":"+ban.Id, ban)
	})
}

func (p *BuntDBPersist) GetActiveBan(ctx context.Context, roomId, userId string) (*types.Ban, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var active *types.Ban
	err := p.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("ban:"+roomId+":"+userId+":*", func(key, val string) bool {
			ban := &types.Ban{}
			if err := json.Unmarshal([]byte(val), ban); err == nil && ban.Active() {
				active = ban
				return false
			}
			return true
		})
	})
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, ErrNotFound
	}
	return active, nil
}

func (p *BuntDBPersist) GetBans(ctx context.Context, roomId string) ([]*types.Ban, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bans := make([]*types.Ban, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("ban:"+roomId+":*", func(key, val string) bool {
			ban := &types.Ban{}
			if err := json.Unmarshal([]byte(val), ban); err == nil {
				bans = append(bans, ban)
			}
			return true
		})
	})
	return bans, err
}

func (p *BuntDBPersist) AddOccupant(ctx context.Context, roomId, userId string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	joined := time.Now().UTC().Format(time.RFC3339)
	return p.db.Update(func(tx *buntdb.Tx) error {
		if _, err := tx.Get("room:" + roomId); err != nil {
			return mapBuntError(err)
		}
		if _, _, err := tx.Set("occupant:"+roomId+":"+userId, joined, nil); err != nil {
			return err
		}
		_, _, err := tx.Set("occupied:"+userId+":"+roomId, joined, nil)
		return err
	})
}

func (p *BuntDBPersist) RemoveOccupant(ctx context.Context, roomId, userId string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.db.Update(func(tx *buntdb.Tx) error {
		for _, key := range []string{"occupant:" + roomId + ":" + userId, "occupied:" + userId + ":" + roomId} {
			if _, err := tx.Delete(key); err != nil && !errors.Is(err, buntdb.ErrNotFound) {
				return err
			}
		}
		return nil
	})
}

func (p *BuntDBPersist) IsOccupant(ctx context.Context, roomId, userId string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	found := false
	err := p.db.View(func(tx *buntdb.Tx) error {
		_, err := tx.Get("occupant:" + roomId + ":" + userId)
		if errors.Is(err, buntdb.ErrNotFound) {
			return nil
		}
		found = err == nil
		return err
	})
	return found, err
}

func (p *BuntDBPersist) GetOccupants(ctx context.Context, roomId string) ([]*types.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	users := make([]*types.User, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		userIds := make([]string, 0)
		err := tx.AscendKeys("occupant:"+roomId+":*", func(key, _ string) bool {
			userIds = append(userIds, strings.TrimPrefix(key, "occupant:"+roomId+":"))
			return true
		})
		if err != nil {
			return err
		}
		for _, userId := range userIds {
			user := &types.User{}
			if err := getJSON(tx, "user:"+userId, user); err != nil {
				if errors.Is(err, ErrNotFound) {
					continue
				}
				return err
			}
			users = append(users, user)
		}
		return nil
	})
	return users, err
}

func (p *BuntDBPersist) GetOccupiedRoomIds(ctx context.Context, userId string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	roomIds := make([]string, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("occupied:"+userId+":*", func(key, _ string) bool {
			roomIds = append(roomIds, strings.TrimPrefix(key, "occupied:"+userId+":"))
			return true
		})
	})
	return roomIds, err
}

func (p *BuntDBPersist) StoreMessage(ctx context.Context, message *types.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if message.Id == "" {
		if err := message.CreateId(); err != nil {
			return err
		}
	}
	return p.db.Update(func(tx *buntdb.Tx) error {
		return setJSON(tx, "message:"+message.RoomId+":"+message.Id, message)
	})
}

// GetMessageHistory returns a slice of messages from db, newest first.
//
// Use fromTs/toTs to restrict the time range, and fromIdx/maxCount for pagination.
func (p *BuntDBPersist) GetMessageHistory(ctx context.Context, roomId string, fromTs, toTs time.Time, fromIdx, maxCount int) ([]*types.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	messages := make([]*types.Message, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		currentNo := -1
		return tx.DescendKeys("message:"+roomId+":*", func(key, val string) bool {
			message := &types.Message{}
			if err := json.Unmarshal([]byte(val), message); err != nil {
				globals.AppLogger.Error("could not unmarshal message", "key", key, "error", err)
				return true
			}
			if message.Created.After(toTs) {
				return true
			}
			if message.Created.Before(fromTs) {
				return false
			}
			currentNo++
			if currentNo < fromIdx {
				return true
			}
			messages = append(messages, message)
			return maxCount <= 0 || len(messages) < maxCount
		})
	})
	return messages, err
}

func (p *BuntDBPersist) Close() error {
	return p.db.Close()
}
