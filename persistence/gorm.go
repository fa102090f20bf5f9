package persistence

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/tcriess/lightspeed-rooms/config"
	"github.com/tcriess/lightspeed-rooms/types"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormPersist struct {
	db *gorm.DB
}

func NewGormPersister(cfg *config.Config) (Persister, error) {
	db, err := setupGormDB(cfg)
	if err != nil {
		return nil, err
	}
	return &GormPersist{db: db}, nil
}

// NewGormPersisterFromDB wraps an already opened database, the schema is migrated.
func NewGormPersisterFromDB(db *gorm.DB) (*GormPersist, error) {
	err := migrate(db)
	if err != nil {
		return nil, err
	}
	return &GormPersist{db: db}, nil
}

func setupGormDB(cfg *config.Config) (*gorm.DB, error) {
	if cfg.PersistenceConfig.DSN == "" {
		return nil, fmt.Errorf("no dsn configured")
	}
	var dial gorm.Dialector
	switch cfg.PersistenceConfig.Type {
	case "postgres":
		dial = postgres.Open(cfg.PersistenceConfig.DSN)

	case "sqlite":
		dial = sqlite.Open(cfg.PersistenceConfig.DSN)

	default:
		return nil, fmt.Errorf("invalid gorm configuration")
	}
	db, err := gorm.Open(dial, &gorm.Config{})
	if err != nil {
		return nil, err
	}
	err = migrate(db)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(&types.User{}, &types.Room{}, &types.Adminship{}, &types.Ban{}, &types.Occupancy{}, &types.Message{})
}

func mapGormError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (p *GormPersist) StoreUser(ctx context.Context, user *types.User) error {
	return p.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(user).Error
}

func (p *GormPersist) GetUser(ctx context.Context, id string) (*types.User, error) {
	user := &types.User{}
	err := p.db.WithContext(ctx).First(user, "id = ?", id).Error
	if err != nil {
		return nil, mapGormError(err)
	}
	return user, nil
}

func (p *GormPersist) GetUserByName(ctx context.Context, name string) (*types.User, error) {
	user := &types.User{}
	err := p.db.WithContext(ctx).First(user, "name = ?", name).Error
	if err != nil {
		return nil, mapGormError(err)
	}
	return user, nil
}

func (p *GormPersist) GetUsers(ctx context.Context) ([]*types.User, error) {
	users := make([]*types.User, 0)
	err := p.db.WithContext(ctx).Order("name").Find(&users).Error
	return users, err
}

func (p *GormPersist) DeleteUser(ctx context.Context, user *types.User) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&types.User{}, "id = ?", user.Id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		for _, model := range []interface{}{&types.Occupancy{}, &types.Adminship{}, &types.Ban{}} {
			if err := tx.Delete(model, "user_id = ?", user.Id).Error; err != nil {
				return err
			}
		}
		// private rooms of the user go with it
		privateRooms := make([]*types.Room, 0)
		if err := tx.Where("private = ?", true).Find(&privateRooms).Error; err != nil {
			return err
		}
		for _, room := range privateRooms {
			if !room.IsParty(user.Id) {
				continue
			}
			if err := deleteGormRoom(tx, room.Id); err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *GormPersist) StoreRoom(ctx context.Context, room *types.Room) error {
	return p.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(room).Error
}

func (p *GormPersist) getRoom(ctx context.Context, query string, arg string) (*types.Room, error) {
	room := &types.Room{}
	err := p.db.WithContext(ctx).First(room, query, arg).Error
	if err != nil {
		return nil, mapGormError(err)
	}
	return room, nil
}

func (p *GormPersist) GetRoom(ctx context.Context, id string) (*types.Room, error) {
	return p.getRoom(ctx, "id = ?", id)
}

func (p *GormPersist) GetRoomByName(ctx context.Context, name string) (*types.Room, error) {
	return p.getRoom(ctx, "name = ?", types.NormalizeRoomName(name))
}

func (p *GormPersist) GetRoomByPairKey(ctx context.Context, pairKey string) (*types.Room, error) {
	return p.getRoom(ctx, "pair_key = ?", pairKey)
}

func (p *GormPersist) GetRooms(ctx context.Context) ([]*types.Room, error) {
	rooms := make([]*types.Room, 0)
	err := p.db.WithContext(ctx).Order("name").Find(&rooms).Error
	return rooms, err
}

func (p *GormPersist) DeleteRoom(ctx context.Context, room *types.Room) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return deleteGormRoom(tx, room.Id)
	})
}

func deleteGormRoom(tx *gorm.DB, roomId string) error {
	for _, model := range []interface{}{&types.Occupancy{}, &types.Adminship{}, &types.Ban{}, &types.Message{}} {
		if err := tx.Delete(model, "room_id = ?", roomId).Error; err != nil {
			return err
		}
	}
	res := tx.Delete(&types.Room{}, "id = ?", roomId)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *GormPersist) StoreAdminship(ctx context.Context, adminship *types.Adminship) error {
	return p.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(adminship).Error
}

func (p *GormPersist) GetAdminship(ctx context.Context, roomId, userId string) (*types.Adminship, error) {
	adminship := &types.Adminship{}
	err := p.db.WithContext(ctx).First(adminship, "room_id = ? AND user_id = ?", roomId, userId).Error
	if err != nil {
		return nil, mapGormError(err)
	}
	return adminship, nil
}

func (p *GormPersist) GetAdminships(ctx context.Context, roomId string) ([]*types.Adminship, error) {
	adminships := make([]*types.Adminship, 0)
	err := p.db.WithContext(ctx).Where("room_id = ?", roomId).Find(&adminships).Error
	return adminships, err
}

func (p *GormPersist) DeleteAdminship(ctx context.Context, adminship *types.Adminship) error {
	res := p.db.WithContext(ctx).Delete(&types.Adminship{}, "room_id = ? AND user_id = ?", adminship.RoomId, adminship.UserId)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *GormPersist) StoreBan(ctx context.Context, ban *types.Ban) error {
	if ban.Id == "" {
		return fmt.Errorf("no ban id")
	}
	if ban.Created.IsZero() {
		ban.Created = time.Now().UTC()
	}
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if ban.Active() {
			var count int64
			err := tx.Model(&types.Ban{}).Where("room_id = ? AND user_id = ? AND lifted = ? AND id <> ?", ban.RoomId, ban.UserId, false, ban.Id).Count(&count).Error
			if err != nil {
				return err
			}
			if count > 0 {
				return fmt.Errorf("user %s already has an active ban in room %s", ban.UserId, ban.RoomId)
			}
		}
		return tx.Save(ban).Error
	})
}

func (p *GormPersist) GetActiveBan(ctx context.Context, roomId, userId string) (*types.Ban, error) {
	ban := &types.Ban{}
	err := p.db.WithContext(ctx).First(ban, "room_id = ? AND user_id = ? AND lifted = ?", roomId, userId, false).Error
	if err != nil {
		return nil, mapGormError(err)
	}
	return ban, nil
}

func (p *GormPersist) GetBans(ctx context.Context, roomId string) ([]*types.Ban, error) {
	bans := make([]*types.Ban, 0)
	err := p.db.WithContext(ctx).Where("room_id = ?", roomId).Order("created").Find(&bans).Error
	return bans, err
}

func (p *GormPersist) AddOccupant(ctx context.Context, roomId, userId string) error {
	occupancy := &types.Occupancy{RoomId: roomId, UserId: userId, JoinedAt: time.Now().UTC()}
	return p.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(occupancy).Error
}

func (p *GormPersist) RemoveOccupant(ctx context.Context, roomId, userId string) error {
	return p.db.WithContext(ctx).Delete(&types.Occupancy{}, "room_id = ? AND user_id = ?", roomId, userId).Error
}

func (p *GormPersist) IsOccupant(ctx context.Context, roomId, userId string) (bool, error) {
	var count int64
	err := p.db.WithContext(ctx).Model(&types.Occupancy{}).Where("room_id = ? AND user_id = ?", roomId, userId).Count(&count).Error
	return count > 0, err
}

func (p *GormPersist) GetOccupants(ctx context.Context, roomId string) ([]*types.User, error) {
	users := make([]*types.User, 0)
	err := p.db.WithContext(ctx).
		Joins("JOIN occupancies ON occupancies.user_id = users.id").
		Where("occupancies.room_id = ?", roomId).
		Order("occupancies.joined_at").
		Find(&users).Error
	return users, err
}

func (p *GormPersist) GetOccupiedRoomIds(ctx context.Context, userId string) ([]string, error) {
	roomIds := make([]string, 0)
	err := p.db.WithContext(ctx).Model(&types.Occupancy{}).Where("user_id = ?", userId).Pluck("room_id", &roomIds).Error
	return roomIds, err
}

func (p *GormPersist) StoreMessage(ctx context.Context, message *types.Message) error {
	if message.Id == "" {
		if err := message.CreateId(); err != nil {
			return err
		}
	}
	return p.db.WithContext(ctx).Create(message).Error
}

func (p *GormPersist) GetMessageHistory(ctx context.Context, roomId string, fromTs, toTs time.Time, fromIdx, maxCount int) ([]*types.Message, error) {
	messages := make([]*types.Message, 0)
	if maxCount <= 0 {
		maxCount = math.MaxInt32
	}
	err := p.db.WithContext(ctx).
		Where("room_id = ? AND created BETWEEN ? AND ?", roomId, fromTs, toTs).
		Order("created DESC").
		Limit(maxCount).
		Offset(fromIdx).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (p *GormPersist) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
