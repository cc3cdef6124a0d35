package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"messenger-core/errs"
	"messenger-core/model"
)

type GormUsers struct {
	db *gorm.DB
}

var _ Users = (*GormUsers)(nil)

func NewGormUsers(db *gorm.DB) *GormUsers {
	return &GormUsers{db: db}
}

func (r *GormUsers) GetByID(ctx context.Context, id string) (*model.User, error) {
	key, ok := model.ParseID(id)
	if !ok {
		return nil, errs.ErrUserNotFound
	}
	var user model.User
	if err := r.db.WithContext(ctx).First(&user, key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *GormUsers) Profiles(ctx context.Context, ids []string) (map[string]model.Profile, error) {
	keys := parseIDs(ids)
	out := make(map[string]model.Profile, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	var users []model.User
	if err := r.db.WithContext(ctx).Where("id IN ?", keys).Find(&users).Error; err != nil {
		return nil, err
	}
	for i := range users {
		out[users[i].StringID()] = users[i].Profile()
	}
	return out, nil
}

func (r *GormUsers) IsBlocked(ctx context.Context, blockerID, blockedID string) (bool, error) {
	blocker, ok1 := model.ParseID(blockerID)
	blocked, ok2 := model.ParseID(blockedID)
	if !ok1 || !ok2 {
		return false, nil
	}
	var count int64
	err := r.db.WithContext(ctx).Model(&model.UserBlock{}).
		Where("user_id = ? AND blocked_id = ?", blocker, blocked).
		Count(&count).Error
	return count > 0, err
}

func (r *GormUsers) Block(ctx context.Context, userID, blockedID string) error {
	user, ok1 := model.ParseID(userID)
	blocked, ok2 := model.ParseID(blockedID)
	if !ok1 || !ok2 {
		return errs.ErrUserNotFound
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.UserBlock{UserID: user, BlockedID: blocked}).Error
}

func (r *GormUsers) Unblock(ctx context.Context, userID, blockedID string) error {
	user, ok1 := model.ParseID(userID)
	blocked, ok2 := model.ParseID(blockedID)
	if !ok1 || !ok2 {
		return errs.ErrUserNotFound
	}
	return r.db.WithContext(ctx).
		Where("user_id = ? AND blocked_id = ?", user, blocked).
		Delete(&model.UserBlock{}).Error
}

func (r *GormUsers) SetPushToken(ctx context.Context, userID, token string) error {
	return r.updateColumns(ctx, userID, map[string]any{"push_token": token})
}

func (r *GormUsers) SetPublicKey(ctx context.Context, userID, key string) error {
	return r.updateColumns(ctx, userID, map[string]any{"public_key": key, "e2ee_enabled": true})
}

func (r *GormUsers) TouchLastSeen(ctx context.Context, userID string, at time.Time) error {
	return r.updateColumns(ctx, userID, map[string]any{"last_seen": at})
}

func (r *GormUsers) PushTokens(ctx context.Context, ids []string) ([]string, error) {
	keys := parseIDs(ids)
	if len(keys) == 0 {
		return nil, nil
	}
	var tokens []string
	err := r.db.WithContext(ctx).Model(&model.User{}).
		Where("id IN ? AND push_token <> ''", keys).
		Pluck("push_token", &tokens).Error
	return tokens, err
}

func (r *GormUsers) updateColumns(ctx context.Context, userID string, values map[string]any) error {
	key, ok := model.ParseID(userID)
	if !ok {
		return errs.ErrUserNotFound
	}
	res := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", key).UpdateColumns(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.ErrUserNotFound
	}
	return nil
}

func parseIDs(ids []string) []uint {
	keys := make([]uint, 0, len(ids))
	for _, id := range ids {
		if key, ok := model.ParseID(id); ok {
			keys = append(keys, key)
		}
	}
	return keys
}
