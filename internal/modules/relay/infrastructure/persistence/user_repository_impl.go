package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"ChatRelay/internal/modules/relay/domain/entity"
	"ChatRelay/pkg/xerr"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type userRepositoryImpl struct {
	db *gorm.DB
	wl *writeLock
}

func (r *userRepositoryImpl) UpsertUser(ctx context.Context, userID int64, displayName string) error {
	now := time.Now()
	user := &entity.User{
		Id:          userID,
		DisplayName: strings.TrimSpace(displayName),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	r.wl.Lock()
	defer r.wl.Unlock()
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "updated_at"}),
	}).Create(user).Error
	return xerr.NewStorageError("upsert user", err)
}

func (r *userRepositoryImpl) GetUser(ctx context.Context, userID int64) (*entity.User, error) {
	var user entity.User
	err := r.db.WithContext(ctx).Where("id = ?", userID).Take(&user).Error
	if err == nil {
		return &user, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, xerr.NewStorageError("get user", err)
}

func (r *userRepositoryImpl) SetCurrentSession(ctx context.Context, userID, sessionID int64) error {
	r.wl.Lock()
	defer r.wl.Unlock()
	err := r.db.WithContext(ctx).Model(&entity.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"current_session_id": sessionID,
			"updated_at":         time.Now(),
		}).Error
	return xerr.NewStorageError("set current session", err)
}
