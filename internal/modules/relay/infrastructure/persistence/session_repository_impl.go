package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ChatRelay/internal/modules/relay/domain/entity"
	"ChatRelay/pkg/xerr"

	"gorm.io/gorm"
)

type sessionRepositoryImpl struct {
	db *gorm.DB
	wl *writeLock
}

func (r *sessionRepositoryImpl) CreateSession(ctx context.Context, userID int64, model, title string) (int64, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return 0, xerr.NewStorageError("create session", errors.New("model is empty"))
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = entity.DefaultSessionTitle
	}

	now := time.Now()
	session := &entity.Session{
		UserId:       userID,
		Title:        title,
		Model:        model,
		CreatedAt:    now,
		LastActiveAt: now,
	}

	r.wl.Lock()
	defer r.wl.Unlock()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(session).Error; err != nil {
			return err
		}
		res := tx.Model(&entity.User{}).
			Where("id = ?", userID).
			Updates(map[string]interface{}{
				"current_session_id": session.Id,
				"updated_at":         now,
			})
		if res.Error != nil {
			return res.Error
		}
		// 会话必须挂在已存在的用户下，否则整个事务回滚
		if res.RowsAffected != 1 {
			return fmt.Errorf("user %d not found", userID)
		}
		return nil
	})
	if err != nil {
		return 0, xerr.NewStorageError("create session", err)
	}
	return session.Id, nil
}

func (r *sessionRepositoryImpl) GetSession(ctx context.Context, sessionID int64) (*entity.Session, error) {
	var session entity.Session
	err := r.db.WithContext(ctx).Where("id = ?", sessionID).Take(&session).Error
	if err == nil {
		return &session, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, xerr.NewStorageError("get session", err)
}

func (r *sessionRepositoryImpl) ListSessions(ctx context.Context, userID int64, limit int) ([]*entity.Session, error) {
	if limit <= 0 {
		limit = 10
	}

	var sessions []*entity.Session
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("last_active_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&sessions).Error
	if err != nil {
		return nil, xerr.NewStorageError("list sessions", err)
	}
	return sessions, nil
}

func (r *sessionRepositoryImpl) RenameSession(ctx context.Context, sessionID int64, title string) error {
	return r.updateColumn(ctx, "rename session", sessionID, "title", strings.TrimSpace(title))
}

func (r *sessionRepositoryImpl) SetSessionModel(ctx context.Context, sessionID int64, model string) error {
	model = strings.TrimSpace(model)
	if model == "" {
		return xerr.NewStorageError("set session model", errors.New("model is empty"))
	}
	return r.updateColumn(ctx, "set session model", sessionID, "model", model)
}

func (r *sessionRepositoryImpl) TouchSession(ctx context.Context, sessionID int64) error {
	return r.updateColumn(ctx, "touch session", sessionID, "last_active_at", time.Now())
}

func (r *sessionRepositoryImpl) updateColumn(ctx context.Context, op string, sessionID int64, column string, value interface{}) error {
	r.wl.Lock()
	defer r.wl.Unlock()
	err := r.db.WithContext(ctx).Model(&entity.Session{}).
		Where("id = ?", sessionID).
		Update(column, value).Error
	return xerr.NewStorageError(op, err)
}
