package persistence

import (
	"context"
	"time"

	"ChatRelay/internal/modules/relay/domain/entity"
	"ChatRelay/pkg/xerr"

	"gorm.io/gorm"
)

type messageRepositoryImpl struct {
	db *gorm.DB
	wl *writeLock
}

func (r *messageRepositoryImpl) AppendMessage(ctx context.Context, sessionID int64, role, content, kind string) (*entity.Message, error) {
	if kind == "" {
		kind = entity.KindText
	}
	msg := &entity.Message{
		SessionId: sessionID,
		Role:      role,
		Content:   content,
		Kind:      kind,
		CreatedAt: time.Now(),
	}

	r.wl.Lock()
	defer r.wl.Unlock()
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, xerr.NewStorageError("append message", err)
	}
	return msg, nil
}

func (r *messageRepositoryImpl) GetMessages(ctx context.Context, sessionID int64, limit int) ([]*entity.Message, error) {
	var messages []*entity.Message

	if limit <= 0 {
		err := r.db.WithContext(ctx).
			Where("session_id = ?", sessionID).
			Order("id ASC").
			Find(&messages).Error
		if err != nil {
			return nil, xerr.NewStorageError("get messages", err)
		}
		return messages, nil
	}

	// 最近 N 条：倒序取出再反转为正序
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, xerr.NewStorageError("get messages", err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (r *messageRepositoryImpl) CountMessages(ctx context.Context, sessionID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.Message{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error
	if err != nil {
		return 0, xerr.NewStorageError("count messages", err)
	}
	return count, nil
}
