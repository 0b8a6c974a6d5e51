package service

import (
	"context"
	"strings"

	"ChatRelay/internal/modules/relay/domain/entity"
	"ChatRelay/internal/modules/relay/domain/repository"
	"ChatRelay/internal/modules/relay/domain/transport"
	"ChatRelay/pkg/zlog"

	"go.uber.org/zap"
)

// sessionResolver 确保用户存在并有一个可用的当前会话
type sessionResolver struct {
	store        repository.Store
	defaultModel string
}

func (s *sessionResolver) touchUser(ctx context.Context, ev transport.Event) (*entity.User, error) {
	if err := s.store.UpsertUser(ctx, ev.UserID, ev.DisplayName); err != nil {
		return nil, err
	}
	return s.store.GetUser(ctx, ev.UserID)
}

// current 返回当前会话；没有时为 nil
func (s *sessionResolver) current(ctx context.Context, userID int64) (*entity.Session, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil || user == nil || user.CurrentSessionId == nil {
		return nil, err
	}
	sess, err := s.store.GetSession(ctx, *user.CurrentSessionId)
	if err != nil || sess == nil {
		return nil, err
	}
	if strings.TrimSpace(sess.Model) == "" {
		sess.Model = s.defaultModel
	}
	return sess, nil
}

// ensure 没有当前会话时用默认模型新建
func (s *sessionResolver) ensure(ctx context.Context, ev transport.Event) (*entity.Session, error) {
	if _, err := s.touchUser(ctx, ev); err != nil {
		return nil, err
	}
	sess, err := s.current(ctx, ev.UserID)
	if err != nil {
		return nil, err
	}
	if sess != nil {
		return sess, nil
	}
	return s.create(ctx, ev.UserID)
}

func (s *sessionResolver) create(ctx context.Context, userID int64) (*entity.Session, error) {
	id, err := s.store.CreateSession(ctx, userID, s.defaultModel, entity.DefaultSessionTitle)
	if err != nil {
		return nil, err
	}
	zlog.Info("session created", zap.Int64("user_id", userID), zap.Int64("session_id", id), zap.String("model", s.defaultModel))
	return s.store.GetSession(ctx, id)
}
