package repository

import (
	"context"

	"ChatRelay/internal/modules/relay/domain/entity"
)

// UserRepository 用户仓储接口
type UserRepository interface {
	// UpsertUser 不存在则创建，存在则更新显示名
	UpsertUser(ctx context.Context, userID int64, displayName string) error

	// GetUser 不存在时返回 nil, nil
	GetUser(ctx context.Context, userID int64) (*entity.User, error)

	// SetCurrentSession 切换用户当前会话
	SetCurrentSession(ctx context.Context, userID, sessionID int64) error
}

// SessionRepository 会话仓储接口
type SessionRepository interface {
	// CreateSession 创建会话并同时设为该用户的当前会话（同一事务）
	CreateSession(ctx context.Context, userID int64, model, title string) (int64, error)

	// GetSession 不存在时返回 nil, nil
	GetSession(ctx context.Context, sessionID int64) (*entity.Session, error)

	// ListSessions 按最近活跃倒序
	ListSessions(ctx context.Context, userID int64, limit int) ([]*entity.Session, error)

	RenameSession(ctx context.Context, sessionID int64, title string) error

	SetSessionModel(ctx context.Context, sessionID int64, model string) error

	// TouchSession 更新最近活跃时间
	TouchSession(ctx context.Context, sessionID int64) error
}

// MessageRepository 消息仓储接口（只追加）
type MessageRepository interface {
	AppendMessage(ctx context.Context, sessionID int64, role, content, kind string) (*entity.Message, error)

	// GetMessages limit<=0 返回全部；否则返回最近 limit 条，按时间正序
	GetMessages(ctx context.Context, sessionID int64, limit int) ([]*entity.Message, error)

	CountMessages(ctx context.Context, sessionID int64) (int64, error)
}

// Store 聚合三个仓储，进程内共享一个连接池
type Store interface {
	UserRepository
	SessionRepository
	MessageRepository
	Close() error
}
