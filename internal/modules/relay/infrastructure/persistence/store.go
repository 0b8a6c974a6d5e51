package persistence

import (
	"sync"

	"ChatRelay/internal/modules/relay/domain/entity"
	"ChatRelay/internal/modules/relay/domain/repository"
	"ChatRelay/pkg/xerr"

	"gorm.io/gorm"
)

// writeLock SQLite 同一时间只允许一个写入者，所有写操作串行化
type writeLock struct {
	sync.Mutex
}

type store struct {
	*userRepositoryImpl
	*sessionRepositoryImpl
	*messageRepositoryImpl
	db *gorm.DB
}

// NewStore 基于同一个 gorm 连接池构建三个仓储
func NewStore(db *gorm.DB) repository.Store {
	wl := &writeLock{}
	return &store{
		userRepositoryImpl:    &userRepositoryImpl{db: db, wl: wl},
		sessionRepositoryImpl: &sessionRepositoryImpl{db: db, wl: wl},
		messageRepositoryImpl: &messageRepositoryImpl{db: db, wl: wl},
		db:                    db,
	}
}

// AutoMigrate 建表与索引（users/sessions/messages）
func AutoMigrate(db *gorm.DB) error {
	return xerr.NewStorageError("migrate", db.AutoMigrate(
		&entity.User{},
		&entity.Session{},
		&entity.Message{},
	))
}

func (s *store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return xerr.NewStorageError("close", err)
	}
	return xerr.NewStorageError("close", sqlDB.Close())
}
