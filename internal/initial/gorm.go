package initial

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"ChatRelay/internal/config"
	"ChatRelay/internal/modules/relay/infrastructure/persistence"
	"ChatRelay/pkg/zlog"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenDB 按配置打开 sqlite（默认）或 mysql，并自动建表
func OpenDB(conf *config.Config) (*gorm.DB, error) {
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	dbConf := conf.DatabaseConfig
	var dialector gorm.Dialector
	switch dbConf.Driver {
	case "mysql":
		name := dbConf.DatabaseName
		if name == "" {
			name = conf.MainConfig.AppName
		}
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			dbConf.User, dbConf.Password, dbConf.Host, dbConf.Port, name)
		dialector = mysql.Open(dsn)
	default:
		if dir := filepath.Dir(dbConf.Path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
		// WAL 允许读写并发；写入仍由仓储层串行化
		dialector = sqlite.Open(dbConf.Path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, err
	}
	if dbConf.Driver != "mysql" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	// 自动迁移，如果没有建表，会自动创建对应的表
	if err := persistence.AutoMigrate(db); err != nil {
		return nil, err
	}
	zlog.Info("database ready", zap.String("driver", dbConf.Driver), zap.String("path", dbConf.Path))
	return db, nil
}
