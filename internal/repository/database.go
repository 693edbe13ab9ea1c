package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/apk-analysis/droidcarve-go/internal/config"
	"github.com/apk-analysis/droidcarve-go/internal/domain"
	"github.com/apk-analysis/droidcarve-go/internal/retry"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB 初始化数据库连接并迁移表结构
func InitDB(ctx context.Context, cfg *config.DatabaseConfig, log *logrus.Logger) (*gorm.DB, error) {
	dialector, err := newDialector(cfg)
	if err != nil {
		return nil, err
	}

	db, err := retry.DoWithResult(ctx, retry.ConnectConfig("database connect", log), func(ctx context.Context) (*gorm.DB, error) {
		db, err := gorm.Open(dialector, &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent), // 关闭 SQL 日志
			NowFunc: func() time.Time {
				return time.Now().UTC()
			},
		})
		if err != nil {
			return nil, err
		}

		sqlDB, err := db.DB()
		if err != nil {
			return nil, retry.Permanent(err)
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			return nil, err
		}
		return db, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	if cfg.Type == "mysql" {
		sqlDB, _ := db.DB()
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	if err := AutoMigrate(db, log); err != nil {
		return nil, err
	}

	return db, nil
}

// newDialector 根据配置选择 mysql 或 sqlite
func newDialector(cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	if cfg.Type == "mysql" {
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)
		return mysql.Open(dsn), nil
	}

	path := cfg.Path
	if path == "" {
		path = "./data/droidcarve.db"
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database dir: %w", err)
		}
	}
	return sqlite.Open(path), nil
}

// AutoMigrate 自动迁移数据库表结构
func AutoMigrate(db *gorm.DB, log *logrus.Logger) error {
	log.Info("Running database migrations...")

	if err := db.AutoMigrate(&domain.AnalysisReport{}); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}

	log.Info("Database migrations completed")
	return nil
}
