package database

import (
	"fmt"
	"log/slog"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/amultiwary/TaskApp/internal/models"
)

// OpenSQLite は gorm 経由で SQLite を開きます。
// TranslateError を有効にして一意制約違反を gorm.ErrDuplicatedKey に変換します。
func OpenSQLite(dsn string, logLevel logger.LogLevel) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("db open failed: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	// SQLite は書き込みが直列なので接続は1本にします。
	sqlDB.SetMaxOpenConns(1)

	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	slog.Info("Opened SQLite database", "dsn", dsn)
	return db, nil
}

// MigrateSQLite は users / tasks テーブルを作成・更新します。
func MigrateSQLite(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.User{}, &models.Task{}); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}
