package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	gormlogger "gorm.io/gorm/logger"

	"github.com/amultiwary/TaskApp/internal/config"
	"github.com/amultiwary/TaskApp/internal/database"
	"github.com/amultiwary/TaskApp/internal/repositories"
)

// store は選択されたドライバのリポジトリと接続をまとめたものです。
type store struct {
	db    *sql.DB
	users repositories.UserRepository
	tasks repositories.TaskRepository
}

func (s *store) Close() error {
	return s.db.Close()
}

// openStore は設定のドライバに応じてストアを開き、スキーマを作成します。
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*store, error) {
	switch cfg.DBDriver {
	case config.DriverSQLite:
		level := gormlogger.Warn
		if logger.Enabled(ctx, slog.LevelDebug) {
			level = gormlogger.Info
		}
		gdb, err := database.OpenSQLite(cfg.SQLitePath, level)
		if err != nil {
			return nil, err
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql.DB: %w", err)
		}
		if err := database.MigrateSQLite(gdb); err != nil {
			sqlDB.Close()
			return nil, err
		}
		return &store{
			db:    sqlDB,
			users: repositories.NewGormUserRepository(gdb),
			tasks: repositories.NewGormTaskRepository(gdb),
		}, nil

	case config.DriverMySQL:
		db, err := database.InitDB(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := database.MigrateMySQL(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		return &store{
			db:    db,
			users: repositories.NewMySQLUserRepository(db),
			tasks: repositories.NewMySQLTaskRepository(db),
		}, nil

	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.DBDriver)
	}
}
