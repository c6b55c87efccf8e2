package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/amultiwary/TaskApp/internal/config"
	"github.com/amultiwary/TaskApp/internal/logging"
	"github.com/amultiwary/TaskApp/internal/ratelimit"
	"github.com/amultiwary/TaskApp/internal/routes"
)

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the HTTP API server.

The store is selected by DB_DRIVER (sqlite or mysql) and the schema is
created on startup. When REDIS_ADDR is set, auth rate limiting is shared
through Redis; otherwise it is kept in process memory.

Examples:
  taskapp serve
  taskapp serve --config ./taskapp.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	slog.SetDefault(logger)
	gin.SetMode(cfg.GinMode)

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	limiter, rdb, err := newLimiter(ctx, cfg, logger)
	if err != nil {
		st.Close()
		return err
	}

	r := routes.SetupRouter(routes.Dependencies{
		Config:  cfg,
		Logger:  logger,
		DB:      st.db,
		Users:   st.users,
		Tasks:   st.tasks,
		Limiter: limiter,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	// ポートの確保に失敗した場合はここでエラーを返す
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		st.Close()
		if rdb != nil {
			rdb.Close()
		}
		return fmt.Errorf("failed to listen on %s: %w", srv.Addr, err)
	}

	logger.Info("Server listening", "addr", ln.Addr().String(), "driver", cfg.DBDriver)

	ops := map[string]gfshutdown.Operation{
		// 処理中のリクエストを待ってから DB を閉じる
		"http-server": func(ctx context.Context) error {
			logger.Info("Shutting down HTTP server")
			if err := srv.Shutdown(ctx); err != nil {
				return err
			}
			return st.Close()
		},
	}
	if rdb != nil {
		ops["redis"] = func(context.Context) error {
			return rdb.Close()
		}
	}
	return serveUntilShutdown(ctx, srv, ln, cfg.ShutdownTimeout, ops, logger)
}

// serveUntilShutdown はシグナルか ctx の終了、または Serve の失敗まで待ち、ops で後始末をします。
// Serve が失敗した場合もシャットダウン処理を通してから、そのエラーを返します。
func serveUntilShutdown(ctx context.Context, srv *http.Server, ln net.Listener, timeout time.Duration, ops map[string]gfshutdown.Operation, logger *slog.Logger) error {
	trigger, cancel := context.WithCancel(ctx)
	defer cancel()

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server stopped unexpectedly", "error", err)
			serveErr <- err
			cancel()
		}
	}()

	exitCode := <-gfshutdown.GracefulShutdown(trigger, timeout, ops)
	logger.Info("Server exited", "code", exitCode)

	select {
	case err := <-serveErr:
		return fmt.Errorf("server stopped unexpectedly: %w", err)
	default:
	}
	if exitCode != 0 {
		return fmt.Errorf("shutdown finished with exit code %d", exitCode)
	}
	return nil
}

// newLimiter は REDIS_ADDR が設定されていれば Redis を使うリミッターを返します。
// 設定されていなければ nil を返し、ルーター側でメモリ上のリミッターを使います。
func newLimiter(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ratelimit.Limiter, *redis.Client, error) {
	if cfg.RedisAddr == "" {
		return nil, nil, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	logger.Info("Using Redis rate limiter", "addr", cfg.RedisAddr)
	return ratelimit.NewRedisLimiter(rdb, "taskapp:ratelimit:", cfg.AuthRateLimit, cfg.AuthRateWindow), rdb, nil
}
