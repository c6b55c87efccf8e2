// Package testutil はテスト用のデータベースとルーターを用意します。
package testutil

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/amultiwary/TaskApp/internal/config"
	"github.com/amultiwary/TaskApp/internal/database"
	"github.com/amultiwary/TaskApp/internal/models"
	"github.com/amultiwary/TaskApp/internal/repositories"
	"github.com/amultiwary/TaskApp/internal/routes"
)

// TestJWTSecret はテスト用の署名鍵です。
const TestJWTSecret = "test-jwt-secret"

// TestConfig はテスト用の設定を返します。bcrypt のコストは最小です。
func TestConfig() *config.Config {
	return &config.Config{
		Port:            "0",
		GinMode:         gin.TestMode,
		AllowOrigins:    []string{"http://localhost:3000"},
		JWTSecret:       TestJWTSecret,
		JWTIssuer:       "taskapp-test",
		TokenTTL:        time.Hour,
		BcryptCost:      4,
		DBDriver:        config.DriverSQLite,
		SQLitePath:      ":memory:",
		DBMaxOpenConns:  1,
		AuthRateLimit:   1000,
		AuthRateWindow:  time.Minute,
		ShutdownTimeout: time.Second,
		LogLevel:        "error",
		LogFormat:       "text",
	}
}

// OpenSQLite はテストごとに独立したインメモリSQLiteを開き、マイグレーションします。
func OpenSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.OpenSQLite(dsn, logger.Silent)
	require.NoError(t, err)
	require.NoError(t, database.MigrateSQLite(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

// SetupTestDB はインメモリSQLiteを使ったルーターを構築します。
func SetupTestDB(t *testing.T) (*gorm.DB, *gin.Engine) {
	t.Helper()
	return SetupTestDBWithConfig(t, TestConfig())
}

// SetupTestDBWithConfig は設定を指定してルーターを構築します。
func SetupTestDBWithConfig(t *testing.T, cfg *config.Config) (*gorm.DB, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := OpenSQLite(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)

	r := routes.SetupRouter(routes.Dependencies{
		Config: cfg,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		DB:     sqlDB,
		Users:  repositories.NewGormUserRepository(db),
		Tasks:  repositories.NewGormTaskRepository(db),
	})
	return db, r
}

// SetupMySQL は TEST_DB_* が設定されている場合に MySQL に接続し、テーブルを空にします。
// 設定されていない、または接続できない場合はテストをスキップします。
func SetupMySQL(t *testing.T) *sql.DB {
	t.Helper()
	_ = godotenv.Load("../../.env")

	cfg := &config.Config{
		DBUser:         os.Getenv("TEST_DB_USER"),
		DBPass:         os.Getenv("TEST_DB_PASS"),
		DBHost:         os.Getenv("TEST_DB_HOST"),
		DBPort:         os.Getenv("TEST_DB_PORT"),
		DBName:         os.Getenv("TEST_DB_NAME"),
		DBMaxOpenConns: 5,
	}
	if cfg.DBHost == "" || cfg.DBName == "" {
		t.Skip("TEST_DB_HOST / TEST_DB_NAME not set, skipping MySQL test")
	}
	if cfg.DBPort == "" {
		cfg.DBPort = "3306"
	}

	ctx := context.Background()
	db, err := database.InitDB(ctx, cfg)
	if err != nil {
		t.Skipf("MySQL not reachable: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.MigrateMySQL(ctx, db))
	// 外部キー制約があるため tasks -> users の順で削除
	for _, stmt := range []string{"DELETE FROM tasks", "DELETE FROM users"} {
		_, err := db.ExecContext(ctx, stmt)
		require.NoError(t, err)
	}
	return db
}

// PerformRequest はルーターにJSONリクエストを送ります。token が空なら Authorization を付けません。
func PerformRequest(r http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			payload, _ := json.Marshal(b)
			reader = bytes.NewBuffer(payload)
		}
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// RegisterAndGetToken はユーザーを登録し、トークンとユーザーを返します。
func RegisterAndGetToken(t *testing.T, r http.Handler, name, email, password string) (string, *models.User) {
	t.Helper()
	w := PerformRequest(r, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp models.AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	return resp.AccessToken, resp.User
}

// LoginAndGetToken はログインしてトークンを返します。
func LoginAndGetToken(t *testing.T, r http.Handler, email, password string) (string, error) {
	t.Helper()
	w := PerformRequest(r, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	})
	if w.Code != http.StatusOK {
		return "", fmt.Errorf("login failed with status %d: %s", w.Code, w.Body.String())
	}

	var resp models.AuthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		return "", fmt.Errorf("failed to unmarshal login response: %w", err)
	}
	return resp.AccessToken, nil
}

// CreateTestTask はAPI経由でタスクを作成します。
func CreateTestTask(t *testing.T, r http.Handler, token string, body map[string]any) *models.Task {
	t.Helper()
	w := PerformRequest(r, http.MethodPost, "/api/tasks", token, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var task models.Task
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &task))
	return &task
}

// DecodeJSON はレスポンスボディを v にデコードします。
func DecodeJSON(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

// Serve は組み立て済みのリクエストをルーターに渡します。
func Serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}
