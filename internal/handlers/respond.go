// Package handlers はHTTPリクエストを処理するGinハンドラーを提供します。
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/amultiwary/TaskApp/internal/apperrors"
	"github.com/amultiwary/TaskApp/internal/logging"
	"github.com/amultiwary/TaskApp/internal/models"
)

// コンテキストキー (AuthMiddleware が設定します)
const (
	ContextUserID = "user_id"
	ContextUser   = "user"
)

// respondError はエラーの分類に応じたステータスで {"error": ...} を返します。
// 5xx の場合は内部のエラー内容を返さずにログへ出します。
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	status := apperrors.StatusCode(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		logger.Error("Request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"request_id", c.GetString(logging.RequestIDKey),
			"error", err)
	}
	c.JSON(status, gin.H{"error": apperrors.PublicMessage(err)})
}

func loggerOrDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

func respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "details": err.Error()})
}

// currentUserID はコンテキストから認証済みユーザーのIDを取り出します。
func currentUserID(c *gin.Context) (string, bool) {
	userID := c.GetString(ContextUserID)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User ID not found in context"})
		return "", false
	}
	return userID, true
}

func currentUser(c *gin.Context) (*models.User, bool) {
	val, exists := c.Get(ContextUser)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found in context"})
		return nil, false
	}
	u, ok := val.(*models.User)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Invalid user type in context"})
		return nil, false
	}
	return u, true
}
