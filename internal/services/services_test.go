package services_test

import (
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/amultiwary/TaskApp/internal/repositories"
	"github.com/amultiwary/TaskApp/internal/services"
	"github.com/amultiwary/TaskApp/testutil"
)

type testServices struct {
	users *services.UserService
	auth  *services.AuthService
	tasks *services.TaskService
	stats *services.StatsService
	jwt   *services.JWTService
}

func newTestServices(t *testing.T) testServices {
	t.Helper()
	db := testutil.OpenSQLite(t)
	userRepo := repositories.NewGormUserRepository(db)
	taskRepo := repositories.NewGormTaskRepository(db)

	hasher := services.NewPasswordHasher(bcrypt.MinCost)
	jwtService := services.NewJWTService(testutil.TestJWTSecret, "taskapp-test", time.Hour)
	users := services.NewUserService(userRepo, hasher)
	return testServices{
		users: users,
		auth:  services.NewAuthService(users, hasher, jwtService),
		tasks: services.NewTaskService(taskRepo),
		stats: services.NewStatsService(taskRepo),
		jwt:   jwtService,
	}
}
