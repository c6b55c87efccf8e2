package services

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/amultiwary/TaskApp/internal/models"
	"github.com/amultiwary/TaskApp/internal/repositories"
)

// StatsService はユーザーごとのタスク件数を集計します。
type StatsService struct {
	taskRepo repositories.TaskRepository
}

func NewStatsService(taskRepo repositories.TaskRepository) *StatsService {
	return &StatsService{taskRepo: taskRepo}
}

// GetStats は total / completed / pending をそれぞれ独立に数えます。
// 3つの値は同一スナップショットではないため、合計が一致しないことがあります。
func (s *StatsService) GetStats(ctx context.Context, ownerID string) (*models.TaskStats, error) {
	var stats models.TaskStats
	completed := models.StatusCompleted
	pending := models.StatusPending

	g, gctx := errgroup.WithContext(ctx)
	count := func(dst *int64, status *models.TaskStatus) func() error {
		return func() error {
			n, err := s.taskRepo.CountByOwner(gctx, ownerID, status)
			if err != nil {
				return err
			}
			*dst = n
			return nil
		}
	}
	g.Go(count(&stats.Total, nil))
	g.Go(count(&stats.Completed, &completed))
	g.Go(count(&stats.Pending, &pending))

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}
	return &stats, nil
}
