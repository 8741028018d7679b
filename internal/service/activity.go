package service

import (
	"context"

	"go.uber.org/zap"

	"sodaledger/backend/internal/domain"
	"sodaledger/backend/internal/logging"
)

// LogActivity appends an audit line. A failed append is logged and
// swallowed so it never undoes the operation it describes.
func (s *Service) LogActivity(ctx context.Context, username string, action string) {
	if username == "" {
		username = "system"
	}

	if err := s.repo.AppendActivity(ctx, domain.ActivityLog{
		Username: username,
		Action:   action,
		LogDate:  s.today(),
	}); err != nil {
		logging.FromContext(ctx, s.logger).Warn("failed to write activity log",
			zap.String("username", username),
			zap.String("action", action),
			zap.Error(err),
		)
	}
}

func (s *Service) ListActivity(ctx context.Context, limit int) ([]domain.ActivityLog, error) {
	return s.repo.ListActivity(ctx, clampLimit(limit))
}
