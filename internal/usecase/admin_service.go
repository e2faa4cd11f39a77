package usecase

import (
	"context"
	"time"

	"github.com/vitos/cheeseball/internal/domain"
	"go.uber.org/zap"
)

type AdminService struct {
	users   domain.UserRepository
	logger  *zap.Logger
	timeNow func() time.Time // For testing
}

func NewAdminService(users domain.UserRepository, logger *zap.Logger) *AdminService {
	return &AdminService{
		users:   users,
		logger:  logger.With(zap.String("component", "admin")),
		timeNow: time.Now,
	}
}

// StatisticsReport is the admin overview stamped with the server clock.
type StatisticsReport struct {
	domain.Statistics
	ServerTime time.Time
}

func (s *AdminService) ListUsers(ctx context.Context) ([]*domain.User, error) {
	return s.users.ListUsers(ctx)
}

func (s *AdminService) Statistics(ctx context.Context) (*StatisticsReport, error) {
	stats, err := s.users.Statistics(ctx)
	if err != nil {
		return nil, err
	}
	return &StatisticsReport{Statistics: *stats, ServerTime: s.timeNow().UTC()}, nil
}

// SetActive activates or deactivates an account. Deactivated accounts can no
// longer log in and their outstanding tokens stop working. It returns the
// updated user.
func (s *AdminService) SetActive(ctx context.Context, admin *domain.Identity, userID int64, active bool) (*domain.User, error) {
	if err := s.users.SetUserActive(ctx, userID, active); err != nil {
		return nil, err
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("User activation changed",
		zap.Int64("user_id", userID),
		zap.String("username", user.Username),
		zap.Bool("active", active),
		zap.String("admin", admin.Username))
	return user, nil
}
