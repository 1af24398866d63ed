package cancellation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/ridecore/pkg/common"
)

// Service is the cancellation reason catalog.
type Service struct {
	repo RepositoryInterface
}

// NewService creates a new cancellation service
func NewService(repo RepositoryInterface) *Service {
	return &Service{repo: repo}
}

// FindActiveReason returns nil when the reason is missing, inactive, or meant for the other party.
func (s *Service) FindActiveReason(ctx context.Context, id uuid.UUID, userType UserType) (*Reason, error) {
	reason, err := s.repo.GetReason(ctx, id)
	if err != nil {
		return nil, err
	}
	if reason == nil || !reason.IsActive || reason.UserType != userType {
		return nil, nil
	}
	return reason, nil
}

// ListReasons returns the active reasons for userType in display order.
func (s *Service) ListReasons(ctx context.Context, userType UserType) ([]*Reason, error) {
	if !userType.Valid() {
		return nil, common.NewBadRequestError(ErrInvalidUserType.Error(), ErrInvalidUserType)
	}
	reasons, err := s.repo.ListActiveReasons(ctx, userType)
	if err != nil {
		return nil, common.NewInternalError("failed to list cancellation reasons", err)
	}
	return reasons, nil
}

// CountDriverCancellationsToday counts the driver's cancellations since local midnight of now.
func (s *Service) CountDriverCancellationsToday(ctx context.Context, driverID uuid.UUID, now time.Time) (int, error) {
	return s.repo.CountDriverCancellationsSince(ctx, driverID, StartOfDay(now))
}

func (s *Service) CreateReason(ctx context.Context, req *CreateReasonRequest) (*Reason, error) {
	reason := &Reason{
		ID:        uuid.New(),
		Reason:    req.Reason,
		ReasonAr:  req.ReasonAr,
		UserType:  req.UserType,
		IsActive:  true,
		SortOrder: req.SortOrder,
	}
	if err := s.repo.CreateReason(ctx, reason); err != nil {
		return nil, common.NewInternalError("failed to create cancellation reason", err)
	}
	return reason, nil
}
