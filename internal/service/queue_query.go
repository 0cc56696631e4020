package service

import (
	"context"
	"fmt"
	"time"

	"github.com/carelane/visitor-queue/internal/domain"
	"github.com/carelane/visitor-queue/internal/repository"
	"github.com/carelane/visitor-queue/pkg/config"
	"github.com/carelane/visitor-queue/pkg/logger"
)

// QueueQueryService serves the read-only projections staff displays
// consume. No side effects.
type QueueQueryService interface {
	// ListToday returns the service's tokens for the current day, ascending
	// by token number.
	ListToday(ctx context.Context, serviceID int64) ([]domain.Token, error)
}

type queueQueryService struct {
	tokenRepo   repository.TokenRepository
	serviceRepo repository.ServiceRepository
	clock       domain.Clock
	loc         *time.Location
}

func NewQueueQueryService(
	tokenRepo repository.TokenRepository,
	serviceRepo repository.ServiceRepository,
	clock domain.Clock,
	cfg config.QueueConfig,
) QueueQueryService {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Warn("Unknown queue timezone, falling back to UTC", "timezone", cfg.Timezone)
		loc = time.UTC
	}
	return &queueQueryService{
		tokenRepo:   tokenRepo,
		serviceRepo: serviceRepo,
		clock:       clock,
		loc:         loc,
	}
}

func (s *queueQueryService) ListToday(ctx context.Context, serviceID int64) ([]domain.Token, error) {
	svc, err := s.serviceRepo.GetByID(ctx, serviceID)
	if err != nil {
		return nil, fmt.Errorf("look up service: %w: %v", domain.ErrStoreUnavailable, err)
	}
	if svc == nil {
		return nil, domain.ErrInvalidService
	}

	today := domain.DayOf(s.clock.Now(), s.loc)
	return s.tokenRepo.ListByServiceAndDate(ctx, serviceID, today)
}
