package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/carelane/visitor-queue/internal/domain"
	"github.com/carelane/visitor-queue/internal/repository"
	"github.com/carelane/visitor-queue/pkg/config"
	"github.com/carelane/visitor-queue/pkg/events"
	"github.com/carelane/visitor-queue/pkg/logger"
)

type TokenService interface {
	IssueToken(ctx context.Context, req *domain.TokenCreateReq, userID *int64) (*domain.Token, error)
	Transition(ctx context.Context, tokenID int64, to domain.TokenStatus, actorID *int64) (*domain.Token, error)
	CancelAll(ctx context.Context, serviceID int64, actorID *int64) (int64, error)
}

type tokenService struct {
	tokenRepo   repository.TokenRepository
	serviceRepo repository.ServiceRepository
	eventBus    events.Publisher
	clock       domain.Clock
	loc         *time.Location
	cfg         config.QueueConfig
}

func NewTokenService(
	tokenRepo repository.TokenRepository,
	serviceRepo repository.ServiceRepository,
	eventBus events.Publisher,
	clock domain.Clock,
	cfg config.QueueConfig,
) TokenService {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Warn("Unknown queue timezone, falling back to UTC", "timezone", cfg.Timezone)
		loc = time.UTC
	}
	return &tokenService{
		tokenRepo:   tokenRepo,
		serviceRepo: serviceRepo,
		eventBus:    eventBus,
		clock:       clock,
		loc:         loc,
		cfg:         cfg,
	}
}

func (s *tokenService) IssueToken(ctx context.Context, req *domain.TokenCreateReq, userID *int64) (*domain.Token, error) {
	svc, err := s.serviceRepo.GetByID(ctx, req.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("look up service: %w: %v", domain.ErrStoreUnavailable, err)
	}
	if svc == nil || !svc.Active {
		return nil, domain.ErrInvalidService
	}

	draft := &domain.TokenDraft{
		ServiceID:       req.ServiceID,
		IssueDate:       domain.DayOf(s.clock.Now(), s.loc),
		VisitorName:     strings.TrimSpace(req.VisitorName),
		VisitorEmail:    strings.TrimSpace(req.VisitorEmail),
		UserID:          userID,
		AppointmentDate: req.AppointmentDate,
		AppointmentTime: req.AppointmentTime,
		Remarks:         req.Remarks,
	}

	token, err := s.tokenRepo.CreateNext(ctx, draft)
	if err != nil {
		return nil, err
	}

	event := events.TokenCreatedEvent{
		TokenID:      token.ID,
		ServiceID:    token.ServiceID,
		TokenNumber:  token.TokenNumber,
		IssueDate:    token.IssueDate.Format("2006-01-02"),
		VisitorName:  token.VisitorName,
		VisitorEmail: token.VisitorEmail,
		UserID:       token.UserID,
		IssuedAt:     token.IssuedAt,
	}
	if err := s.eventBus.Publish(ctx, events.TokenCreated, event); err != nil {
		logger.ErrorContext(ctx, "Failed to publish token created event", "error", err, "token_id", token.ID)
	}

	return token, nil
}

func (s *tokenService) Transition(ctx context.Context, tokenID int64, to domain.TokenStatus, actorID *int64) (*domain.Token, error) {
	token, from, err := s.tokenRepo.Transition(ctx, tokenID, to, actorID)
	if err != nil {
		return nil, err
	}

	event := events.TokenStatusChangedEvent{
		TokenID:      token.ID,
		ServiceID:    token.ServiceID,
		TokenNumber:  token.TokenNumber,
		From:         string(from),
		To:           string(to),
		ActorID:      actorID,
		UserID:       token.UserID,
		VisitorEmail: token.VisitorEmail,
		ChangedAt:    token.UpdatedAt,
	}
	if err := s.eventBus.Publish(ctx, events.TokenStatusChanged, event); err != nil {
		logger.ErrorContext(ctx, "Failed to publish status change event", "error", err, "token_id", token.ID)
	}

	return token, nil
}

func (s *tokenService) CancelAll(ctx context.Context, serviceID int64, actorID *int64) (int64, error) {
	svc, err := s.serviceRepo.GetByID(ctx, serviceID)
	if err != nil {
		return 0, fmt.Errorf("look up service: %w: %v", domain.ErrStoreUnavailable, err)
	}
	if svc == nil {
		return 0, domain.ErrInvalidService
	}

	day := domain.DayOf(s.clock.Now(), s.loc)
	chunk := s.cfg.CancelChunkSize
	if chunk <= 0 {
		chunk = 100
	}

	// Cancel in small transactions so a long sweep never starves
	// concurrent allocations for the same scope. Rerunning is safe: rows
	// already cancelled never qualify again.
	var total int64
	for {
		picked, err := s.tokenRepo.CancelChunk(ctx, serviceID, day, chunk, actorID)
		if err != nil {
			return total, err
		}
		total += int64(len(picked))

		// Each visitor gets their own status change event, the same one an
		// individual cancellation produces, so the notification path does
		// not care how the token was cancelled.
		for _, c := range picked {
			event := events.TokenStatusChangedEvent{
				TokenID:      c.ID,
				ServiceID:    c.ServiceID,
				TokenNumber:  c.TokenNumber,
				From:         string(c.From),
				To:           string(domain.TokenCancelled),
				ActorID:      actorID,
				UserID:       c.UserID,
				VisitorEmail: c.VisitorEmail,
				ChangedAt:    c.UpdatedAt,
			}
			if err := s.eventBus.Publish(ctx, events.TokenStatusChanged, event); err != nil {
				logger.ErrorContext(ctx, "Failed to publish status change event", "error", err, "token_id", c.ID)
			}
		}

		if len(picked) < chunk {
			break
		}
	}

	if total > 0 {
		event := events.TokenBulkCancelledEvent{
			ServiceID:   serviceID,
			IssueDate:   day.Format("2006-01-02"),
			Cancelled:   total,
			ActorID:     actorID,
			CancelledAt: s.clock.Now(),
		}
		if err := s.eventBus.Publish(ctx, events.TokenBulkCancelled, event); err != nil {
			logger.ErrorContext(ctx, "Failed to publish bulk cancel event", "error", err, "service_id", serviceID)
		}
	}

	return total, nil
}
