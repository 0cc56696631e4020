package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/carelane/visitor-queue/internal/domain"
	"github.com/carelane/visitor-queue/internal/repository"
	"github.com/carelane/visitor-queue/pkg/config"
	"github.com/carelane/visitor-queue/pkg/events"
	"github.com/carelane/visitor-queue/pkg/logger"
)

// Scheduler runs housekeeping on the queue. The nightly sweep closes out
// tokens left in a non-terminal state when a day ends, so old scopes never
// hold live tokens.
type Scheduler struct {
	cron      *cron.Cron
	tokenRepo repository.TokenRepository
	eventBus  events.Publisher
	clock     domain.Clock
	loc       *time.Location
}

func NewScheduler(tokenRepo repository.TokenRepository, eventBus events.Publisher, clock domain.Clock, cfg config.QueueConfig) *Scheduler {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Warn("Unknown queue timezone, falling back to UTC", "timezone", cfg.Timezone)
		loc = time.UTC
	}
	return &Scheduler{
		cron:      cron.New(cron.WithLocation(loc)),
		tokenRepo: tokenRepo,
		eventBus:  eventBus,
		clock:     clock,
		loc:       loc,
	}
}

func (s *Scheduler) Start() error {
	// Five past midnight, queue-local time.
	if _, err := s.cron.AddFunc("5 0 * * *", s.sweepStaleTokens); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) sweepStaleTokens() {
	today := domain.DayOf(s.clock.Now(), s.loc)

	var total int64
	for {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		picked, err := s.tokenRepo.CancelStaleBefore(ctx, today, 500)
		if err != nil {
			cancel()
			logger.Error("Stale token sweep failed", "error", err, "cancelled_so_far", total)
			return
		}
		total += int64(len(picked))

		// Swept tokens notify like any other cancellation.
		for _, c := range picked {
			event := events.TokenStatusChangedEvent{
				TokenID:      c.ID,
				ServiceID:    c.ServiceID,
				TokenNumber:  c.TokenNumber,
				From:         string(c.From),
				To:           string(domain.TokenCancelled),
				UserID:       c.UserID,
				VisitorEmail: c.VisitorEmail,
				ChangedAt:    c.UpdatedAt,
			}
			if err := s.eventBus.Publish(ctx, events.TokenStatusChanged, event); err != nil {
				logger.Error("Failed to publish status change event", "error", err, "token_id", c.ID)
			}
		}
		cancel()

		if len(picked) < 500 {
			break
		}
	}

	if total > 0 {
		logger.Info("Stale token sweep finished", "cancelled", total)
	}
}
