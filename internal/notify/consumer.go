package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/carelane/visitor-queue/internal/mailer"
	"github.com/carelane/visitor-queue/internal/repository"
	"github.com/carelane/visitor-queue/pkg/events"
	"github.com/carelane/visitor-queue/pkg/logger"
)

// Consumer turns token lifecycle events into stored notifications and
// outbound email. It runs off the event bus so a slow mail provider never
// delays token operations.
type Consumer struct {
	bus              events.Subscriber
	notificationRepo repository.NotificationRepository
	mail             mailer.Service
}

func NewConsumer(bus events.Subscriber, notificationRepo repository.NotificationRepository, mail mailer.Service) *Consumer {
	return &Consumer{
		bus:              bus,
		notificationRepo: notificationRepo,
		mail:             mail,
	}
}

// Start registers the subscriptions. The "notify" queue group keeps a
// multi-instance deployment from double-sending.
func (c *Consumer) Start() error {
	return c.bus.QueueSubscribe(events.TokenStatusChanged, "notify", c.handleStatusChanged)
}

func (c *Consumer) handleStatusChanged(msg *events.Message) {
	var event events.TokenStatusChangedEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		logger.Error("Failed to decode status change event", "error", err, "subject", msg.Subject)
		return
	}

	var message string
	switch event.To {
	case "calling":
		message = fmt.Sprintf("Token #%d is now being called.", event.TokenNumber)
	case "cancelled":
		message = fmt.Sprintf("Token #%d has been cancelled.", event.TokenNumber)
	default:
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if event.UserID != nil {
		if err := c.notificationRepo.Insert(ctx, *event.UserID, message); err != nil {
			logger.Error("Failed to store notification", "error", err, "token_id", event.TokenID)
		}
	}

	if event.VisitorEmail != "" {
		subject := fmt.Sprintf("Queue update for token #%d", event.TokenNumber)
		if _, err := c.mail.Send(event.VisitorEmail, "", subject, message, "<p>"+message+"</p>"); err != nil {
			logger.Error("Failed to send notification email", "error", err, "token_id", event.TokenID)
		}
	}
}
