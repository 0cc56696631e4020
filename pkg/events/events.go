package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/carelane/visitor-queue/pkg/logger"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

type Subscriber interface {
	Subscribe(subject string, handler func(msg *Message)) error
	QueueSubscribe(subject, queue string, handler func(msg *Message)) error
	Close() error
}

type EventBus interface {
	Publisher
	Subscriber
}

type Message struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject, "data", string(payload))

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Subscribe(subject string, handler func(msg *Message)) error {
	_, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
		})
	})
	return err
}

func (n *NATSEventBus) QueueSubscribe(subject, queue string, handler func(msg *Message)) error {
	_, err := n.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
		})
	})
	return err
}

func (n *NATSEventBus) Close() error {
	n.conn.Close()
	return nil
}

// Event subjects
const (
	TokenCreated       = "token.created"
	TokenStatusChanged = "token.status_changed"
	TokenBulkCancelled = "token.bulk_cancelled"
)

// Event payloads
type TokenCreatedEvent struct {
	TokenID      int64     `json:"token_id"`
	ServiceID    int64     `json:"service_id"`
	TokenNumber  int       `json:"token_number"`
	IssueDate    string    `json:"issue_date"`
	VisitorName  string    `json:"visitor_name,omitempty"`
	VisitorEmail string    `json:"visitor_email,omitempty"`
	UserID       *int64    `json:"user_id,omitempty"`
	IssuedAt     time.Time `json:"issued_at"`
}

type TokenStatusChangedEvent struct {
	TokenID      int64     `json:"token_id"`
	ServiceID    int64     `json:"service_id"`
	TokenNumber  int       `json:"token_number"`
	From         string    `json:"from"`
	To           string    `json:"to"`
	ActorID      *int64    `json:"actor_id,omitempty"`
	UserID       *int64    `json:"user_id,omitempty"`
	VisitorEmail string    `json:"visitor_email,omitempty"`
	ChangedAt    time.Time `json:"changed_at"`
}

type TokenBulkCancelledEvent struct {
	ServiceID   int64     `json:"service_id"`
	IssueDate   string    `json:"issue_date"`
	Cancelled   int64     `json:"cancelled"`
	ActorID     *int64    `json:"actor_id,omitempty"`
	CancelledAt time.Time `json:"cancelled_at"`
}
