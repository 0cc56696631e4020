package domain

import "time"

// Notification is a stored message for a visitor, written off the event
// bus when their token is called or cancelled. Delivery beyond email is
// out of scope; the row is the durable record the visitor can poll.
type Notification struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"is_read"`
	Timestamp time.Time `json:"timestamp"`
}
