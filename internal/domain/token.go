package domain

import "time"

type TokenStatus string

const (
	TokenWaiting   TokenStatus = "waiting"
	TokenCalling   TokenStatus = "calling"
	TokenCompleted TokenStatus = "completed"
	TokenCancelled TokenStatus = "cancelled"
)

func ParseTokenStatus(s string) (TokenStatus, bool) {
	switch TokenStatus(s) {
	case TokenWaiting, TokenCalling, TokenCompleted, TokenCancelled:
		return TokenStatus(s), true
	default:
		return "", false
	}
}

// IsTerminal reports whether no further transition is permitted.
func (s TokenStatus) IsTerminal() bool {
	return s == TokenCompleted || s == TokenCancelled
}

// CanTransition reports whether a token may move from s to next.
// waiting -> calling -> completed; waiting|calling -> cancelled.
func (s TokenStatus) CanTransition(next TokenStatus) bool {
	switch s {
	case TokenWaiting:
		return next == TokenCalling || next == TokenCancelled
	case TokenCalling:
		return next == TokenCompleted || next == TokenCancelled
	default:
		return false
	}
}

// Token is a visitor's place in a service's queue for one day.
// TokenNumber is assigned once at creation and never changes; it is unique
// within (ServiceID, IssueDate) and the per-scope sequence has no gaps.
type Token struct {
	ID           int64       `json:"id"`
	ServiceID    int64       `json:"service_id"`
	TokenNumber  int         `json:"token_number"`
	IssueDate    time.Time   `json:"issue_date"`
	Status       TokenStatus `json:"status"`
	VisitorName  string      `json:"visitor_name,omitempty"`
	VisitorEmail string      `json:"visitor_email,omitempty"`
	UserID       *int64      `json:"user_id,omitempty"`

	AppointmentDate *time.Time `json:"appointment_date,omitempty"`
	AppointmentTime string     `json:"appointment_time,omitempty"`
	Remarks         string     `json:"remarks,omitempty"`

	IssuedAt  time.Time `json:"issued_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TokenDraft is everything the store needs to persist a new token except
// the token number, which the store assigns atomically with the insert.
type TokenDraft struct {
	ServiceID    int64
	IssueDate    time.Time
	VisitorName  string
	VisitorEmail string
	UserID       *int64

	AppointmentDate *time.Time
	AppointmentTime string
	Remarks         string
}

// CancelledToken pairs a token cancelled by a bulk operation with the
// status it held before, so per-token notifications can still be produced.
type CancelledToken struct {
	Token
	From TokenStatus
}

// Scope identifies one independent token-numbering sequence.
type Scope struct {
	ServiceID int64
	Day       time.Time
}

type TokenCreateReq struct {
	ServiceID       int64      `json:"service_id"`
	VisitorName     string     `json:"visitor_name,omitempty"`
	VisitorEmail    string     `json:"visitor_email,omitempty"`
	AppointmentDate *time.Time `json:"appointment_date,omitempty"`
	AppointmentTime string     `json:"appointment_time,omitempty"`
	Remarks         string     `json:"remarks,omitempty"`
}

type TokenStatusReq struct {
	Status string `json:"status"`
}
