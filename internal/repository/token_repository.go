package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carelane/visitor-queue/internal/domain"
	"github.com/carelane/visitor-queue/pkg/config"
)

type TokenRepository interface {
	// CreateNext allocates the next token number for the draft's
	// (service_id, issue_date) scope and inserts the token in one atomic
	// unit, together with its token_created audit entry.
	CreateNext(ctx context.Context, draft *domain.TokenDraft) (*domain.Token, error)
	GetByID(ctx context.Context, id int64) (*domain.Token, error)
	// Transition moves a token to the requested status after validating
	// the move against the freshly locked row. The second return value is
	// the status the token held before the update.
	Transition(ctx context.Context, id int64, to domain.TokenStatus, actorID *int64) (*domain.Token, domain.TokenStatus, error)
	// CancelChunk cancels up to limit non-terminal tokens in the scope and
	// returns the rows it transitioned, each with its prior status, so the
	// caller can notify every affected visitor. Empty means nothing qualifies.
	CancelChunk(ctx context.Context, serviceID int64, day time.Time, limit int, actorID *int64) ([]domain.CancelledToken, error)
	// CancelStaleBefore cancels leftover waiting or calling tokens issued
	// before the given day, across all services. Used by the nightly sweep.
	CancelStaleBefore(ctx context.Context, day time.Time, limit int) ([]domain.CancelledToken, error)
	ListByServiceAndDate(ctx context.Context, serviceID int64, day time.Time) ([]domain.Token, error)
}

type tokenRepository struct {
	pool  *pgxpool.Pool
	audit AuditRepository
	cfg   config.QueueConfig
}

func NewTokenRepository(pool *pgxpool.Pool, audit AuditRepository, cfg config.QueueConfig) TokenRepository {
	return &tokenRepository{pool: pool, audit: audit, cfg: cfg}
}

const tokenCols = `id, service_id, token_number, issue_date, status,
visitor_name, visitor_email, user_id, appointment_date, appointment_time, remarks,
issued_at, updated_at`

func scanToken(row pgx.Row) (*domain.Token, error) {
	var t domain.Token
	err := row.Scan(
		&t.ID, &t.ServiceID, &t.TokenNumber, &t.IssueDate, &t.Status,
		&t.VisitorName, &t.VisitorEmail, &t.UserID, &t.AppointmentDate, &t.AppointmentTime, &t.Remarks,
		&t.IssuedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *tokenRepository) CreateNext(ctx context.Context, draft *domain.TokenDraft) (*domain.Token, error) {
	attempts := r.cfg.AllocateRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		token, err := r.createNextOnce(ctx, draft)
		if err == nil {
			return token, nil
		}
		// A duplicate on the (service_id, issue_date, token_number) index
		// means a racing writer beat us to the number. Retry the whole
		// allocation; never surface the conflict as success.
		if isUniqueViolation(err) {
			lastErr = err
			continue
		}
		if errors.Is(err, domain.ErrSequenceExhausted) {
			return nil, err
		}
		return nil, storeErr("allocate token", err)
	}
	return nil, storeErr("allocate token: retries exhausted", lastErr)
}

func (r *tokenRepository) createNextOnce(ctx context.Context, draft *domain.TokenDraft) (*domain.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// Serialize allocations per (service, day). The lock is transaction
	// scoped, so different scopes never block each other and the lock is
	// released on commit or rollback.
	lockKey := fmt.Sprintf("token_seq:%d:%s", draft.ServiceID, draft.IssueDate.Format("2006-01-02"))
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lockKey); err != nil {
		return nil, err
	}

	var max int
	const maxQ = `SELECT COALESCE(MAX(token_number), 0) FROM tokens WHERE service_id = $1 AND issue_date = $2`
	if err := tx.QueryRow(ctx, maxQ, draft.ServiceID, draft.IssueDate).Scan(&max); err != nil {
		return nil, err
	}

	next := max + 1
	if next > r.cfg.MaxTokensPerDay {
		return nil, domain.ErrSequenceExhausted
	}

	const insertQ = `INSERT INTO tokens (
    service_id, token_number, issue_date, status,
    visitor_name, visitor_email, user_id, appointment_date, appointment_time, remarks
  ) VALUES ($1, $2, $3, 'waiting', $4, $5, $6, $7, $8, $9)
  RETURNING ` + tokenCols

	token, err := scanToken(tx.QueryRow(ctx, insertQ,
		draft.ServiceID, next, draft.IssueDate,
		draft.VisitorName, draft.VisitorEmail, draft.UserID,
		draft.AppointmentDate, draft.AppointmentTime, draft.Remarks,
	))
	if err != nil {
		return nil, err
	}

	details := fmt.Sprintf(`{"token_id":%d,"service_id":%d,"token_number":%d}`,
		token.ID, token.ServiceID, token.TokenNumber)
	if err := r.audit.InsertTx(ctx, tx, domain.AuditTokenCreated, draft.UserID, details); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return token, nil
}

func (r *tokenRepository) GetByID(ctx context.Context, id int64) (*domain.Token, error) {
	const q = `SELECT ` + tokenCols + ` FROM tokens WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	token, err := scanToken(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, storeErr("get token", err)
	}
	return token, nil
}

func (r *tokenRepository) Transition(ctx context.Context, id int64, to domain.TokenStatus, actorID *int64) (*domain.Token, domain.TokenStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, "", storeErr("begin transition", err)
	}
	defer tx.Rollback(ctx)

	// Lock the row so a concurrent transition on the same token is
	// serialized and we validate against the committed status, not a
	// stale read.
	var from domain.TokenStatus
	const lockQ = `SELECT status FROM tokens WHERE id = $1 FOR UPDATE`
	err = tx.QueryRow(ctx, lockQ, id).Scan(&from)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", domain.ErrNotFound
	}
	if err != nil {
		return nil, "", storeErr("lock token", err)
	}

	if !from.CanTransition(to) {
		return nil, from, &domain.IllegalTransitionError{From: from, To: to}
	}

	// Only the status moves; token_number and issue_date are write-once.
	const updateQ = `UPDATE tokens SET status = $2, updated_at = now() WHERE id = $1 RETURNING ` + tokenCols
	token, err := scanToken(tx.QueryRow(ctx, updateQ, id, to))
	if err != nil {
		return nil, from, storeErr("update token status", err)
	}

	details := fmt.Sprintf(`{"token_id":%d,"from":%q,"to":%q}`, id, from, to)
	if err := r.audit.InsertTx(ctx, tx, domain.AuditTokenStatusChanged, actorID, details); err != nil {
		return nil, from, storeErr("audit transition", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, from, storeErr("commit transition", err)
	}
	return token, from, nil
}

const cancelledCols = `t.id, t.service_id, t.token_number, t.issue_date, t.status,
t.visitor_name, t.visitor_email, t.user_id, t.appointment_date, t.appointment_time, t.remarks,
t.issued_at, t.updated_at, p.status`

func scanCancelled(rows pgx.Rows) ([]domain.CancelledToken, error) {
	var picked []domain.CancelledToken
	for rows.Next() {
		var c domain.CancelledToken
		if err := rows.Scan(
			&c.ID, &c.ServiceID, &c.TokenNumber, &c.IssueDate, &c.Status,
			&c.VisitorName, &c.VisitorEmail, &c.UserID, &c.AppointmentDate, &c.AppointmentTime, &c.Remarks,
			&c.IssuedAt, &c.UpdatedAt, &c.From,
		); err != nil {
			rows.Close()
			return nil, err
		}
		picked = append(picked, c)
	}
	rows.Close()
	return picked, rows.Err()
}

func (r *tokenRepository) CancelChunk(ctx context.Context, serviceID int64, day time.Time, limit int, actorID *int64) ([]domain.CancelledToken, error) {
	if limit <= 0 {
		limit = 100
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, storeErr("begin cancel chunk", err)
	}
	defer tx.Rollback(ctx)

	// SKIP LOCKED keeps a rerun (or a concurrent transition) from blocking
	// the sweep; rows that are already terminal simply never qualify, so
	// repeating the operation cancels nothing extra and logs nothing extra.
	const q = `
		WITH picked AS (
			SELECT id, status FROM tokens
			WHERE service_id = $1 AND issue_date = $2 AND status IN ('waiting', 'calling')
			ORDER BY token_number
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		UPDATE tokens t SET status = 'cancelled', updated_at = now()
		FROM picked p WHERE t.id = p.id
		RETURNING ` + cancelledCols

	rows, err := tx.Query(ctx, q, serviceID, day, limit)
	if err != nil {
		return nil, storeErr("cancel chunk", err)
	}
	picked, err := scanCancelled(rows)
	if err != nil {
		return nil, storeErr("scan cancel chunk", err)
	}

	for _, c := range picked {
		details := fmt.Sprintf(`{"token_id":%d,"from":%q,"to":%q}`, c.ID, c.From, domain.TokenCancelled)
		if err := r.audit.InsertTx(ctx, tx, domain.AuditTokenStatusChanged, actorID, details); err != nil {
			return nil, storeErr("audit cancel chunk", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, storeErr("commit cancel chunk", err)
	}
	return picked, nil
}

func (r *tokenRepository) CancelStaleBefore(ctx context.Context, day time.Time, limit int) ([]domain.CancelledToken, error) {
	if limit <= 0 {
		limit = 500
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, storeErr("begin stale sweep", err)
	}
	defer tx.Rollback(ctx)

	const q = `
		WITH picked AS (
			SELECT id, status FROM tokens
			WHERE issue_date < $1 AND status IN ('waiting', 'calling')
			ORDER BY id
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE tokens t SET status = 'cancelled', updated_at = now()
		FROM picked p WHERE t.id = p.id
		RETURNING ` + cancelledCols

	rows, err := tx.Query(ctx, q, day, limit)
	if err != nil {
		return nil, storeErr("stale sweep", err)
	}
	picked, err := scanCancelled(rows)
	if err != nil {
		return nil, storeErr("scan stale sweep", err)
	}

	for _, s := range picked {
		details := fmt.Sprintf(`{"token_id":%d,"from":%q,"to":%q,"reason":"stale"}`, s.ID, s.From, domain.TokenCancelled)
		if err := r.audit.InsertTx(ctx, tx, domain.AuditTokenStatusChanged, nil, details); err != nil {
			return nil, storeErr("audit stale sweep", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, storeErr("commit stale sweep", err)
	}
	return picked, nil
}

func (r *tokenRepository) ListByServiceAndDate(ctx context.Context, serviceID int64, day time.Time) ([]domain.Token, error) {
	const q = `SELECT ` + tokenCols + ` FROM tokens
		WHERE service_id = $1 AND issue_date = $2
		ORDER BY token_number ASC`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, serviceID, day)
	if err != nil {
		return nil, storeErr("list tokens", err)
	}
	defer rows.Close()

	var tokens []domain.Token
	for rows.Next() {
		var t domain.Token
		if err := rows.Scan(
			&t.ID, &t.ServiceID, &t.TokenNumber, &t.IssueDate, &t.Status,
			&t.VisitorName, &t.VisitorEmail, &t.UserID, &t.AppointmentDate, &t.AppointmentTime, &t.Remarks,
			&t.IssuedAt, &t.UpdatedAt,
		); err != nil {
			return nil, storeErr("scan token", err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list tokens", err)
	}
	return tokens, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, domain.ErrStoreUnavailable, err)
}

var _ TokenRepository = (*tokenRepository)(nil)
