package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carelane/visitor-queue/internal/domain"
)

type AuditRepository interface {
	// InsertTx writes an entry inside a caller-owned transaction so the
	// audit row commits or rolls back together with the mutation it records.
	InsertTx(ctx context.Context, tx pgx.Tx, action string, userID *int64, details string) error
	Insert(ctx context.Context, action string, userID *int64, details string) error
	ListRecent(ctx context.Context, limit int) ([]domain.AuditLog, error)
}

type auditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) AuditRepository {
	return &auditRepository{pool: pool}
}

const auditInsert = `INSERT INTO audit_logs (action, user_id, details) VALUES ($1, $2, $3)`

func (r *auditRepository) InsertTx(ctx context.Context, tx pgx.Tx, action string, userID *int64, details string) error {
	_, err := tx.Exec(ctx, auditInsert, action, userID, details)
	return err
}

func (r *auditRepository) Insert(ctx context.Context, action string, userID *int64, details string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, auditInsert, action, userID, details)
	return err
}

func (r *auditRepository) ListRecent(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	const q = `SELECT id, action, timestamp, user_id, details FROM audit_logs ORDER BY id DESC LIMIT $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var l domain.AuditLog
		if err := rows.Scan(&l.ID, &l.Action, &l.Timestamp, &l.UserID, &l.Details); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

var _ AuditRepository = (*auditRepository)(nil)
