package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carelane/visitor-queue/internal/domain"
)

type ProviderRepository interface {
	Create(ctx context.Context, in *domain.ProviderCreateReq) (*domain.Provider, error)
	GetByID(ctx context.Context, id int64) (*domain.Provider, error)
	List(ctx context.Context) ([]domain.Provider, error)
}

type providerRepository struct {
	pool *pgxpool.Pool
}

func NewProviderRepository(pool *pgxpool.Pool) ProviderRepository {
	return &providerRepository{pool: pool}
}

const providerCols = `id, name, location, working_hours, created_at`

func (r *providerRepository) Create(ctx context.Context, in *domain.ProviderCreateReq) (*domain.Provider, error) {
	const q = `INSERT INTO providers (name, location, working_hours)
		VALUES ($1, $2, $3)
		RETURNING ` + providerCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var p domain.Provider
	err := r.pool.QueryRow(ctx, q, in.Name, in.Location, in.WorkingHours).
		Scan(&p.ID, &p.Name, &p.Location, &p.WorkingHours, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *providerRepository) GetByID(ctx context.Context, id int64) (*domain.Provider, error) {
	const q = `SELECT ` + providerCols + ` FROM providers WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var p domain.Provider
	err := r.pool.QueryRow(ctx, q, id).
		Scan(&p.ID, &p.Name, &p.Location, &p.WorkingHours, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *providerRepository) List(ctx context.Context) ([]domain.Provider, error) {
	const q = `SELECT ` + providerCols + ` FROM providers ORDER BY id`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var providers []domain.Provider
	for rows.Next() {
		var p domain.Provider
		if err := rows.Scan(&p.ID, &p.Name, &p.Location, &p.WorkingHours, &p.CreatedAt); err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return providers, rows.Err()
}

var _ ProviderRepository = (*providerRepository)(nil)
