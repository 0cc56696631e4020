package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carelane/visitor-queue/internal/domain"
)

type ServiceRepository interface {
	Create(ctx context.Context, in *domain.ServiceCreateReq) (*domain.Service, error)
	GetByID(ctx context.Context, id int64) (*domain.Service, error)
	List(ctx context.Context, providerID *int64) ([]domain.Service, error)
	SetActive(ctx context.Context, id int64, active bool) (*domain.Service, error)
}

type serviceRepository struct {
	pool *pgxpool.Pool
}

func NewServiceRepository(pool *pgxpool.Pool) ServiceRepository {
	return &serviceRepository{pool: pool}
}

const serviceCols = `id, provider_id, name, description, active, created_at`

func scanService(row pgx.Row) (*domain.Service, error) {
	var s domain.Service
	err := row.Scan(&s.ID, &s.ProviderID, &s.Name, &s.Description, &s.Active, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *serviceRepository) Create(ctx context.Context, in *domain.ServiceCreateReq) (*domain.Service, error) {
	const q = `INSERT INTO services (provider_id, name, description)
		VALUES ($1, $2, $3)
		RETURNING ` + serviceCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanService(r.pool.QueryRow(ctx, q, in.ProviderID, in.Name, in.Description))
}

func (r *serviceRepository) GetByID(ctx context.Context, id int64) (*domain.Service, error) {
	const q = `SELECT ` + serviceCols + ` FROM services WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	s, err := scanService(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

func (r *serviceRepository) List(ctx context.Context, providerID *int64) ([]domain.Service, error) {
	q := `SELECT ` + serviceCols + ` FROM services ORDER BY id`
	args := []any{}
	if providerID != nil {
		q = `SELECT ` + serviceCols + ` FROM services WHERE provider_id = $1 ORDER BY id`
		args = append(args, *providerID)
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var services []domain.Service
	for rows.Next() {
		var s domain.Service
		if err := rows.Scan(&s.ID, &s.ProviderID, &s.Name, &s.Description, &s.Active, &s.CreatedAt); err != nil {
			return nil, err
		}
		services = append(services, s)
	}
	return services, rows.Err()
}

func (r *serviceRepository) SetActive(ctx context.Context, id int64, active bool) (*domain.Service, error) {
	const q = `UPDATE services SET active = $2 WHERE id = $1 RETURNING ` + serviceCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	s, err := scanService(r.pool.QueryRow(ctx, q, id, active))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

var _ ServiceRepository = (*serviceRepository)(nil)
