package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// CompanyRepository persists tenants.
type CompanyRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Company, error)
	// RegisterWithAdmin inserts the company and its first administrator
	// atomically. On any failure neither row exists.
	RegisterWithAdmin(ctx context.Context, company *domain.Company, admin *domain.User) error
}

type companyRepository struct {
	pool *pgxpool.Pool
}

// NewCompanyRepository returns a Postgres-backed implementation.
func NewCompanyRepository(pool *pgxpool.Pool) CompanyRepository {
	return &companyRepository{pool: pool}
}

func (r *companyRepository) GetByID(ctx context.Context, id int64) (*domain.Company, error) {
	const query = `SELECT id, name, created_at FROM companies WHERE id=$1`
	var company domain.Company
	if err := r.pool.QueryRow(ctx, query, id).Scan(&company.ID, &company.Name, &company.CreatedAt); err != nil {
		return nil, err
	}
	return &company, nil
}

func (r *companyRepository) RegisterWithAdmin(ctx context.Context, company *domain.Company, admin *domain.User) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		const insertCompany = `
        INSERT INTO companies (name, created_at) VALUES ($1, $2)
        RETURNING id`
		if err := tx.QueryRow(ctx, insertCompany, company.Name, company.CreatedAt).Scan(&company.ID); err != nil {
			return err
		}
		admin.CompanyID = company.ID
		return insertUser(ctx, tx, admin)
	})
}
