package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// UserRepository defines persistence access for company users. Every lookup
// except GetByUsername is scoped to a company.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, companyID, id int64) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	ListByCompany(ctx context.Context, companyID int64) ([]domain.User, error)
	Delete(ctx context.Context, companyID, id int64) error
}

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

const userColumns = `id, full_name, username, password_hash, role, area, company_id, created_at, updated_at`

// rowQuerier is satisfied by both the pool and a transaction.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertUser(ctx context.Context, q rowQuerier, user *domain.User) error {
	const query = `
        INSERT INTO users (full_name, username, password_hash, role, area, company_id, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
        RETURNING id, updated_at`
	return q.QueryRow(ctx, query,
		user.FullName,
		user.Username,
		user.PasswordHash,
		user.Role,
		user.Area,
		user.CompanyID,
		user.CreatedAt,
	).Scan(&user.ID, &user.UpdatedAt)
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	return insertUser(ctx, r.pool, user)
}

func (r *userRepository) GetByID(ctx context.Context, companyID, id int64) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE company_id=$1 AND id=$2`
	return scanUser(r.pool.QueryRow(ctx, query, companyID, id))
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username=$1`
	return scanUser(r.pool.QueryRow(ctx, query, username))
}

func (r *userRepository) ListByCompany(ctx context.Context, companyID int64) ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE company_id=$1 ORDER BY full_name ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *user)
	}
	return result, rows.Err()
}

func (r *userRepository) Delete(ctx context.Context, companyID, id int64) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM users WHERE company_id=$1 AND id=$2`, companyID, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(
		&user.ID,
		&user.FullName,
		&user.Username,
		&user.PasswordHash,
		&user.Role,
		&user.Area,
		&user.CompanyID,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}
