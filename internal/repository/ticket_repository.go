package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// TicketScope restricts a listing to what one caller may see. With Area nil
// only tickets created by CreatorID match; otherwise tickets assigned to Area
// or created by CreatorID match.
type TicketScope struct {
	CreatorID int64
	Area      *domain.Area
}

// TicketFilter captures list parameters. CompanyID is mandatory.
type TicketFilter struct {
	CompanyID     int64
	Scope         TicketScope
	Status        *domain.TicketStatus
	SearchTerm    string
	CreatedFrom   *time.Time
	CreatedBefore *time.Time
	Limit         int
	Offset        int
}

// TicketRepository encapsulates ticket persistence. Every statement filters
// by company.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, companyID, id int64) (*domain.Ticket, error)
	// UpdateContent writes title, description and updated_at only while the
	// stored status still equals expected. Returns pgx.ErrNoRows otherwise.
	UpdateContent(ctx context.Context, ticket *domain.Ticket, expected domain.TicketStatus) error
	// UpdateStatus writes status, resolved_at and updated_at only while the
	// stored status still equals expected. Returns pgx.ErrNoRows otherwise.
	UpdateStatus(ctx context.Context, ticket *domain.Ticket, expected domain.TicketStatus) error
	// CloseResolvedBefore moves every Resuelto ticket of the company whose
	// resolved_at is at or before cutoff to Cerrado and returns their ids.
	CloseResolvedBefore(ctx context.Context, companyID int64, cutoff, now time.Time) ([]int64, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, int, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, title, description, status, created_by_user_id, assigned_to_area,
               company_id, created_at, updated_at, resolved_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (title, description, status, created_by_user_id, assigned_to_area, company_id, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
        RETURNING id, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.Status,
		ticket.CreatedByUserID,
		ticket.AssignedToArea,
		ticket.CompanyID,
		ticket.CreatedAt,
	).Scan(&ticket.ID, &ticket.UpdatedAt)
}

func (r *ticketRepository) GetByID(ctx context.Context, companyID, id int64) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE company_id=$1 AND id=$2`
	return scanTicket(r.pool.QueryRow(ctx, query, companyID, id))
}

func (r *ticketRepository) UpdateContent(ctx context.Context, ticket *domain.Ticket, expected domain.TicketStatus) error {
	const query = `
        UPDATE tickets SET title=$1, description=$2, updated_at=$3
        WHERE company_id=$4 AND id=$5 AND status=$6`
	cmd, err := r.pool.Exec(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.UpdatedAt,
		ticket.CompanyID,
		ticket.ID,
		expected,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) UpdateStatus(ctx context.Context, ticket *domain.Ticket, expected domain.TicketStatus) error {
	const query = `
        UPDATE tickets SET status=$1, resolved_at=$2, updated_at=$3
        WHERE company_id=$4 AND id=$5 AND status=$6`
	cmd, err := r.pool.Exec(ctx, query,
		ticket.Status,
		ticket.ResolvedAt,
		ticket.UpdatedAt,
		ticket.CompanyID,
		ticket.ID,
		expected,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) CloseResolvedBefore(ctx context.Context, companyID int64, cutoff, now time.Time) ([]int64, error) {
	const query = `
        UPDATE tickets SET status=$1, updated_at=$2
        WHERE company_id=$3 AND status=$4 AND resolved_at IS NOT NULL AND resolved_at <= $5
        RETURNING id`
	rows, err := r.pool.Query(ctx, query,
		domain.TicketStatusClosed,
		now,
		companyID,
		domain.TicketStatusResolved,
		cutoff,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, int, error) {
	where, args := buildTicketWhere(filter)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tickets WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, offset := normalizePage(filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d`,
		ticketColumns, where, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *ticket)
	}
	return result, total, rows.Err()
}

// buildTicketWhere renders the WHERE clause (without the keyword) and its
// positional arguments for filter.
func buildTicketWhere(filter TicketFilter) (string, []any) {
	args := []any{filter.CompanyID}
	clauses := []string{"company_id=$1"}

	args = append(args, filter.Scope.CreatorID)
	creatorPlaceholder := fmt.Sprintf("$%d", len(args))
	if filter.Scope.Area != nil {
		args = append(args, *filter.Scope.Area)
		clauses = append(clauses, fmt.Sprintf("(assigned_to_area=$%d OR created_by_user_id=%s)", len(args), creatorPlaceholder))
	} else {
		clauses = append(clauses, "created_by_user_id="+creatorPlaceholder)
	}

	if filter.Status != nil {
		args = append(args, *filter.Status)
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedBefore != nil {
		args = append(args, *filter.CreatedBefore)
		clauses = append(clauses, fmt.Sprintf("created_at < $%d", len(args)))
	}
	if term := strings.TrimSpace(filter.SearchTerm); term != "" {
		args = append(args, "%"+escapeLike(term)+"%")
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(title ILIKE %s OR description ILIKE %s)", placeholder, placeholder))
	}

	return strings.Join(clauses, " AND "), args
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 9
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(term string) string {
	return likeEscaper.Replace(term)
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Status,
		&ticket.CreatedByUserID,
		&ticket.AssignedToArea,
		&ticket.CompanyID,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ResolvedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}
