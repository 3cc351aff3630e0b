package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// TicketMessageRepository manages ticket chat messages.
type TicketMessageRepository interface {
	// Create stores msg and fills in its id. SenderName is resolved by the caller.
	Create(ctx context.Context, msg *domain.Message) error
	// ListByTicket returns the thread oldest first with sender names joined in.
	ListByTicket(ctx context.Context, ticketID int64) ([]domain.Message, error)
	// MarkRead flags every unread message on the ticket not sent by readerID
	// and returns how many rows changed.
	MarkRead(ctx context.Context, companyID, ticketID, readerID int64) (int64, error)
	// UnreadCounts returns, per ticket, the number of unread messages not sent
	// by readerID. Tickets with nothing unread are absent from the map.
	UnreadCounts(ctx context.Context, readerID int64, ticketIDs []int64) (map[int64]int, error)
}

type ticketMessageRepository struct {
	pool *pgxpool.Pool
}

// NewTicketMessageRepository builds repository.
func NewTicketMessageRepository(pool *pgxpool.Pool) TicketMessageRepository {
	return &ticketMessageRepository{pool: pool}
}

func (r *ticketMessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	const query = `
        INSERT INTO messages (ticket_id, sender_id, message_text, sent_at, is_read, file_name, file_url, file_type)
        VALUES ($1,$2,$3,$4,FALSE,$5,$6,$7)
        RETURNING id`
	msg.IsRead = false
	return r.pool.QueryRow(ctx, query,
		msg.TicketID,
		msg.SenderID,
		msg.MessageText,
		msg.SentAt,
		msg.FileName,
		msg.FileURL,
		msg.FileType,
	).Scan(&msg.ID)
}

func (r *ticketMessageRepository) ListByTicket(ctx context.Context, ticketID int64) ([]domain.Message, error) {
	const query = `
        SELECT m.id, m.ticket_id, m.sender_id, u.full_name, m.message_text, m.sent_at, m.is_read,
               m.file_name, m.file_url, m.file_type
        FROM messages m
        JOIN users u ON u.id = m.sender_id
        WHERE m.ticket_id=$1
        ORDER BY m.sent_at ASC, m.id ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.TicketID,
			&msg.SenderID,
			&msg.SenderName,
			&msg.MessageText,
			&msg.SentAt,
			&msg.IsRead,
			&msg.FileName,
			&msg.FileURL,
			&msg.FileType,
		); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}

func (r *ticketMessageRepository) MarkRead(ctx context.Context, companyID, ticketID, readerID int64) (int64, error) {
	const query = `
        UPDATE messages SET is_read=TRUE
        WHERE ticket_id=$1 AND sender_id<>$2 AND is_read=FALSE
          AND EXISTS (SELECT 1 FROM tickets t WHERE t.id=$1 AND t.company_id=$3)`
	cmd, err := r.pool.Exec(ctx, query, ticketID, readerID, companyID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *ticketMessageRepository) UnreadCounts(ctx context.Context, readerID int64, ticketIDs []int64) (map[int64]int, error) {
	counts := make(map[int64]int, len(ticketIDs))
	if len(ticketIDs) == 0 {
		return counts, nil
	}
	const query = `
        SELECT ticket_id, COUNT(*)
        FROM messages
        WHERE ticket_id = ANY($1) AND sender_id<>$2 AND is_read=FALSE
        GROUP BY ticket_id`
	rows, err := r.pool.Query(ctx, query, ticketIDs, readerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ticketID int64
			count    int
		)
		if err := rows.Scan(&ticketID, &count); err != nil {
			return nil, err
		}
		counts[ticketID] = count
	}
	return counts, rows.Err()
}
