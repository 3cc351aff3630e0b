package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// MemoryStore keeps every table in process memory. It backs local runs
// without POSTGRES_DSN and the service tests. It mirrors the Postgres
// implementations closely enough that callers cannot tell them apart: missing
// rows yield pgx.ErrNoRows and constraint violations yield *pgconn.PgError.
type MemoryStore struct {
	mu sync.RWMutex

	nextID    int64
	companies map[int64]domain.Company
	users     map[int64]domain.User
	tickets   map[int64]domain.Ticket
	messages  []domain.Message
	history   []domain.TicketHistory
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		companies: make(map[int64]domain.Company),
		users:     make(map[int64]domain.User),
		tickets:   make(map[int64]domain.Ticket),
	}
}

// Companies returns the company table.
func (s *MemoryStore) Companies() CompanyRepository { return (*memCompanies)(s) }

// Users returns the user table.
func (s *MemoryStore) Users() UserRepository { return (*memUsers)(s) }

// Tickets returns the ticket table.
func (s *MemoryStore) Tickets() TicketRepository { return (*memTickets)(s) }

// Messages returns the message table.
func (s *MemoryStore) Messages() TicketMessageRepository { return (*memMessages)(s) }

// History returns the ticket history table.
func (s *MemoryStore) History() TicketHistoryRepository { return (*memHistory)(s) }

func (s *MemoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: "23505", ConstraintName: constraint, Message: "duplicate key value violates unique constraint"}
}

func foreignKeyViolation(constraint string) error {
	return &pgconn.PgError{Code: "23503", ConstraintName: constraint, Message: "violates foreign key constraint"}
}

type memCompanies MemoryStore

func (r *memCompanies) GetByID(_ context.Context, id int64) (*domain.Company, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	company, ok := r.companies[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &company, nil
}

func (r *memCompanies) RegisterWithAdmin(_ context.Context, company *domain.Company, admin *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := (*MemoryStore)(r)
	for _, existing := range r.companies {
		if existing.Name == company.Name {
			return uniqueViolation("companies_name_key")
		}
	}
	if s.usernameTaken(admin.Username) {
		return uniqueViolation("users_username_key")
	}
	company.ID = s.id()
	r.companies[company.ID] = *company
	admin.CompanyID = company.ID
	s.insertUser(admin)
	return nil
}

func (s *MemoryStore) usernameTaken(username string) bool {
	for _, existing := range s.users {
		if existing.Username == username {
			return true
		}
	}
	return false
}

func (s *MemoryStore) insertUser(user *domain.User) {
	user.ID = s.id()
	user.UpdatedAt = user.CreatedAt
	s.users[user.ID] = *user
}

type memUsers MemoryStore

func (r *memUsers) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := (*MemoryStore)(r)
	if _, ok := r.companies[user.CompanyID]; !ok {
		return foreignKeyViolation("users_company_id_fkey")
	}
	if s.usernameTaken(user.Username) {
		return uniqueViolation("users_username_key")
	}
	s.insertUser(user)
	return nil
}

func (r *memUsers) GetByID(_ context.Context, companyID, id int64) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[id]
	if !ok || user.CompanyID != companyID {
		return nil, pgx.ErrNoRows
	}
	return &user, nil
}

func (r *memUsers) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, user := range r.users {
		if user.Username == username {
			found := user
			return &found, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memUsers) ListByCompany(_ context.Context, companyID int64) ([]domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.User
	for _, user := range r.users {
		if user.CompanyID == companyID {
			result = append(result, user)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].FullName != result[j].FullName {
			return result[i].FullName < result[j].FullName
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (r *memUsers) Delete(_ context.Context, companyID, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok || user.CompanyID != companyID {
		return pgx.ErrNoRows
	}
	for _, ticket := range r.tickets {
		if ticket.CreatedByUserID == id {
			return foreignKeyViolation("tickets_created_by_user_id_fkey")
		}
	}
	for _, msg := range r.messages {
		if msg.SenderID == id {
			return foreignKeyViolation("messages_sender_id_fkey")
		}
	}
	for _, entry := range r.history {
		if entry.ChangedByUserID != nil && *entry.ChangedByUserID == id {
			return foreignKeyViolation("ticket_history_changed_by_user_id_fkey")
		}
	}
	delete(r.users, id)
	return nil
}

type memTickets MemoryStore

func (r *memTickets) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	creator, ok := r.users[ticket.CreatedByUserID]
	if !ok || creator.CompanyID != ticket.CompanyID {
		return foreignKeyViolation("tickets_created_by_user_id_fkey")
	}
	ticket.ID = (*MemoryStore)(r).id()
	ticket.UpdatedAt = ticket.CreatedAt
	stored := *ticket
	stored.UnreadCount = 0
	r.tickets[ticket.ID] = stored
	return nil
}

func (r *memTickets) GetByID(_ context.Context, companyID, id int64) (*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ticket, ok := r.tickets[id]
	if !ok || ticket.CompanyID != companyID {
		return nil, pgx.ErrNoRows
	}
	return copyTicket(ticket), nil
}

func (r *memTickets) UpdateContent(_ context.Context, ticket *domain.Ticket, expected domain.TicketStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tickets[ticket.ID]
	if !ok || stored.CompanyID != ticket.CompanyID || stored.Status != expected {
		return pgx.ErrNoRows
	}
	stored.Title = ticket.Title
	stored.Description = ticket.Description
	stored.UpdatedAt = ticket.UpdatedAt
	r.tickets[ticket.ID] = stored
	return nil
}

func (r *memTickets) UpdateStatus(_ context.Context, ticket *domain.Ticket, expected domain.TicketStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tickets[ticket.ID]
	if !ok || stored.CompanyID != ticket.CompanyID || stored.Status != expected {
		return pgx.ErrNoRows
	}
	stored.Status = ticket.Status
	stored.ResolvedAt = copyTime(ticket.ResolvedAt)
	stored.UpdatedAt = ticket.UpdatedAt
	r.tickets[ticket.ID] = stored
	return nil
}

func (r *memTickets) CloseResolvedBefore(_ context.Context, companyID int64, cutoff, now time.Time) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []int64
	for id, ticket := range r.tickets {
		if ticket.CompanyID != companyID || ticket.Status != domain.TicketStatusResolved || ticket.ResolvedAt == nil {
			continue
		}
		if ticket.ResolvedAt.After(cutoff) {
			continue
		}
		ticket.Status = domain.TicketStatusClosed
		ticket.UpdatedAt = now
		r.tickets[id] = ticket
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *memTickets) List(_ context.Context, filter TicketFilter) ([]domain.Ticket, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	term := strings.ToLower(strings.TrimSpace(filter.SearchTerm))
	var matched []domain.Ticket
	for _, ticket := range r.tickets {
		if ticket.CompanyID != filter.CompanyID {
			continue
		}
		if filter.Scope.Area != nil {
			if ticket.AssignedToArea != *filter.Scope.Area && ticket.CreatedByUserID != filter.Scope.CreatorID {
				continue
			}
		} else if ticket.CreatedByUserID != filter.Scope.CreatorID {
			continue
		}
		if filter.Status != nil && ticket.Status != *filter.Status {
			continue
		}
		if filter.CreatedFrom != nil && ticket.CreatedAt.Before(*filter.CreatedFrom) {
			continue
		}
		if filter.CreatedBefore != nil && !ticket.CreatedAt.Before(*filter.CreatedBefore) {
			continue
		}
		if term != "" &&
			!strings.Contains(strings.ToLower(ticket.Title), term) &&
			!strings.Contains(strings.ToLower(ticket.Description), term) {
			continue
		}
		matched = append(matched, *copyTicket(ticket))
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	limit, offset := normalizePage(filter.Limit, filter.Offset)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

type memMessages MemoryStore

func (r *memMessages) Create(_ context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tickets[msg.TicketID]; !ok {
		return foreignKeyViolation("messages_ticket_id_fkey")
	}
	if _, ok := r.users[msg.SenderID]; !ok {
		return foreignKeyViolation("messages_sender_id_fkey")
	}
	msg.ID = (*MemoryStore)(r).id()
	msg.IsRead = false
	r.messages = append(r.messages, *msg)
	return nil
}

func (r *memMessages) ListByTicket(_ context.Context, ticketID int64) ([]domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Message
	for _, msg := range r.messages {
		if msg.TicketID != ticketID {
			continue
		}
		msg.SenderName = r.users[msg.SenderID].FullName
		result = append(result, msg)
	}
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].SentAt.Equal(result[j].SentAt) {
			return result[i].SentAt.Before(result[j].SentAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (r *memMessages) MarkRead(_ context.Context, companyID, ticketID, readerID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[ticketID]
	if !ok || ticket.CompanyID != companyID {
		return 0, nil
	}
	var changed int64
	for i := range r.messages {
		msg := &r.messages[i]
		if msg.TicketID == ticketID && msg.SenderID != readerID && !msg.IsRead {
			msg.IsRead = true
			changed++
		}
	}
	return changed, nil
}

func (r *memMessages) UnreadCounts(_ context.Context, readerID int64, ticketIDs []int64) (map[int64]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wanted := make(map[int64]struct{}, len(ticketIDs))
	for _, id := range ticketIDs {
		wanted[id] = struct{}{}
	}
	counts := make(map[int64]int, len(ticketIDs))
	for _, msg := range r.messages {
		if _, ok := wanted[msg.TicketID]; !ok {
			continue
		}
		if msg.SenderID != readerID && !msg.IsRead {
			counts[msg.TicketID]++
		}
	}
	return counts, nil
}

type memHistory MemoryStore

func (r *memHistory) Create(_ context.Context, history *domain.TicketHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tickets[history.TicketID]; !ok {
		return foreignKeyViolation("ticket_history_ticket_id_fkey")
	}
	history.ID = (*MemoryStore)(r).id()
	r.history = append(r.history, *history)
	return nil
}

func (r *memHistory) ListByTicket(_ context.Context, ticketID int64) ([]domain.TicketHistory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.TicketHistory
	for _, entry := range r.history {
		if entry.TicketID == ticketID {
			result = append(result, entry)
		}
	}
	return result, nil
}

func copyTicket(ticket domain.Ticket) *domain.Ticket {
	ticket.ResolvedAt = copyTime(ticket.ResolvedAt)
	return &ticket
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
