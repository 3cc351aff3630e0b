package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/clock"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

const maxPageSize = 100

// TicketService coordinates ticket workflows. Every operation runs under a
// verified identity and only touches rows of that identity's company.
type TicketService struct {
	tickets   repository.TicketRepository
	messages  repository.TicketMessageRepository
	history   repository.TicketHistoryRepository
	bus       events.Bus
	clock     clock.Clock
	logger    *zap.Logger
	retention time.Duration
	pageSize  int
	strict    bool
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	MessageRepo repository.TicketMessageRepository
	HistoryRepo repository.TicketHistoryRepository
	Bus         events.Bus
	Clock       clock.Clock
	Logger      *zap.Logger
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title          string
	Description    string
	AssignedToArea domain.Area
}

// TicketUpdateInput carries the editable fields. Nil leaves a field as is.
type TicketUpdateInput struct {
	Title       *string
	Description *string
}

// TicketListFilter describes list parameters as received from the caller.
// DateFrom and DateTo are calendar days; DateTo includes the whole day.
type TicketListFilter struct {
	Page       int
	Limit      int
	SearchTerm string
	Status     string
	DateFrom   *time.Time
	DateTo     *time.Time
}

// TicketPage is one page of a listing.
type TicketPage struct {
	Tickets     []domain.Ticket
	Total       int
	TotalPages  int
	CurrentPage int
	PageSize    int
}

// NewTicketService constructs the service.
func NewTicketService(cfg config.TicketConfig, deps TicketDependencies) *TicketService {
	if deps.Bus == nil {
		deps.Bus = events.NopBus{}
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	pageSize := cfg.DefaultPageSize
	if pageSize <= 0 {
		pageSize = 9
	}
	return &TicketService{
		tickets:   deps.TicketRepo,
		messages:  deps.MessageRepo,
		history:   deps.HistoryRepo,
		bus:       deps.Bus,
		clock:     deps.Clock,
		logger:    deps.Logger,
		retention: cfg.ResolvedRetention(),
		pageSize:  pageSize,
		strict:    cfg.StrictTransitions,
	}
}

// Create opens a ticket routed to input.AssignedToArea.
func (s *TicketService) Create(ctx context.Context, identity *domain.Identity, input TicketCreateInput) (*domain.Ticket, error) {
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	switch {
	case title == "":
		return nil, apperrors.NewMissingField("title")
	case description == "":
		return nil, apperrors.NewMissingField("description")
	case input.AssignedToArea == "":
		return nil, apperrors.NewMissingField("assignedtoarea")
	}
	if !input.AssignedToArea.Valid() {
		return nil, apperrors.NewValidationError("unknown area", map[string]any{"field": "assignedtoarea", "value": input.AssignedToArea})
	}
	if !identity.Area.CanTarget(input.AssignedToArea) {
		return nil, apperrors.NewForbiddenWithDetails("your area cannot open tickets for this area", map[string]any{
			"area":   identity.Area,
			"target": input.AssignedToArea,
		})
	}

	now := s.clock.Now()
	ticket := &domain.Ticket{
		Title:           title,
		Description:     description,
		Status:          domain.TicketStatusOpen,
		CreatedByUserID: identity.UserID,
		AssignedToArea:  input.AssignedToArea,
		CompanyID:       identity.CompanyID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, fmt.Errorf("create ticket: %w", err)
	}

	s.recordHistory(ctx, ticket.ID, &identity.UserID, domain.ChangeTypeCreated, nil, map[string]any{
		"title":          ticket.Title,
		"status":         ticket.Status,
		"assignedToArea": ticket.AssignedToArea,
	})
	s.emit(ctx, "ticket created", s.bus.PublishGlobal(ctx, identity.CompanyID, events.EventTicketCreated, events.TicketCreatedPayload{
		TicketID:       ticket.ID,
		AssignedToArea: ticket.AssignedToArea,
	}))
	return ticket, nil
}

// List sweeps stale resolved tickets, then returns one page of the tickets
// visible to the caller with per-caller unread counts.
func (s *TicketService) List(ctx context.Context, identity *domain.Identity, filter TicketListFilter) (*TicketPage, error) {
	repoFilter, page, err := s.buildFilter(identity, filter)
	if err != nil {
		return nil, err
	}

	if err := s.sweep(ctx, identity.CompanyID); err != nil {
		return nil, err
	}

	tickets, total, err := s.tickets.List(ctx, repoFilter)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	if err := s.annotateUnread(ctx, identity.UserID, tickets); err != nil {
		return nil, err
	}
	if tickets == nil {
		tickets = []domain.Ticket{}
	}

	totalPages := (total + repoFilter.Limit - 1) / repoFilter.Limit
	return &TicketPage{
		Tickets:     tickets,
		Total:       total,
		TotalPages:  totalPages,
		CurrentPage: page,
		PageSize:    repoFilter.Limit,
	}, nil
}

func (s *TicketService) buildFilter(identity *domain.Identity, filter TicketListFilter) (repository.TicketFilter, int, error) {
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = s.pageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	repoFilter := repository.TicketFilter{
		CompanyID:  identity.CompanyID,
		Scope:      listScope(identity),
		SearchTerm: strings.TrimSpace(filter.SearchTerm),
		Limit:      limit,
		Offset:     (page - 1) * limit,
	}

	if status := strings.TrimSpace(filter.Status); status != "" && !strings.EqualFold(status, "all") {
		parsed := domain.TicketStatus(status)
		if !parsed.Valid() {
			return repository.TicketFilter{}, 0, apperrors.NewValidationError("unknown status", map[string]any{"field": "status", "value": status})
		}
		repoFilter.Status = &parsed
	}
	if filter.DateFrom != nil {
		from := startOfDay(*filter.DateFrom)
		repoFilter.CreatedFrom = &from
	}
	if filter.DateTo != nil {
		before := startOfDay(*filter.DateTo).AddDate(0, 0, 1)
		repoFilter.CreatedBefore = &before
	}
	if repoFilter.CreatedFrom != nil && repoFilter.CreatedBefore != nil && !repoFilter.CreatedFrom.Before(*repoFilter.CreatedBefore) {
		return repository.TicketFilter{}, 0, apperrors.NewValidationError("dateFrom must not be after dateTo", map[string]any{"field": "dateFrom"})
	}
	return repoFilter, page, nil
}

// listScope implements the list visibility rule. Administradores are scoped
// by their area like everyone else.
func listScope(identity *domain.Identity) repository.TicketScope {
	scope := repository.TicketScope{CreatorID: identity.UserID}
	if identity.Area != domain.AreaOperations {
		area := identity.Area
		scope.Area = &area
	}
	return scope
}

// canView implements the detail visibility rule.
func canView(identity *domain.Identity, ticket *domain.Ticket) bool {
	if ticket.CompanyID != identity.CompanyID {
		return false
	}
	if identity.IsAdmin() || ticket.CreatedByUserID == identity.UserID {
		return true
	}
	return identity.Area != domain.AreaOperations && ticket.AssignedToArea == identity.Area
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// sweep closes the company's Resuelto tickets whose retention elapsed. A
// ticket resolved exactly retention ago is closed.
func (s *TicketService) sweep(ctx context.Context, companyID int64) error {
	now := s.clock.Now()
	closed, err := s.tickets.CloseResolvedBefore(ctx, companyID, now.Add(-s.retention), now)
	if err != nil {
		return fmt.Errorf("close resolved tickets: %w", err)
	}
	if len(closed) == 0 {
		return nil
	}

	for _, id := range closed {
		s.recordHistory(ctx, id, nil, domain.ChangeTypeStatus,
			map[string]any{"status": domain.TicketStatusResolved},
			map[string]any{"status": domain.TicketStatusClosed},
		)
	}
	s.logger.Info("closed resolved tickets", zap.Int64("company_id", companyID), zap.Int("count", len(closed)))
	s.emit(ctx, "sweep", s.bus.PublishGlobal(ctx, companyID, events.EventTicketUpdated, events.TicketUpdatedPayload{}))
	return nil
}

// Get returns a ticket the caller may see with its unread count.
func (s *TicketService) Get(ctx context.Context, identity *domain.Identity, ticketID int64) (*domain.Ticket, error) {
	ticket, err := s.loadVisible(ctx, identity, ticketID)
	if err != nil {
		return nil, err
	}
	tickets := []domain.Ticket{*ticket}
	if err := s.annotateUnread(ctx, identity.UserID, tickets); err != nil {
		return nil, err
	}
	return &tickets[0], nil
}

// CanView reports whether the caller may watch the ticket. It backs the
// realtime room authorization.
func (s *TicketService) CanView(ctx context.Context, identity *domain.Identity, ticketID int64) error {
	_, err := s.loadVisible(ctx, identity, ticketID)
	return err
}

// Update edits title and description while the ticket is Abierto.
func (s *TicketService) Update(ctx context.Context, identity *domain.Identity, ticketID int64, input TicketUpdateInput) (*domain.Ticket, error) {
	if input.Title == nil && input.Description == nil {
		return nil, apperrors.NewValidationError("title or description is required", map[string]any{"fields": []string{"title", "description"}})
	}
	ticket, err := s.loadForOwnerAction(ctx, identity, ticketID, "edit")
	if err != nil {
		return nil, err
	}

	before := map[string]any{"title": ticket.Title, "description": ticket.Description}
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, apperrors.NewMissingField("title")
		}
		ticket.Title = title
	}
	if input.Description != nil {
		description := strings.TrimSpace(*input.Description)
		if description == "" {
			return nil, apperrors.NewMissingField("description")
		}
		ticket.Description = description
	}
	ticket.UpdatedAt = s.clock.Now()

	if err := s.tickets.UpdateContent(ctx, ticket, domain.TicketStatusOpen); err != nil {
		return nil, concurrentChange(err)
	}

	s.recordHistory(ctx, ticket.ID, &identity.UserID, domain.ChangeTypeContent, before, map[string]any{
		"title":       ticket.Title,
		"description": ticket.Description,
	})
	s.publishTicketUpdated(ctx, ticket)
	return ticket, nil
}

// Cancel moves an Abierto ticket to Cancelado.
func (s *TicketService) Cancel(ctx context.Context, identity *domain.Identity, ticketID int64) (*domain.Ticket, error) {
	ticket, err := s.loadForOwnerAction(ctx, identity, ticketID, "cancel")
	if err != nil {
		return nil, err
	}
	if err := s.changeStatus(ctx, identity, ticket, domain.TicketStatusCancelled); err != nil {
		return nil, err
	}
	return ticket, nil
}

// UpdateStatus lets members of the assigned area drive the ticket through
// its lifecycle.
func (s *TicketService) UpdateStatus(ctx context.Context, identity *domain.Identity, ticketID int64, status string) (*domain.Ticket, error) {
	next := domain.TicketStatus(strings.TrimSpace(status))
	if next == "" {
		return nil, apperrors.NewMissingField("status")
	}
	if !next.Valid() {
		return nil, apperrors.NewValidationError("unknown status", map[string]any{"field": "status", "value": status})
	}

	ticket, err := s.load(ctx, identity, ticketID)
	if err != nil {
		return nil, err
	}
	if !identity.Area.CanBeAssignee() || ticket.AssignedToArea != identity.Area {
		return nil, apperrors.NewForbiddenWithDetails("only the assigned area may change the status", map[string]any{
			"area":           identity.Area,
			"assignedToArea": ticket.AssignedToArea,
		})
	}
	if !s.allowsTransition(ticket.Status, next) {
		return nil, apperrors.NewForbiddenWithDetails("status transition not allowed", map[string]any{
			"from": ticket.Status,
			"to":   next,
		})
	}

	if err := s.changeStatus(ctx, identity, ticket, next); err != nil {
		return nil, err
	}
	return ticket, nil
}

// allowsTransition applies the strict table, or in permissive mode any move
// out of a non-terminal status. Cerrado is only reached through the sweep.
func (s *TicketService) allowsTransition(from, to domain.TicketStatus) bool {
	if to == domain.TicketStatusClosed {
		return false
	}
	if s.strict {
		return domain.CanTransition(from, to)
	}
	return !from.Terminal()
}

// History returns the audit trail of a visible ticket.
func (s *TicketService) History(ctx context.Context, identity *domain.Identity, ticketID int64) ([]domain.TicketHistory, error) {
	if _, err := s.loadVisible(ctx, identity, ticketID); err != nil {
		return nil, err
	}
	entries, err := s.history.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	if entries == nil {
		entries = []domain.TicketHistory{}
	}
	return entries, nil
}

func (s *TicketService) changeStatus(ctx context.Context, identity *domain.Identity, ticket *domain.Ticket, next domain.TicketStatus) error {
	previous := ticket.Status
	now := s.clock.Now()
	ticket.Status = next
	ticket.UpdatedAt = now
	if next == domain.TicketStatusResolved {
		ticket.ResolvedAt = &now
	}

	if err := s.tickets.UpdateStatus(ctx, ticket, previous); err != nil {
		return concurrentChange(err)
	}

	s.recordHistory(ctx, ticket.ID, &identity.UserID, domain.ChangeTypeStatus,
		map[string]any{"status": previous},
		map[string]any{"status": next},
	)
	s.publishTicketUpdated(ctx, ticket)
	return nil
}

// load fetches a ticket of the caller's company. Tickets of other companies
// are reported as not found.
func (s *TicketService) load(ctx context.Context, identity *domain.Identity, ticketID int64) (*domain.Ticket, error) {
	if ticketID <= 0 {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
	}
	ticket, err := s.tickets.GetByID(ctx, identity.CompanyID, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
		}
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	return ticket, nil
}

func (s *TicketService) loadVisible(ctx context.Context, identity *domain.Identity, ticketID int64) (*domain.Ticket, error) {
	ticket, err := s.load(ctx, identity, ticketID)
	if err != nil {
		return nil, err
	}
	if !canView(identity, ticket) {
		return nil, apperrors.NewForbidden("you cannot access this ticket")
	}
	return ticket, nil
}

func (s *TicketService) loadForOwnerAction(ctx context.Context, identity *domain.Identity, ticketID int64, action string) (*domain.Ticket, error) {
	ticket, err := s.load(ctx, identity, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.CreatedByUserID != identity.UserID && !identity.IsAdmin() {
		return nil, apperrors.NewForbidden("only the creator or an administrator may " + action + " this ticket")
	}
	if !ticket.Editable() {
		return nil, apperrors.NewForbiddenWithDetails("ticket can only be changed while "+string(domain.TicketStatusOpen), map[string]any{
			"status": ticket.Status,
		})
	}
	return ticket, nil
}

func (s *TicketService) annotateUnread(ctx context.Context, readerID int64, tickets []domain.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	ids := make([]int64, len(tickets))
	for i := range tickets {
		ids[i] = tickets[i].ID
	}
	counts, err := s.messages.UnreadCounts(ctx, readerID, ids)
	if err != nil {
		return fmt.Errorf("count unread messages: %w", err)
	}
	for i := range tickets {
		tickets[i].UnreadCount = counts[tickets[i].ID]
	}
	return nil
}

func (s *TicketService) recordHistory(ctx context.Context, ticketID int64, userID *int64, change domain.TicketChangeType, oldValue, newValue map[string]any) {
	if s.history == nil {
		return
	}
	entry := &domain.TicketHistory{
		TicketID:        ticketID,
		ChangedByUserID: userID,
		ChangeType:      change,
		OldValue:        oldValue,
		NewValue:        newValue,
		CreatedAt:       s.clock.Now(),
	}
	if err := s.history.Create(ctx, entry); err != nil {
		s.logger.Warn("record ticket history", zap.Int64("ticket_id", ticketID), zap.Error(err))
	}
}

func (s *TicketService) publishTicketUpdated(ctx context.Context, ticket *domain.Ticket) {
	s.emit(ctx, "ticket updated", s.bus.PublishToRoom(ctx, ticket.CompanyID, ticket.ID, events.EventTicketUpdated,
		events.TicketUpdatedPayload{TicketID: ticket.ID}, ""))
	s.emit(ctx, "ticket list refresh", s.bus.PublishGlobal(ctx, ticket.CompanyID, events.EventTicketUpdated,
		events.TicketUpdatedPayload{}))
}

// emit logs a failed publish. Live events are best effort.
func (s *TicketService) emit(_ context.Context, what string, err error) {
	if err != nil {
		s.logger.Warn("publish event failed", zap.String("event", what), zap.Error(err))
	}
}

func concurrentChange(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewConflict("ticket changed concurrently; reload and retry", nil)
	}
	return fmt.Errorf("update ticket: %w", err)
}
