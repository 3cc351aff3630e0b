package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

// TicketsHandler manages ticket endpoints.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	caller, err := identity(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload()
	}
	ticket, err := h.service.Create(c.UserContext(), caller, service.TicketCreateInput{
		Title:          req.Title,
		Description:    req.Description,
		AssignedToArea: req.AssignedToArea,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	caller, err := identity(c)
	if err != nil {
		return err
	}
	filter, err := parseTicketQuery(c)
	if err != nil {
		return err
	}
	page, err := h.service.List(c.UserContext(), caller, filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(page.Tickets))
	for i := range page.Tickets {
		items = append(items, ticketResponse(&page.Tickets[i]))
	}
	return c.JSON(fiber.Map{"data": dto.TicketPageResponse{
		Tickets:     items,
		Total:       page.Total,
		TotalPages:  page.TotalPages,
		CurrentPage: page.CurrentPage,
		PageSize:    page.PageSize,
	}})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	caller, err := identity(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "ticket")
	if err != nil {
		return err
	}
	ticket, err := h.service.Get(c.UserContext(), caller, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// UpdateTicket PUT /tickets/:id.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	caller, err := identity(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "ticket")
	if err != nil {
		return err
	}
	var req dto.UpdateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload()
	}
	ticket, err := h.service.Update(c.UserContext(), caller, id, service.TicketUpdateInput{
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// CancelTicket PUT /tickets/:id/cancel.
func (h *TicketsHandler) CancelTicket(c *fiber.Ctx) error {
	caller, err := identity(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "ticket")
	if err != nil {
		return err
	}
	ticket, err := h.service.Cancel(c.UserContext(), caller, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// UpdateStatus PUT /tickets/:id/status.
func (h *TicketsHandler) UpdateStatus(c *fiber.Ctx) error {
	caller, err := identity(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "ticket")
	if err != nil {
		return err
	}
	var req dto.UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload()
	}
	ticket, err := h.service.UpdateStatus(c.UserContext(), caller, id, req.Status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// History GET /tickets/:id/history.
func (h *TicketsHandler) History(c *fiber.Ctx) error {
	caller, err := identity(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "ticket")
	if err != nil {
		return err
	}
	entries, err := h.service.History(c.UserContext(), caller, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": historyResponses(entries)})
}

func parseTicketQuery(c *fiber.Ctx) (service.TicketListFilter, error) {
	from, err := parseDate("dateFrom", c.Query("dateFrom"))
	if err != nil {
		return service.TicketListFilter{}, err
	}
	to, err := parseDate("dateTo", c.Query("dateTo"))
	if err != nil {
		return service.TicketListFilter{}, err
	}
	limit := parseInt(c.Query("limit"), 0)
	if limit == 0 {
		limit = parseInt(c.Query("pageSize"), 0)
	}
	return service.TicketListFilter{
		Page:       parseInt(c.Query("page"), 1),
		Limit:      limit,
		SearchTerm: c.Query("searchTerm"),
		Status:     c.Query("status"),
		DateFrom:   from,
		DateTo:     to,
	}, nil
}

func ticketResponse(ticket *domain.Ticket) dto.TicketResponse {
	return dto.TicketResponse{
		ID:              ticket.ID,
		Title:           ticket.Title,
		Description:     ticket.Description,
		Status:          ticket.Status,
		CreatedByUserID: ticket.CreatedByUserID,
		AssignedToArea:  ticket.AssignedToArea,
		CompanyID:       ticket.CompanyID,
		CreatedAt:       ticket.CreatedAt,
		UpdatedAt:       ticket.UpdatedAt,
		ResolvedAt:      ticket.ResolvedAt,
		UnreadCount:     ticket.UnreadCount,
	}
}

func historyResponses(entries []domain.TicketHistory) []dto.TicketHistoryResponse {
	resp := make([]dto.TicketHistoryResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, dto.TicketHistoryResponse{
			ID:              entry.ID,
			TicketID:        entry.TicketID,
			ChangedByUserID: entry.ChangedByUserID,
			ChangeType:      entry.ChangeType,
			OldValue:        entry.OldValue,
			NewValue:        entry.NewValue,
			CreatedAt:       entry.CreatedAt,
		})
	}
	return resp
}
