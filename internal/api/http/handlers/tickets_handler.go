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

// Create handles POST /tickets.
func (h *TicketsHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.service.Create(c.UserContext(), principal(c), service.TicketCreateInput{
		Title:                   req.Title,
		Description:             req.Description,
		Category:                req.Category,
		Subcategory:             req.Subcategory,
		Priority:                req.Priority,
		Urgency:                 req.Urgency,
		Impact:                  req.Impact,
		EstimatedResolutionTime: req.EstimatedResolutionTime,
	})
	if err != nil {
		return err
	}
	return ok(c, http.StatusCreated, fiber.Map{"ticket": dto.NewTicketResponse(ticket)})
}

// List handles GET /tickets.
func (h *TicketsHandler) List(c *fiber.Ctx) error {
	page, limit := paging(c, defaultPageSize, maxPageSize)
	filter := service.TicketListFilter{
		Category:    c.Query("category"),
		RequesterID: optionalString(c.Query("requester")),
		AssigneeID:  optionalString(c.Query("assignedTo")),
		SearchTerm:  c.Query("search"),
		Limit:       limit,
		Offset:      (page - 1) * limit,
	}
	for _, s := range splitList(c.Query("status")) {
		filter.Statuses = append(filter.Statuses, domain.TicketStatus(s))
	}
	for _, p := range splitList(c.Query("priority")) {
		filter.Priorities = append(filter.Priorities, domain.TicketPriority(p))
	}

	tickets, total, err := h.service.List(c.UserContext(), principal(c), filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, dto.NewTicketResponse(&tickets[i]))
	}
	return ok(c, http.StatusOK, fiber.Map{
		"tickets":    items,
		"pagination": dto.NewPagination(page, limit, total),
	})
}

// Get handles GET /tickets/:id.
func (h *TicketsHandler) Get(c *fiber.Ctx) error {
	ticket, err := h.service.Get(c.UserContext(), principal(c), c.Params("id"))
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, fiber.Map{"ticket": dto.NewTicketResponse(ticket)})
}

// Update handles PUT /tickets/:id.
func (h *TicketsHandler) Update(c *fiber.Ctx) error {
	var req dto.UpdateTicketRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.service.UpdateFields(c.UserContext(), principal(c), c.Params("id"), service.TicketUpdateInput{
		Title:                   req.Title,
		Description:             req.Description,
		Category:                req.Category,
		Subcategory:             req.Subcategory,
		Priority:                req.Priority,
		Urgency:                 req.Urgency,
		Impact:                  req.Impact,
		Status:                  req.Status,
		ResolutionNotes:         req.ResolutionNotes,
		EstimatedResolutionTime: req.EstimatedResolutionTime,
	})
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, fiber.Map{"ticket": dto.NewTicketResponse(ticket)})
}

// Assign handles PATCH /tickets/:id/assign.
func (h *TicketsHandler) Assign(c *fiber.Ctx) error {
	var req dto.AssignTicketRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	var assignee *string
	if req.AssignedToID != nil {
		assignee = optionalString(*req.AssignedToID)
	}
	ticket, err := h.service.Assign(c.UserContext(), principal(c), c.Params("id"), assignee)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, fiber.Map{"ticket": dto.NewTicketResponse(ticket)})
}

// Close handles PATCH /tickets/:id/close.
func (h *TicketsHandler) Close(c *fiber.Ctx) error {
	var req dto.CloseTicketRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.service.Close(c.UserContext(), principal(c), c.Params("id"), service.TicketCloseInput{
		ResolutionNotes:    req.ResolutionNotes,
		SatisfactionRating: req.SatisfactionRating,
		Feedback:           req.FeedbackComments,
	})
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, fiber.Map{"ticket": dto.NewTicketResponse(ticket)})
}

// Delete handles DELETE /tickets/:id.
func (h *TicketsHandler) Delete(c *fiber.Ctx) error {
	if err := h.service.Delete(c.UserContext(), principal(c), c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "message": "ticket deleted"})
}
