package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/service"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// AuditLogsHandler serves the audit trail.
type AuditLogsHandler struct {
	logs *service.AuditQueryService
}

// NewAuditLogsHandler constructs handler.
func NewAuditLogsHandler(logs *service.AuditQueryService) *AuditLogsHandler {
	return &AuditLogsHandler{logs: logs}
}

// List handles GET /admin/audit-logs.
func (h *AuditLogsHandler) List(c *fiber.Ctx) error {
	from, err := parseTime(c.Query("from"))
	if err != nil {
		return apperrors.NewValidationError("invalid filter", map[string]any{"from": "must be RFC3339"})
	}
	to, err := parseTime(c.Query("to"))
	if err != nil {
		return apperrors.NewValidationError("invalid filter", map[string]any{"to": "must be RFC3339"})
	}
	page, limit := paging(c, 50, 200)

	entries, total, err := h.logs.List(c.UserContext(), principal(c), service.AuditListFilter{
		UserID:   c.Query("userId"),
		Action:   c.Query("action"),
		Resource: c.Query("resource"),
		From:     from,
		To:       to,
		Page:     page,
		Limit:    limit,
	})
	if err != nil {
		return err
	}
	items := make([]dto.AuditLogResponse, 0, len(entries))
	for i := range entries {
		items = append(items, dto.NewAuditLogResponse(&entries[i]))
	}
	return ok(c, http.StatusOK, fiber.Map{
		"logs":       items,
		"pagination": dto.NewPagination(page, limit, total),
	})
}
