package handlers

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/service"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

const maxImportBytes = 5 << 20

// AdminUsersHandler exposes account administration. Routes are mounted
// behind the admin-tier gate.
type AdminUsersHandler struct {
	users  *service.AdminUserService
	engine *auth.Engine
}

// NewAdminUsersHandler constructs handler.
func NewAdminUsersHandler(users *service.AdminUserService, engine *auth.Engine) *AdminUsersHandler {
	if engine == nil {
		engine = auth.NewEngine(nil)
	}
	return &AdminUsersHandler{users: users, engine: engine}
}

// List handles GET /admin/users.
func (h *AdminUsersHandler) List(c *fiber.Ctx) error {
	page, limit := paging(c, defaultPageSize, maxPageSize)
	users, total, err := h.users.List(c.UserContext(), principal(c), userFilter(c, page, limit))
	if err != nil {
		return err
	}
	items := make([]dto.UserResponse, 0, len(users))
	for i := range users {
		items = append(items, dto.NewUserResponse(&users[i]))
	}
	return c.JSON(fiber.Map{
		"success":    true,
		"users":      items,
		"pagination": dto.NewPagination(page, limit, total),
	})
}

// Get handles GET /admin/users/:id.
func (h *AdminUsersHandler) Get(c *fiber.Ctx) error {
	user, err := h.users.Get(c.UserContext(), principal(c), c.Params("id"))
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, fiber.Map{"user": dto.NewUserResponse(user)})
}

// Create handles POST /admin/users.
func (h *AdminUsersHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateUserRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	user, err := h.users.Create(c.UserContext(), principal(c), service.UserCreateInput{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Email:       req.Email,
		Phone:       req.Phone,
		Department:  req.Department,
		Password:    req.Password,
		Role:        req.Role,
		Permissions: req.Permissions,
		Status:      req.Status,
	})
	if err != nil {
		return err
	}
	return ok(c, http.StatusCreated, fiber.Map{"user": dto.NewUserResponse(user)})
}

// Update handles PUT /admin/users/:id.
func (h *AdminUsersHandler) Update(c *fiber.Ctx) error {
	var req dto.UpdateUserRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	user, err := h.users.Update(c.UserContext(), principal(c), c.Params("id"), service.UserUpdateInput{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Email:       req.Email,
		Phone:       req.Phone,
		Department:  req.Department,
		Password:    req.Password,
		Role:        req.Role,
		Permissions: req.Permissions,
		Status:      req.Status,
	})
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, fiber.Map{"user": dto.NewUserResponse(user)})
}

// Delete handles DELETE /admin/users/:id.
func (h *AdminUsersHandler) Delete(c *fiber.Ctx) error {
	if err := h.users.Delete(c.UserContext(), principal(c), c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "message": "user deleted"})
}

// BulkUpdate handles PATCH /admin/users/bulk-update.
func (h *AdminUsersHandler) BulkUpdate(c *fiber.Ctx) error {
	var req dto.BulkUpdateRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	result, err := h.users.BulkUpdate(c.UserContext(), principal(c), req.UserIDs, service.BulkUserUpdate{
		Status:     req.UpdateData.Status,
		Role:       req.UpdateData.Role,
		Department: req.UpdateData.Department,
	})
	if err != nil {
		return err
	}
	return bulkResponse(c, result)
}

// BulkDelete handles DELETE /admin/users/bulk-delete.
func (h *AdminUsersHandler) BulkDelete(c *fiber.Ctx) error {
	var req dto.BulkDeleteRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	result, err := h.users.BulkDelete(c.UserContext(), principal(c), req.UserIDs)
	if err != nil {
		return err
	}
	return bulkResponse(c, result)
}

// Export handles GET /admin/users/export?format=csv.
func (h *AdminUsersHandler) Export(c *fiber.Ctx) error {
	if format := c.Query("format", "csv"); format != "csv" {
		return apperrors.NewValidationError("unsupported export format", map[string]any{"format": format})
	}
	var buf bytes.Buffer
	if _, err := h.users.Export(c.UserContext(), principal(c), userFilter(c, 0, 0), &buf); err != nil {
		return err
	}
	filename := "users-" + time.Now().UTC().Format("20060102-150405") + ".csv"
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	return c.Send(buf.Bytes())
}

// Import handles POST /admin/users/import. The CSV is read from a multipart
// "file" field or, failing that, from the raw body.
func (h *AdminUsersHandler) Import(c *fiber.Ctx) error {
	var src io.Reader
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		header, err := c.FormFile("file")
		if err != nil {
			return apperrors.NewValidationError("file field is required", nil)
		}
		if header.Size > maxImportBytes {
			return apperrors.NewValidationError("file too large", map[string]any{"maxBytes": maxImportBytes})
		}
		f, err := header.Open()
		if err != nil {
			return apperrors.NewInternalError(err)
		}
		defer f.Close()
		src = f
	} else {
		body := c.Body()
		if len(body) > maxImportBytes {
			return apperrors.NewValidationError("file too large", map[string]any{"maxBytes": maxImportBytes})
		}
		src = bytes.NewReader(body)
	}

	result, err := h.users.Import(c.UserContext(), principal(c), src)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, result)
}

// Roles handles GET /admin/roles.
func (h *AdminUsersHandler) Roles(c *fiber.Ctx) error {
	catalog := h.engine.Catalog()
	roles := catalog.Roles()
	items := make([]dto.RoleResponse, 0, len(roles))
	for _, r := range roles {
		items = append(items, dto.RoleResponse{
			ID:          r.ID,
			DisplayName: r.DisplayName,
			Permissions: r.Permissions,
			AdminTier:   catalog.IsAdminTier(r.ID),
			SupportTier: catalog.IsSupportTier(r.ID),
		})
	}
	return ok(c, http.StatusOK, fiber.Map{"roles": items})
}

func userFilter(c *fiber.Ctx, page, limit int) service.UserListFilter {
	return service.UserListFilter{
		Search:     c.Query("search"),
		Status:     c.Query("status"),
		Role:       c.Query("role"),
		Department: c.Query("department"),
		Page:       page,
		Limit:      limit,
	}
}

func bulkResponse(c *fiber.Ctx, result service.BulkResult) error {
	return c.JSON(fiber.Map{
		"success":       true,
		"requested":     result.Requested,
		"modifiedCount": result.AffectedCount,
	})
}
