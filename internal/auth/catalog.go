package auth

import (
	"sort"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// Permission names understood by the engine.
const (
	PermTicketsCreate = "tickets:create"
	PermTicketsRead   = "tickets:read"
	PermTicketsWrite  = "tickets:write"
	PermTicketsAssign = "tickets:assign"
	PermTicketsDelete = "tickets:delete"
	PermUsersRead     = "users:read"
	PermUsersWrite    = "users:write"
	PermUsersDelete   = "users:delete"
	PermUsersExport   = "users:export"
	PermUsersImport   = "users:import"
	PermAuditRead     = "audit:read"
)

// RoleDefinition is a catalog entry.
type RoleDefinition struct {
	ID          domain.RoleID
	DisplayName string
	Permissions []string
}

// Catalog is the static role registry. It is never mutated after NewCatalog.
type Catalog struct {
	roles       map[domain.RoleID]RoleDefinition
	adminTier   map[domain.RoleID]struct{}
	supportTier map[domain.RoleID]struct{}
}

// NewCatalog returns the built-in helpdesk roles.
func NewCatalog() *Catalog {
	defs := []RoleDefinition{
		{ID: domain.RoleSuperAdmin, DisplayName: "Super Administrator", Permissions: []string{domain.WildcardPermission}},
		{ID: domain.RoleAdmin, DisplayName: "Administrator", Permissions: []string{
			PermTicketsCreate, PermTicketsRead, PermTicketsWrite, PermTicketsAssign, PermTicketsDelete,
			PermUsersRead, PermUsersWrite, PermUsersDelete, PermUsersExport, PermUsersImport,
			PermAuditRead,
		}},
		{ID: domain.RoleSupportLead, DisplayName: "Support Lead", Permissions: []string{
			PermTicketsCreate, PermTicketsRead, PermTicketsWrite, PermTicketsAssign,
			PermUsersRead, PermAuditRead,
		}},
		{ID: domain.RoleSupportAgent, DisplayName: "Support Agent", Permissions: []string{
			PermTicketsCreate, PermTicketsRead, PermTicketsWrite, PermTicketsAssign,
		}},
		{ID: domain.RoleITSpecialist, DisplayName: "IT Specialist", Permissions: []string{
			PermTicketsCreate, PermTicketsRead, PermTicketsWrite, PermTicketsAssign,
		}},
		{ID: domain.RoleUser, DisplayName: "User", Permissions: []string{PermTicketsCreate}},
	}

	c := &Catalog{
		roles:       make(map[domain.RoleID]RoleDefinition, len(defs)),
		adminTier:   map[domain.RoleID]struct{}{domain.RoleSuperAdmin: {}, domain.RoleAdmin: {}, domain.RoleSupportLead: {}},
		supportTier: map[domain.RoleID]struct{}{domain.RoleSupportAgent: {}, domain.RoleITSpecialist: {}},
	}
	for _, def := range defs {
		c.roles[def.ID] = def
	}
	return c
}

// Lookup returns the definition for id.
func (c *Catalog) Lookup(id domain.RoleID) (RoleDefinition, bool) {
	def, ok := c.roles[id]
	if !ok {
		return RoleDefinition{}, false
	}
	def.Permissions = append([]string(nil), def.Permissions...)
	return def, true
}

// Known reports whether id is a catalog role.
func (c *Catalog) Known(id domain.RoleID) bool {
	_, ok := c.roles[id]
	return ok
}

// Roles lists every definition ordered by id.
func (c *Catalog) Roles() []RoleDefinition {
	out := make([]RoleDefinition, 0, len(c.roles))
	for id := range c.roles {
		def, _ := c.Lookup(id)
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IsAdminTier reports membership in {super_admin, admin, support_lead}.
func (c *Catalog) IsAdminTier(id domain.RoleID) bool {
	_, ok := c.adminTier[id]
	return ok
}

// IsSupportTier reports whether id may act on tickets it does not own.
// Admin-tier roles are support-tier as well.
func (c *Catalog) IsSupportTier(id domain.RoleID) bool {
	if c.IsAdminTier(id) {
		return true
	}
	_, ok := c.supportTier[id]
	return ok
}
