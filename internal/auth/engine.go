package auth

import (
	"fmt"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// Principal is the acting caller, always passed explicitly to services.
type Principal struct {
	User *domain.User
}

// NewPrincipal wraps a persisted user.
func NewPrincipal(user *domain.User) *Principal {
	return &Principal{User: user}
}

// ID returns the user id or "" when no record backs the principal.
func (p *Principal) ID() string {
	if p == nil || p.User == nil {
		return ""
	}
	return p.User.ID
}

func (p *Principal) resolved() bool {
	return p != nil && p.User != nil && p.User.ID != "" && !p.User.Tombstoned()
}

type requirementKind int

const (
	requireAdminTier requirementKind = iota + 1
	requireSupportTier
	requirePermission
)

// Requirement is what a caller must satisfy to proceed.
type Requirement struct {
	kind       requirementKind
	permission string
}

// AdminTier requires role or userType in {super_admin, admin, support_lead}.
func AdminTier() Requirement { return Requirement{kind: requireAdminTier} }

// SupportTier requires a role that may act on tickets owned by others.
func SupportTier() Requirement { return Requirement{kind: requireSupportTier} }

// Permission requires a literal permission string.
func Permission(name string) Requirement {
	return Requirement{kind: requirePermission, permission: name}
}

func (r Requirement) String() string {
	switch r.kind {
	case requireAdminTier:
		return "admin-tier"
	case requireSupportTier:
		return "support-tier"
	case requirePermission:
		return "permission:" + r.permission
	default:
		return "unknown"
	}
}

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed       bool
	Authenticated bool
	Reason        string
}

// Engine decides allow/deny against the role catalog. It holds no mutable state.
type Engine struct {
	catalog *Catalog
}

// NewEngine builds an engine over catalog.
func NewEngine(catalog *Catalog) *Engine {
	if catalog == nil {
		catalog = NewCatalog()
	}
	return &Engine{catalog: catalog}
}

// Catalog exposes the role registry.
func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// Permissions returns the effective permission set: explicit user permissions
// plus the catalog permissions of both persisted role fields.
func (e *Engine) Permissions(p *Principal) map[string]struct{} {
	set := map[string]struct{}{}
	if p == nil || p.User == nil {
		return set
	}
	for _, perm := range p.User.Permissions {
		set[perm] = struct{}{}
	}
	for _, role := range p.User.Assignment.Roles() {
		if def, ok := e.catalog.roles[role]; ok {
			for _, perm := range def.Permissions {
				set[perm] = struct{}{}
			}
		}
	}
	return set
}

// Decide evaluates req for p. It has no side effects.
func (e *Engine) Decide(p *Principal, req Requirement) Decision {
	if !p.resolved() {
		return Decision{Reason: "authentication required"}
	}
	perms := e.Permissions(p)
	if _, ok := perms[domain.WildcardPermission]; ok {
		return Decision{Allowed: true, Authenticated: true}
	}

	switch req.kind {
	case requireAdminTier:
		for _, role := range p.User.Assignment.Roles() {
			if e.catalog.IsAdminTier(role) {
				return Decision{Allowed: true, Authenticated: true}
			}
		}
		return Decision{Authenticated: true, Reason: "admin privileges required"}
	case requireSupportTier:
		for _, role := range p.User.Assignment.Roles() {
			if e.catalog.IsSupportTier(role) {
				return Decision{Allowed: true, Authenticated: true}
			}
		}
		return Decision{Authenticated: true, Reason: "support privileges required"}
	case requirePermission:
		if _, ok := perms[req.permission]; ok {
			return Decision{Allowed: true, Authenticated: true}
		}
		return Decision{Authenticated: true, Reason: fmt.Sprintf("permission %q required", req.permission)}
	default:
		return Decision{Authenticated: true, Reason: "unknown requirement"}
	}
}

// Authorize returns nil, an UNAUTHENTICATED error or a FORBIDDEN error.
func (e *Engine) Authorize(p *Principal, req Requirement) error {
	d := e.Decide(p, req)
	switch {
	case d.Allowed:
		return nil
	case !d.Authenticated:
		return apperrors.NewUnauthenticated(d.Reason)
	default:
		return apperrors.NewForbidden(d.Reason)
	}
}

// Authenticated returns an UNAUTHENTICATED error unless p is backed by a live
// user record.
func (e *Engine) Authenticated(p *Principal) error {
	if !p.resolved() {
		return apperrors.NewUnauthenticated("authentication required")
	}
	return nil
}

// Allows is shorthand for Decide(...).Allowed.
func (e *Engine) Allows(p *Principal, req Requirement) bool {
	return e.Decide(p, req).Allowed
}

// AnyAllows reports whether p satisfies at least one of reqs.
func (e *Engine) AnyAllows(p *Principal, reqs ...Requirement) bool {
	for _, req := range reqs {
		if e.Allows(p, req) {
			return true
		}
	}
	return false
}

// HoldsSupportRole reports whether the user's role or userType is support-tier.
// Unlike Decide this ignores explicit permissions; it qualifies assignees.
func (e *Engine) HoldsSupportRole(user *domain.User) bool {
	if user == nil {
		return false
	}
	for _, role := range user.Assignment.Roles() {
		if e.catalog.IsSupportTier(role) {
			return true
		}
	}
	return false
}
