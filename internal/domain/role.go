package domain

// RoleID identifies an entry in the role catalog.
type RoleID string

const (
	RoleSuperAdmin   RoleID = "super_admin"
	RoleAdmin        RoleID = "admin"
	RoleSupportLead  RoleID = "support_lead"
	RoleSupportAgent RoleID = "support_agent"
	RoleITSpecialist RoleID = "it_specialist"
	RoleUser         RoleID = "user"
)

// WildcardPermission grants every permission.
const WildcardPermission = "*"

// RoleAssignment is the single role value of a principal. Stores that keep the
// legacy role and user_type columns write both from Role and read both back
// into this value; UserType only differs from Role when a row has drifted.
type RoleAssignment struct {
	Role     RoleID
	UserType RoleID
}

// NewRoleAssignment returns a synchronized assignment for role.
func NewRoleAssignment(role RoleID) RoleAssignment {
	return RoleAssignment{Role: role, UserType: role}
}

// ReconcileRoleAssignment builds an assignment from the two persisted columns,
// filling a blank column from the other one.
func ReconcileRoleAssignment(role, userType string) RoleAssignment {
	r, u := RoleID(role), RoleID(userType)
	if r == "" {
		r = u
	}
	if u == "" {
		u = r
	}
	return RoleAssignment{Role: r, UserType: u}
}

// Drifted reports whether the persisted columns disagree.
func (a RoleAssignment) Drifted() bool {
	return a.Role != a.UserType
}

// Roles returns the distinct non-empty roles held by the assignment.
func (a RoleAssignment) Roles() []RoleID {
	var roles []RoleID
	if a.Role != "" {
		roles = append(roles, a.Role)
	}
	if a.UserType != "" && a.UserType != a.Role {
		roles = append(roles, a.UserType)
	}
	return roles
}
