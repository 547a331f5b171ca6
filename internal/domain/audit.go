package domain

import "time"

// AuditAction is the closed set of audited actions.
type AuditAction string

const (
	AuditLogin           AuditAction = "LOGIN"
	AuditFailedLogin     AuditAction = "FAILED_LOGIN"
	AuditRegisterUser    AuditAction = "REGISTER_USER"
	AuditCreateUser      AuditAction = "CREATE_USER"
	AuditUpdateUser      AuditAction = "UPDATE_USER"
	AuditDeleteUser      AuditAction = "DELETE_USER"
	AuditBulkUpdateUsers AuditAction = "BULK_UPDATE_USERS"
	AuditBulkDeleteUsers AuditAction = "BULK_DELETE_USERS"
	AuditCreateTicket    AuditAction = "CREATE_TICKET"
	AuditUpdateTicket    AuditAction = "UPDATE_TICKET"
	AuditAssignTicket    AuditAction = "ASSIGN_TICKET"
	AuditCloseTicket     AuditAction = "CLOSE_TICKET"
	AuditDeleteTicket    AuditAction = "DELETE_TICKET"
	AuditViewUsers       AuditAction = "VIEW_USERS"
	AuditExportUsers     AuditAction = "EXPORT_USERS"
	AuditImportUsers     AuditAction = "IMPORT_USERS"
	AuditChangePassword  AuditAction = "CHANGE_PASSWORD"
)

var knownAuditActions = map[AuditAction]struct{}{
	AuditLogin: {}, AuditFailedLogin: {}, AuditRegisterUser: {}, AuditCreateUser: {},
	AuditUpdateUser: {}, AuditDeleteUser: {}, AuditBulkUpdateUsers: {}, AuditBulkDeleteUsers: {},
	AuditCreateTicket: {}, AuditUpdateTicket: {}, AuditAssignTicket: {}, AuditCloseTicket: {},
	AuditDeleteTicket: {}, AuditViewUsers: {}, AuditExportUsers: {}, AuditImportUsers: {},
	AuditChangePassword: {},
}

// Valid reports whether a belongs to the audited action set.
func (a AuditAction) Valid() bool {
	_, ok := knownAuditActions[a]
	return ok
}

// SystemUserID attributes audit entries with no resolvable principal.
const SystemUserID = "00000000-0000-0000-0000-000000000000"

// Audited resources.
const (
	ResourceUser   = "user"
	ResourceTicket = "ticket"
	ResourceAuth   = "auth"
)

// AuditLogEntry is an immutable record of an attempted action.
type AuditLogEntry struct {
	ID         string
	UserID     string
	Action     AuditAction
	Resource   string
	ResourceID *string
	Details    map[string]any
	IPAddress  string
	UserAgent  string
	CreatedAt  time.Time
}
