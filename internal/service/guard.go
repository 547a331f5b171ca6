package service

import (
	"net/http"

	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// GuardKind names an operation that could lock the acting principal out.
type GuardKind string

const (
	GuardDelete     GuardKind = "delete"
	GuardDeactivate GuardKind = "deactivate"
	GuardBulkDelete GuardKind = "bulk_delete"
	GuardBulkStatus GuardKind = "bulk_status"
)

// SelfLockoutReason is reported in the error details of a guarded rejection.
const SelfLockoutReason = "self_lockout"

var guardMessages = map[GuardKind]string{
	GuardDelete:     "you cannot delete your own account",
	GuardDeactivate: "you cannot deactivate your own account",
	GuardBulkDelete: "you cannot delete your own account in a bulk operation",
	GuardBulkStatus: "you cannot deactivate your own account in a bulk operation",
}

// ForbidIfSelf rejects the whole operation when actorID is among targetIDs.
// Ids are compared as UUIDs when both parse, so any spelling of the actor's
// own id matches. It runs before any mutation, so a rejected bulk request
// changes nothing.
func ForbidIfSelf(actorID string, targetIDs []string, kind GuardKind) error {
	self, selfIsUUID := canonicalID(actorID)
	for _, id := range targetIDs {
		if id != actorID {
			target, ok := canonicalID(id)
			if !ok || !selfIsUUID || target != self {
				continue
			}
		}
		msg, ok := guardMessages[kind]
		if !ok {
			msg = "operation would lock you out of your own account"
		}
		return apperrors.NewDomainError(apperrors.CodeValidationFailed, msg, http.StatusBadRequest,
			map[string]any{"reason": SelfLockoutReason, "operation": string(kind)})
	}
	return nil
}
