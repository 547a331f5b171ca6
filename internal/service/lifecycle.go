package service

import (
	"net/http"
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// allowedTransitions lists explicit status moves. Assignment moves are
// applied separately by TicketService.Assign.
var allowedTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusOpen: {domain.TicketStatusInProgress, domain.TicketStatusCancelled},
	domain.TicketStatusInProgress: {
		domain.TicketStatusPendingUser, domain.TicketStatusPendingApproval, domain.TicketStatusOnHold,
		domain.TicketStatusResolved, domain.TicketStatusCancelled,
	},
	domain.TicketStatusPendingUser:     {domain.TicketStatusInProgress, domain.TicketStatusResolved, domain.TicketStatusCancelled},
	domain.TicketStatusPendingApproval: {domain.TicketStatusInProgress, domain.TicketStatusResolved, domain.TicketStatusCancelled},
	domain.TicketStatusOnHold:          {domain.TicketStatusInProgress, domain.TicketStatusResolved, domain.TicketStatusCancelled},
	domain.TicketStatusResolved:        {domain.TicketStatusInProgress, domain.TicketStatusClosed},
	domain.TicketStatusClosed:          {},
	domain.TicketStatusCancelled:       {},
}

// KnownTicketStatus reports whether s is one of the lifecycle states.
func KnownTicketStatus(s domain.TicketStatus) bool {
	_, ok := allowedTransitions[s]
	return ok
}

// CanTransition reports whether an explicit status change is permitted.
func CanTransition(current, next domain.TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

func validateTransition(current, next domain.TicketStatus) error {
	if !KnownTicketStatus(next) {
		return apperrors.NewValidationError("invalid status", map[string]any{"status": string(next)})
	}
	if !CanTransition(current, next) {
		return apperrors.NewDomainError(apperrors.CodeForbidden, "status transition not allowed", http.StatusForbidden,
			map[string]any{"from": string(current), "to": string(next)})
	}
	return nil
}

// stampResolution records the first resolution time and never overwrites it.
func stampResolution(ticket *domain.Ticket, at time.Time) {
	if ticket.ActualResolutionTime != nil {
		return
	}
	ts := at
	ticket.ActualResolutionTime = &ts
}
