package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketAssigned      EventType = "ticket_assigned"
	EventTicketClosed        EventType = "ticket_closed"
	EventTicketDeleted       EventType = "ticket_deleted"
)

// Actor identifies who triggered an event.
type Actor struct {
	UserID string        `json:"user_id"`
	Role   domain.RoleID `json:"role"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID           string      `json:"id"`
	Type         EventType   `json:"type"`
	TicketID     string      `json:"ticket_id"`
	TicketNumber string      `json:"ticket_number"`
	Actor        Actor       `json:"actor"`
	Timestamp    time.Time   `json:"timestamp"`
	Payload      interface{} `json:"payload"`
}

// NewTicketEvent stamps a fresh event for ticket.
func NewTicketEvent(eventType EventType, ticket *domain.Ticket, actor Actor, at time.Time, payload interface{}) Event {
	return Event{
		ID:           uuid.NewString(),
		Type:         eventType,
		TicketID:     ticket.ID,
		TicketNumber: ticket.TicketNumber,
		Actor:        actor,
		Timestamp:    at,
		Payload:      payload,
	}
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	RequesterID string                `json:"requester_id"`
	Category    string                `json:"category"`
	Priority    domain.TicketPriority `json:"priority"`
	Title       string                `json:"title"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// TicketAssignedPayload payload. A nil assignee means the ticket was released.
type TicketAssignedPayload struct {
	PreviousAssigneeID *string `json:"previous_assignee_id,omitempty"`
	AssigneeID         *string `json:"assignee_id,omitempty"`
}

// TicketClosedPayload payload.
type TicketClosedPayload struct {
	ResolutionNotes    string `json:"resolution_notes"`
	SatisfactionRating *int   `json:"satisfaction_rating,omitempty"`
}
