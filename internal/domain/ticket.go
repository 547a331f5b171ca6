package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen            TicketStatus = "Open"
	TicketStatusInProgress      TicketStatus = "In Progress"
	TicketStatusPendingUser     TicketStatus = "Pending User"
	TicketStatusPendingApproval TicketStatus = "Pending Approval"
	TicketStatusOnHold          TicketStatus = "On Hold"
	TicketStatusResolved        TicketStatus = "Resolved"
	TicketStatusClosed          TicketStatus = "Closed"
	TicketStatusCancelled       TicketStatus = "Cancelled"
)

// Terminal reports whether no further transition is possible.
func (s TicketStatus) Terminal() bool {
	return s == TicketStatusClosed || s == TicketStatusCancelled
}

// PreResolution reports whether the ticket is still being worked.
func (s TicketStatus) PreResolution() bool {
	return s != TicketStatusResolved && !s.Terminal()
}

// TicketPriority enumerates business priority.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "Low"
	TicketPriorityMedium   TicketPriority = "Medium"
	TicketPriorityHigh     TicketPriority = "High"
	TicketPriorityCritical TicketPriority = "Critical"
)

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityCritical:
		return true
	}
	return false
}

// TicketUrgency enumerates how soon the requester needs help.
type TicketUrgency string

const (
	TicketUrgencyLow       TicketUrgency = "Low"
	TicketUrgencyMedium    TicketUrgency = "Medium"
	TicketUrgencyHigh      TicketUrgency = "High"
	TicketUrgencyEmergency TicketUrgency = "Emergency"
)

// Valid reports whether u is a known urgency.
func (u TicketUrgency) Valid() bool {
	switch u {
	case TicketUrgencyLow, TicketUrgencyMedium, TicketUrgencyHigh, TicketUrgencyEmergency:
		return true
	}
	return false
}

// TicketImpact enumerates how widely a problem is felt.
type TicketImpact string

const (
	TicketImpactLow      TicketImpact = "Low"
	TicketImpactMedium   TicketImpact = "Medium"
	TicketImpactHigh     TicketImpact = "High"
	TicketImpactCritical TicketImpact = "Critical"
)

// Valid reports whether i is a known impact.
func (i TicketImpact) Valid() bool {
	switch i {
	case TicketImpactLow, TicketImpactMedium, TicketImpactHigh, TicketImpactCritical:
		return true
	}
	return false
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID                      string
	TicketNumber            string
	Title                   string
	Description             string
	Category                string
	Subcategory             string
	Priority                TicketPriority
	Urgency                 TicketUrgency
	Impact                  TicketImpact
	Status                  TicketStatus
	RequesterID             string
	AssigneeID              *string
	ResolutionNotes         string
	SatisfactionRating      *int
	Feedback                string
	EstimatedResolutionTime *time.Time
	ActualResolutionTime    *time.Time
	CreatedAt               time.Time
	UpdatedAt               time.Time
}
