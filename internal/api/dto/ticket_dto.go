package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title                   string                `json:"title"`
	Description             string                `json:"description"`
	Category                string                `json:"category"`
	Subcategory             string                `json:"subcategory"`
	Priority                domain.TicketPriority `json:"priority"`
	Urgency                 domain.TicketUrgency  `json:"urgency"`
	Impact                  domain.TicketImpact   `json:"impact"`
	EstimatedResolutionTime *time.Time            `json:"estimatedResolutionTime"`
}

// UpdateTicketRequest is a partial edit; omitted fields are untouched.
type UpdateTicketRequest struct {
	Title                   *string                `json:"title"`
	Description             *string                `json:"description"`
	Category                *string                `json:"category"`
	Subcategory             *string                `json:"subcategory"`
	Priority                *domain.TicketPriority `json:"priority"`
	Urgency                 *domain.TicketUrgency  `json:"urgency"`
	Impact                  *domain.TicketImpact   `json:"impact"`
	Status                  *domain.TicketStatus   `json:"status"`
	ResolutionNotes         *string                `json:"resolutionNotes"`
	EstimatedResolutionTime *time.Time             `json:"estimatedResolutionTime"`
}

// AssignTicketRequest payload. A null or empty assignedToId unassigns.
type AssignTicketRequest struct {
	AssignedToID *string `json:"assignedToId"`
}

// CloseTicketRequest payload.
type CloseTicketRequest struct {
	ResolutionNotes    string `json:"resolutionNotes"`
	SatisfactionRating *int   `json:"satisfactionRating"`
	FeedbackComments   string `json:"feedbackComments"`
}

// TicketResponse is the wire form of a ticket.
type TicketResponse struct {
	ID                      string                `json:"id"`
	TicketNumber            string                `json:"ticketNumber"`
	Title                   string                `json:"title"`
	Description             string                `json:"description"`
	Category                string                `json:"category"`
	Subcategory             string                `json:"subcategory,omitempty"`
	Priority                domain.TicketPriority `json:"priority"`
	Urgency                 domain.TicketUrgency  `json:"urgency"`
	Impact                  domain.TicketImpact   `json:"impact"`
	Status                  domain.TicketStatus   `json:"status"`
	RequesterID             string                `json:"requesterId"`
	AssignedToID            *string               `json:"assignedToId"`
	ResolutionNotes         string                `json:"resolutionNotes,omitempty"`
	SatisfactionRating      *int                  `json:"satisfactionRating,omitempty"`
	FeedbackComments        string                `json:"feedbackComments,omitempty"`
	EstimatedResolutionTime *time.Time            `json:"estimatedResolutionTime"`
	ActualResolutionTime    *time.Time            `json:"actualResolutionTime"`
	CreatedAt               time.Time             `json:"createdAt"`
	UpdatedAt               time.Time             `json:"updatedAt"`
}

// NewTicketResponse maps a ticket to its wire form.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:                      t.ID,
		TicketNumber:            t.TicketNumber,
		Title:                   t.Title,
		Description:             t.Description,
		Category:                t.Category,
		Subcategory:             t.Subcategory,
		Priority:                t.Priority,
		Urgency:                 t.Urgency,
		Impact:                  t.Impact,
		Status:                  t.Status,
		RequesterID:             t.RequesterID,
		AssignedToID:            t.AssigneeID,
		ResolutionNotes:         t.ResolutionNotes,
		SatisfactionRating:      t.SatisfactionRating,
		FeedbackComments:        t.Feedback,
		EstimatedResolutionTime: t.EstimatedResolutionTime,
		ActualResolutionTime:    t.ActualResolutionTime,
		CreatedAt:               t.CreatedAt,
		UpdatedAt:               t.UpdatedAt,
	}
}

// Pagination describes a page of a listing.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// NewPagination computes page counts.
func NewPagination(page, limit, total int) Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{Page: page, Limit: limit, Total: total, TotalPages: pages}
}
