package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// MemoryStore is a process-local store used when no database is configured
// and in tests. It enforces the same uniqueness rules as the SQL schema.
type MemoryStore struct {
	mu      sync.RWMutex
	now     func() time.Time
	seq     int64
	users   map[string]*memUser
	tickets map[string]*memTicket
	audit   []domain.AuditLogEntry
}

type memUser struct {
	seq  int64
	user domain.User
}

type memTicket struct {
	seq    int64
	ticket domain.Ticket
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:     func() time.Time { return time.Now().UTC() },
		users:   make(map[string]*memUser),
		tickets: make(map[string]*memTicket),
	}
}

// Users returns the user repository view.
func (s *MemoryStore) Users() UserRepository { return memUsers{s} }

// Tickets returns the ticket repository view.
func (s *MemoryStore) Tickets() TicketRepository { return memTickets{s} }

// Audit returns the audit repository view.
func (s *MemoryStore) Audit() AuditRepository { return memAudit{s} }

type memUsers struct{ s *MemoryStore }

func cloneUser(u domain.User) *domain.User {
	u.Permissions = append([]string(nil), u.Permissions...)
	return &u
}

func (r memUsers) emailTaken(email, exceptID string) bool {
	for id, rec := range r.s.users {
		if id != exceptID && !rec.user.Tombstoned() && rec.user.Email == email {
			return true
		}
	}
	return false
}

func (r memUsers) Create(_ context.Context, user *domain.User) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	email := domain.NormalizeEmail(user.Email)
	if r.emailTaken(email, "") {
		return ErrDuplicate
	}
	s.seq++
	now := s.now()
	user.ID = uuid.NewString()
	user.Email = email
	user.Assignment = domain.NewRoleAssignment(user.Assignment.Role)
	user.UpdatedBy = user.CreatedBy
	user.CreatedAt, user.UpdatedAt = now, now
	if user.Permissions == nil {
		user.Permissions = []string{}
	}
	s.users[user.ID] = &memUser{seq: s.seq, user: *cloneUser(*user)}
	return nil
}

func (r memUsers) Update(_ context.Context, user *domain.User) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.users[user.ID]
	if !ok || rec.user.Tombstoned() {
		return ErrNotFound
	}
	email := domain.NormalizeEmail(user.Email)
	if r.emailTaken(email, user.ID) {
		return ErrDuplicate
	}
	user.Email = email
	user.Assignment = domain.NewRoleAssignment(user.Assignment.Role)
	user.UpdatedAt = s.now()

	next := *cloneUser(*user)
	next.CreatedAt = rec.user.CreatedAt
	next.CreatedBy = rec.user.CreatedBy
	next.LastLoginAt = rec.user.LastLoginAt
	next.DeletedAt, next.DeletedBy = nil, nil
	rec.user = next
	return nil
}

func (r memUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rec, ok := r.s.users[id]
	if !ok || rec.user.Tombstoned() {
		return nil, ErrNotFound
	}
	return cloneUser(rec.user), nil
}

func (r memUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	email = domain.NormalizeEmail(email)
	for _, rec := range r.s.users {
		if !rec.user.Tombstoned() && rec.user.Email == email {
			return cloneUser(rec.user), nil
		}
	}
	return nil, ErrNotFound
}

func (r memUsers) List(_ context.Context, filter UserFilter) ([]domain.User, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	dept := strings.TrimSpace(filter.Department)
	matched := make([]*memUser, 0, len(r.s.users))
	for _, rec := range r.s.users {
		u := rec.user
		if u.Tombstoned() != filter.Deleted {
			continue
		}
		if filter.Status != nil && u.Status != *filter.Status {
			continue
		}
		if filter.Role != nil && u.Assignment.Role != *filter.Role && u.Assignment.UserType != *filter.Role {
			continue
		}
		if dept != "" && u.Department != dept {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(u.FirstName), search) &&
			!strings.Contains(strings.ToLower(u.LastName), search) &&
			!strings.Contains(u.Email, search) {
			continue
		}
		matched = append(matched, rec)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].seq > matched[j].seq })

	limit, offset := limitOffset(filter.Limit, filter.Offset, 20)
	total := len(matched)
	result := []domain.User{}
	for i := offset; i < total && i < offset+limit; i++ {
		result = append(result, *cloneUser(matched[i].user))
	}
	return result, total, nil
}

func (r memUsers) SoftDelete(_ context.Context, id, actorID string) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[id]
	if !ok || rec.user.Tombstoned() {
		return ErrNotFound
	}
	r.tombstone(rec, actorID)
	return nil
}

func (r memUsers) tombstone(rec *memUser, actorID string) {
	now := r.s.now()
	actor := actorID
	rec.user.DeletedAt = &now
	rec.user.DeletedBy = &actor
	rec.user.UpdatedBy = &actor
	rec.user.UpdatedAt = now
}

func (r memUsers) BulkUpdate(_ context.Context, ids []string, patch UserPatch, actorID string) (int64, error) {
	if len(ids) == 0 || patch.Empty() {
		return 0, nil
	}
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var affected int64
	for _, id := range uniqueIDs(ids) {
		rec, ok := s.users[id]
		if !ok || rec.user.Tombstoned() {
			continue
		}
		u := &rec.user
		changed := false
		if patch.Status != nil && u.Status != *patch.Status {
			u.Status = *patch.Status
			changed = true
		}
		if patch.Role != nil && (u.Assignment.Role != *patch.Role || u.Assignment.UserType != *patch.Role) {
			u.Assignment = domain.NewRoleAssignment(*patch.Role)
			changed = true
		}
		if patch.Department != nil && u.Department != *patch.Department {
			u.Department = *patch.Department
			changed = true
		}
		if changed {
			actor := actorID
			u.UpdatedBy = &actor
			u.UpdatedAt = s.now()
			affected++
		}
	}
	return affected, nil
}

func (r memUsers) BulkSoftDelete(_ context.Context, ids []string, actorID string) (int64, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var affected int64
	for _, id := range uniqueIDs(ids) {
		rec, ok := s.users[id]
		if !ok || rec.user.Tombstoned() {
			continue
		}
		r.tombstone(rec, actorID)
		affected++
	}
	return affected, nil
}

func (r memUsers) TouchLastLogin(_ context.Context, id string) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.users[id]; ok {
		now := s.now()
		rec.user.LastLoginAt = &now
	}
	return nil
}

// SetRoleColumns overwrites the persisted role fields independently. It lets
// tests reproduce rows whose role and user_type have drifted apart.
func (s *MemoryStore) SetRoleColumns(id string, role, userType domain.RoleID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[id]
	if !ok {
		return false
	}
	rec.user.Assignment = domain.RoleAssignment{Role: role, UserType: userType}
	return true
}

type memTickets struct{ s *MemoryStore }

func (r memTickets) Create(_ context.Context, ticket *domain.Ticket) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.tickets {
		if rec.ticket.TicketNumber == ticket.TicketNumber {
			return ErrDuplicate
		}
	}
	s.seq++
	now := s.now()
	ticket.ID = uuid.NewString()
	ticket.CreatedAt, ticket.UpdatedAt = now, now
	s.tickets[ticket.ID] = &memTicket{seq: s.seq, ticket: *ticket}
	return nil
}

func (r memTickets) Update(_ context.Context, ticket *domain.Ticket) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tickets[ticket.ID]
	if !ok {
		return ErrNotFound
	}
	if rec.ticket.ActualResolutionTime != nil {
		ticket.ActualResolutionTime = rec.ticket.ActualResolutionTime
	}
	ticket.UpdatedAt = s.now()
	next := *ticket
	next.TicketNumber = rec.ticket.TicketNumber
	next.RequesterID = rec.ticket.RequesterID
	next.CreatedAt = rec.ticket.CreatedAt
	rec.ticket = next
	return nil
}

func (r memTickets) Delete(_ context.Context, id string) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickets[id]; !ok {
		return ErrNotFound
	}
	delete(s.tickets, id)
	return nil
}

func (r memTickets) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rec, ok := r.s.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	t := rec.ticket
	return &t, nil
}

func (r memTickets) GetByNumber(_ context.Context, number string) (*domain.Ticket, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, rec := range r.s.tickets {
		if rec.ticket.TicketNumber == number {
			t := rec.ticket
			return &t, nil
		}
	}
	return nil, ErrNotFound
}

func (r memTickets) List(_ context.Context, filter TicketFilter) ([]domain.Ticket, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(filter.SearchTerm))
	category := strings.TrimSpace(filter.Category)
	matched := make([]*memTicket, 0, len(r.s.tickets))
	for _, rec := range r.s.tickets {
		t := rec.ticket
		if filter.RequesterID != nil && t.RequesterID != *filter.RequesterID {
			continue
		}
		if filter.AssigneeID != nil && (t.AssigneeID == nil || *t.AssigneeID != *filter.AssigneeID) {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, t.Status) {
			continue
		}
		if len(filter.Priorities) > 0 && !containsPriority(filter.Priorities, t.Priority) {
			continue
		}
		if category != "" && t.Category != category {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(t.Title), search) &&
			!strings.Contains(strings.ToLower(t.Description), search) &&
			!strings.Contains(strings.ToLower(t.TicketNumber), search) {
			continue
		}
		matched = append(matched, rec)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].seq > matched[j].seq })

	limit, offset := limitOffset(filter.Limit, filter.Offset, 20)
	total := len(matched)
	result := []domain.Ticket{}
	for i := offset; i < total && i < offset+limit; i++ {
		result = append(result, matched[i].ticket)
	}
	return result, total, nil
}

func containsStatus(list []domain.TicketStatus, s domain.TicketStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsPriority(list []domain.TicketPriority, p domain.TicketPriority) bool {
	for _, v := range list {
		if v == p {
			return true
		}
	}
	return false
}

type memAudit struct{ s *MemoryStore }

func (r memAudit) Create(_ context.Context, entry *domain.AuditLogEntry) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ID = uuid.NewString()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	s.audit = append(s.audit, *entry)
	return nil
}

func (r memAudit) List(_ context.Context, filter AuditFilter) ([]domain.AuditLogEntry, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	matched := []domain.AuditLogEntry{}
	for i := len(r.s.audit) - 1; i >= 0; i-- {
		e := r.s.audit[i]
		if filter.UserID != "" && e.UserID != filter.UserID {
			continue
		}
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		if filter.Resource != "" && e.Resource != filter.Resource {
			continue
		}
		if filter.From != nil && e.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && e.CreatedAt.After(*filter.To) {
			continue
		}
		matched = append(matched, e)
	}

	limit, offset := limitOffset(filter.Limit, filter.Offset, 50)
	total := len(matched)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
