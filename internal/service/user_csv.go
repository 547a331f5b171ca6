package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spec-kit/helpdesk-service/internal/audit"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

const (
	exportPageSize     = 500
	maxImportRowErrors = 20
)

// ExportHeader is the first row of every user export.
var ExportHeader = []string{"Name", "Email", "Phone", "Department", "Role", "Status", "Created At", "Last Login"}

// ImportResult summarizes a CSV import.
type ImportResult struct {
	Processed int      `json:"processed"`
	Created   int      `json:"created"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors"`
}

// Export writes every account matching filter as CSV. Paging fields of the
// filter are ignored.
func (s *AdminUserService) Export(ctx context.Context, actor *auth.Principal, filter UserListFilter, w io.Writer) (int, error) {
	if err := s.engine.Authorize(actor, auth.AdminTier()); err != nil {
		return 0, err
	}
	repoFilter, err := s.repoFilter(UserListFilter{
		Search:     filter.Search,
		Status:     filter.Status,
		Role:       filter.Role,
		Department: filter.Department,
	})
	if err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeader); err != nil {
		return 0, apperrors.NewInternalError(err)
	}

	written := 0
	repoFilter.Limit = exportPageSize
	for offset := 0; ; offset += exportPageSize {
		repoFilter.Offset = offset
		users, total, err := s.users.List(ctx, repoFilter)
		if err != nil {
			return written, mapRepoError(err, "user")
		}
		for i := range users {
			u := &users[i]
			row := []string{
				u.FullName(), u.Email, u.Phone, u.Department,
				string(u.Assignment.Role), u.WireStatus(),
				formatTime(&u.CreatedAt), formatTime(u.LastLoginAt),
			}
			if err := cw.Write(row); err != nil {
				return written, apperrors.NewInternalError(err)
			}
			written++
		}
		if len(users) == 0 || offset+len(users) >= total {
			break
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return written, apperrors.NewInternalError(err)
	}

	record(ctx, s.audit, audit.Entry{
		UserID:   actor.ID(),
		Action:   domain.AuditExportUsers,
		Resource: domain.ResourceUser,
		Details:  map[string]any{"filter": filterDetails(filter), "count": written, "format": "csv"},
	})
	return written, nil
}

// Import creates accounts from CSV. The header row names the columns;
// email is required and firstName, lastName, phone, department, role,
// status and password are optional. Rows with an existing email are skipped.
// Accounts imported without a password get a random one.
func (s *AdminUserService) Import(ctx context.Context, actor *auth.Principal, r io.Reader) (ImportResult, error) {
	if err := s.engine.Authorize(actor, auth.AdminTier()); err != nil {
		return ImportResult{}, err
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return ImportResult{}, apperrors.NewValidationError("csv file is empty", nil)
	}
	if err != nil {
		return ImportResult{}, apperrors.NewValidationError("csv header could not be parsed", map[string]any{"error": err.Error()})
	}
	columns := indexColumns(header)
	if _, ok := columns["email"]; !ok {
		return ImportResult{}, apperrors.NewValidationError("csv header must include an email column", nil)
	}

	result := ImportResult{Errors: []string{}}
	addError := func(line int, msg string) {
		result.Skipped++
		if len(result.Errors) < maxImportRowErrors {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %s", line, msg))
		}
	}

	actorID := actor.ID()
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			result.Processed++
			addError(line, "malformed row")
			continue
		}
		if blankRecord(rec) {
			continue
		}
		result.Processed++

		input, err := s.importInput(columns, rec)
		if err != nil {
			addError(line, err.Error())
			continue
		}
		if err := s.checkGrant(actor, input.Role, nil); err != nil {
			addError(line, "role not permitted")
			continue
		}
		hash, err := s.hasher.Hash(input.Password)
		if err != nil {
			return result, apperrors.NewInternalError(err)
		}
		user := &domain.User{
			FirstName:    input.FirstName,
			LastName:     input.LastName,
			Email:        input.Email,
			Phone:        input.Phone,
			Department:   input.Department,
			PasswordHash: hash,
			Assignment:   domain.NewRoleAssignment(input.Role),
			Permissions:  []string{},
			Status:       input.Status,
			CreatedBy:    &actorID,
		}
		if err := s.insert(ctx, user); err != nil {
			if apperrors.HasCode(err, apperrors.CodeConflict) {
				addError(line, "email already registered")
				continue
			}
			return result, err
		}
		result.Created++
	}

	record(ctx, s.audit, audit.Entry{
		UserID:   actorID,
		Action:   domain.AuditImportUsers,
		Resource: domain.ResourceUser,
		Details: map[string]any{
			"processed": result.Processed,
			"created":   result.Created,
			"skipped":   result.Skipped,
		},
	})
	return result, nil
}

func (s *AdminUserService) importInput(columns map[string]int, rec []string) (UserCreateInput, error) {
	get := func(name string) string {
		if i, ok := columns[name]; ok && i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}

	in := UserCreateInput{
		FirstName:  get("firstname"),
		LastName:   get("lastname"),
		Email:      domain.NormalizeEmail(get("email")),
		Phone:      get("phone"),
		Department: get("department"),
		Password:   get("password"),
		Role:       domain.RoleID(strings.ToLower(get("role"))),
		Status:     domain.UserStatus(strings.ToLower(get("status"))),
	}
	if in.FirstName == "" {
		if name := get("name"); name != "" {
			parts := strings.SplitN(name, " ", 2)
			in.FirstName = parts[0]
			if len(parts) == 2 {
				in.LastName = strings.TrimSpace(parts[1])
			}
		}
	}
	if in.Role == "" {
		in.Role = domain.RoleUser
	}
	if in.Status == "" {
		in.Status = domain.UserStatusActive
	}

	switch {
	case !validEmail(in.Email):
		return in, errors.New("invalid email")
	case !s.engine.Catalog().Known(in.Role):
		return in, fmt.Errorf("unknown role %q", in.Role)
	case !in.Status.Valid():
		return in, fmt.Errorf("unknown status %q", in.Status)
	case in.Password != "" && len(in.Password) < minPasswordLength:
		return in, errors.New("password too short")
	}
	if in.Password == "" {
		pw, err := randomPassword()
		if err != nil {
			return in, err
		}
		in.Password = pw
	}
	return in, nil
}

// indexColumns maps normalized header names to positions, so that
// "First Name", "first_name" and "firstName" are equivalent.
func indexColumns(header []string) map[string]int {
	out := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		key = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(key)
		if _, dup := out[key]; !dup {
			out[key] = i
		}
	}
	return out
}

func blankRecord(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
