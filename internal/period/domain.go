package period

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MemberStatus describes a member's standing within a single period.
type MemberStatus string

const (
	MemberStatusActive MemberStatus = "ACTIVE"
	MemberStatusAlumni MemberStatus = "ALUMNI"
)

// State is the derived lifecycle stage of a period.
type State string

const (
	StatePending  State = "PENDING"
	StateActive   State = "ACTIVE"
	StateArchived State = "ARCHIVED"
)

// Period is one time-boxed operating window of the lab (e.g. an academic year).
type Period struct {
	ID            string    `json:"id"`
	Code          string    `json:"code"`
	Name          string    `json:"name"`
	StartDate     Date      `json:"startDate"`
	EndDate       Date      `json:"endDate"`
	IsActive      bool      `json:"isActive"`
	IsArchived    bool      `json:"isArchived"`
	TotalMembers  int       `json:"totalMembers"`
	TotalProjects int       `json:"totalProjects"`
	TotalEvents   int       `json:"totalEvents"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// State derives the lifecycle stage. Archived wins over active so a
// server that reports both is still treated as read-only.
func (p Period) State() State {
	switch {
	case p.IsArchived:
		return StateArchived
	case p.IsActive:
		return StateActive
	default:
		return StatePending
	}
}

// IsPending reports whether the period was created but never operated.
func (p Period) IsPending() bool {
	return !p.IsActive && !p.IsArchived
}

// StatusLabel returns the dashboard label for the period state.
func (p Period) StatusLabel() string {
	if p.IsActive {
		return "Aktif"
	}
	if p.IsArchived {
		return "Arsip"
	}
	return "Tidak Aktif"
}

// MemberPeriod is the enrollment of a member in one period.
type MemberPeriod struct {
	MemberID   string       `json:"memberId"`
	MemberName string       `json:"memberName"`
	MemberNIM  string       `json:"memberNim"`
	PeriodCode string       `json:"periodCode"`
	Status     MemberStatus `json:"status"`
	Position   string       `json:"position"`
}

// CreatePeriodInput is the payload for registering a pending period.
type CreatePeriodInput struct {
	Code      string `json:"code" validate:"required,max=32"`
	Name      string `json:"name" validate:"required,max=128"`
	StartDate Date   `json:"startDate"`
	EndDate   Date   `json:"endDate"`
}

// Normalize trims user-entered fields.
func (in CreatePeriodInput) Normalize() CreatePeriodInput {
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	return in
}

// Validate checks the date window. Field presence is checked by the validator tags.
func (in CreatePeriodInput) Validate() error {
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return ErrDatesRequired
	}
	if in.StartDate.After(in.EndDate.Time) {
		return ErrDateRange
	}
	return nil
}

// SuggestName derives a display name from a code such as "2024-2025".
func SuggestName(code string) string {
	code = strings.TrimSpace(code)
	if !strings.Contains(code, "-") {
		return ""
	}
	return "Periode " + strings.Replace(code, "-", "/", 1)
}

// ClosePeriodInput moves the organization from one period to the next.
type ClosePeriodInput struct {
	NewPeriodID         string   `json:"newPeriodId" validate:"required"`
	ContinuingMemberIDs []string `json:"continuingMemberIds" validate:"dive,required"`
}

// EnrollInput adds a member to the active period roster.
type EnrollInput struct {
	MemberID string `json:"memberId" validate:"required"`
	Position string `json:"position" validate:"max=64"`
}

// CloseResult summarises a committed closure.
type CloseResult struct {
	Archived   Period   `json:"archived"`
	Activated  Period   `json:"activated"`
	Continuing []string `json:"continuing"`
	Alumni     []string `json:"alumni"`
}

// Integrity summarises the lifecycle invariants as stored.
type Integrity struct {
	Active         int `json:"active"`
	ActiveArchived int `json:"activeArchived"`
	Pending        int `json:"pending"`
}

// Violations lists the broken invariants, if any.
func (i Integrity) Violations() []string {
	var out []string
	if i.Active > 1 {
		out = append(out, "multiple_active")
	}
	if i.ActiveArchived > 0 {
		out = append(out, "active_archived")
	}
	return out
}

const dateLayout = "2006-01-02"

// Date is a calendar day serialised as YYYY-MM-DD. RFC3339 timestamps are
// accepted on input because some backends echo full timestamps.
type Date struct {
	time.Time
}

// NewDate truncates t to a calendar day in UTC.
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses YYYY-MM-DD or RFC3339.
func ParseDate(raw string) (Date, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Date{}, nil
	}
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return Date{Time: t}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return Date{}, fmt.Errorf("period: invalid date %q", raw)
	}
	return NewDate(t), nil
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte(`""`), nil
	}
	return []byte(`"` + d.Format(dateLayout) + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

var (
	// ErrNotFound indicates the period does not exist.
	ErrNotFound = errors.New("period: not found")
	// ErrDuplicateCode indicates another period already uses the code.
	ErrDuplicateCode = errors.New("period: code already exists")
	// ErrDatesRequired indicates missing start or end date.
	ErrDatesRequired = errors.New("period: start and end date required")
	// ErrDateRange indicates the start date is after the end date.
	ErrDateRange = errors.New("period: start date cannot be after end date")
	// ErrArchived is returned when mutating an archived period.
	ErrArchived = errors.New("period: period is archived and read-only")
	// ErrNotActive is returned when an operation needs the active period.
	ErrNotActive = errors.New("period: period is not active")
	// ErrAlreadyActive is returned when activating the active period.
	ErrAlreadyActive = errors.New("period: period already active")
	// ErrNotArchived guards deletion of operative periods.
	ErrNotArchived = errors.New("period: only archived periods can be deleted")
	// ErrSuccessorNotPending indicates the closure target is active or archived.
	ErrSuccessorNotPending = errors.New("period: successor must be a pending period")
	// ErrSuccessorNotEmpty indicates the closure target already holds members.
	ErrSuccessorNotEmpty = errors.New("period: successor period already has members")
	// ErrSamePeriod indicates the closure target is the closing period itself.
	ErrSamePeriod = errors.New("period: successor must differ from the closing period")
	// ErrUnknownMember indicates a continuing member is not active in the closing period.
	ErrUnknownMember = errors.New("period: member is not active in the closing period")
	// ErrAlreadyEnrolled indicates the member already has a row in the period.
	ErrAlreadyEnrolled = errors.New("period: member already enrolled")
	// ErrTransitionLocked indicates another lifecycle transition is running.
	ErrTransitionLocked = errors.New("period: another transition is in progress")
)
