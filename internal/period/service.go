package period

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/labdesk/labdesk/internal/shared"
)

// Store exposes read access and transactional writes for periods.
type Store interface {
	WithTx(ctx context.Context, fn func(context.Context, Tx) error) error
	ListPeriods(ctx context.Context) ([]Period, error)
	LoadPeriod(ctx context.Context, id string) (Period, error)
	Roster(ctx context.Context, periodID string) ([]MemberPeriod, error)
}

// Tx exposes the writes that must happen atomically.
type Tx interface {
	LoadPeriodForUpdate(ctx context.Context, id string) (Period, error)
	InsertPeriod(ctx context.Context, p Period) (Period, error)
	DeactivateAll(ctx context.Context) error
	Activate(ctx context.Context, id string) error
	Archive(ctx context.Context, id string) error
	DeletePeriod(ctx context.Context, id string) error
	CountMembers(ctx context.Context, periodID string) (int, error)
	ActiveRosterForUpdate(ctx context.Context, periodID string) ([]MemberPeriod, error)
	InsertMemberPeriod(ctx context.Context, periodID string, m MemberPeriod) error
	MarkAlumni(ctx context.Context, periodID string, memberIDs []string) error
}

// Locker serialises lifecycle transitions across API instances.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context), err error)
}

// ClosedEvent is published after a closure commits.
type ClosedEvent struct {
	PeriodID      string    `json:"period_id"`
	PeriodCode    string    `json:"period_code"`
	SuccessorID   string    `json:"successor_id"`
	SuccessorCode string    `json:"successor_code"`
	Continuing    []string  `json:"continuing"`
	Alumni        []string  `json:"alumni"`
	Actor         string    `json:"actor"`
	ClosedAt      time.Time `json:"closed_at"`
}

// EventPublisher hands committed closures to background processing.
type EventPublisher interface {
	PublishPeriodClosed(ctx context.Context, ev ClosedEvent) error
}

// Activity is a single lifecycle entry for the activity log.
type Activity = shared.ActivityLog

// ActivityRecorder writes lifecycle activity.
type ActivityRecorder interface {
	RecordPeriodActivity(ctx context.Context, a Activity) error
}

// TransitionRecorder counts lifecycle transitions by outcome.
type TransitionRecorder interface {
	RecordTransition(kind, outcome string)
}

// ServiceConfig carries optional collaborators.
type ServiceConfig struct {
	Locker    Locker
	Publisher EventPublisher
	Activity  ActivityRecorder
	Recorder  TransitionRecorder
	Logger    *slog.Logger
	LockTTL   time.Duration
}

// Service enforces the period lifecycle: single active period, monotonic
// archival and atomic closure.
type Service struct {
	store     Store
	locker    Locker
	publisher EventPublisher
	activity  ActivityRecorder
	recorder  TransitionRecorder
	logger    *slog.Logger
	validate  *validator.Validate
	lockTTL   time.Duration
	now       func() time.Time
	newID     func() string
}

// NewService constructs a Service instance.
func NewService(store Store, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.LockTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Service{
		store:     store,
		locker:    cfg.Locker,
		publisher: cfg.Publisher,
		activity:  cfg.Activity,
		recorder:  cfg.Recorder,
		logger:    logger,
		validate:  validator.New(),
		lockTTL:   ttl,
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// ValidationError lists invalid fields of a request.
type ValidationError struct {
	Fields map[string]string
}

// ErrInvalidInput is the sentinel wrapped by ValidationError.
var ErrInvalidInput = errors.New("period: invalid input")

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, field+": "+msg)
	}
	return "period: invalid input (" + strings.Join(parts, "; ") + ")"
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

func (s *Service) validateStruct(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	out := &ValidationError{Fields: make(map[string]string, len(fieldErrs))}
	for _, fe := range fieldErrs {
		out.Fields[fe.Field()] = fe.Tag()
	}
	return out
}

// ListPeriods returns every period ordered by start date, newest first.
func (s *Service) ListPeriods(ctx context.Context) ([]Period, error) {
	return s.store.ListPeriods(ctx)
}

// GetPeriod returns a single period.
func (s *Service) GetPeriod(ctx context.Context, id string) (Period, error) {
	return s.store.LoadPeriod(ctx, id)
}

// Roster returns the enrollment rows of a period.
func (s *Service) Roster(ctx context.Context, periodID string) ([]MemberPeriod, error) {
	if _, err := s.store.LoadPeriod(ctx, periodID); err != nil {
		return nil, err
	}
	return s.store.Roster(ctx, periodID)
}

// CreatePeriod registers a pending period.
func (s *Service) CreatePeriod(ctx context.Context, actor string, in CreatePeriodInput) (Period, error) {
	in = in.Normalize()
	if err := s.validateStruct(in); err != nil {
		return Period{}, err
	}
	if err := in.Validate(); err != nil {
		return Period{}, err
	}
	var created Period
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		created, err = tx.InsertPeriod(ctx, Period{
			ID:        s.newID(),
			Code:      in.Code,
			Name:      in.Name,
			StartDate: in.StartDate,
			EndDate:   in.EndDate,
		})
		return err
	})
	if err != nil {
		return Period{}, err
	}
	s.record(ctx, Activity{Actor: actor, Action: "PERIOD_CREATED", EntityID: created.ID, Meta: map[string]any{"code": created.Code}})
	return created, nil
}

// Activate makes a pending period the operative one and demotes the previous one.
func (s *Service) Activate(ctx context.Context, actor, id string) (_ Period, err error) {
	defer func() { s.transition("activate", err) }()
	release, err := s.lock(ctx)
	if err != nil {
		return Period{}, err
	}
	defer release(context.WithoutCancel(ctx))

	err = s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		p, err := tx.LoadPeriodForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if p.IsArchived {
			return ErrArchived
		}
		if p.IsActive {
			return ErrAlreadyActive
		}
		if err := tx.DeactivateAll(ctx); err != nil {
			return err
		}
		return tx.Activate(ctx, id)
	})
	if err != nil {
		return Period{}, err
	}
	committed := context.WithoutCancel(ctx)
	s.record(committed, Activity{Actor: actor, Action: "PERIOD_ACTIVATED", EntityID: id})
	return s.store.LoadPeriod(committed, id)
}

// Close archives the active period, activates the pending successor and
// re-enrolls the continuing members in one transaction. Every other
// active member of the closed period becomes alumni.
func (s *Service) Close(ctx context.Context, actor, id string, in ClosePeriodInput) (_ CloseResult, err error) {
	defer func() { s.transition("close", err) }()
	if err := s.validateStruct(in); err != nil {
		return CloseResult{}, err
	}
	if in.NewPeriodID == id {
		return CloseResult{}, ErrSamePeriod
	}
	release, err := s.lock(ctx)
	if err != nil {
		return CloseResult{}, err
	}
	defer release(context.WithoutCancel(ctx))

	var result CloseResult
	err = s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		old, err := tx.LoadPeriodForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if old.IsArchived {
			return ErrArchived
		}
		if !old.IsActive {
			return ErrNotActive
		}
		successor, err := tx.LoadPeriodForUpdate(ctx, in.NewPeriodID)
		if err != nil {
			return fmt.Errorf("load successor: %w", err)
		}
		if !successor.IsPending() {
			return ErrSuccessorNotPending
		}
		enrolled, err := tx.CountMembers(ctx, successor.ID)
		if err != nil {
			return err
		}
		if enrolled > 0 {
			return ErrSuccessorNotEmpty
		}
		roster, err := tx.ActiveRosterForUpdate(ctx, old.ID)
		if err != nil {
			return err
		}
		byID := make(map[string]MemberPeriod, len(roster))
		for _, m := range roster {
			byID[m.MemberID] = m
		}
		continuing := make(map[string]struct{}, len(in.ContinuingMemberIDs))
		for _, memberID := range in.ContinuingMemberIDs {
			if _, ok := byID[memberID]; !ok {
				return fmt.Errorf("%w: %s", ErrUnknownMember, memberID)
			}
			continuing[memberID] = struct{}{}
		}

		if err := tx.Archive(ctx, old.ID); err != nil {
			return err
		}
		if err := tx.Activate(ctx, successor.ID); err != nil {
			return err
		}
		result = CloseResult{Continuing: []string{}, Alumni: []string{}}
		for _, m := range roster {
			if _, ok := continuing[m.MemberID]; !ok {
				result.Alumni = append(result.Alumni, m.MemberID)
				continue
			}
			next := MemberPeriod{MemberID: m.MemberID, Status: MemberStatusActive, Position: m.Position}
			if err := tx.InsertMemberPeriod(ctx, successor.ID, next); err != nil {
				return err
			}
			result.Continuing = append(result.Continuing, m.MemberID)
		}
		if err := tx.MarkAlumni(ctx, old.ID, result.Alumni); err != nil {
			return err
		}
		old.IsActive, old.IsArchived = false, true
		successor.IsActive = true
		result.Archived, result.Activated = old, successor
		return nil
	})
	if err != nil {
		return CloseResult{}, err
	}
	committed := context.WithoutCancel(ctx)
	if archived, err := s.store.LoadPeriod(committed, id); err == nil {
		result.Archived = archived
	}
	if activated, err := s.store.LoadPeriod(committed, in.NewPeriodID); err == nil {
		result.Activated = activated
	}
	s.publish(committed, ClosedEvent{
		PeriodID:      result.Archived.ID,
		PeriodCode:    result.Archived.Code,
		SuccessorID:   result.Activated.ID,
		SuccessorCode: result.Activated.Code,
		Continuing:    result.Continuing,
		Alumni:        result.Alumni,
		Actor:         actor,
		ClosedAt:      s.now().UTC(),
	})
	return result, nil
}

// Delete removes an archived period and everything scoped to it.
func (s *Service) Delete(ctx context.Context, actor, id string) (err error) {
	defer func() { s.transition("delete", err) }()
	release, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer release(context.WithoutCancel(ctx))

	var code string
	err = s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		p, err := tx.LoadPeriodForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !p.IsArchived {
			return ErrNotArchived
		}
		code = p.Code
		return tx.DeletePeriod(ctx, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, Activity{Actor: actor, Action: "PERIOD_DELETED", EntityID: id, Meta: map[string]any{"code": code}})
	return nil
}

// Enroll adds a member to the roster of the active period.
func (s *Service) Enroll(ctx context.Context, actor, periodID string, in EnrollInput) error {
	in.MemberID = strings.TrimSpace(in.MemberID)
	in.Position = strings.TrimSpace(in.Position)
	if err := s.validateStruct(in); err != nil {
		return err
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		p, err := tx.LoadPeriodForUpdate(ctx, periodID)
		if err != nil {
			return err
		}
		if p.IsArchived {
			return ErrArchived
		}
		if !p.IsActive {
			return ErrNotActive
		}
		return tx.InsertMemberPeriod(ctx, periodID, MemberPeriod{MemberID: in.MemberID, Status: MemberStatusActive, Position: in.Position})
	})
	if err != nil {
		return err
	}
	s.record(ctx, Activity{Actor: actor, Action: "MEMBER_ENROLLED", EntityID: periodID, Meta: map[string]any{"member_id": in.MemberID}})
	return nil
}

// EnsureWritable rejects writes scoped to an archived period.
func (s *Service) EnsureWritable(ctx context.Context, periodID string) error {
	p, err := s.store.LoadPeriod(ctx, periodID)
	if err != nil {
		return err
	}
	if p.IsArchived {
		return ErrArchived
	}
	return nil
}

func (s *Service) lock(ctx context.Context) (func(context.Context), error) {
	if s.locker == nil {
		return func(context.Context) {}, nil
	}
	return s.locker.Acquire(ctx, TransitionLockKey, s.lockTTL)
}

func (s *Service) transition(kind string, err error) {
	if s.recorder != nil {
		s.recorder.RecordTransition(kind, transitionOutcome(err))
	}
}

var rejections = []error{
	ErrInvalidInput, ErrNotFound, ErrArchived, ErrNotActive, ErrAlreadyActive, ErrNotArchived,
	ErrSuccessorNotPending, ErrSuccessorNotEmpty, ErrSamePeriod, ErrUnknownMember,
}

// transitionOutcome buckets an error into ok, locked, rejected or error.
func transitionOutcome(err error) string {
	if err == nil {
		return "ok"
	}
	if errors.Is(err, ErrTransitionLocked) {
		return "locked"
	}
	for _, target := range rejections {
		if errors.Is(err, target) {
			return "rejected"
		}
	}
	return "error"
}

// record and publish run after commit and ignore the caller's cancellation.
func (s *Service) record(ctx context.Context, a Activity) {
	if s.activity == nil {
		return
	}
	if err := s.activity.RecordPeriodActivity(context.WithoutCancel(ctx), a); err != nil {
		s.logger.Warn("record period activity", slog.String("action", a.Action), slog.Any("error", err))
	}
}

func (s *Service) publish(ctx context.Context, ev ClosedEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishPeriodClosed(context.WithoutCancel(ctx), ev); err != nil {
		s.logger.Warn("publish period closed", slog.String("period_id", ev.PeriodID), slog.Any("error", err))
	}
}
