// Package closure drives the admin flow that archives the active period,
// activates a successor and decides which members continue.
package closure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/labdesk/labdesk/internal/period"
)

var (
	// ErrPeriodNotActive is returned when opening a closure on a non-active period.
	ErrPeriodNotActive = errors.New("closure: only the active period can be closed")
	// ErrNoSuccessorAvailable blocks a closure while no pending period exists.
	ErrNoSuccessorAvailable = errors.New("closure: no pending successor period, create one first")
	// ErrSuccessorRequired is returned on submit before a successor was chosen.
	ErrSuccessorRequired = errors.New("closure: choose a successor period")
	// ErrInvalidSuccessor is returned for a successor that is not pending.
	ErrInvalidSuccessor = errors.New("closure: successor must be a pending period")
	// ErrRosterNotLoaded blocks submission until the roster fetch succeeded.
	ErrRosterNotLoaded = errors.New("closure: member roster not loaded")
	// ErrSubmissionInFlight rejects a second submit while one is outstanding.
	ErrSubmissionInFlight = errors.New("closure: submission already in progress")
	// ErrAlreadyCommitted rejects edits after the closure committed.
	ErrAlreadyCommitted = errors.New("closure: already committed")
	// ErrUnknownMember is returned when toggling a member outside the roster.
	ErrUnknownMember = errors.New("closure: member not in roster")
)

// API is the remote side of the workflow.
type API interface {
	PeriodMembers(ctx context.Context, periodID string) ([]period.MemberPeriod, error)
	ClosePeriod(ctx context.Context, periodID string, in period.ClosePeriodInput) error
}

// Directory supplies successor candidates and is refreshed after a commit.
type Directory interface {
	Find(id string) (period.Period, bool)
	Pending() []period.Period
	Refresh(ctx context.Context) error
}

// Gate serialises lifecycle requests issued from one dashboard.
type Gate interface {
	Begin(op string) (done func(), err error)
}

// Stage is the workflow position.
type Stage int

const (
	StageOpening Stage = iota
	StageSelecting
	StageSubmitting
	StageCommitted
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageOpening:
		return "opening"
	case StageSelecting:
		return "selecting"
	case StageSubmitting:
		return "submitting"
	case StageCommitted:
		return "committed"
	case StageFailed:
		return "failed"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Config carries the collaborators of a workflow.
type Config struct {
	API       API
	Directory Directory
	Gate      Gate
	Logger    *slog.Logger
}

// Result describes a committed closure.
type Result struct {
	PeriodID            string
	SuccessorID         string
	ContinuingMemberIDs []string
	AlumniCount         int
	// RefreshErr is set when the commit succeeded but the directory reload did not.
	RefreshErr error
}

// Workflow holds one closure from opening to commit.
type Workflow struct {
	cfg    Config
	logger *slog.Logger

	mu          sync.Mutex
	stage       Stage
	period      period.Period
	roster      []period.MemberPeriod
	continuing  map[string]bool
	successorID string
	err         error
}

// Open starts a closure of periodID and fetches its roster. A roster
// failure leaves the workflow in StageFailed; call Reload to retry.
func Open(ctx context.Context, cfg Config, periodID string) (*Workflow, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p, ok := cfg.Directory.Find(periodID)
	if !ok {
		return nil, fmt.Errorf("closure: period %s: %w", periodID, period.ErrNotFound)
	}
	if !p.IsActive || p.IsArchived {
		return nil, ErrPeriodNotActive
	}
	w := &Workflow{cfg: cfg, logger: logger.With(slog.String("period_id", p.ID)), stage: StageOpening, period: p}
	return w, w.Reload(ctx)
}

// Reload fetches the roster again and resets the selection to everyone.
// Repeated rows for one member are kept once.
func (w *Workflow) Reload(ctx context.Context) error {
	w.mu.Lock()
	switch w.stage {
	case StageSubmitting:
		w.mu.Unlock()
		return ErrSubmissionInFlight
	case StageCommitted:
		w.mu.Unlock()
		return ErrAlreadyCommitted
	}
	w.stage = StageOpening
	w.mu.Unlock()

	rows, err := w.cfg.API.PeriodMembers(ctx, w.period.ID)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.stage = StageFailed
		w.roster = nil
		w.continuing = nil
		w.err = err
		w.logger.Warn("load closure roster", slog.Any("error", err))
		return err
	}
	roster := make([]period.MemberPeriod, 0, len(rows))
	continuing := make(map[string]bool, len(rows))
	for _, m := range rows {
		if m.Status != period.MemberStatusActive {
			continue
		}
		if continuing[m.MemberID] {
			w.logger.Warn("duplicate roster row", slog.String("member_id", m.MemberID))
			continue
		}
		roster = append(roster, m)
		continuing[m.MemberID] = true
	}
	w.roster = roster
	w.continuing = continuing
	w.err = nil
	w.stage = StageSelecting
	return nil
}

// Period is the period being closed.
func (w *Workflow) Period() period.Period {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.period
}

// Stage returns the current stage.
func (w *Workflow) Stage() Stage {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stage
}

// Err returns the last roster or commit error.
func (w *Workflow) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Roster returns the active members offered for continuation.
func (w *Workflow) Roster() []period.MemberPeriod {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]period.MemberPeriod(nil), w.roster...)
}

// IsContinuing reports whether memberID is selected to continue.
func (w *Workflow) IsContinuing(memberID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.continuing[memberID]
}

// Toggle flips the continuation choice of one member.
func (w *Workflow) Toggle(memberID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editableLocked(); err != nil {
		return err
	}
	if !w.inRosterLocked(memberID) {
		return fmt.Errorf("%w: %s", ErrUnknownMember, memberID)
	}
	if w.continuing[memberID] {
		delete(w.continuing, memberID)
	} else {
		w.continuing[memberID] = true
	}
	return nil
}

// Set marks one member as continuing or not.
func (w *Workflow) Set(memberID string, continuing bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editableLocked(); err != nil {
		return err
	}
	if !w.inRosterLocked(memberID) {
		return fmt.Errorf("%w: %s", ErrUnknownMember, memberID)
	}
	if continuing {
		w.continuing[memberID] = true
	} else {
		delete(w.continuing, memberID)
	}
	return nil
}

// ToggleAll selects everyone, or clears the selection when everyone was selected.
func (w *Workflow) ToggleAll() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editableLocked(); err != nil {
		return err
	}
	if len(w.continuing) == len(w.roster) {
		w.continuing = make(map[string]bool, len(w.roster))
		return nil
	}
	for _, m := range w.roster {
		w.continuing[m.MemberID] = true
	}
	return nil
}

// ContinuingCount is the size of the continuing selection.
func (w *Workflow) ContinuingCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.continuing)
}

// AlumniCount is the number of roster members that will become alumni.
func (w *Workflow) AlumniCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.roster) - len(w.continuing)
}

// ContinuingIDs returns the selected member ids in roster order.
func (w *Workflow) ContinuingIDs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.continuingIDsLocked()
}

// Candidates lists the pending periods that may succeed the closed one.
func (w *Workflow) Candidates() []period.Period {
	return w.cfg.Directory.Pending()
}

// ChooseSuccessor picks the period to activate on commit.
func (w *Workflow) ChooseSuccessor(id string) error {
	candidates := w.cfg.Directory.Pending()
	if len(candidates) == 0 {
		return ErrNoSuccessorAvailable
	}
	found := false
	for _, p := range candidates {
		if p.ID == id {
			found = true
			break
		}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editableLocked(); err != nil && !errors.Is(err, ErrRosterNotLoaded) {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrInvalidSuccessor, id)
	}
	w.successorID = id
	return nil
}

// Successor returns the chosen successor id.
func (w *Workflow) Successor() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.successorID
}

// Submit sends the closure as one request. The request is not cancelled by
// ctx once sent. On failure nothing local changes and Submit may be retried.
func (w *Workflow) Submit(ctx context.Context) (Result, error) {
	w.mu.Lock()
	if err := w.editableLocked(); err != nil {
		w.mu.Unlock()
		return Result{}, err
	}
	if w.successorID == "" {
		w.mu.Unlock()
		if len(w.cfg.Directory.Pending()) == 0 {
			return Result{}, ErrNoSuccessorAvailable
		}
		return Result{}, ErrSuccessorRequired
	}
	successor, ok := w.cfg.Directory.Find(w.successorID)
	if !ok || !successor.IsPending() {
		w.mu.Unlock()
		return Result{}, fmt.Errorf("%w: %s", ErrInvalidSuccessor, w.successorID)
	}
	var done func()
	if w.cfg.Gate != nil {
		var err error
		if done, err = w.cfg.Gate.Begin("close"); err != nil {
			w.mu.Unlock()
			return Result{}, err
		}
	}
	in := period.ClosePeriodInput{NewPeriodID: w.successorID, ContinuingMemberIDs: w.continuingIDsLocked()}
	alumni := len(w.roster) - len(w.continuing)
	w.stage = StageSubmitting
	w.mu.Unlock()

	err := w.cfg.API.ClosePeriod(context.WithoutCancel(ctx), w.period.ID, in)
	if done != nil {
		done()
	}

	w.mu.Lock()
	if err != nil {
		w.stage = StageSelecting
		w.err = err
		w.mu.Unlock()
		w.logger.Warn("close period", slog.Any("error", err))
		return Result{}, err
	}
	w.stage = StageCommitted
	w.err = nil
	w.mu.Unlock()

	result := Result{
		PeriodID:            w.period.ID,
		SuccessorID:         in.NewPeriodID,
		ContinuingMemberIDs: in.ContinuingMemberIDs,
		AlumniCount:         alumni,
	}
	if err := w.cfg.Directory.Refresh(context.WithoutCancel(ctx)); err != nil {
		w.logger.Warn("refresh periods after closure", slog.Any("error", err))
		result.RefreshErr = err
	}
	w.logger.Info("period closed", slog.String("successor_id", result.SuccessorID), slog.Int("continuing", len(result.ContinuingMemberIDs)), slog.Int("alumni", alumni))
	return result, nil
}

func (w *Workflow) editableLocked() error {
	switch w.stage {
	case StageSelecting:
		return nil
	case StageSubmitting:
		return ErrSubmissionInFlight
	case StageCommitted:
		return ErrAlreadyCommitted
	default:
		return ErrRosterNotLoaded
	}
}

func (w *Workflow) inRosterLocked(memberID string) bool {
	for _, m := range w.roster {
		if m.MemberID == memberID {
			return true
		}
	}
	return false
}

func (w *Workflow) continuingIDsLocked() []string {
	ids := make([]string, 0, len(w.continuing))
	for _, m := range w.roster {
		if w.continuing[m.MemberID] {
			ids = append(ids, m.MemberID)
		}
	}
	return ids
}
