// Package console holds the admin actions of the period management screen.
package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/labdesk/labdesk/internal/closure"
	"github.com/labdesk/labdesk/internal/period"
)

var (
	// ErrFormIncomplete mirrors the create form's required-field message.
	ErrFormIncomplete = errors.New("Mohon lengkapi semua field")
	// ErrFormDateOrder mirrors the create form's date-order message.
	ErrFormDateOrder = errors.New("Tanggal mulai tidak boleh setelah tanggal selesai")
	// ErrActionUnavailable is returned for an action the period's state does not offer.
	ErrActionUnavailable = errors.New("console: action not available for this period")
	// ErrNotAdmin is returned for admin actions attempted by other roles.
	ErrNotAdmin = errors.New("console: admin role required")
	// ErrNotConfirmed is returned when a delete was not explicitly confirmed.
	ErrNotConfirmed = errors.New("console: deletion must be confirmed")
)

// API is the remote side of the period screen.
type API interface {
	closure.API
	CreatePeriod(ctx context.Context, in period.CreatePeriodInput) (period.Period, error)
	ActivatePeriod(ctx context.Context, id string) error
	DeletePeriod(ctx context.Context, id string) error
}

// Directory is the period list the console reads and refreshes.
type Directory interface {
	closure.Directory
	Periods() []period.Period
}

// Selector receives "view archive" selections.
type Selector interface {
	Select(id string)
}

// Config wires a Console.
type Config struct {
	API       API
	Directory Directory
	Selection Selector
	Gate      *Gate
	Logger    *slog.Logger
	IsAdmin   bool
}

// Console runs the period screen actions. Mutations share one Gate so a
// second request is refused while the first is outstanding.
type Console struct {
	api     API
	dir     Directory
	sel     Selector
	gate    *Gate
	logger  *slog.Logger
	isAdmin bool
}

// New constructs a Console.
func New(cfg Config) *Console {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gate := cfg.Gate
	if gate == nil {
		gate = &Gate{}
	}
	return &Console{api: cfg.API, dir: cfg.Directory, sel: cfg.Selection, gate: gate, logger: logger, isAdmin: cfg.IsAdmin}
}

// Gate exposes the shared in-flight guard.
func (c *Console) Gate() *Gate { return c.gate }

// PrepareCreate trims the form, fills a suggested name and checks it
// before any request is sent.
func PrepareCreate(in period.CreatePeriodInput) (period.CreatePeriodInput, error) {
	in = in.Normalize()
	if in.Name == "" {
		in.Name = period.SuggestName(in.Code)
	}
	if in.Code == "" || in.Name == "" || in.StartDate.IsZero() || in.EndDate.IsZero() {
		return in, ErrFormIncomplete
	}
	if in.StartDate.After(in.EndDate.Time) {
		return in, ErrFormDateOrder
	}
	return in, nil
}

// Create registers a pending period and refreshes the directory.
func (c *Console) Create(ctx context.Context, in period.CreatePeriodInput) (period.Period, error) {
	if !c.isAdmin {
		return period.Period{}, ErrNotAdmin
	}
	in, err := PrepareCreate(in)
	if err != nil {
		return period.Period{}, err
	}
	done, err := c.gate.Begin("create")
	if err != nil {
		return period.Period{}, err
	}
	defer done()

	created, err := c.api.CreatePeriod(context.WithoutCancel(ctx), in)
	if err != nil {
		return period.Period{}, err
	}
	c.refresh(ctx)
	return created, nil
}

// Activate makes a pending period the active one.
func (c *Console) Activate(ctx context.Context, id string) error {
	p, err := c.lookup(id)
	if err != nil {
		return err
	}
	if !c.allowed(p, ActionActivate) {
		return c.unavailable(p, ActionActivate)
	}
	done, err := c.gate.Begin("activate")
	if err != nil {
		return err
	}
	defer done()

	if err := c.api.ActivatePeriod(context.WithoutCancel(ctx), id); err != nil {
		return err
	}
	c.refresh(ctx)
	return nil
}

// Delete removes an archived period after explicit confirmation.
func (c *Console) Delete(ctx context.Context, id string, confirmed bool) error {
	p, err := c.lookup(id)
	if err != nil {
		return err
	}
	if !c.allowed(p, ActionDelete) {
		return c.unavailable(p, ActionDelete)
	}
	if !confirmed {
		return ErrNotConfirmed
	}
	done, err := c.gate.Begin("delete")
	if err != nil {
		return err
	}
	defer done()

	if err := c.api.DeletePeriod(context.WithoutCancel(ctx), id); err != nil {
		return err
	}
	c.refresh(ctx)
	return nil
}

// ViewArchive selects an archived period for read-only browsing.
func (c *Console) ViewArchive(id string) error {
	p, err := c.lookup(id)
	if err != nil {
		return err
	}
	if !c.allowed(p, ActionViewArchive) {
		return c.unavailable(p, ActionViewArchive)
	}
	if c.sel != nil {
		c.sel.Select(id)
	}
	return nil
}

// BeginClosure opens the closure workflow for the active period.
func (c *Console) BeginClosure(ctx context.Context, id string) (*closure.Workflow, error) {
	p, err := c.lookup(id)
	if err != nil {
		return nil, err
	}
	if !c.allowed(p, ActionClose) {
		return nil, c.unavailable(p, ActionClose)
	}
	return closure.Open(ctx, closure.Config{API: c.api, Directory: c.dir, Gate: c.gate, Logger: c.logger}, id)
}

// Actions lists what the screen offers for p.
func (c *Console) Actions(p period.Period) []Action {
	return Actions(p, c.isAdmin)
}

func (c *Console) allowed(p period.Period, action Action) bool {
	for _, a := range Actions(p, c.isAdmin) {
		if a == action {
			return true
		}
	}
	return false
}

func (c *Console) unavailable(p period.Period, action Action) error {
	if !c.isAdmin && action != ActionViewArchive {
		return ErrNotAdmin
	}
	return fmt.Errorf("%w: %s on %s (%s)", ErrActionUnavailable, action, p.Code, p.StatusLabel())
}

func (c *Console) lookup(id string) (period.Period, error) {
	p, ok := c.dir.Find(id)
	if !ok {
		return period.Period{}, fmt.Errorf("console: period %s: %w", id, period.ErrNotFound)
	}
	return p, nil
}

func (c *Console) refresh(ctx context.Context) {
	if err := c.dir.Refresh(context.WithoutCancel(ctx)); err != nil {
		c.logger.Warn("refresh periods", slog.Any("error", err))
	}
}
