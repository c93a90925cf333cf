// Package directory caches the period list and derives the active period.
package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/labdesk/labdesk/internal/period"
)

// ErrMultipleActive reports a server that returned more than one active period.
var ErrMultipleActive = errors.New("directory: more than one active period")

// Source fetches the full period list.
type Source interface {
	ListPeriods(ctx context.Context) ([]period.Period, error)
}

// Snapshot is a consistent view of the directory state.
type Snapshot struct {
	Periods   []period.Period
	Loading   bool
	Loaded    bool
	Err       error
	Stale     bool
	Integrity error
}

// Directory holds the period list. It never polls; callers refresh after
// activation, closure or deletion.
type Directory struct {
	source Source
	logger *slog.Logger
	group  singleflight.Group

	mu        sync.RWMutex
	periods   []period.Period
	inflight  int
	started   uint64
	applied   uint64
	loaded    bool
	err       error
	integrity error
}

// New constructs a Directory backed by source.
func New(source Source, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{source: source, logger: logger}
}

// Load fetches all periods. Concurrent calls share one request. On failure
// the error is kept and the previous list, if any, is marked stale.
func (d *Directory) Load(ctx context.Context) error {
	return d.fetch(ctx)
}

// Refresh always starts a new request so that writes made before the call
// are visible. Loads issued afterwards join it.
func (d *Directory) Refresh(ctx context.Context) error {
	d.group.Forget(loadKey)
	return d.fetch(ctx)
}

const loadKey = "periods"

func (d *Directory) fetch(ctx context.Context) error {
	_, err, _ := d.group.Do(loadKey, func() (any, error) {
		seq := d.begin()
		periods, err := d.source.ListPeriods(ctx)
		d.finish(seq, periods, err)
		return nil, err
	})
	return err
}

func (d *Directory) begin() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inflight++
	d.started++
	return d.started
}

// finish applies the result of request seq unless a newer request already
// landed.
func (d *Directory) finish(seq uint64, periods []period.Period, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inflight--
	if seq < d.applied {
		d.logger.Debug("drop superseded period load", slog.Uint64("seq", seq))
		return
	}
	d.applied = seq
	if err != nil {
		d.err = err
		d.logger.Warn("load periods", slog.Any("error", err), slog.Bool("stale", d.loaded))
		return
	}
	if periods == nil {
		periods = []period.Period{}
	}
	d.periods = periods
	d.loaded = true
	d.err = nil
	d.integrity = checkSingleActive(periods)
	if d.integrity != nil {
		d.logger.Warn("period integrity", slog.Any("error", d.integrity))
	}
}

func checkSingleActive(periods []period.Period) error {
	var ids []string
	for _, p := range periods {
		if p.IsActive {
			ids = append(ids, p.ID)
		}
	}
	if len(ids) <= 1 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrMultipleActive, strings.Join(ids, ", "))
}

// Loaded reports whether at least one load succeeded.
func (d *Directory) Loaded() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loaded
}

// Loading reports whether a load is in flight.
func (d *Directory) Loading() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.inflight > 0
}

// Err returns the error of the most recent load, nil after a success.
func (d *Directory) Err() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.err
}

// IntegrityErr wraps ErrMultipleActive when the last list broke the
// single-active rule.
func (d *Directory) IntegrityErr() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.integrity
}

// Periods returns a copy of the list in server order.
func (d *Directory) Periods() []period.Period {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]period.Period(nil), d.periods...)
}

// ActivePeriod returns the first active period by list order.
func (d *Directory) ActivePeriod() (period.Period, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, p := range d.periods {
		if p.IsActive {
			return p, true
		}
	}
	return period.Period{}, false
}

// Find looks a period up by id.
func (d *Directory) Find(id string) (period.Period, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, p := range d.periods {
		if p.ID == id {
			return p, true
		}
	}
	return period.Period{}, false
}

// Pending returns the periods that can become a closure successor.
func (d *Directory) Pending() []period.Period {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]period.Period, 0)
	for _, p := range d.periods {
		if p.IsPending() {
			out = append(out, p)
		}
	}
	return out
}

// Snapshot returns the whole state under one lock.
func (d *Directory) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return Snapshot{
		Periods:   append([]period.Period(nil), d.periods...),
		Loading:   d.inflight > 0,
		Loaded:    d.loaded,
		Err:       d.err,
		Stale:     d.err != nil && d.loaded,
		Integrity: d.integrity,
	}
}
