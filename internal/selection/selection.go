// Package selection tracks which period the dashboard is looking at and
// whether it may be changed.
package selection

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/labdesk/labdesk/internal/period"
)

// ScopeParam is the query parameter consumers append to scoped requests.
const ScopeParam = "periodId"

var (
	// ErrNotReady is returned before the directory finished its first load.
	ErrNotReady = errors.New("selection: periods not loaded yet")
	// ErrNoActivePeriod is returned when following the active period and there is none.
	ErrNoActivePeriod = errors.New("selection: no active period")
	// ErrReadOnly is returned when a mutating action targets an archived period.
	ErrReadOnly = errors.New("selection: archived period is read-only")
)

// Selection is either FollowActive or Explicit.
type Selection interface {
	selection()
}

// FollowActive defers to whichever period is active.
type FollowActive struct{}

// Explicit pins a period by id.
type Explicit struct {
	ID string
}

func (FollowActive) selection() {}
func (Explicit) selection()     {}

// Directory is the subset of the period directory the context reads.
type Directory interface {
	Loaded() bool
	Find(id string) (period.Period, bool)
	ActivePeriod() (period.Period, bool)
	Periods() []period.Period
}

// Action is something a screen may offer on period-scoped data.
type Action string

const (
	ActionView     Action = "view"
	ActionNavigate Action = "navigate"
	ActionCreate   Action = "create"
	ActionEdit     Action = "edit"
	ActionDelete   Action = "delete"
	ActionArchive  Action = "archive"
)

// Mutates reports whether the action changes data.
func (a Action) Mutates() bool {
	switch a {
	case ActionView, ActionNavigate:
		return false
	default:
		return true
	}
}

// Context is the single owner of the current selection. Last write wins.
type Context struct {
	dir    Directory
	logger *slog.Logger

	mu        sync.Mutex
	sel       Selection
	dismissed string
}

// New returns a Context following the active period.
func New(dir Directory, logger *slog.Logger) *Context {
	if logger == nil {
		logger = slog.Default()
	}
	return &Context{dir: dir, logger: logger, sel: FollowActive{}}
}

// Select pins id, or follows the active period when id is empty. An id
// missing from a loaded directory falls back to the active period.
func (c *Context) Select(id string) {
	if id == "" {
		c.Set(FollowActive{})
		return
	}
	c.Set(Explicit{ID: id})
}

// Set replaces the selection. nil means FollowActive.
func (c *Context) Set(sel Selection) {
	if sel == nil {
		sel = FollowActive{}
	}
	if ex, ok := sel.(Explicit); ok && c.dir.Loaded() {
		if _, found := c.dir.Find(ex.ID); !found {
			c.logger.Warn("select unknown period, following active", slog.String("period_id", ex.ID))
			sel = FollowActive{}
		}
	}
	c.mu.Lock()
	c.sel = sel
	c.mu.Unlock()
}

// ReturnToActive clears any explicit selection.
func (c *Context) ReturnToActive() {
	c.Set(FollowActive{})
}

// Current returns the raw selection.
func (c *Context) Current() Selection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sel
}

// Resolve returns the period the selection points at.
func (c *Context) Resolve() (period.Period, error) {
	if !c.dir.Loaded() {
		return period.Period{}, ErrNotReady
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	switch sel := c.sel.(type) {
	case Explicit:
		if p, ok := c.dir.Find(sel.ID); ok {
			return p, nil
		}
		c.logger.Warn("selected period disappeared, following active", slog.String("period_id", sel.ID))
		c.sel = FollowActive{}
	case FollowActive:
	default:
		panic(fmt.Sprintf("selection: unexpected %T", sel))
	}
	if p, ok := c.dir.ActivePeriod(); ok {
		return p, nil
	}
	return period.Period{}, ErrNoActivePeriod
}

// SelectedID returns the resolved period id, or "" when nothing resolves.
func (c *Context) SelectedID() string {
	p, err := c.Resolve()
	if err != nil {
		return ""
	}
	return p.ID
}

// IsReadOnly reports whether the resolved period is archived.
func (c *Context) IsReadOnly() bool {
	p, err := c.Resolve()
	return err == nil && p.IsArchived
}

// Guard returns nil when action is allowed on the current selection.
// Viewing and navigating are always allowed.
func (c *Context) Guard(action Action) error {
	if !action.Mutates() {
		return nil
	}
	p, err := c.Resolve()
	if err != nil {
		return err
	}
	if p.IsArchived {
		return fmt.Errorf("%w: %s", ErrReadOnly, p.Code)
	}
	return nil
}

// Permits is Guard as a boolean.
func (c *Context) Permits(action Action) bool {
	return c.Guard(action) == nil
}

// Scope returns the query values for a scoped request. Following the
// active period sends no filter so the server applies its own.
func (c *Context) Scope() url.Values {
	values := url.Values{}
	if !c.dir.Loaded() {
		return values
	}
	if ex, ok := c.Current().(Explicit); ok {
		if p, found := c.dir.Find(ex.ID); found {
			values.Set(ScopeParam, p.ID)
		}
	}
	return values
}

// Banner is the notice shown while viewing a period other than the active one.
type Banner struct {
	Period   period.Period
	ReadOnly bool
}

// Message renders the banner text.
func (b Banner) Message() string {
	msg := "Melihat data periode " + b.Period.Code
	if b.ReadOnly {
		msg += " (Arsip - Read Only)"
	}
	return msg
}

// Banner returns the notice, if one should be shown.
func (c *Context) Banner() (Banner, bool) {
	p, err := c.Resolve()
	if err != nil {
		return Banner{}, false
	}
	active, ok := c.dir.ActivePeriod()
	if !ok || active.ID == p.ID {
		return Banner{}, false
	}
	c.mu.Lock()
	dismissed := c.dismissed == p.ID
	c.mu.Unlock()
	if dismissed {
		return Banner{}, false
	}
	return Banner{Period: p, ReadOnly: p.IsArchived}, true
}

// DismissBanner hides the banner until a different period is selected.
func (c *Context) DismissBanner() {
	id := c.SelectedID()
	c.mu.Lock()
	c.dismissed = id
	c.mu.Unlock()
}

// Option is one entry of the period selector.
type Option struct {
	ID       string
	Label    string
	Selected bool
}

// Options lists the selector entries in directory order.
func (c *Context) Options() []Option {
	selected := c.SelectedID()
	periods := c.dir.Periods()
	out := make([]Option, 0, len(periods))
	for _, p := range periods {
		out = append(out, Option{ID: p.ID, Label: OptionLabel(p), Selected: p.ID == selected})
	}
	return out
}

// OptionLabel is the selector label for p.
func OptionLabel(p period.Period) string {
	switch {
	case p.IsActive:
		return p.Code + " ✓"
	case p.IsArchived:
		return p.Code + " (Arsip)"
	default:
		return p.Code
	}
}
