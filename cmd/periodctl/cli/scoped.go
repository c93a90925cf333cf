package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/labdesk/labdesk/internal/period"
)

// ScopedOptions defines the flags of the scoped command.
type ScopedOptions struct {
	// Resource is a period-scoped collection such as "projects" or "events".
	Resource string
	// Select views a specific period; empty follows the active one.
	Select string
	Stdout io.Writer
	Stderr io.Writer
}

// ScopedCommand fetches a period-scoped collection for the selected period
// and prints it as indented JSON.
func (c *PeriodCLI) ScopedCommand(ctx context.Context, opts ScopedOptions) int {
	stdout, stderr := defaultWriters(opts.Stdout, opts.Stderr)
	resource := strings.Trim(strings.TrimSpace(opts.Resource), "/")
	if resource == "" {
		_, _ = fmt.Fprintln(stderr, "scoped: resource is required")
		return exitUsage
	}
	if code := c.load(ctx, stderr, "scoped"); code != exitOK {
		return code
	}
	if opts.Select != "" {
		if _, ok := c.dir.Find(opts.Select); !ok {
			report(stderr, "scoped", fmt.Errorf("period %s: %w", opts.Select, period.ErrNotFound))
			return exitError
		}
	}
	c.selection.Select(opts.Select)
	if banner, ok := c.selection.Banner(); ok {
		_, _ = fmt.Fprintln(stderr, banner.Message())
	}

	var out json.RawMessage
	if err := c.api.ListScoped(ctx, resource, c.selection.Scope(), &out); err != nil {
		report(stderr, "scoped", err)
		return exitCode(err)
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		report(stderr, "scoped", fmt.Errorf("encode json: %w", err))
		return exitError
	}
	return exitOK
}
