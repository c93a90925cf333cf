package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/labdesk/labdesk/internal/closure"
)

// CloseOptions defines the flags of the close command.
type CloseOptions struct {
	ID string
	// Successor is the pending period to activate. It may be omitted when
	// exactly one pending period exists.
	Successor string
	// Exclude lists member ids that graduate instead of continuing.
	Exclude []string
	DryRun  bool
	Stdout  io.Writer
	Stderr  io.Writer
}

// CloseCommand archives the active period and activates its successor in
// one request. Every active member continues unless excluded.
func (c *PeriodCLI) CloseCommand(ctx context.Context, opts CloseOptions) int {
	stdout, stderr := defaultWriters(opts.Stdout, opts.Stderr)
	if code := c.load(ctx, stderr, "close"); code != exitOK {
		return code
	}
	if strings.TrimSpace(opts.ID) == "" {
		active, ok := c.dir.ActivePeriod()
		if !ok {
			_, _ = fmt.Fprintln(stderr, "close: no active period")
			return exitError
		}
		opts.ID = active.ID
	}

	wf, err := c.console.BeginClosure(ctx, opts.ID)
	if wf == nil {
		report(stderr, "close", err)
		return exitCode(err)
	}
	if err != nil {
		report(stderr, "close", fmt.Errorf("load members: %w", err))
		return exitCode(err)
	}

	for _, id := range opts.Exclude {
		if err := wf.Set(id, false); err != nil {
			report(stderr, "close", err)
			return exitUsage
		}
	}

	successor := strings.TrimSpace(opts.Successor)
	candidates := wf.Candidates()
	if successor == "" && len(candidates) == 1 {
		successor = candidates[0].ID
	}
	if successor == "" {
		if len(candidates) == 0 {
			report(stderr, "close", closure.ErrNoSuccessorAvailable)
			return exitError
		}
		codes := make([]string, len(candidates))
		for i, p := range candidates {
			codes[i] = p.Code + " (" + p.ID + ")"
		}
		report(stderr, "close", fmt.Errorf("%w: %s", closure.ErrSuccessorRequired, strings.Join(codes, ", ")))
		return exitUsage
	}
	if err := wf.ChooseSuccessor(successor); err != nil {
		report(stderr, "close", err)
		if errors.Is(err, closure.ErrInvalidSuccessor) {
			return exitUsage
		}
		return exitError
	}

	closing := wf.Period()
	next, _ := c.dir.Find(wf.Successor())
	_, _ = fmt.Fprintf(stdout, "Tutup periode %s, lanjut ke %s.\n", closing.Code, next.Code)
	_, _ = fmt.Fprintf(stdout, "Anggota lanjut: %d, menjadi alumni: %d.\n", wf.ContinuingCount(), wf.AlumniCount())
	for _, m := range wf.Roster() {
		if !wf.IsContinuing(m.MemberID) {
			_, _ = fmt.Fprintf(stdout, "  alumni: %s (%s)\n", m.MemberName, m.MemberNIM)
		}
	}
	if opts.DryRun {
		return exitOK
	}

	result, err := wf.Submit(ctx)
	if err != nil {
		report(stderr, "close", err)
		return exitCode(err)
	}
	if result.RefreshErr != nil {
		_, _ = fmt.Fprintf(stderr, "close: warning: refresh periods: %v\n", result.RefreshErr)
	}
	_, _ = fmt.Fprintf(stdout, "Periode %s ditutup.\n", closing.Code)
	return exitOK
}
