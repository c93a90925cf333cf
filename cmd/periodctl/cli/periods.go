package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/labdesk/labdesk/internal/console"
	"github.com/labdesk/labdesk/internal/period"
	"github.com/labdesk/labdesk/internal/selection"
)

// ListOptions defines the flags of the list command.
type ListOptions struct {
	// Select views a specific period; empty follows the active one.
	Select     string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// ListEntry is one row of the JSON output.
type ListEntry struct {
	period.Period
	Label    string   `json:"label"`
	Status   string   `json:"status"`
	Selected bool     `json:"selected"`
	Actions  []string `json:"actions"`
}

// ListCommand prints the period directory with the selector state.
func (c *PeriodCLI) ListCommand(ctx context.Context, opts ListOptions) int {
	stdout, stderr := defaultWriters(opts.Stdout, opts.Stderr)
	if code := c.load(ctx, stderr, "list"); code != exitOK {
		return code
	}
	c.selection.Select(opts.Select)

	selected := c.selection.SelectedID()
	periods := c.dir.Periods()
	entries := make([]ListEntry, 0, len(periods))
	for _, p := range periods {
		actions := c.console.Actions(p)
		names := make([]string, len(actions))
		for i, a := range actions {
			names[i] = string(a)
		}
		entries = append(entries, ListEntry{
			Period:   p,
			Label:    selection.OptionLabel(p),
			Status:   p.StatusLabel(),
			Selected: p.ID == selected,
			Actions:  names,
		})
	}

	if opts.JSONOutput {
		if err := json.NewEncoder(stdout).Encode(entries); err != nil {
			report(stderr, "list", fmt.Errorf("encode json: %w", err))
			return exitError
		}
		return exitOK
	}

	if banner, ok := c.selection.Banner(); ok {
		_, _ = fmt.Fprintln(stdout, banner.Message())
	}
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(stdout, "Belum ada periode.")
		return exitOK
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "\tPERIODE\tNAMA\tMULAI\tSELESAI\tSTATUS\tANGGOTA\tAKSI")
	for _, e := range entries {
		marker := ""
		if e.Selected {
			marker = "*"
		}
		labels := make([]string, 0, len(e.Actions))
		for _, a := range e.Actions {
			labels = append(labels, console.Action(a).Label())
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			marker, e.Label, e.Name, e.StartDate, e.EndDate, e.Status, e.TotalMembers, strings.Join(labels, ", "))
	}
	if err := tw.Flush(); err != nil {
		report(stderr, "list", err)
		return exitError
	}
	return exitOK
}

// CreateOptions defines the flags of the create command.
type CreateOptions struct {
	Code      string
	Name      string
	StartDate string
	EndDate   string
	Stdout    io.Writer
	Stderr    io.Writer
}

// CreateCommand registers a pending period.
func (c *PeriodCLI) CreateCommand(ctx context.Context, opts CreateOptions) int {
	stdout, stderr := defaultWriters(opts.Stdout, opts.Stderr)
	start, err := period.ParseDate(opts.StartDate)
	if err != nil {
		report(stderr, "create", err)
		return exitUsage
	}
	end, err := period.ParseDate(opts.EndDate)
	if err != nil {
		report(stderr, "create", err)
		return exitUsage
	}
	in, err := console.PrepareCreate(period.CreatePeriodInput{Code: opts.Code, Name: opts.Name, StartDate: start, EndDate: end})
	if err != nil {
		report(stderr, "create", err)
		return exitUsage
	}
	if code := c.load(ctx, stderr, "create"); code != exitOK {
		return code
	}
	created, err := c.console.Create(ctx, in)
	if err != nil {
		report(stderr, "create", err)
		return exitCode(err)
	}
	_, _ = fmt.Fprintf(stdout, "Periode %s (%s) dibuat dengan id %s.\n", created.Code, created.Name, created.ID)
	return exitOK
}

// IDOptions is shared by commands acting on a single period.
type IDOptions struct {
	ID     string
	Stdout io.Writer
	Stderr io.Writer
}

// ActivateCommand makes a pending period the active one.
func (c *PeriodCLI) ActivateCommand(ctx context.Context, opts IDOptions) int {
	stdout, stderr := defaultWriters(opts.Stdout, opts.Stderr)
	if strings.TrimSpace(opts.ID) == "" {
		_, _ = fmt.Fprintln(stderr, "activate: period id is required")
		return exitUsage
	}
	if code := c.load(ctx, stderr, "activate"); code != exitOK {
		return code
	}
	if err := c.console.Activate(ctx, opts.ID); err != nil {
		report(stderr, "activate", err)
		return exitCode(err)
	}
	if active, ok := c.dir.ActivePeriod(); ok {
		_, _ = fmt.Fprintf(stdout, "Periode aktif sekarang %s.\n", active.Code)
	}
	return exitOK
}

// DeleteOptions defines the flags of the delete command.
type DeleteOptions struct {
	ID string
	// Yes skips the interactive confirmation.
	Yes    bool
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// DeleteCommand removes an archived period after confirmation.
func (c *PeriodCLI) DeleteCommand(ctx context.Context, opts DeleteOptions) int {
	stdout, stderr := defaultWriters(opts.Stdout, opts.Stderr)
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if strings.TrimSpace(opts.ID) == "" {
		_, _ = fmt.Fprintln(stderr, "delete: period id is required")
		return exitUsage
	}
	if code := c.load(ctx, stderr, "delete"); code != exitOK {
		return code
	}
	p, ok := c.dir.Find(opts.ID)
	if !ok {
		report(stderr, "delete", fmt.Errorf("period %s: %w", opts.ID, period.ErrNotFound))
		return exitError
	}
	confirmed := opts.Yes
	if !confirmed && p.IsArchived {
		_, _ = fmt.Fprintln(stdout, console.DeleteSummary(p))
		_, _ = fmt.Fprint(stdout, "Lanjutkan? [y/N] ")
		confirmed = readConfirmation(opts.Stdin)
	}
	if err := c.console.Delete(ctx, opts.ID, confirmed); err != nil {
		report(stderr, "delete", err)
		return exitCode(err)
	}
	_, _ = fmt.Fprintf(stdout, "Periode %s dihapus.\n", p.Code)
	return exitOK
}

func readConfirmation(r io.Reader) bool {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "ya", "yes":
		return true
	default:
		return false
	}
}
