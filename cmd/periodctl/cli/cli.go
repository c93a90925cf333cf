package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"

	"github.com/labdesk/labdesk/internal/console"
	"github.com/labdesk/labdesk/internal/directory"
	"github.com/labdesk/labdesk/internal/period"
	"github.com/labdesk/labdesk/internal/periodapi"
	"github.com/labdesk/labdesk/internal/selection"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
	// exitUnauthorized signals the token was rejected and has been cleared.
	exitUnauthorized = 3
)

// Backend is the remote API the CLI drives. *periodapi.Client satisfies it.
type Backend interface {
	console.API
	directory.Source
	AddMember(ctx context.Context, periodID string, in period.EnrollInput) error
	ListScoped(ctx context.Context, resource string, query url.Values, out any) error
}

// PeriodCLI runs the period management commands against one backend.
type PeriodCLI struct {
	api       Backend
	dir       *directory.Directory
	selection *selection.Context
	console   *console.Console
	logger    *slog.Logger
}

// NewPeriodCLI wires the directory, selection context and console on top of api.
func NewPeriodCLI(api Backend, logger *slog.Logger, isAdmin bool) (*PeriodCLI, error) {
	if api == nil {
		return nil, errors.New("period cli: backend not configured")
	}
	if logger == nil {
		logger = slog.Default()
	}
	dir := directory.New(api, logger)
	sel := selection.New(dir, logger)
	return &PeriodCLI{
		api:       api,
		dir:       dir,
		selection: sel,
		console: console.New(console.Config{
			API:       api,
			Directory: dir,
			Selection: sel,
			Logger:    logger,
			IsAdmin:   isAdmin,
		}),
		logger: logger,
	}, nil
}

// NewRemote builds a PeriodCLI for the HTTP API. The admin role follows
// whether a token is configured.
func NewRemote(baseURL, token string, logger *slog.Logger, opts ...periodapi.Option) (*PeriodCLI, error) {
	opts = append([]periodapi.Option{periodapi.WithToken(token)}, opts...)
	return NewPeriodCLI(periodapi.NewClient(baseURL, opts...), logger, token != "")
}

// load fetches the directory. The list is required by every command.
func (c *PeriodCLI) load(ctx context.Context, stderr io.Writer, cmd string) int {
	if err := c.dir.Load(ctx); err != nil {
		report(stderr, cmd, err)
		return exitCode(err)
	}
	if err := c.dir.IntegrityErr(); err != nil {
		_, _ = fmt.Fprintf(stderr, "%s: warning: %v\n", cmd, err)
	}
	return exitOK
}

func defaultWriters(stdout, stderr io.Writer) (io.Writer, io.Writer) {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return stdout, stderr
}

func report(stderr io.Writer, cmd string, err error) {
	_, _ = fmt.Fprintf(stderr, "%s: %v\n", cmd, err)
}

func exitCode(err error) int {
	if errors.Is(err, periodapi.ErrUnauthorized) {
		return exitUnauthorized
	}
	return exitError
}
