package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/labdesk/labdesk/cmd/periodctl/cli"
	"github.com/labdesk/labdesk/internal/app"
	"github.com/labdesk/labdesk/internal/periodapi"
)

const usage = `usage: periodctl <command> [flags]

commands:
  list       list periods (--select ID, --json)
  create     create a pending period (--code, --name, --start, --end)
  activate   activate a pending period (--id)
  close      close the active period (--successor ID, --exclude MEMBER_ID ..., --dry-run)
  delete     delete an archived period (--id, --yes)
  members    print a period roster (--id, --json)
  enroll     add a member to the active period (--member, --position)
  scoped     fetch a period-scoped resource (--resource, --select ID)
`

// stringList collects a repeatable flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*s = append(*s, part)
		}
	}
	return nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}

	cfg, err := app.LoadClientConfig()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	logger := app.NewLoggerTo(stderr, cfg.LogFormat, false).With(slog.String("component", "periodctl"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	periods, err := cli.NewRemote(cfg.APIURL, cfg.APIToken, logger,
		periodapi.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		periodapi.OnUnauthorized(func() {
			logger.Warn("api token rejected, set LABDESK_API_TOKEN")
		}),
	)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "init: %v\n", err)
		return 1
	}

	cmd, rest := args[0], args[1:]
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)

	switch cmd {
	case "list":
		opts := cli.ListOptions{Stdout: stdout, Stderr: stderr}
		fs.StringVar(&opts.Select, "select", "", "period id to view")
		fs.BoolVar(&opts.JSONOutput, "json", false, "print JSON")
		if err := fs.Parse(rest); err != nil {
			return 2
		}
		return periods.ListCommand(ctx, opts)
	case "create":
		opts := cli.CreateOptions{Stdout: stdout, Stderr: stderr}
		fs.StringVar(&opts.Code, "code", "", "period code, e.g. 2024-2025")
		fs.StringVar(&opts.Name, "name", "", "display name (derived from code when empty)")
		fs.StringVar(&opts.StartDate, "start", "", "start date YYYY-MM-DD")
		fs.StringVar(&opts.EndDate, "end", "", "end date YYYY-MM-DD")
		if err := fs.Parse(rest); err != nil {
			return 2
		}
		return periods.CreateCommand(ctx, opts)
	case "activate":
		opts := cli.IDOptions{Stdout: stdout, Stderr: stderr}
		fs.StringVar(&opts.ID, "id", "", "period id")
		if err := fs.Parse(rest); err != nil {
			return 2
		}
		return periods.ActivateCommand(ctx, opts)
	case "close":
		opts := cli.CloseOptions{Stdout: stdout, Stderr: stderr}
		var exclude stringList
		fs.StringVar(&opts.ID, "id", "", "period id (defaults to the active period)")
		fs.StringVar(&opts.Successor, "successor", "", "pending period to activate")
		fs.Var(&exclude, "exclude", "member id that graduates (repeatable)")
		fs.BoolVar(&opts.DryRun, "dry-run", false, "print the plan without submitting")
		if err := fs.Parse(rest); err != nil {
			return 2
		}
		opts.Exclude = exclude
		return periods.CloseCommand(ctx, opts)
	case "delete":
		opts := cli.DeleteOptions{Stdin: stdin, Stdout: stdout, Stderr: stderr}
		fs.StringVar(&opts.ID, "id", "", "period id")
		fs.BoolVar(&opts.Yes, "yes", false, "skip confirmation")
		if err := fs.Parse(rest); err != nil {
			return 2
		}
		return periods.DeleteCommand(ctx, opts)
	case "members":
		opts := cli.MembersOptions{Stdout: stdout, Stderr: stderr}
		fs.StringVar(&opts.ID, "id", "", "period id (defaults to the active period)")
		fs.BoolVar(&opts.JSONOutput, "json", false, "print JSON")
		if err := fs.Parse(rest); err != nil {
			return 2
		}
		return periods.MembersCommand(ctx, opts)
	case "enroll":
		opts := cli.EnrollOptions{Stdout: stdout, Stderr: stderr}
		fs.StringVar(&opts.MemberID, "member", "", "member id")
		fs.StringVar(&opts.Position, "position", "", "position in the lab")
		if err := fs.Parse(rest); err != nil {
			return 2
		}
		return periods.EnrollCommand(ctx, opts)
	case "scoped":
		opts := cli.ScopedOptions{Stdout: stdout, Stderr: stderr}
		fs.StringVar(&opts.Resource, "resource", "", "collection path, e.g. projects")
		fs.StringVar(&opts.Select, "select", "", "period id to view")
		if err := fs.Parse(rest); err != nil {
			return 2
		}
		return periods.ScopedCommand(ctx, opts)
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}
}
