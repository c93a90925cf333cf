package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/labdesk/labdesk/internal/closure"
	"github.com/labdesk/labdesk/internal/console"
	"github.com/labdesk/labdesk/internal/period"
)

type fakeBackend struct {
	mu       sync.Mutex
	periods  []period.Period
	rosters  map[string][]period.MemberPeriod
	closeID  string
	closed   *period.ClosePeriodInput
	deleted  []string
	created  []period.CreatePeriodInput
	enrolled map[string]period.EnrollInput
	scoped   url.Values
	resource string
}

func newFakeBackend() *fakeBackend {
	day := func(s string) period.Date {
		d, _ := period.ParseDate(s)
		return d
	}
	return &fakeBackend{
		periods: []period.Period{
			{ID: "p-next", Code: "2025-2026", Name: "Periode 2025/2026", StartDate: day("2025-08-01"), EndDate: day("2026-07-31")},
			{ID: "p-cur", Code: "2024-2025", Name: "Periode 2024/2025", StartDate: day("2024-08-01"), EndDate: day("2025-07-31"), IsActive: true, TotalMembers: 3},
			{ID: "p-old", Code: "2023-2024", Name: "Periode 2023/2024", StartDate: day("2023-08-01"), EndDate: day("2024-07-31"), IsArchived: true, TotalMembers: 4, TotalProjects: 2, TotalEvents: 5},
		},
		rosters: map[string][]period.MemberPeriod{
			"p-cur": {
				{MemberID: "m-1", MemberName: "budi", MemberNIM: "002", Status: period.MemberStatusActive},
				{MemberID: "m-2", MemberName: "Citra", MemberNIM: "003", Status: period.MemberStatusActive},
				{MemberID: "m-3", MemberName: "Ádi", MemberNIM: "001", Status: period.MemberStatusActive},
			},
		},
		enrolled: map[string]period.EnrollInput{},
	}
}

func (f *fakeBackend) ListPeriods(context.Context) ([]period.Period, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]period.Period(nil), f.periods...), nil
}

func (f *fakeBackend) CreatePeriod(_ context.Context, in period.CreatePeriodInput) (period.Period, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, in)
	p := period.Period{ID: "p-new", Code: in.Code, Name: in.Name, StartDate: in.StartDate, EndDate: in.EndDate}
	f.periods = append([]period.Period{p}, f.periods...)
	return p, nil
}

func (f *fakeBackend) ActivatePeriod(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.periods {
		f.periods[i].IsActive = f.periods[i].ID == id
	}
	return nil
}

func (f *fakeBackend) DeletePeriod(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeBackend) PeriodMembers(_ context.Context, id string) ([]period.MemberPeriod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]period.MemberPeriod(nil), f.rosters[id]...), nil
}

func (f *fakeBackend) ClosePeriod(_ context.Context, id string, in period.ClosePeriodInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeID = id
	f.closed = &in
	for i := range f.periods {
		switch f.periods[i].ID {
		case id:
			f.periods[i].IsActive = false
			f.periods[i].IsArchived = true
		case in.NewPeriodID:
			f.periods[i].IsActive = true
		}
	}
	return nil
}

func (f *fakeBackend) AddMember(_ context.Context, periodID string, in period.EnrollInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enrolled[periodID] = in
	return nil
}

func (f *fakeBackend) ListScoped(_ context.Context, resource string, query url.Values, out any) error {
	f.mu.Lock()
	f.resource = resource
	f.scoped = query
	f.mu.Unlock()
	return json.Unmarshal([]byte(`[{"id":"prj-1"}]`), out)
}

func newTestCLI(t *testing.T, backend *fakeBackend, isAdmin bool) *PeriodCLI {
	t.Helper()
	c, err := NewPeriodCLI(backend, slog.New(slog.NewTextHandler(io.Discard, nil)), isAdmin)
	require.NoError(t, err)
	return c
}

func TestListCommandMarksActiveSelection(t *testing.T) {
	c := newTestCLI(t, newFakeBackend(), true)
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)

	code := c.ListCommand(context.Background(), ListOptions{JSONOutput: true, Stdout: stdout, Stderr: stderr})
	require.Zero(t, code, stderr.String())

	var entries []ListEntry
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &entries))
	require.Len(t, entries, 3)
	require.Equal(t, "2024-2025 ✓", entries[1].Label)
	require.True(t, entries[1].Selected)
	require.Equal(t, []string{string(console.ActionClose)}, entries[1].Actions)
	require.Equal(t, "2023-2024 (Arsip)", entries[2].Label)
	require.Equal(t, []string{string(console.ActionViewArchive), string(console.ActionDelete)}, entries[2].Actions)
	require.Equal(t, "Tidak Aktif", entries[0].Status)
}

func TestListCommandShowsArchiveBanner(t *testing.T) {
	c := newTestCLI(t, newFakeBackend(), false)
	stdout := new(bytes.Buffer)

	code := c.ListCommand(context.Background(), ListOptions{Select: "p-old", Stdout: stdout, Stderr: io.Discard})
	require.Zero(t, code)
	require.Contains(t, stdout.String(), "Melihat data periode 2023-2024 (Arsip - Read Only)")
	require.Contains(t, stdout.String(), "Lihat Arsip")
	require.NotContains(t, stdout.String(), "Tutup Periode")
}

func TestCloseCommandSubmitsContinuingMembers(t *testing.T) {
	backend := newFakeBackend()
	c := newTestCLI(t, backend, true)
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)

	code := c.CloseCommand(context.Background(), CloseOptions{Exclude: []string{"m-2"}, Stdout: stdout, Stderr: stderr})
	require.Zero(t, code, stderr.String())

	require.Equal(t, "p-cur", backend.closeID)
	require.NotNil(t, backend.closed)
	require.Equal(t, "p-next", backend.closed.NewPeriodID)
	require.ElementsMatch(t, []string{"m-1", "m-3"}, backend.closed.ContinuingMemberIDs)
	require.Contains(t, stdout.String(), "Anggota lanjut: 2, menjadi alumni: 1.")
	require.Contains(t, stdout.String(), "alumni: Citra (003)")

	active, ok := c.dir.ActivePeriod()
	require.True(t, ok)
	require.Equal(t, "p-next", active.ID)
}

func TestCloseCommandDryRunDoesNotSubmit(t *testing.T) {
	backend := newFakeBackend()
	c := newTestCLI(t, backend, true)

	code := c.CloseCommand(context.Background(), CloseOptions{DryRun: true, Stdout: io.Discard, Stderr: io.Discard})
	require.Zero(t, code)
	require.Nil(t, backend.closed)
}

func TestCloseCommandWithoutPendingPeriod(t *testing.T) {
	backend := newFakeBackend()
	backend.periods = backend.periods[1:]
	c := newTestCLI(t, backend, true)
	stderr := new(bytes.Buffer)

	code := c.CloseCommand(context.Background(), CloseOptions{Stdout: io.Discard, Stderr: stderr})
	require.Equal(t, exitError, code)
	require.Contains(t, stderr.String(), closure.ErrNoSuccessorAvailable.Error())
	require.Nil(t, backend.closed)
}

func TestCloseCommandRequiresChoiceAmongSeveralSuccessors(t *testing.T) {
	backend := newFakeBackend()
	backend.periods = append(backend.periods, period.Period{ID: "p-alt", Code: "2025-2026B"})
	c := newTestCLI(t, backend, true)
	stderr := new(bytes.Buffer)

	code := c.CloseCommand(context.Background(), CloseOptions{Stdout: io.Discard, Stderr: stderr})
	require.Equal(t, exitUsage, code)
	require.Contains(t, stderr.String(), "2025-2026B (p-alt)")
	require.Nil(t, backend.closed)
}

func TestCloseCommandRejectsUnknownMember(t *testing.T) {
	backend := newFakeBackend()
	c := newTestCLI(t, backend, true)
	stderr := new(bytes.Buffer)

	code := c.CloseCommand(context.Background(), CloseOptions{Exclude: []string{"m-9"}, Stdout: io.Discard, Stderr: stderr})
	require.Equal(t, exitUsage, code)
	require.Contains(t, stderr.String(), "m-9")
	require.Nil(t, backend.closed)
}

func TestCloseCommandRejectsArchivedPeriod(t *testing.T) {
	backend := newFakeBackend()
	c := newTestCLI(t, backend, true)

	code := c.CloseCommand(context.Background(), CloseOptions{ID: "p-old", Stdout: io.Discard, Stderr: io.Discard})
	require.Equal(t, exitError, code)
	require.Nil(t, backend.closed)
}

func TestDeleteCommandNeedsConfirmation(t *testing.T) {
	backend := newFakeBackend()
	c := newTestCLI(t, backend, true)
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)

	code := c.DeleteCommand(context.Background(), DeleteOptions{ID: "p-old", Stdin: strings.NewReader("n\n"), Stdout: stdout, Stderr: stderr})
	require.Equal(t, exitError, code)
	require.Contains(t, stdout.String(), "Periode 2023-2024 akan dihapus permanen beserta 4 anggota, 2 proyek, dan 5 kegiatan.")
	require.Contains(t, stderr.String(), console.ErrNotConfirmed.Error())
	require.Empty(t, backend.deleted)

	code = c.DeleteCommand(context.Background(), DeleteOptions{ID: "p-old", Stdin: strings.NewReader("y\n"), Stdout: io.Discard, Stderr: io.Discard})
	require.Zero(t, code)
	require.Equal(t, []string{"p-old"}, backend.deleted)
}

func TestDeleteCommandRefusesActivePeriod(t *testing.T) {
	backend := newFakeBackend()
	c := newTestCLI(t, backend, true)
	stderr := new(bytes.Buffer)

	code := c.DeleteCommand(context.Background(), DeleteOptions{ID: "p-cur", Yes: true, Stdout: io.Discard, Stderr: stderr})
	require.Equal(t, exitError, code)
	require.Contains(t, stderr.String(), console.ErrActionUnavailable.Error())
	require.Empty(t, backend.deleted)
}

func TestCreateCommand(t *testing.T) {
	t.Run("derives name", func(t *testing.T) {
		backend := newFakeBackend()
		c := newTestCLI(t, backend, true)
		stdout := new(bytes.Buffer)

		code := c.CreateCommand(context.Background(), CreateOptions{Code: " 2026-2027 ", StartDate: "2026-08-01", EndDate: "2027-07-31", Stdout: stdout, Stderr: io.Discard})
		require.Zero(t, code)
		require.Len(t, backend.created, 1)
		require.Equal(t, "2026-2027", backend.created[0].Code)
		require.Equal(t, "Periode 2026/2027", backend.created[0].Name)
		require.Contains(t, stdout.String(), "p-new")
	})

	t.Run("incomplete form", func(t *testing.T) {
		backend := newFakeBackend()
		c := newTestCLI(t, backend, true)
		stderr := new(bytes.Buffer)

		code := c.CreateCommand(context.Background(), CreateOptions{Code: "2026-2027", Stdout: io.Discard, Stderr: stderr})
		require.Equal(t, exitUsage, code)
		require.Contains(t, stderr.String(), "Mohon lengkapi semua field")
		require.Empty(t, backend.created)
	})

	t.Run("requires admin", func(t *testing.T) {
		backend := newFakeBackend()
		c := newTestCLI(t, backend, false)
		stderr := new(bytes.Buffer)

		code := c.CreateCommand(context.Background(), CreateOptions{Code: "2026-2027", StartDate: "2026-08-01", EndDate: "2027-07-31", Stdout: io.Discard, Stderr: stderr})
		require.Equal(t, exitError, code)
		require.Contains(t, stderr.String(), console.ErrNotAdmin.Error())
	})
}

func TestActivateCommand(t *testing.T) {
	backend := newFakeBackend()
	c := newTestCLI(t, backend, true)
	stdout := new(bytes.Buffer)

	code := c.ActivateCommand(context.Background(), IDOptions{ID: "p-next", Stdout: stdout, Stderr: io.Discard})
	require.Zero(t, code)
	require.Contains(t, stdout.String(), "Periode aktif sekarang 2025-2026.")
}

func TestMembersCommandSortsByName(t *testing.T) {
	c := newTestCLI(t, newFakeBackend(), false)
	stdout := new(bytes.Buffer)

	code := c.MembersCommand(context.Background(), MembersOptions{JSONOutput: true, Stdout: stdout, Stderr: io.Discard})
	require.Zero(t, code)

	var roster []period.MemberPeriod
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &roster))
	names := make([]string, len(roster))
	for i, m := range roster {
		names[i] = m.MemberName
	}
	require.Equal(t, []string{"Ádi", "budi", "Citra"}, names)
}

func TestMembersCommandUnknownPeriod(t *testing.T) {
	c := newTestCLI(t, newFakeBackend(), false)
	stderr := new(bytes.Buffer)

	code := c.MembersCommand(context.Background(), MembersOptions{ID: "nope", Stdout: io.Discard, Stderr: stderr})
	require.Equal(t, exitError, code)
	require.Contains(t, stderr.String(), period.ErrNotFound.Error())
}

func TestEnrollCommandTargetsActivePeriod(t *testing.T) {
	backend := newFakeBackend()
	c := newTestCLI(t, backend, true)

	code := c.EnrollCommand(context.Background(), EnrollOptions{MemberID: "m-7", Position: "Asisten", Stdout: io.Discard, Stderr: io.Discard})
	require.Zero(t, code)
	require.Equal(t, period.EnrollInput{MemberID: "m-7", Position: "Asisten"}, backend.enrolled["p-cur"])
}

func TestScopedCommandSendsSelectionScope(t *testing.T) {
	t.Run("explicit archive", func(t *testing.T) {
		backend := newFakeBackend()
		c := newTestCLI(t, backend, false)
		stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)

		code := c.ScopedCommand(context.Background(), ScopedOptions{Resource: "/projects", Select: "p-old", Stdout: stdout, Stderr: stderr})
		require.Zero(t, code)
		require.Equal(t, "projects", backend.resource)
		require.Equal(t, "p-old", backend.scoped.Get("periodId"))
		require.Contains(t, stderr.String(), "(Arsip - Read Only)")
		require.Contains(t, stdout.String(), `"prj-1"`)
	})

	t.Run("follow active", func(t *testing.T) {
		backend := newFakeBackend()
		c := newTestCLI(t, backend, false)

		code := c.ScopedCommand(context.Background(), ScopedOptions{Resource: "events", Stdout: io.Discard, Stderr: io.Discard})
		require.Zero(t, code)
		require.Empty(t, backend.scoped)
	})
}

func TestRemoteUnauthorizedExitCode(t *testing.T) {
	var authHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Unauthorized"}`))
	}))
	defer srv.Close()

	c, err := NewRemote(srv.URL, "stale", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	stderr := new(bytes.Buffer)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	code := c.ListCommand(ctx, ListOptions{Stdout: io.Discard, Stderr: stderr})
	require.Equal(t, exitUnauthorized, code)
	require.Equal(t, "Bearer stale", authHeader)
	require.Contains(t, stderr.String(), "Unauthorized")
}
