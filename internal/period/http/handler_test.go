package periodhttp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/labdesk/labdesk/internal/period"
	"github.com/labdesk/labdesk/internal/platform/httpx"
	"github.com/labdesk/labdesk/internal/shared"
)

type stubPeriodService struct {
	listFn     func(ctx context.Context) ([]period.Period, error)
	getFn      func(ctx context.Context, id string) (period.Period, error)
	rosterFn   func(ctx context.Context, id string) ([]period.MemberPeriod, error)
	createFn   func(ctx context.Context, actor string, in period.CreatePeriodInput) (period.Period, error)
	activateFn func(ctx context.Context, actor, id string) (period.Period, error)
	closeFn    func(ctx context.Context, actor, id string, in period.ClosePeriodInput) (period.CloseResult, error)
	deleteFn   func(ctx context.Context, actor, id string) error
	enrollFn   func(ctx context.Context, actor, id string, in period.EnrollInput) error
}

func (s *stubPeriodService) ListPeriods(ctx context.Context) ([]period.Period, error) {
	return s.listFn(ctx)
}

func (s *stubPeriodService) GetPeriod(ctx context.Context, id string) (period.Period, error) {
	return s.getFn(ctx, id)
}

func (s *stubPeriodService) Roster(ctx context.Context, id string) ([]period.MemberPeriod, error) {
	return s.rosterFn(ctx, id)
}

func (s *stubPeriodService) CreatePeriod(ctx context.Context, actor string, in period.CreatePeriodInput) (period.Period, error) {
	return s.createFn(ctx, actor, in)
}

func (s *stubPeriodService) Activate(ctx context.Context, actor, id string) (period.Period, error) {
	return s.activateFn(ctx, actor, id)
}

func (s *stubPeriodService) Close(ctx context.Context, actor, id string, in period.ClosePeriodInput) (period.CloseResult, error) {
	return s.closeFn(ctx, actor, id, in)
}

func (s *stubPeriodService) Delete(ctx context.Context, actor, id string) error {
	return s.deleteFn(ctx, actor, id)
}

func (s *stubPeriodService) Enroll(ctx context.Context, actor, id string, in period.EnrollInput) error {
	return s.enrollFn(ctx, actor, id, in)
}

func newTestRouter(svc periodService, requireAdmin func(http.Handler) http.Handler) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	NewHandler(logger, svc, requireAdmin).MountRoutes(r)
	return r
}

func asAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), "admin")))
	})
}

func TestListPeriodsReturnsJSON(t *testing.T) {
	svc := &stubPeriodService{
		listFn: func(ctx context.Context) ([]period.Period, error) {
			return []period.Period{{ID: "a", Code: "2024-2025", IsActive: true}}, nil
		},
	}
	rr := httptest.NewRecorder()
	newTestRouter(svc, nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/periods", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var got []period.Period
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Len(t, got, 1)
	require.True(t, got[0].IsActive)
}

func TestClosePeriodPassesPayloadAndActor(t *testing.T) {
	var gotActor, gotID string
	var gotIn period.ClosePeriodInput
	svc := &stubPeriodService{
		closeFn: func(ctx context.Context, actor, id string, in period.ClosePeriodInput) (period.CloseResult, error) {
			gotActor, gotID, gotIn = actor, id, in
			return period.CloseResult{Continuing: in.ContinuingMemberIDs, Alumni: []string{"m3"}}, nil
		},
	}
	body := `{"newPeriodId":"b","continuingMemberIds":["m1","m2"]}`
	req := httptest.NewRequest(http.MethodPost, "/periods/a/close", strings.NewReader(body))
	rr := httptest.NewRecorder()
	newTestRouter(svc, asAdmin).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "admin", gotActor)
	require.Equal(t, "a", gotID)
	require.Equal(t, "b", gotIn.NewPeriodID)
	require.Equal(t, []string{"m1", "m2"}, gotIn.ContinuingMemberIDs)
}

func TestErrorsCarryMessage(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", period.ErrNotFound, http.StatusNotFound},
		{"successor not pending", period.ErrSuccessorNotPending, http.StatusConflict},
		{"archived", period.ErrArchived, http.StatusForbidden},
		{"same period", period.ErrSamePeriod, http.StatusBadRequest},
		{"locked", period.ErrTransitionLocked, http.StatusConflict},
		{"validation", &period.ValidationError{Fields: map[string]string{"NewPeriodID": "required"}}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubPeriodService{
				closeFn: func(context.Context, string, string, period.ClosePeriodInput) (period.CloseResult, error) {
					return period.CloseResult{}, tc.err
				},
			}
			req := httptest.NewRequest(http.MethodPost, "/periods/a/close", strings.NewReader(`{"newPeriodId":"b"}`))
			rr := httptest.NewRecorder()
			newTestRouter(svc, nil).ServeHTTP(rr, req)

			require.Equal(t, tc.status, rr.Code)
			var problem httpx.ProblemDetail
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
			require.Equal(t, tc.err.Error(), problem.Message)
		})
	}
}

func TestUnexpectedErrorHidesDetail(t *testing.T) {
	svc := &stubPeriodService{
		listFn: func(context.Context) ([]period.Period, error) {
			return nil, io.ErrUnexpectedEOF
		},
	}
	rr := httptest.NewRecorder()
	newTestRouter(svc, nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/periods", nil))

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.NotContains(t, rr.Body.String(), io.ErrUnexpectedEOF.Error())
}

func TestMutationsRequireAdmin(t *testing.T) {
	called := false
	svc := &stubPeriodService{
		deleteFn: func(context.Context, string, string) error {
			called = true
			return nil
		},
		listFn: func(context.Context) ([]period.Period, error) { return nil, nil },
	}
	deny := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			httpx.RespondError(w, shared.ErrUnauthorized, httpx.Mapping{Err: shared.ErrUnauthorized, Class: httpx.ErrUnauthorized})
		})
	}
	router := newTestRouter(svc, deny)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/periods/c", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.False(t, called)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/periods", nil))
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestDeleteAndEnrollReturnNoContent(t *testing.T) {
	var enrolled period.EnrollInput
	svc := &stubPeriodService{
		deleteFn: func(context.Context, string, string) error { return nil },
		enrollFn: func(_ context.Context, _ string, id string, in period.EnrollInput) error {
			require.Equal(t, "a", id)
			enrolled = in
			return nil
		},
	}
	router := newTestRouter(svc, asAdmin)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/periods/c", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/periods/a/members", strings.NewReader(`{"memberId":"m9","position":"Asisten"}`))
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, "m9", enrolled.MemberID)
}

func TestCreateRejectsUnknownFields(t *testing.T) {
	svc := &stubPeriodService{}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/periods", strings.NewReader(`{"code":"x","bogus":1}`))
	newTestRouter(svc, nil).ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
