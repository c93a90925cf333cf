package periodapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/labdesk/labdesk/internal/period"
)

func TestListPeriodsSendsBearer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/periods", r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode([]period.Period{{ID: "a", Code: "2024-2025", IsActive: true}})
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/api", WithToken("secret"))
	periods, err := client.ListPeriods(context.Background())
	require.NoError(t, err)
	require.Len(t, periods, 1)
	require.Equal(t, "2024-2025", periods[0].Code)
}

func TestClosePeriodSendsSingleRequest(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/periods/a/close", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "b", body["newPeriodId"])
		require.Equal(t, []any{}, body["continuingMemberIds"])
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"archived":{},"activated":{}}`))
	}))
	defer srv.Close()

	err := NewClient(srv.URL).ClosePeriod(context.Background(), "a", period.ClosePeriodInput{NewPeriodID: "b"})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestErrorMessageIsVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"message":"period: successor must be a pending period"}`))
	}))
	defer srv.Close()

	err := NewClient(srv.URL).ActivatePeriod(context.Background(), "a")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusConflict, apiErr.Status)
	require.Equal(t, "period: successor must be a pending period", err.Error())
}

func TestErrorWithoutBodyUsesDefault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewClient(srv.URL).DeletePeriod(context.Background(), "c")
	require.EqualError(t, err, "Request failed")
}

func TestUnauthorizedClearsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	hooked := false
	client := NewClient(srv.URL, WithToken("stale"), OnUnauthorized(func() { hooked = true }))
	_, err := client.PeriodMembers(context.Background(), "a")
	require.ErrorIs(t, err, ErrUnauthorized)
	require.Empty(t, client.Token())
	require.True(t, hooked)
}

func TestNoContentSucceeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := NewClient(srv.URL).AddMember(context.Background(), "a", period.EnrollInput{MemberID: "m1"})
	require.NoError(t, err)
}

func TestListScopedAppendsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/projects", r.URL.Path)
		require.Equal(t, "c", r.URL.Query().Get("periodId"))
		_, _ = w.Write([]byte(`[{"id":"p1"}]`))
	}))
	defer srv.Close()

	var out []map[string]string
	err := NewClient(srv.URL).ListScoped(context.Background(), "projects", url.Values{"periodId": {"c"}}, &out)
	require.NoError(t, err)
	require.Equal(t, "p1", out[0]["id"])
}

func TestDefaultBaseURL(t *testing.T) {
	require.Equal(t, DefaultBaseURL, NewClient("").baseURL)
}
