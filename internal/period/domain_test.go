package period

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuggestName(t *testing.T) {
	assert.Equal(t, "Periode 2024/2025", SuggestName("2024-2025"))
	assert.Equal(t, "", SuggestName("2024"))
}

func TestStateAndLabels(t *testing.T) {
	assert.Equal(t, StateActive, Period{IsActive: true}.State())
	assert.Equal(t, StateArchived, Period{IsArchived: true}.State())
	assert.Equal(t, StateArchived, Period{IsActive: true, IsArchived: true}.State())
	assert.Equal(t, StatePending, Period{}.State())

	assert.Equal(t, "Aktif", Period{IsActive: true}.StatusLabel())
	assert.Equal(t, "Arsip", Period{IsArchived: true}.StatusLabel())
	assert.Equal(t, "Tidak Aktif", Period{}.StatusLabel())
}

func TestDateJSON(t *testing.T) {
	var in CreatePeriodInput
	require.NoError(t, json.Unmarshal([]byte(`{"code":"2024-2025","name":"n","startDate":"2024-08-01","endDate":"2025-07-31T00:00:00Z"}`), &in))
	assert.Equal(t, time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC), in.StartDate.Time)
	assert.Equal(t, "2025-07-31", in.EndDate.String())

	out, err := json.Marshal(Period{ID: "A", StartDate: in.StartDate})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"startDate":"2024-08-01"`)
	assert.Contains(t, string(out), `"endDate":""`)

	var bad Date
	assert.Error(t, json.Unmarshal([]byte(`"01/08/2024"`), &bad))
}

func TestIntegrityViolations(t *testing.T) {
	require.Empty(t, Integrity{Active: 1, Pending: 2}.Violations())
	require.Equal(t, []string{"multiple_active", "active_archived"}, Integrity{Active: 2, ActiveArchived: 1}.Violations())
}
