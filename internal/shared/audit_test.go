package shared

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	sql  string
	args []any
}

type fakeExecer struct {
	calls []execCall
}

func (f *fakeExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func TestActivityLoggerRecord(t *testing.T) {
	db := &fakeExecer{}
	logger := NewActivityLogger(db)

	err := logger.RecordPeriodActivity(context.Background(), ActivityLog{
		Action:   "PERIOD_CLOSED",
		EntityID: "p-1",
		Meta:     map[string]any{"alumni": 2},
	})
	require.NoError(t, err)
	require.Len(t, db.calls, 1)

	args := db.calls[0].args
	require.Equal(t, SystemActor, args[1])
	require.Equal(t, "PERIOD_CLOSED", args[2])
	require.Equal(t, EntityPeriod, args[3])
	require.Equal(t, "p-1", args[4])

	var meta map[string]any
	require.NoError(t, json.Unmarshal(args[5].([]byte), &meta))
	require.EqualValues(t, 2, meta["alumni"])
}

func TestActivityLoggerKeepsGivenID(t *testing.T) {
	db := &fakeExecer{}
	logger := NewActivityLogger(db)
	entry := ActivityLog{
		ID:       ActivityID("p-1", "MEMBER_GRADUATED", "m-3"),
		Action:   "MEMBER_GRADUATED",
		Entity:   "member",
		EntityID: "m-3",
	}

	require.NoError(t, logger.Record(context.Background(), entry))
	require.NoError(t, logger.Record(context.Background(), entry))
	require.Len(t, db.calls, 2)
	require.Equal(t, entry.ID, db.calls[0].args[0])
	require.Equal(t, entry.ID, db.calls[1].args[0])
	require.Contains(t, db.calls[0].sql, "ON CONFLICT (id) DO NOTHING")
}

func TestActivityIDIsStable(t *testing.T) {
	a := ActivityID("p-1", "MEMBER_GRADUATED", "m-3")
	require.Equal(t, a, ActivityID("p-1", "MEMBER_GRADUATED", "m-3"))
	require.NotEqual(t, a, ActivityID("p-1", "MEMBER_GRADUATED", "m-4"))
	require.NotEqual(t, a, ActivityID("p-2", "MEMBER_GRADUATED", "m-3"))
	_, err := uuid.Parse(a)
	require.NoError(t, err)
}

func TestActivityLoggerGeneratesIDWhenEmpty(t *testing.T) {
	db := &fakeExecer{}
	entry := ActivityLog{Action: "X", Entity: "e", EntityID: "1"}
	require.NoError(t, NewActivityLogger(db).Record(context.Background(), entry))
	require.NoError(t, NewActivityLogger(db).Record(context.Background(), entry))
	require.NotEqual(t, db.calls[0].args[0], db.calls[1].args[0])
}

func TestActivityLoggerRejectsIncompleteEntry(t *testing.T) {
	db := &fakeExecer{}
	err := NewActivityLogger(db).Record(context.Background(), ActivityLog{Action: "X"})
	require.Error(t, err)
	require.Empty(t, db.calls)

	var nilLogger *ActivityLogger
	require.Error(t, nilLogger.Record(context.Background(), ActivityLog{Action: "X", Entity: "e", EntityID: "1"}))
}

func TestActorFromContext(t *testing.T) {
	require.Equal(t, SystemActor, ActorFromContext(context.Background()))
	ctx := ContextWithActor(context.Background(), "admin")
	require.Equal(t, "admin", ActorFromContext(ctx))
}

func TestPeriodLockKey(t *testing.T) {
	require.Equal(t, "labdesk:period:transition:lock", PeriodLockKey("transition"))
}
