package shared

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// EntityPeriod is the default entity for lifecycle activity.
const EntityPeriod = "period"

// activityNamespace seeds deterministic activity ids.
var activityNamespace = uuid.MustParse("6f1c2a4e-8d3b-5c7a-9e21-4b0d7f3a1c58")

// ActivityID derives a stable id from parts. Recording the same entry twice
// with the same id stores it once.
func ActivityID(parts ...string) string {
	return uuid.NewSHA1(activityNamespace, []byte(strings.Join(parts, "/"))).String()
}

// ActivityLog represents a record stored in activity_logs. An empty ID gets a
// random one.
type ActivityLog struct {
	ID       string
	Actor    string
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// Execer is satisfied by pgxpool.Pool and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// ActivityLogger writes records into activity_logs.
type ActivityLogger struct {
	db Execer
}

// NewActivityLogger returns a new ActivityLogger.
func NewActivityLogger(db Execer) *ActivityLogger {
	return &ActivityLogger{db: db}
}

// Record persists the log entry.
func (l *ActivityLogger) Record(ctx context.Context, log ActivityLog) error {
	if l == nil || l.db == nil {
		return errors.New("activity logger not initialised")
	}
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("activity log requires action/entity/entity_id")
	}
	if log.Actor == "" {
		log.Actor = SystemActor
	}
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	var at *time.Time
	if !log.At.IsZero() {
		at = &log.At
	}
	id := log.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err = l.db.Exec(ctx, `INSERT INTO activity_logs (id, actor, action, entity, entity_id, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))
ON CONFLICT (id) DO NOTHING`,
		id, log.Actor, log.Action, log.Entity, log.EntityID, metaJSON, at)
	return err
}

// RecordPeriodActivity records a lifecycle entry, defaulting the entity to a period.
func (l *ActivityLogger) RecordPeriodActivity(ctx context.Context, log ActivityLog) error {
	if log.Entity == "" {
		log.Entity = EntityPeriod
	}
	return l.Record(ctx, log)
}
