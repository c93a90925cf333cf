package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/labdesk/labdesk/internal/jobs"
	"github.com/labdesk/labdesk/internal/period"
	"github.com/labdesk/labdesk/internal/shared"
)

const graduationWriters = 4

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// ActivityWriter persists activity log entries.
type ActivityWriter interface {
	Record(ctx context.Context, log shared.ActivityLog) error
}

// PeriodClosedJob writes the activity trail for a committed closure: one
// entry for the closure and one per graduated member. Entry ids derive from
// the period and member so a retried task does not duplicate rows.
type PeriodClosedJob struct {
	Activity ActivityWriter
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewPeriodClosedJob wires dependencies for the closure handler.
func NewPeriodClosedJob(activity ActivityWriter, logger *slog.Logger, metrics *jobmetrics.Metrics) *PeriodClosedJob {
	return &PeriodClosedJob{Activity: activity, Logger: logger, Metrics: metrics}
}

// Handle processes TaskPeriodClosed tasks.
func (j *PeriodClosedJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Activity == nil {
		return errors.New("period closed: handler not configured")
	}
	var ev period.ClosedEvent
	if err := json.Unmarshal(t.Payload(), &ev); err != nil || ev.PeriodID == "" {
		return fmt.Errorf("period closed: decode payload: %w", asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskPeriodClosed)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("period_id", ev.PeriodID), slog.String("successor_id", ev.SuccessorID))

	err := j.Activity.Record(ctx, shared.ActivityLog{
		ID:       shared.ActivityID(ev.PeriodID, "PERIOD_CLOSED", ev.PeriodID),
		Actor:    ev.Actor,
		Action:   "PERIOD_CLOSED",
		Entity:   shared.EntityPeriod,
		EntityID: ev.PeriodID,
		Meta: map[string]any{
			"code":           ev.PeriodCode,
			"successor_id":   ev.SuccessorID,
			"successor_code": ev.SuccessorCode,
			"continuing":     len(ev.Continuing),
			"alumni":         len(ev.Alumni),
		},
		At: ev.ClosedAt,
	})
	if err != nil {
		logger.Error("record closure", slog.Any("error", err))
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(graduationWriters)
	for _, memberID := range ev.Alumni {
		memberID := memberID
		g.Go(func() error {
			return j.Activity.Record(gctx, shared.ActivityLog{
				ID:       shared.ActivityID(ev.PeriodID, "MEMBER_GRADUATED", memberID),
				Actor:    ev.Actor,
				Action:   "MEMBER_GRADUATED",
				Entity:   "member",
				EntityID: memberID,
				Meta:     map[string]any{"period_code": ev.PeriodCode},
				At:       ev.ClosedAt,
			})
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("record graduations", slog.Any("error", err))
		return err
	}

	j.metrics().AddGraduated(len(ev.Alumni))
	logger.Info("period closure recorded", slog.Int("continuing", len(ev.Continuing)), slog.Int("alumni", len(ev.Alumni)))
	return nil
}

func (j *PeriodClosedJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *PeriodClosedJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
