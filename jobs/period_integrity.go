package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/labdesk/labdesk/internal/jobs"
	"github.com/labdesk/labdesk/internal/period"
)

// IntegritySource reports the stored lifecycle flags.
type IntegritySource interface {
	Integrity(ctx context.Context) (period.Integrity, error)
}

// PeriodIntegrityJob logs and counts broken lifecycle invariants. The
// schema prevents them, so a hit means someone edited rows by hand.
type PeriodIntegrityJob struct {
	Source  IntegritySource
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewPeriodIntegrityJob wires dependencies for the integrity handler.
func NewPeriodIntegrityJob(source IntegritySource, logger *slog.Logger, metrics *jobmetrics.Metrics) *PeriodIntegrityJob {
	return &PeriodIntegrityJob{Source: source, Logger: logger, Metrics: metrics}
}

// Handle processes TaskPeriodIntegrity tasks.
func (j *PeriodIntegrityJob) Handle(ctx context.Context, _ *asynq.Task) (resultErr error) {
	if j == nil || j.Source == nil {
		return errors.New("period integrity: handler not configured")
	}
	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tracker := metrics.Track(TaskPeriodIntegrity)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	report, err := j.Source.Integrity(ctx)
	if err != nil {
		logger.Error("load period integrity", slog.Any("error", err))
		return err
	}
	violations := report.Violations()
	for _, kind := range violations {
		metrics.AddViolation(kind)
		logger.Warn("period integrity violation", slog.String("kind", kind), slog.Int("active", report.Active), slog.Int("active_archived", report.ActiveArchived))
	}
	if len(violations) == 0 {
		logger.Info("period integrity ok", slog.Int("active", report.Active), slog.Int("pending", report.Pending))
	}
	return nil
}
