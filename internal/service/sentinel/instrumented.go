package sentinel

import (
	"context"
	"time"

	"SentinelX/internal/domain/models"
	"SentinelX/internal/domain/repository"
	"SentinelX/pkg/logger"
)

// Instrumented decorates a Backend with fetch metrics and logging.
type Instrumented struct {
	next    repository.Backend
	metrics repository.Metrics
	log     *logger.Logger
}

func NewInstrumented(next repository.Backend, metrics repository.Metrics, log *logger.Logger) *Instrumented {
	return &Instrumented{next: next, metrics: metrics, log: log}
}

func (i *Instrumented) Execute(ctx context.Context, op models.Kind, params repository.Params) (any, error) {
	start := time.Now()
	v, err := i.next.Execute(ctx, op, params)
	took := time.Since(start)

	outcome := "success"
	if err != nil {
		fe := models.AsFetchError(op, err)
		outcome = string(fe.Kind)
		if ctx.Err() != nil {
			outcome = "cancelled"
			i.log.Debug("backend call cancelled", logger.String("op", string(op)))
		} else {
			i.log.Warn("backend call failed",
				logger.String("op", string(op)),
				logger.String("kind", string(fe.Kind)),
				logger.Int("status", fe.StatusCode),
				logger.Error(err),
			)
		}
	}
	i.metrics.RecordFetch(string(op), outcome, took.Seconds())
	return v, err
}

var _ repository.Backend = (*Instrumented)(nil)
