package providers

import (
	"context"
	"time"

	"github.com/samber/do/v2"

	"github.com/codedrip/codedrip-server/internal/config"
	"github.com/codedrip/codedrip-server/internal/logger"
	"github.com/codedrip/codedrip-server/internal/service"
)

// DeliveryBatchJob runs the daily challenge batch at the configured hour.
type DeliveryBatchJob struct {
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (j *DeliveryBatchJob) Shutdown() error {
	j.cancel()
	return nil
}

// nextBatchTime returns the next occurrence of the delivery hour after now.
func nextBatchTime(now time.Time, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// ProvideDeliveryBatchJob provides the daily delivery batch scheduler.
func ProvideDeliveryBatchJob(i do.Injector) (*DeliveryBatchJob, error) {
	deliveryService := do.MustInvoke[*service.DeliveryService](i)
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		for {
			now := time.Now()
			next := nextBatchTime(now, cfg.Delivery.Hour)
			timer := time.NewTimer(next.Sub(now))

			select {
			case <-timer.C:
				if result, err := deliveryService.RunDailyBatch(ctx, time.Now()); err != nil {
					log.Error("Daily delivery batch failed", "error", err)
				} else {
					log.Info("Daily delivery batch completed",
						"scheduled", result.Scheduled,
						"skipped", result.Skipped,
						"errors", result.Errors,
					)
				}
			case <-ctx.Done():
				timer.Stop()
				return
			}
		}
	}()

	log.Info("Delivery batch job started", "hour", cfg.Delivery.Hour)

	return &DeliveryBatchJob{cancel: cancel}, nil
}

// SolutionSweepJob periodically scans for deliveries due a solution email.
type SolutionSweepJob struct {
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (j *SolutionSweepJob) Shutdown() error {
	j.cancel()
	return nil
}

// ProvideSolutionSweepJob provides the periodic solution scheduler.
func ProvideSolutionSweepJob(i do.Injector) (*SolutionSweepJob, error) {
	solutionService := do.MustInvoke[*service.SolutionService](i)
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		ticker := time.NewTicker(cfg.Delivery.SolutionSweepInterval)
		defer ticker.Stop()

		// Initial sweep on startup catches anything that came due while down.
		if result, err := solutionService.RunPendingSolutions(ctx, time.Now()); err != nil {
			log.Warn("Initial solution sweep failed", "error", err)
		} else if result.Scheduled > 0 {
			log.Info("Initial solution sweep completed", "scheduled", result.Scheduled)
		}

		for {
			select {
			case <-ticker.C:
				if result, err := solutionService.RunPendingSolutions(ctx, time.Now()); err != nil {
					log.Warn("Solution sweep failed", "error", err)
				} else if result.Scheduled > 0 {
					log.Info("Solution sweep completed", "scheduled", result.Scheduled)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	log.Info("Solution sweep job started", "interval", cfg.Delivery.SolutionSweepInterval)

	return &SolutionSweepJob{cancel: cancel}, nil
}

// QueueDrainJob continuously drains the email queue.
type QueueDrainJob struct {
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (j *QueueDrainJob) Shutdown() error {
	j.cancel()
	return nil
}

// ProvideQueueDrainJob provides the email queue dispatch worker.
func ProvideQueueDrainJob(i do.Injector) (*QueueDrainJob, error) {
	dispatchService := do.MustInvoke[*service.DispatchService](i)
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		ticker := time.NewTicker(cfg.Dispatch.DrainInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				result, err := dispatchService.DrainBatch(ctx, time.Now())
				if err != nil {
					log.Warn("Queue drain failed", "error", err)
					continue
				}
				if result.Sent > 0 || result.Retrying > 0 || result.Failed > 0 {
					log.Info("Queue drained",
						"sent", result.Sent,
						"retrying", result.Retrying,
						"failed", result.Failed,
					)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	log.Info("Queue drain job started", "interval", cfg.Dispatch.DrainInterval, "batch_size", cfg.Dispatch.BatchSize)

	return &QueueDrainJob{cancel: cancel}, nil
}
