package dispatch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/qaraa/printd/internal/log"
	"github.com/qaraa/printd/internal/metrics"
	"github.com/qaraa/printd/internal/printer"
	"github.com/qaraa/printd/internal/render"
	"github.com/qaraa/printd/internal/store"
)

type Config struct {
	Device         string
	Width          int
	MaxAttempts    int
	PollInterval   time.Duration
	SendTimeout    time.Duration
	StaleThreshold time.Duration
	ReapInterval   time.Duration
}

// Dispatcher reconciles one durable queue against one physical
// printer: claim, render, send, reconcile the outcome. Run exactly one
// per device; sends are additionally serialized by sendMu.
type Dispatcher struct {
	store     *store.Store
	transport printer.Transport
	profile   printer.DeviceProfile
	cfg       Config
	metrics   *metrics.Metrics
	logger    *log.Logger
	wakeCh    chan struct{}
	sendMu    sync.Mutex
}

func New(st *store.Store, transport printer.Transport, cfg Config, m *metrics.Metrics, logger *log.Logger) *Dispatcher {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.StaleThreshold <= 0 {
		cfg.StaleThreshold = 2 * time.Minute
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = 30 * time.Second
	}

	return &Dispatcher{
		store:     st,
		transport: transport,
		profile:   printer.DeviceProfile{Device: cfg.Device, Width: cfg.Width},
		cfg:       cfg,
		metrics:   m,
		logger:    logger,
		wakeCh:    make(chan struct{}, 1),
	}
}

// Wake nudges the dispatcher out of its idle wait; the enqueue gateway
// calls it so new jobs do not sit out a full poll interval.
func (d *Dispatcher) Wake() {
	select {
	case d.wakeCh <- struct{}{}:
	default:
	}
}

// Run drives the dispatch loop until the context is canceled. The
// poll ticker is the at-least-once fallback behind Wake.
func (d *Dispatcher) Run(ctx context.Context) {
	// Jobs left in processing by a crashed process are recovered
	// before new work is claimed.
	if n, err := d.store.ReclaimStale(ctx, 0, d.cfg.MaxAttempts); err != nil {
		d.logger.Error("Startup recovery failed", zap.Error(err))
	} else if n > 0 {
		d.logger.Info("Recovered abandoned jobs", zap.Int("count", n))
	}

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Dispatcher shutting down")
			return
		case <-ticker.C:
		case <-d.wakeCh:
		}
		d.drain(ctx)
	}
}

func (d *Dispatcher) drain(ctx context.Context) {
	for ctx.Err() == nil {
		claimed, err := d.dispatchOne(ctx)
		if err != nil {
			d.logger.Error("Dispatch cycle failed", zap.Error(err))
			return
		}
		if !claimed {
			return
		}
	}
}

// dispatchOne carries a single claimed job through rendering, sending
// and reconciliation. Returns false when no job was ready to claim.
func (d *Dispatcher) dispatchOne(ctx context.Context) (bool, error) {
	job, err := d.store.ClaimNext(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	doc, err := render.Render(job.Type, job.Payload, render.Options{Width: d.profile.Width}, time.Now())
	if err != nil {
		// A payload that fails its template cannot succeed on retry.
		d.failPermanent(ctx, job, err.Error())
		return true, nil
	}

	raw := printer.Encode(doc, d.profile)

	d.sendMu.Lock()
	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	sendErr := d.transport.Send(sendCtx, raw, d.profile)
	cancel()
	d.sendMu.Unlock()

	if sendErr == nil {
		if err := d.store.MarkCompleted(ctx, job.ID); err != nil {
			d.logger.Warn("Failed to mark job completed",
				zap.String("job_id", job.ID), zap.Error(err))
			return true, nil
		}
		d.metrics.JobsCompleted.WithLabelValues(job.Type).Inc()
		d.logger.Info("Printed job",
			zap.String("job_id", job.ID), zap.String("type", job.Type),
			zap.Int("attempts", job.Attempts))
		return true, nil
	}

	if printer.IsPermanent(sendErr) {
		d.failPermanent(ctx, job, sendErr.Error())
		return true, nil
	}

	status, err := d.store.MarkFailed(ctx, job.ID, sendErr.Error(), d.cfg.MaxAttempts)
	if err != nil {
		d.logger.Warn("Failed to record failed attempt",
			zap.String("job_id", job.ID), zap.Error(err))
		return true, nil
	}
	if status == store.StatusFailed {
		d.metrics.JobsFailed.WithLabelValues(job.Type).Inc()
		d.logger.Error("Job failed, retry budget exhausted",
			zap.String("job_id", job.ID), zap.Error(sendErr))
	} else {
		d.metrics.JobsRetried.WithLabelValues(job.Type).Inc()
		d.logger.Warn("Send failed, job requeued",
			zap.String("job_id", job.ID), zap.Error(sendErr))
	}
	return true, nil
}

func (d *Dispatcher) failPermanent(ctx context.Context, job *store.PrintJob, reason string) {
	if err := d.store.MarkFailedPermanent(ctx, job.ID, reason, d.cfg.MaxAttempts); err != nil {
		d.logger.Warn("Failed to mark job failed",
			zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	d.metrics.JobsFailed.WithLabelValues(job.Type).Inc()
	d.logger.Error("Job failed permanently",
		zap.String("job_id", job.ID), zap.String("reason", reason))
}

// Reaper periodically returns abandoned processing jobs to the queue,
// independent of the dispatch loop, so a crashed in-flight attempt can
// never wedge a job in processing forever.
func (d *Dispatcher) Reaper(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Reaper shutting down")
			return
		case <-ticker.C:
			n, err := d.store.ReclaimStale(ctx, d.cfg.StaleThreshold, d.cfg.MaxAttempts)
			if err != nil {
				d.logger.Error("Failed to reclaim stale jobs", zap.Error(err))
				continue
			}
			if n > 0 {
				d.logger.Warn("Reclaimed stale jobs", zap.Int("count", n))
				d.Wake()
			}
		}
	}
}
