package tts

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/folioapp/folio-server/internal/domain"
	"github.com/folioapp/folio-server/internal/sse"
)

const defaultPollInterval = 2 * time.Second

// EventEmitter is the interface for broadcasting readaloud SSE events.
type EventEmitter interface {
	Emit(event sse.Event)
}

// Worker polls the vendor for jobs still in flight and settles them in
// the cache. Clients learn about completion through SSE rather than by
// polling Folio themselves.
type Worker struct {
	client  *Client
	cache   *Cache
	emitter EventEmitter
	logger  *slog.Logger

	interval time.Duration

	ctx    context.Context //nolint:containedctx // Context needed for worker lifecycle management
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker creates a polling worker. An interval of 0 uses the default
// of 2 seconds.
func NewWorker(client *Client, cache *Cache, emitter EventEmitter, interval time.Duration, logger *slog.Logger) *Worker {
	if interval <= 0 {
		interval = defaultPollInterval
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Worker{
		client:   client,
		cache:    cache,
		emitter:  emitter,
		logger:   logger,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins the polling loop.
func (w *Worker) Start() {
	w.logger.Info("starting readaloud worker",
		slog.Duration("interval", w.interval),
	)

	w.wg.Add(1)
	go w.run()
}

// Stop shuts the worker down and waits for the current poll to finish.
func (w *Worker) Stop() {
	w.cancel()
	w.wg.Wait()
	w.logger.Info("readaloud worker stopped")
}

func (w *Worker) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.pollOnce()
		}
	}
}

// pollOnce advances every non-terminal cached job by one vendor check.
func (w *Worker) pollOnce() {
	jobs, err := w.cache.ActiveJobs()
	if err != nil {
		w.logger.Error("failed to list active readaloud jobs", "error", err)
		return
	}

	for _, job := range jobs {
		select {
		case <-w.ctx.Done():
			return
		default:
		}
		w.pollJob(job.ID)
	}
}

// pollJob checks one job against the vendor and updates the cached
// record. Terminal transitions emit an SSE event to the job's owner.
func (w *Worker) pollJob(jobID string) {
	job, err := w.cache.GetJob(jobID)
	if err != nil {
		// Expired between listing and polling; nothing to settle.
		return
	}
	if job.Status.IsTerminal() {
		return
	}

	vendorJob, err := w.client.GetJob(w.ctx, jobID)
	if err != nil {
		w.logger.Warn("readaloud poll failed",
			"job_id", jobID,
			"error", err,
		)
		return
	}

	changed := ApplyVendorJob(job, vendorJob)
	if !changed {
		return
	}

	if err := w.cache.PutJob(job); err != nil {
		w.logger.Error("failed to update readaloud job",
			"job_id", jobID,
			"error", err,
		)
		return
	}

	switch job.Status {
	case domain.ReadaloudStatusCompleted:
		w.logger.Info("readaloud job completed",
			"job_id", jobID,
			"segments", len(job.Segments),
		)
		w.emitter.Emit(sse.NewReadaloudCompletedEvent(
			job.OwnerID, job.ID, job.NovelID, job.ChapterIndex, len(job.Segments)))
	case domain.ReadaloudStatusFailed:
		w.logger.Warn("readaloud job failed",
			"job_id", jobID,
			"error", job.Error,
		)
		w.emitter.Emit(sse.NewReadaloudFailedEvent(
			job.OwnerID, job.ID, job.NovelID, job.ChapterIndex, job.Error))
	case domain.ReadaloudStatusPending, domain.ReadaloudStatusProcessing:
		// Still rendering; check again next tick.
	}
}
