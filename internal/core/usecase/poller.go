package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/dcmshi/expense-tracker/internal/core/domain"
	"github.com/dcmshi/expense-tracker/internal/core/ports"
)

// PollObserver receives per-job and per-cycle measurements from the poller.
type PollObserver interface {
	StartJob()
	FinishJob(status domain.ProcessingStatus, duration time.Duration, err error)
	ObserveQueueLag(lag time.Duration)
	PollFailed()
}

type noopObserver struct{}

func (noopObserver) StartJob()                                               {}
func (noopObserver) FinishJob(domain.ProcessingStatus, time.Duration, error) {}
func (noopObserver) ObserveQueueLag(time.Duration)                           {}
func (noopObserver) PollFailed()                                             {}

type Poller struct {
	jobs      ports.JobRepository
	processor ports.JobProcessor
	batchSize int
	observer  PollObserver
	now       func() time.Time
}

func NewPoller(jobs ports.JobRepository, processor ports.JobProcessor, batchSize int, observer PollObserver) *Poller {
	if batchSize <= 0 {
		batchSize = 10
	}
	if observer == nil {
		observer = noopObserver{}
	}
	return &Poller{
		jobs:      jobs,
		processor: processor,
		batchSize: batchSize,
		observer:  observer,
		now:       time.Now,
	}
}

// PollOnce runs one cycle over the eligible jobs, oldest first, and returns
// how many were handed to the processor. Errors never abort the cycle.
func (p *Poller) PollOnce(ctx context.Context) int {
	now := p.now().UTC()
	jobs, err := p.jobs.ListPending(ctx, now, p.batchSize)
	if err != nil {
		p.observer.PollFailed()
		slog.Error("poll_list_failed", "error", err)
		return 0
	}

	for _, job := range jobs {
		p.observer.ObserveQueueLag(now.Sub(job.CreatedAt))
		p.observer.StartJob()
		started := time.Now()

		status, err := p.processor.ProcessJob(ctx, job.ID)
		p.observer.FinishJob(status, time.Since(started), err)
		if err != nil {
			slog.Error("job_process_error", "job_id", job.ID, "expense_id", job.ExpenseID, "error", err)
		}
	}
	return len(jobs)
}

// Run polls until ctx is cancelled. A cycle starts immediately, then after
// every interval tick or wake signal. Cancellation is observed between cycles
// only, so an in-flight batch finishes.
func (p *Poller) Run(ctx context.Context, interval time.Duration, wake <-chan struct{}) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("poller_started", "interval_ms", interval.Milliseconds(), "batch_size", p.batchSize)
	for {
		p.PollOnce(context.WithoutCancel(ctx))

		select {
		case <-ctx.Done():
			slog.Info("poller_stopped")
			return
		case <-ticker.C:
		case <-wake:
		}
	}
}
