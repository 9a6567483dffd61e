package release

import (
	"context"
	"time"

	"github.com/riverqueue/river"
)

type ReleaseDuePaymentsArgs struct{}

func (ReleaseDuePaymentsArgs) Kind() string { return "release_due_payments" }

// ReleaseDuePaymentsWorker runs the scheduler from the River queue.
type ReleaseDuePaymentsWorker struct {
	river.WorkerDefaults[ReleaseDuePaymentsArgs]
	scheduler  *Scheduler
	runTimeout time.Duration
}

func NewReleaseDuePaymentsWorker(s *Scheduler, runTimeout time.Duration) *ReleaseDuePaymentsWorker {
	return &ReleaseDuePaymentsWorker{scheduler: s, runTimeout: runTimeout}
}

func (w *ReleaseDuePaymentsWorker) Work(ctx context.Context, job *river.Job[ReleaseDuePaymentsArgs]) error {
	// Per-item failures are in the result; only a failed listing is retried.
	_, err := w.scheduler.ReleaseDuePayments(ctx)
	return err
}

func (w *ReleaseDuePaymentsWorker) Timeout(*river.Job[ReleaseDuePaymentsArgs]) time.Duration {
	if w.runTimeout > 0 {
		return w.runTimeout
	}
	return w.WorkerDefaults.Timeout(nil)
}

// PeriodicJob schedules a release run every interval and once at start.
// Runs inserted within the same period collapse into one.
func PeriodicJob(interval time.Duration) *river.PeriodicJob {
	return river.NewPeriodicJob(
		river.PeriodicInterval(interval),
		func() (river.JobArgs, *river.InsertOpts) {
			return ReleaseDuePaymentsArgs{}, &river.InsertOpts{
				UniqueOpts: river.UniqueOpts{ByPeriod: interval},
			}
		},
		&river.PeriodicJobOpts{RunOnStart: true},
	)
}
