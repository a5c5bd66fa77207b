package rate

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var ErrRunnerNotStarted = errors.New("backfill runner is not started")

type Backfiller interface {
	Backfill(ctx context.Context) ([]time.Time, error)
}

// BackfillRunner runs on-demand backfills in the background, one at a time.
type BackfillRunner struct {
	backfiller Backfiller
	// -----
	mu    sync.Mutex
	sched gocron.Scheduler
}

func (r *BackfillRunner) Start(ctx context.Context) error {
	scheduler, err := gocron.NewScheduler(
		gocron.WithLimitConcurrentJobs(1, gocron.LimitModeWait),
	)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.sched = scheduler
	r.mu.Unlock()

	scheduler.Start()

	// Stop scheduler when the provided context is canceled.
	go func() {
		<-ctx.Done()
		if sdErr := r.Shutdown(); sdErr != nil {
			logrus.Errorf("Backfill runner shutdown error: %v", sdErr)
		}
	}()
	return nil
}

// Trigger queues a backfill and returns its job id. The backfill skips dates
// that are already stored, so repeated triggers are harmless.
func (r *BackfillRunner) Trigger(_ context.Context) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sched == nil {
		return uuid.Nil, ErrRunnerNotStarted
	}

	// the task may start before NewJob returns, so the id is handed over once known
	idCh := make(chan uuid.UUID, 1)
	task := func(jobCtx context.Context) {
		jobID := <-idCh
		days, err := r.backfiller.Backfill(jobCtx)
		if err != nil {
			logrus.WithError(err).WithField("job_id", jobID).Error("Requested backfill failed")
			return
		}
		logrus.WithFields(logrus.Fields{"job_id": jobID, "days": len(days)}).Info("✅ Requested backfill finished")
	}

	job, err := r.sched.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartImmediately()),
		gocron.NewTask(task),
		gocron.WithName("backfill"),
		gocron.WithLimitedRuns(1),
	)
	if err != nil {
		return uuid.Nil, err
	}
	idCh <- job.ID()
	return job.ID(), nil
}

func (r *BackfillRunner) Shutdown() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sched == nil {
		return nil
	}
	err := r.sched.Shutdown()
	r.sched = nil
	return err
}

func NewBackfillRunner(backfiller Backfiller) *BackfillRunner {
	return &BackfillRunner{backfiller: backfiller}
}
