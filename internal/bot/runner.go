package bot

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nexconsult/egrn-tools/internal/models"
	"github.com/nexconsult/egrn-tools/internal/queue"
	"github.com/nexconsult/egrn-tools/internal/services"
	"github.com/nexconsult/egrn-tools/internal/utils"
	"github.com/sirupsen/logrus"
)

// Submitter submits the extract request of one object
type Submitter interface {
	Submit(ctx context.Context, objectID string) models.SubmissionResult
}

// Runner drains the object queue one object at a time
type Runner struct {
	queue     *queue.Queue
	sink      *queue.ResultSink
	submitter Submitter
	ledger    services.LedgerInterface
	interval  time.Duration
	logger    *logrus.Logger
	sleep     func(ctx context.Context, d time.Duration) error

	mu     sync.RWMutex
	status models.RunStatus
}

// NewRunner creates a runner. ledger may be nil.
func NewRunner(q *queue.Queue, sink *queue.ResultSink, submitter Submitter, ledger services.LedgerInterface, interval time.Duration, logger *logrus.Logger) *Runner {
	return &Runner{
		queue:     q,
		sink:      sink,
		submitter: submitter,
		ledger:    ledger,
		interval:  interval,
		logger:    logger,
		sleep:     utils.SleepContext,
		status: models.RunStatus{
			RunID:     uuid.New().String(),
			Total:     q.Len(),
			Remaining: q.Len(),
		},
	}
}

// Status returns a snapshot of the run progress
func (r *Runner) Status() models.RunStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status := r.status
	if status.LastResult != nil {
		last := *status.LastResult
		status.LastResult = &last
	}
	return status
}

// Run submits every queued object, last id first, pausing between objects.
// A failed object is recorded and the run continues; only a cancelled
// context or a storage error stops it.
func (r *Runner) Run(ctx context.Context) error {
	r.updateStatus(func(s *models.RunStatus) { s.StartedAt = time.Now() })
	r.logger.WithField("run_id", r.Status().RunID).Infof("STARTED ON %s", time.Now().Format(time.RFC1123))

	for {
		objectID, ok := r.queue.Peek()
		if !ok {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		r.logger.Infof("PROCESSING %s", objectID)
		r.updateStatus(func(s *models.RunStatus) {
			s.Current = objectID
			s.Waiting = false
		})

		result := r.submitter.Submit(ctx, objectID)
		if ctx.Err() != nil && result.Failed {
			// Interrupted mid-attempt: leave the id queued for the next run
			return ctx.Err()
		}

		r.logger.Info(result.String())
		if err := r.sink.Append(result); err != nil {
			return err
		}
		if r.ledger != nil {
			if err := r.ledger.Record(ctx, result); err != nil {
				r.logger.WithFields(logrus.Fields{
					"object_id": objectID,
					"error":     err.Error(),
				}).Warn("Failed to record submission in ledger")
			}
		}

		r.queue.Pop()
		if err := r.queue.Persist(); err != nil {
			return err
		}

		remaining := r.queue.Len()
		r.updateStatus(func(s *models.RunStatus) {
			s.Processed++
			if result.Failed {
				s.Failed++
			} else {
				s.Succeeded++
			}
			s.Remaining = remaining
			s.Current = ""
			s.LastResult = &result
		})
		r.logger.Infof("DONE ON %s", time.Now().Format(time.RFC1123))

		if remaining > 0 {
			r.logger.Info("WAITING…")
			r.updateStatus(func(s *models.RunStatus) { s.Waiting = true })
			if err := r.sleep(ctx, r.interval); err != nil {
				return err
			}
		}
	}

	r.updateStatus(func(s *models.RunStatus) {
		s.Waiting = false
		s.Completed = true
	})
	r.logger.Info("COMPLETED")
	return nil
}

func (r *Runner) updateStatus(fn func(s *models.RunStatus)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.status)
}
