package captcha

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nexconsult/egrn-tools/internal/logger"
	"github.com/sirupsen/logrus"
)

// MinImageLength is the shortest base64 payload accepted as a real captcha image
const MinImageLength = 600

// SolverConfig tunes a Solver
type SolverConfig struct {
	MinBalance   float64
	PollInterval time.Duration
	PollTimeout  time.Duration
	// EmptyOnError makes Solve log failures and return "" instead of an error
	EmptyOnError bool
}

// Solver turns a captured captcha image into text through a RemoteClient
type Solver struct {
	client RemoteClient
	config SolverConfig
	logger *logrus.Entry
}

// NewSolver creates a new captcha solver
func NewSolver(client RemoteClient, cfg SolverConfig, log *logrus.Logger) *Solver {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 2 * time.Minute
	}
	return &Solver{
		client: client,
		config: cfg,
		logger: logger.WithComponent(log, "captcha"),
	}
}

// Solve recognizes the text of a base64 encoded captcha image
func (s *Solver) Solve(ctx context.Context, image string) (string, error) {
	text, err := s.solve(ctx, image)
	if err != nil {
		if s.config.EmptyOnError {
			s.logger.WithError(err).Error("Captcha solving failed")
			return "", nil
		}
		return "", err
	}
	return text, nil
}

func (s *Solver) solve(ctx context.Context, image string) (string, error) {
	if len(image) < MinImageLength {
		return "", fmt.Errorf("%w: payload has %d base64 characters, need at least %d",
			ErrCaptchaCorrupted, len(image), MinImageLength)
	}

	s.checkBalance(ctx)

	taskID, err := s.client.CreateTask(ctx, Task{Type: TaskTypeImageToText, Body: image})
	if err != nil {
		return "", fmt.Errorf("failed to create captcha task: %w", err)
	}

	text, err := s.waitForSolution(ctx, taskID)
	if err != nil {
		return "", err
	}

	s.logger.WithFields(logrus.Fields{
		"task_id": taskID,
		"text":    text,
	}).Info("CAPTCHA TEXT")
	return text, nil
}

// checkBalance warns about a low balance; it never fails the solve
func (s *Solver) checkBalance(ctx context.Context) {
	balance, err := s.client.GetBalance(ctx)
	if err != nil {
		var svcErr *ServiceError
		if errors.As(err, &svcErr) && svcErr.Blocked() {
			s.logger.WithError(err).Warn("Anti-captcha account is blocked or unfunded")
			return
		}
		s.logger.WithError(err).Warn("Failed to check anti-captcha balance")
		return
	}
	if balance < s.config.MinBalance {
		s.logger.WithFields(logrus.Fields{
			"balance":     balance,
			"min_balance": s.config.MinBalance,
		}).Warn("ANTICAPTCHA: running low on money")
	}
}

// waitForSolution polls the task until it is ready or the poll timeout elapses
func (s *Solver) waitForSolution(ctx context.Context, taskID int64) (string, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, s.config.PollTimeout)
	defer cancel()

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-timeoutCtx.Done():
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", fmt.Errorf("%w: timeout waiting for task %d after %v",
				ErrCaptchaService, taskID, s.config.PollTimeout)
		case <-ticker.C:
			result, err := s.client.GetTaskResult(timeoutCtx, taskID)
			if err != nil {
				return "", fmt.Errorf("failed to get captcha task result: %w", err)
			}
			if !result.Ready() {
				s.logger.WithField("task_id", taskID).Debug("Captcha not ready yet")
				continue
			}
			if result.Solution.Text == "" {
				return "", fmt.Errorf("%w: empty solution for task %d", ErrCaptchaService, taskID)
			}
			return result.Solution.Text, nil
		}
	}
}
