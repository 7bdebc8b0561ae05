package services

import (
	"context"
	"time"

	"github.com/nexconsult/egrn-tools/internal/config"
	"github.com/nexconsult/egrn-tools/internal/models"
	"github.com/nexconsult/egrn-tools/internal/utils"
	"github.com/sirupsen/logrus"
)

// SessionConfig holds the parameters of the submission flow
type SessionConfig struct {
	PortalURL      string
	AccessKey      string
	Region         string
	MaxRetries     int
	RetryDelay     time.Duration
	ActionTimeout  time.Duration
	CaptchaTimeout time.Duration
}

// NewSessionConfig derives the session parameters from the bot configuration
func NewSessionConfig(cfg *config.Config) SessionConfig {
	return SessionConfig{
		PortalURL:      cfg.Bot.PortalURL,
		AccessKey:      cfg.Bot.AccessKey,
		Region:         cfg.Bot.Region,
		MaxRetries:     cfg.Bot.MaxRetries,
		RetryDelay:     cfg.Bot.RetryDelay,
		CaptchaTimeout: cfg.Captcha.PollTimeout + time.Minute,
	}
}

// Session drives the registry portal to submit one extract request per object
type Session struct {
	browser Browser
	solver  CaptchaSolver
	cfg     SessionConfig
	steps   []Step
	logger  *logrus.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewSession creates a session driver over an open browser
func NewSession(browser Browser, solver CaptchaSolver, cfg SessionConfig, logger *logrus.Logger) *Session {
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = 30 * time.Second
	}
	if cfg.CaptchaTimeout <= 0 {
		cfg.CaptchaTimeout = 3 * time.Minute
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	return &Session{
		browser: browser,
		solver:  solver,
		cfg:     cfg,
		steps:   newSubmissionSteps(cfg),
		logger:  logger,
		sleep:   utils.SleepContext,
	}
}

// Submit runs the submission flow for objectID, restarting from a clean
// session on any failure. Exhausted attempts yield a failed result.
func (s *Session) Submit(ctx context.Context, objectID string) models.SubmissionResult {
	result := models.SubmissionResult{ObjectID: objectID}
	maxAttempts := s.cfg.MaxRetries + 1

	for n := 1; n <= maxAttempts; n++ {
		result.Attempts = n

		requestID, err := s.runAttempt(ctx, objectID)
		if err == nil {
			result.RequestID = requestID
			result.LastError = ""
			result.FinishedAt = time.Now()
			return result
		}

		result.LastError = err.Error()
		s.logger.WithFields(logrus.Fields{
			"object_id": objectID,
			"attempt":   n,
			"error":     err.Error(),
		}).Warn("Submission attempt failed")

		if ctx.Err() != nil || n == maxAttempts {
			break
		}

		s.logger.Infof("RETRYING %s FOR %d TIME", objectID, n)
		if err := s.sleep(ctx, s.cfg.RetryDelay); err != nil {
			result.LastError = err.Error()
			break
		}
	}

	result.Failed = true
	result.FinishedAt = time.Now()
	return result
}

// runAttempt walks the full step table once
func (s *Session) runAttempt(ctx context.Context, objectID string) (string, error) {
	a := &attempt{objectID: objectID}

	for _, step := range s.steps {
		if err := s.runStep(ctx, step, a); err != nil {
			return "", err
		}
		s.logger.WithFields(logrus.Fields{
			"object_id": objectID,
			"step":      step.Name,
		}).Debug("Step completed")
	}

	return a.requestID, nil
}
