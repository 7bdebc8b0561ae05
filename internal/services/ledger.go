package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nexconsult/egrn-tools/internal/config"
	"github.com/nexconsult/egrn-tools/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const ledgerKeyPrefix = "egrn:submission:"

// Ledger records submission outcomes in Redis, falling back to memory
// when Redis is not available
type Ledger struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Logger

	// In-memory fallback when Redis is not available
	mem      map[string]models.SubmissionResult
	memMutex sync.RWMutex
}

// NewLedger creates a new submission ledger. A nil client keeps everything in memory.
func NewLedger(client *redis.Client, ttl time.Duration, logger *logrus.Logger) *Ledger {
	return &Ledger{
		client: client,
		ttl:    ttl,
		logger: logger,
		mem:    make(map[string]models.SubmissionResult),
	}
}

// NewRedisClient connects to Redis, returning nil when it is disabled or unreachable
func NewRedisClient(cfg config.RedisConfig, logger *logrus.Logger) *redis.Client {
	if !cfg.Enabled {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.WithField("error", err.Error()).Warn("Redis connection failed, running without ledger persistence")
		client.Close()
		return nil
	}

	logger.Info("Redis connection established")
	return client
}

// Record stores the outcome of one object
func (l *Ledger) Record(ctx context.Context, result models.SubmissionResult) error {
	key := ledgerKeyPrefix + result.ObjectID

	if l.client != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to encode submission result: %w", err)
		}
		err = l.client.Set(ctx, key, data, l.ttl).Err()
		if err == nil {
			l.logger.WithField("key", key).Debug("Ledger set (Redis)")
			return nil
		}
		l.logger.WithFields(logrus.Fields{
			"key":   key,
			"error": err.Error(),
		}).Warn("Redis set error, falling back to memory ledger")
	}

	l.memMutex.Lock()
	l.mem[result.ObjectID] = result
	l.memMutex.Unlock()

	l.logger.WithField("key", key).Debug("Ledger set (memory)")
	return nil
}

// Lookup returns the recorded outcome of an object, nil when unknown
func (l *Ledger) Lookup(ctx context.Context, objectID string) (*models.SubmissionResult, error) {
	key := ledgerKeyPrefix + objectID

	if l.client != nil {
		data, err := l.client.Get(ctx, key).Bytes()
		if err == nil {
			var result models.SubmissionResult
			if err := json.Unmarshal(data, &result); err != nil {
				return nil, fmt.Errorf("failed to decode submission result: %w", err)
			}
			return &result, nil
		}
		if err != redis.Nil {
			l.logger.WithFields(logrus.Fields{
				"key":   key,
				"error": err.Error(),
			}).Warn("Redis get error, falling back to memory ledger")
		}
	}

	l.memMutex.RLock()
	result, exists := l.mem[objectID]
	l.memMutex.RUnlock()

	if !exists {
		return nil, nil
	}
	return &result, nil
}

// Health returns ledger health status
func (l *Ledger) Health() map[string]interface{} {
	health := make(map[string]interface{})

	if l.client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := l.client.Ping(ctx).Err(); err != nil {
			health["redis"] = map[string]interface{}{
				"status": "unhealthy",
				"error":  err.Error(),
			}
		} else {
			health["redis"] = map[string]interface{}{
				"status": "healthy",
			}
		}
	} else {
		health["redis"] = map[string]interface{}{
			"status": "disabled",
		}
	}

	l.memMutex.RLock()
	size := len(l.mem)
	l.memMutex.RUnlock()

	health["memory"] = map[string]interface{}{
		"status": "healthy",
		"size":   size,
	}

	return health
}
