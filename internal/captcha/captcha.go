package captcha

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/nexconsult/egrn-tools/internal/logger"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Task types understood by the anti-captcha API
const (
	TaskTypeImageToText = "ImageToTextTask"

	statusReady      = "ready"
	statusProcessing = "processing"
)

// RemoteClient is the subset of the anti-captcha API the solver needs
type RemoteClient interface {
	GetBalance(ctx context.Context) (float64, error)
	CreateTask(ctx context.Context, task Task) (int64, error)
	GetTaskResult(ctx context.Context, taskID int64) (*TaskResult, error)
}

// Task is an anti-captcha task definition
type Task struct {
	Type string `json:"type"`
	Body string `json:"body"`
}

// TaskResult is the state of a previously created task
type TaskResult struct {
	Status   string `json:"status"`
	Solution struct {
		Text string `json:"text"`
	} `json:"solution"`
	Cost string `json:"cost,omitempty"`
}

// Ready reports whether the task has a solution
func (r *TaskResult) Ready() bool {
	return r.Status == statusReady
}

// apiResponse is the envelope shared by all anti-captcha responses
type apiResponse struct {
	ErrorID          int     `json:"errorId"`
	ErrorCode        string  `json:"errorCode,omitempty"`
	ErrorDescription string  `json:"errorDescription,omitempty"`
	Balance          float64 `json:"balance,omitempty"`
	TaskID           int64   `json:"taskId,omitempty"`
	TaskResult
}

// ClientStats are the counters of an AntiCaptchaClient
type ClientStats struct {
	TotalRequests  int64     `json:"total_requests"`
	FailedRequests int64     `json:"failed_requests"`
	TasksCreated   int64     `json:"tasks_created"`
	LastRequest    time.Time `json:"last_request"`
}

// ClientOptions tunes an AntiCaptchaClient
type ClientOptions struct {
	BaseURL           string
	HTTPTimeout       time.Duration
	RequestsPerSecond float64
	Burst             int
}

// AntiCaptchaClient talks JSON to the anti-captcha API
type AntiCaptchaClient struct {
	clientKey  string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logrus.Entry

	mu    sync.RWMutex
	stats ClientStats
}

// NewAntiCaptchaClient creates a new anti-captcha client
func NewAntiCaptchaClient(clientKey string, opts ClientOptions, log *logrus.Logger) *AntiCaptchaClient {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.anti-captcha.com"
	}
	if opts.HTTPTimeout <= 0 {
		opts.HTTPTimeout = 15 * time.Second
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 2
	}
	if opts.Burst <= 0 {
		opts.Burst = 2
	}

	return &AntiCaptchaClient{
		clientKey: clientKey,
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: opts.HTTPTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     60 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
		logger:  logger.WithComponent(log, "anticaptcha"),
	}
}

// GetBalance returns the account balance in USD
func (c *AntiCaptchaClient) GetBalance(ctx context.Context) (float64, error) {
	resp, err := c.call(ctx, "getBalance", map[string]interface{}{})
	if err != nil {
		return 0, err
	}
	return resp.Balance, nil
}

// CreateTask submits a task and returns its id
func (c *AntiCaptchaClient) CreateTask(ctx context.Context, task Task) (int64, error) {
	resp, err := c.call(ctx, "createTask", map[string]interface{}{"task": task})
	if err != nil {
		return 0, err
	}
	if resp.TaskID == 0 {
		return 0, fmt.Errorf("%w: empty task id in createTask response", ErrCaptchaService)
	}

	c.mu.Lock()
	c.stats.TasksCreated++
	c.mu.Unlock()

	c.logger.WithField("task_id", resp.TaskID).Info("ANTICAPTCHA TASK ID")
	return resp.TaskID, nil
}

// GetTaskResult fetches the current state of a task
func (c *AntiCaptchaClient) GetTaskResult(ctx context.Context, taskID int64) (*TaskResult, error) {
	resp, err := c.call(ctx, "getTaskResult", map[string]interface{}{"taskId": taskID})
	if err != nil {
		return nil, err
	}
	switch resp.Status {
	case statusReady, statusProcessing:
	default:
		return nil, fmt.Errorf("%w: unknown task status %q", ErrCaptchaService, resp.Status)
	}
	result := resp.TaskResult
	return &result, nil
}

// GetStats returns a copy of the client counters
func (c *AntiCaptchaClient) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// call posts one API method and decodes the envelope
func (c *AntiCaptchaClient) call(ctx context.Context, method string, payload map[string]interface{}) (*apiResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	c.mu.Lock()
	c.stats.TotalRequests++
	c.stats.LastRequest = time.Now()
	c.mu.Unlock()

	resp, err := c.post(ctx, method, payload)
	if err != nil {
		c.mu.Lock()
		c.stats.FailedRequests++
		c.mu.Unlock()
		return nil, err
	}
	return resp, nil
}

func (c *AntiCaptchaClient) post(ctx context.Context, method string, payload map[string]interface{}) (*apiResponse, error) {
	payload["clientKey"] = c.clientKey

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s request failed: %v", ErrCaptchaService, method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned HTTP %d", ErrCaptchaService, method, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s response: %v", ErrCaptchaService, method, err)
	}

	var out apiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s response: %v", ErrCaptchaService, method, err)
	}

	if out.ErrorID != 0 {
		return nil, &ServiceError{
			ID:          out.ErrorID,
			Code:        out.ErrorCode,
			Description: out.ErrorDescription,
		}
	}

	return &out, nil
}
