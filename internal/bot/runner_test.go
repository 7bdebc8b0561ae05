package bot

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nexconsult/egrn-tools/internal/logger"
	"github.com/nexconsult/egrn-tools/internal/models"
	"github.com/nexconsult/egrn-tools/internal/queue"
	"github.com/nexconsult/egrn-tools/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubmitter struct {
	mu     sync.Mutex
	fail   map[string]bool
	order  []string
	cancel context.CancelFunc
}

func (f *fakeSubmitter) Submit(ctx context.Context, objectID string) models.SubmissionResult {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.order = append(f.order, objectID)
	if f.cancel != nil {
		f.cancel()
		return models.SubmissionResult{ObjectID: objectID, Failed: true, Attempts: 1}
	}
	if f.fail[objectID] {
		return models.SubmissionResult{ObjectID: objectID, Failed: true, Attempts: 6, FinishedAt: time.Now()}
	}
	return models.SubmissionResult{ObjectID: objectID, RequestID: "req-" + objectID, Attempts: 1, FinishedAt: time.Now()}
}

type runFixture struct {
	queuePath  string
	resultPath string
	runner     *Runner
	sleeps     []time.Duration
	ledger     *services.Ledger
}

func newRunFixture(t *testing.T, content string, submitter Submitter) *runFixture {
	t.Helper()

	queuePath := filepath.Join(t.TempDir(), "list.txt")
	require.NoError(t, os.WriteFile(queuePath, []byte(content), 0o644))

	q, err := queue.Load(queuePath)
	require.NoError(t, err)

	f := &runFixture{
		queuePath:  queuePath,
		resultPath: queue.ResultPath(queuePath),
		ledger:     services.NewLedger(nil, time.Hour, logger.Discard()),
	}
	f.runner = NewRunner(q, queue.NewResultSink(f.resultPath), submitter, f.ledger, 5*time.Minute, logger.Discard())
	f.runner.sleep = func(ctx context.Context, d time.Duration) error {
		f.sleeps = append(f.sleeps, d)
		return ctx.Err()
	}
	return f
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestRunner_ProcessesInReverseOrder(t *testing.T) {
	submitter := &fakeSubmitter{}
	f := newRunFixture(t, "A\nB\nC\n", submitter)

	require.NoError(t, f.runner.Run(context.Background()))

	assert.Equal(t, []string{"C", "B", "A"}, submitter.order)
	assert.Equal(t, []string{"C → req-C", "B → req-B", "A → req-A"}, readLines(t, f.resultPath))

	data, err := os.ReadFile(f.queuePath)
	require.NoError(t, err)
	assert.Empty(t, data)

	assert.Equal(t, []time.Duration{5 * time.Minute, 5 * time.Minute}, f.sleeps, "no wait after the last object")

	status := f.runner.Status()
	assert.True(t, status.Completed)
	assert.False(t, status.Waiting)
	assert.Equal(t, 3, status.Total)
	assert.Equal(t, 3, status.Processed)
	assert.Equal(t, 3, status.Succeeded)
	assert.Equal(t, 0, status.Remaining)
	assert.NotEmpty(t, status.RunID)
	require.NotNil(t, status.LastResult)
	assert.Equal(t, "A", status.LastResult.ObjectID)
}

func TestRunner_ContinuesAfterFailure(t *testing.T) {
	submitter := &fakeSubmitter{fail: map[string]bool{"B": true}}
	f := newRunFixture(t, "A\nB\nC", submitter)

	require.NoError(t, f.runner.Run(context.Background()))

	assert.Equal(t, []string{"C → req-C", "B → FAILED", "A → req-A"}, readLines(t, f.resultPath))

	status := f.runner.Status()
	assert.Equal(t, 2, status.Succeeded)
	assert.Equal(t, 1, status.Failed)

	recorded, err := f.ledger.Lookup(context.Background(), "B")
	require.NoError(t, err)
	require.NotNil(t, recorded)
	assert.True(t, recorded.Failed)
}

func TestRunner_EmptyQueue(t *testing.T) {
	submitter := &fakeSubmitter{}
	f := newRunFixture(t, "\n\n", submitter)

	require.NoError(t, f.runner.Run(context.Background()))

	assert.Empty(t, submitter.order)
	assert.True(t, f.runner.Status().Completed)
	_, err := os.Stat(f.resultPath)
	assert.True(t, os.IsNotExist(err))
}

func TestRunner_InterruptKeepsObjectQueued(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	submitter := &fakeSubmitter{cancel: cancel}
	f := newRunFixture(t, "A\nB", submitter)

	err := f.runner.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	data, readErr := os.ReadFile(f.queuePath)
	require.NoError(t, readErr)
	assert.Equal(t, "A\nB", string(data))
	assert.False(t, f.runner.Status().Completed)
}
