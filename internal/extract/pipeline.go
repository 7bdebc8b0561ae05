package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nexconsult/egrn-tools/internal/archive"
	"github.com/nexconsult/egrn-tools/internal/models"
	"github.com/nexconsult/egrn-tools/internal/table"
	"github.com/nexconsult/egrn-tools/internal/worker"
	"github.com/sirupsen/logrus"
)

// ResultFileName is the table written into the destination directory
const ResultFileName = "result.csv"

// Unpacker turns one archive into an XML document on disk
type Unpacker interface {
	Extract(ctx context.Context, archivePath string) (string, error)
}

// RecordExtractor maps an XML document to a record
type RecordExtractor interface {
	ExtractFile(path string) (models.RealtyRecord, error)
}

// ResultTable collects records produced by concurrent jobs
type ResultTable struct {
	mu      sync.Mutex
	records []models.RealtyRecord
}

// Append adds one record
func (t *ResultTable) Append(record models.RealtyRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = append(t.records, record)
}

// Len returns the number of collected records
func (t *ResultTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

// Sorted returns the collected records in table order
func (t *ResultTable) Sorted() []models.RealtyRecord {
	t.mu.Lock()
	records := append([]models.RealtyRecord(nil), t.records...)
	t.mu.Unlock()

	table.Sort(records)
	return records
}

// Options configures one extraction run
type Options struct {
	ArchivesDir string
	DestDir     string
	Extension   string
	Concurrency int
}

// Summary describes a finished run
type Summary struct {
	Matched   int           `json:"matched"`
	Extracted int           `json:"extracted"`
	Failed    int           `json:"failed"`
	Output    string        `json:"output"`
	Duration  time.Duration `json:"duration"`
}

// Pipeline finds archives, extracts one record from each and writes the table
type Pipeline struct {
	walker    *archive.Walker
	unpacker  Unpacker
	extractor RecordExtractor
	opts      Options
	logger    *logrus.Logger
}

// NewPipeline creates a new pipeline
func NewPipeline(walker *archive.Walker, unpacker Unpacker, extractor RecordExtractor, opts Options, logger *logrus.Logger) *Pipeline {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.DestDir == "" {
		opts.DestDir = "."
	}

	return &Pipeline{
		walker:    walker,
		unpacker:  unpacker,
		extractor: extractor,
		opts:      opts,
		logger:    logger,
	}
}

// Run processes every archive under the archives directory. A failing
// archive is logged and contributes no record.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	results := &ResultTable{}

	pool := worker.NewPool(p.opts.Concurrency, p.logger)
	pool.Start()

	var matched int
	var failed int64

	walkErr := p.walker.Walk(ctx, p.opts.ArchivesDir, p.opts.Extension, func(path string) error {
		p.logger.Infof("FILE => %s", path)
		matched++

		return pool.Submit(ctx, path, func(context.Context) error {
			record, err := p.process(ctx, path)
			if err != nil {
				atomic.AddInt64(&failed, 1)
				p.logger.WithFields(logrus.Fields{
					"file":  path,
					"error": err.Error(),
				}).Error("FAILED")
				return err
			}
			results.Append(record)
			return nil
		})
	})

	if ctx.Err() != nil {
		pool.Stop()
		return nil, ctx.Err()
	}

	// Join barrier: every dispatched archive finishes before the table is written
	pool.Wait()
	if walkErr != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", p.opts.ArchivesDir, walkErr)
	}
	p.logger.Infof("FINISHED %s", filepath.Clean(p.opts.ArchivesDir))

	records := results.Sorted()
	output := filepath.Join(p.opts.DestDir, ResultFileName)
	if err := table.Write(output, records); err != nil {
		return nil, err
	}

	summary := &Summary{
		Matched:   matched,
		Extracted: len(records),
		Failed:    int(atomic.LoadInt64(&failed)),
		Output:    output,
		Duration:  time.Since(start),
	}

	p.logger.WithFields(logrus.Fields{
		"matched":  summary.Matched,
		"failed":   summary.Failed,
		"duration": summary.Duration.String(),
	}).Infof("WROTE %d records to %s", summary.Extracted, output)

	return summary, nil
}

// process unpacks one archive and extracts its record
func (p *Pipeline) process(ctx context.Context, archivePath string) (models.RealtyRecord, error) {
	xmlPath, err := p.unpacker.Extract(ctx, archivePath)
	if err != nil {
		return models.RealtyRecord{}, err
	}
	return p.extractor.ExtractFile(xmlPath)
}
