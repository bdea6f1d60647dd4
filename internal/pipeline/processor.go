package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KaramelBytes/datalens/internal/analysis"
	"github.com/KaramelBytes/datalens/internal/config"
	"github.com/KaramelBytes/datalens/internal/dataset"
	"github.com/KaramelBytes/datalens/internal/logging"
	"github.com/KaramelBytes/datalens/internal/metrics"
)

// DefaultSampleRows is the number of records included in a Summary.
const DefaultSampleRows = 5

// Options customizes a Processor. Zero values select the defaults.
type Options struct {
	// HTTPClient overrides the client built from HTTPTimeout.
	HTTPClient       *http.Client
	HTTPTimeout      time.Duration
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration

	Logger     *zap.Logger
	Schema     analysis.Schema
	SampleRows int
}

// OptionsFromConfig maps the global configuration onto processor options.
func OptionsFromConfig(c *config.Global, logger *zap.Logger) Options {
	schema := analysis.DefaultSchema()
	if c.ScoreColumn != "" {
		schema.Score = c.ScoreColumn
	}
	if c.RegionColumn != "" {
		schema.Region = c.RegionColumn
	}
	if c.EntityColumn != "" {
		schema.Entity = c.EntityColumn
	}
	if c.YearColumn != "" {
		schema.Year = c.YearColumn
	}
	return Options{
		HTTPTimeout:      time.Duration(c.HTTPTimeoutSec) * time.Second,
		RetryMaxAttempts: c.RetryMaxAttempts,
		RetryBaseDelay:   time.Duration(c.RetryBaseDelayMs) * time.Millisecond,
		RetryMaxDelay:    time.Duration(c.RetryMaxDelayMs) * time.Millisecond,
		Logger:           logger,
		Schema:           schema,
		SampleRows:       c.SampleRows,
	}
}

// Processor runs fetch, clean, analyze and summarize over one source. Each
// stage runs on first request and caches its result until Invalidate. A
// Processor is not safe for concurrent use.
type Processor struct {
	source string
	runID  string
	logger *zap.Logger

	httpClient       *http.Client
	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration

	schema     analysis.Schema
	sampleRows int

	fetched     *FetchResult
	clean       *dataset.Dataset
	cleanReport *CleanReport
	analyzed    *dataset.Dataset
	report      *analysis.Report
}

// New returns a Processor bound to source, a URL or a local path.
func New(source string, opts Options) *Processor {
	if opts.HTTPTimeout <= 0 {
		opts.HTTPTimeout = 30 * time.Second
	}
	if opts.RetryMaxAttempts <= 0 {
		opts.RetryMaxAttempts = 3
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = 500 * time.Millisecond
	}
	if opts.RetryMaxDelay <= 0 {
		opts.RetryMaxDelay = 4 * time.Second
	}
	if opts.SampleRows <= 0 {
		opts.SampleRows = DefaultSampleRows
	}
	if opts.Schema == (analysis.Schema{}) {
		opts.Schema = analysis.DefaultSchema()
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.HTTPTimeout}
	}
	runID := uuid.NewString()
	return &Processor{
		source:           source,
		runID:            runID,
		logger:           logging.OrNop(opts.Logger).With(zap.String("run_id", runID), zap.String("source", source)),
		httpClient:       client,
		retryMaxAttempts: opts.RetryMaxAttempts,
		retryBaseDelay:   opts.RetryBaseDelay,
		retryMaxDelay:    opts.RetryMaxDelay,
		schema:           opts.Schema,
		sampleRows:       opts.SampleRows,
	}
}

// Source returns the locator the processor is bound to.
func (p *Processor) Source() string { return p.source }

// RunID identifies the processor in logs.
func (p *Processor) RunID() string { return p.runID }

// Invalidate drops every cached stage so the next request refetches.
func (p *Processor) Invalidate() {
	p.fetched = nil
	p.clean, p.cleanReport = nil, nil
	p.analyzed, p.report = nil, nil
}

// Analyze returns the analysis report, cleaning first when needed.
func (p *Processor) Analyze(ctx context.Context) (*analysis.Report, error) {
	if p.report != nil {
		return p.report, nil
	}
	clean, _, err := p.Clean(ctx)
	if err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}
	start := time.Now()
	p.report, p.analyzed = analysis.Analyze(clean, p.schema)
	metrics.StageDurationSeconds.WithLabelValues("analyze").Observe(time.Since(start).Seconds())
	p.logger.Info("analyzed dataset", zap.Int("rows", p.analyzed.Len()), zap.Int("stats_columns", p.report.Stats.Len()))
	return p.report, nil
}

// Analyzed returns the cleaned dataset with the derived category column.
func (p *Processor) Analyzed(ctx context.Context) (*dataset.Dataset, error) {
	if _, err := p.Analyze(ctx); err != nil {
		return nil, err
	}
	return p.analyzed, nil
}

// Records returns the analyzed dataset as schema-bound rows.
func (p *Processor) Records(ctx context.Context) ([]dataset.Row, error) {
	ds, err := p.Analyzed(ctx)
	if err != nil {
		return nil, err
	}
	return ds.Records(), nil
}

// Summarize returns the structural summary of the analyzed dataset.
func (p *Processor) Summarize(ctx context.Context) (*Summary, error) {
	ds, err := p.Analyzed(ctx)
	if err != nil {
		return nil, fmt.Errorf("summarize: %w", err)
	}
	return Summarize(ds, p.sampleRows), nil
}
