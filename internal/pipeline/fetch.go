package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/KaramelBytes/datalens/internal/dataset"
	"github.com/KaramelBytes/datalens/internal/metrics"
	"github.com/KaramelBytes/datalens/internal/parser"
)

// maxBodyBytes caps how much of a remote body is read.
const maxBodyBytes = 64 << 20

// Outcome tells which branch produced a FetchResult.
type Outcome string

const (
	Fetched  Outcome = "fetched"
	Fallback Outcome = "fallback"
)

// FetchResult is the raw dataset together with the branch that produced it.
// Cause is set only for Fallback and holds the *SourceUnavailableError.
type FetchResult struct {
	Outcome Outcome
	Data    *dataset.Dataset
	Cause   error
}

// Fetch returns the raw dataset for the processor's source, retrieving and
// parsing it on first use. When the source cannot be retrieved the built-in
// demo dataset is used instead and the cause is recorded on the result. A body
// that cannot be parsed is returned as *DataFormatError and nothing is cached.
func (p *Processor) Fetch(ctx context.Context) (*FetchResult, error) {
	if p.fetched != nil {
		return p.fetched, nil
	}
	start := time.Now()
	defer func() {
		metrics.StageDurationSeconds.WithLabelValues("fetch").Observe(time.Since(start).Seconds())
	}()

	body, err := p.retrieve(ctx, p.source)
	if err != nil {
		p.logger.Warn("source unavailable, using demo dataset", zap.Error(err))
		metrics.FetchTotal.WithLabelValues(string(Fallback)).Inc()
		p.fetched = &FetchResult{Outcome: Fallback, Data: DemoDataset(), Cause: err}
		return p.fetched, nil
	}
	ds, err := parser.Parse(p.source, body)
	if err != nil {
		return nil, err
	}
	metrics.FetchTotal.WithLabelValues(string(Fetched)).Inc()
	p.logger.Info("fetched dataset", zap.Int("rows", ds.Len()), zap.Int("columns", len(ds.Columns)))
	p.fetched = &FetchResult{Outcome: Fetched, Data: ds}
	return p.fetched, nil
}

// FetchFrom is Fetch with an explicit locator. An empty locator or the
// processor's own source is accepted; anything else yields ErrLocatorOverride.
func (p *Processor) FetchFrom(ctx context.Context, locator string) (*FetchResult, error) {
	if locator != "" && locator != p.source {
		return nil, ErrLocatorOverride
	}
	return p.Fetch(ctx)
}

// IsRemote reports whether the locator is fetched over HTTP.
func IsRemote(locator string) bool {
	l := strings.ToLower(locator)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

// retrieve reads the locator body. Every failure is a *SourceUnavailableError.
func (p *Processor) retrieve(ctx context.Context, locator string) ([]byte, error) {
	if !IsRemote(locator) {
		b, err := os.ReadFile(locator)
		if err != nil {
			return nil, &SourceUnavailableError{Source: locator, Err: err}
		}
		return b, nil
	}

	maxAttempts := p.retryMaxAttempts
	backoff := p.retryBaseDelay
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, &SourceUnavailableError{Source: locator, Err: ctx.Err()}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
		if err != nil {
			return nil, &SourceUnavailableError{Source: locator, Err: fmt.Errorf("build request: %w", err)}
		}
		req.Header.Set("User-Agent", "datalens")

		resp, err := p.httpClient.Do(req)
		if err != nil {
			lastErr = &SourceUnavailableError{Source: locator, Err: fmt.Errorf("http request: %w", err)}
			if isRetryableNetErr(err) && attempt < maxAttempts {
				p.logger.Debug("retrying fetch", zap.Int("attempt", attempt), zap.Error(err))
				p.sleep(ctx, backoff)
				backoff *= 2
				continue
			}
			return nil, lastErr
		}
		body, err := readBody(resp)
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if err != nil {
				return nil, &SourceUnavailableError{Source: locator, StatusCode: resp.StatusCode, Err: err}
			}
			return body, nil
		}
		lastErr = &SourceUnavailableError{
			Source:     locator,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", http.StatusText(resp.StatusCode)),
		}
		if (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500) && attempt < maxAttempts {
			p.logger.Debug("retrying fetch", zap.Int("attempt", attempt), zap.Int("status", resp.StatusCode))
			wait := withJitter(backoff)
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, err := parseRetryAfterSeconds(ra); err == nil && secs > 0 {
					wait = time.Duration(secs) * time.Second
				}
			}
			p.sleep(ctx, wait)
			backoff *= 2
			continue
		}
		return nil, lastErr
	}
	return nil, lastErr
}

func readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return b, nil
}

// sleep waits for d, capped at the configured maximum delay, or until ctx ends.
func (p *Processor) sleep(ctx context.Context, d time.Duration) {
	if p.retryMaxDelay > 0 && d > p.retryMaxDelay {
		d = p.retryMaxDelay
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func isRetryableNetErr(err error) bool {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, syscall.ECONNRESET)
}

// parseRetryAfterSeconds interprets a Retry-After header as seconds or an HTTP date.
func parseRetryAfterSeconds(v string) (int, error) {
	if s, err := strconv.Atoi(v); err == nil {
		return s, nil
	}
	if t, err := http.ParseTime(v); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return int(d.Seconds()), nil
	}
	return 0, fmt.Errorf("invalid Retry-After: %q", v)
}

// withJitter returns a backoff duration with +/- 20% jitter applied.
func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 500 * time.Millisecond
	}
	f := 0.8 + rand.Float64()*0.4
	out := time.Duration(float64(d) * f)
	if out <= 0 {
		return d
	}
	return out
}
