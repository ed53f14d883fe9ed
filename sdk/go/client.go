/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L3
Logic:       Application-side metering client: three transport modes
             (sync, async, batch) over a shared bounded local buffer, a
             background drain worker for batch mode, and exponential
             backoff retry on the synchronous path.
Root Cause:  §4.F — embed in an application, emit one event per
             invocation, never let a metering failure propagate out of
             the instrumented call.
Context:     Configuration loads once into an explicit *Config, no
             package-level globals; the background worker shuts down
             cleanly within a bounded join on Close.
Suitability: L3 model for the retry/backoff and goroutine lifecycle
             design.
──────────────────────────────────────────────────────────────
*/

package metering

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Version is the SDK version, sent as part of the User-Agent header.
const Version = "1.0.0"

// DefaultBaseURL is the default metering service base URL.
const DefaultBaseURL = "http://localhost:8000"

// TransportMode selects how Emit moves an event to the service.
type TransportMode string

const (
	TransportSync  TransportMode = "sync"
	TransportAsync TransportMode = "async"
	TransportBatch TransportMode = "batch"
)

// Config is the SDK's explicit configuration value, loaded once at
// startup — no hidden globals, no package-level mutable state.
type Config struct {
	BaseURL          string
	APIKey           string
	TransportMode    TransportMode
	BatchSize        int
	BatchInterval    time.Duration
	RetryMaxAttempts int
	Timeout          time.Duration
	BufferCapacity   int
}

// LoadConfig reads the SDK's environment contract, applying its
// published defaults.
func LoadConfig() Config {
	return Config{
		BaseURL:          getEnv("METERING_API_URL", DefaultBaseURL),
		APIKey:           os.Getenv("METERING_API_KEY"),
		TransportMode:    TransportMode(getEnv("METERING_TRANSPORT_MODE", string(TransportSync))),
		BatchSize:        getEnvInt("METERING_BATCH_SIZE", 100),
		BatchInterval:    time.Duration(getEnvInt("METERING_BATCH_INTERVAL_SECONDS", 5)) * time.Second,
		RetryMaxAttempts: getEnvInt("METERING_RETRY_MAX_ATTEMPTS", 3),
		Timeout:          time.Duration(getEnvInt("METERING_TIMEOUT", 5)) * time.Second,
		BufferCapacity:   DefaultBufferCapacity,
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// Option configures a Client on construction.
type Option func(*Client)

// WithBaseURL overrides the service base URL.
func WithBaseURL(url string) Option { return func(c *Client) { c.cfg.BaseURL = url } }

// WithHTTPClient supplies a custom *http.Client, e.g. for mTLS or a proxy.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.httpClient = hc } }

// WithTimeout overrides the per-request timeout (batch requests use 2x).
func WithTimeout(d time.Duration) Option { return func(c *Client) { c.cfg.Timeout = d } }

// WithTransportMode overrides the transport mode.
func WithTransportMode(m TransportMode) Option { return func(c *Client) { c.cfg.TransportMode = m } }

// WithBatchSize overrides the batch drain size.
func WithBatchSize(n int) Option { return func(c *Client) { c.cfg.BatchSize = n } }

// WithBatchInterval overrides the batch worker's tick interval.
func WithBatchInterval(d time.Duration) Option { return func(c *Client) { c.cfg.BatchInterval = d } }

// WithRetryMaxAttempts overrides the sync path's retry attempt count.
func WithRetryMaxAttempts(n int) Option { return func(c *Client) { c.cfg.RetryMaxAttempts = n } }

// WithBufferCapacity overrides the local buffer's bound.
func WithBufferCapacity(n int) Option { return func(c *Client) { c.cfg.BufferCapacity = n } }

// WithLogger overrides the default stdlib-backed warning logger.
func WithLogger(l Logger) Option { return func(c *Client) { c.logger = l } }

// Client emits usage events to the metering service. Construct one per
// process and share it; it is safe for concurrent use by multiple
// producer goroutines.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     Logger
	buf        *buffer

	workerCancel context.CancelFunc
	workerDone   sync.WaitGroup
	closeOnce    sync.Once
}

// NewClient constructs a Client from an explicit API key, applying
// LoadConfig's environment-derived defaults for everything else.
func NewClient(apiKey string, opts ...Option) *Client {
	cfg := LoadConfig()
	cfg.APIKey = apiKey
	return newClientWithConfig(cfg, opts...)
}

// NewClientFromEnv constructs a Client entirely from the SDK's
// environment contract (METERING_API_URL, METERING_API_KEY, ...).
func NewClientFromEnv(opts ...Option) *Client {
	return newClientWithConfig(LoadConfig(), opts...)
}

func newClientWithConfig(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{}, // per-request timeouts come from postJSON's context
		logger:     stdLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.buf = newBuffer(c.cfg.BufferCapacity)

	if c.cfg.TransportMode == TransportBatch {
		ctx, cancel := context.WithCancel(context.Background())
		c.workerCancel = cancel
		c.workerDone.Add(1)
		go c.batchWorker(ctx)
	}
	return c
}

// Emit sends one usage event per the client's configured transport mode.
// It never panics. Sync mode returns the send error (after buffering the
// event locally); batch mode returns *QueueFullError when the local buffer
// is full; async mode always returns nil. Callers at the decoration
// boundary log these errors and never propagate them.
func (c *Client) Emit(ctx context.Context, e Event) error {
	switch c.cfg.TransportMode {
	case TransportAsync:
		go func() {
			if err := c.sendOne(context.Background(), e); err != nil {
				if !c.buf.add(e) {
					c.logger.Warnf("buffer full, dropping event for tenant %q resource %q", e.TenantID, e.Resource)
				}
			}
		}()
		return nil

	case TransportBatch:
		if !c.buf.add(e) {
			c.logger.Warnf("buffer full, dropping event for tenant %q resource %q", e.TenantID, e.Resource)
			return &QueueFullError{Capacity: c.cfg.BufferCapacity}
		}
		return nil

	default: // sync
		err := c.sendWithRetry(ctx, e)
		if err != nil {
			if !c.buf.add(e) {
				c.logger.Warnf("buffer full, dropping event for tenant %q resource %q", e.TenantID, e.Resource)
			}
		}
		return err
	}
}

// sendWithRetry implements the sync path's retry policy: up to
// RetryMaxAttempts attempts, initial delay 2s doubling to a 10s cap.
func (c *Client) sendWithRetry(ctx context.Context, e Event) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.Multiplier = 2
	b.MaxInterval = 10 * time.Second
	b.RandomizationFactor = 0

	maxTries := uint(c.cfg.RetryMaxAttempts)
	if maxTries == 0 {
		maxTries = 3
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, c.sendOne(ctx, e)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(maxTries))
	return err
}

// batchWorker drains the local buffer in configured-size batches every
// BatchInterval until its context is canceled.
func (c *Client) batchWorker(ctx context.Context) {
	defer c.workerDone.Done()

	ticker := time.NewTicker(c.cfg.BatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.drainOnce(context.Background())
			return
		case <-ticker.C:
			c.drainOnce(ctx)
		}
	}
}

func (c *Client) drainOnce(ctx context.Context) {
	batch := c.buf.drain(c.cfg.BatchSize)
	if len(batch) == 0 {
		return
	}
	if err := c.sendBatch(ctx, batch); err != nil {
		requeued := c.buf.requeue(batch)
		if requeued < len(batch) {
			c.logger.Warnf("batch send failed (%v), buffer full, dropped %d of %d events", err, len(batch)-requeued, len(batch))
		} else {
			c.logger.Warnf("batch send failed (%v), re-enqueued %d events", err, requeued)
		}
	}
}

// Close stops the background batch worker, if running, and waits up to
// 5 seconds for it to finish its in-flight drain.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.workerCancel == nil {
			return
		}
		c.workerCancel()
		done := make(chan struct{})
		go func() {
			c.workerDone.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			err = fmt.Errorf("metering: batch worker did not stop within 5s")
		}
	})
	return err
}

// BufferLen reports the number of events currently queued locally.
// Primarily useful for tests and diagnostics.
func (c *Client) BufferLen() int { return c.buf.len() }
