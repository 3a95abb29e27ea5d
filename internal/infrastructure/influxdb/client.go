package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/gray-logic-unifi/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second
)

// Client records bridge time series through the non-blocking write API.
//
// State points accumulate in the library's batch buffer and are pushed out
// when the cycle that produced them finishes (see WriteCycle), or earlier
// if the batch fills or the flush interval elapses.
//
// Thread Safety: All methods are safe for concurrent use.
type Client struct {
	raw    influxdb2.Client
	writes api.WriteAPI
	org    string
	bucket string

	closed atomic.Bool

	// flushMu keeps Flush and Close from racing on the write API.
	flushMu sync.Mutex

	errMu   sync.RWMutex
	onError func(err error)
}

// Connect pings the server and opens a batched write API on the configured
// org and bucket. It returns ErrDisabled when InfluxDB is switched off.
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	raw := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, writeOptions(cfg))

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	healthy, err := raw.Ping(pingCtx)
	switch {
	case err != nil:
		raw.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.URL, err)
	case !healthy:
		raw.Close()
		return nil, fmt.Errorf("%w: %s reports unhealthy", ErrConnectionFailed, cfg.URL)
	}

	c := &Client{
		raw:    raw,
		writes: raw.WriteAPI(cfg.Org, cfg.Bucket),
		org:    cfg.Org,
		bucket: cfg.Bucket,
	}
	go c.forwardErrors(c.writes.Errors())
	return c, nil
}

// writeOptions maps the batch settings onto client options, substituting
// defaults for unset or negative values.
func writeOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch := uint(defaultBatchSize)
	if cfg.BatchSize > 0 {
		batch = uint(cfg.BatchSize)
	}
	flush := defaultFlushInterval
	if cfg.FlushInterval > 0 {
		flush = time.Duration(cfg.FlushInterval) * time.Second
	}
	return influxdb2.DefaultOptions().
		SetBatchSize(batch).
		SetFlushInterval(uint(flush.Milliseconds())) // #nosec G115 -- positive by construction
}

// forwardErrors hands asynchronous write failures to the error callback.
// The channel is closed by the library when the client closes.
func (c *Client) forwardErrors(errs <-chan error) {
	for err := range errs {
		c.errMu.RLock()
		cb := c.onError
		c.errMu.RUnlock()
		if cb != nil {
			cb(fmt.Errorf("writing to %s/%s: %w", c.org, c.bucket, err))
		}
	}
}

// SetOnError registers the callback for asynchronous write failures.
func (c *Client) SetOnError(callback func(err error)) {
	c.errMu.Lock()
	c.onError = callback
	c.errMu.Unlock()
}

// Flush sends every buffered point and blocks until the batch is written.
// It is a no-op after Close.
func (c *Client) Flush() {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()
	if c.writes == nil || c.closed.Load() {
		return
	}
	c.writes.Flush()
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	healthy, err := c.raw.Ping(pingCtx)
	if err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	if !healthy {
		return fmt.Errorf("influxdb health check: server not healthy")
	}
	return nil
}

// Close flushes pending points and releases the client. Further writes
// are dropped.
func (c *Client) Close() error {
	if c.raw == nil {
		return nil
	}

	c.flushMu.Lock()
	defer c.flushMu.Unlock()
	if c.closed.Swap(true) {
		return nil
	}
	c.writes.Flush()
	c.raw.Close()
	return nil
}
