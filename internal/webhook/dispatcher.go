package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultQueueSize  = 100
	defaultTimeout    = 5 * time.Second
	defaultBackoff    = time.Second
	defaultMaxRetries = 3

	// maxResponseBodySize limits how much of a failed response is logged.
	maxResponseBodySize = 1024
)

// Options configures a Dispatcher.
type Options struct {
	URLs       []string
	Secret     string
	MaxRetries int           // retries after the first attempt; negative disables retries
	Timeout    time.Duration // per request
	Backoff    time.Duration // first retry delay, doubled on every further retry
	QueueSize  int
	Logger     zerolog.Logger
	Client     *http.Client

	// OnDelivery is called once per endpoint and event with the final outcome.
	OnDelivery func(success bool)
}

// Dispatcher delivers events to every configured URL from a single
// background worker, so a slow endpoint never delays reloads.
type Dispatcher struct {
	opts   Options
	client *http.Client
	queue  chan Event
	quit   chan struct{}
	done   chan struct{}

	mu      sync.RWMutex
	started bool
	closed  bool
}

// NewDispatcher creates a dispatcher. Call Start to begin delivering.
func NewDispatcher(opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = defaultMaxRetries
	} else if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}
	return &Dispatcher{
		opts:   opts,
		client: client,
		queue:  make(chan Event, opts.QueueSize),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start begins processing events from the queue. Later calls are no-ops.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	go d.worker()
}

// Dispatch queues event without blocking. It reports false when the queue is
// full or the dispatcher is closed; the event is dropped in both cases.
func (d *Dispatcher) Dispatch(event Event) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.queue <- event:
		return true
	default:
		d.opts.Logger.Error().
			Str("event", event.Type).
			Str("etag", event.Generation.ETag).
			Int("queue_size", cap(d.queue)).
			Msg("webhook queue full, dropping event")
		return false
	}
}

// Close stops accepting events and waits for the worker. Events still queued
// get one attempt each and pending retries are abandoned. A dispatcher that
// was never started drops its queue. Close is safe to call
// more than once.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.quit)
	close(d.queue)
	started := d.started
	d.mu.Unlock()

	if started {
		<-d.done
	}
	return nil
}

func (d *Dispatcher) worker() {
	defer close(d.done)

	for event := range d.queue {
		payload, err := json.Marshal(event)
		if err != nil {
			d.opts.Logger.Error().Err(err).Str("event", event.Type).Msg("webhook payload encoding failed")
			continue
		}
		for _, url := range d.opts.URLs {
			ok := d.deliverWithRetry(url, event.Type, payload)
			if d.opts.OnDelivery != nil {
				d.opts.OnDelivery(ok)
			}
		}
	}
}

// deliverWithRetry posts payload to url until it gets a 2xx response or the
// retries are used up.
func (d *Dispatcher) deliverWithRetry(url, eventType string, payload []byte) bool {
	deliveryID := uuid.NewString()
	log := d.opts.Logger.With().
		Str("url", url).
		Str("event", eventType).
		Str("delivery", deliveryID).
		Logger()

	backoff := d.opts.Backoff
	for attempt := 0; attempt <= d.opts.MaxRetries; attempt++ {
		start := time.Now()
		status, body, err := d.post(url, eventType, deliveryID, payload)
		elapsed := time.Since(start)

		if err == nil && status >= 200 && status < 300 {
			log.Debug().Int("status", status).Dur("duration", elapsed).Int("attempt", attempt+1).Msg("webhook delivered")
			return true
		}

		ev := log.Warn().Int("status", status).Dur("duration", elapsed).Int("attempt", attempt+1)
		if err != nil {
			ev = ev.Err(err)
		} else if body != "" {
			ev = ev.Str("response", body)
		}
		if attempt == d.opts.MaxRetries {
			ev.Msg("webhook delivery failed permanently")
			return false
		}
		ev.Dur("retry_in", backoff).Msg("webhook delivery failed")

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-d.quit:
			log.Warn().Msg("webhook retries abandoned on shutdown")
			return false
		}
	}
	return false
}

func (d *Dispatcher) post(url, eventType, deliveryID string, payload []byte) (int, string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, "", err
	}
	now := time.Now()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, eventType)
	req.Header.Set(HeaderDelivery, deliveryID)
	req.Header.Set(HeaderTimestamp, formatUnix(now))
	if d.opts.Secret != "" {
		req.Header.Set(HeaderSignature, Sign(payload, now, d.opts.Secret))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	var body string
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
		body = string(b)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, body, nil
}
