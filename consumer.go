package connect

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// State is the consumer lifecycle position.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateStreaming
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Config configures a Consumer. AppKey plus exactly one credential is
// required: AccessToken consumes the event stream, MasterSecret the
// compliance stream.
type Config struct {
	AppKey       string
	AccessToken  string
	MasterSecret string

	// Region picks the data center, default US. BaseURL overrides the
	// region-resolved endpoint entirely.
	Region  Region
	BaseURL string

	// Start is the relative position used when no offset is stored:
	// StartLatest (default) or StartEarliest.
	Start string

	// ConnectTimeout bounds dial, TLS handshake and time to response
	// headers on each connect attempt. Default 10s. It does not bound the
	// open stream.
	ConnectTimeout time.Duration

	// Backoff bounds the reconnect policy.
	Backoff BackoffConfig

	// HTTPClient replaces the built-in client. It must not follow
	// redirects and must not set an overall request timeout, or the
	// stream will be cut mid-flight.
	HTTPClient *http.Client

	// Logger defaults to a no-op logger.
	Logger *zerolog.Logger
}

func (c *Config) withDefaults() {
	if c.Start == "" {
		c.Start = StartLatest
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	c.Backoff.withDefaults()
}

func (c Config) Validate() error {
	if c.AppKey == "" {
		return errors.New("app key is required")
	}
	if c.AccessToken == "" && c.MasterSecret == "" {
		return errors.New("either an access token or a master secret is required")
	}
	if c.AccessToken != "" && c.MasterSecret != "" {
		return errors.New("access token and master secret are mutually exclusive")
	}
	if c.Start != StartLatest && c.Start != StartEarliest {
		return fmt.Errorf("unsupported start position %q", c.Start)
	}
	return nil
}

// Consumer is the long-lived stream orchestrator: it connects, pulls events,
// reconnects on transient failures, and persists acknowledged offsets
// through its Recorder. One Consumer owns one logical stream and is driven
// by a single reader goroutine; only Stop is safe to call concurrently.
type Consumer struct {
	cfg    Config
	rec    Recorder
	log    zerolog.Logger
	dialer *dialer

	mu          sync.Mutex
	state       State
	conn        *connection
	filters     []*Filter
	outstanding *ackTracker
	offset      string // last offset handed to the recorder
	stopCh      chan struct{}
	stopped     bool
}

// NewConsumer builds a Consumer from cfg, persisting offsets through rec.
func NewConsumer(cfg Config, rec Recorder) (*Consumer, error) {
	cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, errors.New("a recorder is required")
	}

	endpoint, err := resolveEndpoint(cfg.Region, cfg.MasterSecret != "", cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout: cfg.ConnectTimeout,
				}).DialContext,
				TLSHandshakeTimeout:   cfg.ConnectTimeout,
				ResponseHeaderTimeout: cfg.ConnectTimeout,
			},
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}

	return &Consumer{
		cfg: cfg,
		rec: rec,
		log: log,
		dialer: &dialer{
			client: client,
			url:    endpoint,
			appKey: cfg.AppKey,
			token:  cfg.AccessToken,
			secret: cfg.MasterSecret,
			log:    log,
		},
		state:       StateDisconnected,
		outstanding: newAckTracker(),
		stopCh:      make(chan struct{}),
	}, nil
}

// AddFilter adds a server-side filter. Filters are fixed for the lifetime of
// a connection, so this must be called before Connect; reconnecting with new
// filters means stopping and building a fresh consumer.
func (c *Consumer) AddFilter(f *Filter) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateDisconnected {
		return ErrAlreadyConnected
	}
	c.filters = append(c.filters, f)
	return nil
}

// Connect opens the stream, resuming from the recorder's stored offset when
// present, otherwise starting from Config.Start. Transient failures are
// retried under the backoff policy; an *AuthError returns immediately with
// no retry.
func (c *Consumer) Connect(ctx context.Context) error {
	offset, err := c.rec.ReadOffset()
	if err != nil {
		return &StoreError{Op: "read", Err: err}
	}
	return c.connectFrom(ctx, offset)
}

// ConnectFrom is Connect with a caller-supplied resume offset, used verbatim
// instead of consulting the recorder. An empty offset starts from
// Config.Start.
func (c *Consumer) ConnectFrom(ctx context.Context, offset string) error {
	return c.connectFrom(ctx, offset)
}

func (c *Consumer) connectFrom(ctx context.Context, offset string) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return ErrStreamClosed
	}
	if c.conn != nil {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.offset = offset
	c.mu.Unlock()
	c.setState(StateConnecting)

	conn, err := c.establish(ctx)
	if err != nil {
		c.setState(StateDisconnected)
		return err
	}
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		conn.close()
		return ErrStreamClosed
	}
	c.conn = conn
	c.mu.Unlock()
	c.setState(StateStreaming)
	return nil
}

// establish dials until it has a connection, an *AuthError, or an exhausted
// attempt budget. Each call runs a fresh backoff, so the delay resets after
// every successful (re)connect.
func (c *Consumer) establish(ctx context.Context) (*connection, error) {
	bo := newBackoff(c.cfg.Backoff)
	for {
		c.mu.Lock()
		filters := c.filters
		offset := c.offset
		c.mu.Unlock()

		conn, err := c.dialer.dial(ctx, filters, offset, c.cfg.Start)
		if err == nil {
			return conn, nil
		}

		var authErr *AuthError
		if errors.As(err, &authErr) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var connErr *ConnectError
		if !errors.As(err, &connErr) {
			return nil, err
		}
		if bo.exhausted() {
			return nil, fmt.Errorf("%w (%d attempts): %w", ErrRetriesExhausted, bo.attempt, err)
		}

		delay := bo.next()
		c.log.Info().Err(err).Dur("backoff", delay).Msg("stream connect failed, retrying")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.stopCh:
			return nil, ErrStreamClosed
		}
	}
}

// Read returns the next event in server-delivery order. A nil event with a
// nil error is a poll tick: a keepalive arrived, or nothing is ready yet.
//
// Malformed frames are skipped. A dropped connection is reconnected under
// the backoff policy, resuming from the last acknowledged offset, so events
// read but not acked before the drop are redelivered (at-least-once). Only
// authentication failures, an exhausted retry budget, context cancellation,
// and Stop surface as errors. Cancelling ctx closes the connection, even
// mid-read on a quiet stream; a later Connect resumes from the last
// acknowledged offset.
func (c *Consumer) Read(ctx context.Context) (*Event, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.stopped {
			c.mu.Unlock()
			return nil, ErrStreamClosed
		}
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return nil, ErrNotConnected
		}

		// A blocked read only wakes when the connection dies, so tie the
		// caller's context to this connection for the duration of the read.
		var watchDone chan struct{}
		if ctx.Done() != nil {
			watchDone = make(chan struct{})
			go func() {
				select {
				case <-ctx.Done():
					conn.close()
				case <-watchDone:
				}
			}()
		}
		ev, err := conn.read()
		if watchDone != nil {
			close(watchDone)
		}
		if err == nil {
			if ev == nil {
				return nil, nil
			}
			c.mu.Lock()
			c.outstanding.record(ev.Offset)
			c.mu.Unlock()
			metricEventsReceived.Inc()
			c.log.Debug().Str("offset", ev.Offset).Str("type", ev.Type).Msg("received event")
			return ev, nil
		}

		var decodeErr *DecodeError
		if errors.As(err, &decodeErr) {
			metricDecodeErrors.Inc()
			c.log.Warn().Err(decodeErr).Msg("skipping malformed frame")
			continue
		}
		if errors.Is(err, ErrStreamClosed) {
			c.mu.Lock()
			stopped := c.stopped
			c.mu.Unlock()
			if stopped {
				return nil, ErrStreamClosed
			}
			// Closed by the context watcher; fall through to cleanup.
		}

		// Connection is gone; replace it from the last acked offset.
		conn.close()
		c.mu.Lock()
		c.conn = nil
		if c.stopped {
			c.mu.Unlock()
			return nil, ErrStreamClosed
		}
		c.mu.Unlock()
		if cerr := ctx.Err(); cerr != nil {
			c.setState(StateDisconnected)
			return nil, cerr
		}
		metricReconnects.Inc()
		c.log.Info().Err(err).Msg("stream connection lost, reconnecting")
		c.setState(StateReconnecting)

		next, cerr := c.establish(ctx)
		if cerr != nil {
			c.setState(StateDisconnected)
			return nil, cerr
		}
		c.mu.Lock()
		if c.stopped {
			c.mu.Unlock()
			next.close()
			return nil, ErrStreamClosed
		}
		c.conn = next
		c.mu.Unlock()
		c.setState(StateStreaming)
	}
}

// Ack acknowledges a delivered event. Once every older event is also acked,
// the offset is written durably to the recorder and becomes the resume point
// for reconnects and restarts.
//
// Where Ack sits in the caller's loop decides the delivery guarantee: ack
// after handling for at-least-once (duplicates possible on crash), ack
// before handling for at-most-once (loss possible on crash).
func (c *Consumer) Ack(ev *Event) error {
	c.mu.Lock()
	commit, err := c.outstanding.ack(ev.Offset)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	metricAcks.Inc()
	if commit == "" {
		return nil
	}
	if err := c.rec.WriteOffset(commit); err != nil {
		return &StoreError{Op: "write", Err: err}
	}
	c.mu.Lock()
	c.offset = commit
	c.mu.Unlock()
	return nil
}

// Offset returns the last offset persisted to the recorder, "" if none.
func (c *Consumer) Offset() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offset
}

// State returns the consumer's lifecycle state.
func (c *Consumer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stop terminates the stream and wakes any in-flight backoff sleep. The
// recorder is left untouched. Safe to call from any goroutine, idempotent.
func (c *Consumer) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	close(c.stopCh)
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		conn.close()
	}
	c.setState(StateDisconnected)
}

func (c *Consumer) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	metricState.Set(float64(s))
}
