package connect

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
)

const (
	acceptHeader = "application/vnd.urbanairship+x-ndjson; version=3;"

	// maxFrameSize bounds a single event line. Frames past this kill the
	// connection rather than the process.
	maxFrameSize = 8 << 20

	// maxRedirects bounds the 307 cookie handshake the service uses to pin
	// a consumer to a stream shard.
	maxRedirects = 5
)

// Relative start positions for a consumer with no stored offset.
const (
	StartLatest   = "LATEST"
	StartEarliest = "EARLIEST"
)

type connectRequest struct {
	Start        string    `json:"start,omitempty"`
	ResumeOffset string    `json:"resume_offset,omitempty"`
	Filters      []*Filter `json:"filters,omitempty"`
}

// dialer builds the authenticated streaming request. One dialer serves a
// consumer for its whole life; every dial produces a fresh connection.
type dialer struct {
	client *http.Client
	url    string
	appKey string
	token  string // bearer token, event stream
	secret string // master secret, compliance stream

	// Cookies returned by a 307 are replayed on the follow-up request.
	cookies []*http.Cookie

	log zerolog.Logger
}

func (d *dialer) headers(req *http.Request) {
	if d.secret != "" {
		req.SetBasicAuth(d.appKey, d.secret)
	} else {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-UA-Appkey", d.appKey)
	req.Header.Set("Accept-Encoding", "gzip")
}

// dial opens one streaming request. It fails fast: a single attempt plus the
// 307 redirect handshake, no retry loop. 4xx responses come back as
// *AuthError, network failures and 5xx as *ConnectError; retrying the latter
// is the consumer's job.
func (d *dialer) dial(ctx context.Context, filters []*Filter, resumeOffset, start string) (*connection, error) {
	payload := connectRequest{Filters: filters}
	if resumeOffset != "" {
		payload.ResumeOffset = resumeOffset
	} else if start != "" {
		payload.Start = start
	} else {
		payload.Start = StartLatest
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal connect request: %w", err)
	}

	d.log.Info().Str("url", d.url).Str("offset", payload.ResumeOffset).Str("start", payload.Start).
		Msg("opening stream connection")

	// The request context outlives dial: it is the connection's life line,
	// cancelled by close. The caller's ctx only governs the dial phase.
	connCtx, cancel := context.WithCancel(context.Background())
	dialDone := make(chan struct{})
	defer close(dialDone)
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-dialDone:
		}
	}()

	for attempt := 0; attempt <= maxRedirects; attempt++ {
		req, err := http.NewRequestWithContext(connCtx, http.MethodPost, d.url, bytes.NewReader(body))
		if err != nil {
			cancel()
			return nil, fmt.Errorf("build connect request: %w", err)
		}
		d.headers(req)
		for _, c := range d.cookies {
			req.AddCookie(c)
		}

		metricConnectAttempts.Inc()
		resp, err := d.client.Do(req)
		if err != nil {
			cancel()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &ConnectError{Err: err}
		}

		switch {
		case resp.StatusCode == http.StatusTemporaryRedirect:
			// Stream shard handshake: keep the cookies, ask again.
			d.cookies = resp.Cookies()
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			d.log.Info().Int("attempt", attempt+1).Msg("handling redirect")
			continue

		case resp.StatusCode == http.StatusOK:
			conn, err := newConnection(resp, cancel)
			if err != nil {
				cancel()
				return nil, err
			}
			d.log.Info().Str("url", d.url).Msg("stream connection opened")
			return conn, nil

		case resp.StatusCode >= 500:
			resp.Body.Close()
			cancel()
			return nil, &ConnectError{Status: resp.StatusCode}

		default:
			authErr := authErrorFromResponse(resp)
			resp.Body.Close()
			cancel()
			d.log.Error().Int("status", authErr.Status).Int("error_code", authErr.Code).
				Str("error", authErr.Message).Msg("stream request rejected")
			return nil, authErr
		}
	}
	cancel()
	return nil, &ConnectError{Err: fmt.Errorf("giving up after %d redirects", maxRedirects)}
}

// connection is a single network session over the stream. It is never
// reused: a failed connection is closed and replaced.
type connection struct {
	resp   *http.Response
	body   io.ReadCloser
	scan   *bufio.Scanner
	cancel context.CancelFunc

	// mu guards closed; close may race a blocked read via Stop.
	mu     sync.Mutex
	closed bool
}

func newConnection(resp *http.Response, cancel context.CancelFunc) (*connection, error) {
	body := resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			resp.Body.Close()
			return nil, &ConnectError{Err: fmt.Errorf("open gzip stream: %w", err)}
		}
		body = gz
	}
	scan := bufio.NewScanner(body)
	scan.Buffer(make([]byte, 64<<10), maxFrameSize)
	return &connection{resp: resp, body: body, scan: scan, cancel: cancel}, nil
}

// read returns the next decoded event. A keepalive frame (blank line)
// returns (nil, nil) so the caller's loop can tick without an event. A
// malformed frame returns *DecodeError and leaves the connection usable.
// Any other error is terminal for this connection.
func (c *connection) read() (*Event, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, ErrStreamClosed
	}
	if !c.scan.Scan() {
		if err := c.scan.Err(); err != nil {
			return nil, fmt.Errorf("read stream: %w", err)
		}
		return nil, io.EOF
	}
	line := bytes.TrimSpace(c.scan.Bytes())
	if len(line) == 0 {
		metricKeepalives.Inc()
		return nil, nil
	}
	return parseEvent(line)
}

// close releases the network resources. Idempotent.
func (c *connection) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	c.body.Close()
	if c.body != c.resp.Body {
		c.resp.Body.Close()
	}
}
