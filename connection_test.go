package connect

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func TestDialSendsEventStreamHeaders(t *testing.T) {
	var got http.Header
	s := newStreamServer(t)
	s.serve(func(n int, w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		writeEvent(w, "1")
	})
	c := newTestConsumer(t, s.srv.URL, &memRecorder{}, nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	if auth := got.Get("Authorization"); auth != "Bearer access-token" {
		t.Fatalf("Authorization = %q", auth)
	}
	if key := got.Get("X-UA-Appkey"); key != "app-key" {
		t.Fatalf("X-UA-Appkey = %q", key)
	}
	if accept := got.Get("Accept"); accept != acceptHeader {
		t.Fatalf("Accept = %q", accept)
	}
	if enc := got.Get("Accept-Encoding"); enc != "gzip" {
		t.Fatalf("Accept-Encoding = %q", enc)
	}
}

func TestDialSendsComplianceStreamCredentials(t *testing.T) {
	s := newStreamServer(t)
	s.serve(func(n int, w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "app-key" || pass != "master-secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeEvent(w, "1")
	})
	c := newTestConsumer(t, s.srv.URL, &memRecorder{}, func(cfg *Config) {
		cfg.AccessToken = ""
		cfg.MasterSecret = "master-secret"
	})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
}

func TestDialReplaysRedirectCookies(t *testing.T) {
	s := newStreamServer(t)
	s.serve(func(n int, w http.ResponseWriter, r *http.Request) {
		if n == 1 {
			http.SetCookie(w, &http.Cookie{Name: "SRV", Value: "shard-7"})
			w.Header().Set("Location", r.URL.String())
			w.WriteHeader(http.StatusTemporaryRedirect)
			return
		}
		cookie, err := r.Cookie("SRV")
		if err != nil || cookie.Value != "shard-7" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		writeEvent(w, "1")
		<-s.block
	})
	c := newTestConsumer(t, s.srv.URL, &memRecorder{}, nil)
	ctx := context.Background()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	ev := mustRead(t, c, ctx)
	if ev.Offset != "1" {
		t.Fatalf("offset = %q", ev.Offset)
	}
	if s.connections() != 2 {
		t.Fatalf("connections = %d", s.connections())
	}
}

func TestDialGivesUpAfterRedirectLoop(t *testing.T) {
	s := newStreamServer(t)
	s.serve(func(n int, w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", r.URL.String())
		w.WriteHeader(http.StatusTemporaryRedirect)
	})
	c := newTestConsumer(t, s.srv.URL, &memRecorder{}, func(cfg *Config) {
		cfg.Backoff.MaxAttempts = 1
	})
	err := c.Connect(context.Background())
	var connErr *ConnectError
	if !errors.As(err, &connErr) {
		t.Fatalf("err = %v", err)
	}
}

func TestDialResendsBodyAfterRedirect(t *testing.T) {
	s := newStreamServer(t)
	s.serve(func(n int, w http.ResponseWriter, r *http.Request) {
		if n == 1 {
			w.Header().Set("Location", r.URL.String())
			w.WriteHeader(http.StatusTemporaryRedirect)
			return
		}
		s.hold(w)
	})
	c := newTestConsumer(t, s.srv.URL, &memRecorder{offset: "42"}, nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if req := s.request(2); req.ResumeOffset != "42" {
		t.Fatalf("redirected request body: %+v", req)
	}
}

func TestGzipEncodedStream(t *testing.T) {
	s := newStreamServer(t)
	s.serve(func(n int, w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		gz.Write([]byte(`{"id":"a","type":"OPEN","offset":"1"}` + "\n"))
		gz.Write([]byte(`{"id":"b","type":"CLOSE","offset":"2"}` + "\n"))
		gz.Close()
	})
	c := newTestConsumer(t, s.srv.URL, &memRecorder{}, nil)
	ctx := context.Background()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	first := mustRead(t, c, ctx)
	second := mustRead(t, c, ctx)
	if first.Offset != "1" || first.Type != "OPEN" {
		t.Fatalf("first event = %+v", first)
	}
	if second.Offset != "2" || second.Type != "CLOSE" {
		t.Fatalf("second event = %+v", second)
	}
}

func TestDialContextCancellation(t *testing.T) {
	s := newStreamServer(t)
	s.serve(func(n int, w http.ResponseWriter, r *http.Request) {
		s.hold(w)
	})
	c := newTestConsumer(t, s.srv.URL, &memRecorder{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Connect(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

func TestOversizedFrameKillsConnection(t *testing.T) {
	s := newStreamServer(t)
	s.serve(func(n int, w http.ResponseWriter, r *http.Request) {
		if n == 1 {
			writeLine(w, strings.Repeat("x", maxFrameSize+1))
			<-s.block
			return
		}
		writeEvent(w, "1")
		<-s.block
	})
	c := newTestConsumer(t, s.srv.URL, &memRecorder{}, nil)
	ctx := context.Background()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	// The oversized frame terminates the first connection; Read absorbs the
	// failure by reconnecting.
	ev := mustRead(t, c, ctx)
	if ev.Offset != "1" {
		t.Fatalf("offset = %q", ev.Offset)
	}
	if s.connections() != 2 {
		t.Fatalf("connections = %d", s.connections())
	}
}

func TestServerErrorIsConnectError(t *testing.T) {
	s := newStreamServer(t)
	s.serve(func(n int, w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	c := newTestConsumer(t, s.srv.URL, &memRecorder{}, func(cfg *Config) {
		cfg.Backoff.MaxAttempts = 1
	})
	err := c.Connect(context.Background())
	var connErr *ConnectError
	if !errors.As(err, &connErr) {
		t.Fatalf("err = %v", err)
	}
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("err = %v", err)
	}
	if connErr.Status != http.StatusBadGateway {
		t.Fatalf("status = %d", connErr.Status)
	}
}

func TestClientErrorIsAuthError(t *testing.T) {
	s := newStreamServer(t)
	s.serve(func(n int, w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	c := newTestConsumer(t, s.srv.URL, &memRecorder{}, nil)
	err := c.Connect(context.Background())
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("err = %v", err)
	}
	if authErr.Status != http.StatusForbidden {
		t.Fatalf("status = %d", authErr.Status)
	}
}
