// connect-streamd tails an Airship event stream and logs every event as
// JSON, with offsets checkpointed to a configurable backend. It doubles as a
// reference wiring of the connect library: config file, structured logs,
// Prometheus metrics, clean shutdown.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	connect "github.com/urbanairship/connect-go"
	"github.com/urbanairship/connect-go/ext/pgrecorder"
	"github.com/urbanairship/connect-go/ext/redisrecorder"
	"github.com/urbanairship/connect-go/ext/sqliterecorder"
	"github.com/urbanairship/connect-go/internal/config"
	"github.com/urbanairship/connect-go/internal/logger"
)

func main() {
	cfgPath := flag.String("config", "connect.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		os.Stderr.WriteString("load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.New(cfg.Log)

	rec, cleanup, err := buildRecorder(cfg.Offsets)
	if err != nil {
		log.Fatal().Err(err).Msg("build offset recorder")
	}
	defer cleanup()

	consumer, err := connect.NewConsumer(connect.Config{
		AppKey:         cfg.App.Key,
		AccessToken:    cfg.App.AccessToken,
		MasterSecret:   cfg.App.MasterSecret,
		Region:         connect.Region(cfg.App.Region),
		BaseURL:        cfg.App.BaseURL,
		Start:          cfg.Stream.Start,
		ConnectTimeout: cfg.Stream.ConnectTimeout,
		Backoff: connect.BackoffConfig{
			Initial:     cfg.Stream.Backoff.Initial,
			Max:         cfg.Stream.Backoff.Max,
			MaxAttempts: cfg.Stream.Backoff.MaxAttempts,
		},
		Logger: &log,
	}, rec)
	if err != nil {
		log.Fatal().Err(err).Msg("build consumer")
	}

	if f := buildFilter(cfg.Stream.Filter); f != nil {
		if err := consumer.AddFilter(f); err != nil {
			log.Fatal().Err(err).Msg("add filter")
		}
	}

	if cfg.Metrics.Enabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				log.Error().Err(err).Msg("metrics listener failed")
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("shutting down")
		consumer.Stop()
		cancel()
	}()

	if err := consumer.Connect(ctx); err != nil {
		log.Fatal().Err(err).Msg("connect to stream")
	}

	for {
		ev, err := consumer.Read(ctx)
		if err != nil {
			if errors.Is(err, connect.ErrStreamClosed) || errors.Is(err, context.Canceled) {
				return
			}
			log.Fatal().Err(err).Msg("stream terminated")
		}
		if ev == nil {
			continue
		}
		log.Info().Str("id", ev.ID).Str("type", ev.Type).Str("offset", ev.Offset).
			RawJSON("body", bodyOrNull(ev)).Msg("event")
		if err := consumer.Ack(ev); err != nil {
			log.Fatal().Err(err).Msg("persist offset")
		}
	}
}

func bodyOrNull(ev *connect.Event) []byte {
	if len(ev.Body) == 0 {
		return []byte("null")
	}
	return ev.Body
}

func buildFilter(cfg config.FilterConfig) *connect.Filter {
	if len(cfg.Types) == 0 && len(cfg.DeviceTypes) == 0 && cfg.LatencyMS == 0 {
		return nil
	}
	f := connect.NewFilter()
	f.Types(cfg.Types...)
	f.DeviceTypes(cfg.DeviceTypes...)
	if cfg.LatencyMS > 0 {
		f.Latency(cfg.LatencyMS)
	}
	return f
}

func buildRecorder(cfg config.OffsetsConfig) (connect.Recorder, func(), error) {
	noop := func() {}
	switch cfg.Backend {
	case "file":
		rec, err := connect.NewFileRecorder(cfg.File.Path)
		return rec, noop, err
	case "redis":
		rec, err := redisrecorder.New(cfg.Redis.Key, &redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, noop, err
		}
		return rec, func() { rec.Close() }, nil
	case "postgres":
		rec, err := pgrecorder.New(context.Background(), cfg.Postgres.DSN, cfg.Postgres.Consumer)
		if err != nil {
			return nil, noop, err
		}
		return rec, rec.Close, nil
	case "sqlite":
		rec, err := sqliterecorder.New(cfg.SQLite.Path, cfg.SQLite.Consumer)
		if err != nil {
			return nil, noop, err
		}
		return rec, func() { rec.Close() }, nil
	}
	return nil, noop, errors.New("unknown offsets backend " + cfg.Backend)
}
