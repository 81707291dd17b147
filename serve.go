package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/multispidey/spideysync/config"
	"github.com/multispidey/spideysync/core"
	"github.com/multispidey/spideysync/levels"
	"github.com/multispidey/spideysync/logging"
	"github.com/multispidey/spideysync/metrics"
	"github.com/multispidey/spideysync/observer"
	"github.com/multispidey/spideysync/registry"
	"github.com/multispidey/spideysync/server"
	"github.com/multispidey/spideysync/sink"
)

func runServe() error {
	// installed first so a signal during startup still shuts down cleanly
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := serveConfig()
	if err != nil {
		return err
	}
	return serve(ctx, cfg)
}

// serve runs the session until ctx is done or the session faults.
func serve(ctx context.Context, cfg config.Config) error {
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer log.Sync()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	table, err := levels.Load(cfg.Levels.File)
	if err != nil {
		return err
	}
	ts, err := newSink(cfg.Sink, log)
	if err != nil {
		return err
	}

	locationListeners := []core.Observer[core.LocationEvent]{
		observer.Log[core.LocationEvent](log.Named("event"), "player location"),
	}
	endpointListeners := []core.Observer[core.EndpointEvent]{
		observer.Log[core.EndpointEvent](log.Named("event"), "player endpoint"),
	}
	if cfg.Observers.NATSURL != "" {
		nc, err := observer.Connect(cfg.Observers.NATSURL, log)
		if err != nil {
			return err
		}
		defer drain(nc, log)
		prefix := cfg.Observers.SubjectPrefix
		locationListeners = append(locationListeners,
			observer.NATS[core.LocationEvent](nc, prefix+".location", log))
		endpointListeners = append(endpointListeners,
			observer.NATS[core.EndpointEvent](nc, prefix+".endpoint", log))
	}

	locations := observer.NewChannel(observer.ChannelConfig{
		Name:     "location",
		Capacity: cfg.Observers.QueueSize,
		Dropped:  m.ObserverDropped.WithLabelValues("location"),
		Logger:   log,
	}, locationListeners...)
	defer locations.Close()
	endpoints := observer.NewChannel(observer.ChannelConfig{
		Name:     "endpoint",
		Capacity: cfg.Observers.QueueSize,
		Dropped:  m.ObserverDropped.WithLabelValues("endpoint"),
		Logger:   log,
	}, endpointListeners...)
	defer endpoints.Close()

	session := server.New(server.Config{
		IP:         cfg.Server.BindIP(),
		Port:       cfg.Server.Port,
		ReadBuffer: cfg.Server.ReadBuffer,
	},
		server.WithLogger(log),
		server.WithMetrics(m),
		server.WithLevels(table),
		server.WithSink(ts),
	)
	if err := session.Start(registry.New(log), locations, endpoints); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		session.Stop()
		return nil
	})
	g.Go(func() error {
		if err := session.Wait(); err != nil {
			return fmt.Errorf("session: %w", err)
		}
		return nil
	})
	if cfg.Metrics.Address != "" {
		g.Go(func() error {
			return metrics.Serve(ctx, cfg.Metrics.Address, reg, log)
		})
	}
	return g.Wait()
}

func newSink(cfg config.SinkConfig, log *zap.Logger) (core.TelemetrySink, error) {
	if cfg.Kind != config.SinkMemory {
		return sink.NewLog(log), nil
	}
	pid := cfg.PID
	if pid <= 0 {
		var err error
		if pid, err = sink.FindProcess(cfg.Process); err != nil {
			return nil, err
		}
	}
	return sink.NewMemory(pid, sink.Layout{
		PlayerBase:   uintptr(cfg.PlayerBase),
		PlayerStride: uintptr(cfg.PlayerStride),
		LevelBase:    uintptr(cfg.LevelBase),
		CountAddr:    uintptr(cfg.CountAddress),
	}, log)
}

func drain(nc *nats.Conn, log *zap.Logger) {
	if err := nc.Drain(); err != nil {
		log.Warn("nats drain", zap.Error(err))
	}
}
