package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"positionmonitor/internal/api"
	"positionmonitor/internal/monitor"
	"positionmonitor/internal/obs"
	"positionmonitor/internal/ops"
	"positionmonitor/internal/portfolio"
	"positionmonitor/internal/quotefeed"
	"positionmonitor/internal/risk"
	"positionmonitor/internal/snapshot"
	"positionmonitor/internal/source"
	"positionmonitor/pkg/conn"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		log.Printf("positionmonitor: %+v", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to config file (yaml, json or toml)")
	flag.Parse()

	cfg, err := ops.Load(*configPath)
	if err != nil {
		return err
	}

	if cfg.Pyroscope.ServerAddress != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: cfg.Pyroscope.ApplicationName,
			ServerAddress:   cfg.Pyroscope.ServerAddress,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	ctx := context.Background()

	pg, err := conn.New(cfg.Postgres.Option())
	if err != nil {
		return err
	}
	defer func() {
		_ = pg.Close()
	}()

	store, err := source.New(pg)
	if err != nil {
		return err
	}

	dialer, redisClient, err := newDialer(ctx, cfg)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer func() {
			_ = redisClient.Close()
		}()
	}

	metrics := obs.NewMetrics(prometheus.DefaultRegisterer)

	sinks, closeSinks := newSinks(cfg, store)
	defer closeSinks()

	var mon *monitor.Monitor
	recorder := snapshot.NewRecorder(snapshot.Config{
		Portfolios: snapshot.PortfoliosFunc(func(account string) (*portfolio.Cache, bool) {
			return mon.AccountPortfolio(account)
		}),
		Sinks:     sinks,
		QueueSize: cfg.Snapshot.QueueSize,
		Metrics:   metrics,
	})
	mon = monitor.New(monitor.Config{
		Interval:          cfg.Monitor.Interval,
		AccountLimit:      cfg.Monitor.AccountLimit,
		WaitForFirstCycle: cfg.Monitor.WaitForFirstCycle,
		Dialer:            dialer,
		Snapshots:         recorder,
		Metrics:           metrics,
	})

	stopped := make(chan error, 1)
	mon.AddStoppedListener(func(err error) {
		select {
		case stopped <- err:
		default:
		}
	})

	if err := mon.Initialize(ctx, store); err != nil {
		return err
	}
	recorder.Start(ctx)
	if err := mon.StartMonitor(ctx); err != nil {
		return err
	}

	server := api.NewServer(api.Config{
		Monitor: mon,
		Risk:    risk.NewEngine(nil),
	})
	server.Start(cfg.HTTP.Addr)

	select {
	case <-sys.Shutdown():
		logs.Info("shutdown signal received")
	case err := <-stopped:
		logs.Errorf("monitor stopped unexpectedly, err: %+v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logs.Errorf("shutdown api server, err: %+v", err)
	}
	mon.StopMonitor(nil)
	recorder.Close()
	logs.Info("position monitor exited")
	return nil
}

func newDialer(ctx context.Context, cfg ops.Config) (quotefeed.Dialer, *redis.Client, error) {
	switch cfg.QuoteFeed.Kind {
	case ops.QuoteFeedRedis:
		client, err := conn.NewRedis(ctx, cfg.Redis.Option())
		if err != nil {
			return nil, nil, err
		}
		return quotefeed.NewRedisDialer(client, cfg.QuoteFeed.ChannelPrefix), client, nil
	case ops.QuoteFeedWS:
		return quotefeed.NewWSDialer(cfg.QuoteFeed.URL, cfg.QuoteFeed.Timeout), nil, nil
	default:
		logs.Info("quote feed disabled")
		return nil, nil, nil
	}
}

func newSinks(cfg ops.Config, store *source.Store) ([]snapshot.Sink, func()) {
	var sinks []snapshot.Sink
	closers := []func(){}

	if cfg.Snapshot.Store {
		sinks = append(sinks, snapshot.NewStoreSink(store))
	}
	if cfg.Snapshot.Dir != "" {
		sinks = append(sinks, snapshot.NewFileSink(cfg.Snapshot.Dir))
	}
	if len(cfg.Kafka.Brokers) > 0 {
		sink := snapshot.NewKafkaSink(snapshot.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic))
		sinks = append(sinks, sink)
		closers = append(closers, func() {
			if err := sink.Close(); err != nil {
				logs.Errorf("close kafka sink, err: %+v", err)
			}
		})
	}

	return sinks, func() {
		for _, fn := range closers {
			fn()
		}
	}
}
