package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/uhyunpark/tradepost/params"
	"github.com/uhyunpark/tradepost/pkg/api"
	"github.com/uhyunpark/tradepost/pkg/app/core/market"
	"github.com/uhyunpark/tradepost/pkg/app/exchange"
	"github.com/uhyunpark/tradepost/pkg/loadgen"
	"github.com/uhyunpark/tradepost/pkg/metrics"
	"github.com/uhyunpark/tradepost/pkg/publish"
	"github.com/uhyunpark/tradepost/pkg/storage"
	"github.com/uhyunpark/tradepost/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg, err := params.LoadFromEnv("")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := util.NewLoggerWithFile(cfg.Log.File, cfg.Log.Level)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Log.File, "level", cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, sugar); err != nil {
		sugar.Fatalw("tradepost_failed", "err", err)
	}
	sugar.Infow("tradepost_stopped")
}

func run(ctx context.Context, cfg params.Config, sugar *zap.SugaredLogger) error {
	// ---- Instruments ----
	catalog := market.NewCatalog()
	for _, in := range cfg.Instruments {
		if err := catalog.Register(in); err != nil {
			return err
		}
		sugar.Infow("instrument_registered",
			"instrument", in.ID,
			"kind", in.Kind.String(),
			"tick_size", in.TickSize.String(),
			"lot_size", in.LotSize)
	}

	// ---- Journal ----
	var journal storage.Journal
	switch cfg.Storage.Journal {
	case "memory":
		journal = storage.NewMemJournal()
	default:
		pj, err := storage.NewPebbleJournal(cfg.Storage.DataDir)
		if err != nil {
			return err
		}
		journal = pj
	}
	defer journal.Close()
	sugar.Infow("journal_opened", "kind", cfg.Storage.Journal, "dir", cfg.Storage.DataDir)

	// ---- Metrics ----
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// ---- Sinks ----
	hub := api.NewHub(catalog.Get, sugar)
	sinks := []publish.Sink{hub}

	if len(cfg.Kafka.Brokers) > 0 {
		ks := publish.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer ks.Close()
		sinks = append(sinks, ks)
		sugar.Infow("kafka_sink_enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}
	if cfg.Postgres.URL != "" {
		pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		ps, err := publish.NewPostgresSink(pctx, cfg.Postgres.URL)
		if err == nil {
			err = ps.EnsureSchema(pctx)
		}
		cancel()
		if err != nil {
			return err
		}
		defer ps.Close()
		sinks = append(sinks, ps)
		sugar.Infow("postgres_sink_enabled")
	}
	if cfg.Storage.AuditFile != "" {
		fs, err := publish.NewFileSink(cfg.Storage.AuditFile)
		if err != nil {
			return err
		}
		defer fs.Close()
		sinks = append(sinks, fs)
		sugar.Infow("audit_sink_enabled", "file", cfg.Storage.AuditFile)
	}

	// x is set below, before the dispatcher starts.
	var x *exchange.Exchange
	disp := publish.NewDispatcher(publish.DispatcherConfig{
		Journal:          journal,
		Sinks:            sinks,
		Buffer:           cfg.Engine.DispatchBuffer,
		Timeout:          cfg.Engine.SinkTimeout,
		Logger:           sugar,
		Obs:              m,
		OnJournalFailure: func(inst string, err error) { x.Suspend(inst, err) },
	})

	// ---- Exchange ----
	built, err := exchange.New(exchange.Config{
		Catalog:         catalog,
		Journal:         journal,
		Dispatcher:      disp,
		Clock:           util.RealClock{},
		Logger:          sugar,
		Metrics:         m,
		SequencerBuffer: cfg.Engine.SequencerBuffer,
		ExpirySweep:     cfg.Engine.ExpirySweep,
	})
	if err != nil {
		return err
	}
	x = built

	// ---- API ----
	srv := api.NewServer(x, hub, api.ServerConfig{
		Addr:        cfg.API.Addr,
		CORSOrigins: cfg.API.CORSOrigins,
		Gatherer:    reg,
		Logger:      sugar,
	})

	sugar.Infow("tradepost_starting",
		"instruments", catalog.Count(),
		"api_addr", cfg.API.Addr,
		"sequencer_buffer", cfg.Engine.SequencerBuffer,
		"dispatch_buffer", cfg.Engine.DispatchBuffer)

	// ---- Load generator (optional) ----
	// Enable with: ENABLE_LOADGEN=true LOADGEN_MODE=default|high
	var feed loadgen.FeederConfig
	if cfg.Loadgen.Enabled {
		if feed, err = loadgen.ConfigForMode(cfg.Loadgen.Mode); err != nil {
			return err
		}
		for _, in := range cfg.Instruments {
			feed.Instruments = append(feed.Instruments, in.ID)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Loadgen.Enabled {
		g.Go(func() error {
			loadgen.Feed(gctx, x, feed, sugar)
			return nil
		})
	}
	g.Go(func() error {
		disp.Run()
		return nil
	})
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return x.Run(gctx)
	})
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
