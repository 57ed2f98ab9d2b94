// Command aicfd runs the AICF coordinator: the assignment engine and TTL/
// retry sweeps on a cooperative tick loop, the proof→payout settlement
// pipeline, and the JSON-RPC/WS front door. Wiring order: logging and
// telemetry bootstrap, then config, then domain components, then the RPC
// server, then the dispatcher and settlement loops under a signal-derived
// context.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"aicf/assignment"
	"aicf/completion"
	"aicf/config"
	"aicf/core/events"
	"aicf/core/types"
	"aicf/dispatcher"
	"aicf/heartbeat"
	"aicf/observability/logging"
	"aicf/observability/metrics"
	telemetry "aicf/observability/otel"
	"aicf/pipeline"
	"aicf/priority"
	"aicf/quota"
	"aicf/registry"
	"aicf/rewardsaudit"
	"aicf/rpc/aicf"
	"aicf/sla"
	"aicf/slash"
	"aicf/storage"
	"aicf/treasury"
	"aicf/withdrawal"
)

func main() {
	var cfgPath string
	var policiesPath string
	var listenAddr string
	var storageBackend string
	var blockInterval time.Duration
	flag.StringVar(&cfgPath, "config", "aicf.toml", "path to AICF configuration")
	flag.StringVar(&policiesPath, "policies", "", "optional YAML epoch/quota policy file")
	flag.StringVar(&listenAddr, "listen", ":8651", "JSON-RPC/WS listen address")
	flag.StringVar(&storageBackend, "storage", "memory", "storage backend: memory|leveldb|sqlite|postgres")
	flag.DurationVar(&blockInterval, "block-interval", time.Second, "interval of the simulated height clock")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("AICF_ENV"))
	logger := logging.Setup("aicfd", env)

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "aicfd",
		Environment: env,
		Endpoint:    strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		Insecure:    true,
		Metrics:     true,
		Traces:      true,
	})
	if err != nil {
		logger.Error("failed to initialise telemetry", "error", err)
		os.Exit(1)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	epochPolicy := config.EpochPolicy{LengthBlocks: 600, BaseBudgetNano: 1_000_000_000, RolloverRate: 0.5}
	if policiesPath != "" {
		ep, _, err := config.LoadPolicies(policiesPath)
		if err != nil {
			logger.Error("load policies", "error", err)
			os.Exit(1)
		}
		epochPolicy = ep
	}

	store, closeStore := openStorage(storageBackend, logger)
	defer closeStore()

	ledger := treasury.New()
	reg := registry.New(registry.NewMemoryProviderStore(), registry.OpenAllowlist{}, ledger, registry.Config{
		UnlockDelayBlocks: cfg.Stake.UnbondingPeriodBlocks,
		Minimums: registry.StakeMinimums{
			AI:      cfg.Stake.MinStakeAINano,
			Quantum: cfg.Stake.MinStakeQuantumNano,
		},
	})

	hbMonitor := heartbeat.New(heartbeat.DefaultConfig(), func(id types.HexID, status heartbeat.Status) {
		logger.Info("provider status changed", "provider", string(id), "status", string(status))
	})

	// Heights come from the chain in production; aicfd runs against a
	// wall-clock block simulation until the chain feed is wired in.
	genesis := time.Now()
	heightFn := func() types.Height {
		return types.Height(time.Since(genesis) / blockInterval)
	}
	clockFn := func() types.UnixMillis { return types.UnixMillis(time.Now().UnixMilli()) }

	quotas := quota.New()
	withdrawals := withdrawal.New(ledger, withdrawal.Config{
		MinAmount:             1,
		CooldownBlocks:        types.Height(10),
		DelayBlocks:           types.Height(cfg.Stake.UnbondingPeriodBlocks),
		MaxPendingPerProvider: 4,
	})

	aicfMetrics := metrics.AICF()
	hub := aicf.NewHub()
	var emitter events.Emitter = events.MultiEmitter{hub, metrics.NewEmitter(aicfMetrics)}

	receiver := completion.New(store, reg, quotas, emitter)
	auditor := rewardsaudit.New(ledger, true)
	pl := pipeline.New(receiver, quotas, ledger, auditor, emitter,
		pipeline.RateConfig{
			AIUnitRateNano:      cfg.Payouts.AIUnitRateNano,
			QuantumUnitRateNano: cfg.Payouts.QuantumUnitRateNano,
		},
		pipeline.EpochConfig{
			StartHeight:        types.Height(epochPolicy.StartHeight),
			LengthBlocks:       epochPolicy.LengthBlocks,
			BaseBudgetNano:     epochPolicy.BaseBudgetNano,
			RolloverRateScaled: uint64(epochPolicy.RolloverRate * 1_000_000),
		})

	slasher := slash.New(slash.Config{
		BaseBps:    cfg.Slashing.MisbehaviorBps,
		MinSlash:   1,
		MaxSlash:   cfg.Stake.MinStakeQuantumNano,
		WindowMs:   int64(epochPolicy.LengthBlocks) * blockInterval.Milliseconds() * 4,
		JailAfter:  2,
		JailBlocks: types.Height(cfg.Slashing.JailBlocks),
	}, reg, ledger, emitter)
	pl.AttachSLA(sla.Thresholds{
		TrapsMin:        cfg.SLA.TrapsRatioMin,
		QoSMin:          cfg.SLA.QosMin,
		MaxLatencyMs:    float64(cfg.SLA.LatencyP95MaxMs),
		AvailabilityMin: cfg.SLA.AvailabilityMin,
		Confidence:      0.95,
	}, slasher, reg)

	filterCfg := priority.FilterConfig{
		MinHealth:       0.5,
		WeightHealth:    0.7,
		WeightStake:     0.3,
		StakeNormalizer: cfg.Stake.MinStakeAINano * 10,
	}

	resolve := func(job types.Job, provider types.Provider) (priority.EligibilityInput, bool) {
		required := assignment.CapabilityForKind(job.Kind)
		minStake := cfg.Stake.MinStakeAINano
		if required == types.CapabilityQuantum {
			minStake = cfg.Stake.MinStakeQuantumNano
		}
		return priority.EligibilityInput{
			Provider:       provider,
			EffectiveStake: provider.EffectiveStake(heightFn()),
			MinStake:       minStake,
			Health:         hbMonitor.Score(provider.ProviderID, clockFn()),
			RequiredKind:   required,
		}, true
	}

	svc := aicf.NewService(store, reg, ledger, withdrawals, pl, heightFn, clockFn)
	server := aicf.NewServer(svc, hub, aicf.JWTConfig{})

	engine := assignment.New(store, reg, quotas, filterCfg, resolve, 300, emitter)

	epochFn := func() uint64 {
		h := uint64(heightFn())
		if h < epochPolicy.StartHeight {
			return 0
		}
		return (h - epochPolicy.StartHeight) / epochPolicy.LengthBlocks
	}

	httpServer := &http.Server{
		Addr:         listenAddr,
		Handler:      otelhttp.NewHandler(server.Router(), "aicfd"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("listening", "addr", listenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen and serve", "error", err)
		}
	}()

	disp := dispatcher.New(dispatcher.Config{
		TickInterval:    500 * time.Millisecond,
		IdleSleep:       2 * time.Second,
		JitterFraction:  0.1,
		LeaseSweepEvery: 10,
	}, engine, logger, epochFn, clockFn)
	disp.SetPassObserver(aicfMetrics.ObserveAssignmentPass)
	go disp.Run(ctx)

	// Settlement loop: one pass per epoch boundary, plus withdrawal
	// maturation on the same cadence.
	go func() {
		interval := time.Duration(epochPolicy.LengthBlocks) * blockInterval
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h := heightFn()
				report, err := pl.SettleEpoch(h, clockFn())
				if err != nil {
					logger.Error("settle epoch", "error", err)
					continue
				}
				logger.Info("epoch settled",
					"epoch", report.EpochIdx,
					"accepted", len(report.Accepted),
					"deferred", len(report.Rejected),
					"treasury", report.TreasuryAccrued)
				if executed := withdrawals.FinalizeDue(h); len(executed) > 0 {
					logger.Info("withdrawals executed", "count", len(executed))
				}
			}
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	disp.Stop()
	if path := strings.TrimSpace(os.Getenv("AICF_JOURNAL_EXPORT")); path != "" {
		if err := ledger.ExportJournal(path); err != nil {
			logger.Error("export treasury journal", "error", err)
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

func openStorage(backend string, logger *slog.Logger) (storage.Store, func()) {
	switch backend {
	case "leveldb":
		path := strings.TrimSpace(os.Getenv("AICF_LEVELDB_PATH"))
		if path == "" {
			path = "./aicf-data"
		}
		store, err := storage.NewLevelDBStore(path)
		if err != nil {
			logger.Error("open leveldb store", "error", err)
			os.Exit(1)
		}
		return store, func() { _ = store.Close() }
	case "sqlite":
		path := strings.TrimSpace(os.Getenv("AICF_SQLITE_PATH"))
		if path == "" {
			path = "./aicf.db"
		}
		store, err := storage.NewSQLiteStore(path)
		if err != nil {
			logger.Error("open sqlite store", "error", err)
			os.Exit(1)
		}
		return store, func() { _ = store.Close() }
	case "postgres":
		dsn := strings.TrimSpace(os.Getenv("AICF_POSTGRES_DSN"))
		if dsn == "" {
			logger.Error("postgres backend requires AICF_POSTGRES_DSN")
			os.Exit(1)
		}
		store, err := storage.NewPostgresStore(dsn)
		if err != nil {
			logger.Error("open postgres store", "error", err)
			os.Exit(1)
		}
		return store, func() { _ = store.Close() }
	default:
		store := storage.NewMemoryStore()
		return store, func() { _ = store.Close() }
	}
}
