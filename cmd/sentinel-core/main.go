package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/sentinel-amm/sentinel/internal/auction"
	"github.com/sentinel-amm/sentinel/internal/bus"
	"github.com/sentinel-amm/sentinel/internal/clickhouse"
	"github.com/sentinel-amm/sentinel/internal/config"
	"github.com/sentinel-amm/sentinel/internal/guard"
	"github.com/sentinel-amm/sentinel/internal/insurance"
	"github.com/sentinel-amm/sentinel/internal/observability"
	"github.com/sentinel-amm/sentinel/internal/scoring"
)

func main() {
	_ = godotenv.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMicro
	log.Logger = zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", "sentinel-core").
		Logger()

	log.Info().Msg("SENTINEL core - starting")

	cfgPath := os.Getenv("SENTINEL_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if level, err := zerolog.ParseLevel(cfg.General.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	log.Info().
		Str("instance_id", cfg.General.InstanceID).
		Str("environment", cfg.General.Environment).
		Msg("Configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Warn().Str("signal", sig.String()).Msg("Shutdown signal received")
		cancel()
	}()

	producer, err := bus.NewProducer(cfg.Kafka.Brokers,
		bus.WithInstanceID(cfg.General.InstanceID),
		bus.WithSchemaVersion(cfg.Kafka.SchemaVersion),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create kafka producer")
	}
	defer producer.Close()

	g := guard.New(guard.Config{
		Owner:           common.HexToAddress(cfg.General.Owner),
		Treasury:        common.HexToAddress(cfg.General.Treasury),
		Protocol:        common.HexToAddress(cfg.General.Protocol),
		Producer:        producer,
		ScoringParams:   scoringParams(cfg.Scoring),
		AuctionPolicy:   auctionPolicy(cfg.Auction),
		InsuranceParams: insuranceParams(cfg.Insurance),
		OracleSigners:   oracleSigners(cfg.Oracle),
		AuditCapacity:   4096,
	})

	// History mirror: consume the core's own notifications into ClickHouse.
	// Best-effort; the core never waits on it.
	if ch, err := clickhouse.NewClient(cfg.ClickHouse.DSN, clickhouse.PoolSettings{
		MaxOpenConns: cfg.ClickHouse.MaxOpenConns,
		MaxIdleConns: cfg.ClickHouse.MaxIdleConns,
	}); err != nil {
		log.Error().Err(err).Msg("ClickHouse unavailable, history mirror disabled")
	} else {
		defer ch.Close()
		if err := ch.EnsureTables(ctx, cfg.ClickHouse.Database); err != nil {
			log.Error().Err(err).Msg("ClickHouse schema setup failed")
		}
		writer := clickhouse.NewBatchWriter(ch, cfg.ClickHouse.Database, 1000, 5*time.Second)
		defer writer.Close()
		go writer.Start(ctx)

		groupID := cfg.Kafka.ConsumerConfig.GroupIDPrefix + "history"
		consumer, err := bus.NewConsumer(cfg.Kafka.Brokers, groupID,
			[]string{bus.TopicSwaps, bus.TopicAlerts, bus.TopicAuctions})
		if err != nil {
			log.Error().Err(err).Msg("History consumer unavailable")
		} else {
			defer consumer.Close()
			go func() {
				if err := consumer.Consume(ctx, historyHandler(writer)); err != nil && ctx.Err() == nil {
					log.Error().Err(err).Msg("History consumer stopped")
				}
			}()
		}
	}

	monitor := observability.NewHealthMonitor(30 * time.Second)
	monitor.Register("breaker", func(ctx context.Context) observability.ComponentHealth {
		if g.Paused() {
			return observability.ComponentHealth{Status: observability.StatusDegraded, Message: "circuit breaker engaged"}
		}
		return observability.ComponentHealth{Status: observability.StatusHealthy}
	})
	go monitor.Start(ctx)
	go heartbeatLoop(ctx, producer, monitor, g, cfg.General.InstanceID)

	if cfg.Metrics.Enabled {
		go serveMetrics(ctx, cfg.Metrics.PrometheusPort, monitor, g)
	}

	log.Info().Msg("SENTINEL core - all components started")
	<-ctx.Done()

	producer.Flush(5 * time.Second)
	log.Info().Msg("SENTINEL core - shutdown complete")
}

func scoringParams(c config.ScoringConfig) scoring.Params {
	p := scoring.DefaultParams()
	if floor, err := decimal.NewFromString(c.LargeSwapFloor); err == nil {
		p.LargeSwapFloor = floor
	}
	p.RapidSwapWindow = c.RapidSwapWindow()
	p.ConsecutiveSwapPct = c.ConsecutiveSwapPct
	p.VolumeSpikeThreshold = c.VolumeSpikeThreshold
	return p
}

func auctionPolicy(c config.AuctionConfig) auction.Policy {
	p := auction.DefaultPolicy()
	p.OwnerOnlyStart = c.OwnerOnlyStart
	p.DefaultFeeBps = c.DefaultFeeBps
	p.OverrideDuration = c.OverrideDuration()
	p.MaxTimeBonusPct = c.MaxTimeBonusPct
	return p
}

func insuranceParams(c config.InsuranceConfig) insurance.Params {
	p := insurance.DefaultParams()
	if floor, err := decimal.NewFromString(c.MinInsurableLoss); err == nil {
		p.MinInsurableLoss = floor
	}
	p.MaxCompensationPct = c.MaxCompensationPct
	return p
}

func oracleSigners(c config.OracleConfig) []common.Address {
	signers := make([]common.Address, 0, len(c.Signers))
	for _, s := range c.Signers {
		signers = append(signers, common.HexToAddress(s))
	}
	return signers
}

// historyHandler routes consumed notifications into the batch writer.
func historyHandler(w *clickhouse.BatchWriter) bus.MessageHandler {
	return func(ctx context.Context, msg bus.Message) error {
		switch msg.Topic {
		case bus.TopicSwaps:
			var ev bus.SwapObserved
			if err := json.Unmarshal(msg.Value, &ev); err != nil {
				return err
			}
			return w.WriteSwap(ctx, ev)
		case bus.TopicAlerts:
			var ev bus.MEVAlert
			if err := json.Unmarshal(msg.Value, &ev); err != nil {
				return err
			}
			return w.WriteAlert(ctx, ev)
		case bus.TopicAuctions:
			var ev bus.AuctionSettled
			if err := json.Unmarshal(msg.Value, &ev); err != nil {
				return err
			}
			// Only settlements carry a winning bid; skip the other shapes.
			if ev.WinningBid.IsZero() && ev.Winner == (common.Address{}) {
				return nil
			}
			return w.WriteSettlement(ctx, ev)
		}
		return nil
	}
}

// heartbeatLoop publishes a liveness event with a few headline counters.
func heartbeatLoop(ctx context.Context, producer bus.Producer, monitor *observability.HealthMonitor, g *guard.Guard, instanceID string) {
	started := time.Now()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			health := monitor.Check(ctx)
			m := g.Metrics()
			hb := bus.Heartbeat{
				BaseEvent: bus.NewBaseEvent(instanceID, "1"),
				Component: "sentinel-core",
				Status:    string(health.Status),
				Uptime:    time.Since(started),
				Metrics: map[string]float64{
					"swaps_observed":   float64(m.SwapsObserved.Value()),
					"alerts_raised":    float64(m.AlertsRaised.Value()),
					"auctions_settled": float64(m.AuctionsSettled.Value()),
					"claims_paid":      float64(m.ClaimsPaid.Value()),
				},
			}
			if err := producer.PublishJSON(ctx, bus.TopicHeartbeat, "sentinel-core", hb); err != nil {
				log.Warn().Err(err).Msg("heartbeat publish failed")
			}
		}
	}
}

func serveMetrics(ctx context.Context, port int, monitor *observability.HealthMonitor, g *guard.Guard) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.NewPrometheusExporter(g.Metrics().Registry))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		health := monitor.Check(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if health.Status == observability.StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(health)
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Int("port", port).Msg("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("metrics server failed")
	}
}
