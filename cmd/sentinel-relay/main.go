package main

import (
	"context"
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

	"github.com/sentinel-amm/sentinel/internal/bus"
	"github.com/sentinel-amm/sentinel/internal/config"
	"github.com/sentinel-amm/sentinel/internal/relay"
)

func main() {
	_ = godotenv.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMicro
	log.Logger = zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", "sentinel-relay").
		Logger()

	log.Info().Msg("SENTINEL relay - starting")

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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Warn().Str("signal", sig.String()).Msg("Shutdown signal received")
		cancel()
	}()

	groupID := cfg.Kafka.ConsumerConfig.GroupIDPrefix + "relay"
	consumer, err := bus.NewConsumer(cfg.Kafka.Brokers, groupID, bus.RelayTopics())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create kafka consumer")
	}
	defer consumer.Close()

	hub := relay.NewHub(relay.HubOptions{
		ReadLimit:     cfg.Relay.ReadLimit,
		PingInterval:  time.Duration(cfg.Relay.PingInterval) * time.Second,
		SendQueueSize: cfg.Relay.SendQueueSize,
	})
	defer hub.Close()

	// The standalone relay observes; auto-bid needs a core-side submitter.
	policy := relay.AutoBidPolicy{Enabled: cfg.Relay.AutoBid.Enabled}
	if policy.Enabled {
		policy.Bidder = common.HexToAddress(cfg.Relay.AutoBid.Bidder)
		maxBid, err := decimal.NewFromString(cfg.Relay.AutoBid.MaxBid)
		if err != nil {
			log.Fatal().Err(err).Str("max_bid", cfg.Relay.AutoBid.MaxBid).Msg("Invalid auto-bid budget")
		}
		policy.MaxBid = maxBid
		log.Warn().Msg("auto_bid enabled without a bid submitter, bids will be skipped")
	}

	r := relay.New(consumer, hub, nil, policy)
	go func() {
		if err := r.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("relay stopped")
			cancel()
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.Handler())

	srv := &http.Server{Addr: cfg.Relay.ListenAddr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", cfg.Relay.ListenAddr).Msg("websocket server listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("websocket server failed")
	}

	log.Info().Msg("SENTINEL relay - shutdown complete")
}
