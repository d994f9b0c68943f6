package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for SENTINEL.
type Config struct {
	General    GeneralConfig    `yaml:"general"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Scoring    ScoringConfig    `yaml:"scoring"`
	Auction    AuctionConfig    `yaml:"auction"`
	Insurance  InsuranceConfig  `yaml:"insurance"`
	Oracle     OracleConfig     `yaml:"oracle"`
	Relay      RelayConfig      `yaml:"relay"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type GeneralConfig struct {
	InstanceID  string `yaml:"instance_id"`
	Environment string `yaml:"environment"` // production|staging|development
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"` // json|text
	Owner       string `yaml:"owner"`
	Treasury    string `yaml:"treasury"`
	Protocol    string `yaml:"protocol"`
}

type KafkaConfig struct {
	Brokers        []string `yaml:"brokers"`
	SchemaVersion  string   `yaml:"schema_version"`
	ProducerConfig struct {
		Acks            string `yaml:"acks"` // all|1|0
		LingerMs        int    `yaml:"linger_ms"`
		BatchSize       int    `yaml:"batch_size"`
		CompressionType string `yaml:"compression_type"` // snappy|lz4|zstd|none
	} `yaml:"producer"`
	ConsumerConfig struct {
		GroupIDPrefix   string `yaml:"group_id_prefix"`
		AutoOffsetReset string `yaml:"auto_offset_reset"` // earliest|latest
		MaxPollRecords  int    `yaml:"max_poll_records"`
	} `yaml:"consumer"`
}

type ClickHouseConfig struct {
	DSN          string `yaml:"dsn"`
	Database     string `yaml:"database"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type ScoringConfig struct {
	LargeSwapFloor        string `yaml:"large_swap_floor"` // base units
	RapidSwapWindowSec    int    `yaml:"rapid_swap_window_sec"`
	ConsecutiveSwapPct    int64  `yaml:"consecutive_swap_pct"`
	VolumeSpikeThreshold  int64  `yaml:"volume_spike_threshold"`
	DefaultAlertThreshold string `yaml:"default_alert_threshold"`
}

type AuctionConfig struct {
	OwnerOnlyStart      bool   `yaml:"owner_only_start"`
	DefaultFeeBps       uint32 `yaml:"default_fee_bps"`
	OverrideDurationSec int    `yaml:"override_duration_sec"`
	MaxTimeBonusPct     int64  `yaml:"max_time_bonus_pct"`
}

type InsuranceConfig struct {
	MinInsurableLoss   string `yaml:"min_insurable_loss"` // base units
	MaxCompensationPct int64  `yaml:"max_compensation_pct"`
}

type OracleConfig struct {
	Signers []string `yaml:"signers"`
}

type RelayConfig struct {
	ListenAddr    string `yaml:"listen_addr"`
	ReadLimit     int64  `yaml:"read_limit_bytes"`
	PingInterval  int    `yaml:"ping_interval_sec"`
	SendQueueSize int    `yaml:"send_queue_size"`
	AutoBid       struct {
		Enabled   bool   `yaml:"enabled"`
		Bidder    string `yaml:"bidder"`
		MaxBid    string `yaml:"max_bid"` // base units
		ScoreEdge int64  `yaml:"score_edge_pct"`
	} `yaml:"auto_bid"`
}

type MetricsConfig struct {
	PrometheusPort int  `yaml:"prometheus_port"`
	Enabled        bool `yaml:"enabled"`
}

// OverrideDuration returns the auction override lifetime as a Duration.
func (a AuctionConfig) OverrideDuration() time.Duration {
	return time.Duration(a.OverrideDurationSec) * time.Second
}

// RapidSwapWindow returns the scoring window as a Duration.
func (s ScoringConfig) RapidSwapWindow() time.Duration {
	return time.Duration(s.RapidSwapWindowSec) * time.Second
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.General.InstanceID == "" {
		cfg.General.InstanceID = "sentinel-1"
	}
	if cfg.General.Environment == "" {
		cfg.General.Environment = "development"
	}
	if cfg.General.LogLevel == "" {
		cfg.General.LogLevel = "info"
	}
	if cfg.General.LogFormat == "" {
		cfg.General.LogFormat = "json"
	}
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{"localhost:9092"}
	}
	if cfg.Kafka.ProducerConfig.Acks == "" {
		cfg.Kafka.ProducerConfig.Acks = "all"
	}
	if cfg.Kafka.ProducerConfig.CompressionType == "" {
		cfg.Kafka.ProducerConfig.CompressionType = "snappy"
	}
	if cfg.Kafka.ConsumerConfig.AutoOffsetReset == "" {
		cfg.Kafka.ConsumerConfig.AutoOffsetReset = "earliest"
	}
	if cfg.ClickHouse.DSN == "" {
		cfg.ClickHouse.DSN = "clickhouse://localhost:9000/sentinel"
	}
	if cfg.ClickHouse.Database == "" {
		cfg.ClickHouse.Database = "sentinel"
	}
	if cfg.ClickHouse.MaxOpenConns == 0 {
		cfg.ClickHouse.MaxOpenConns = 10
	}
	if cfg.Scoring.LargeSwapFloor == "" {
		cfg.Scoring.LargeSwapFloor = "1000000"
	}
	if cfg.Scoring.RapidSwapWindowSec == 0 {
		cfg.Scoring.RapidSwapWindowSec = 300
	}
	if cfg.Scoring.ConsecutiveSwapPct == 0 {
		cfg.Scoring.ConsecutiveSwapPct = 200
	}
	if cfg.Scoring.VolumeSpikeThreshold == 0 {
		cfg.Scoring.VolumeSpikeThreshold = 10
	}
	if cfg.Auction.DefaultFeeBps == 0 {
		cfg.Auction.DefaultFeeBps = 100
	}
	if cfg.Auction.OverrideDurationSec == 0 {
		cfg.Auction.OverrideDurationSec = 300
	}
	if cfg.Auction.MaxTimeBonusPct == 0 {
		cfg.Auction.MaxTimeBonusPct = 20
	}
	if cfg.Insurance.MinInsurableLoss == "" {
		cfg.Insurance.MinInsurableLoss = "100000"
	}
	if cfg.Insurance.MaxCompensationPct == 0 {
		cfg.Insurance.MaxCompensationPct = 50
	}
	if cfg.Relay.ListenAddr == "" {
		cfg.Relay.ListenAddr = ":8080"
	}
	if cfg.Relay.ReadLimit == 0 {
		cfg.Relay.ReadLimit = 1 << 16
	}
	if cfg.Relay.PingInterval == 0 {
		cfg.Relay.PingInterval = 30
	}
	if cfg.Relay.SendQueueSize == 0 {
		cfg.Relay.SendQueueSize = 64
	}
	if cfg.Metrics.PrometheusPort == 0 {
		cfg.Metrics.PrometheusPort = 9090
	}
}
