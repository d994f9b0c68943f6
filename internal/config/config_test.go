package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	yaml := `
general:
  instance_id: "test-node"
  environment: "development"
  log_level: "debug"
  owner: "0x0000000000000000000000000000000000000001"

kafka:
  brokers:
    - "localhost:19092"
  schema_version: "1.0.0"

clickhouse:
  dsn: "clickhouse://localhost:9000/sentinel_test"

scoring:
  large_swap_floor: "2000000"
  rapid_swap_window_sec: 120

auction:
  owner_only_start: true
  default_fee_bps: 250

insurance:
  max_compensation_pct: 40

relay:
  listen_addr: ":9999"
  auto_bid:
    enabled: true
    max_bid: "500000"
`
	tmpFile, err := os.CreateTemp("", "sentinel-config-*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpFile.Name())

	_, err = tmpFile.WriteString(yaml)
	require.NoError(t, err)
	tmpFile.Close()

	cfg, err := Load(tmpFile.Name())
	require.NoError(t, err)

	assert.Equal(t, "test-node", cfg.General.InstanceID)
	assert.Equal(t, "0x0000000000000000000000000000000000000001", cfg.General.Owner)
	assert.Equal(t, []string{"localhost:19092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "2000000", cfg.Scoring.LargeSwapFloor)
	assert.Equal(t, 120*time.Second, cfg.Scoring.RapidSwapWindow())
	assert.True(t, cfg.Auction.OwnerOnlyStart)
	assert.Equal(t, uint32(250), cfg.Auction.DefaultFeeBps)
	assert.Equal(t, int64(40), cfg.Insurance.MaxCompensationPct)
	assert.Equal(t, ":9999", cfg.Relay.ListenAddr)
	assert.True(t, cfg.Relay.AutoBid.Enabled)
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "sentinel-config-*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpFile.Name())
	tmpFile.Close()

	cfg, err := Load(tmpFile.Name())
	require.NoError(t, err)

	assert.Equal(t, "sentinel-1", cfg.General.InstanceID)
	assert.Equal(t, "info", cfg.General.LogLevel)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "all", cfg.Kafka.ProducerConfig.Acks)
	assert.Equal(t, "1000000", cfg.Scoring.LargeSwapFloor)
	assert.Equal(t, 300*time.Second, cfg.Scoring.RapidSwapWindow())
	assert.Equal(t, int64(200), cfg.Scoring.ConsecutiveSwapPct)
	assert.Equal(t, uint32(100), cfg.Auction.DefaultFeeBps)
	assert.Equal(t, 5*time.Minute, cfg.Auction.OverrideDuration())
	assert.Equal(t, int64(20), cfg.Auction.MaxTimeBonusPct)
	assert.Equal(t, "100000", cfg.Insurance.MinInsurableLoss)
	assert.Equal(t, int64(50), cfg.Insurance.MaxCompensationPct)
	assert.Equal(t, ":8080", cfg.Relay.ListenAddr)
	assert.Equal(t, 9090, cfg.Metrics.PrometheusPort)
}

func TestLoadConfigExpandsEnv(t *testing.T) {
	t.Setenv("SENTINEL_TEST_BROKER", "kafka-prod:9092")

	yaml := `
kafka:
  brokers:
    - "${SENTINEL_TEST_BROKER}"
`
	tmpFile, err := os.CreateTemp("", "sentinel-config-*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpFile.Name())
	_, err = tmpFile.WriteString(yaml)
	require.NoError(t, err)
	tmpFile.Close()

	cfg, err := Load(tmpFile.Name())
	require.NoError(t, err)
	assert.Equal(t, []string{"kafka-prod:9092"}, cfg.Kafka.Brokers)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/sentinel.yaml")
	require.Error(t, err)
}
