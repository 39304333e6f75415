package influxdb

import (
	"context"
	"errors"
	"testing"

	"github.com/verdant-home/verdant-core/internal/infrastructure/config"
)

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestClose_Unconnected(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v, want nil", err)
	}
}

func TestHealthCheck_Disconnected(t *testing.T) {
	c := &Client{}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestWrites_DisconnectedAreNoOps(t *testing.T) {
	c := &Client{}

	// Must not panic with no write API behind them
	c.WriteReading("bin-kitchen", "bin", "weight", 1500)
	c.WriteAlert("bin-kitchen", "bin_full", "high", 92)
	c.WritePoint("custom", nil, map[string]interface{}{"v": 1})
	c.Flush()
}
