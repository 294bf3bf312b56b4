package influxdb

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/rvc-bridge/internal/infrastructure/config"
)

// testConfig returns a configuration for a local dev InfluxDB.
func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "rvcbridge-dev-token",
		Org:           "rvcbridge",
		Bucket:        "telemetry",
		BatchSize:     10,
		FlushInterval: 1,
	}
}

// connectOrSkip returns a live client or skips when no server is running.
func connectOrSkip(t *testing.T) *Client {
	t.Helper()
	if os.Getenv("RUN_INTEGRATION") == "" {
		t.Skip("set RUN_INTEGRATION=1 to run against a local InfluxDB")
	}
	client, err := Connect(context.Background(), testConfig())
	if err != nil {
		t.Skipf("InfluxDB not available: %v", err)
	}
	t.Cleanup(func() { client.Close() }) //nolint:errcheck // Test cleanup
	return client
}

func lineProtocol(p *write.Point) string {
	return write.PointToLineProtocol(p, time.Nanosecond)
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	if _, err := Connect(context.Background(), cfg); !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:59999"

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := Connect(ctx, cfg); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestDeviceStatePoint(t *testing.T) {
	ts := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		deviceType string
		attrs      map[string]any
		contains   []string
		excludes   []string
		wantNil    bool
	}{
		{
			name:       "dimmer",
			deviceType: "dimmer",
			attrs:      map[string]any{"brightness": float64(75), "state": "ON"},
			contains:   []string{"device_state,", "device_id=dimmer1", "device_type=dimmer", "brightness=75", `state="ON"`},
		},
		{
			name:       "hvac mode skipped",
			deviceType: "hvac",
			attrs:      map[string]any{"mode": "cool", "coolSetpoint": 22.5},
			contains:   []string{"coolSetpoint=22.5"},
			excludes:   []string{"mode="},
		},
		{
			name:       "json number and bool",
			deviceType: "generator",
			attrs:      map[string]any{"hours": json.Number("12.5"), "running": true},
			contains:   []string{"hours=12.5", "running=true"},
		},
		{
			name:       "unknown type tag",
			deviceType: "",
			attrs:      map[string]any{"position": 10},
			contains:   []string{"device_type=unknown", "position=10i"},
		},
		{
			name:       "nothing numeric",
			deviceType: "hvac",
			attrs:      map[string]any{"mode": "off"},
			wantNil:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := deviceStatePoint("dimmer1", tt.deviceType, tt.attrs, ts)
			if tt.wantNil {
				if p != nil {
					t.Fatalf("point = %s, want nil", lineProtocol(p))
				}
				return
			}
			if p == nil {
				t.Fatal("point = nil")
			}
			line := lineProtocol(p)
			for _, want := range tt.contains {
				if !strings.Contains(line, want) {
					t.Errorf("line %q missing %q", line, want)
				}
			}
			for _, bad := range tt.excludes {
				if strings.Contains(line, bad) {
					t.Errorf("line %q should not contain %q", line, bad)
				}
			}
		})
	}
}

func TestDisconnectedClientIsNoop(t *testing.T) {
	var c *Client
	if c.IsConnected() {
		t.Error("nil client reports connected")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil = %v", err)
	}

	idle := &Client{}
	idle.WriteDeviceState("dimmer1", "dimmer", map[string]any{"brightness": 1}, time.Now())
	idle.WritePoint("x", nil, map[string]any{"v": 1})
	idle.Flush()
	if err := idle.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() = %v, want ErrNotConnected", err)
	}
}

func TestWriteDeviceState_Live(t *testing.T) {
	client := connectOrSkip(t)

	errs := make(chan error, 1)
	client.SetOnError(func(err error) {
		select {
		case errs <- err:
		default:
		}
	})

	client.WriteDeviceState("dimmer1", "dimmer", map[string]any{"brightness": 50.0}, time.Now())
	client.Flush()

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() = %v", err)
	}
	select {
	case err := <-errs:
		t.Errorf("async write error: %v", err)
	default:
	}
}
