package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"harmonic-signals/internal/backtest"
	"harmonic-signals/internal/strategy"
)

func TestDecodeCandles(t *testing.T) {
	tests := []struct {
		name  string
		input string
		count int
		close float64
	}{
		{
			name:  "candle objects",
			input: `[{"open":1,"high":2,"low":0.5,"close":1.5,"time":1000}]`,
			count: 1,
			close: 1.5,
		},
		{
			name:  "binance klines",
			input: `[[1000,"1.0","2.0","0.5","1.5","10",1999,"0",1,"0","0","0"]]`,
			count: 1,
			close: 1.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candles, err := decodeCandles([]byte(tt.input))
			if err != nil {
				t.Fatalf("decodeCandles failed: %v", err)
			}
			if len(candles) != tt.count {
				t.Fatalf("Expected %d candles, got %d", tt.count, len(candles))
			}
			if candles[0].Close != tt.close || candles[0].Time != 1000 {
				t.Errorf("Unexpected candle %+v", candles[0])
			}
		})
	}

	if _, err := decodeCandles([]byte(`{"open":1}`)); err == nil {
		t.Error("Expected error for a non-array payload")
	}
}

func TestEncodeYAMLUsesJSONNames(t *testing.T) {
	report := strategy.Result{FibLevels: map[string]float64{"0.5": 145}}

	out, err := encode(report, "yaml")
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := yaml.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("Output is not valid YAML: %v", err)
	}
	if _, ok := decoded["fib_levels"]; !ok {
		t.Errorf("Expected fib_levels key, got %v", decoded)
	}

	if _, err := encode(report, "xml"); err == nil {
		t.Error("Expected error for unknown format")
	}
}

func TestLoadBacktestConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backtest.yaml")
	content := strings.Join([]string{
		"symbol: ETHUSDT",
		"commission: 0.001",
		"strategy:",
		"  trade_size: 3",
		"  ew_rate: 0.5",
		"  doji_policy: carry_forward",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg := backtest.Config{Interval: "1h", Strategy: strategy.DefaultConfig()}
	if err := loadBacktestConfig(path, &cfg); err != nil {
		t.Fatalf("loadBacktestConfig failed: %v", err)
	}

	if cfg.Symbol != "ETHUSDT" || cfg.Interval != "1h" || cfg.Commission != 0.001 {
		t.Errorf("Unexpected config %+v", cfg)
	}
	if cfg.Strategy.TradeSize != 3 || cfg.Strategy.EWRate != 0.5 {
		t.Errorf("Strategy overrides not applied: %+v", cfg.Strategy)
	}
	if cfg.Strategy.TPRate != 0.618 {
		t.Errorf("Unset strategy fields should keep defaults, got tp_rate %v", cfg.Strategy.TPRate)
	}
}

func TestLoadBacktestConfigShowFib(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
		wantErr bool
	}{
		{"narrows to one label", "strategy:\n  show_fib:\n    \"0.618\": true\n", []string{"0.618"}, false},
		{"alias spelling", "strategy:\n  show_fib:\n    \"1.0\": true\n", []string{"1"}, false},
		{"unset keeps defaults", "symbol: ETHUSDT\n", []string{"0", "0.236", "0.382", "0.5", "0.618", "0.764", "1"}, false},
		{"unknown label", "strategy:\n  show_fib:\n    \"0.7\": true\n", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "backtest.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatalf("Failed to write config: %v", err)
			}

			cfg := backtest.Config{Strategy: strategy.DefaultConfig()}
			err := loadBacktestConfig(path, &cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error for unknown fib label")
				}
				return
			}
			if err != nil {
				t.Fatalf("loadBacktestConfig failed: %v", err)
			}

			if len(cfg.Strategy.ShowFib) != len(tt.want) {
				t.Fatalf("Expected labels %v, got %v", tt.want, cfg.Strategy.ShowFib)
			}
			for _, label := range tt.want {
				if !cfg.Strategy.ShowFib[label] {
					t.Errorf("Expected label %s enabled, got %v", label, cfg.Strategy.ShowFib)
				}
			}
		})
	}
}
