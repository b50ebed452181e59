package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"harmonic-signals/config"
	"harmonic-signals/internal/backtest"
	"harmonic-signals/internal/binance"
	"harmonic-signals/internal/logging"
	"harmonic-signals/internal/patterns"
	"harmonic-signals/internal/strategy"
)

type options struct {
	input      string
	output     string
	mode       string
	format     string
	configFile string
	symbol     string
	interval   string
	maxWindow  int
	commission float64
}

func main() {
	opts := parseFlags()

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "harmonic-replay: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() options {
	var opts options
	flag.StringVar(&opts.input, "input", "-", "candle file: JSON candles or raw Binance klines, - for stdin")
	flag.StringVar(&opts.output, "output", "-", "output file, - for stdout")
	flag.StringVar(&opts.mode, "mode", "backtest", "backtest or analyze")
	flag.StringVar(&opts.format, "format", "json", "json or yaml")
	flag.StringVar(&opts.configFile, "config", "", "optional YAML/JSON backtest config")
	flag.StringVar(&opts.symbol, "symbol", "", "symbol label for the report")
	flag.StringVar(&opts.interval, "interval", "", "interval label for the report")
	flag.IntVar(&opts.maxWindow, "window", backtest.DefaultMaxWindow, "max candles the strategy sees per bar, 0 for all")
	flag.Float64Var(&opts.commission, "commission", 0, "fee per side as a fraction of notional")
	flag.Parse()
	return opts
}

func run(opts options) error {
	// .env is optional
	_ = godotenv.Load()

	// Logs go to stderr so stdout stays machine readable
	logging.SetDefault(logging.New(&logging.Config{
		Level:     getEnv("LOG_LEVEL", "WARN"),
		Output:    "stderr",
		Component: "replay",
	}))

	cfg := config.Default()
	if loaded, err := config.Load(); err == nil {
		cfg = loaded
	} else {
		logging.Warn("Using default configuration", "error", err.Error())
	}

	data, err := readInput(opts.input)
	if err != nil {
		return err
	}

	candles, err := decodeCandles(data)
	if err != nil {
		return err
	}

	btConfig := backtest.Config{
		Symbol:     strings.ToUpper(opts.symbol),
		Interval:   opts.interval,
		Strategy:   strategy.ConfigFromSettings(cfg.HarmonicConfig),
		MaxWindow:  opts.maxWindow,
		Commission: opts.commission,
	}
	if opts.configFile != "" {
		if err := loadBacktestConfig(opts.configFile, &btConfig); err != nil {
			return err
		}
	}

	var report interface{}
	switch opts.mode {
	case "backtest":
		report, err = backtest.NewEngine(btConfig).Run(candles)
		if err != nil {
			return err
		}
	case "analyze":
		strat := strategy.NewHarmonicStrategy(btConfig.Symbol, btConfig.Interval, btConfig.Strategy)
		report = strat.Analyze(candles)
	default:
		return fmt.Errorf("unknown mode %q (want backtest or analyze)", opts.mode)
	}

	out, err := encode(report, opts.format)
	if err != nil {
		return err
	}

	return writeOutput(opts.output, out)
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// decodeCandles accepts either an array of candle objects or the raw
// array-of-arrays payload of the Binance klines endpoint
func decodeCandles(data []byte) ([]patterns.Candle, error) {
	trimmed := bytes.TrimSpace(data)
	if bytes.HasPrefix(trimmed, []byte("[[")) {
		klines, err := binance.ParseKlines(trimmed)
		if err != nil {
			return nil, err
		}
		return binance.ToCandles(klines), nil
	}

	var candles []patterns.Candle
	if err := json.Unmarshal(trimmed, &candles); err != nil {
		return nil, fmt.Errorf("failed to decode candles: %w", err)
	}
	return candles, nil
}

// loadBacktestConfig overlays a YAML (or JSON) file on cfg
func loadBacktestConfig(path string, cfg *backtest.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}

	// yaml merges into a non-nil map, so show_fib starts empty and falls
	// back to the current labels only when the file leaves it out
	defaults := cfg.Strategy.ShowFib
	cfg.Strategy.ShowFib = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg.Strategy.ShowFib = defaults
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if cfg.Strategy.ShowFib == nil {
		cfg.Strategy.ShowFib = defaults
		return nil
	}

	enabled := make(map[string]bool, len(cfg.Strategy.ShowFib))
	for label, on := range cfg.Strategy.ShowFib {
		canonical, ok := patterns.CanonicalFibLabel(label)
		if !ok {
			return fmt.Errorf("config %s: unknown fib label %q", path, label)
		}
		enabled[canonical] = enabled[canonical] || on
	}
	cfg.Strategy.ShowFib = enabled
	return nil
}

// encode renders the report. YAML output goes through JSON first so both
// formats share the same field names.
func encode(report interface{}, format string) ([]byte, error) {
	jsonData, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}

	switch format {
	case "json":
		return append(jsonData, '\n'), nil
	case "yaml", "yml":
		var generic interface{}
		if err := json.Unmarshal(jsonData, &generic); err != nil {
			return nil, fmt.Errorf("failed to re-decode report: %w", err)
		}
		out, err := yaml.Marshal(generic)
		if err != nil {
			return nil, fmt.Errorf("failed to encode yaml: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown format %q (want json or yaml)", format)
	}
}

func writeOutput(path string, data []byte) error {
	if path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
