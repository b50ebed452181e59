package binance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

const klinePayload = `[
	[1700000000000, "100.0", "110.5", "95.0", "105.0", "12.5", 1700003599999, "0", 10, "0", "0", "0"],
	[1700003600000, "105.0", "108.0", "101.0", "102.0", "8.0", 1700007199999, "0", 7, "0", "0", "0"]
]`

// TestGetKlines tests request parameters and payload decoding
func TestGetKlines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/klines" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("symbol") != "BTCUSDT" || q.Get("interval") != "1h" || q.Get("limit") != "2" {
			t.Errorf("Unexpected query %s", r.URL.RawQuery)
		}
		w.Write([]byte(klinePayload))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, RequestsPerSec: 100})
	klines, err := c.GetKlines(context.Background(), "BTCUSDT", "1h", 2)
	if err != nil {
		t.Fatalf("GetKlines failed: %v", err)
	}
	if len(klines) != 2 {
		t.Fatalf("Expected 2 klines, got %d", len(klines))
	}

	k := klines[0]
	if k.OpenTime != 1700000000000 || k.Open != 100 || k.High != 110.5 || k.Low != 95 || k.Close != 105 || k.Volume != 12.5 {
		t.Errorf("Unexpected first kline: %+v", k)
	}

	candle := k.ToCandle()
	if candle.Open != 100 || candle.High != 110.5 || candle.Low != 95 || candle.Close != 105 || candle.Time != 1700000000000 {
		t.Errorf("Unexpected candle: %+v", candle)
	}
	if len(ToCandles(klines)) != 2 {
		t.Error("ToCandles should keep every kline")
	}
}

// TestGetKlinesRetriesServerErrors tests that 5xx responses are retried
func TestGetKlinesRetriesServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(klinePayload))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, RequestsPerSec: 100, MaxRetries: 2})
	klines, err := c.GetKlines(context.Background(), "BTCUSDT", "1h", 2)
	if err != nil {
		t.Fatalf("Expected retry to succeed, got %v", err)
	}
	if len(klines) != 2 {
		t.Errorf("Expected 2 klines, got %d", len(klines))
	}
	if atomic.LoadInt32(&hits) != 2 {
		t.Errorf("Expected 2 requests, got %d", hits)
	}
}

// TestGetKlinesClientError tests that 4xx responses surface as APIError
func TestGetKlinesClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, RequestsPerSec: 100})
	_, err := c.GetKlines(context.Background(), "NOPE", "1h", 2)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", apiErr.StatusCode)
	}
}

// TestGetKlinesCancelledContext tests that a cancelled context stops the limiter wait
func TestGetKlinesCancelledContext(t *testing.T) {
	c := NewClient(ClientConfig{BaseURL: "http://127.0.0.1:0", RequestsPerSec: 0.001})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	// first call consumes the single burst token
	c.limiter.Allow()
	if _, err := c.GetKlines(ctx, "BTCUSDT", "1h", 1); err == nil {
		t.Error("Expected error when the context expires before a token is available")
	}
}

// TestParseKlinesRejectsShortRows tests malformed payload handling
func TestParseKlinesRejectsShortRows(t *testing.T) {
	if _, err := ParseKlines([]byte(`[[1, "2"]]`)); err == nil {
		t.Error("Expected error for truncated kline row")
	}
	if _, err := ParseKlines([]byte(`{"not": "an array"}`)); err == nil {
		t.Error("Expected error for non-array payload")
	}
}

// TestMockClient tests the scripted kline source
func TestMockClient(t *testing.T) {
	mc := NewMockClient()
	ctx := context.Background()

	if _, err := mc.GetKlines(ctx, "BTCUSDT", "1h", 10); err == nil {
		t.Error("Expected error for unknown series")
	}

	mc.SetKlines("BTCUSDT", "1h", []Kline{{OpenTime: 1}, {OpenTime: 2}, {OpenTime: 3}})
	klines, err := mc.GetKlines(ctx, "BTCUSDT", "1h", 2)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(klines) != 2 || klines[0].OpenTime != 2 || klines[1].OpenTime != 3 {
		t.Errorf("Expected the last 2 klines, got %+v", klines)
	}

	mc.SetError("BTCUSDT", "1h", errors.New("boom"))
	if _, err := mc.GetKlines(ctx, "BTCUSDT", "1h", 2); err == nil {
		t.Error("Expected configured error")
	}
	if mc.Calls("BTCUSDT", "1h") != 3 {
		t.Errorf("Expected 3 calls, got %d", mc.Calls("BTCUSDT", "1h"))
	}
}
