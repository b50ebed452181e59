package vault

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"harmonic-signals/config"
)

// TestDisabledClientServesStoredSecrets tests the local-only mode
func TestDisabledClientServesStoredSecrets(t *testing.T) {
	c, err := NewClient(config.VaultConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	ctx := context.Background()

	if _, err := c.GetSecrets(ctx); !errors.Is(err, ErrSecretNotFound) {
		t.Errorf("Expected ErrSecretNotFound, got %v", err)
	}

	if err := c.StoreSecrets(ctx, ServiceSecrets{JWTSecret: "s3cret"}); err != nil {
		t.Fatalf("StoreSecrets failed: %v", err)
	}
	secrets, err := c.GetSecrets(ctx)
	if err != nil {
		t.Fatalf("GetSecrets failed: %v", err)
	}
	if secrets.JWTSecret != "s3cret" {
		t.Errorf("Expected stored JWT secret, got %q", secrets.JWTSecret)
	}
	if err := c.Health(ctx); err != nil {
		t.Errorf("Disabled client should report healthy, got %v", err)
	}
}

// TestGetSecretsFromVault tests reading a KV v2 secret over HTTP
func TestGetSecretsFromVault(t *testing.T) {
	var reads int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/secret/data/harmonic-signals" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("X-Vault-Token") != "root" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		atomic.AddInt32(&reads, 1)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"data": map[string]interface{}{
					"db_password": "pg-pass",
					"jwt_secret":  "jwt-pass",
				},
			},
		})
	}))
	defer srv.Close()

	c, err := NewClient(config.VaultConfig{
		Enabled:    true,
		Address:    srv.URL,
		Token:      "root",
		MountPath:  "secret",
		SecretPath: "harmonic-signals",
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	ctx := context.Background()
	secrets, err := c.GetSecrets(ctx)
	if err != nil {
		t.Fatalf("GetSecrets failed: %v", err)
	}
	if secrets.DatabasePassword != "pg-pass" || secrets.JWTSecret != "jwt-pass" || secrets.RedisPassword != "" {
		t.Errorf("Unexpected secrets %+v", secrets)
	}

	// second read is served from memory
	if _, err := c.GetSecrets(ctx); err != nil {
		t.Fatalf("Cached GetSecrets failed: %v", err)
	}
	if atomic.LoadInt32(&reads) != 1 {
		t.Errorf("Expected 1 vault read, got %d", reads)
	}

	c.ClearCache()
	if _, err := c.GetSecrets(ctx); err != nil {
		t.Fatalf("GetSecrets after ClearCache failed: %v", err)
	}
	if atomic.LoadInt32(&reads) != 2 {
		t.Errorf("Expected 2 vault reads after ClearCache, got %d", reads)
	}
}

// TestApplySecrets tests that only non-empty secrets override config
func TestApplySecrets(t *testing.T) {
	cfg := config.Default()
	cfg.RedisConfig.Password = "keep"

	secrets := &ServiceSecrets{DatabasePassword: "pg", JWTSecret: "jwt"}
	secrets.Apply(cfg)

	if cfg.DatabaseConfig.Password != "pg" {
		t.Errorf("Expected database password override, got %q", cfg.DatabaseConfig.Password)
	}
	if cfg.AuthConfig.JWTSecret != "jwt" {
		t.Errorf("Expected JWT secret override, got %q", cfg.AuthConfig.JWTSecret)
	}
	if cfg.RedisConfig.Password != "keep" {
		t.Errorf("Empty secret should not override redis password, got %q", cfg.RedisConfig.Password)
	}
}
