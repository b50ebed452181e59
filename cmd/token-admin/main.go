package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"harmonic-signals/config"
	"harmonic-signals/internal/auth"
	"harmonic-signals/internal/vault"
)

func main() {
	fmt.Println("========================================")
	fmt.Println(" Harmonic Signals Token Administration")
	fmt.Println("========================================")

	cfg, vaultClient, err := loadConfig()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	// Without a secret only rotation is useful, and only with Vault
	jwtManager, err := newJWTManager(cfg)
	if err != nil {
		if !vaultClient.IsEnabled() {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Warning: %v\n", err)
	}

	reader := bufio.NewReader(os.Stdin)

	for {
		fmt.Println("\nOptions:")
		fmt.Println("  1. Generate operator token (read + reset)")
		fmt.Println("  2. Generate read-only token")
		fmt.Println("  3. Validate a token")
		fmt.Println("  4. Rotate JWT secret in Vault")
		fmt.Println("  5. Exit")
		fmt.Print("\nSelect option: ")

		input, _ := reader.ReadString('\n')
		input = strings.TrimSpace(input)

		switch input {
		case "1":
			generateToken(reader, jwtManager, auth.ScopeOperator)
		case "2":
			generateToken(reader, jwtManager, auth.ScopeRead)
		case "3":
			validateToken(reader, jwtManager)
		case "4":
			if rotated := rotateSecret(reader, vaultClient, cfg); rotated != nil {
				jwtManager = rotated
			}
		case "5":
			fmt.Println("Goodbye!")
			os.Exit(0)
		default:
			fmt.Println("Invalid option")
		}
	}
}

// loadConfig reads the configuration the service itself would use,
// with Vault secrets applied when Vault is enabled
func loadConfig() (*config.Config, *vault.Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	vaultClient, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	if vaultClient.IsEnabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		secrets, err := vaultClient.GetSecrets(ctx)
		if err != nil && !errors.Is(err, vault.ErrSecretNotFound) {
			return nil, nil, fmt.Errorf("failed to read secrets from vault: %w", err)
		}
		if secrets != nil {
			secrets.Apply(cfg)
		}
	}

	return cfg, vaultClient, nil
}

func newJWTManager(cfg *config.Config) (*auth.JWTManager, error) {
	if cfg.AuthConfig.JWTSecret == "" {
		return nil, fmt.Errorf("no JWT secret configured (set AUTH_JWT_SECRET or store jwt_secret in vault)")
	}
	return auth.NewJWTManager(cfg.AuthConfig.JWTSecret, cfg.AuthConfig.Issuer, auth.DefaultTokenDuration), nil
}

// rotateSecret writes a fresh signing secret to Vault. Tokens signed with
// the old secret stop validating once the service reloads its secrets.
func rotateSecret(reader *bufio.Reader, vaultClient *vault.Client, cfg *config.Config) *auth.JWTManager {
	fmt.Println("\n--- Rotate JWT Secret ---")
	if !vaultClient.IsEnabled() {
		fmt.Println("Vault is disabled (set VAULT_ENABLED=true)")
		return nil
	}

	fmt.Print("Type 'rotate' to confirm: ")
	confirm, _ := reader.ReadString('\n')
	if strings.TrimSpace(confirm) != "rotate" {
		fmt.Println("Cancelled")
		return nil
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		fmt.Printf("Failed to generate secret: %v\n", err)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	secrets := vault.ServiceSecrets{
		DatabasePassword: cfg.DatabaseConfig.Password,
		RedisPassword:    cfg.RedisConfig.Password,
		JWTSecret:        hex.EncodeToString(buf),
	}
	if err := vaultClient.StoreSecrets(ctx, secrets); err != nil {
		fmt.Printf("Failed to store secret: %v\n", err)
		return nil
	}
	vaultClient.ClearCache()

	cfg.AuthConfig.JWTSecret = secrets.JWTSecret
	fmt.Println("JWT secret rotated. Restart the service to pick it up.")
	return auth.NewJWTManager(cfg.AuthConfig.JWTSecret, cfg.AuthConfig.Issuer, auth.DefaultTokenDuration)
}

func generateToken(reader *bufio.Reader, jwtManager *auth.JWTManager, scope string) {
	fmt.Printf("\n--- Generate %s Token ---\n", scope)
	if jwtManager == nil {
		fmt.Println("No JWT secret configured, rotate one first")
		return
	}
	fmt.Print("Subject (who will use the token): ")

	subject, _ := reader.ReadString('\n')
	subject = strings.TrimSpace(subject)
	if subject == "" {
		fmt.Println("Subject is required")
		return
	}

	token, err := jwtManager.GenerateToken(subject, scope)
	if err != nil {
		fmt.Printf("Failed to generate token: %v\n", err)
		return
	}

	fmt.Println("\n========================================")
	fmt.Printf("  Subject: %s\n", subject)
	fmt.Printf("  Scope:   %s\n", scope)
	fmt.Printf("  Expires: %s\n", time.Now().Add(jwtManager.TokenDuration()).Format("2006-01-02 15:04:05"))
	fmt.Printf("  Token:   %s\n", token)
	fmt.Println("========================================")
}

func validateToken(reader *bufio.Reader, jwtManager *auth.JWTManager) {
	fmt.Println("\n--- Validate Token ---")
	if jwtManager == nil {
		fmt.Println("No JWT secret configured, rotate one first")
		return
	}
	fmt.Print("Enter token: ")

	token, _ := reader.ReadString('\n')
	token = strings.TrimSpace(token)

	claims, err := jwtManager.ValidateToken(token)

	fmt.Println("\n========================================")
	if err != nil {
		fmt.Printf("  Status:  INVALID\n")
		fmt.Printf("  Error:   %s\n", err)
	} else {
		fmt.Printf("  Status:  VALID\n")
		fmt.Printf("  Subject: %s\n", claims.Subject)
		fmt.Printf("  Scope:   %s\n", claims.Scope)
		if claims.ExpiresAt != nil {
			fmt.Printf("  Expires: %s\n", claims.ExpiresAt.Time.Format("2006-01-02 15:04:05"))
		}
	}
	fmt.Println("========================================")
}
