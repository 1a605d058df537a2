package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds infrastructure-level configuration loaded from the
// environment.
type Config struct {
	// Database
	PostgresDSN string

	// Chain RPC endpoints, comma-separated in RPC_URLS. Chain IDs are
	// detected by dialing each endpoint at startup.
	RPCURLs []string

	// Session wallet keystore
	KeystoreBackend   string
	LocalMasterKeyHex string
	AWSKMSKeyID       string
	AWSKMSRegion      string
	VaultAddress      string
	VaultToken        string
	VaultTransitKey   string

	// bcrypt hash of the service API key. Empty disables service auth,
	// which is only acceptable in local development.
	ServiceAPIKeyHash string

	// Request limits
	RateLimitRPS     int
	RateLimitBurst   int
	MaxBodyBytes     int64
	MaxCalldataBytes int

	// Server
	Port int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		PostgresDSN:       getEnv("POSTGRES_DSN", ""),
		RPCURLs:           parseRPCURLs(getEnv("RPC_URLS", "")),
		KeystoreBackend:   getEnv("KEYSTORE_BACKEND", "local"),
		LocalMasterKeyHex: getEnv("LOCAL_MASTER_KEY", ""),
		AWSKMSKeyID:       getEnv("AWS_KMS_KEY_ID", ""),
		AWSKMSRegion:      getEnv("AWS_KMS_REGION", ""),
		VaultAddress:      getEnv("VAULT_ADDR", ""),
		VaultToken:        getEnv("VAULT_TOKEN", ""),
		VaultTransitKey:   getEnv("VAULT_TRANSIT_KEY", "session-wallet"),
		ServiceAPIKeyHash: getEnv("SERVICE_API_KEY_HASH", ""),
		RateLimitRPS:      getEnvInt("RATE_LIMIT_RPS", 20),
		RateLimitBurst:    getEnvInt("RATE_LIMIT_BURST", 40),
		MaxBodyBytes:      int64(getEnvInt("MAX_BODY_BYTES", 1<<20)),
		MaxCalldataBytes:  getEnvInt("MAX_CALLDATA_BYTES", 0),
		Port:              getEnvInt("PORT", 8080),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required")
	}

	switch c.KeystoreBackend {
	case "local":
		if c.LocalMasterKeyHex == "" {
			return fmt.Errorf("LOCAL_MASTER_KEY is required when KEYSTORE_BACKEND is 'local'")
		}
	case "aws-kms":
		if c.AWSKMSKeyID == "" {
			return fmt.Errorf("AWS_KMS_KEY_ID is required when KEYSTORE_BACKEND is 'aws-kms'")
		}
	case "vault":
		if c.VaultAddress == "" || c.VaultToken == "" {
			return fmt.Errorf("VAULT_ADDR and VAULT_TOKEN are required when KEYSTORE_BACKEND is 'vault'")
		}
	default:
		return fmt.Errorf("KEYSTORE_BACKEND must be 'local', 'aws-kms', or 'vault', got: %s", c.KeystoreBackend)
	}

	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit settings must be positive")
	}

	return nil
}

// parseRPCURLs splits the comma-separated endpoint list. An empty input is
// allowed; delegation activation and delegated execution are then
// unavailable but the rest of the API still works.
func parseRPCURLs(raw string) []string {
	var urls []string
	for _, url := range strings.Split(raw, ",") {
		url = strings.TrimSpace(url)
		if url != "" {
			urls = append(urls, url)
		}
	}
	return urls
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
