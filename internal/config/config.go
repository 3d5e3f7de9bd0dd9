package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/better-wallet/signing-gateway/internal/validation"
	"github.com/better-wallet/signing-gateway/pkg/types"
)

// Config holds the gateway configuration.
// Route-level credentials (identity service, bundler) are checked per request,
// not at startup.
type Config struct {
	// Server
	Port                int
	ExternalCallTimeout time.Duration
	RateLimitEnabled    bool
	RateLimitRPS        int
	RateLimitBurst      int

	// Database
	PostgresDSN string

	// Identity service
	IdentityBackend string // local or remote
	CapsuleAPIKey   string
	CapsuleEnv      string
	CapsuleBaseURL  string

	// Key-share decryption
	KMSProvider        string
	KMSLocalMasterKey  string
	KMSAWSKeyID        string
	KMSAWSRegion       string
	KMSVaultAddress    string
	KMSVaultToken      string
	KMSVaultTransitKey string

	// Bearer authentication
	AuthJWKSURI  string
	AuthIssuer   string
	AuthAudience string

	// EVM
	EVMRPCURL  string
	EVMChainID int64

	// Account abstraction
	AlchemyAPIKey      string
	AlchemyGasPolicyID string
	AlchemyRPCURL      string // may contain %s for the API key
	AAEntryPoint       string
	AAAccountFactory   string
	AADemoContract     string

	// Cosmos
	CosmosLCDURL  string
	CosmosChainID string
	CosmosPrefix  string
	CosmosDenom   string

	// Solana
	SolanaRPCURL string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:                getEnvInt("PORT", 8080),
		ExternalCallTimeout: getEnvDuration("EXTERNAL_CALL_TIMEOUT", 15*time.Second),
		RateLimitEnabled:    getEnvBool("RATE_LIMIT_ENABLED", true),
		RateLimitRPS:        getEnvInt("RATE_LIMIT_RPS", 10),
		RateLimitBurst:      getEnvInt("RATE_LIMIT_BURST", 20),

		PostgresDSN: getEnv("POSTGRES_DSN", ""),

		IdentityBackend: getEnv("IDENTITY_BACKEND", types.IdentityBackendLocal),
		CapsuleAPIKey:   getEnv("CAPSULE_API_KEY", ""),
		CapsuleEnv:      getEnv("CAPSULE_ENV", "beta"),
		CapsuleBaseURL:  getEnv("CAPSULE_BASE_URL", ""),

		KMSProvider:        getEnv("KMS_PROVIDER", "local"),
		KMSLocalMasterKey:  getEnv("KMS_LOCAL_MASTER_KEY", ""),
		KMSAWSKeyID:        getEnv("KMS_AWS_KEY_ID", ""),
		KMSAWSRegion:       getEnv("KMS_AWS_REGION", ""),
		KMSVaultAddress:    getEnv("KMS_VAULT_ADDRESS", ""),
		KMSVaultToken:      getEnv("KMS_VAULT_TOKEN", ""),
		KMSVaultTransitKey: getEnv("KMS_VAULT_TRANSIT_KEY", ""),

		AuthJWKSURI:  getEnv("AUTH_JWKS_URI", ""),
		AuthIssuer:   getEnv("AUTH_ISSUER", ""),
		AuthAudience: getEnv("AUTH_AUDIENCE", ""),

		EVMRPCURL:  getEnv("EVM_RPC_URL", "https://ethereum-sepolia-rpc.publicnode.com"),
		EVMChainID: getEnvInt64("EVM_CHAIN_ID", 11155111),

		AlchemyAPIKey:      getEnv("ALCHEMY_API_KEY", ""),
		AlchemyGasPolicyID: getEnv("ALCHEMY_GAS_POLICY_ID", ""),
		AlchemyRPCURL:      getEnv("ALCHEMY_RPC_URL", "https://eth-sepolia.g.alchemy.com/v2/%s"),
		AAEntryPoint:       getEnv("AA_ENTRY_POINT", "0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789"),
		AAAccountFactory:   getEnv("AA_ACCOUNT_FACTORY", "0x00004EC70002a32400f8ae005A26081065620D20"),
		AADemoContract:     getEnv("AA_DEMO_CONTRACT", "0x7920b6d8b07f0b9a3b96f238c64e022278db1419"),

		CosmosLCDURL:  getEnv("COSMOS_LCD_URL", "https://rest.sentry-01.theta-testnet.polypore.xyz"),
		CosmosChainID: getEnv("COSMOS_CHAIN_ID", "theta-testnet-001"),
		CosmosPrefix:  getEnv("COSMOS_PREFIX", "cosmos"),
		CosmosDenom:   getEnv("COSMOS_DENOM", "uatom"),

		SolanaRPCURL: getEnv("SOLANA_RPC_URL", "https://api.devnet.solana.com"),
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

	if c.IdentityBackend != types.IdentityBackendLocal && c.IdentityBackend != types.IdentityBackendRemote {
		return fmt.Errorf("IDENTITY_BACKEND must be 'local' or 'remote', got: %s", c.IdentityBackend)
	}

	if c.IdentityBackend == types.IdentityBackendRemote && c.CapsuleBaseURL == "" && c.CapsuleEnv == "" {
		return fmt.Errorf("CAPSULE_BASE_URL or CAPSULE_ENV is required when IDENTITY_BACKEND is 'remote'")
	}

	if c.ExternalCallTimeout <= 0 {
		return fmt.Errorf("EXTERNAL_CALL_TIMEOUT must be positive")
	}

	if err := validation.ValidateChainID(c.EVMChainID); err != nil {
		return fmt.Errorf("EVM_CHAIN_ID: %w", err)
	}

	return nil
}

// RequireIdentityService reports the missing identity service credential, if any.
// Every signing route calls this before any network I/O.
func (c *Config) RequireIdentityService() error {
	if c.CapsuleAPIKey == "" {
		return fmt.Errorf("CAPSULE_API_KEY is not set")
	}
	return nil
}

// RequireBundler reports missing account-abstraction credentials, if any.
func (c *Config) RequireBundler() error {
	var missing []string
	if c.AlchemyAPIKey == "" {
		missing = append(missing, "ALCHEMY_API_KEY")
	}
	if c.AlchemyGasPolicyID == "" {
		missing = append(missing, "ALCHEMY_GAS_POLICY_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s not set", strings.Join(missing, ", "))
	}
	return nil
}

// BundlerURL returns the bundler/gas-manager RPC endpoint with the API key applied
func (c *Config) BundlerURL() string {
	if strings.Contains(c.AlchemyRPCURL, "%s") {
		return fmt.Sprintf(c.AlchemyRPCURL, c.AlchemyAPIKey)
	}
	return c.AlchemyRPCURL
}

// IdentityBaseURL returns the remote identity service endpoint
func (c *Config) IdentityBaseURL() string {
	if c.CapsuleBaseURL != "" {
		return strings.TrimRight(c.CapsuleBaseURL, "/")
	}
	switch c.CapsuleEnv {
	case "prod", "production":
		return "https://api.usecapsule.com"
	case "sandbox":
		return "https://api.sandbox.usecapsule.com"
	default:
		return "https://api.beta.usecapsule.com"
	}
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

func getEnvInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	valueStr = strings.ToLower(valueStr)
	return valueStr == "true" || valueStr == "1" || valueStr == "yes"
}

// getEnvDuration accepts Go duration strings ("15s") or plain seconds ("15")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
