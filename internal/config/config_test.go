package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		PostgresDSN:         "postgres://localhost:5432/test",
		IdentityBackend:     "local",
		CapsuleEnv:          "beta",
		ExternalCallTimeout: 15 * time.Second,
		EVMChainID:          11155111,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid local backend",
			mutate: func(c *Config) {},
		},
		{
			name: "valid remote backend",
			mutate: func(c *Config) {
				c.IdentityBackend = "remote"
				c.CapsuleBaseURL = "https://identity.example.com"
			},
		},
		{
			name:    "missing postgres DSN",
			mutate:  func(c *Config) { c.PostgresDSN = "" },
			wantErr: true,
			errMsg:  "POSTGRES_DSN is required",
		},
		{
			name:    "invalid identity backend",
			mutate:  func(c *Config) { c.IdentityBackend = "mystery" },
			wantErr: true,
			errMsg:  "IDENTITY_BACKEND must be 'local' or 'remote'",
		},
		{
			name: "remote backend without endpoint",
			mutate: func(c *Config) {
				c.IdentityBackend = "remote"
				c.CapsuleEnv = ""
			},
			wantErr: true,
			errMsg:  "CAPSULE_BASE_URL or CAPSULE_ENV",
		},
		{
			name:    "zero timeout",
			mutate:  func(c *Config) { c.ExternalCallTimeout = 0 },
			wantErr: true,
			errMsg:  "EXTERNAL_CALL_TIMEOUT",
		},
		{
			name:    "zero chain id",
			mutate:  func(c *Config) { c.EVMChainID = 0 },
			wantErr: true,
			errMsg:  "EVM_CHAIN_ID",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidate_DoesNotRequireRouteCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.CapsuleAPIKey = ""
	cfg.AlchemyAPIKey = ""
	require.NoError(t, cfg.Validate())
}

func TestRequireIdentityService(t *testing.T) {
	cfg := validConfig()
	err := cfg.RequireIdentityService()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CAPSULE_API_KEY")

	cfg.CapsuleAPIKey = "key"
	assert.NoError(t, cfg.RequireIdentityService())
}

func TestRequireBundler(t *testing.T) {
	cfg := validConfig()

	err := cfg.RequireBundler()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ALCHEMY_API_KEY")
	assert.Contains(t, err.Error(), "ALCHEMY_GAS_POLICY_ID")

	cfg.AlchemyAPIKey = "alchemy"
	err = cfg.RequireBundler()
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "ALCHEMY_API_KEY,")
	assert.Contains(t, err.Error(), "ALCHEMY_GAS_POLICY_ID")

	cfg.AlchemyGasPolicyID = "policy"
	assert.NoError(t, cfg.RequireBundler())
}

func TestBundlerURL(t *testing.T) {
	cfg := validConfig()
	cfg.AlchemyAPIKey = "abc"
	cfg.AlchemyRPCURL = "https://eth-sepolia.g.alchemy.com/v2/%s"
	assert.Equal(t, "https://eth-sepolia.g.alchemy.com/v2/abc", cfg.BundlerURL())

	cfg.AlchemyRPCURL = "http://localhost:4337"
	assert.Equal(t, "http://localhost:4337", cfg.BundlerURL())
}

func TestIdentityBaseURL(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "https://api.beta.usecapsule.com", cfg.IdentityBaseURL())

	cfg.CapsuleEnv = "prod"
	assert.Equal(t, "https://api.usecapsule.com", cfg.IdentityBaseURL())

	cfg.CapsuleBaseURL = "http://localhost:9000/"
	assert.Equal(t, "http://localhost:9000", cfg.IdentityBaseURL())
}

func TestLoad(t *testing.T) {
	t.Run("valid configuration from environment", func(t *testing.T) {
		t.Setenv("POSTGRES_DSN", "postgres://localhost:5432/test")
		t.Setenv("PORT", "9090")
		t.Setenv("EXTERNAL_CALL_TIMEOUT", "5s")
		t.Setenv("CAPSULE_API_KEY", "capsule")
		t.Setenv("COSMOS_PREFIX", "osmo")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "postgres://localhost:5432/test", cfg.PostgresDSN)
		assert.Equal(t, 9090, cfg.Port)
		assert.Equal(t, 5*time.Second, cfg.ExternalCallTimeout)
		assert.Equal(t, "capsule", cfg.CapsuleAPIKey)
		assert.Equal(t, "osmo", cfg.CosmosPrefix)
	})

	t.Run("default values", func(t *testing.T) {
		t.Setenv("POSTGRES_DSN", "postgres://localhost:5432/test")
		t.Setenv("PORT", "")
		t.Setenv("IDENTITY_BACKEND", "")
		t.Setenv("EXTERNAL_CALL_TIMEOUT", "")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 8080, cfg.Port)
		assert.Equal(t, "local", cfg.IdentityBackend)
		assert.Equal(t, "local", cfg.KMSProvider)
		assert.Equal(t, 15*time.Second, cfg.ExternalCallTimeout)
		assert.Equal(t, int64(11155111), cfg.EVMChainID)
	})

	t.Run("timeout in plain seconds", func(t *testing.T) {
		t.Setenv("POSTGRES_DSN", "postgres://localhost:5432/test")
		t.Setenv("EXTERNAL_CALL_TIMEOUT", "30")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 30*time.Second, cfg.ExternalCallTimeout)
	})

	t.Run("missing DSN fails", func(t *testing.T) {
		t.Setenv("POSTGRES_DSN", "")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid configuration")
	})
}
