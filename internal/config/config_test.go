package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_WithValidConfig(t *testing.T) {
	setEnv(t, "GATEWAY_SECRET", "test-gateway-secret")
	setEnv(t, "PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, DefaultEnv, cfg.Env)
	assert.Equal(t, int64(DefaultPrice), cfg.DefaultMonthlyPrice)
	assert.Equal(t, DefaultCurrency, cfg.Currency)
	assert.Equal(t, DefaultGatewayTimeout, cfg.GatewayTimeout)
}

func TestLoad_MissingGatewaySecret(t *testing.T) {
	setEnv(t, "GATEWAY_SECRET", "")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "GATEWAY_SECRET is required")
}

func TestLoad_OverriddenPrice(t *testing.T) {
	setEnv(t, "GATEWAY_SECRET", "test-gateway-secret")
	setEnv(t, "DEFAULT_MONTHLY_PRICE", "1250")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, int64(1250), cfg.DefaultMonthlyPrice)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name: "valid development config",
			config: Config{
				Env:                 "development",
				GatewaySecret:       "secret",
				DefaultMonthlyPrice: 499,
				GatewayTimeout:      10,
			},
		},
		{
			name: "missing gateway secret",
			config: Config{
				Env:                 "development",
				DefaultMonthlyPrice: 499,
				GatewayTimeout:      10,
			},
			wantErr: "GATEWAY_SECRET is required",
		},
		{
			name: "non-positive price",
			config: Config{
				Env:                 "development",
				GatewaySecret:       "secret",
				DefaultMonthlyPrice: 0,
				GatewayTimeout:      10,
			},
			wantErr: "DEFAULT_MONTHLY_PRICE must be positive",
		},
		{
			name: "non-positive gateway timeout",
			config: Config{
				Env:                 "development",
				GatewaySecret:       "secret",
				DefaultMonthlyPrice: 499,
			},
			wantErr: "GATEWAY_TIMEOUT_SECONDS must be positive",
		},
		{
			name: "production requires admin secret",
			config: Config{
				Env:                 "production",
				GatewaySecret:       "secret",
				DefaultMonthlyPrice: 499,
				GatewayTimeout:      10,
			},
			wantErr: "ADMIN_SECRET is required in production",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_EnvHelpers(t *testing.T) {
	cfg := Config{Env: "development"}
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	cfg.Env = "production"
	assert.True(t, cfg.IsProduction())
	assert.False(t, cfg.IsDevelopment())
}
