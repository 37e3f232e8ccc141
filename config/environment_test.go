package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAppEnvironmentAliases(t *testing.T) {
	cases := map[string]string{
		"":            EnvDevelopment,
		"dev":         EnvDevelopment,
		"prod":        EnvProduction,
		"stage":       EnvStaging,
		" Production": EnvProduction,
	}
	for raw, want := range cases {
		t.Setenv("APP_ENV", raw)
		if got := AppEnvironment(); got != want {
			t.Errorf("AppEnvironment(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestResolvePath(t *testing.T) {
	dir := t.TempDir()
	defaultPath := filepath.Join(dir, "config.yml")
	envPath := filepath.Join(dir, "config.production.yml")
	if err := os.WriteFile(envPath, []byte("{}"), 0o644); err != nil {
		t.Fatalf("write env config: %v", err)
	}

	t.Setenv("APP_ENV", "prod")
	if got := ResolvePath(defaultPath, defaultPath); got != envPath {
		t.Errorf("default path should follow the environment: %s", got)
	}
	explicit := filepath.Join(dir, "custom.yml")
	if got := ResolvePath(explicit, defaultPath); got != explicit {
		t.Errorf("explicit path must win: %s", got)
	}

	t.Setenv("APP_ENV", "stage")
	if got := ResolvePath(defaultPath, defaultPath); got != defaultPath {
		t.Errorf("missing env file should keep the default: %s", got)
	}
}

func TestRecorderRequiresS3InProduction(t *testing.T) {
	cfg := &Config{
		Upbitflow: UpbitflowConfig{Name: "TestApp", Version: "1.0"},
		Exchange:  ExchangeConfig{Markets: []string{"BTC/KRW"}},
		Watch:     WatchConfig{TradesLimit: 1000, OrdersLimit: 1000, OrderbookDepth: 15},
		Recorder:  RecorderConfig{Enabled: true, FlushInterval: time.Minute, BatchSize: 100},
	}

	t.Setenv("APP_ENV", "production")
	if err := validateConfig(cfg); err == nil {
		t.Fatalf("expected error for recorder without S3 in production")
	}

	t.Setenv("APP_ENV", "development")
	if err := validateConfig(cfg); err != nil {
		t.Fatalf("development should allow a local-only recorder: %v", err)
	}
}
