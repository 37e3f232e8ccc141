package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Upbitflow   UpbitflowConfig   `yaml:"upbitflow"`
	Exchange    ExchangeConfig    `yaml:"exchange"`
	Watch       WatchConfig       `yaml:"watch"`
	Stream      StreamConfig      `yaml:"stream"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Recorder    RecorderConfig    `yaml:"recorder"`
	Storage     StorageConfig     `yaml:"storage"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type UpbitflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type ExchangeConfig struct {
	PublicURL  string   `yaml:"public_url"`
	PrivateURL string   `yaml:"private_url"`
	Markets    []string `yaml:"markets"`
}

type WatchConfig struct {
	TradesLimit    int `yaml:"trades_limit"`
	OrdersLimit    int `yaml:"orders_limit"`
	OrderbookDepth int `yaml:"orderbook_depth"`
}

type StreamConfig struct {
	DialTimeout       time.Duration `yaml:"dial_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	PingInterval      time.Duration `yaml:"ping_interval"`
	ReconnectBaseWait time.Duration `yaml:"reconnect_base_wait"`
	ReconnectMaxWait  time.Duration `yaml:"reconnect_max_wait"`
}

type CredentialsConfig struct {
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

type RecorderConfig struct {
	Enabled       bool          `yaml:"enabled"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BatchSize     int           `yaml:"batch_size"`
	Compression   string        `yaml:"compression"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type MetricsConfig struct {
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
	Interval   time.Duration    `yaml:"interval"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
}

type LoggingConfig struct {
	Level  string                 `yaml:"level"`
	Format string                 `yaml:"format"`
	Output string                 `yaml:"output"`
	MaxAge int                    `yaml:"max_age"`
	Fields map[string]interface{} `yaml:"fields"`
}

const (
	defaultPublicURL  = "wss://api.upbit.com/websocket/v1"
	defaultPrivateURL = "wss://api.upbit.com/websocket/v1/private"
)

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Exchange: ExchangeConfig{
			PublicURL:  defaultPublicURL,
			PrivateURL: defaultPrivateURL,
		},
		Watch: WatchConfig{
			TradesLimit:    1000,
			OrdersLimit:    1000,
			OrderbookDepth: 15,
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override exchange credentials from environment variables if available
	if v := os.Getenv("UPBIT_ACCESS_KEY"); v != "" {
		config.Credentials.AccessKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("UPBIT_SECRET_KEY"); v != "" {
		config.Credentials.SecretKey = strings.TrimSpace(v)
	}

	// Override S3 settings from environment variables if available
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}

	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Upbitflow.Name == "" {
		return fmt.Errorf("upbitflow.name is required")
	}

	if cfg.Upbitflow.Version == "" {
		return fmt.Errorf("upbitflow.version is required")
	}

	if len(cfg.Exchange.Markets) == 0 {
		return fmt.Errorf("exchange.markets must list at least one market")
	}
	for _, m := range cfg.Exchange.Markets {
		if !strings.Contains(m, "/") {
			return fmt.Errorf("exchange.markets entry '%s' must be BASE/QUOTE", m)
		}
	}

	if cfg.Watch.TradesLimit <= 0 {
		return fmt.Errorf("watch.trades_limit must be greater than 0")
	}
	if cfg.Watch.OrdersLimit <= 0 {
		return fmt.Errorf("watch.orders_limit must be greater than 0")
	}
	if cfg.Watch.OrderbookDepth <= 0 {
		return fmt.Errorf("watch.orderbook_depth must be greater than 0")
	}

	if cfg.Recorder.Enabled {
		if cfg.Recorder.FlushInterval <= 0 {
			return fmt.Errorf("recorder.flush_interval must be greater than 0")
		}
		if cfg.Recorder.BatchSize <= 0 {
			return fmt.Errorf("recorder.batch_size must be greater than 0")
		}
		if env := AppEnvironment(); productionLike(env) && !cfg.Storage.S3.Enabled {
			return fmt.Errorf("recorder requires storage.s3 in the %s environment", env)
		}
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if cfg.Storage.S3.AccessKeyID == "" || cfg.Storage.S3.SecretAccessKey == "" {
			return fmt.Errorf("storage.s3.access_key_id and storage.s3.secret_access_key are required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
