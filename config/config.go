package config

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Binance  BinanceConfig  `mapstructure:"binance"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Log      LogConfig      `mapstructure:"log"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type BinanceConfig struct {
	REST RESTConfig `mapstructure:"rest"`
	WS   WSConfig   `mapstructure:"ws"`
}

type RESTConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`

	// MaxRequestsPerSecond bounds calls to the REST API (rolling one-second window).
	MaxRequestsPerSecond int `mapstructure:"max_requests_per_second"`
}

type WSConfig struct {
	// URL is the stream host, e.g. "wss://fstream.binance.com".
	// Multiplexed connections use <URL>/stream?streams=..., single-stream
	// fallback connections use <URL>/ws/<stream>.
	URL string `mapstructure:"url"`

	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongTimeout    time.Duration `mapstructure:"pong_timeout"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`

	// MaxReconnectAttempts is the per-connection ceiling before the
	// connection is abandoned. Other connections are unaffected.
	MaxReconnectAttempts int `mapstructure:"max_reconnect_attempts"`

	// MaxBatchSize caps streams per multiplexed connection (URL length and
	// per-connection stream limits on the venue side).
	MaxBatchSize int `mapstructure:"max_batch_size"`
}

// MonitorConfig holds the detection parameters consumed by the pipeline.
type MonitorConfig struct {
	MinVolumeThreshold    float64       `mapstructure:"min_volume_threshold"` // USDT, per bucket
	SpikeRatioThreshold   float64       `mapstructure:"spike_ratio_threshold"`
	BaselineWindowMinutes int           `mapstructure:"baseline_window_minutes"`
	CooldownMinutes       int           `mapstructure:"cooldown_minutes"`
	PollInterval          time.Duration `mapstructure:"poll_interval"`
	BucketMinutes         int           `mapstructure:"bucket_minutes"`

	// Confirmations of the last Window poll observations must qualify before
	// a spike is reported (default 2 of 3). Observations arrive once per
	// poll, so these are tuned together with poll_interval.
	Confirmations int `mapstructure:"confirmations"`
	Window        int `mapstructure:"window"`

	MaxSymbols   int     `mapstructure:"max_symbols"`
	Min24hVolume float64 `mapstructure:"min_24h_volume"` // USDT
}

// LogConfig defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
}

// Load loads application configuration using Viper.
// It reads from config.yaml and overrides with environment variables.
func Load() *Config {
	v := viper.New()

	v.SetConfigName("config") // config.yaml
	v.SetConfigType("yaml")

	ex, _ := os.Executable()
	if strings.Contains(ex, "go-build") {
		pwd, _ := os.Getwd()
		v.AddConfigPath(filepath.Join(pwd, "../../config"))
	} else {
		v.AddConfigPath(filepath.Join(filepath.Dir(ex), "../config"))
	}

	setDefaults(v)

	// Support environment variables with dot notation (e.g., BINANCE_WS_URL)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("failed to read config: %v", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		log.Fatalf("failed to unmarshal config: %v", err)
	}

	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("binance.rest.base_url", "https://fapi.binance.com")
	v.SetDefault("binance.rest.timeout", "10s")
	v.SetDefault("binance.rest.max_requests_per_second", 10)

	v.SetDefault("binance.ws.url", "wss://fstream.binance.com")
	v.SetDefault("binance.ws.ping_interval", "30s")
	v.SetDefault("binance.ws.pong_timeout", "90s")
	v.SetDefault("binance.ws.reconnect_delay", "5s")
	v.SetDefault("binance.ws.max_reconnect_attempts", 10)
	v.SetDefault("binance.ws.max_batch_size", 20)

	v.SetDefault("monitor.min_volume_threshold", 1000000.0)
	v.SetDefault("monitor.spike_ratio_threshold", 2.0)
	v.SetDefault("monitor.baseline_window_minutes", 60)
	v.SetDefault("monitor.cooldown_minutes", 15)
	v.SetDefault("monitor.poll_interval", "5s")
	v.SetDefault("monitor.bucket_minutes", 5)
	v.SetDefault("monitor.confirmations", 2)
	v.SetDefault("monitor.window", 3)
	v.SetDefault("monitor.max_symbols", 200)
	v.SetDefault("monitor.min_24h_volume", 1000000.0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.environment", "dev")
}
