// config.go
package main

import (
	"os"
	"strconv"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// validBedrockRegions lists AWS regions where Bedrock is available for the
// Claude model family this gateway targets.
var validBedrockRegions = map[string]bool{
	"us-east-1": true,
	"us-east-2": true,
	"us-west-2": true,
}

// ValidateBedrockRegion returns an error if region is non-empty and not a
// known Bedrock-supported region.
func ValidateBedrockRegion(region string) error {
	if region == "" {
		return nil
	}
	if !validBedrockRegions[region] {
		return NewGatewayError(ErrInvalidCredentials, "unsupported bedrock region "+region, 400)
	}
	return nil
}

// ElasticsearchConfig holds configuration for the Elasticsearch exporter.
type ElasticsearchConfig struct {
	Enabled  bool   `toml:"enabled"`
	URL      string `toml:"url"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	Index    string `toml:"index"`
}

// Config is the gateway's full runtime configuration. Fields are populated
// from an optional TOML file and then overridden by the small set of
// recognised environment variables.
type Config struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`

	LogLevel string `toml:"log_level"`

	// Environment names the deployment environment stamped on every
	// telemetry record's resource block.
	Environment string `toml:"environment"`

	BedrockRegion string `toml:"bedrock_region"`

	// BedrockEndpoint overrides the regional bedrock-runtime URL, for VPC
	// endpoints or local stand-ins. Empty means the regional default.
	BedrockEndpoint string `toml:"bedrock_endpoint"`

	Elasticsearch ElasticsearchConfig `toml:"elasticsearch"`

	// Operational knobs with conservative defaults -- not part of the
	// env-var table, TOML-only.
	MaxRequestBodyBytes int64 `toml:"max_request_body_bytes"`
	TelemetryQueueSize  int   `toml:"telemetry_queue_size"`
	TelemetryWorkers    int   `toml:"telemetry_workers"`

	NonStreamingDeadlineStr string `toml:"non_streaming_deadline"`
	SlowClientTimeoutStr    string `toml:"slow_client_timeout"`
	ExporterTimeoutStr      string `toml:"exporter_timeout"`

	NonStreamingDeadline time.Duration `toml:"-"`
	SlowClientTimeout    time.Duration `toml:"-"`
	ExporterTimeout      time.Duration `toml:"-"`
}

// DefaultConfig returns the gateway's baseline configuration before any
// TOML file or environment override is applied.
func DefaultConfig() Config {
	return Config{
		Port:        3000,
		Host:        "127.0.0.1",
		LogLevel:    "info",
		Environment: "production",

		Elasticsearch: ElasticsearchConfig{
			Index: "ai-gateway-metrics",
		},

		MaxRequestBodyBytes: 10 << 20, // 10 MiB
		TelemetryQueueSize:  4096,
		TelemetryWorkers:    4,

		NonStreamingDeadline: 60 * time.Second,
		SlowClientTimeout:    30 * time.Second,
		ExporterTimeout:      5 * time.Second,
	}
}

// LoadConfigFromTOML parses a TOML document on top of DefaultConfig.
func LoadConfigFromTOML(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	cfg.resolveDurations()
	return cfg, nil
}

// resolveDurations parses the string-typed duration fields TOML populated
// (go-toml/v2 has no native time.Duration support) back into the Duration
// fields the engine actually consults.
func (c *Config) resolveDurations() {
	if c.NonStreamingDeadlineStr != "" {
		if d, err := time.ParseDuration(c.NonStreamingDeadlineStr); err == nil {
			c.NonStreamingDeadline = d
		}
	}
	if c.SlowClientTimeoutStr != "" {
		if d, err := time.ParseDuration(c.SlowClientTimeoutStr); err == nil {
			c.SlowClientTimeout = d
		}
	}
	if c.ExporterTimeoutStr != "" {
		if d, err := time.ParseDuration(c.ExporterTimeoutStr); err == nil {
			c.ExporterTimeout = d
		}
	}
}

// LoadConfigFromEnv overrides cfg with the recognised environment variables.
// This is the gateway's primary configuration surface; the TOML file layer
// exists only for the operational knobs left otherwise unspecified.
func LoadConfigFromEnv(cfg Config) Config {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if host := os.Getenv("HOST"); host != "" {
		cfg.Host = host
	}
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		cfg.LogLevel = lvl
	} else if lvl := os.Getenv("RUST_LOG"); lvl != "" {
		cfg.LogLevel = lvl
	}

	if enabled := os.Getenv("ENABLE_ELASTICSEARCH"); enabled != "" {
		cfg.Elasticsearch.Enabled = enabled == "true" || enabled == "1"
	}
	if url := os.Getenv("ELASTICSEARCH_URL"); url != "" {
		cfg.Elasticsearch.URL = url
	}
	if user := os.Getenv("ELASTICSEARCH_USERNAME"); user != "" {
		cfg.Elasticsearch.Username = user
	}
	if pass := os.Getenv("ELASTICSEARCH_PASSWORD"); pass != "" {
		cfg.Elasticsearch.Password = pass
	}
	if idx := os.Getenv("ELASTICSEARCH_INDEX"); idx != "" {
		cfg.Elasticsearch.Index = idx
	}

	if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.BedrockRegion = region
	}

	return cfg
}

// LoadConfig loads the TOML file at configPath (or the default
// $HOME/.config/ai-gateway/config.toml, if present), then applies
// environment overrides.
func LoadConfig(configPath string) (Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			defaultPath := home + "/.config/ai-gateway/config.toml"
			if _, err := os.Stat(defaultPath); err == nil {
				configPath = defaultPath
			}
		}
	}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err == nil {
			cfg, err = LoadConfigFromTOML(data)
			if err != nil {
				return Config{}, err
			}
		}
	}

	cfg = LoadConfigFromEnv(cfg)
	return cfg, nil
}
