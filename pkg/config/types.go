package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/papercomputeco/chatwire/pkg/transformer"
)

// Config represents the persistent chatwire configuration stored as
// config.toml in the .chatwire/ directory.
type Config struct {
	Version     int               `toml:"version"`
	Proxy       ProxyConfig       `toml:"proxy"`
	EventStream EventStreamConfig `toml:"eventstream"`
	Metrics     MetricsConfig     `toml:"metrics"`
	Log         LogConfig         `toml:"log"`
}

// ProxyConfig holds settings for the normalizing proxy.
type ProxyConfig struct {
	Listen   string `toml:"listen,omitempty"`
	Upstream string `toml:"upstream,omitempty"`

	// Family is the transformer family: openai, qwen, ollama or auto.
	Family string `toml:"family,omitempty"`

	Workers uint `toml:"workers,omitempty"`

	// IncludeUsage sets stream_options.include_usage on OpenAI-compatible
	// streaming requests so upstreams report token usage.
	IncludeUsage bool `toml:"include_usage,omitempty"`
}

// EventStreamConfig selects where finished completions are published.
type EventStreamConfig struct {
	Provider string `toml:"provider,omitempty"`

	// Brokers is a comma separated list of host:port pairs.
	Brokers  string `toml:"brokers,omitempty"`
	Topic    string `toml:"topic,omitempty"`
	ClientID string `toml:"client_id,omitempty"`
}

// BrokerList splits Brokers, dropping empty entries.
func (e EventStreamConfig) BrokerList() []string {
	var brokers []string
	for b := range strings.SplitSeq(e.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// MetricsConfig selects the OpenTelemetry metrics exporter.
type MetricsConfig struct {
	// Exporter is "none" or "stdout".
	Exporter string `toml:"exporter,omitempty"`

	// Interval between exports, as a Go duration ("30s").
	Interval string `toml:"interval,omitempty"`
}

// IntervalDuration parses Interval. Empty or invalid values yield zero.
func (m MetricsConfig) IntervalDuration() time.Duration {
	d, _ := time.ParseDuration(m.Interval)
	return d
}

// LogConfig holds logging settings.
type LogConfig struct {
	JSON  bool `toml:"json,omitempty"`
	Debug bool `toml:"debug,omitempty"`

	// File additionally writes JSON logs to this path, next to the console.
	File string `toml:"file,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func boolKey(key string, field func(c *Config) *bool) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", key, err)
			}
			*field(c) = b
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"proxy.listen": {
		get: func(c *Config) string { return c.Proxy.Listen },
		set: func(c *Config, v string) error { c.Proxy.Listen = v; return nil },
	},
	"proxy.upstream": {
		get: func(c *Config) string { return c.Proxy.Upstream },
		set: func(c *Config, v string) error { c.Proxy.Upstream = v; return nil },
	},
	"proxy.family": {
		get: func(c *Config) string { return c.Proxy.Family },
		set: func(c *Config, v string) error {
			v = strings.ToLower(v)
			if !transformer.IsValidFamily(v) {
				return fmt.Errorf("invalid value for proxy.family: %q (supported: auto, %s)", v, strings.Join(transformer.SupportedFamilies(), ", "))
			}
			c.Proxy.Family = v
			return nil
		},
	},
	"proxy.workers": {
		get: func(c *Config) string {
			if c.Proxy.Workers == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Proxy.Workers), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for proxy.workers: %w", err)
			}
			c.Proxy.Workers = uint(n)
			return nil
		},
	},
	"proxy.include_usage": boolKey("proxy.include_usage", func(c *Config) *bool { return &c.Proxy.IncludeUsage }),
	"eventstream.provider": {
		get: func(c *Config) string { return c.EventStream.Provider },
		set: func(c *Config, v string) error { c.EventStream.Provider = v; return nil },
	},
	"eventstream.brokers": {
		get: func(c *Config) string { return c.EventStream.Brokers },
		set: func(c *Config, v string) error { c.EventStream.Brokers = v; return nil },
	},
	"eventstream.topic": {
		get: func(c *Config) string { return c.EventStream.Topic },
		set: func(c *Config, v string) error { c.EventStream.Topic = v; return nil },
	},
	"eventstream.client_id": {
		get: func(c *Config) string { return c.EventStream.ClientID },
		set: func(c *Config, v string) error { c.EventStream.ClientID = v; return nil },
	},
	"metrics.exporter": {
		get: func(c *Config) string { return c.Metrics.Exporter },
		set: func(c *Config, v string) error {
			v = strings.ToLower(v)
			if v != "none" && v != "stdout" {
				return fmt.Errorf("invalid value for metrics.exporter: %q (supported: none, stdout)", v)
			}
			c.Metrics.Exporter = v
			return nil
		},
	},
	"metrics.interval": {
		get: func(c *Config) string { return c.Metrics.Interval },
		set: func(c *Config, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid value for metrics.interval: %w", err)
			}
			if d <= 0 {
				return fmt.Errorf("invalid value for metrics.interval: %q must be positive", v)
			}
			c.Metrics.Interval = v
			return nil
		},
	},
	"log.json":  boolKey("log.json", func(c *Config) *bool { return &c.Log.JSON }),
	"log.debug": boolKey("log.debug", func(c *Config) *bool { return &c.Log.Debug }),
	"log.file": {
		get: func(c *Config) string { return c.Log.File },
		set: func(c *Config, v string) error { c.Log.File = v; return nil },
	},
}
