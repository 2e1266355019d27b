package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/chatwire/pkg/dotdir"
)

// EnvPrefix prefixes every environment variable viper reads.
const EnvPrefix = "CHATWIRE"

// InitViper creates and returns a configured *viper.Viper.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (CHATWIRE_PROXY_LISTEN, CHATWIRE_PROXY_FAMILY, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	setViperDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")

	target, err := dotdir.NewManager().Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
		if err := v.ReadInConfig(); err != nil {
			// A missing file is fine, defaults apply.
			if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// FromViper resolves the effective Config from v.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Version: v.GetInt("version"),
		Proxy: ProxyConfig{
			Listen:   v.GetString("proxy.listen"),
			Upstream: v.GetString("proxy.upstream"),
			Family:   strings.ToLower(v.GetString("proxy.family")),
			Workers:  v.GetUint("proxy.workers"),

			IncludeUsage: v.GetBool("proxy.include_usage"),
		},
		EventStream: EventStreamConfig{
			Provider: v.GetString("eventstream.provider"),
			Brokers:  v.GetString("eventstream.brokers"),
			Topic:    v.GetString("eventstream.topic"),
			ClientID: v.GetString("eventstream.client_id"),
		},
		Metrics: MetricsConfig{
			Exporter: strings.ToLower(v.GetString("metrics.exporter")),
			Interval: v.GetString("metrics.interval"),
		},
		Log: LogConfig{
			JSON:  v.GetBool("log.json"),
			Debug: v.GetBool("log.debug"),
			File:  v.GetString("log.file"),
		},
	}
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	v.SetDefault("proxy.listen", d.Proxy.Listen)
	v.SetDefault("proxy.upstream", d.Proxy.Upstream)
	v.SetDefault("proxy.family", d.Proxy.Family)
	v.SetDefault("proxy.workers", d.Proxy.Workers)
	v.SetDefault("proxy.include_usage", d.Proxy.IncludeUsage)

	v.SetDefault("eventstream.provider", d.EventStream.Provider)
	v.SetDefault("eventstream.brokers", d.EventStream.Brokers)
	v.SetDefault("eventstream.topic", d.EventStream.Topic)
	v.SetDefault("eventstream.client_id", d.EventStream.ClientID)

	v.SetDefault("metrics.exporter", d.Metrics.Exporter)
	v.SetDefault("metrics.interval", d.Metrics.Interval)

	v.SetDefault("log.json", d.Log.JSON)
	v.SetDefault("log.debug", d.Log.Debug)
	v.SetDefault("log.file", d.Log.File)
}
