package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/chatwire/pkg/dotdir"
)

const (
	configFile = "config.toml"

	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0
)

// orderedKeys lists config keys in TOML section order.
var orderedKeys = []string{
	"proxy.listen",
	"proxy.upstream",
	"proxy.family",
	"proxy.workers",
	"proxy.include_usage",
	"eventstream.provider",
	"eventstream.brokers",
	"eventstream.topic",
	"eventstream.client_id",
	"metrics.exporter",
	"metrics.interval",
	"log.json",
	"log.debug",
	"log.file",
}

// Configer loads and saves config.toml in a resolved .chatwire/ directory.
type Configer struct {
	ddm        *dotdir.Manager
	override   string
	targetPath string
}

func NewConfiger(override string) (*Configer, error) {
	cfger := &Configer{
		ddm:      dotdir.NewManager(),
		override: override,
	}

	target, err := cfger.ddm.Target(override)
	if err != nil {
		return nil, err
	}

	// Without a resolved directory LoadConfig returns defaults and
	// SaveConfig creates ~/.chatwire/ on first write.
	if target == "" {
		return cfger, nil
	}

	path := filepath.Join(target, configFile)
	if _, err := os.Stat(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfger.targetPath = path

	return cfger, nil
}

// ValidConfigKeys returns all supported configuration key names in TOML
// section order.
func ValidConfigKeys() []string {
	return append([]string(nil), orderedKeys...)
}

// IsValidConfigKey returns true if the given key is a supported configuration key.
func IsValidConfigKey(key string) bool {
	_, ok := configKeys[key]
	return ok
}

func (c *Configer) GetTarget() string {
	return c.targetPath
}

// LoadConfig loads config.toml from the target directory. A missing file
// yields NewDefaultConfig(); fields set in the file override the defaults.
func (c *Configer) LoadConfig() (*Config, error) {
	if c.targetPath == "" {
		return NewDefaultConfig(), nil
	}

	data, err := os.ReadFile(c.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg, err := ParseConfigTOML(data)
	if err != nil {
		return nil, err
	}

	applyDefaults(cfg)

	return cfg, nil
}

// applyDefaults fills zero-value fields in cfg from NewDefaultConfig().
// Booleans default to false and need no merging.
func applyDefaults(cfg *Config) {
	d := NewDefaultConfig()

	fill(&cfg.Version, d.Version)

	fill(&cfg.Proxy.Listen, d.Proxy.Listen)
	fill(&cfg.Proxy.Upstream, d.Proxy.Upstream)
	fill(&cfg.Proxy.Family, d.Proxy.Family)
	fill(&cfg.Proxy.Workers, d.Proxy.Workers)

	fill(&cfg.EventStream.Provider, d.EventStream.Provider)
	fill(&cfg.EventStream.Topic, d.EventStream.Topic)
	fill(&cfg.EventStream.ClientID, d.EventStream.ClientID)

	fill(&cfg.Metrics.Exporter, d.Metrics.Exporter)
	fill(&cfg.Metrics.Interval, d.Metrics.Interval)
}

// fill sets *field to def when it holds the zero value.
func fill[T comparable](field *T, def T) {
	var zero T
	if *field == zero {
		*field = def
	}
}

// SaveConfig persists the configuration to config.toml, creating the
// .chatwire/ directory if none was resolved.
func (c *Configer) SaveConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("cannot save nil config")
	}

	if c.targetPath == "" {
		dir, err := c.ddm.Ensure(c.override)
		if err != nil {
			return fmt.Errorf("resolving config dir: %w", err)
		}
		c.targetPath = filepath.Join(dir, configFile)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(c.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// SetConfigValue validates value for key and persists it.
func (c *Configer) SetConfigValue(key string, value string) error {
	info, cfg, err := c.lookup(key)
	if err != nil {
		return err
	}

	if err := info.set(cfg, value); err != nil {
		return err
	}
	return c.SaveConfig(cfg)
}

// GetConfigValue returns the effective value of key, defaults included.
func (c *Configer) GetConfigValue(key string) (string, error) {
	info, cfg, err := c.lookup(key)
	if err != nil {
		return "", err
	}
	return info.get(cfg), nil
}

func (c *Configer) lookup(key string) (configKeyInfo, *Config, error) {
	info, ok := configKeys[key]
	if !ok {
		return configKeyInfo{}, nil, fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return configKeyInfo{}, nil, err
	}
	return info, cfg, nil
}

// preset pins the proxy to a known upstream and its transformer family.
type preset struct {
	name     string
	upstream string
	family   string
}

var presets = []preset{
	{name: "openai", upstream: "https://api.openai.com", family: "openai"},
	{name: "qwen", upstream: "https://dashscope.aliyuncs.com/compatible-mode", family: "qwen"},
	{name: "ollama", upstream: "http://localhost:11434", family: "ollama"},
}

// PresetConfig returns the default Config pointed at the named upstream.
func PresetConfig(name string) (*Config, error) {
	name = strings.ToLower(name)
	for _, p := range presets {
		if p.name != name {
			continue
		}
		cfg := NewDefaultConfig()
		cfg.Proxy.Upstream = p.upstream
		cfg.Proxy.Family = p.family
		return cfg, nil
	}
	return nil, fmt.Errorf("unknown preset: %q (available: %s)", name, strings.Join(ValidPresetNames(), ", "))
}

// ValidPresetNames returns the recognized preset names.
func ValidPresetNames() []string {
	names := make([]string, len(presets))
	for i, p := range presets {
		names[i] = p.name
	}
	return names
}

// ParseConfigTOML parses raw TOML bytes into a Config.
// Returns an error if the version field is present and not equal to CurrentV.
func ParseConfigTOML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config TOML: %w", err)
	}

	if cfg.Version != 0 && cfg.Version != CurrentV {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentV)
	}

	return cfg, nil
}
