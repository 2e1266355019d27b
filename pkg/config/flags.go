package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag. Commands reference
// flags by registry key, so a flag shared by "serve" and "replay" keeps one
// name, shorthand and description.
type Flag struct {
	// Name is the long flag name (e.g. "upstream").
	Name string

	// Shorthand is the one-letter short flag (e.g. "u"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "proxy.upstream").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of registry keys to Flag definitions.
type FlagSet map[string]Flag

// Flag registry keys.
const (
	FlagListen    = "listen"
	FlagUpstream  = "upstream"
	FlagFamily    = "family"
	FlagWorkers   = "workers"
	FlagUsage     = "include-usage"
	FlagPublisher = "publisher"
	FlagBrokers   = "brokers"
	FlagTopic     = "topic"
	FlagLogJSON   = "log-json"
	FlagLogFile   = "log-file"
	FlagMetrics   = "metrics"
)

// Flags is the registry of every flag chatwire commands expose.
var Flags = FlagSet{
	FlagListen:    {Name: "listen", Shorthand: "l", ViperKey: "proxy.listen", Description: "Address for the proxy to listen on"},
	FlagUpstream:  {Name: "upstream", Shorthand: "u", ViperKey: "proxy.upstream", Description: "Upstream chat-completion provider URL"},
	FlagFamily:    {Name: "family", Shorthand: "f", ViperKey: "proxy.family", Description: "Transformer family (auto, openai, qwen, ollama)"},
	FlagWorkers:   {Name: "workers", ViperKey: "proxy.workers", Description: "Number of completion publishing workers"},
	FlagUsage:     {Name: "include-usage", ViperKey: "proxy.include_usage", Description: "Ask OpenAI-compatible upstreams to stream token usage"},
	FlagPublisher: {Name: "publisher", ViperKey: "eventstream.provider", Description: "Completion event publisher (none, kafka)"},
	FlagBrokers:   {Name: "brokers", ViperKey: "eventstream.brokers", Description: "Comma separated Kafka brokers"},
	FlagTopic:     {Name: "topic", ViperKey: "eventstream.topic", Description: "Kafka topic for completion events"},
	FlagLogJSON:   {Name: "log-json", ViperKey: "log.json", Description: "Write logs as JSON"},
	FlagMetrics:   {Name: "metrics", ViperKey: "metrics.exporter", Description: "OpenTelemetry metrics exporter (none, stdout)"},
	FlagLogFile:   {Name: "log-file", ViperKey: "log.file", Description: "Also write JSON logs to this file"},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddUintFlag registers a uint flag on cmd from the given FlagSet.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *uint) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultViper().GetUint(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().UintVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().UintVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddBoolFlag registers a bool flag on cmd from the given FlagSet.
func AddBoolFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *bool) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultViper().GetBool(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().BoolVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().BoolVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

func defaultString(viperKey string) string {
	return defaultViper().GetString(viperKey)
}

// defaultViper is a viper holding only NewDefaultConfig values.
func defaultViper() *viper.Viper {
	v := viper.New()
	setViperDefaults(v)
	return v
}
