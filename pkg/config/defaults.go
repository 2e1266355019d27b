package config

const (
	defaultProxyListen = ":8080"
	defaultUpstream    = "https://api.openai.com"
	defaultFamily      = "auto"
	defaultWorkers     = 3

	defaultEventStreamProvider = "none"
	defaultEventStreamTopic    = "chatwire.completions"
	defaultEventStreamClientID = "chatwire"

	defaultMetricsExporter = "none"
	defaultMetricsInterval = "60s"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Proxy: ProxyConfig{
			Listen:   defaultProxyListen,
			Upstream: defaultUpstream,
			Family:   defaultFamily,
			Workers:  defaultWorkers,
		},
		EventStream: EventStreamConfig{
			Provider: defaultEventStreamProvider,
			Topic:    defaultEventStreamTopic,
			ClientID: defaultEventStreamClientID,
		},
		Metrics: MetricsConfig{
			Exporter: defaultMetricsExporter,
			Interval: defaultMetricsInterval,
		},
	}
}
