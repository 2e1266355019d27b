// Package servecmder provides the serve command that runs the normalizing proxy.
package servecmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/papercomputeco/chatwire/pkg/cliui"
	"github.com/papercomputeco/chatwire/pkg/config"
	"github.com/papercomputeco/chatwire/pkg/eventstream"
	eventstreamutils "github.com/papercomputeco/chatwire/pkg/eventstream/utils"
	"github.com/papercomputeco/chatwire/pkg/logger"
	"github.com/papercomputeco/chatwire/pkg/metrics"
	"github.com/papercomputeco/chatwire/proxy"
)

type serveCommander struct {
	// Flag targets. Effective values come from viper, which layers them
	// over env and config.toml.
	listen    string
	upstream  string
	family    string
	workers   uint
	usage     bool
	metrics   string
	publisher string
	brokers   string
	topic     string
	logJSON   bool
	logFile   string

	cfg    *config.Config
	debug  bool
	logger *slog.Logger
}

const serveLongDesc string = `Run the normalizing proxy.

Every request is forwarded to the upstream. Streaming chat completions
("stream": true, or any Ollama /api/chat request) come back as chatwire
event-stream frames instead of the upstream's chunks. Each finished stream
is published as a chatwire.completion.finished event when a publisher is
configured.

The transformer family is taken from --family, or detected per request when
it is "auto". Clients may override it with the X-Chatwire-Family header.

Examples:
  chatwire serve --upstream https://api.openai.com
  chatwire serve -u http://localhost:11434 -f ollama
  chatwire serve --publisher kafka --brokers localhost:9092`

const serveShortDesc string = "Run the normalizing proxy"

// serveFlags are the registry keys serve binds to viper.
var serveFlags = []string{
	config.FlagListen,
	config.FlagUpstream,
	config.FlagFamily,
	config.FlagWorkers,
	config.FlagUsage,
	config.FlagMetrics,
	config.FlagPublisher,
	config.FlagBrokers,
	config.FlagTopic,
	config.FlagLogJSON,
	config.FlagLogFile,
}

func NewServeCmd() *cobra.Command {
	return newServeCmd(&serveCommander{})
}

func newServeCmd(cmder *serveCommander) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, serveFlags)

			cmder.cfg = config.FromViper(v)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagListen, &cmder.listen)
	config.AddStringFlag(cmd, config.Flags, config.FlagUpstream, &cmder.upstream)
	config.AddStringFlag(cmd, config.Flags, config.FlagFamily, &cmder.family)
	config.AddUintFlag(cmd, config.Flags, config.FlagWorkers, &cmder.workers)
	config.AddBoolFlag(cmd, config.Flags, config.FlagUsage, &cmder.usage)
	config.AddStringFlag(cmd, config.Flags, config.FlagMetrics, &cmder.metrics)
	config.AddStringFlag(cmd, config.Flags, config.FlagPublisher, &cmder.publisher)
	config.AddStringFlag(cmd, config.Flags, config.FlagBrokers, &cmder.brokers)
	config.AddStringFlag(cmd, config.Flags, config.FlagTopic, &cmder.topic)
	config.AddBoolFlag(cmd, config.Flags, config.FlagLogJSON, &cmder.logJSON)
	config.AddStringFlag(cmd, config.Flags, config.FlagLogFile, &cmder.logFile)

	return cmd
}

func (c *serveCommander) run(ctx context.Context) error {
	interactive := term.IsTerminal(int(os.Stderr.Fd()))

	defer c.setupLogger(os.Stderr, interactive)()

	publisher, err := c.newPublisher(interactive)
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			c.logger.Warn("closing publisher", "error", err)
		}
	}()

	mp, err := metrics.NewProvider(metrics.Config{
		Exporter: c.cfg.Metrics.Exporter,
		Interval: c.cfg.Metrics.IntervalDuration(),
		Writer:   os.Stdout,
	})
	if err != nil {
		return fmt.Errorf("metrics.exporter: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mp.Shutdown(shutdownCtx); err != nil {
			c.logger.Warn("flushing metrics", "error", err)
		}
	}()

	p, err := proxy.New(proxy.Config{
		ListenAddr:   c.cfg.Proxy.Listen,
		UpstreamURL:  c.cfg.Proxy.Upstream,
		Family:       c.cfg.Proxy.Family,
		NumWorkers:   c.cfg.Proxy.Workers,
		IncludeUsage: c.cfg.Proxy.IncludeUsage,
		Metrics:      mp.Recorder(),
	}, publisher, c.logger)
	if err != nil {
		return fmt.Errorf("creating proxy: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errC := make(chan error, 1)
	go func() {
		errC <- p.Run()
	}()

	select {
	case err := <-errC:
		_ = p.Close()
		return fmt.Errorf("proxy server: %w", err)
	case <-ctx.Done():
		c.logger.Info("shutting down proxy", "cause", context.Cause(ctx))
	}

	if err := p.Close(); err != nil {
		return fmt.Errorf("shutting down proxy: %w", err)
	}
	return nil
}

// Log file rotation.
const (
	logMaxSizeMB  = 50
	logMaxBackups = 3
	logMaxAgeDays = 28
)

// setupLogger builds the console logger and, when log.file is set, fans it
// out to a rotated JSON log file as well. The returned func closes the file.
func (c *serveCommander) setupLogger(console io.Writer, interactive bool) func() {
	debug := c.debug || c.cfg.Log.Debug
	c.logger = logger.New(
		logger.WithDebug(debug),
		logger.WithSource(debug),
		logger.WithJSON(c.cfg.Log.JSON),
		logger.WithPretty(interactive && !c.cfg.Log.JSON),
		logger.WithWriter(console),
	)

	if c.cfg.Log.File == "" {
		return func() {}
	}

	// lumberjack opens the file on first write and rotates it in place.
	file := &lumberjack.Logger{
		Filename:   c.cfg.Log.File,
		MaxSize:    logMaxSizeMB,
		MaxBackups: logMaxBackups,
		MaxAge:     logMaxAgeDays,
		Compress:   true,
	}

	c.logger = logger.Multi(c.logger, logger.New(
		logger.WithDebug(debug),
		logger.WithJSON(true),
		logger.WithWriter(file),
	))
	return func() { _ = file.Close() }
}

func (c *serveCommander) newPublisher(interactive bool) (eventstream.Publisher, error) {
	es := c.cfg.EventStream
	cfg := eventstreamutils.PublisherConfig{
		Provider: es.Provider,
		Brokers:  es.BrokerList(),
		Topic:    es.Topic,
		ClientID: es.ClientID,
	}

	var publisher eventstream.Publisher
	build := func() error {
		var err error
		publisher, err = eventstreamutils.NewPublisher(cfg, c.logger)
		return err
	}

	var err error
	if interactive && es.Provider != eventstreamutils.ProviderNone {
		err = cliui.Step(os.Stderr, fmt.Sprintf("Configuring %s publisher", es.Provider), build)
	} else {
		err = build()
	}
	if err != nil {
		if errors.Is(err, eventstream.ErrUnknownProvider) {
			return nil, fmt.Errorf("eventstream.provider: %w", err)
		}
		return nil, fmt.Errorf("creating publisher: %w", err)
	}

	c.logger.Info("completion publisher ready", "provider", es.Provider, "topic", es.Topic)
	return publisher, nil
}
