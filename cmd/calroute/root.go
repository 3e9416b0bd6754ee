package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var version = "dev"

type rootOptions struct {
	configPath   string
	logLevel     string
	logFormat    string
	userID       string
	serveMetrics string
}

type cli struct {
	opts    rootOptions
	app     *app
	metrics *http.Server
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	cmd := &cobra.Command{
		Use:   "calroute",
		Short: "Route natural-language calendar requests",
		Long: `calroute decides what a calendar request asks for (list, create, move,
find free time...) and resolves the details: times, attendees, conflicts
and free slots. Events live in a local SQLite database.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return c.teardown()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&c.opts.configPath, "config", "", "config file (default ./calroute.yaml)")
	flags.StringVar(&c.opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&c.opts.logFormat, "log-format", "", "log format: text or json")
	flags.StringVar(&c.opts.userID, "user", "", "user id for rate limiting and logs")
	flags.StringVar(&c.opts.serveMetrics, "serve-metrics", "", "expose Prometheus metrics on this address, e.g. :9090")

	cmd.AddCommand(
		newRouteCmd(c),
		newExtractCmd(c),
		newConflictsCmd(c),
		newFreeCmd(c),
		newMoveCmd(c),
		newCorrectCmd(c),
		newConfirmCmd(c),
		newEventsCmd(c),
	)
	return cmd
}

func (c *cli) setup(cmd *cobra.Command) error {
	cfg, err := LoadConfig(c.opts.configPath)
	if err != nil {
		return err
	}
	if c.opts.logLevel != "" {
		cfg.Log.Level = c.opts.logLevel
	}
	if c.opts.logFormat != "" {
		cfg.Log.Format = c.opts.logFormat
	}
	logger, err := cfg.Log.NewLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	p, err := cfg.Profile(version)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	a, err := newApp(cmd.Context(), cfg, p, reg, logger)
	if err != nil {
		return err
	}
	c.app = a

	if c.opts.serveMetrics != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		c.metrics = &http.Server{Addr: c.opts.serveMetrics, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := c.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "addr", c.opts.serveMetrics, "error", err)
			}
		}()
		logger.Info("serving metrics", "addr", c.opts.serveMetrics)
	}
	return nil
}

func (c *cli) teardown() error {
	if c.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.metrics.Shutdown(ctx)
	}
	if c.app == nil {
		return nil
	}
	return c.app.Close()
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().ExecuteContext(context.Background())
}

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
