package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pingsantohq/wanwatch/internal/config"
	"github.com/pingsantohq/wanwatch/internal/console"
	"github.com/pingsantohq/wanwatch/internal/diag"
	"github.com/pingsantohq/wanwatch/internal/health"
	"github.com/pingsantohq/wanwatch/internal/logging"
	"github.com/pingsantohq/wanwatch/internal/metrics"
	"github.com/pingsantohq/wanwatch/internal/notify"
	"github.com/pingsantohq/wanwatch/internal/remediation"
	"github.com/pingsantohq/wanwatch/internal/resolver"
	"github.com/pingsantohq/wanwatch/internal/scheduler"
	"github.com/pingsantohq/wanwatch/internal/server"
	"github.com/pingsantohq/wanwatch/internal/version"
)

func newRunCmd(load loadFunc) *cobra.Command {
	var headless bool
	c := &cobra.Command{
		Use:   "run",
		Short: "Monitor the WAN address until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			stdout := io.Discard
			renderer := console.Renderer(console.NewANSI(cmd.OutOrStdout()))
			if headless {
				stdout = cmd.OutOrStdout()
				renderer = console.Discard
			}
			return run(cmd.Context(), cfg, stdout, renderer)
		},
	}
	c.Flags().BoolVar(&headless, "headless", false, "log to stdout instead of drawing the status view")
	return c
}

type monitor struct {
	logger    *log.Logger
	scheduler *scheduler.Scheduler
	status    *server.Server
}

func newMonitor(cfg config.Config, stdout io.Writer, renderer console.Renderer, httpClient *http.Client) (*monitor, error) {
	logFile := ""
	if cfg.Logging.Enabled {
		logFile = cfg.Logging.File
	}
	logger, lastLine := logging.New(logging.Options{Stdout: stdout, File: logFile})

	r, err := cfg.Roster()
	if err != nil {
		return nil, err
	}
	store := metrics.NewStore()
	checker := health.NewChecker(store, cfg.Interval())

	res, err := resolver.New(
		resolver.Config{Providers: cfg.ProviderURLs(), Timeout: cfg.Resolver.Timeout},
		resolver.Dependencies{
			HTTPClient: httpClient,
			Logger:     logger,
			Backoff:    resolver.NewLimiterBackoff(cfg.Resolver.MaxAttemptsPerSec),
			Metrics:    store,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("init resolver: %w", err)
	}

	notifier := notify.New(notify.Config{
		API: notify.APIConfig{
			URL:         cfg.API.URL,
			Key:         cfg.API.Key,
			FromPrefix:  cfg.API.HeaderFromPrefix,
			Timeout:     cfg.API.Timeout(),
			MaxAttempts: cfg.API.MaxAttempts,
		},
		Webhook: notify.WebhookConfig{
			URL:         cfg.Webhook.URL,
			Timeout:     cfg.Webhook.Timeout(),
			MaxAttempts: cfg.Webhook.MaxAttempts,
		},
	}, notify.Dependencies{HTTPClient: httpClient, Logger: logger, Metrics: store})

	var outlet remediation.Outlet
	if cfg.Outlet.URL != "" {
		outlet = &remediation.HTTPOutlet{
			BaseURL:    cfg.Outlet.URL,
			Username:   cfg.Outlet.Username,
			Password:   cfg.Outlet.Password,
			HTTPClient: httpClient,
		}
	}
	ctrl := remediation.New(remediation.Config{
		Grace:       cfg.Grace(),
		MaxAttempts: cfg.MaxResetAttempts(),
		Enabled:     outlet != nil,
		TestMode:    cfg.TestMode,
	}, remediation.Dependencies{Outlet: outlet, Reporter: notifier, Logger: logger, Metrics: store})

	sched, err := scheduler.New(scheduler.Config{
		Location:       cfg.Location.Name,
		Interval:       cfg.Interval(),
		PrimaryGateway: cfg.Statics.PrimaryGateway,
		Version:        version.Release,
		TestMode:       cfg.TestMode,
	}, scheduler.Dependencies{
		Roster:      r,
		Resolver:    res,
		Notifier:    notifier,
		Remediation: ctrl,
		Logger:      logger,
		LastLog:     lastLine.String,
	},
		scheduler.WithRenderer(renderer),
		scheduler.WithCapturer(diag.NewCapturer(diag.DefaultDir, diag.Dependencies{Logger: logger})),
		scheduler.WithMetrics(store),
		scheduler.WithObserver(checker),
	)
	if err != nil {
		return nil, err
	}

	m := &monitor{logger: logger, scheduler: sched}
	if cfg.Status.Addr != "" {
		m.status = server.New(server.Config{Addr: cfg.Status.Addr}, server.Dependencies{
			Logger:  logger,
			Metrics: store.Handler(),
			Health:  checker,
			Status:  sched,
		})
	}
	return m, nil
}

func run(ctx context.Context, cfg config.Config, stdout io.Writer, renderer console.Renderer) error {
	m, err := newMonitor(cfg, stdout, renderer, &http.Client{Timeout: 30 * time.Second})
	if err != nil {
		return err
	}
	m.logger.Printf("wanwatch %s starting (location=%s, interval=%s, test_mode=%t)", version.Release, cfg.Location.Name, cfg.Interval(), cfg.TestMode)

	grp, groupCtx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		if err := m.scheduler.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if m.status != nil {
		grp.Go(func() error {
			return m.status.Serve(groupCtx)
		})
	}

	if err := grp.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	m.logger.Printf("wanwatch stopped")
	return nil
}
