package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/pingsantohq/wanwatch/internal/resolver"
)

func newResolveCmd(load loadFunc) *cobra.Command {
	var timeout time.Duration
	c := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve the WAN address once and classify it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			r, err := cfg.Roster()
			if err != nil {
				return err
			}
			res, err := resolver.New(
				resolver.Config{Providers: cfg.ProviderURLs(), Timeout: cfg.Resolver.Timeout},
				resolver.Dependencies{
					HTTPClient: &http.Client{},
					Backoff:    resolver.NewLimiterBackoff(cfg.Resolver.MaxAttemptsPerSec),
				},
			)
			if err != nil {
				return fmt.Errorf("init resolver: %w", err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			addr, err := res.Resolve(ctx)
			if err != nil {
				return fmt.Errorf("resolve: %w", err)
			}
			cls := r.Classify(addr.IP)
			cmd.Printf("provider: %s\n", addr.Provider)
			cmd.Printf("address:  %s\n", addr.IP)
			cmd.Printf("kind:     %s\n", cls.Kind)
			cmd.Printf("label:    %s\n", cls.Label)
			return nil
		},
	}
	c.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "give up when no provider answers within this time")
	return c
}
