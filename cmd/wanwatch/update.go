package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pingsantohq/wanwatch/internal/logging"
	"github.com/pingsantohq/wanwatch/internal/upgrade"
	"github.com/pingsantohq/wanwatch/internal/upgrade/verify"
	"github.com/pingsantohq/wanwatch/internal/version"
)

func newUpdateCmd(load loadFunc, configPath *string) *cobra.Command {
	var (
		checkOnly bool
		apiBase   string
	)
	c := &cobra.Command{
		Use:   "update",
		Short: "Check GitHub for a newer release and install it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logFile := ""
			if cfg.Logging.Enabled {
				logFile = cfg.Logging.File
			}
			logger, _ := logging.New(logging.Options{Stdout: cmd.ErrOrStderr(), File: logFile})

			dir := filepath.Dir(*configPath)
			u := &upgrade.GitHubUpdater{
				Owner:      cfg.Update.Owner,
				Repo:       cfg.Update.Repo,
				Current:    version.Release,
				StagingDir: cfg.Update.StagingDir,
				APIBase:    apiBase,
				Logger:     logger,
				Installer: &upgrade.ZipInstaller{
					Dir:        dir,
					ConfigFile: *configPath,
					Logger:     logger,
				},
			}
			if u.StagingDir == "" {
				u.StagingDir = filepath.Join(dir, "updates")
			}

			rel, err := u.CheckForUpdate(cmd.Context())
			if err != nil {
				return err
			}
			if rel == nil {
				cmd.Println("No update found!")
				return nil
			}
			cmd.Printf("Update found: %s (running %s)\n", rel.Tag, version.Release)
			if checkOnly {
				return nil
			}

			key, err := verify.LoadPublicKey(cfg.Update.PublicKey, dir)
			if err != nil {
				return fmt.Errorf("update.public_key: %w", err)
			}
			verifier, err := verify.NewMinisignVerifier(key)
			if err != nil {
				return fmt.Errorf("update.public_key: %w", err)
			}
			u.Verifier = verifier
			if err := u.ApplyUpdate(cmd.Context(), *rel); err != nil {
				return err
			}
			cmd.Println("Successfully Updated!")
			return nil
		},
	}
	c.Flags().BoolVar(&checkOnly, "check", false, "only report whether an update is available")
	c.Flags().StringVar(&apiBase, "api", "", "GitHub API base URL")
	_ = c.Flags().MarkHidden("api")
	return c
}
