// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vgmedical/casecheck/internal/config"
	"github.com/vgmedical/casecheck/internal/logging"
)

const serviceName = "casecheck"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type cli struct {
	envFile string
	cfg     *config.Config
}

func main() {
	c := &cli{}
	rootCmd := &cobra.Command{
		Use:           "casecheck",
		Short:         "Surgical case verification engine",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(c.envFile)
			if err != nil {
				return err
			}
			c.cfg = cfg
			logging.Init(serviceName, cfg.Env, cfg.LogLevel)
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "Path to the env file with settings")

	rootCmd.AddCommand(c.serveCmd())
	rootCmd.AddCommand(c.verifyCmd())
	rootCmd.AddCommand(c.suggestCmd())
	rootCmd.AddCommand(c.equivalenceCmd())
	rootCmd.AddCommand(c.migrateCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("command failed")
		stop()
		os.Exit(1)
	}
}
