package main

import (
	"fmt"
	"strings"

	"github.com/promptcraft/promptcraft/internal/app"
	"github.com/promptcraft/promptcraft/internal/config"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var cfgPath string
	rootCmd := &cobra.Command{
		Use:           "promptcraft",
		Short:         "Prompt generation API with tiered quotas and subscription billing",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (or env CONFIG_PATH)")

	loadConfig := func() (config.AppConfig, error) {
		appCfg, err := config.LoadFromEnv()
		if err != nil {
			return config.AppConfig{}, err
		}
		if strings.TrimSpace(cfgPath) != "" {
			appCfg.ConfigPath = config.ResolveConfigPath(cfgPath)
		}
		return appCfg, nil
	}

	rootCmd.AddCommand(
		newServeCmd(loadConfig),
		newMigrateCmd(loadConfig),
		newRolloverCmd(loadConfig),
	)
	return rootCmd
}

type configLoader func() (config.AppConfig, error)

func newServeCmd(load configLoader) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if errValidate := validatePort(port); errValidate != nil {
				return errValidate
			}
			appCfg, err := load()
			if err != nil {
				return err
			}
			return app.RunServer(cmd.Context(), appCfg, port)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "server port (overrides config and env PORT)")
	return cmd
}

func newMigrateCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and seed default tiers, models and templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appCfg, err := load()
			if err != nil {
				return err
			}
			if errMigrate := app.Migrate(cmd.Context(), appCfg); errMigrate != nil {
				return errMigrate
			}
			log.Info("migrations applied")
			return nil
		},
	}
}

func newRolloverCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "rollover",
		Short: "Reset usage counters whose billing period has elapsed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appCfg, err := load()
			if err != nil {
				return err
			}
			result, err := app.Rollover(cmd.Context(), appCfg)
			if err != nil {
				return err
			}
			log.WithFields(log.Fields{
				"initialized": result.Initialized,
				"advanced":    result.Advanced,
				"reset":       result.Reset,
			}).Info("usage rollover completed")
			return nil
		},
	}
}

// validatePort accepts zero, meaning the configured port is used.
func validatePort(port int) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("invalid port: %d", port)
	}
	return nil
}
