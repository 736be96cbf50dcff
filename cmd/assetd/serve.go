package main

import (
	"github.com/gostratum/assetx/httpapi"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, httpCfg, err := loadConfig(configPath, envFile)
		if err != nil {
			return err
		}
		z, err := newZap(verbose || cfg.EnableLogging)
		if err != nil {
			return err
		}
		defer z.Sync() //nolint:errcheck

		app := fx.New(
			coreOptions(cfg, z),
			fx.Supply(httpCfg),
			httpapi.Module(),
		)
		if err := app.Err(); err != nil {
			return err
		}
		app.Run()
		return nil
	},
}
