package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/gostratum/assetx"
	"github.com/gostratum/assetx/registry"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var recoverCmd = &cobra.Command{
	Use:   "recover [id...]",
	Short: "Repair assets left behind by an interrupted replace",
	Long: "recover restores content parked under a temp name when the live object\n" +
		"is missing and deletes stale temp objects. With no ids every registered\n" +
		"asset is checked; this needs the file registry.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(configPath, envFile)
		if err != nil {
			return err
		}
		z, err := newZap(verbose)
		if err != nil {
			return err
		}
		defer z.Sync() //nolint:errcheck

		var (
			svc *assetx.Service
			reg assetx.Registry
		)
		app := fx.New(coreOptions(cfg, z), fx.Populate(&svc, &reg))
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		if err := app.Start(ctx); err != nil {
			return err
		}
		defer app.Stop(context.Background()) //nolint:errcheck

		checked, failed, err := recoverAssets(ctx, svc, reg, args)
		fmt.Fprintf(cmd.OutOrStdout(), "checked %d assets, %d failed\n", checked, failed)
		return err
	},
}

// recoverAssets runs Service.Recover for ids, or for every record when ids
// is empty.
func recoverAssets(ctx context.Context, svc *assetx.Service, reg assetx.Registry, ids []string) (int, int, error) {
	if len(ids) == 0 {
		lister, ok := reg.(registry.Lister)
		if !ok {
			return 0, 0, errors.New("registry cannot list assets; pass ids explicitly")
		}
		all, err := lister.List(ctx)
		if err != nil {
			return 0, 0, err
		}
		for _, a := range all {
			ids = append(ids, a.ID)
		}
	}

	var errs []error
	for _, id := range ids {
		if _, err := svc.Recover(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}
	return len(ids), len(errs), errors.Join(errs...)
}
