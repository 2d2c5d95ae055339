package main

import (
	"fmt"

	"github.com/FranksOps/sift/internal/cache"
	"github.com/spf13/cobra"
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete cached responses older than the retention window",
	Long: `Delete cached responses older than cache.retention_multiplier x cache.ttl.

The sweep does this after every run; prune runs it once by hand.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := cache.New(store, cache.Config{
			TTL:                 cfg.Cache.TTL,
			RetentionMultiplier: cfg.Cache.RetentionMultiplier,
			Logger:              logger,
		}).Prune(ctx)
		if err != nil {
			return err
		}

		if n == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Nothing to prune.")
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d cached response(s).\n", n)
		}
		return nil
	},
}
