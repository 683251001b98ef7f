package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/partscout/internal/cache"
)

var purgeAll bool

// cacheCmd creates the "cache" subcommand group.
func cacheCmd(stdout io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the result cache",
	}

	purge := &cobra.Command{
		Use:   "purge",
		Short: "Delete expired cache entries (all entries with --all)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			c, err := cache.Open(cmd.Context(), cfg.Cache, logger)
			if err != nil {
				return err
			}
			defer c.Close()

			n, err := c.Purge(cmd.Context(), purgeAll)
			if err != nil {
				return err
			}
			left, err := c.Len(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Purged %d cached results, %d left in %s\n", n, left, cfg.Cache.Path)
			return nil
		},
	}
	purge.Flags().BoolVar(&purgeAll, "all", false, "delete every entry, not only expired ones")

	cmd.AddCommand(purge)
	return cmd
}
