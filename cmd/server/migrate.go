package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"fitsbook-server/internal/store"
)

func newMigrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "bring the database schema up to date and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			st, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			stored, err := store.ReadVersionFile(cfg.SchemaVersionFile)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d of %d\n", stored, store.SchemaVersion)
			if stored < store.SchemaVersion {
				return fmt.Errorf("schema is behind: stored %d, target %d", stored, store.SchemaVersion)
			}
			return nil
		},
	}
}
