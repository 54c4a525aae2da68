package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"fitsbook-server/internal/store"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "fitsbook-server %s (schema %d, built with %s)\n",
				version, store.SchemaVersion, runtime.Version())
		},
	}
}
