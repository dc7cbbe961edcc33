package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/cotcritic/internal/catalog"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the review catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, spec := range catalog.All() {
				suffix := ""
				if spec.Deprecated {
					suffix = " (deprecated)"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "[%2d] %-24s %s%s\n",
					spec.ID, spec.Category, spec.Name, suffix)
			}
			return nil
		},
	}
}
