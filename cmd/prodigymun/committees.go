package main

import (
	"fmt"
	"text/tabwriter"

	"prodigymun/internal/catalog"
	"prodigymun/pkg/domain"

	"github.com/spf13/cobra"
)

func committeesCommand() *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "committees",
		Short: "List the committee catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			committees := catalog.Default().All()
			if category != "" {
				cat, err := domain.ParseCategory(category)
				if err != nil {
					return err
				}
				committees = catalog.Default().FilterByCategory(cat)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tCATEGORY")
			for _, c := range committees {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", c.ID, c.Name, c.Category)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "only committees of this category (indian, international)")
	return cmd
}
