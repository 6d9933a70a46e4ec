package main

import (
	"fmt"
	"io"
	"os"

	"prodigymun/internal/core"

	"github.com/spf13/cobra"
)

type exportOptions struct {
	out   string
	query core.ListQuery
}

func exportCommand() *cobra.Command {
	opts := &exportOptions{}
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write registrations as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return exportRun(cmd, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "output file (stdout when empty)")
	cmd.Flags().StringVar(&opts.query.Status, "status", "", "only registrations with this status")
	cmd.Flags().StringVar(&opts.query.Committee, "committee", "", "only registrations for this committee id")
	cmd.Flags().StringVar(&opts.query.Category, "category", "", "only committees of this category (indian, international)")
	cmd.Flags().StringVar(&opts.query.Class, "class", "", "only this class")
	cmd.Flags().StringVar(&opts.query.Division, "division", "", "only this division")
	cmd.Flags().StringVar(&opts.query.Search, "search", "", "case-insensitive name substring")
	return cmd
}

func exportRun(cmd *cobra.Command, opts *exportOptions) error {
	cfg, err := configFrom(cmd)
	if err != nil {
		return err
	}
	logger, err := commonRun(cmd, cfg)
	if err != nil {
		return err
	}
	store, err := openStore(cmd, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	svc := core.NewService(store, core.WithLogger(logger.With("component", "core")))
	filter, err := svc.ResolveFilter(opts.query)
	if err != nil {
		return err
	}

	var w io.Writer = cmd.OutOrStdout()
	if opts.out != "" {
		f, err := os.Create(opts.out)
		if err != nil {
			return fmt.Errorf("create %s: %w", opts.out, err)
		}
		defer f.Close()
		w = f
	}
	rows, err := svc.ExportCSV(cmd.Context(), w, filter)
	if err != nil {
		return err
	}
	logger.Info("export complete", "rows", rows, "out", opts.out)
	return nil
}
