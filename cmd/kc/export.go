package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/kconf/internal/client"
	"github.com/alfredjeanlab/kconf/internal/model"
	kconfsync "github.com/alfredjeanlab/kconf/internal/sync"
)

// clientSource exposes a ConfigClient as a snapshot source.
type clientSource struct{ c client.ConfigClient }

func (s clientSource) ListEntries(ctx context.Context, prefix string) ([]*model.Entry, error) {
	return s.c.List(ctx, prefix)
}

var exportCmd = &cobra.Command{
	Use:     "export",
	Short:   "Write a JSONL snapshot of every entry",
	GroupID: "data",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		var w io.Writer = cmd.OutOrStdout()
		if output != "" && output != "-" {
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}

		if err := kconfsync.ExportJSONL(cmd.Context(), clientSource{configClient}, w); err != nil {
			return fmt.Errorf("export: %w", err)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringP("output", "o", "", "write to this file instead of stdout")
}
