package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/facewatch/internal/gallery"
	"github.com/andresmejia3/facewatch/internal/utils"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List every label in the gallery with its entry count",
	Run: func(cmd *cobra.Command, args []string) {
		runList(cmd.Context(), Gallery, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(ctx context.Context, c gallery.Container, out io.Writer) {
	counts, err := c.Counts(ctx)
	if err != nil {
		utils.Die("Failed to list labels", err, nil)
	}

	if len(counts) == 0 {
		fmt.Fprintln(out, "No labels found in gallery.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "LABEL\tENTRIES")
	fmt.Fprintln(w, "-----\t-------")

	total := 0
	for _, lc := range counts {
		fmt.Fprintf(w, "%s\t%d\n", lc.Label, lc.Count)
		total += lc.Count
	}
	fmt.Fprintf(w, "\t\n%d labels\t%d\n", len(counts), total)
	w.Flush()
}
