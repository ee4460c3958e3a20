package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/facewatch/internal/gallery"
	"github.com/andresmejia3/facewatch/internal/utils"
	"github.com/spf13/cobra"
)

var auditNeighbors int

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Find gallery entries that sit close to a different label",
	Long: `Reports pairs of entries closer than the match threshold but carrying different labels.
These usually come from training images where the wrong face was picked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		g, err := Gallery.Load(cmd.Context())
		if err != nil {
			utils.ShowError("Failed to load gallery", err, nil)
			return err
		}
		runAudit(g, Cfg.MatchThreshold, auditNeighbors, os.Stdout)
		return nil
	},
}

func init() {
	auditCmd.Flags().IntVarP(&auditNeighbors, "neighbors", "k", 3, "Neighbors checked per entry")
	rootCmd.AddCommand(auditCmd)
}

func runAudit(g *gallery.Gallery, threshold float64, k int, out io.Writer) int {
	conflicts := gallery.Audit(g, threshold, k)
	if len(conflicts) == 0 {
		fmt.Fprintf(out, "✅ No conflicting entries among %d (threshold %.2f).\n", g.Len(), threshold)
		return 0
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ENTRY\tLABEL\tNEIGHBOR\tNEIGHBOR LABEL\tDISTANCE")
	fmt.Fprintln(w, "-----\t-----\t--------\t--------------\t--------")
	for _, c := range conflicts {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%.3f\n", c.Index, c.Label, c.Neighbor, c.NeighborLabel, c.Distance)
	}
	w.Flush()
	fmt.Fprintf(out, "⚠️  %d conflicting pairs. Review the training images for these entries.\n", len(conflicts))
	return len(conflicts)
}
