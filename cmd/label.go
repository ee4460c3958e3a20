package cmd

import (
	"context"
	"fmt"

	"github.com/andresmejia3/facewatch/internal/gallery"
	"github.com/andresmejia3/facewatch/internal/store"
	"github.com/andresmejia3/facewatch/internal/utils"
	"github.com/spf13/cobra"
)

var labelCmd = &cobra.Command{
	Use:   "label <old_label> <new_label>",
	Short: "Rename a label in the gallery",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		n, err := runLabel(cmd.Context(), Gallery, args[0], args[1])
		if err != nil {
			utils.Die("Failed to relabel gallery", err, nil)
		}
		fmt.Printf("✅ %d entries relabeled from '%s' to '%s'\n", n, args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(labelCmd)
}

// runLabel renames in place on the SQL container, and rewrites the file otherwise
func runLabel(ctx context.Context, c gallery.Container, from, to string) (int, error) {
	if from == to {
		return 0, fmt.Errorf("old and new label are both '%s'", from)
	}
	if db, ok := c.(*store.Store); ok {
		n, err := db.RenameLabel(ctx, from, to)
		if err == nil && n == 0 {
			err = errLabelNotFound(from)
		}
		return n, err
	}

	g, err := c.Load(ctx)
	if err != nil {
		return 0, err
	}
	relabeled, n := g.Relabel(from, to)
	if n == 0 {
		return 0, errLabelNotFound(from)
	}
	return n, c.Save(ctx, relabeled)
}

func errLabelNotFound(label string) error {
	return fmt.Errorf("label '%s' not found", label)
}
