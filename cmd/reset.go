package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/andresmejia3/facewatch/internal/gallery"
	"github.com/andresmejia3/facewatch/internal/utils"
	"github.com/spf13/cobra"
)

var (
	resetGallery bool
	resetOutput  bool
	resetYes     bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset stored state (gallery, output directory)",
	Long:  "Clears stored data. By default, it resets everything. Use flags to clear specific components.",
	Run: func(cmd *cobra.Command, args []string) {
		// If no flags are set, default to clearing EVERYTHING
		if !resetGallery && !resetOutput {
			resetGallery = true
			resetOutput = true
		}

		var in io.Reader = os.Stdin
		if resetYes {
			in = strings.NewReader(strings.Repeat("y\n", 2))
		}
		if err := runReset(cmd.Context(), Gallery, Cfg.OutputDir, bufio.NewReader(in), resetGallery, resetOutput); err != nil {
			utils.Die("Failed to reset", err, nil)
		}
		fmt.Println("✨ Reset Complete.")
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetGallery, "gallery", false, "Delete the gallery file or drop the gallery table")
	resetCmd.Flags().BoolVar(&resetOutput, "output", false, "Delete the output directory")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(resetCmd)
}

func runReset(ctx context.Context, c gallery.Container, outputDir string, r *bufio.Reader, clearGallery, clearOutput bool) error {
	if clearGallery {
		if confirm(r, fmt.Sprintf("⚠️  Are you sure you want to delete the gallery at %v?", c)) {
			fmt.Println("🗑️  Clearing Gallery...")
			if err := c.Reset(ctx); err != nil {
				return err
			}
		}
	}

	if clearOutput && outputDir != "" {
		if confirm(r, fmt.Sprintf("⚠️  Are you sure you want to delete %s?", outputDir)) {
			fmt.Println("🗑️  Clearing Output Files...")
			removeDir(outputDir)
		}
	}
	return nil
}

func confirm(r *bufio.Reader, prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

func removeDir(path string) {
	if err := os.RemoveAll(path); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", path, err)
	}
}
