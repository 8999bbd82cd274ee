package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/andresmejia3/faceroll/internal/utils"
	"github.com/spf13/cobra"
)

var (
	resetGallery bool
	resetPhotos  bool
	resetYes     bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset system state (Gallery, Captured Photos)",
	Long:  "Clears all data. By default, it resets everything. Use flags to clear specific components.",
	Run: func(cmd *cobra.Command, args []string) {
		// If no flags are set, default to clearing EVERYTHING
		if !resetGallery && !resetPhotos {
			resetGallery = true
			resetPhotos = true
		}

		reader := bufio.NewReader(os.Stdin)
		ask := func(prompt string) bool {
			return resetYes || confirm(reader, prompt)
		}

		if resetGallery {
			if ask(fmt.Sprintf("⚠️  Are you sure you want to forget all %d enrolled faces?", Gallery.Len())) {
				fmt.Println("🗑️  Clearing Gallery...")
				if DB != nil {
					// Recreates the table so schema changes are picked up too
					if err := DB.Reset(cmd.Context()); err != nil {
						utils.Die("Failed to reset database", err, nil)
					}
				}
				if err := Gallery.Reset(cmd.Context()); err != nil {
					utils.Die("Failed to reset gallery", err, nil)
				}
			}
		}

		if resetPhotos {
			if ask(fmt.Sprintf("⚠️  Are you sure you want to delete all captured photos in %s?", Cfg.Capture.Dir)) {
				fmt.Println("🗑️  Clearing Captured Photos...")
				removeDir(Cfg.Capture.Dir)
			}
		}

		fmt.Println("✨ System Reset Complete.")
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetGallery, "faces", false, "Clear the face gallery")
	resetCmd.Flags().BoolVar(&resetPhotos, "photos", false, "Clear captured photos")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(resetCmd)
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
