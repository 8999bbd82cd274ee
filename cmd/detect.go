package cmd

import (
	"fmt"
	"os"

	"github.com/andresmejia3/faceroll/internal/annotate"
	"github.com/andresmejia3/faceroll/internal/opencv"
	"github.com/andresmejia3/faceroll/internal/utils"
	"github.com/spf13/cobra"
)

var (
	detectImage      string
	detectDetectOnly bool
)

// detectCmd is modal: it returns only after the result window is dismissed.
var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect and label faces in one frame, then wait for a key",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		eng := mustEngine(ctx, detectDetectOnly)
		defer eng.Close()

		frame, err := grabFrame(ctx, detectImage)
		if err != nil {
			utils.ShowError("failed to read frame", err, nil)
			return nil
		}

		dets, err := eng.Analyze(frame)
		if err != nil {
			utils.ShowError("Face analysis failed", err, nil)
			return nil
		}
		fmt.Fprintf(os.Stderr, "🔍 %d face(s) found. Press any key to close.\n", len(dets))

		win := opencv.NewWindow("faceroll")
		defer win.Close()
		if _, err := win.Show(annotate.Frame(frame, dets), 0); err != nil {
			utils.ShowError("Failed to display result", err, nil)
		}
		return nil
	},
}

func init() {
	detectCmd.Flags().StringVar(&detectImage, "image", "", "Analyze this image instead of a camera frame")
	detectCmd.Flags().BoolVar(&detectDetectOnly, "detect-only", false, "Skip recognition and label faces with the detector confidence")
	rootCmd.AddCommand(detectCmd)
}
