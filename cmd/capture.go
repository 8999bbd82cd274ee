package cmd

import (
	"errors"
	"fmt"
	"image"

	"github.com/andresmejia3/faceroll/internal/capture"
	"github.com/andresmejia3/faceroll/internal/opencv"
	"github.com/andresmejia3/faceroll/internal/types"
	"github.com/andresmejia3/faceroll/internal/utils"
	"github.com/spf13/cobra"
)

var (
	captureImage string
	captureShow  bool
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Take a photo and check whether a face embedding can be extracted from it",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		frame, err := grabFrame(ctx, captureImage)
		if err != nil {
			utils.ShowError("failed to read frame", err, nil)
			return nil
		}
		if savePhoto(frame) == "" {
			return nil
		}

		eng := mustEngine(ctx, false)
		defer eng.Close()

		_, _, err = eng.First(frame)
		switch {
		case err == nil:
			fmt.Println("🙂 Face embedding obtained.")
		case errors.Is(err, types.ErrNoFaceDetected):
			fmt.Println("😶 No face found in the photo.")
		default:
			utils.ShowError("Face analysis failed", err, nil)
		}

		if captureShow {
			win := opencv.NewWindow("photo")
			defer win.Close()
			if _, err := win.Show(capture.Preview(frame), 0); err != nil {
				utils.ShowError("Failed to display photo", err, nil)
			}
		}
		return nil
	},
}

func init() {
	captureCmd.Flags().StringVar(&captureImage, "image", "", "Use this image instead of a camera frame")
	captureCmd.Flags().BoolVar(&captureShow, "show", false, "Show a 400x300 preview until a key is pressed")
	rootCmd.AddCommand(captureCmd)
}

// savePhoto writes frame to <capture dir>/photo.png, overwriting the last
// capture. It returns the path, or "" after reporting a failure.
func savePhoto(frame image.Image) string {
	path, err := capture.SaveStill(Cfg.Capture.Dir, capture.PhotoName, frame)
	if err != nil {
		utils.ShowError("Failed to save photo", err, nil)
		return ""
	}
	fmt.Printf("📸 Saved %s\n", path)
	return path
}
