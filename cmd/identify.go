package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/faceroll/internal/capture"
	"github.com/andresmejia3/faceroll/internal/utils"
	"github.com/andresmejia3/faceroll/internal/vision"
	"github.com/spf13/cobra"
)

var identifyCmd = &cobra.Command{
	Use:   "identify [image]",
	Short: "Match every face in a photo against the gallery",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		img, err := capture.OpenImage(args[0])
		if err != nil {
			utils.Die("Failed to open image", err, nil)
		}

		eng := mustEngine(cmd.Context(), false)
		defer eng.Close()

		dets, err := eng.Analyze(img)
		if err != nil {
			utils.ShowError("Face analysis failed", err, nil)
			return
		}
		if len(dets) == 0 {
			fmt.Println("No faces found in image.")
			return
		}
		printDetections(os.Stdout, dets)
	},
}

func init() {
	rootCmd.AddCommand(identifyCmd)
}

func printDetections(out io.Writer, dets []vision.Detection) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "FACE\tBOX\tIDENTITY\tDISTANCE")
	fmt.Fprintln(w, "----\t---\t--------\t--------")
	for i, d := range dets {
		dist := "-"
		if d.Match.Known {
			dist = fmt.Sprintf("%.3f", d.Match.Distance)
		}
		fmt.Fprintf(w, "%d\t%v\t%s\t%s\n", i+1, d.Box, d.Match.Label(), dist)
	}
	w.Flush()
}
