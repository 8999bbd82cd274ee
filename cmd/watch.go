package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/andresmejia3/faceroll/internal/enroll"
	"github.com/andresmejia3/faceroll/internal/opencv"
	"github.com/andresmejia3/faceroll/internal/session"
	"github.com/andresmejia3/faceroll/internal/types"
	"github.com/andresmejia3/faceroll/internal/utils"
	"github.com/spf13/cobra"
)

type keyAction int

const (
	keyNone keyAction = iota
	keyQuit
	keyEnroll
	keyCapture
	keyRestart
)

// actionFor maps a HighGUI key code to a command. WaitKey returns -1 when
// nothing was pressed.
func actionFor(key int) keyAction {
	switch key {
	case 'q', 'Q', 27:
		return keyQuit
	case 'e', 'E':
		return keyEnroll
	case 'c', 'C':
		return keyCapture
	case 'r', 'R':
		return keyRestart
	}
	return keyNone
}

var (
	watchInput      string
	watchDetectOnly bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live face recognition from a camera or video file",
	Long: `Opens a window with the annotated feed.

Keys: e enroll the face in view, c save photo.png, r restart the source,
q or Esc quit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWatch(cmd)
	},
}

func init() {
	watchCmd.Flags().StringVarP(&watchInput, "input", "i", "", "Video file or device to read instead of the configured camera")
	watchCmd.Flags().BoolVar(&watchDetectOnly, "detect-only", false, "Skip recognition and label faces with the detector confidence")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command) error {
	ctx := cmd.Context()

	eng := mustEngine(ctx, watchDetectOnly)
	defer eng.Close()

	device := Cfg.Capture.Device
	if watchInput != "" {
		device = watchInput
	}

	win := opencv.NewWindow("faceroll")
	defer win.Close()

	sess := session.New(eng, Cfg.Capture.Interval, session.WithLogger(Log))
	defer sess.Stop()

	start := func() {
		src, err := openSource(ctx, device)
		if err != nil {
			utils.ShowError("Failed to open video source", err, nil)
			return
		}
		sess.Start(ctx, src)
	}
	start()

	wf := &enroll.Workflow{
		Faces:      eng,
		Gallery:    Gallery,
		Prompter:   &enroll.LinePrompter{In: os.Stdin, Out: os.Stdout},
		CaptureDir: Cfg.Capture.Dir,
		Log:        Log,
	}

	fmt.Fprintf(os.Stderr, "👁️  Watching %s with %d known faces (e: enroll, c: capture, r: restart, q: quit)\n", device, Gallery.Len())

	for {
		var key int
		select {
		case <-ctx.Done():
			return nil
		case f := <-sess.Frames():
			if f.Image == nil {
				reportStreamEnd(f.Err)
				key = win.Poll(1)
				break
			}
			if f.Err != nil {
				Log.Debug("frame analysis failed", "error", f.Err)
			}
			k, err := win.Show(f.Image, 1)
			if err != nil {
				Log.Warn("display failed", "error", err)
			}
			key = k
		default:
			key = win.Poll(5)
		}

		switch actionFor(key) {
		case keyQuit:
			return nil
		case keyRestart:
			start()
		case keyCapture:
			frame, ok := sess.Snapshot()
			if !ok {
				utils.ShowError("No frame to capture", nil, nil)
				break
			}
			savePhoto(frame)
		case keyEnroll:
			frame, ok := sess.Snapshot()
			if !ok {
				utils.ShowError("No frame to enroll from", nil, nil)
				break
			}
			res, err := wf.Enroll(ctx, frame)
			if err != nil {
				reportEnrollError(err)
				break
			}
			fmt.Printf("✅ Enrolled %s (%d known faces)\n", res.Name, Gallery.Len())
		}

		if !win.IsOpen() {
			return nil
		}
	}
}

func reportStreamEnd(err error) {
	switch {
	case err == nil:
	case errors.Is(err, types.ErrEndOfStream):
		fmt.Fprintln(os.Stderr, "🏁 End of stream. Press r to restart or q to quit.")
	default:
		utils.ShowError("failed to read frame", err, nil)
	}
}
