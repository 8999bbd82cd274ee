package cmd

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/andresmejia3/faceroll/internal/annotate"
	"github.com/andresmejia3/faceroll/internal/types"
	"github.com/andresmejia3/faceroll/internal/utils"
	"github.com/andresmejia3/faceroll/internal/vision"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

const megabyte = 1024 * 1024

// ScanOptions configures an offline video annotation run.
type ScanOptions struct {
	InputPath  string
	OutputPath string
	NthFrame   int
	DetectOnly bool
}

var scanOpts ScanOptions

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Annotate every face in a video file and write a labelled copy",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateScanOptions(&scanOpts); err != nil {
			utils.Die("Invalid scan options", err, nil)
		}
		return runScan(cmd.Context(), scanOpts)
	},
}

func init() {
	scanCmd.Flags().StringVarP(&scanOpts.InputPath, "input", "i", "", "Path to video")
	scanCmd.Flags().StringVarP(&scanOpts.OutputPath, "output", "o", "", "Annotated video (default: <input>_labelled.mp4)")
	scanCmd.Flags().IntVarP(&scanOpts.NthFrame, "nth-frame", "n", 1, "Analyze every nth frame, reusing the last labels in between")
	scanCmd.Flags().BoolVar(&scanOpts.DetectOnly, "detect-only", false, "Skip recognition and label faces with the detector confidence")

	scanCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(scanCmd)
}

// Buffer pool to reduce GC pressure during scanning
var frameBufferPool = sync.Pool{
	New: func() interface{} { return make([]byte, 0, megabyte) },
}

// timeRange is when an identity was first and last seen, in seconds.
type timeRange struct {
	Start float64
	End   float64
}

func runScan(ctx context.Context, opts ScanOptions) error {
	// Cancelling on return stops the reader and both ffmpeg processes on early exits
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fps, err := utils.GetVideoFPS(ctx, opts.InputPath)
	if err != nil {
		utils.Die("Failed to determine video FPS", err, nil)
	}
	width, height, err := utils.GetVideoDimensions(ctx, opts.InputPath)
	if err != nil {
		utils.Die("Failed to determine video dimensions", err, nil)
	}
	totalFrames := utils.GetTotalFrames(ctx, opts.InputPath)

	eng := mustEngine(ctx, opts.DetectOnly)
	defer eng.Close()

	fmt.Fprintf(os.Stderr, "📼 %s (%dx%d @ %.2f fps) -> %s\n", opts.InputPath, width, height, fps, opts.OutputPath)

	decoder := utils.NewFFmpegRawDecoder(ctx, opts.InputPath)
	decoderOut, err := decoder.StdoutPipe()
	if err != nil {
		utils.ShowError("Failed to create decoder pipe", err, nil)
		return err
	}
	if err := decoder.Start(); err != nil {
		utils.ShowError("Failed to start decoder", err, decoder)
		return err
	}

	encoder := utils.NewFFmpegEncoder(ctx, opts.OutputPath, fps, width, height)
	encoderIn, err := encoder.StdinPipe()
	if err != nil {
		utils.ShowError("Failed to create encoder pipe", err, nil)
		return err
	}
	if err := encoder.Start(); err != nil {
		utils.ShowError("Failed to start encoder", err, encoder)
		return err
	}

	taskChan := make(chan types.FrameTask, 4)
	go readRawFrames(ctx, decoderOut, width*height*4, taskChan)

	var barTotal int64 = int64(totalFrames)
	if barTotal <= 0 {
		barTotal = -1 // Trigger spinner mode
	}
	bar := progressbar.NewOptions64(barTotal,
		progressbar.OptionSetDescription("🔍 Labelling"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)

	seen := make(map[string]timeRange)
	var dets []vision.Detection
	analyzed, detections := 0, 0

	for task := range taskChan {
		// Zero-Copy: Wrap the raw bytes in an image.RGBA struct
		frame := &image.RGBA{
			Pix:    task.Data,
			Stride: width * 4,
			Rect:   image.Rect(0, 0, width, height),
		}

		if task.Index%opts.NthFrame == 0 {
			dets, err = eng.Analyze(frame)
			if err != nil {
				Log.Debug("frame analysis failed", "frame", task.Index, "error", err)
				dets = nil
			}
			analyzed++
			detections += len(dets)
			recordSightings(seen, dets, float64(task.Index)/fps)
		}
		annotate.Draw(frame, dets)

		if _, err := encoderIn.Write(task.Data); err != nil {
			frameBufferPool.Put(task.Data)
			utils.ShowError("Encoder pipe closed", err, encoder)
			return err
		}
		frameBufferPool.Put(task.Data)
		bar.Add(1)
	}

	if ctx.Err() != nil {
		encoderIn.Close()
		return ctx.Err()
	}

	encoderIn.Close()
	if err := encoder.Wait(); err != nil {
		utils.ShowError("Encoder process failed", err, encoder)
		return err
	}
	if err := decoder.Wait(); err != nil {
		utils.ShowError("Decoder process failed", err, decoder)
		return err
	}
	bar.Finish()

	printScanSummary(os.Stderr, seen, analyzed, detections)
	return nil
}

// readRawFrames splits the decoder output into fixed-size RGBA frames.
func readRawFrames(ctx context.Context, r io.Reader, frameSize int, out chan<- types.FrameTask) {
	defer close(out)
	for idx := 0; ; idx++ {
		buf := frameBufferPool.Get().([]byte)
		if cap(buf) < frameSize {
			buf = make([]byte, frameSize)
		}
		buf = buf[:frameSize]

		if _, err := io.ReadFull(r, buf); err != nil {
			// EOF or unexpected error, stop reading
			frameBufferPool.Put(buf)
			return
		}

		select {
		case out <- types.FrameTask{Index: idx, Data: buf}:
		case <-ctx.Done():
			return
		}
	}
}

func recordSightings(seen map[string]timeRange, dets []vision.Detection, at float64) {
	for _, d := range dets {
		if !d.Match.Known {
			continue
		}
		r, ok := seen[d.Match.Name]
		if !ok {
			r.Start = at
		}
		r.End = at
		seen[d.Match.Name] = r
	}
}

func printScanSummary(out io.Writer, seen map[string]timeRange, analyzed, detections int) {
	fmt.Fprintf(out, "\n---------------------------------------------------------\n")
	fmt.Fprintf(out, "📊 SCAN SUMMARY\n")
	fmt.Fprintf(out, "---------------------------------------------------------\n")

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		r := seen[name]
		fmt.Fprintf(out, "👤 %s: %s -> %s\n", name, fmtTime(r.Start), fmtTime(r.End))
	}

	fmt.Fprintf(out, "\n👁️  Frames analyzed:        %d\n", analyzed)
	fmt.Fprintf(out, "👁️  Total Face Detections:  %d\n", detections)
	fmt.Fprintf(out, "---------------------------------------------------------\n")
}

// validateScanOptions checks the CLI arguments before any process is started.
func validateScanOptions(opts *ScanOptions) error {
	info, err := os.Stat(opts.InputPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("input file does not exist: %s", opts.InputPath)
		}
		return fmt.Errorf("unable to access input file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("input path is a directory, expected a video file")
	}
	if opts.NthFrame < 1 {
		return fmt.Errorf("nth-frame must be >= 1, got %d", opts.NthFrame)
	}

	if opts.OutputPath == "" {
		ext := filepath.Ext(opts.InputPath)
		opts.OutputPath = opts.InputPath[:len(opts.InputPath)-len(ext)] + "_labelled.mp4"
	}
	in, err := filepath.Abs(opts.InputPath)
	if err != nil {
		return err
	}
	out, err := filepath.Abs(opts.OutputPath)
	if err != nil {
		return err
	}
	if in == out {
		return fmt.Errorf("output path must differ from the input path")
	}
	return nil
}

func fmtTime(seconds float64) string {
	duration := time.Duration(seconds * float64(time.Second))
	h := int(duration.Hours())
	m := int(duration.Minutes()) % 60
	s := int(duration.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
