package cmd

import (
	"context"
	"fmt"
	"image"
	"io"
	"strings"

	"github.com/andresmejia3/faceroll/internal/capture"
	"github.com/andresmejia3/faceroll/internal/opencv"
	"github.com/andresmejia3/faceroll/internal/utils"
	"github.com/andresmejia3/faceroll/internal/vision"
	"github.com/andresmejia3/faceroll/internal/vision/dlib"
	"github.com/andresmejia3/faceroll/internal/vision/haar"
	"github.com/andresmejia3/faceroll/internal/vision/ssd"
	"github.com/andresmejia3/faceroll/internal/worker"
)

// engine is the configured detector/recognizer pair plus everything it
// has to release.
type engine struct {
	*vision.Analyzer
	worker  *worker.PythonWorker
	closers []io.Closer
}

func (e *engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i].Close()
	}
}

// newEngine builds the analyzer described by Cfg. detectOnly skips the
// recognizer so faces are labelled with their detection confidence.
func newEngine(ctx context.Context, detectOnly bool) (*engine, error) {
	e := &engine{Analyzer: &vision.Analyzer{Identifier: Gallery}}

	var dl *dlib.Recognizer
	loadDlib := func() (*dlib.Recognizer, error) {
		if dl != nil {
			return dl, nil
		}
		r, err := dlib.New(Cfg.Recognizer.ModelsDir)
		if err != nil {
			return nil, err
		}
		dl = r
		e.closers = append(e.closers, r)
		return r, nil
	}
	loadWorker := func() (*worker.PythonWorker, error) {
		if e.worker != nil {
			return e.worker, nil
		}
		w, err := worker.NewPythonWorker(ctx, 0, worker.Config{
			Python: Cfg.Recognizer.Python,
			Script: Cfg.Recognizer.Script,
			Model:  Cfg.Recognizer.Model,
		})
		if err != nil {
			return nil, err
		}
		e.worker = w
		e.closers = append(e.closers, w)
		return w, nil
	}

	switch Cfg.Detector.Kind {
	case "ssd":
		d, err := ssd.New(Cfg.Detector.Prototxt, Cfg.Detector.Weights, Cfg.Detector.Confidence)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, d)
		e.Locator = d
	case "haar":
		d, err := haar.New(Cfg.Detector.Cascade, Cfg.Detector.MinSize)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, d)
		e.Locator = d
	case "python":
		w, err := loadWorker()
		if err != nil {
			e.Close()
			return nil, err
		}
		e.Locator = w
	default:
		r, err := loadDlib()
		if err != nil {
			return nil, err
		}
		e.Locator = r
	}

	if detectOnly {
		Log.Debug("recognition disabled", "detector", Cfg.Detector.Kind)
		return e, nil
	}

	switch Cfg.Recognizer.Kind {
	case "python":
		w, err := loadWorker()
		if err != nil {
			e.Close()
			return nil, err
		}
		e.Extractor = w
	default:
		r, err := loadDlib()
		if err != nil {
			e.Close()
			return nil, err
		}
		e.Extractor = r
	}

	Log.Debug("engine ready", "detector", Cfg.Detector.Kind, "recognizer", Cfg.Recognizer.Kind)
	return e, nil
}

// mustEngine is newEngine for commands that cannot run without one. Model
// files missing at startup end the process.
func mustEngine(ctx context.Context, detectOnly bool) *engine {
	e, err := newEngine(ctx, detectOnly)
	if err != nil {
		utils.Die(fmt.Sprintf("Failed to initialize the %s detector", Cfg.Detector.Kind), err, nil)
	}
	return e
}

// openSource opens device with the configured capture backend. Video files
// always go through OpenCV or ffmpeg since V4L2 only handles devices.
func openSource(ctx context.Context, device string) (capture.Source, error) {
	kind := Cfg.Capture.Kind
	if kind == "v4l2" && !strings.HasPrefix(device, "/dev/") {
		kind = "ffmpeg"
	}

	switch kind {
	case "v4l2":
		return capture.OpenWebcam(device, Cfg.Capture.Width, Cfg.Capture.Height)
	case "ffmpeg":
		var inputArgs []string
		if strings.HasPrefix(device, "/dev/video") {
			inputArgs = []string{"-f", "v4l2", "-video_size", fmt.Sprintf("%dx%d", Cfg.Capture.Width, Cfg.Capture.Height)}
		}
		return capture.OpenFFmpeg(ctx, device, inputArgs...)
	default:
		return opencv.Open(device, Cfg.Capture.Width, Cfg.Capture.Height)
	}
}

// grabFrame returns the image at path, or a single frame from the
// configured device when path is empty.
func grabFrame(ctx context.Context, path string) (image.Image, error) {
	if path != "" {
		return capture.OpenImage(path)
	}
	src, err := openSource(ctx, Cfg.Capture.Device)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return src.Read()
}
