// Package opencv adapts gocv capture devices and HighGUI windows to the
// capture.Source and presentation interfaces.
package opencv

import (
	"fmt"
	"image"
	"strconv"
	"sync"

	"github.com/andresmejia3/faceroll/internal/types"
	"gocv.io/x/gocv"
)

// Camera reads from a camera index ("0") or a video file path.
type Camera struct {
	mu     sync.Mutex
	device string
	cap    *gocv.VideoCapture
	mat    gocv.Mat
	isFile bool
}

// Open opens device. Numeric devices are camera indices, anything else is
// treated as a file or stream URL.
func Open(device string, width, height int) (*Camera, error) {
	var target interface{} = device
	isFile := true
	if idx, err := strconv.Atoi(device); err == nil {
		target = idx
		isFile = false
	}

	vc, err := gocv.OpenVideoCapture(target)
	if err != nil {
		return nil, &types.DeviceError{Device: device, Op: "open", Err: err}
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, &types.DeviceError{Device: device, Op: "open", Err: fmt.Errorf("device not available")}
	}
	if !isFile && width > 0 && height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(height))
	}
	return &Camera{device: device, cap: vc, mat: gocv.NewMat(), isFile: isFile}, nil
}

func (c *Camera) Name() string { return c.device }

// Read grabs the next frame. A file that runs out yields types.ErrEndOfStream.
func (c *Camera) Read() (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cap == nil {
		return nil, &types.DeviceError{Device: c.device, Op: "read frame", Err: fmt.Errorf("closed")}
	}
	if ok := c.cap.Read(&c.mat); !ok || c.mat.Empty() {
		if c.isFile {
			return nil, types.ErrEndOfStream
		}
		return nil, &types.DeviceError{Device: c.device, Op: "failed to read frame"}
	}
	img, err := c.mat.ToImage()
	if err != nil {
		return nil, &types.DeviceError{Device: c.device, Op: "convert frame", Err: err}
	}
	return img, nil
}

// Close releases the device. Safe to call more than once.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cap == nil {
		return nil
	}
	err := c.cap.Close()
	c.cap = nil
	c.mat.Close()
	return err
}

// Window shows frames in a HighGUI window. All methods must run on the
// main goroutine.
type Window struct {
	win *gocv.Window
}

func NewWindow(title string) *Window {
	return &Window{win: gocv.NewWindow(title)}
}

// Show displays img and pumps the event loop for waitMs milliseconds,
// returning the pressed key or -1. waitMs 0 blocks until a key is pressed.
func (w *Window) Show(img image.Image, waitMs int) (int, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return -1, fmt.Errorf("convert frame: %w", err)
	}
	defer mat.Close()
	w.win.IMShow(mat)
	return w.win.WaitKey(waitMs), nil
}

// Poll pumps the event loop without changing the displayed frame.
func (w *Window) Poll(waitMs int) int {
	return w.win.WaitKey(waitMs)
}

// IsOpen is false once the user closed the window.
func (w *Window) IsOpen() bool {
	return w.win.IsOpen()
}

func (w *Window) Close() error {
	return w.win.Close()
}
