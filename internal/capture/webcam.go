package capture

import (
	"bytes"
	"image"
	"image/jpeg"
	"sync"

	"github.com/andresmejia3/faceroll/internal/types"
	"github.com/blackjack/webcam"
	"github.com/pkg/errors"
)

const (
	fourccMJPG webcam.PixelFormat = 0x47504A4D // 'MJPG'
	fourccYUYV webcam.PixelFormat = 0x56595559 // 'YUYV'

	frameTimeout = 1 // seconds
)

// Webcam reads frames straight from a V4L2 device without OpenCV.
type Webcam struct {
	mu     sync.Mutex
	device string
	cam    *webcam.Webcam
	format webcam.PixelFormat
	width  int
	height int
}

// OpenWebcam opens device (e.g. /dev/video0), preferring MJPEG over YUYV.
func OpenWebcam(device string, width, height int) (*Webcam, error) {
	cam, err := webcam.Open(device)
	if err != nil {
		return nil, &types.DeviceError{Device: device, Op: "open", Err: errors.Wrap(err, "Can not open device")}
	}

	formats := cam.GetSupportedFormats()
	var want webcam.PixelFormat
	switch {
	case formats[fourccMJPG] != "":
		want = fourccMJPG
	case formats[fourccYUYV] != "":
		want = fourccYUYV
	default:
		cam.Close()
		return nil, &types.DeviceError{Device: device, Op: "open", Err: errors.New("device offers neither MJPEG nor YUYV")}
	}

	format, w, h, err := cam.SetImageFormat(want, uint32(width), uint32(height))
	if err != nil {
		cam.Close()
		return nil, &types.DeviceError{Device: device, Op: "open", Err: errors.Wrap(err, "Can not set image format")}
	}

	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return nil, &types.DeviceError{Device: device, Op: "open", Err: errors.Wrap(err, "Can not start streaming")}
	}

	return &Webcam{device: device, cam: cam, format: format, width: int(w), height: int(h)}, nil
}

func (c *Webcam) Name() string { return c.device }

// Read blocks until the next frame. Timeouts are retried a few times before
// being reported.
func (c *Webcam) Read() (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cam == nil {
		return nil, &types.DeviceError{Device: c.device, Op: "read frame", Err: errClosed}
	}

	var frame []byte
	for attempt := 0; ; attempt++ {
		err := c.cam.WaitForFrame(frameTimeout)
		switch err.(type) {
		case nil:
		case *webcam.Timeout:
			if attempt < 3 {
				continue
			}
			return nil, &types.DeviceError{Device: c.device, Op: "read frame", Err: err}
		default:
			return nil, &types.DeviceError{Device: c.device, Op: "read frame", Err: errors.Wrap(err, "Frame wait failed")}
		}

		frame, err = c.cam.ReadFrame()
		if err != nil {
			return nil, &types.DeviceError{Device: c.device, Op: "read frame", Err: errors.Wrap(err, "Read frame failed")}
		}
		if len(frame) > 0 {
			break
		}
	}

	if c.format == fourccMJPG {
		img, err := jpeg.Decode(bytes.NewReader(frame))
		if err != nil {
			return nil, &types.DeviceError{Device: c.device, Op: "decode frame", Err: err}
		}
		return img, nil
	}
	return yuyvToImage(frame, c.width, c.height)
}

// Close stops streaming and releases the device. Safe to call more than once.
func (c *Webcam) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cam == nil {
		return nil
	}
	cam := c.cam
	c.cam = nil
	_ = cam.StopStreaming()
	return cam.Close()
}

// yuyvToImage copies a packed YUYV 4:2:2 frame into planar YCbCr.
func yuyvToImage(frame []byte, width, height int) (image.Image, error) {
	if len(frame) < width*height*2 {
		return nil, errors.Errorf("short YUYV frame: %d bytes for %dx%d", len(frame), width, height)
	}
	img := image.NewYCbCr(image.Rect(0, 0, width, height), image.YCbCrSubsampleRatio422)
	for y := 0; y < height; y++ {
		row := frame[y*width*2:]
		for x := 0; x < width; x += 2 {
			i := x * 2
			img.Y[y*img.YStride+x] = row[i]
			img.Y[y*img.YStride+x+1] = row[i+2]
			ci := y*img.CStride + x/2
			img.Cb[ci] = row[i+1]
			img.Cr[ci] = row[i+3]
		}
	}
	return img, nil
}
