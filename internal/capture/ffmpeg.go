package capture

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"sync"

	"github.com/andresmejia3/faceroll/internal/types"
	"github.com/andresmejia3/faceroll/internal/utils"
)

const megabyte = 1024 * 1024

var errClosed = errors.New("source closed")

// FFmpegSource decodes any ffmpeg input (file, URL, v4l2 device) into MJPEG
// frames over a pipe.
type FFmpegSource struct {
	name    string
	cmd     *utils.SafeCommand
	cancel  context.CancelFunc
	stdout  io.ReadCloser
	scanner *bufio.Scanner

	mu     sync.Mutex
	closed bool
}

// OpenFFmpeg starts ffmpeg on input. inputArgs go before -i (e.g. "-f", "v4l2").
func OpenFFmpeg(ctx context.Context, input string, inputArgs ...string) (*FFmpegSource, error) {
	ctx, cancel := context.WithCancel(ctx)
	cmd := utils.NewFFmpegCmd(ctx, input, inputArgs...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, &types.DeviceError{Device: input, Op: "open", Err: err}
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, &types.DeviceError{Device: input, Op: "open", Err: fmt.Errorf("failed to start FFmpeg: %w", err)}
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, megabyte), 64*megabyte)
	scanner.Split(utils.SplitJpeg)

	return &FFmpegSource{
		name:    input,
		cmd:     cmd,
		cancel:  cancel,
		stdout:  stdout,
		scanner: scanner,
	}, nil
}

func (s *FFmpegSource) Name() string { return s.name }

// Read returns the next decoded frame.
func (s *FFmpegSource) Read() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, &types.DeviceError{Device: s.name, Op: "read frame", Err: errClosed}
	}

	if s.cmd == nil {
		return nil, types.ErrEndOfStream
	}
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return nil, &types.DeviceError{Device: s.name, Op: "read frame", Err: err}
		}
		// ffmpeg exiting non-zero before any frame means the input never opened
		stderr := s.cmd.Stderr
		err := s.cmd.Wait()
		s.cmd = nil
		if err != nil {
			return nil, &types.DeviceError{Device: s.name, Op: "read frame", Err: fmt.Errorf("%w: %s", err, bytes.TrimSpace(stderr.Bytes()))}
		}
		return nil, types.ErrEndOfStream
	}

	img, err := jpeg.Decode(bytes.NewReader(s.scanner.Bytes()))
	if err != nil {
		return nil, &types.DeviceError{Device: s.name, Op: "decode frame", Err: err}
	}
	return img, nil
}

// Close stops ffmpeg. Safe to call more than once.
func (s *FFmpegSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()
	s.stdout.Close()
	if s.cmd != nil {
		// killed by the cancelled context; the exit status is expected
		_ = s.cmd.Wait()
	}
	return nil
}
