// Package capture provides frame sources (camera, video file) and the still
// image helpers used for captured photos.
package capture

import (
	"image"
	"sync"

	"github.com/andresmejia3/faceroll/internal/types"
)

// Source yields frames until it is closed or the stream ends. Read returns
// types.ErrEndOfStream once a finite source is exhausted and a
// *types.DeviceError when the device fails.
type Source interface {
	Read() (image.Image, error)
	Close() error
	Name() string
}

// SliceSource replays a fixed list of frames.
type SliceSource struct {
	mu     sync.Mutex
	name   string
	frames []image.Image
	closed bool
}

// NewSliceSource returns a finite source over frames.
func NewSliceSource(name string, frames ...image.Image) *SliceSource {
	return &SliceSource{name: name, frames: frames}
}

func (s *SliceSource) Read() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, &types.DeviceError{Device: s.name, Op: "read frame", Err: errClosed}
	}
	if len(s.frames) == 0 {
		return nil, types.ErrEndOfStream
	}
	img := s.frames[0]
	s.frames = s.frames[1:]
	return img, nil
}

func (s *SliceSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Closed reports whether Close has been called.
func (s *SliceSource) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *SliceSource) Name() string { return s.name }
