// Package session runs the live detection and annotation cycle over a frame
// source and hands annotated frames to the presentation layer.
package session

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/andresmejia3/faceroll/internal/annotate"
	"github.com/andresmejia3/faceroll/internal/capture"
	"github.com/andresmejia3/faceroll/internal/types"
	"github.com/andresmejia3/faceroll/internal/vision"
)

// DefaultInterval is the pause between two detection cycles.
const DefaultInterval = 10 * time.Millisecond

type State int

const (
	Idle State = iota
	Streaming
)

func (s State) String() string {
	if s == Streaming {
		return "streaming"
	}
	return "idle"
}

// Analyzer is satisfied by *vision.Analyzer.
type Analyzer interface {
	Analyze(img image.Image) ([]vision.Detection, error)
}

// Frame is one finished cycle. A non-nil Err with a nil Image means the
// stream has ended and the session is Idle again.
type Frame struct {
	Image      *image.RGBA
	Raw        image.Image
	Detections []vision.Detection
	Err        error
}

// run is one Start..Stop lifetime.
type run struct {
	src      capture.Source
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

type Session struct {
	analyzer Analyzer
	interval time.Duration
	log      *slog.Logger
	frames   chan Frame

	mu    sync.Mutex
	state State
	cur   *run
	last  image.Image
}

type Option func(*Session)

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// New returns an Idle session. A non-positive interval uses DefaultInterval.
func New(a Analyzer, interval time.Duration, opts ...Option) *Session {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s := &Session{
		analyzer: a,
		interval: interval,
		log:      slog.Default(),
		frames:   make(chan Frame, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Frames delivers the newest finished cycle. Older undelivered frames are dropped.
func (s *Session) Frames() <-chan Frame {
	return s.frames
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns the last raw frame read from the source.
func (s *Session) Snapshot() (image.Image, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.last != nil
}

// Start releases any running source and begins streaming from src. The
// session owns src from here on and closes it when streaming ends.
func (s *Session) Start(ctx context.Context, src capture.Source) {
	s.Stop()

	r := &run{src: src, stop: make(chan struct{}), done: make(chan struct{})}
	s.mu.Lock()
	s.cur = r
	s.state = Streaming
	s.last = nil
	s.mu.Unlock()

	s.log.Info("streaming started", "source", src.Name(), "interval", s.interval)
	go s.loop(ctx, r)
}

// Stop ends streaming and waits for the source to be released. Calling it
// while Idle does nothing.
func (s *Session) Stop() {
	s.mu.Lock()
	r := s.cur
	s.mu.Unlock()
	if r == nil {
		return
	}
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.done
}

// Done is closed when the current run ends. It is nil while Idle.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return nil
	}
	return s.cur.done
}

func (s *Session) loop(ctx context.Context, r *run) {
	var failure error
	defer func() {
		if err := r.src.Close(); err != nil {
			s.log.Warn("closing source failed", "source", r.src.Name(), "error", err)
		}
		s.mu.Lock()
		if s.cur == r {
			s.cur = nil
			s.state = Idle
		}
		s.mu.Unlock()
		if failure != nil {
			s.publish(Frame{Err: failure})
		}
		s.log.Info("streaming stopped", "source", r.src.Name())
		close(r.done)
	}()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		img, err := r.src.Read()
		if err != nil {
			failure = readFailure(r.src, err)
			return
		}

		s.mu.Lock()
		s.last = img
		s.mu.Unlock()

		s.publish(s.cycle(img))
		timer.Reset(s.interval)
	}
}

// cycle analyzes and annotates one frame. Analysis failures are reported on
// the frame but do not stop the stream.
func (s *Session) cycle(img image.Image) Frame {
	dets, err := s.analyzer.Analyze(img)
	if err != nil {
		s.log.Debug("analysis failed", "error", err)
		return Frame{Image: annotate.Frame(img, nil), Raw: img, Err: err}
	}
	return Frame{Image: annotate.Frame(img, dets), Raw: img, Detections: dets}
}

func (s *Session) publish(f Frame) {
	for {
		select {
		case s.frames <- f:
			return
		default:
		}
		select {
		case <-s.frames:
		default:
		}
	}
}

func readFailure(src capture.Source, err error) error {
	if errors.Is(err, types.ErrEndOfStream) || types.IsDevice(err) {
		return err
	}
	return &types.DeviceError{Device: src.Name(), Op: "failed to read frame", Err: err}
}
