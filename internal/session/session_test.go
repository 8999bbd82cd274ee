package session

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/andresmejia3/faceroll/internal/capture"
	"github.com/andresmejia3/faceroll/internal/matcher"
	"github.com/andresmejia3/faceroll/internal/types"
	"github.com/andresmejia3/faceroll/internal/vision"
)

type fakeAnalyzer struct {
	dets []vision.Detection
	err  error
}

func (f fakeAnalyzer) Analyze(img image.Image) ([]vision.Detection, error) {
	return f.dets, f.err
}

// flakySource serves n frames, then fails with readErr.
type flakySource struct {
	mu      sync.Mutex
	n       int
	reads   int
	readErr error
	closed  bool
}

func (f *flakySource) Read() (image.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.reads > f.n {
		return nil, f.readErr
	}
	return image.NewRGBA(image.Rect(0, 0, 32, 32)), nil
}

func (f *flakySource) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *flakySource) Name() string { return "flaky" }

func (f *flakySource) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// endlessSource never runs dry.
type endlessSource struct{ flakySource }

func newEndless() *endlessSource { return &endlessSource{flakySource{n: 1 << 30}} }

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	done := s.Done()
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop")
	}
}

func drainUntilErr(t *testing.T, s *Session) Frame {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case f := <-s.Frames():
			if f.Image == nil {
				return f
			}
		case <-timeout:
			t.Fatal("no terminal frame received")
		}
	}
}

func TestReadFailureGoesIdle(t *testing.T) {
	s := New(fakeAnalyzer{}, time.Millisecond)
	src := &flakySource{n: 2, readErr: errors.New("usb unplugged")}

	s.Start(context.Background(), src)
	f := drainUntilErr(t, s)

	if !types.IsDevice(f.Err) {
		t.Errorf("Expected DeviceError, got %v", f.Err)
	}
	if s.State() != Idle {
		t.Errorf("Expected Idle after read failure, got %v", s.State())
	}
	if !src.isClosed() {
		t.Error("Expected source to be released after read failure")
	}
}

func TestEndOfStream(t *testing.T) {
	s := New(fakeAnalyzer{}, time.Millisecond)
	frame := image.NewRGBA(image.Rect(0, 0, 8, 8))
	src := capture.NewSliceSource("clip.mp4", frame)

	s.Start(context.Background(), src)
	f := drainUntilErr(t, s)
	if !errors.Is(f.Err, types.ErrEndOfStream) {
		t.Errorf("Expected ErrEndOfStream, got %v", f.Err)
	}
	if !src.Closed() {
		t.Error("Expected source closed at end of stream")
	}
	if s.State() != Idle {
		t.Errorf("Expected Idle, got %v", s.State())
	}
	if snap, ok := s.Snapshot(); !ok || snap != frame {
		t.Error("Expected the last frame to remain available as a snapshot")
	}
}

func TestStopReleasesSource(t *testing.T) {
	s := New(fakeAnalyzer{}, time.Millisecond)
	src := newEndless()
	s.Start(context.Background(), src)

	select {
	case <-s.Frames():
	case <-time.After(2 * time.Second):
		t.Fatal("no frame produced")
	}
	if s.State() != Streaming {
		t.Errorf("Expected Streaming, got %v", s.State())
	}

	s.Stop()
	if s.State() != Idle {
		t.Errorf("Expected Idle after Stop, got %v", s.State())
	}
	if !src.isClosed() {
		t.Error("Expected Stop to release the source")
	}
	s.Stop() // idempotent
}

func TestStartReplacesPreviousSource(t *testing.T) {
	s := New(fakeAnalyzer{}, time.Millisecond)
	first := newEndless()
	second := newEndless()

	s.Start(context.Background(), first)
	s.Start(context.Background(), second)
	defer s.Stop()

	if !first.isClosed() {
		t.Error("Expected the previous source to be released")
	}
	if second.isClosed() {
		t.Error("New source must stay open")
	}
	if s.State() != Streaming {
		t.Errorf("Expected Streaming, got %v", s.State())
	}
}

func TestContextCancelStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(fakeAnalyzer{}, time.Millisecond)
	src := newEndless()
	s.Start(ctx, src)
	cancel()
	waitDone(t, s)
	if !src.isClosed() {
		t.Error("Expected source closed on context cancel")
	}
}

func TestFramesCarryDetections(t *testing.T) {
	dets := []vision.Detection{{
		Face:       types.Face{Box: image.Rect(2, 2, 20, 20)},
		Recognized: true,
		Match:      matcher.Result{Known: true, Name: "Alice"},
	}}
	s := New(fakeAnalyzer{dets: dets}, time.Millisecond)
	s.Start(context.Background(), newEndless())
	defer s.Stop()

	select {
	case f := <-s.Frames():
		if f.Err != nil {
			t.Fatalf("Unexpected error: %v", f.Err)
		}
		if len(f.Detections) != 1 || f.Detections[0].Match.Label() != "Alice" {
			t.Errorf("Expected Alice detection, got %+v", f.Detections)
		}
		if f.Image == nil || f.Image.Bounds().Dx() != 32 {
			t.Error("Expected an annotated frame")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no frame produced")
	}
}

func TestAnalysisErrorKeepsStreaming(t *testing.T) {
	s := New(fakeAnalyzer{err: errors.New("model hiccup")}, time.Millisecond)
	src := newEndless()
	s.Start(context.Background(), src)
	defer s.Stop()

	for i := 0; i < 3; i++ {
		select {
		case f := <-s.Frames():
			if f.Err == nil || f.Image == nil {
				t.Fatalf("Expected a raw frame with the analysis error, got %+v", f)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("stream stopped after analysis error")
		}
	}
	if s.State() != Streaming {
		t.Errorf("Expected Streaming, got %v", s.State())
	}
}

func TestCyclesArePaced(t *testing.T) {
	interval := 30 * time.Millisecond
	s := New(fakeAnalyzer{}, interval)
	src := newEndless()
	start := time.Now()
	s.Start(context.Background(), src)

	for i := 0; i < 3; i++ {
		<-s.Frames()
	}
	s.Stop()
	elapsed := time.Since(start)

	// The first cycle runs immediately, the next two wait one interval each
	if elapsed < 2*interval {
		t.Errorf("Expected at least %v for 3 cycles, took %v", 2*interval, elapsed)
	}
	src.mu.Lock()
	reads := src.reads
	src.mu.Unlock()
	if maxReads := int(elapsed/interval) + 2; reads > maxReads {
		t.Errorf("Expected at most %d reads in %v, got %d", maxReads, elapsed, reads)
	}
}

func TestFrameChannelKeepsNewest(t *testing.T) {
	s := New(fakeAnalyzer{}, time.Millisecond)
	if cap(s.frames) != 1 {
		t.Fatalf("Expected capacity 1, got %d", cap(s.frames))
	}
	s.publish(Frame{Err: errors.New("old")})
	s.publish(Frame{Err: errors.New("new")})
	if f := <-s.Frames(); f.Err.Error() != "new" {
		t.Errorf("Expected newest frame, got %v", f.Err)
	}
}
