package utils

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"
)

func TestSplitJpeg(t *testing.T) {
	// Construct a stream containing: [Garbage] [JPEG] [Garbage]
	jpegData := []byte{0xFF, 0xD8, 0x01, 0x02, 0x03, 0xFF, 0xD9}

	streamData := []byte{0x00, 0x00}
	streamData = append(streamData, jpegData...)
	streamData = append(streamData, []byte{0x00, 0x00}...)

	scanner := bufio.NewScanner(bytes.NewReader(streamData))
	scanner.Split(SplitJpeg)

	if !scanner.Scan() {
		t.Fatal("Expected to find a token, got EOF")
	}
	if !bytes.Equal(scanner.Bytes(), jpegData) {
		t.Errorf("Expected %X, got %X", jpegData, scanner.Bytes())
	}

	// The trailing garbage is not a JPEG
	if scanner.Scan() {
		t.Error("Expected only one token, found more")
	}
}

func TestSplitJpegBackToBack(t *testing.T) {
	a := []byte{0xFF, 0xD8, 0xAA, 0xFF, 0xD9}
	b := []byte{0xFF, 0xD8, 0xBB, 0xBB, 0xFF, 0xD9}
	scanner := bufio.NewScanner(bytes.NewReader(append(append([]byte{}, a...), b...)))
	scanner.Split(SplitJpeg)

	var got [][]byte
	for scanner.Scan() {
		got = append(got, append([]byte(nil), scanner.Bytes()...))
	}
	if len(got) != 2 || !bytes.Equal(got[0], a) || !bytes.Equal(got[1], b) {
		t.Errorf("Expected two frames, got %X", got)
	}
}

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"25", 25, false},
		{"30000/1001", 29.97, false},
		{"60/1", 60, false},
		{"0/0", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFrameRate(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFrameRate(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && math.Abs(got-tt.want) > 0.01 {
				t.Errorf("ParseFrameRate(%q) = %f, want %f", tt.in, got, tt.want)
			}
		})
	}
}

func TestShowErrorIncludesWorkerLogs(t *testing.T) {
	var buf bytes.Buffer
	old := errWriter
	errWriter = &buf
	defer func() { errWriter = old }()

	sc := NewSafeCommand(context.Background(), "true")
	sc.Stderr.WriteString("Traceback: boom")
	ShowError("Worker crashed", errors.New("broken pipe"), sc)

	out := buf.String()
	for _, want := range []string{"Worker crashed", "broken pipe", "Traceback: boom"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestNewFFmpegCmdInputArgs(t *testing.T) {
	c := NewFFmpegCmd(context.Background(), "/dev/video0", "-f", "v4l2")
	args := strings.Join(c.Args, " ")
	if !strings.Contains(args, "-f v4l2 -i /dev/video0") {
		t.Errorf("Input format must precede -i, got %q", args)
	}
	if !strings.HasSuffix(args, "-f image2pipe -vcodec mjpeg -") {
		t.Errorf("Expected MJPEG pipe output, got %q", args)
	}
}
