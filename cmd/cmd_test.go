package cmd

import (
	"bufio"
	"bytes"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/andresmejia3/faceroll/internal/matcher"
	"github.com/andresmejia3/faceroll/internal/types"
	"github.com/andresmejia3/faceroll/internal/vision"
)

func TestActionFor(t *testing.T) {
	tests := []struct {
		key  int
		want keyAction
	}{
		{-1, keyNone},
		{'q', keyQuit},
		{'Q', keyQuit},
		{27, keyQuit},
		{'e', keyEnroll},
		{'c', keyCapture},
		{'r', keyRestart},
		{'x', keyNone},
	}
	for _, tt := range tests {
		if got := actionFor(tt.key); got != tt.want {
			t.Errorf("actionFor(%d) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestEnrollNotice(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"No face", fmt.Errorf("enroll: %w", types.ErrNoFaceDetected), "No face detected"},
		{"Cancelled", types.ErrEnrollmentCancelled, "Enrollment cancelled"},
		{"Empty name", &types.ValidationError{Field: "name", Reason: "must not be empty"}, "Invalid name"},
		{"Disk full", &types.StorageError{Op: "save", Path: "known_faces.gob", Err: os.ErrPermission}, "Failed to save"},
		{"Other", fmt.Errorf("boom"), "Enrollment failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := enrollNotice(tt.err); !strings.HasPrefix(got, tt.want) {
				t.Errorf("enrollNotice() = %q, want prefix %q", got, tt.want)
			}
		})
	}
}

func TestImageFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.JPG", "a.png", "notes.txt", "c.gif"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "nested.png"), 0755); err != nil {
		t.Fatal(err)
	}

	got, err := imageFiles(dir)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a.png", "b.JPG", "c.gif"}
	if len(got) != len(want) {
		t.Fatalf("imageFiles() = %v, want %v", got, want)
	}
	for i := range want {
		if filepath.Base(got[i]) != want[i] {
			t.Errorf("imageFiles()[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	if _, err := imageFiles(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected an error for a missing directory")
	}
}

func TestPrintEntries(t *testing.T) {
	var buf bytes.Buffer
	printEntries(&buf, []types.GalleryEntry{{Name: "Ada Lovelace"}, {Name: "Alan Turing"}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want header, rule and 2 rows:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[2], "1") || !strings.Contains(lines[2], "Ada Lovelace") {
		t.Errorf("first row = %q", lines[2])
	}
	if !strings.HasPrefix(lines[3], "2") || !strings.Contains(lines[3], "Alan Turing") {
		t.Errorf("second row = %q", lines[3])
	}
}

func TestPrintDetections(t *testing.T) {
	var buf bytes.Buffer
	printDetections(&buf, []vision.Detection{
		{Face: types.Face{Box: image.Rect(0, 0, 10, 10)}, Match: matcher.Result{Known: true, Name: "Ada", Distance: 0.25}},
		{Face: types.Face{Box: image.Rect(20, 20, 30, 30)}, Match: matcher.Result{Index: -1}},
	})

	out := buf.String()
	if !strings.Contains(out, "Ada") || !strings.Contains(out, "0.250") {
		t.Errorf("known face row missing:\n%s", out)
	}
	if !strings.Contains(out, matcher.UnknownLabel) {
		t.Errorf("unknown face row missing:\n%s", out)
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}
	for _, tt := range tests {
		r := bufio.NewReader(strings.NewReader(tt.input))
		if got := confirm(r, "sure?"); got != tt.want {
			t.Errorf("confirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
