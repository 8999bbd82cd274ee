package types

import (
	"errors"
	"fmt"
)

var (
	// ErrNoFaceDetected is returned when a frame that needed a face had none.
	ErrNoFaceDetected = errors.New("no face detected")

	// ErrEnrollmentCancelled is returned when the user dismisses the name prompt.
	ErrEnrollmentCancelled = errors.New("enrollment cancelled by user")

	// ErrEndOfStream is returned by a frame source once a video file is exhausted.
	ErrEndOfStream = errors.New("end of stream")

	// ErrModelMissing is returned when detector model files are not on disk.
	ErrModelMissing = errors.New("detector model file missing")
)

// DeviceError reports a camera or video that cannot be opened or read.
type DeviceError struct {
	Device string
	Op     string
	Err    error
}

func (e *DeviceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("device %s: %s", e.Device, e.Op)
	}
	return fmt.Sprintf("device %s: %s: %v", e.Device, e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// StorageError reports an unreadable, corrupt or unwritable gallery.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("gallery %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ValidationError reports bad user input such as an empty name or a
// disallowed upload extension.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func dimReason(n int) string {
	return fmt.Sprintf("expected %d values, got %d", EmbeddingDim, n)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsStorage reports whether err is (or wraps) a StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// IsDevice reports whether err is (or wraps) a DeviceError.
func IsDevice(err error) bool {
	var de *DeviceError
	return errors.As(err, &de)
}
