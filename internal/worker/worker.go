// Package worker drives the Python face_recognition backend over a pipe.
package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os"
	"sync"

	"github.com/andresmejia3/faceroll/internal/types"
	"github.com/andresmejia3/faceroll/internal/utils"
)

const (
	opLocate byte = 0 // locate every face and encode each one
	opEncode byte = 1 // encode the single face at the given box

	statusOK  byte = 0
	statusErr byte = 1

	// maxResponse guards against a desynchronized pipe allocating gigabytes.
	maxResponse = 64 << 20
)

// Config selects the interpreter and model used by the worker process.
type Config struct {
	Python string // interpreter, default python3
	Script string // default python/worker.py
	Model  string // face_recognition locator model: hog or cnn
}

// PythonWorker is one long-lived worker process. Calls are serialized.
type PythonWorker struct {
	ID       int
	Cmd      *utils.SafeCommand
	Stdin    io.WriteCloser
	DataPipe io.ReadCloser

	mu sync.Mutex
}

// NewPythonWorker starts the worker and returns once the process is running.
func NewPythonWorker(ctx context.Context, id int, cfg Config) (*PythonWorker, error) {
	if cfg.Python == "" {
		cfg.Python = "python3"
	}
	if cfg.Script == "" {
		cfg.Script = "python/worker.py"
	}
	if cfg.Model == "" {
		cfg.Model = "hog"
	}
	py := utils.NewSafeCommand(ctx, cfg.Python, "-u", cfg.Script, "--model", cfg.Model)

	// Side-channel pipe (FD 3) so stray prints on stdout can't corrupt the protocol
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("worker %d failed to start: %w", id, err)
	}

	// Only the child holds the write end now
	w.Close()

	return &PythonWorker{
		ID:       id,
		Cmd:      py,
		Stdin:    stdin,
		DataPipe: r,
	}, nil
}

// Communicate sends one framed request and returns the framed response body.
// Protocol: [Length][Data] in both directions.
func (w *PythonWorker) Communicate(data []byte) ([]byte, error) {
	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write(data); err != nil {
		return nil, err
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		return nil, err // a crashed interpreter (e.g. ModuleNotFoundError) surfaces here
	}

	respLen := binary.BigEndian.Uint32(header)
	if respLen > maxResponse {
		return nil, fmt.Errorf("worker response too large: %d bytes", respLen)
	}
	respBody := make([]byte, respLen)
	_, err := io.ReadFull(w.DataPipe, respBody)
	return respBody, err
}

// ProcessFrame locates and encodes every face in a JPEG frame.
func (w *PythonWorker) ProcessFrame(jpegData []byte) ([]types.Face, error) {
	return w.call(opLocate, image.Rectangle{}, jpegData)
}

// EncodeFace returns the embedding of the face inside box.
func (w *PythonWorker) EncodeFace(jpegData []byte, box image.Rectangle) (types.Embedding, error) {
	faces, err := w.call(opEncode, box, jpegData)
	if err != nil {
		return types.Embedding{}, err
	}
	if len(faces) == 0 || faces[0].Embedding == nil {
		return types.Embedding{}, types.ErrNoFaceDetected
	}
	return *faces[0].Embedding, nil
}

// Locate implements vision.Locator. The returned faces already carry embeddings.
func (w *PythonWorker) Locate(img image.Image) ([]types.Face, error) {
	data, err := encodeJPEG(img)
	if err != nil {
		return nil, err
	}
	return w.ProcessFrame(data)
}

// Extract implements vision.Extractor.
func (w *PythonWorker) Extract(img image.Image, box image.Rectangle) (types.Embedding, error) {
	data, err := encodeJPEG(img)
	if err != nil {
		return types.Embedding{}, err
	}
	return w.EncodeFace(data, box)
}

func (w *PythonWorker) call(op byte, box image.Rectangle, jpegData []byte) ([]types.Face, error) {
	req := new(bytes.Buffer)
	req.Grow(17 + len(jpegData))
	req.WriteByte(op)
	// face_recognition order: top, right, bottom, left
	binary.Write(req, binary.BigEndian, [4]int32{
		int32(box.Min.Y), int32(box.Max.X), int32(box.Max.Y), int32(box.Min.X),
	})
	req.Write(jpegData)

	w.mu.Lock()
	resp, err := w.Communicate(req.Bytes())
	w.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return decodeResponse(resp)
}

// decodeResponse parses [Status] then either
// [NumFaces] ([Box][Vec])... or [MsgLen][Msg].
func decodeResponse(resp []byte) ([]types.Face, error) {
	r := bytes.NewReader(resp)
	status, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("empty worker response")
	}

	if status == statusErr {
		var msgLen uint32
		if err := binary.Read(r, binary.BigEndian, &msgLen); err != nil {
			return nil, fmt.Errorf("python worker error: (unreadable message)")
		}
		msg := make([]byte, msgLen)
		if _, err := io.ReadFull(r, msg); err != nil {
			return nil, fmt.Errorf("python worker error: (truncated message)")
		}
		return nil, fmt.Errorf("python worker error: %s", msg)
	}
	if status != statusOK {
		return nil, fmt.Errorf("unknown worker status %d", status)
	}

	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, fmt.Errorf("read face count: %w", err)
	}
	faces := make([]types.Face, 0, n)
	for i := uint32(0); i < n; i++ {
		var loc [4]int32
		if err := binary.Read(r, binary.BigEndian, &loc); err != nil {
			return nil, fmt.Errorf("read face %d box: %w", i, err)
		}
		var emb types.Embedding
		if err := binary.Read(r, binary.BigEndian, &emb); err != nil {
			return nil, fmt.Errorf("read face %d embedding: %w", i, err)
		}
		top, right, bottom, left := int(loc[0]), int(loc[1]), int(loc[2]), int(loc[3])
		faces = append(faces, types.Face{
			Box:        image.Rect(left, top, right, bottom),
			Confidence: 1,
			Embedding:  &emb,
		})
	}
	return faces, nil
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return buf.Bytes(), nil
}

// Close shuts the worker down and reaps the process.
func (w *PythonWorker) Close() error {
	w.Stdin.Close()
	w.DataPipe.Close()
	if w.Cmd == nil {
		return nil
	}
	return w.Cmd.Wait()
}
