package types

import "image"

// EmbeddingDim is the length of a dlib / face_recognition face encoding.
const EmbeddingDim = 128

// Embedding is the opaque identity vector produced by a recognizer backend.
type Embedding [EmbeddingDim]float32

// FromFloat64 narrows a float64 encoding (numpy output, config constants).
// It fails if the slice does not hold exactly EmbeddingDim values.
func FromFloat64(vec []float64) (Embedding, error) {
	var e Embedding
	if len(vec) != EmbeddingDim {
		return e, &ValidationError{Field: "embedding", Reason: dimReason(len(vec))}
	}
	for i, v := range vec {
		e[i] = float32(v)
	}
	return e, nil
}

// Float64 widens the embedding, mostly for printing.
func (e Embedding) Float64() []float64 {
	out := make([]float64, EmbeddingDim)
	for i, v := range e {
		out[i] = float64(v)
	}
	return out
}

// GalleryEntry is one enrolled identity.
type GalleryEntry struct {
	Name      string
	Embedding Embedding
}

// Face is a located face. Embedding stays nil until a recognizer fills it in.
type Face struct {
	Box        image.Rectangle
	Confidence float32
	Embedding  *Embedding
}

// FrameTask represents a single frame sent to a worker for processing
type FrameTask struct {
	Index int
	Data  []byte
}
