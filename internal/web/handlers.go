package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strings"

	"github.com/andresmejia3/faceroll/internal/matcher"
	"github.com/andresmejia3/faceroll/internal/types"
	"github.com/andresmejia3/faceroll/internal/vision"
)

const indexHTML = `<html>
<head>
    <title>Is this a picture of %[1]s?</title>
</head>
<body>
    <h1>Upload a picture and see if it's a picture of %[1]s!</h1>
    <form action="/uploadfile/" enctype="multipart/form-data" method="post">
        <input name="file" type="file">
        <input type="submit">
    </form>
</body>
</html>
`

var allowedExtensions = map[string]bool{"png": true, "jpg": true, "jpeg": true, "gif": true}

// Recognizer is satisfied by *vision.Analyzer.
type Recognizer interface {
	First(img image.Image) (types.Face, types.Embedding, error)
	Analyze(img image.Image) ([]vision.Detection, error)
}

// GalleryView is the read side of *gallery.Gallery.
type GalleryView interface {
	Entries() []types.GalleryEntry
}

// Handlers holds the dependencies of every endpoint.
type Handlers struct {
	Recognizer    Recognizer
	Gallery       GalleryView
	Reference     types.Embedding
	ReferenceName string
	Matcher       *matcher.Matcher
	MaxUpload     int64
}

// UploadResponse is the result of POST /uploadfile/.
type UploadResponse struct {
	FaceFoundInImage bool `json:"face_found_in_image"`
	IsPictureOfObama bool `json:"is_picture_of_obama"`
}

type identifiedFace struct {
	Box      [4]int  `json:"box"` // left, top, right, bottom
	Name     string  `json:"name"`
	Known    bool    `json:"known"`
	Distance float64 `json:"distance,omitempty"`
}

type galleryEntry struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"detail": message})
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Index serves the upload form.
func (h *Handlers) Index(w http.ResponseWriter, r *http.Request) {
	name := h.ReferenceName
	if name == "" {
		name = "Obama"
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, indexHTML, html.EscapeString(name))
}

// allowedFile accepts names whose last extension is an allowed image type.
func allowedFile(filename string) bool {
	i := strings.LastIndex(filename, ".")
	if i < 0 {
		return false
	}
	return allowedExtensions[strings.ToLower(filename[i+1:])]
}

// readUpload parses the multipart form and decodes the "file" field. It
// writes the error response itself and returns nil on failure.
func (h *Handlers) readUpload(w http.ResponseWriter, r *http.Request) image.Image {
	max := h.MaxUpload
	if max <= 0 {
		max = 32 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, max)
	if err := r.ParseMultipartForm(max); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return nil
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "file is required")
		return nil
	}
	defer file.Close()

	// checked before any decoding or detection
	if !allowedFile(header.Filename) {
		respondError(w, http.StatusBadRequest, "Invalid file format")
		return nil
	}

	img, _, err := image.Decode(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "could not decode image")
		return nil
	}
	return img
}

// UploadFile compares the first face of the upload with the reference identity.
func (h *Handlers) UploadFile(w http.ResponseWriter, r *http.Request) {
	img := h.readUpload(w, r)
	if img == nil {
		return
	}

	_, emb, err := h.Recognizer.First(img)
	if errors.Is(err, types.ErrNoFaceDetected) {
		respondJSON(w, http.StatusOK, UploadResponse{})
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "face analysis failed")
		return
	}

	m := h.Matcher
	if m == nil {
		m = matcher.New(matcher.DefaultThreshold)
	}
	match := m.Compare([]types.Embedding{h.Reference}, emb)[0]
	respondJSON(w, http.StatusOK, UploadResponse{FaceFoundInImage: true, IsPictureOfObama: match})
}

// Identify labels every face in the upload against the gallery.
func (h *Handlers) Identify(w http.ResponseWriter, r *http.Request) {
	img := h.readUpload(w, r)
	if img == nil {
		return
	}

	dets, err := h.Recognizer.Analyze(img)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "face analysis failed")
		return
	}

	b := img.Bounds()
	faces := make([]identifiedFace, 0, len(dets))
	for _, d := range dets {
		box := d.Box.Sub(b.Min)
		faces = append(faces, identifiedFace{
			Box:      [4]int{box.Min.X, box.Min.Y, box.Max.X, box.Max.Y},
			Name:     d.Match.Label(),
			Known:    d.Match.Known,
			Distance: d.Match.Distance,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"faces": faces})
}

// ListGallery lists enrolled identities in enrollment order.
func (h *Handlers) ListGallery(w http.ResponseWriter, r *http.Request) {
	entries := h.Gallery.Entries()
	out := make([]galleryEntry, len(entries))
	for i, e := range entries {
		out[i] = galleryEntry{Index: i, Name: e.Name}
	}
	respondJSON(w, http.StatusOK, map[string]any{"count": len(out), "entries": out})
}
