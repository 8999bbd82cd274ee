// Package config loads faceroll settings from YAML, .env and FACEROLL_* variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/andresmejia3/faceroll/internal/matcher"
	"github.com/andresmejia3/faceroll/internal/types"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when --config is not given. Its absence is not an error.
const DefaultPath = "faceroll.yaml"

type Config struct {
	Gallery    GalleryConfig    `yaml:"gallery"`
	Matching   MatchingConfig   `yaml:"matching"`
	Capture    CaptureConfig    `yaml:"capture"`
	Detector   DetectorConfig   `yaml:"detector"`
	Recognizer RecognizerConfig `yaml:"recognizer"`
	Server     ServerConfig     `yaml:"server"`
	Reference  ReferenceConfig  `yaml:"reference"`
	Log        LogConfig        `yaml:"log"`
}

type GalleryConfig struct {
	Backend     string `yaml:"backend"` // file or postgres
	Path        string `yaml:"path"`
	DatabaseURL string `yaml:"database_url"`
}

type MatchingConfig struct {
	Threshold float64 `yaml:"threshold"`
}

type CaptureConfig struct {
	Kind     string        `yaml:"kind"`   // opencv, v4l2 or ffmpeg
	Device   string        `yaml:"device"` // camera index, /dev/videoN or a video file
	Width    int           `yaml:"width"`
	Height   int           `yaml:"height"`
	Interval time.Duration `yaml:"interval"` // delay between detection cycles
	Dir      string        `yaml:"dir"`      // where photo.png and captured_face.png go
}

type DetectorConfig struct {
	Kind       string  `yaml:"kind"` // ssd, haar, dlib or python
	Prototxt   string  `yaml:"prototxt"`
	Weights    string  `yaml:"weights"`
	Cascade    string  `yaml:"cascade"`
	Confidence float64 `yaml:"confidence"`
	MinSize    int     `yaml:"min_size"`
}

type RecognizerConfig struct {
	Kind      string `yaml:"kind"` // dlib or python
	ModelsDir string `yaml:"models_dir"`
	Python    string `yaml:"python"`
	Script    string `yaml:"script"`
	Model     string `yaml:"model"` // hog or cnn, python only
}

type ServerConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	MaxUpload int64  `yaml:"max_upload"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ReferenceConfig is the single identity the upload endpoint compares against.
type ReferenceConfig struct {
	Name     string    `yaml:"name"`
	Encoding []float64 `yaml:"encoding"`
}

// Embedding converts the configured encoding.
func (r ReferenceConfig) Embedding() (types.Embedding, error) {
	return types.FromFloat64(r.Encoding)
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// Load reads path (DefaultPath when empty), then a .env file and FACEROLL_*
// variables, and finally fills defaults.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	_ = godotenv.Load()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	return cfg, nil
}

// Default returns a configuration with every default filled in.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

func (c *Config) setDefaults() {
	if c.Gallery.Backend == "" {
		c.Gallery.Backend = "file"
	}
	if c.Gallery.Path == "" {
		c.Gallery.Path = "known_faces.gob"
	}
	if c.Matching.Threshold == 0 {
		c.Matching.Threshold = matcher.DefaultThreshold
	}
	if c.Capture.Kind == "" {
		c.Capture.Kind = "opencv"
	}
	if c.Capture.Device == "" {
		c.Capture.Device = "0"
	}
	if c.Capture.Width == 0 {
		c.Capture.Width = 640
	}
	if c.Capture.Height == 0 {
		c.Capture.Height = 480
	}
	if c.Capture.Interval == 0 {
		c.Capture.Interval = 10 * time.Millisecond
	}
	if c.Capture.Dir == "" {
		c.Capture.Dir = "captured_photos"
	}
	if c.Detector.Kind == "" {
		c.Detector.Kind = "dlib"
	}
	if c.Detector.Prototxt == "" {
		c.Detector.Prototxt = "deploy.prototxt.txt"
	}
	if c.Detector.Weights == "" {
		c.Detector.Weights = "res10_300x300_ssd_iter_140000.caffemodel"
	}
	if c.Detector.Cascade == "" {
		c.Detector.Cascade = "haarcascade_frontalface_default.xml"
	}
	if c.Detector.Confidence == 0 {
		c.Detector.Confidence = 0.5
	}
	if c.Recognizer.Kind == "" {
		c.Recognizer.Kind = "dlib"
	}
	if c.Recognizer.ModelsDir == "" {
		c.Recognizer.ModelsDir = "models"
	}
	if c.Recognizer.Python == "" {
		c.Recognizer.Python = "python3"
	}
	if c.Recognizer.Script == "" {
		c.Recognizer.Script = "python/worker.py"
	}
	if c.Recognizer.Model == "" {
		c.Recognizer.Model = "hog"
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 5001
	}
	if c.Server.MaxUpload == 0 {
		c.Server.MaxUpload = 32 << 20
	}
	if c.Reference.Name == "" && len(c.Reference.Encoding) == 0 {
		c.Reference.Name = "Barack Obama"
		c.Reference.Encoding = append([]float64(nil), obamaEncoding...)
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

type envVar struct {
	key string
	set func(string) error
}

func applyEnv(c *Config) error {
	vars := []envVar{
		{"FACEROLL_GALLERY_BACKEND", str(&c.Gallery.Backend)},
		{"FACEROLL_GALLERY_PATH", str(&c.Gallery.Path)},
		{"FACEROLL_DATABASE_URL", str(&c.Gallery.DatabaseURL)},
		{"FACEROLL_THRESHOLD", float(&c.Matching.Threshold)},
		{"FACEROLL_CAPTURE_KIND", str(&c.Capture.Kind)},
		{"FACEROLL_CAPTURE_DEVICE", str(&c.Capture.Device)},
		{"FACEROLL_CAPTURE_DIR", str(&c.Capture.Dir)},
		{"FACEROLL_CAPTURE_INTERVAL", duration(&c.Capture.Interval)},
		{"FACEROLL_DETECTOR", str(&c.Detector.Kind)},
		{"FACEROLL_DETECTOR_CONFIDENCE", float(&c.Detector.Confidence)},
		{"FACEROLL_RECOGNIZER", str(&c.Recognizer.Kind)},
		{"FACEROLL_MODELS_DIR", str(&c.Recognizer.ModelsDir)},
		{"FACEROLL_SERVER_HOST", str(&c.Server.Host)},
		{"FACEROLL_SERVER_PORT", integer(&c.Server.Port)},
		{"FACEROLL_LOG_LEVEL", str(&c.Log.Level)},
		{"FACEROLL_LOG_FORMAT", str(&c.Log.Format)},
	}
	for _, v := range vars {
		s, ok := os.LookupEnv(v.key)
		if !ok || s == "" {
			continue
		}
		if err := v.set(s); err != nil {
			return fmt.Errorf("%s: %w", v.key, err)
		}
	}
	return nil
}

func str(dst *string) func(string) error {
	return func(s string) error { *dst = s; return nil }
}

func float(dst *float64) func(string) error {
	return func(s string) error {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*dst = f
		return nil
	}
}

func integer(dst *int) func(string) error {
	return func(s string) error {
		n, err := strconv.Atoi(s)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func duration(dst *time.Duration) func(string) error {
	return func(s string) error {
		d, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*dst = d
		return nil
	}
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if strings.EqualFold(value, a) {
			return nil
		}
	}
	return &types.ValidationError{
		Field:  field,
		Reason: fmt.Sprintf("%q is not one of %s", value, strings.Join(allowed, ", ")),
	}
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if c.Matching.Threshold <= 0 || c.Matching.Threshold > 2 {
		return &types.ValidationError{Field: "matching.threshold", Reason: fmt.Sprintf("must be in (0, 2], got %g", c.Matching.Threshold)}
	}
	if c.Detector.Confidence <= 0 || c.Detector.Confidence >= 1 {
		return &types.ValidationError{Field: "detector.confidence", Reason: fmt.Sprintf("must be in (0, 1), got %g", c.Detector.Confidence)}
	}
	if c.Capture.Interval < 0 {
		return &types.ValidationError{Field: "capture.interval", Reason: "must not be negative"}
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return &types.ValidationError{Field: "server.port", Reason: fmt.Sprintf("out of range: %d", c.Server.Port)}
	}
	checks := []error{
		oneOf("gallery.backend", c.Gallery.Backend, "file", "postgres"),
		oneOf("capture.kind", c.Capture.Kind, "opencv", "v4l2", "ffmpeg"),
		oneOf("detector.kind", c.Detector.Kind, "ssd", "haar", "dlib", "python"),
		oneOf("recognizer.kind", c.Recognizer.Kind, "dlib", "python"),
		oneOf("log.format", c.Log.Format, "text", "json"),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	if c.Gallery.Backend == "postgres" && c.Gallery.DatabaseURL == "" {
		return &types.ValidationError{Field: "gallery.database_url", Reason: "required for the postgres backend"}
	}
	if _, err := c.Reference.Embedding(); err != nil {
		return err
	}
	return nil
}

// obamaEncoding is the face_recognition encoding of the stock Obama photo.
var obamaEncoding = []float64{
	-0.09634063, 0.12095481, -0.00436332, -0.07643753, 0.0080383,
	0.01902981, -0.07184699, -0.09383309, 0.18518871, -0.09588896,
	0.23951106, 0.0986533, -0.22114635, -0.1363683, 0.04405268,
	0.11574756, -0.19899382, -0.09597053, -0.11969153, -0.12277931,
	0.03416885, -0.00267565, 0.09203379, 0.04713435, -0.12731361,
	-0.35371891, -0.0503444, -0.17841317, -0.00310897, -0.09844551,
	-0.06910533, -0.00503746, -0.18466514, -0.09851682, 0.02903969,
	-0.02174894, 0.02261871, 0.0032102, 0.20312519, 0.02999607,
	-0.11646006, 0.09432904, 0.02774341, 0.22102901, 0.26725179,
	0.06896867, -0.00490024, -0.09441824, 0.11115381, -0.22592428,
	0.06230862, 0.16559327, 0.06232892, 0.03458837, 0.09459756,
	-0.18777156, 0.00654241, 0.08582542, -0.13578284, 0.0150229,
	0.00670836, -0.08195844, -0.04346499, 0.03347827, 0.20310158,
	0.09987706, -0.12370517, -0.06683611, 0.12704916, -0.02160804,
	0.00984683, 0.00766284, -0.18980607, -0.19641446, -0.22800779,
	0.09010898, 0.39178532, 0.18818057, -0.20875394, 0.03097027,
	-0.21300618, 0.02532415, 0.07938635, 0.01000703, -0.07719778,
	-0.12651891, -0.04318593, 0.06219772, 0.09163868, 0.05039065,
	-0.04922386, 0.21839413, -0.02394437, 0.06173781, 0.0292527,
	0.06160797, -0.15553983, -0.02440624, -0.17509389, -0.0630486,
	0.01428208, -0.03637431, 0.03971229, 0.13983178, -0.23006812,
	0.04999552, 0.0108454, -0.03970895, 0.02501768, 0.08157793,
	-0.03224047, -0.04502571, 0.0556995, -0.24374914, 0.25514284,
	0.24795187, 0.04060191, 0.17597422, 0.07966681, 0.01920104,
	-0.01194376, -0.02300822, -0.17204897, -0.0596558, 0.05307484,
	0.07417042, 0.07126575, 0.00209804,
}
