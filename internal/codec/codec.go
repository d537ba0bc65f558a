// Package codec decodes inbound data-URI camera frames and re-encodes
// annotated output frames with adaptive quality.
package codec

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"strings"
	"time"

	"golang.org/x/image/draw"

	_ "image/png" // register PNG decoder for clients that send PNG frames
)

// Default encoder settings.
const (
	DefaultQuality          = 80
	MinQuality              = 10
	QualityDecay            = 0.9
	DefaultMaxBytes         = 256 * 1024
	DefaultMaxAttempts      = 6
	DefaultDownsampleFactor = 0.75
)

// dataURISeparator splits a data URI; everything before the comma is the
// scheme and media type.
const dataURISeparator = ","

// DecodeError reports an undecodable inbound frame.
type DecodeError struct {
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode frame: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decode frame: %s", e.Reason)
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError reports a failed re-encode.
type EncodeError struct {
	Err error
}

// Error implements the error interface.
func (e *EncodeError) Error() string { return fmt.Sprintf("encode frame: %v", e.Err) }

// Unwrap returns the underlying error.
func (e *EncodeError) Unwrap() error { return e.Err }

// DecodeDataURI strips the data-URI scheme prefix, base64-decodes the
// payload, and decodes the resulting image bytes. Raw base64 without a
// scheme prefix is accepted as well.
func DecodeDataURI(data string) (image.Image, error) {
	if data == "" {
		return nil, &DecodeError{Reason: "empty frame data"}
	}

	payload := data
	if strings.HasPrefix(data, "data:") {
		idx := strings.Index(data, dataURISeparator)
		if idx < 0 {
			return nil, &DecodeError{Reason: "malformed data URI"}
		}
		payload = data[idx+1:]
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, &DecodeError{Reason: "invalid base64", Err: err}
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, &DecodeError{Reason: "unsupported image data", Err: err}
	}
	return img, nil
}

// Config configures the adaptive encoder.
type Config struct {
	// Quality is the starting JPEG quality (1-100). Default: DefaultQuality.
	Quality int

	// MinQuality is the quality floor before downsampling kicks in.
	MinQuality int

	// MaxBytes is the target ceiling for the encoded size (0 = no limit).
	MaxBytes int

	// MaxAttempts bounds the quality-decay/downsample retry loop.
	MaxAttempts int

	// DownsampleFactor scales image dimensions once quality bottoms out.
	DownsampleFactor float64
}

// DefaultConfig returns the default encoder configuration.
func DefaultConfig() Config {
	return Config{
		Quality:          DefaultQuality,
		MinQuality:       MinQuality,
		MaxBytes:         DefaultMaxBytes,
		MaxAttempts:      DefaultMaxAttempts,
		DownsampleFactor: DefaultDownsampleFactor,
	}
}

// Metrics describes one encode call. Informational only; nothing outside
// the encoder changes behavior based on these.
type Metrics struct {
	Duration         time.Duration `json:"-"`
	DurationMS       float64       `json:"encode_time_ms"`
	OriginalBytes    int           `json:"original_bytes"`
	CompressedBytes  int           `json:"compressed_bytes"`
	CompressionRatio float64       `json:"compression_ratio"`
	FinalQuality     int           `json:"final_quality"`
	Format           string        `json:"format"`
	Width            int           `json:"width"`
	Height           int           `json:"height"`

	// LimitExceeded is set when the retry budget ran out before the size
	// ceiling was met; the data is the best effort achieved.
	LimitExceeded bool `json:"limit_exceeded,omitempty"`
}

// EncodeResult is the output of one adaptive encode.
type EncodeResult struct {
	Data    []byte
	Metrics Metrics
}

// Encoder re-encodes annotated frames as JPEG, decaying quality and then
// downsampling until the configured byte ceiling is met or the attempt
// budget runs out.
type Encoder struct {
	cfg Config
}

// NewEncoder returns an Encoder with the given configuration; zero-value
// fields fall back to defaults.
func NewEncoder(cfg Config) *Encoder {
	def := DefaultConfig()
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = def.Quality
	}
	if cfg.MinQuality <= 0 {
		cfg.MinQuality = def.MinQuality
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.DownsampleFactor <= 0 || cfg.DownsampleFactor >= 1 {
		cfg.DownsampleFactor = def.DownsampleFactor
	}
	return &Encoder{cfg: cfg}
}

// Encode encodes img, reporting compression metrics alongside the bytes.
func (e *Encoder) Encode(img image.Image) (*EncodeResult, error) {
	start := time.Now()

	bounds := img.Bounds()
	originalBytes := bounds.Dx() * bounds.Dy() * 3 // decoded RGB estimate

	quality := e.cfg.Quality
	current := img
	var encoded []byte
	limitExceeded := false

	for attempt := 0; ; attempt++ {
		var err error
		encoded, err = encodeJPEG(current, quality)
		if err != nil {
			return nil, &EncodeError{Err: err}
		}

		if e.cfg.MaxBytes <= 0 || len(encoded) <= e.cfg.MaxBytes {
			break
		}
		if attempt+1 >= e.cfg.MaxAttempts {
			limitExceeded = true
			break
		}

		if quality > e.cfg.MinQuality {
			quality = int(float64(quality) * QualityDecay)
			if quality < e.cfg.MinQuality {
				quality = e.cfg.MinQuality
			}
			continue
		}

		// Quality is at the floor; shrink the frame instead.
		current = downsample(current, e.cfg.DownsampleFactor)
	}

	finalBounds := current.Bounds()
	dur := time.Since(start)
	m := Metrics{
		Duration:        dur,
		DurationMS:      float64(dur.Microseconds()) / 1000.0,
		OriginalBytes:   originalBytes,
		CompressedBytes: len(encoded),
		FinalQuality:    quality,
		Format:          "jpeg",
		Width:           finalBounds.Dx(),
		Height:          finalBounds.Dy(),
		LimitExceeded:   limitExceeded,
	}
	if len(encoded) > 0 {
		m.CompressionRatio = float64(originalBytes) / float64(len(encoded))
	}

	return &EncodeResult{Data: encoded, Metrics: m}, nil
}

// EncodeDataURI wraps the encoded bytes back into a base64 data URI for the
// wire protocol.
func EncodeDataURI(res *EncodeResult) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(res.Data)
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// downsample scales img dimensions by factor using CatmullRom resampling.
func downsample(img image.Image, factor float64) image.Image {
	bounds := img.Bounds()
	w := int(float64(bounds.Dx()) * factor)
	h := int(float64(bounds.Dy()) * factor)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}
