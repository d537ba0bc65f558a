package detector

import (
	"context"
	"fmt"
	"image"
)

// Detector is the interface for landmark detection implementations.
// Implementations must be safe for concurrent calls from multiple
// connection loops, or each connection must own its own instance.
type Detector interface {
	// Detect analyzes a video frame and returns the detected landmarks.
	// The returned Result always carries a Presence record; absent groups
	// are simply false. ctx bounds the call and cancels it when the owning
	// connection closes.
	Detect(ctx context.Context, frame image.Image) (*Result, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for landmark detection.
type Config struct {
	// MaxHands is the maximum number of hands to detect (default: 2).
	MaxHands int

	// MinConfidence is the minimum detection confidence threshold (0.0-1.0).
	MinConfidence float64

	// MinTrackingConf is the minimum tracking confidence threshold (0.0-1.0).
	MinTrackingConf float64
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MaxHands:        2,
		MinConfidence:   0.5,
		MinTrackingConf: 0.5,
	}
}

// ServiceError reports a failure of the external landmark service. The
// pipeline converts it into a failed frame result rather than letting it
// propagate.
type ServiceError struct {
	Err error
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	return fmt.Sprintf("landmark service: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *ServiceError) Unwrap() error { return e.Err }
