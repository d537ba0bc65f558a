package detector

import (
	"context"
	"image"
)

// NullDetector is a Detector that never detects anything. It is selected at
// startup when no landmark service is configured or reachable, keeping the
// rest of the pipeline exercisable without the external model.
type NullDetector struct{}

// NewNullDetector returns a detector that reports no landmarks.
func NewNullDetector() *NullDetector {
	return &NullDetector{}
}

// Detect implements Detector. It always returns an empty result and never
// fails.
func (d *NullDetector) Detect(_ context.Context, _ image.Image) (*Result, error) {
	return &Result{}, nil
}

// Close implements Detector.
func (d *NullDetector) Close() error { return nil }
