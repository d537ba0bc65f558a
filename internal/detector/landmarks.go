// Package detector provides landmark detection interfaces and types for
// sign gesture recognition. The detection model itself is an external
// collaborator; this package defines the narrow contract the pipeline
// consumes.
package detector

import "math"

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21
)

// Point3D represents a 3D point in space with x, y, z coordinates.
// Coordinates are normalized to the frame: x and y in [0, 1], z relative
// depth with the wrist as reference.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// HandLandmarks represents the 21 hand landmarks detected per hand.
type HandLandmarks struct {
	Points     [NumLandmarks]Point3D `json:"points"`
	Handedness string                `json:"handedness"` // "Left" or "Right"
	Score      float64               `json:"score"`
}

// FaceLandmarks holds the face keypoints for one detected face.
type FaceLandmarks struct {
	Points []Point3D `json:"points"`
	Score  float64   `json:"score"`
}

// PoseLandmarks holds the body pose keypoints.
type PoseLandmarks struct {
	Points []Point3D `json:"points"`
	Score  float64   `json:"score"`
}

// Presence records which landmark groups were detected in a frame.
type Presence struct {
	Hands bool `json:"hands"`
	Face  bool `json:"face"`
	Pose  bool `json:"pose"`
}

// Count returns the number of landmark groups present.
func (p Presence) Count() int {
	n := 0
	if p.Hands {
		n++
	}
	if p.Face {
		n++
	}
	if p.Pose {
		n++
	}
	return n
}

// Result is the full output of one detection pass over a frame.
// It is produced by a Detector, consumed by the pipeline, and discarded;
// nothing in this subsystem retains it past the frame.
type Result struct {
	Presence Presence        `json:"presence"`
	Hands    []HandLandmarks `json:"hands,omitempty"`
	Face     *FaceLandmarks  `json:"face,omitempty"`
	Pose     *PoseLandmarks  `json:"pose,omitempty"`
}

// distance3D calculates the Euclidean distance between two 3D points.
func distance3D(a, b Point3D) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	dz := a.Z - b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Normalize normalizes the hand landmarks relative to wrist position and
// hand size. The normalized landmarks have the wrist at origin (0,0,0) and
// are scaled so that the distance from wrist to middle finger MCP is 1.0.
// Returns a new HandLandmarks instance with normalized points.
func (h *HandLandmarks) Normalize() *HandLandmarks {
	if h == nil {
		return nil
	}

	normalized := &HandLandmarks{
		Handedness: h.Handedness,
		Score:      h.Score,
	}

	wrist := h.Points[Wrist]
	for i := 0; i < NumLandmarks; i++ {
		normalized.Points[i] = Point3D{
			X: h.Points[i].X - wrist.X,
			Y: h.Points[i].Y - wrist.Y,
			Z: h.Points[i].Z - wrist.Z,
		}
	}

	scale := distance3D(Point3D{}, normalized.Points[MiddleMCP])
	if scale < 1e-10 {
		return normalized
	}

	for i := 0; i < NumLandmarks; i++ {
		normalized.Points[i].X /= scale
		normalized.Points[i].Y /= scale
		normalized.Points[i].Z /= scale
	}

	return normalized
}

// HandDisplacement returns the wrist displacement between two detection
// results, used by the gesture detector as its motion signal. If either
// result has no hands, the displacement is 0. When both hands are present
// the larger displacement wins, so one still hand never masks the other
// hand signing.
func HandDisplacement(prev, cur *Result) float64 {
	if prev == nil || cur == nil || len(prev.Hands) == 0 || len(cur.Hands) == 0 {
		return 0
	}

	max := 0.0
	for i := range cur.Hands {
		if i >= len(prev.Hands) {
			break
		}
		d := distance3D(prev.Hands[i].Points[Wrist], cur.Hands[i].Points[Wrist])
		if d > max {
			max = d
		}
	}
	return max
}
