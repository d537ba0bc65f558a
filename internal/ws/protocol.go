// Package ws implements the per-connection WebSocket session protocol:
// JSON envelopes carrying camera frames and practice-session control
// messages in, processed frames and structured responses out.
package ws

import (
	"encoding/json"
	"fmt"
	"time"

	"signstream/internal/detector"
	"signstream/internal/pipeline"
	"signstream/internal/practice"
)

// Inbound message types.
const (
	TypeRawFrame             = "raw_frame"
	TypeControl              = "control"
	TypePracticeSessionStart = "practice_session_start"
	TypePing                 = "ping"
)

// Outbound message types.
const (
	TypeProcessedFrame          = "processed_frame"
	TypeControlResponse         = "control_response"
	TypePracticeSessionResponse = "practice_session_response"
	TypePong                    = "pong"
	TypeError                   = "error"
)

// ProtocolError reports an unknown message type or a malformed envelope.
// It is answered with an error message; the connection stays open.
type ProtocolError struct {
	Reason string
}

// Error implements the error interface.
func (e *ProtocolError) Error() string { return fmt.Sprintf("protocol: %s", e.Reason) }

// Envelope is the inbound message shape; Type discriminates which of the
// remaining fields are meaningful.
type Envelope struct {
	Type string `json:"type"`

	// raw_frame
	FrameData string         `json:"frame_data,omitempty"`
	Metadata  *FrameMetadata `json:"metadata,omitempty"`

	// control
	Action string          `json:"action,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`

	// practice_session_start
	StorySentences []string `json:"story_sentences,omitempty"`
	SessionID      string   `json:"session_id,omitempty"`

	// ping
	Timestamp string `json:"timestamp,omitempty"`
}

// FrameMetadata is the client-supplied metadata on a raw_frame message.
type FrameMetadata struct {
	FrameNumber int64  `json:"frame_number"`
	Timestamp   string `json:"timestamp,omitempty"`
}

// startPayload is the control-data payload for the start_session alias.
type startPayload struct {
	StorySentences []string `json:"story_sentences"`
	SessionID      string   `json:"session_id"`
}

// ProcessedMetadata is the metadata block on a processed_frame response.
type ProcessedMetadata struct {
	ServerFrameNumber   int64                   `json:"server_frame_number"`
	ClientFrameNumber   int64                   `json:"client_frame_number"`
	ProcessingTimeMS    float64                 `json:"processing_time_ms"`
	TotalPipelineTimeMS float64                 `json:"total_pipeline_time_ms"`
	LandmarksDetected   detector.Presence       `json:"landmarks_detected"`
	QualityMetrics      pipeline.QualityMetrics `json:"quality_metrics"`
	Success             bool                    `json:"success"`
	Error               string                  `json:"error,omitempty"`
	GestureCompleted    bool                    `json:"gesture_completed,omitempty"`
	PracticeMode        practice.Mode           `json:"practice_mode,omitempty"`
}

// ProcessedFrame is the response to a raw_frame message.
type ProcessedFrame struct {
	Type      string            `json:"type"`
	Timestamp string            `json:"timestamp"`
	FrameData string            `json:"frame_data,omitempty"`
	Metadata  ProcessedMetadata `json:"metadata"`
}

// ControlResponse is the response to a control message.
type ControlResponse struct {
	Type   string                  `json:"type"`
	Action string                  `json:"action"`
	Result *practice.ControlResult `json:"result"`
}

// Pong is the response to a ping.
type Pong struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

// ErrorMessage reports a protocol-level failure to the client.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// wireTime formats a timestamp for the wire protocol.
func wireTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseWireTime parses a client ISO8601 timestamp, tolerating the common
// variants; the zero time is returned for anything unparseable.
func parseWireTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999999"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
