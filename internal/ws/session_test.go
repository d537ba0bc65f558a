package ws

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"signstream/internal/detector"
	"signstream/internal/gesture"
	"signstream/internal/pipeline"
	"signstream/internal/practice"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestServer starts the handler over httptest and dials it.
func newTestServer(t *testing.T, det detector.Detector, repo practice.Repository) *websocket.Conn {
	t.Helper()

	h := NewHandler(det, repo, Config{
		Gesture: gesture.Config{
			MotionThreshold:    0.02,
			PauseDuration:      300 * time.Millisecond,
			MinGestureDuration: 30 * time.Millisecond,
			BufferCapacity:     32,
		},
		Processor: pipeline.Config{FrameBudget: 33 * time.Millisecond, FrameTimeout: time.Second},
	}, testLogger(), nil)

	srv := httptest.NewServer(http.HandlerFunc(h.Serve))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readTyped reads messages until one with the wanted type arrives.
func readTyped(t *testing.T, conn *websocket.Conn, wantType string, out any) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	_ = conn.SetReadDeadline(deadline)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var probe struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &probe); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if probe.Type != wantType {
			continue
		}
		if err := json.Unmarshal(data, out); err != nil {
			t.Fatalf("unmarshal %s: %v", wantType, err)
		}
		return
	}
}

func sendJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func frameURI(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 16), G: uint8(y * 16), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("jpeg encode: %v", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestSession_pingPong(t *testing.T) {
	conn := newTestServer(t, detector.NewNullDetector(), practice.NewInMemoryRepository())

	sendJSON(t, conn, map[string]string{"type": "ping", "timestamp": wireTime(time.Now())})

	var pong Pong
	readTyped(t, conn, TypePong, &pong)
	if pong.Timestamp == "" {
		t.Error("pong should carry a timestamp")
	}
}

func TestSession_rawFrame_roundTripMetadata(t *testing.T) {
	conn := newTestServer(t, detector.NewNullDetector(), practice.NewInMemoryRepository())

	sendJSON(t, conn, Envelope{
		Type:      TypeRawFrame,
		FrameData: frameURI(t),
		Metadata:  &FrameMetadata{FrameNumber: 41, Timestamp: wireTime(time.Now())},
	})

	var pf ProcessedFrame
	readTyped(t, conn, TypeProcessedFrame, &pf)

	if pf.Metadata.ClientFrameNumber != 41 {
		t.Errorf("client_frame_number = %d, want 41", pf.Metadata.ClientFrameNumber)
	}
	if pf.Metadata.ServerFrameNumber != 1 {
		t.Errorf("server_frame_number = %d, want 1", pf.Metadata.ServerFrameNumber)
	}
	if !pf.Metadata.Success {
		t.Errorf("frame should process successfully: %s", pf.Metadata.Error)
	}
	if pf.FrameData == "" {
		t.Error("processed frame should carry the annotated frame data")
	}
}

func TestSession_rawFrame_malformedDegradesGracefully(t *testing.T) {
	conn := newTestServer(t, detector.NewNullDetector(), practice.NewInMemoryRepository())

	sendJSON(t, conn, Envelope{
		Type:      TypeRawFrame,
		FrameData: "data:image/jpeg;base64,not-real-base64!",
		Metadata:  &FrameMetadata{FrameNumber: 7},
	})

	var pf ProcessedFrame
	readTyped(t, conn, TypeProcessedFrame, &pf)

	if pf.Metadata.Success {
		t.Error("malformed frame should not succeed")
	}
	if pf.Metadata.Error == "" {
		t.Error("failed frame should carry an error reason")
	}
	want := detector.Presence{}
	if pf.Metadata.LandmarksDetected != want {
		t.Errorf("landmarks = %+v, want all false", pf.Metadata.LandmarksDetected)
	}
	if pf.Metadata.ClientFrameNumber != 7 {
		t.Errorf("client frame number should still round-trip, got %d", pf.Metadata.ClientFrameNumber)
	}

	// The connection survives; a ping still gets answered.
	sendJSON(t, conn, map[string]string{"type": "ping"})
	var pong Pong
	readTyped(t, conn, TypePong, &pong)
}

func TestSession_practiceFlow(t *testing.T) {
	conn := newTestServer(t, detector.NewNullDetector(), practice.NewInMemoryRepository())

	sendJSON(t, conn, Envelope{
		Type:           TypePracticeSessionStart,
		StorySentences: []string{"A.", "B.", "C."},
		SessionID:      "story-1",
	})

	var started ControlResponse
	readTyped(t, conn, TypePracticeSessionResponse, &started)
	if started.Action != "session_started" {
		t.Errorf("action = %s, want session_started", started.Action)
	}
	if !started.Result.Success || started.Result.CurrentSentence != "A." {
		t.Errorf("unexpected start result: %+v", started.Result)
	}
	if started.Result.PracticeMode != practice.ModeListening {
		t.Errorf("mode = %s, want listening", started.Result.PracticeMode)
	}

	next := func() *practice.ControlResult {
		sendJSON(t, conn, Envelope{Type: TypeControl, Action: practice.ActionNextSentence})
		var resp ControlResponse
		readTyped(t, conn, TypeControlResponse, &resp)
		return resp.Result
	}

	if r := next(); r.CurrentSentence != "B." || r.CurrentSentenceIndex != 1 {
		t.Errorf("after next: %+v, want B. at index 1", r)
	}
	if r := next(); r.CurrentSentenceIndex != 2 {
		t.Errorf("after second next: index %d, want 2", r.CurrentSentenceIndex)
	}
	if r := next(); r.PracticeMode != practice.ModeCompleted || r.CurrentSentenceIndex != 2 {
		t.Errorf("after third next: %+v, want completed at index 2", r)
	}
}

func TestSession_startSessionAlias(t *testing.T) {
	conn := newTestServer(t, detector.NewNullDetector(), practice.NewInMemoryRepository())

	payload, _ := json.Marshal(map[string]any{
		"story_sentences": []string{"X."},
		"session_id":      "alias-1",
	})
	sendJSON(t, conn, Envelope{Type: TypeControl, Action: practice.ActionStartSession, Data: payload})

	var started ControlResponse
	readTyped(t, conn, TypePracticeSessionResponse, &started)
	if !started.Result.Success || started.Result.SessionID != "alias-1" {
		t.Errorf("alias start failed: %+v", started.Result)
	}
}

func TestSession_emptySentencesRejected(t *testing.T) {
	conn := newTestServer(t, detector.NewNullDetector(), practice.NewInMemoryRepository())

	sendJSON(t, conn, Envelope{Type: TypePracticeSessionStart, SessionID: "empty"})

	var started ControlResponse
	readTyped(t, conn, TypePracticeSessionResponse, &started)
	if started.Result.Success {
		t.Error("empty sentence list should be rejected")
	}

	// No session was created: control actions fail.
	sendJSON(t, conn, Envelope{Type: TypeControl, Action: practice.ActionNextSentence})
	var resp ControlResponse
	readTyped(t, conn, TypeControlResponse, &resp)
	if resp.Result.Success {
		t.Error("control without a session should fail")
	}
}

func TestSession_bogusActionPreservesState(t *testing.T) {
	conn := newTestServer(t, detector.NewNullDetector(), practice.NewInMemoryRepository())

	sendJSON(t, conn, Envelope{Type: TypePracticeSessionStart, StorySentences: []string{"A.", "B."}, SessionID: "s"})
	var started ControlResponse
	readTyped(t, conn, TypePracticeSessionResponse, &started)

	sendJSON(t, conn, Envelope{Type: TypeControl, Action: "bogus"})
	var bogus ControlResponse
	readTyped(t, conn, TypeControlResponse, &bogus)
	if bogus.Result.Success {
		t.Error("bogus action should fail")
	}

	// State is unchanged: try_again succeeds at the same index and mode.
	sendJSON(t, conn, Envelope{Type: TypeControl, Action: practice.ActionTryAgain})
	var after ControlResponse
	readTyped(t, conn, TypeControlResponse, &after)
	if after.Result.CurrentSentenceIndex != 0 || after.Result.PracticeMode != practice.ModeListening {
		t.Errorf("state changed by bogus action: %+v", after.Result)
	}
}

func TestSession_unknownTypeKeepsConnectionOpen(t *testing.T) {
	conn := newTestServer(t, detector.NewNullDetector(), practice.NewInMemoryRepository())

	sendJSON(t, conn, map[string]string{"type": "telepathy"})
	var errMsg ErrorMessage
	readTyped(t, conn, TypeError, &errMsg)
	if !strings.Contains(errMsg.Message, "telepathy") {
		t.Errorf("error should name the unknown type: %q", errMsg.Message)
	}

	sendJSON(t, conn, map[string]string{"type": "ping"})
	var pong Pong
	readTyped(t, conn, TypePong, &pong)
}

func TestSession_malformedJSONAnswered(t *testing.T) {
	conn := newTestServer(t, detector.NewNullDetector(), practice.NewInMemoryRepository())

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	var errMsg ErrorMessage
	readTyped(t, conn, TypeError, &errMsg)
	if errMsg.Message == "" {
		t.Error("malformed envelope should be answered with a reason")
	}
}

func TestSession_summaryPersistedOnDisconnect(t *testing.T) {
	repo := practice.NewInMemoryRepository()
	conn := newTestServer(t, detector.NewNullDetector(), repo)

	sendJSON(t, conn, Envelope{Type: TypePracticeSessionStart, StorySentences: []string{"A."}, SessionID: "gone"})
	var started ControlResponse
	readTyped(t, conn, TypePracticeSessionResponse, &started)

	conn.Close()

	// The server persists the summary asynchronously on teardown.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := repo.GetSummary("gone"); ok {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("summary not persisted after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSession_everyFrameAnswered(t *testing.T) {
	// Sequential request/response: every submitted frame gets exactly one
	// processed_frame back, echoing its number.
	conn := newTestServer(t, detector.NewNullDetector(), practice.NewInMemoryRepository())
	uri := frameURI(t)

	for i := int64(1); i <= 5; i++ {
		sendJSON(t, conn, Envelope{
			Type:      TypeRawFrame,
			FrameData: uri,
			Metadata:  &FrameMetadata{FrameNumber: i * 100},
		})
		var pf ProcessedFrame
		readTyped(t, conn, TypeProcessedFrame, &pf)
		if pf.Metadata.ClientFrameNumber != i*100 {
			t.Fatalf("frame %d echoed as %d", i*100, pf.Metadata.ClientFrameNumber)
		}
	}
}
