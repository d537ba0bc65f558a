package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"log/slog"
	"testing"
	"time"

	"signstream/internal/codec"
	"signstream/internal/detector"
	"signstream/internal/gesture"
	"signstream/internal/practice"
)

// fakeDetector returns scripted results, one per call.
type fakeDetector struct {
	results []*detector.Result
	err     error
	calls   int
}

func (f *fakeDetector) Detect(_ context.Context, _ image.Image) (*detector.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	res := f.results[f.calls%len(f.results)]
	f.calls++
	return res, nil
}

func (f *fakeDetector) Close() error { return nil }

func handsResult(wristX float64) *detector.Result {
	res := &detector.Result{
		Presence: detector.Presence{Hands: true},
		Hands:    []detector.HandLandmarks{{Score: 0.9}},
	}
	res.Hands[0].Points[detector.Wrist] = detector.Point3D{X: wristX, Y: 0.5}
	return res
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func frameURI(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 8), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("jpeg encode: %v", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func newTestProcessor(det detector.Detector, gcfg gesture.Config) (*Processor, *practice.Manager) {
	mgr := practice.NewManager(nil)
	p := NewProcessor(
		DefaultConfig(),
		det,
		codec.NewEncoder(codec.DefaultConfig()),
		gesture.NewDetector(gcfg),
		mgr,
		testLogger(),
		nil,
	)
	return p, mgr
}

func TestProcessor_Process_success(t *testing.T) {
	p, _ := newTestProcessor(&fakeDetector{results: []*detector.Result{handsResult(0.5)}}, gesture.Config{})

	res := p.Process(context.Background(), Frame{Data: frameURI(t), Number: 7})
	if res == nil {
		t.Fatal("result must never be nil")
	}
	if !res.Success {
		t.Fatalf("process failed: %s", res.Error)
	}
	if !res.Landmarks.Hands || res.Landmarks.Face || res.Landmarks.Pose {
		t.Errorf("landmarks = %+v, want hands only", res.Landmarks)
	}
	if res.FrameData == "" {
		t.Error("annotated frame missing")
	}
	if _, err := codec.DecodeDataURI(res.FrameData); err != nil {
		t.Errorf("annotated frame should be a decodable data URI: %v", err)
	}
	if res.Encode == nil || res.Encode.CompressedBytes == 0 {
		t.Error("encode metrics missing")
	}
	if res.TotalTime <= 0 {
		t.Error("total time not measured")
	}
}

func TestProcessor_Process_malformedFrame(t *testing.T) {
	p, _ := newTestProcessor(detector.NewNullDetector(), gesture.Config{})

	for _, data := range []string{"", "data:image/jpeg;base64,@@@", "not a frame"} {
		res := p.Process(context.Background(), Frame{Data: data})
		if res == nil {
			t.Fatal("result must never be nil")
		}
		if res.Success {
			t.Errorf("malformed frame %q should fail", data)
		}
		if res.Error == "" {
			t.Error("failure should carry a reason")
		}
		if res.Landmarks != (detector.Presence{}) {
			t.Errorf("failed frame should default to all-false presence, got %+v", res.Landmarks)
		}
	}
}

func TestProcessor_Process_detectorFailure(t *testing.T) {
	p, _ := newTestProcessor(&fakeDetector{err: errors.New("model crashed")}, gesture.Config{})

	res := p.Process(context.Background(), Frame{Data: frameURI(t)})
	if res.Success {
		t.Error("detector failure should degrade, not succeed")
	}
	if res.Landmarks != (detector.Presence{}) {
		t.Errorf("presence should be all-false, got %+v", res.Landmarks)
	}
}

// panicDetector panics on every call, standing in for a crashing model
// backend.
type panicDetector struct{}

func (panicDetector) Detect(context.Context, image.Image) (*detector.Result, error) {
	panic("model backend crashed")
}

func (panicDetector) Close() error { return nil }

func TestProcessor_Process_detectorPanic(t *testing.T) {
	p, _ := newTestProcessor(panicDetector{}, gesture.Config{})

	res := p.Process(context.Background(), Frame{Data: frameURI(t), Number: 3})
	if res == nil {
		t.Fatal("result must never be nil, even when a stage panics")
	}
	if res.Success {
		t.Error("panicking stage should degrade, not succeed")
	}
	if res.Error == "" {
		t.Error("panic failure should carry a reason")
	}
	if res.Landmarks != (detector.Presence{}) {
		t.Errorf("presence should be all-false, got %+v", res.Landmarks)
	}
	if res.TotalTime <= 0 {
		t.Error("total time should still be measured")
	}

	// The processor keeps serving frames after the panic.
	if res := p.Process(context.Background(), Frame{Data: frameURI(t), Number: 4}); res == nil || res.Success {
		t.Error("subsequent frames should keep degrading gracefully")
	}
}

func TestProcessor_Process_qualityMetrics(t *testing.T) {
	p, _ := newTestProcessor(&fakeDetector{results: []*detector.Result{
		{Presence: detector.Presence{Hands: true, Face: true}},
	}}, gesture.Config{})

	res := p.Process(context.Background(), Frame{Data: frameURI(t)})
	if got := res.Quality.LandmarkConfidence; got < 0.66 || got > 0.67 {
		t.Errorf("landmark confidence = %v, want 2/3", got)
	}
	if res.Quality.ProcessingEfficiency < 0.1 || res.Quality.ProcessingEfficiency > 1.0 {
		t.Errorf("efficiency %v out of [0.1, 1.0]", res.Quality.ProcessingEfficiency)
	}
}

func TestProcessor_Process_gestureToFeedback(t *testing.T) {
	gcfg := gesture.Config{
		MotionThreshold:    0.02,
		PauseDuration:      500 * time.Millisecond,
		MinGestureDuration: 50 * time.Millisecond,
		BufferCapacity:     32,
	}
	// Alternate wrist positions to generate motion, then hold still.
	fake := &fakeDetector{results: []*detector.Result{handsResult(0.3), handsResult(0.5)}}
	p, mgr := newTestProcessor(fake, gcfg)

	if _, err := mgr.Start("s1", []string{"A.", "B."}); err != nil {
		t.Fatalf("start session: %v", err)
	}

	uri := frameURI(t)
	base := time.Now()

	// Active signing: wrist jumps between frames.
	for i := 0; i < 6; i++ {
		res := p.Process(context.Background(), Frame{Data: uri, Timestamp: base.Add(time.Duration(i*33) * time.Millisecond)})
		if res.Gesture != nil {
			t.Fatal("no gesture should complete while signing")
		}
	}

	// Hold still past the pause threshold.
	fake.results = []*detector.Result{handsResult(0.5)}
	var completed *gesture.Event
	feedback := false
	for ms := 200; ms <= 900; ms += 33 {
		res := p.Process(context.Background(), Frame{Data: uri, Timestamp: base.Add(time.Duration(ms) * time.Millisecond)})
		if res.Gesture != nil {
			if completed != nil {
				t.Fatal("gesture completed twice")
			}
			completed = res.Gesture
			feedback = res.FeedbackEntered
		}
	}

	if completed == nil {
		t.Fatal("expected a completed gesture after the pause")
	}
	if completed.State != gesture.Ended {
		t.Errorf("gesture state = %v, want Ended", completed.State)
	}
	if !feedback {
		t.Error("completed gesture should move the session to feedback")
	}
	if s := mgr.Session(); s.Mode != practice.ModeFeedback {
		t.Errorf("session mode = %s, want feedback", s.Mode)
	}
	if s := mgr.Session(); s.CurrentIndex != 0 {
		t.Errorf("gesture must not advance the sentence index, got %d", s.CurrentIndex)
	}
}

func TestProcessor_Process_noSession(t *testing.T) {
	// The pipeline still runs detection and encoding without a session.
	p, _ := newTestProcessor(&fakeDetector{results: []*detector.Result{handsResult(0.5)}}, gesture.Config{})

	res := p.Process(context.Background(), Frame{Data: frameURI(t)})
	if !res.Success {
		t.Fatalf("process failed: %s", res.Error)
	}
	if res.FeedbackEntered {
		t.Error("no session, no feedback transition")
	}
}

func TestProcessor_Reset(t *testing.T) {
	p, _ := newTestProcessor(&fakeDetector{results: []*detector.Result{handsResult(0.5)}}, gesture.Config{})
	p.Process(context.Background(), Frame{Data: frameURI(t)})
	p.Reset()
	if p.prev != nil {
		t.Error("reset should drop the previous detection")
	}
}
