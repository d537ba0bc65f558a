// Package pipeline runs the per-frame processing chain: decode, landmark
// detection, gesture segmentation, practice-session update, and annotated
// re-encode. Every stage degrades gracefully; the processor always returns
// a result and never panics past its boundary.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"signstream/internal/codec"
	"signstream/internal/detector"
	"signstream/internal/gesture"
	"signstream/internal/platform/metrics"
	"signstream/internal/practice"
)

// DefaultFrameBudget is the target per-frame processing time implied by a
// 30fps source stream.
const DefaultFrameBudget = 33300 * time.Microsecond

// minEfficiency is the lower clamp for the processing-efficiency metric.
const minEfficiency = 0.1

// Frame is one inbound frame submitted to the processor. It lives for
// exactly one pipeline pass.
type Frame struct {
	// Data is the data-URI-encoded frame payload.
	Data string

	// Number is the client's monotonically increasing frame number.
	Number int64

	// Timestamp is the client capture timestamp.
	Timestamp time.Time

	// Sequence is the connection-scoped sequence number assigned on
	// receipt.
	Sequence int64
}

// QualityMetrics are advisory per-frame quality numbers. They are
// telemetry, never gates.
type QualityMetrics struct {
	// LandmarkConfidence is the fraction of the three landmark groups
	// detected in this frame.
	LandmarkConfidence float64 `json:"landmark_confidence"`

	// ProcessingEfficiency is the frame budget over actual pipeline time,
	// clamped to [0.1, 1.0].
	ProcessingEfficiency float64 `json:"processing_efficiency"`
}

// Result is the per-frame output. It is always produced, even on failure;
// downstream code never special-cases a missing result.
type Result struct {
	Success bool
	Error   string

	// FrameData is the annotated output frame as a data URI; empty when
	// the pipeline failed before encoding.
	FrameData string

	Landmarks detector.Presence
	Quality   QualityMetrics

	DetectTime time.Duration
	EncodeTime time.Duration
	TotalTime  time.Duration

	Encode *codec.Metrics

	// Gesture is set when this frame completed a sign attempt.
	Gesture *gesture.Event

	// FeedbackEntered is set when the completed gesture moved the practice
	// session into feedback mode.
	FeedbackEntered bool
}

// Config holds processor settings fixed at startup.
type Config struct {
	// FrameBudget is the per-frame latency target.
	FrameBudget time.Duration

	// FrameTimeout is the hard deadline for one pipeline pass; a frame
	// exceeding it is treated as a processing failure.
	FrameTimeout time.Duration
}

// DefaultConfig returns the default processor settings.
func DefaultConfig() Config {
	return Config{
		FrameBudget:  DefaultFrameBudget,
		FrameTimeout: 10 * DefaultFrameBudget,
	}
}

// Processor orchestrates one connection's frame pipeline. It is owned by a
// single connection loop; only the detector may be shared across
// connections.
type Processor struct {
	cfg      Config
	det      detector.Detector
	enc      *codec.Encoder
	gestures *gesture.Detector
	sessions *practice.Manager
	log      *slog.Logger
	met      *metrics.Metrics

	prev *detector.Result
}

// NewProcessor returns a Processor wired to the given collaborators.
// met may be nil to disable metric recording (e.g. in tests).
func NewProcessor(
	cfg Config,
	det detector.Detector,
	enc *codec.Encoder,
	gestures *gesture.Detector,
	sessions *practice.Manager,
	log *slog.Logger,
	met *metrics.Metrics,
) *Processor {
	def := DefaultConfig()
	if cfg.FrameBudget <= 0 {
		cfg.FrameBudget = def.FrameBudget
	}
	if cfg.FrameTimeout <= 0 {
		cfg.FrameTimeout = def.FrameTimeout
	}
	return &Processor{
		cfg:      cfg,
		det:      det,
		enc:      enc,
		gestures: gestures,
		sessions: sessions,
		log:      log,
		met:      met,
	}
}

// Process runs one frame through the pipeline. The returned Result is
// never nil; any stage failure yields Success=false with all-false
// landmark presence.
func (p *Processor) Process(ctx context.Context, frame Frame) (res *Result) {
	start := time.Now()
	res = &Result{}
	defer func() {
		if r := recover(); r != nil {
			// A panicking stage must not take down the connection loop.
			res.Success = false
			res.Error = fmt.Sprintf("internal pipeline failure: %v", r)
			res.Landmarks = detector.Presence{}
			p.log.Error("pipeline panic recovered", slog.Any("panic", r), slog.Int64("frame", frame.Number))
		}
		res.TotalTime = time.Since(start)
		res.Quality = p.quality(res)
		p.record(res)
	}()

	ctx, cancel := context.WithTimeout(ctx, p.cfg.FrameTimeout)
	defer cancel()

	img, err := codec.DecodeDataURI(frame.Data)
	if err != nil {
		return p.fail(res, "decode failed", err, frame)
	}

	detectStart := time.Now()
	detection, err := p.det.Detect(ctx, img)
	res.DetectTime = time.Since(detectStart)
	if err != nil {
		return p.fail(res, "detection failed", err, frame)
	}

	res.Landmarks = detection.Presence

	ts := frame.Timestamp
	if ts.IsZero() {
		ts = start
	}
	if ev, ok := p.gestures.Feed(gesture.Sample{
		HasHands:  detection.Presence.Hands,
		Motion:    detector.HandDisplacement(p.prev, detection),
		Timestamp: ts,
	}); ok {
		res.Gesture = &ev
		res.FeedbackEntered = p.sessions.HandleGestureEnd(ev)
		if p.met != nil {
			p.met.IncGesturesDetected()
		}
	}
	p.prev = detection

	annotated := codec.Annotate(img, detection)

	encodeStart := time.Now()
	encoded, err := p.enc.Encode(annotated)
	res.EncodeTime = time.Since(encodeStart)
	if err != nil {
		return p.fail(res, "encode failed", err, frame)
	}

	res.FrameData = codec.EncodeDataURI(encoded)
	res.Encode = &encoded.Metrics
	res.Success = true
	return res
}

// Reset clears cross-frame state (the previous detection used for the
// motion signal).
func (p *Processor) Reset() {
	p.prev = nil
	p.gestures.Reset()
}

func (p *Processor) fail(res *Result, stage string, err error, frame Frame) *Result {
	res.Success = false
	res.Error = fmt.Sprintf("%s: %v", stage, err)
	res.Landmarks = detector.Presence{}
	p.log.Debug("frame degraded",
		slog.String("stage", stage),
		slog.Int64("frame", frame.Number),
		slog.String("error", err.Error()),
	)
	return res
}

// quality derives the advisory per-frame quality metrics.
func (p *Processor) quality(res *Result) QualityMetrics {
	q := QualityMetrics{
		LandmarkConfidence: float64(res.Landmarks.Count()) / 3.0,
	}

	if res.TotalTime <= 0 {
		q.ProcessingEfficiency = 1.0
		return q
	}
	eff := float64(p.cfg.FrameBudget) / float64(res.TotalTime)
	if eff > 1.0 {
		eff = 1.0
	}
	if eff < minEfficiency {
		eff = minEfficiency
	}
	q.ProcessingEfficiency = eff
	return q
}

func (p *Processor) record(res *Result) {
	if p.met == nil {
		return
	}
	p.met.IncFramesProcessed()
	p.met.ObserveFrameProcessing(res.TotalTime)
	if !res.Success {
		p.met.IncFramesFailed()
	}
}
