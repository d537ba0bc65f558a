// Package gesture segments a stream of per-frame landmark-presence samples
// into discrete sign attempts. A gesture is a contiguous span of hand
// presence exceeding the noise-rejection duration, bounded by a trailing
// pause or by the hands leaving the frame.
package gesture

import "time"

// State is the detector's segmentation state.
type State int

// Segmentation states.
const (
	// Idle means no gesture is in progress.
	Idle State = iota
	// Active means hands are present and a gesture is being tracked.
	Active
	// Ended marks a completed gesture; it only appears on emitted events,
	// the detector itself returns to Idle immediately.
	Ended
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	case Ended:
		return "ended"
	}
	return "unknown"
}

// Default detection thresholds.
const (
	DefaultMotionThreshold    = 0.02 // normalized wrist displacement per frame
	DefaultPauseDuration      = 800 * time.Millisecond
	DefaultMinGestureDuration = 300 * time.Millisecond
	DefaultBufferCapacity     = 90 // three seconds of samples at 30fps
)

// Config holds detection thresholds. All values are fixed at startup and
// never renegotiated mid-session.
type Config struct {
	// MotionThreshold is the minimum per-frame motion magnitude that counts
	// as active signing.
	MotionThreshold float64

	// PauseDuration is how long motion must stay below the threshold, with
	// hands still visible, before the gesture is considered ended.
	PauseDuration time.Duration

	// MinGestureDuration is the minimum gesture length to be considered a
	// real attempt; shorter spans are discarded as noise.
	MinGestureDuration time.Duration

	// BufferCapacity is the size of the sample ring buffer.
	BufferCapacity int
}

// DefaultConfig returns the default detection thresholds.
func DefaultConfig() Config {
	return Config{
		MotionThreshold:    DefaultMotionThreshold,
		PauseDuration:      DefaultPauseDuration,
		MinGestureDuration: DefaultMinGestureDuration,
		BufferCapacity:     DefaultBufferCapacity,
	}
}

// Sample is one frame's contribution to the motion signal.
type Sample struct {
	// HasHands reports whether hand landmarks were present in the frame.
	HasHands bool

	// Motion is the frame-to-frame motion magnitude (normalized wrist
	// displacement).
	Motion float64

	// Timestamp is the frame's capture time.
	Timestamp time.Time
}

// Event is emitted exactly once per completed gesture.
type Event struct {
	State     State         `json:"state"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"-"`

	// DurationMS mirrors Duration for the wire protocol.
	DurationMS float64 `json:"duration_ms"`
}

// ring is a fixed-capacity sample buffer; the oldest sample is evicted on
// overflow.
type ring struct {
	samples []Sample
	head    int
	size    int
}

func newRing(capacity int) *ring {
	return &ring{samples: make([]Sample, capacity)}
}

func (r *ring) push(s Sample) {
	r.samples[r.head] = s
	r.head = (r.head + 1) % len(r.samples)
	if r.size < len(r.samples) {
		r.size++
	}
}

func (r *ring) len() int { return r.size }

// latest returns the i-th most recent sample (0 = newest). ok is false when
// fewer than i+1 samples are buffered.
func (r *ring) latest(i int) (Sample, bool) {
	if i >= r.size {
		return Sample{}, false
	}
	idx := (r.head - 1 - i + 2*len(r.samples)) % len(r.samples)
	return r.samples[idx], true
}

// Detector turns a stream of samples into gesture events. It is owned by a
// single connection loop and needs no internal locking.
type Detector struct {
	cfg    Config
	buf    *ring
	state  State
	start  time.Time // when the current gesture began
	active time.Time // last time motion exceeded the threshold

	// rearm is set after a pause-ended gesture: the hands are still resting
	// in frame, so presence alone must not start a new gesture. Cleared by
	// motion above the threshold or by the hands leaving the frame.
	rearm bool
}

// NewDetector returns a Detector with the given thresholds; zero-value
// fields fall back to defaults.
func NewDetector(cfg Config) *Detector {
	def := DefaultConfig()
	if cfg.MotionThreshold <= 0 {
		cfg.MotionThreshold = def.MotionThreshold
	}
	if cfg.PauseDuration <= 0 {
		cfg.PauseDuration = def.PauseDuration
	}
	if cfg.MinGestureDuration <= 0 {
		cfg.MinGestureDuration = def.MinGestureDuration
	}
	if cfg.BufferCapacity <= 0 {
		cfg.BufferCapacity = def.BufferCapacity
	}
	return &Detector{cfg: cfg, buf: newRing(cfg.BufferCapacity)}
}

// Active reports whether a gesture is currently in progress. It is
// side-effect-free; polling it never emits an event.
func (d *Detector) Active() bool { return d.state == Active }

// BufferLen returns the number of buffered samples.
func (d *Detector) BufferLen() int { return d.buf.len() }

// Feed appends one sample and advances the state machine. It returns an
// Event and true exactly once per completed gesture; in every other case ok
// is false.
func (d *Detector) Feed(s Sample) (Event, bool) {
	d.buf.push(s)

	switch d.state {
	case Idle:
		if !s.HasHands {
			d.rearm = false
			return Event{}, false
		}
		if d.rearm && s.Motion < d.cfg.MotionThreshold {
			return Event{}, false
		}
		d.rearm = false
		d.state = Active
		d.start = s.Timestamp
		d.active = s.Timestamp
		return Event{}, false

	case Active:
		if !s.HasHands {
			// Tolerate a single dropped detection; end the attempt only
			// when the previous buffered sample also lacked hands.
			if prev, ok := d.buf.latest(1); ok && prev.HasHands {
				return Event{}, false
			}
			return d.end(d.active)
		}

		if s.Motion >= d.cfg.MotionThreshold {
			d.active = s.Timestamp
			return Event{}, false
		}

		if s.Timestamp.Sub(d.active) >= d.cfg.PauseDuration {
			// The signer paused with hands still visible: end of attempt.
			// The resting hands must not immediately start a new one.
			d.rearm = true
			return d.end(d.active)
		}
		return Event{}, false
	}

	return Event{}, false
}

// Reset clears all state and buffered samples.
func (d *Detector) Reset() {
	d.state = Idle
	d.start = time.Time{}
	d.active = time.Time{}
	d.rearm = false
	d.buf = newRing(d.cfg.BufferCapacity)
}

// end closes the current gesture at endedAt. Gestures shorter than the
// noise floor are dropped without an event.
func (d *Detector) end(endedAt time.Time) (Event, bool) {
	started := d.start
	duration := endedAt.Sub(started)

	d.state = Idle
	d.start = time.Time{}
	d.active = time.Time{}

	if duration < d.cfg.MinGestureDuration {
		return Event{}, false
	}

	return Event{
		State:      Ended,
		StartedAt:  started,
		Duration:   duration,
		DurationMS: float64(duration.Microseconds()) / 1000.0,
	}, true
}
