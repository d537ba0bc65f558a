package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"signstream/internal/pipeline"
	"signstream/internal/platform/metrics"
	"signstream/internal/practice"
)

// DefaultFrameQueueDepth bounds the per-connection frame queue. Frames
// beyond it displace the oldest queued frame; an unbounded queue would turn
// a slow pipeline into unbounded latency.
const DefaultFrameQueueDepth = 2

// controlQueueDepth bounds queued control messages. Control traffic is
// user-paced, so this never fills in practice.
const controlQueueDepth = 8

// ConnectionSession owns one WebSocket connection: its frame processor,
// practice manager, and the request/response loop. Frame handling is
// strictly sequential; the only concurrency is the reader goroutine
// feeding the bounded queues.
type ConnectionSession struct {
	id        string
	conn      *websocket.Conn
	processor *pipeline.Processor
	sessions  *practice.Manager
	log       *slog.Logger
	met       *metrics.Metrics

	// writeMu serializes writes (gorilla/websocket requirement): pongs are
	// written from the read loop, everything else from the process loop.
	writeMu sync.Mutex

	frames   chan pipeline.Frame
	controls chan *Envelope
	seq      int64
}

// NewConnectionSession wires a session around an upgraded connection.
// met may be nil to disable metric recording.
func NewConnectionSession(
	id string,
	conn *websocket.Conn,
	processor *pipeline.Processor,
	sessions *practice.Manager,
	log *slog.Logger,
	met *metrics.Metrics,
	frameQueueDepth int,
) *ConnectionSession {
	if frameQueueDepth <= 0 {
		frameQueueDepth = DefaultFrameQueueDepth
	}
	return &ConnectionSession{
		id:        id,
		conn:      conn,
		processor: processor,
		sessions:  sessions,
		log:       log.With(slog.String("connection_id", id)),
		met:       met,
		frames:    make(chan pipeline.Frame, frameQueueDepth),
		controls:  make(chan *Envelope, controlQueueDepth),
	}
}

// Run drives the session until the connection closes or ctx is cancelled.
// It blocks; the caller owns the connection's goroutine. On return all
// session state is released and any active practice session's summary has
// been persisted.
func (s *ConnectionSession) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Unblock the read loop on shutdown; ReadMessage has no context.
	go func() {
		<-ctx.Done()
		_ = s.conn.Close()
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.processLoop(ctx)
	}()

	s.readLoop(ctx)

	// Reader is done: cancel any in-flight detector call and drain the
	// process loop before releasing session state.
	cancel()
	wg.Wait()
	if s.met != nil && s.sessions.Session() != nil {
		s.met.SessionDeactivated()
	}
	s.sessions.Close()
	s.processor.Reset()
}

// readLoop parses inbound envelopes and routes them. Pings are answered
// inline so liveness probes are independent of frame-processing load.
func (s *ConnectionSession) readLoop(ctx context.Context) {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("connection read ended", slog.String("error", err.Error()))
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.sendError("malformed message envelope")
			continue
		}

		switch env.Type {
		case TypePing:
			s.write(Pong{Type: TypePong, Timestamp: wireTime(time.Now())})

		case TypeRawFrame:
			s.enqueueFrame(&env)

		case TypeControl, TypePracticeSessionStart:
			select {
			case s.controls <- &env:
			case <-ctx.Done():
				return
			}

		default:
			s.sendError((&ProtocolError{Reason: "unknown message type: " + env.Type}).Error())
		}
	}
}

// enqueueFrame assigns the connection-scoped sequence number and queues the
// frame, displacing the oldest queued frame when the client outpaces the
// pipeline.
func (s *ConnectionSession) enqueueFrame(env *Envelope) {
	s.seq++
	frame := pipeline.Frame{
		Data:     env.FrameData,
		Sequence: s.seq,
	}
	if env.Metadata != nil {
		frame.Number = env.Metadata.FrameNumber
		frame.Timestamp = parseWireTime(env.Metadata.Timestamp)
	}

	select {
	case s.frames <- frame:
		return
	default:
	}

	// Queue full: drop the stale frame, keep the fresh one.
	select {
	case <-s.frames:
		if s.met != nil {
			s.met.IncFramesDropped()
		}
	default:
	}
	select {
	case s.frames <- frame:
	default:
	}
}

// processLoop is the single sequential consumer of this connection's state.
// Control messages take priority over queued frames.
func (s *ConnectionSession) processLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-s.controls:
			s.handleControl(env)
		default:
		}

		select {
		case <-ctx.Done():
			return
		case env := <-s.controls:
			s.handleControl(env)
		case frame := <-s.frames:
			s.handleFrame(ctx, frame)
		}
	}
}

func (s *ConnectionSession) handleFrame(ctx context.Context, frame pipeline.Frame) {
	res := s.processor.Process(ctx, frame)

	meta := ProcessedMetadata{
		ServerFrameNumber:   frame.Sequence,
		ClientFrameNumber:   frame.Number,
		ProcessingTimeMS:    float64(res.DetectTime.Microseconds()) / 1000.0,
		TotalPipelineTimeMS: float64(res.TotalTime.Microseconds()) / 1000.0,
		LandmarksDetected:   res.Landmarks,
		QualityMetrics:      res.Quality,
		Success:             res.Success,
		Error:               res.Error,
		GestureCompleted:    res.Gesture != nil,
	}
	if sess := s.sessions.Session(); sess != nil {
		meta.PracticeMode = sess.Mode
	}

	s.write(ProcessedFrame{
		Type:      TypeProcessedFrame,
		Timestamp: wireTime(time.Now()),
		FrameData: res.FrameData,
		Metadata:  meta,
	})
}

func (s *ConnectionSession) handleControl(env *Envelope) {
	switch {
	case env.Type == TypePracticeSessionStart:
		s.startSession(env.SessionID, env.StorySentences)

	case env.Action == practice.ActionStartSession:
		// Alias: control { action: "start_session", data: {...} }.
		var payload startPayload
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &payload); err != nil {
				s.write(ControlResponse{
					Type:   TypeControlResponse,
					Action: env.Action,
					Result: &practice.ControlResult{Success: false, Reason: "malformed start_session payload"},
				})
				return
			}
		}
		s.startSession(payload.SessionID, payload.StorySentences)

	default:
		var prevMode practice.Mode
		wasActive := false
		if sess := s.sessions.Session(); sess != nil {
			wasActive = true
			prevMode = sess.Mode
		}
		result := s.sessions.Control(env.Action)
		if result.Success {
			if s.met != nil && wasActive && env.Action == practice.ActionStopSession {
				s.met.SessionDeactivated()
			}
			s.log.Debug("control applied",
				slog.String("action", env.Action),
				slog.Int("sentence_index", result.CurrentSentenceIndex),
				slog.String("mode", string(result.PracticeMode)),
			)
			if s.met != nil && result.PracticeMode == practice.ModeCompleted && prevMode != practice.ModeCompleted {
				s.met.IncSessionsCompleted()
			}
		}
		s.write(ControlResponse{Type: TypeControlResponse, Action: env.Action, Result: result})
	}
}

func (s *ConnectionSession) startSession(id string, sentences []string) {
	wasActive := s.sessions.Session() != nil
	result, err := s.sessions.Start(practice.SessionID(id), sentences)
	if err != nil {
		s.log.Info("session start rejected", slog.String("error", err.Error()))
	} else {
		s.log.Info("practice session started",
			slog.String("session_id", string(result.SessionID)),
			slog.Int("sentences", result.TotalSentences),
		)
		if s.met != nil {
			s.met.IncSessionsStarted()
			if !wasActive {
				s.met.SessionActivated()
			}
		}
	}
	s.write(ControlResponse{
		Type:   TypePracticeSessionResponse,
		Action: "session_started",
		Result: result,
	})
}

// write serializes one outbound message. Send failures end the connection
// shortly after via the read loop, so they are only logged here.
func (s *ConnectionSession) write(v any) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(v); err != nil {
		s.log.Debug("write failed", slog.String("error", err.Error()))
	}
}

func (s *ConnectionSession) sendError(msg string) {
	s.write(ErrorMessage{Type: TypeError, Message: msg})
}
