package ws

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"signstream/internal/codec"
	"signstream/internal/detector"
	"signstream/internal/gesture"
	"signstream/internal/pipeline"
	"signstream/internal/platform/metrics"
	"signstream/internal/practice"
)

// Handler upgrades HTTP requests to WebSocket connections and runs one
// ConnectionSession per connection. Each connection owns its own pipeline
// state; only the landmark detector is shared, and it must be safe for
// concurrent calls.
type Handler struct {
	det             detector.Detector
	repo            practice.Repository
	encoderCfg      codec.Config
	gestureCfg      gesture.Config
	processorCfg    pipeline.Config
	frameQueueDepth int
	log             *slog.Logger
	met             *metrics.Metrics
	upgrader        websocket.Upgrader
}

// Config bundles the per-connection pipeline configuration.
type Config struct {
	Encoder         codec.Config
	Gesture         gesture.Config
	Processor       pipeline.Config
	FrameQueueDepth int
}

// NewHandler returns a Handler that builds per-connection pipelines around
// the shared detector and summary repository. met may be nil to disable
// metric recording (e.g. in tests).
func NewHandler(det detector.Detector, repo practice.Repository, cfg Config, log *slog.Logger, met *metrics.Metrics) *Handler {
	return &Handler{
		det:             det,
		repo:            repo,
		encoderCfg:      cfg.Encoder,
		gestureCfg:      cfg.Gesture,
		processorCfg:    cfg.Processor,
		frameQueueDepth: cfg.FrameQueueDepth,
		log:             log,
		met:             met,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			// Frames come from browser clients on other origins; auth is
			// handled upstream of this subsystem.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Serve handles GET /ws. It upgrades the connection and blocks for its
// lifetime; one goroutine per connection, courtesy of net/http.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	id := uuid.NewString()
	manager := practice.NewManager(h.repo)
	processor := pipeline.NewProcessor(
		h.processorCfg,
		h.det,
		codec.NewEncoder(h.encoderCfg),
		gesture.NewDetector(h.gestureCfg),
		manager,
		h.log,
		h.met,
	)

	session := NewConnectionSession(id, conn, processor, manager, h.log, h.met, h.frameQueueDepth)

	h.log.Info("connection opened", slog.String("connection_id", id), slog.String("remote", r.RemoteAddr))
	if h.met != nil {
		h.met.ConnectionOpened()
	}
	defer func() {
		if rec := recover(); rec != nil {
			// One connection's failure must never reach its siblings or the
			// host process; best-effort error frame, then close.
			h.log.Error("connection panic", slog.String("connection_id", id), slog.Any("panic", rec))
			_ = conn.WriteJSON(ErrorMessage{Type: TypeError, Message: "internal error"})
		}
		if h.met != nil {
			h.met.ConnectionClosed()
		}
		h.log.Info("connection closed", slog.String("connection_id", id))
	}()

	session.Run(r.Context())
}
