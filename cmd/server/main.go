package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"signstream/internal/codec"
	"signstream/internal/detector"
	"signstream/internal/gesture"
	"signstream/internal/pipeline"
	"signstream/internal/platform/config"
	"signstream/internal/platform/logger"
	"signstream/internal/platform/metrics"
	"signstream/internal/practice"
	"signstream/internal/ws"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")

	log := logger.New(logLevel, logFormat)

	detectorMode := config.GetEnv("DETECTOR_MODE", "null")
	detectorURL := config.GetEnv("DETECTOR_URL", "")

	var det detector.Detector
	switch detectorMode {
	case "http":
		det = detector.NewHTTPDetector(
			detectorURL,
			detector.Config{
				MaxHands:        config.GetEnvInt("DETECTOR_MAX_HANDS", 2),
				MinConfidence:   config.GetEnvFloat("DETECTOR_MIN_CONFIDENCE", 0.5),
				MinTrackingConf: config.GetEnvFloat("DETECTOR_MIN_TRACKING_CONFIDENCE", 0.5),
			},
			config.GetEnvDurationMS("DETECTOR_TIMEOUT_MS", detector.DefaultRequestTimeout),
		)
	default:
		det = detector.NewNullDetector()
	}
	defer det.Close()

	repo := practice.NewInMemoryRepository()
	met := metrics.New()

	wsHandler := ws.NewHandler(det, repo, ws.Config{
		Encoder: codec.Config{
			Quality:  config.GetEnvInt("ENCODE_QUALITY", codec.DefaultQuality),
			MaxBytes: config.GetEnvInt("ENCODE_MAX_BYTES", codec.DefaultMaxBytes),
		},
		Gesture: gesture.Config{
			MotionThreshold:    config.GetEnvFloat("GESTURE_MOTION_THRESHOLD", gesture.DefaultMotionThreshold),
			PauseDuration:      config.GetEnvDurationMS("GESTURE_PAUSE_MS", gesture.DefaultPauseDuration),
			MinGestureDuration: config.GetEnvDurationMS("GESTURE_MIN_DURATION_MS", gesture.DefaultMinGestureDuration),
			BufferCapacity:     config.GetEnvInt("GESTURE_BUFFER_CAPACITY", gesture.DefaultBufferCapacity),
		},
		Processor: pipeline.Config{
			FrameBudget:  config.GetEnvDurationMS("FRAME_BUDGET_MS", pipeline.DefaultFrameBudget),
			FrameTimeout: config.GetEnvDurationMS("FRAME_TIMEOUT_MS", 10*pipeline.DefaultFrameBudget),
		},
		FrameQueueDepth: config.GetEnvInt("FRAME_QUEUE_DEPTH", ws.DefaultFrameQueueDepth),
	}, log, met)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() {
			met.SetSummariesRecorded(repo.SummaryCount())
			met.SetSummariesCompleted(repo.CompletedCount())
		}).ServeHTTP(w, r)
	})
	r.Get("/ws", wsHandler.Serve)

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"detector_mode", detectorMode,
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
