// Package api exposes the HTTP interface for the webhook receiver.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/wina-futureobjects/track-futura-new-sub002/internal/config"
	"github.com/wina-futureobjects/track-futura-new-sub002/internal/gate"
	"github.com/wina-futureobjects/track-futura-new-sub002/internal/ingest"
	"github.com/wina-futureobjects/track-futura-new-sub002/internal/monitor"
	"github.com/wina-futureobjects/track-futura-new-sub002/internal/telemetry"
	"github.com/wina-futureobjects/track-futura-new-sub002/internal/webhook"
)

// maxBodyBytes caps inbound payloads; provider deliveries stay well under
// this.
const maxBodyBytes = 32 << 20

// Server wires HTTP handlers to the gate, pipeline, and monitor.
type Server struct {
	router   chi.Router
	gate     *gate.Gate
	pipeline *ingest.Pipeline
	monitor  *monitor.Monitor
	ids      webhook.IDGenerator
	cfg      config.ServerConfig
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	g *gate.Gate,
	pipeline *ingest.Pipeline,
	mon *monitor.Monitor,
	ids webhook.IDGenerator,
	cfg config.ServerConfig,
	logger *zap.Logger,
) *Server {
	s := &Server{
		gate:     g,
		pipeline: pipeline,
		monitor:  mon,
		ids:      ids,
		cfg:      cfg,
		logger:   logger,
	}
	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(time.Duration(cfg.TimeoutSeconds) * time.Second))
	r.Use(telemetry.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())

	r.Route("/webhook", func(r chi.Router) {
		r.Post("/", s.handleWebhook)
		r.Get("/health", s.handleHealth)
		r.Get("/analytics", s.handleAnalytics)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleWebhook runs the security gate and, for admitted deliveries, the
// full ingestion pipeline. The provider retries on non-2xx, so processing
// problems after admission still answer 200; only a missing destination
// answers 202 to ask for a later retry.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	warnings, err := s.gate.Admit(r.Context(), gate.Request{
		RemoteIP:      clientIP(r),
		Path:          r.URL.Path,
		Authorization: r.Header.Get("Authorization"),
		Signature:     r.Header.Get("X-Signature"),
		Timestamp:     r.Header.Get("X-Timestamp"),
		Body:          body,
	})
	if err != nil {
		var rej *gate.Rejection
		if errors.As(err, &rej) {
			s.writeError(w, http.StatusUnauthorized, rej.Reason)
			return
		}
		s.writeError(w, http.StatusInternalServerError, "security check failed")
		return
	}

	platform, snapshotID := routingHints(r, body)
	result, err := s.pipeline.Ingest(r.Context(), ingest.Delivery{
		SnapshotID: snapshotID,
		Platform:   platform,
		SourceIP:   clientIP(r),
		Body:       body,
	})
	if err != nil {
		s.logger.Error("failed to stage delivery",
			zap.String("snapshot_id", snapshotID),
			zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to store delivery")
		return
	}
	if result.NotReady {
		s.writeJSON(w, http.StatusAccepted, map[string]any{
			"status":   "pending",
			"event_id": result.EventID,
			"message":  "destination not ready, delivery stored for replay",
		})
		return
	}

	resp := map[string]any{
		"status":          "completed",
		"items_processed": result.ItemsProcessed,
		"items_skipped":   result.ItemsSkipped,
	}
	if result.Failed {
		// The delivery was accepted and stored, but processing ended in a
		// terminal failure. Still 200 so the provider does not redeliver.
		resp["status"] = "failed"
		resp["event_id"] = result.EventID
	}
	if result.FolderID != "" {
		resp["folder_id"] = result.FolderID
	}
	if len(warnings) > 0 {
		resp["warnings"] = warnings
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snap := s.monitor.Health()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": snap.Status,
		"metrics": map[string]any{
			"total_deliveries": snap.Total,
			"succeeded":        snap.Succeeded,
			"failed":           snap.Failed,
			"error_rate":       snap.ErrorRate,
			"avg_latency_ms":   snap.AvgLatencyMs,
			"min_latency_ms":   snap.MinLatencyMs,
			"max_latency_ms":   snap.MaxLatencyMs,
		},
		"issues": snap.Issues,
	})
}

func (s *Server) handleAnalytics(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.monitor.Report())
}

// routingHints resolves platform and snapshot from headers, falling back to
// body fields when the provider embeds them instead.
func routingHints(r *http.Request, body []byte) (webhook.Platform, string) {
	platform := strings.ToLower(r.Header.Get("X-Platform"))
	snapshotID := r.Header.Get("X-Snapshot-Id")
	if platform != "" && snapshotID != "" {
		return webhook.Platform(platform), snapshotID
	}

	var envelope struct {
		Platform   string `json:"platform"`
		SnapshotID string `json:"snapshot_id"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if platform == "" {
			platform = strings.ToLower(envelope.Platform)
		}
		if snapshotID == "" {
			snapshotID = envelope.SnapshotID
		}
	}
	return webhook.Platform(platform), snapshotID
}

// clientIP prefers the first forwarded address so the gate sees the real
// caller behind the load balancer.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
