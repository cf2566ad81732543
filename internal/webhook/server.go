package webhook

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/jewelry-dataset-pipeline/internal/metrics"
)

// SignatureHeader carries the payload signature on incoming requests.
const SignatureHeader = "X-Webhook-Signature"

// Server exposes the webhook endpoint plus health and metrics routes.
type Server struct {
	router   chi.Router
	verifier *Verifier
	logger   *zap.Logger
}

// NewServer wires the routes.
func NewServer(verifier *Verifier, logger *zap.Logger) (*Server, error) {
	if verifier == nil {
		return nil, fmt.Errorf("verifier is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	s := &Server{verifier: verifier, logger: logger}

	r := chi.NewRouter()
	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Post("/webhook", s.handleWebhook)
	s.router = r
	return s, nil
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	signature := r.Header.Get(SignatureHeader)
	if signature == "" {
		s.writeError(w, http.StatusBadRequest, "missing signature")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if !s.verifier.Verify(payload, signature) {
		s.writeError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	event, _ := payload["event"].(string)
	publicID, _ := payload["public_id"].(string)
	s.logger.Info("webhook received",
		zap.String("event", event),
		zap.String("public_id", publicID),
	)

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write response failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
