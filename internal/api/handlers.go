package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/langrelay/langrelay/internal/models"
)

// webhookHandler serves the platform-facing webhook endpoint: GET for the
// verification handshake, POST for delivery batches.
func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	switch r.Method {
	case http.MethodGet:
		s.verifyHandler(w, r)
	case http.MethodPost:
		s.deliveryHandler(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		slog.Warn("Server.webhookHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// verifyHandler answers the subscription handshake: echo hub.challenge when
// the mode and token match, 403 otherwise.
func (s *Server) verifyHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode != "subscribe" || token != s.verifyToken {
		slog.Warn("Server.verifyHandler: verification failed", "mode", mode)
		w.WriteHeader(http.StatusForbidden)
		if _, err := w.Write([]byte("Verification failed")); err != nil {
			slog.Error("Server.verifyHandler: failed to write response", "error", err)
		}
		return
	}

	slog.Info("Server.verifyHandler: webhook verified")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(challenge)); err != nil {
		slog.Error("Server.verifyHandler: failed to write challenge", "error", err)
	}
}

// deliveryHandler ingests one delivery batch. It always acknowledges with
// 200 once the body has been consumed; a malformed body is logged and
// dropped so the platform never retries it into a storm.
func (s *Server) deliveryHandler(w http.ResponseWriter, r *http.Request) {
	var payload models.WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		slog.Warn("Server.deliveryHandler: malformed delivery body", "error", err)
		acknowledge(w)
		return
	}

	s.pipeline.HandleDelivery(r.Context(), payload)
	acknowledge(w)
}

func acknowledge(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("EVENT_RECEIVED")); err != nil {
		slog.Error("Server.deliveryHandler: failed to write acknowledgement", "error", err)
	}
}

// healthHandler reports per-collaborator availability.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	statuses := make(map[string]string, len(s.checks))
	healthy := true
	for _, name := range s.checkNames() {
		if err := s.checks[name](); err != nil {
			healthy = false
			statuses[name] = err.Error()
			if !errors.Is(err, models.ErrProviderUnavailable) {
				slog.Warn("Server.healthHandler: collaborator unhealthy", "collaborator", name, "error", err)
			}
		} else {
			statuses[name] = "ok"
		}
	}

	if healthy {
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("healthy", statuses))
		return
	}
	writeJSONResponse(w, http.StatusServiceUnavailable, models.ErrorWithData("degraded", statuses))
}
