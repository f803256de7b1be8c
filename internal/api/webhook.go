package api

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/http"

	"github.com/wavault/wavault/internal/ingest"
)

// maxWebhookBody caps inbound webhook payloads at 8 MiB. Media arrives by
// URL reference, so real payloads are far smaller.
const maxWebhookBody = 8 << 20

// handleWebhookVerify answers the provider's subscription handshake: when
// the mode is "subscribe" and the token matches, the challenge is echoed
// back verbatim as plain text. Everything else is rejected.
func (s *Server) handleWebhookVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	mode := q.Get("hub_mode")
	if mode == "" {
		mode = q.Get("hub.mode")
	}
	if mode == "" {
		mode = q.Get("mode")
	}

	token := q.Get("hub_verify_token")
	if token == "" {
		token = q.Get("hub.verify_token")
	}
	if token == "" {
		token = q.Get("token")
	}

	challenge := q.Get("hub_challenge")
	if challenge == "" {
		challenge = q.Get("hub.challenge")
	}
	if challenge == "" {
		challenge = q.Get("challenge")
	}

	if mode != "subscribe" ||
		s.cfg.Webhook.VerifyToken == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.Webhook.VerifyToken)) != 1 {
		s.logger.Warn("webhook verification rejected",
			"mode", mode,
			"remote_addr", r.RemoteAddr,
		)
		writeError(w, http.StatusForbidden, "verification_failed", "Mode or verify token mismatch")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(challenge))
}

// handleWebhookReceive ingests one pushed event. The raw body is logged
// before parsing so malformed payloads can still be inspected later.
func (s *Server) handleWebhookReceive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read_failed", "Failed to read request body")
		return
	}
	if len(body) > maxWebhookBody {
		writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", "Webhook payload exceeds size limit")
		return
	}

	if s.weblog != nil {
		if err := s.weblog.Append(body); err != nil {
			// Logging is best-effort; ingestion still proceeds.
			s.logger.Warn("webhook log append failed", "error", err)
		}
	}

	stored, err := s.ingestor.Process(r.Context(), body)
	if err != nil {
		if errors.Is(err, ingest.ErrInvalidPayload) {
			writeError(w, http.StatusBadRequest, "invalid_payload", "Request body is not a JSON object")
			return
		}
		s.logger.Error("webhook ingestion failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to store webhook event")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"stored": stored,
	})
}
