package api

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/codedrip/codedrip-server/internal/http/response"
)

// maxWebhookBody caps provider event payloads (1 MB).
const maxWebhookBody = 1 << 20

// signatureHeader carries the provider's HMAC-SHA256 hex signature.
const signatureHeader = "X-Webhook-Signature"

// registerWebhookRoutes mounts the provider event endpoint. It stays a plain
// chi handler because signature verification needs the raw request body.
func (s *Server) registerWebhookRoutes() {
	s.router.Route("/webhooks", func(r chi.Router) {
		r.Use(RateLimitMiddleware(s.webhookLimiter, s.logger))
		r.Post("/{provider}", s.handleWebhookEvent)
	})
}

// handleWebhookEvent verifies and applies one provider delivery event.
// 401 on a bad signature, 400 on malformed JSON, 200 otherwise; an event that
// matches no delivery record is accepted and reported as unlinked.
func (s *Server) handleWebhookEvent(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		response.BadRequest(w, "Failed to read request body", s.logger)
		return
	}

	result, err := s.services.Webhook.HandleEvent(r.Context(), payload, r.Header.Get(signatureHeader))
	if err != nil {
		s.logger.Warn("webhook event rejected",
			"provider", provider,
			"error", err,
		)
		response.HandleError(w, err, s.logger)
		return
	}

	response.Success(w, result, s.logger)
}
