package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/rankforge/rankforge/pkg/billing"
	"github.com/rankforge/rankforge/pkg/httputil"
)

// maxWebhookBody bounds provider payloads; Stripe events are well under 1MB
const maxWebhookBody = 1 << 20

// handleBillingWebhook handles POST /webhooks/billing.
//
// A 2xx acknowledges the delivery and stops provider retries, so only
// transient failures return 5xx. Authentication and parse failures are
// permanent and return 400.
func (s *Server) handleBillingWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		httputil.WriteBadRequest(w, "failed to read request body")
		return
	}

	signature := r.Header.Get(billing.SignatureHeader)

	err = s.events.HandleEvent(r.Context(), payload, signature)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, billing.ErrBadSignature):
		s.logger.WithError(err).Warn("Rejected webhook delivery")
		httputil.WriteBadRequest(w, "invalid signature")
	case errors.Is(err, billing.ErrMalformedEvent):
		s.logger.WithError(err).Warn("Rejected webhook delivery")
		httputil.WriteBadRequest(w, "malformed event")
	default:
		s.logger.WithError(err).Error("Failed to process webhook delivery")
		httputil.WriteInternalError(w, err)
	}
}
