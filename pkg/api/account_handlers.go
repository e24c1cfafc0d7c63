package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/rankforge/rankforge/pkg/billing"
	"github.com/rankforge/rankforge/pkg/httputil"
	"github.com/rankforge/rankforge/pkg/middleware"
)

// subscriptionResponse augments the stored row with its effective status
type subscriptionResponse struct {
	*billing.Subscription
	EffectiveStatus billing.Status `json:"effective_status"`
}

// getSubscription handles GET /api/accounts/{account_id}/subscription
func (s *Server) getSubscription(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountIDFromContext(r)

	sub, err := s.subs.GetByAccount(r.Context(), accountID)
	if errors.Is(err, billing.ErrSubscriptionNotFound) {
		httputil.WriteNotFoundError(w, "no subscription for account")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, subscriptionResponse{
		Subscription:    sub,
		EffectiveStatus: sub.EffectiveStatus(time.Now()),
	})
}

// getQuotas handles GET /api/accounts/{account_id}/quotas
func (s *Server) getQuotas(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountIDFromContext(r)

	summary, err := s.gate.QuotasFor(r.Context(), accountID)
	if errors.Is(err, billing.ErrSubscriptionNotFound) {
		httputil.WriteNotFoundError(w, "no subscription for account")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, summary)
}
