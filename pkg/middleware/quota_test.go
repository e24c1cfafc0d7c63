package middleware

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rankforge/rankforge/pkg/billing"
	"github.com/rankforge/rankforge/pkg/observability"
	"github.com/rankforge/rankforge/pkg/plans"
	"github.com/rankforge/rankforge/pkg/quota"
)

type stubSubs struct {
	sub *billing.Subscription
	err error
}

func (s *stubSubs) GetByAccount(ctx context.Context, accountID int64) (*billing.Subscription, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.sub, nil
}

type stubLedger struct {
	used int64
	err  error
}

func (s *stubLedger) RecordUsage(ctx context.Context, accountID int64, kind plans.ResourceKind, at time.Time) error {
	return nil
}

func (s *stubLedger) CountUsage(ctx context.Context, accountID int64, kind plans.ResourceKind, periodStart, periodEnd time.Time) (int64, error) {
	return s.used, s.err
}

func newQuotaMiddlewareForTest(subs *stubSubs, ledger *stubLedger) *QuotaMiddleware {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	gate := quota.NewGate(subs, ledger, plans.DefaultCatalog(), quota.Config{}, metrics)
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	return NewQuotaMiddleware(gate, logger)
}

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestQuotaMiddleware_EnforceQuota(t *testing.T) {
	activeSub := &billing.Subscription{
		ID:        1,
		AccountID: 42,
		Tier:      plans.TierStarter,
		Status:    billing.StatusActive,
	}

	t.Run("allows request under quota", func(t *testing.T) {
		m := newQuotaMiddlewareForTest(&stubSubs{sub: activeSub}, &stubLedger{used: 5})

		called := false
		handler := m.EnforceQuota(plans.ResourceAudit)(okHandler(&called))

		req := setAccountForTest(httptest.NewRequest(http.MethodPost, "/audits", nil), 42)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
		if !called {
			t.Error("handler should be called")
		}
	})

	t.Run("denies exhausted quota with 429 and decision payload", func(t *testing.T) {
		m := newQuotaMiddlewareForTest(&stubSubs{sub: activeSub}, &stubLedger{used: 10})

		called := false
		handler := m.EnforceQuota(plans.ResourceAudit)(okHandler(&called))

		req := setAccountForTest(httptest.NewRequest(http.MethodPost, "/audits", nil), 42)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusTooManyRequests {
			t.Errorf("expected 429, got %d", rec.Code)
		}
		if called {
			t.Error("handler should not be called")
		}

		var decision quota.Decision
		if err := json.NewDecoder(rec.Body).Decode(&decision); err != nil {
			t.Fatalf("failed to decode decision: %v", err)
		}
		if decision.Allowed {
			t.Error("decision should be denied")
		}
		if decision.Reason != quota.ReasonQuotaExceeded {
			t.Errorf("expected reason %s, got %s", quota.ReasonQuotaExceeded, decision.Reason)
		}
	})

	t.Run("missing subscription yields 402", func(t *testing.T) {
		m := newQuotaMiddlewareForTest(&stubSubs{err: billing.ErrSubscriptionNotFound}, &stubLedger{})

		called := false
		handler := m.EnforceQuota(plans.ResourceAudit)(okHandler(&called))

		req := setAccountForTest(httptest.NewRequest(http.MethodPost, "/audits", nil), 42)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusPaymentRequired {
			t.Errorf("expected 402, got %d", rec.Code)
		}
		if called {
			t.Error("handler should not be called")
		}
	})

	t.Run("unknown resource yields 400", func(t *testing.T) {
		m := newQuotaMiddlewareForTest(&stubSubs{sub: activeSub}, &stubLedger{})

		called := false
		handler := m.EnforceQuota(plans.ResourceKind("gpu_hours"))(okHandler(&called))

		req := setAccountForTest(httptest.NewRequest(http.MethodPost, "/audits", nil), 42)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("skips enforcement without account scope", func(t *testing.T) {
		m := newQuotaMiddlewareForTest(&stubSubs{err: billing.ErrSubscriptionNotFound}, &stubLedger{})

		called := false
		handler := m.EnforceQuota(plans.ResourceAudit)(okHandler(&called))

		req := httptest.NewRequest(http.MethodPost, "/audits", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
		if !called {
			t.Error("handler should be called")
		}
	})
}
