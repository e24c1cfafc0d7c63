package api

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"

	"github.com/rankforge/rankforge/pkg/audits"
	"github.com/rankforge/rankforge/pkg/httputil"
	"github.com/rankforge/rankforge/pkg/middleware"
	"github.com/rankforge/rankforge/pkg/plans"
)

const defaultMaxPages = 100

// createAuditRunRequest is the body of POST /api/accounts/{account_id}/audits
type createAuditRunRequest struct {
	TargetURL string `json:"target_url"`
	MaxPages  int    `json:"max_pages"`
}

// createKeywordSearchRequest is the body of POST /api/accounts/{account_id}/keyword-searches
type createKeywordSearchRequest struct {
	Query   string `json:"query"`
	Country string `json:"country"`
}

// createAuditRun handles POST /api/accounts/{account_id}/audits. Quota
// admission already happened in middleware; the usage record is appended
// here, after the run exists.
func (s *Server) createAuditRun(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountIDFromContext(r)

	var req createAuditRunRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !validTargetURL(req.TargetURL) {
		httputil.WriteValidationError(w, "target_url must be an absolute http(s) URL")
		return
	}
	if req.MaxPages <= 0 {
		req.MaxPages = defaultMaxPages
	}

	run := &audits.AuditRun{
		AccountID: accountID,
		TargetURL: req.TargetURL,
		MaxPages:  req.MaxPages,
	}
	if err := s.auditStore.CreateAuditRun(r.Context(), run); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	s.recordUsage(r, accountID, plans.ResourceAudit)
	httputil.WriteCreated(w, run)
}

// getAuditRun handles GET /api/accounts/{account_id}/audits/{run_id}
func (s *Server) getAuditRun(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountIDFromContext(r)
	runID := mux.Vars(r)["run_id"]

	run, err := s.auditStore.GetAuditRun(r.Context(), accountID, runID)
	if errors.Is(err, audits.ErrRunNotFound) {
		httputil.WriteNotFoundError(w, "audit run not found")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, run)
}

// listAuditRuns handles GET /api/accounts/{account_id}/audits
func (s *Server) listAuditRuns(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountIDFromContext(r)

	limit, err := httputil.ParseQueryInt(r, "limit", 100)
	if err != nil || limit <= 0 {
		httputil.WriteBadRequest(w, "limit must be a positive integer")
		return
	}

	runs, err := s.auditStore.ListAuditRuns(r.Context(), accountID, limit)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if runs == nil {
		runs = []*audits.AuditRun{}
	}

	httputil.WriteSuccess(w, runs)
}

// createKeywordSearch handles POST /api/accounts/{account_id}/keyword-searches
func (s *Server) createKeywordSearch(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountIDFromContext(r)

	var req createKeywordSearchRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Query == "" {
		httputil.WriteValidationError(w, "query is required")
		return
	}
	if req.Country == "" {
		req.Country = "us"
	}

	search := &audits.KeywordSearch{
		AccountID: accountID,
		Query:     req.Query,
		Country:   req.Country,
	}
	if err := s.auditStore.CreateKeywordSearch(r.Context(), search); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	s.recordUsage(r, accountID, plans.ResourceKeywordSearch)
	httputil.WriteCreated(w, search)
}

// recordUsage appends a usage record for a created resource. The resource
// already exists, so a ledger failure is logged rather than surfaced; the
// next billing period self-corrects.
func (s *Server) recordUsage(r *http.Request, accountID int64, kind plans.ResourceKind) {
	if err := s.ledger.RecordUsage(r.Context(), accountID, kind, time.Now()); err != nil {
		s.logger.WithError(err).WithField("account_id", accountID).Error("Failed to record usage")
		return
	}
	s.metrics.UsageRecordsTotal.WithLabelValues(string(kind)).Inc()
}

func validTargetURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
