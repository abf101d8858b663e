package web

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/cocaresync/cocaresync/internal/core"
)

// healthResponse reports database reachability and import slot usage.
type healthResponse struct {
	Status  string                   `json:"status"`
	Imports core.ImportLimiterStatus `json:"imports"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Imports: s.service.ImportLimiterStatus()}
	if err := s.service.Ping(r.Context()); err != nil {
		s.respondError(w, r, err, http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.service.CurrentUser(r.Context(), core.UserIDFromContext(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleListIntegrations(w http.ResponseWriter, r *http.Request) {
	integrations, err := s.service.ListIntegrations(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, integrations)
}

func (s *Server) handleListQualityIssues(w http.ResponseWriter, r *http.Request) {
	resolved, err := parseBoolParam(r, "resolved")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	filter := core.QualityIssueFilter{
		Severity: r.URL.Query().Get("severity"),
		Resolved: resolved,
		Limit:    parseIntParam(r, "limit", core.DefaultPageSize),
	}

	page, err := s.service.ListQualityIssues(r.Context(), filter, parseIntParam(r, "page", 1))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleResolveQualityIssue(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}

	issue, err := s.service.ResolveQualityIssue(r.Context(), id, core.UserIDFromContext(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (s *Server) handleDashboardMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := s.service.DashboardMetrics(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleCoInfectionTrends(w http.ResponseWriter, r *http.Request) {
	trends, err := s.service.CoInfectionTrends(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trends)
}

func (s *Server) handleProvincialDistribution(w http.ResponseWriter, r *http.Request) {
	dist, err := s.service.ProvincialDistribution(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dist)
}

func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	since, err := parseTimeParam(r, "since")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	until, err := parseTimeParam(r, "until")
	if err != nil {
		s.fail(w, r, err)
		return
	}

	filter := core.AuditFilter{
		ResourceType: q.Get("resourceType"),
		Action:       core.AuditAction(q.Get("action")),
		UserID:       q.Get("userId"),
		Since:        since,
		Until:        until,
		Limit:        parseIntParam(r, "limit", core.DefaultPageSize),
	}

	page, err := s.service.ListAuditLogs(r.Context(), filter, parseIntParam(r, "page", 1))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleFHIRPatients(w http.ResponseWriter, r *http.Request) {
	bundle, err := s.service.FHIRPatients(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/fhir+json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(bundle)
}
