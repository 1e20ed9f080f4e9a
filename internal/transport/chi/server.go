// Package chi is the HTTP transport for the retrieval service.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	chirouter "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/grantwatch/retrieval/internal/domain"
	"github.com/grantwatch/retrieval/internal/domain/search/request"
	logpkg "github.com/grantwatch/retrieval/internal/logger"
	healthuc "github.com/grantwatch/retrieval/internal/usecase/health"
	ingestuc "github.com/grantwatch/retrieval/internal/usecase/ingest"
	retrievaluc "github.com/grantwatch/retrieval/internal/usecase/retrieval"
	routeruc "github.com/grantwatch/retrieval/internal/usecase/router"
)

// maxIngestBatch caps the number of grants accepted per ingest request.
const maxIngestBatch = 5000

// sentinelStatus maps a domain error to an HTTP status and error code.
type sentinelStatus struct {
	err    error
	status int
	code   string
}

// Server exposes the retrieval core over HTTP.
type Server struct {
	retrieval *retrievaluc.Service
	ingest    *ingestuc.Service
	router    *routeruc.Service
	health    *healthuc.Service
	defaults  SearchDefaults
	sentinels []sentinelStatus
}

// SearchDefaults hold the configured search parameters applied when a
// request omits them.
type SearchDefaults struct {
	TopK     int
	MaxTopK  int
	MinScore float64
}

// NewServer creates an HTTP API server.
func NewServer(
	retrieval *retrievaluc.Service,
	ingest *ingestuc.Service,
	router *routeruc.Service,
	health *healthuc.Service,
	defaults SearchDefaults,
) *Server {
	return &Server{
		retrieval: retrieval,
		ingest:    ingest,
		router:    router,
		health:    health,
		defaults:  defaults,
		sentinels: []sentinelStatus{
			{domain.ErrInvalidQuery, http.StatusBadRequest, "invalid_query"},
			{domain.ErrInvalidArgument, http.StatusBadRequest, "invalid_argument"},
			{domain.ErrNotFound, http.StatusNotFound, "not_found"},
			{domain.ErrIndexNotReady, http.StatusServiceUnavailable, "index_not_ready"},
			{domain.ErrUnroutableQuery, http.StatusUnprocessableEntity, "unroutable_query"},
			{domain.ErrDimensionMismatch, http.StatusConflict, "dimension_mismatch"},
			{domain.ErrIncompatibleIndex, http.StatusConflict, "incompatible_index"},
			{domain.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
			{domain.ErrEmbeddingProviderError, http.StatusBadGateway, "embedding_provider_error"},
			{domain.ErrExternalToolTimeout, http.StatusGatewayTimeout, "external_tool_timeout"},
			{domain.ErrExternalToolError, http.StatusBadGateway, "external_tool_error"},
		},
	}
}

// Mount registers all routes on the given router.
func (s *Server) Mount(r chirouter.Router) {
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Route("/v1", func(r chirouter.Router) {
		r.Post("/search", s.handleSearch)
		r.Post("/ingest", s.handleIngest)
		r.Post("/query", s.handleQuery)
	})
}

// handleSearch handles POST /v1/search.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}

	filters, err := filterFromDTO(req.Filters)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", err.Error())
		return
	}

	topK := req.TopK
	if topK == 0 {
		topK = s.defaults.TopK
	}
	if s.defaults.MaxTopK > 0 && topK > s.defaults.MaxTopK {
		topK = s.defaults.MaxTopK
	}
	minScore := s.defaults.MinScore
	if req.MinScore != nil {
		minScore = *req.MinScore
	}

	domReq, err := request.New(req.Query, topK, minScore, filters)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	results, err := s.retrieval.SearchGrants(r.Context(), &domReq)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, searchResponseDTO{
		Results: resultsToDTO(results),
		Count:   len(results),
	})
}

// handleIngest handles POST /v1/ingest.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if len(req.Grants) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_argument", "grants is required")
		return
	}
	if len(req.Grants) > maxIngestBatch {
		writeError(w, http.StatusBadRequest, "invalid_argument", "too many grants in one batch")
		return
	}

	// Malformed records are reported per item, not rejected wholesale.
	records := make([]domain.GrantRecord, 0, len(req.Grants))
	malformed := make([]ingestItemDTO, 0)
	for _, dto := range req.Grants {
		rec, err := grantFromDTO(dto)
		if err != nil {
			malformed = append(malformed, ingestItemDTO{
				OpportunityID: dto.OpportunityID,
				Status:        "skipped",
				Error:         err.Error(),
			})
			continue
		}
		records = append(records, rec)
	}

	report, err := s.ingest.Ingest(r.Context(), records)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ingestResponseDTO{
		Indexed: report.Indexed,
		Skipped: report.Skipped + len(malformed),
		Items:   append(ingestItemsToDTO(report.Items), malformed...),
	})
}

// handleQuery handles POST /v1/query (the agent entrypoint).
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}

	resp, err := s.router.Handle(r.Context(), req.Text)
	if err != nil {
		// An unroutable request carries a clarification prompt for the caller.
		if errors.Is(err, domain.ErrUnroutableQuery) {
			writeJSON(w, http.StatusUnprocessableEntity, routerResponseToDTO(resp))
			return
		}
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, routerResponseToDTO(resp))
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for name, res := range report.Checks {
		checks[name] = string(res)
	}

	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, healthResponseDTO{
		Status: string(report.Status),
		Checks: checks,
	})
}

// handleDomainError maps domain sentinel errors to HTTP responses.
// Unmapped errors are logged with the request-scoped logger.
func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range s.sentinels {
		if errors.Is(err, m.err) {
			writeError(w, m.status, m.code, err.Error())
			return
		}
	}
	logpkg.FromContext(r.Context()).Error("Unhandled error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}
