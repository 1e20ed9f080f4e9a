package chi

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	chirouter "github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/grantwatch/retrieval/internal/index"
	logpkg "github.com/grantwatch/retrieval/internal/logger"
	"github.com/grantwatch/retrieval/internal/repository/metadata"
	"github.com/grantwatch/retrieval/internal/transport/local"
	healthuc "github.com/grantwatch/retrieval/internal/usecase/health"
	ingestuc "github.com/grantwatch/retrieval/internal/usecase/ingest"
	retrievaluc "github.com/grantwatch/retrieval/internal/usecase/retrieval"
	routeruc "github.com/grantwatch/retrieval/internal/usecase/router"
)

func newTestServer(t *testing.T) *chirouter.Mux {
	t.Helper()

	const dim = 128
	embed := local.NewEmbedder("hash-v1", dim)
	idx, err := index.New("hash-v1", dim)
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	meta := metadata.New("hash-v1", dim)
	logger := zap.NewNop()

	retrieval := retrievaluc.New(embed, idx, meta, logger)
	ingest := ingestuc.New(embed, idx, meta, nil, logger)
	router := routeruc.New(retrieval, meta, nil, nil, logger).WithSearchDefaults(10, -1)
	health := healthuc.New(retrieval, nil, nil)

	srv := NewServer(retrieval, ingest, router, health,
		SearchDefaults{TopK: 10, MaxTopK: 100, MinScore: -1})

	mux := chirouter.NewRouter()
	srv.Mount(mux)
	return mux
}

func doJSON(t *testing.T, mux *chirouter.Mux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func ingestGrants(t *testing.T, mux *chirouter.Mux, grants ...grantDTO) {
	t.Helper()
	rec := doJSON(t, mux, http.MethodPost, "/v1/ingest", ingestRequestDTO{Grants: grants})
	if rec.Code != http.StatusOK {
		t.Fatalf("ingest status = %d: %s", rec.Code, rec.Body.String())
	}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var e errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &e); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return e
}

func TestSearch_BeforeIngestion(t *testing.T) {
	mux := newTestServer(t)

	rec := doJSON(t, mux, http.MethodPost, "/v1/search", searchRequestDTO{Query: "anything"})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if e := decodeError(t, rec); e.Code != "index_not_ready" {
		t.Errorf("code = %q", e.Code)
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	mux := newTestServer(t)
	ingestGrants(t, mux, grantDTO{OpportunityID: "g-1", Title: "Something"})

	rec := doJSON(t, mux, http.MethodPost, "/v1/search", searchRequestDTO{Query: "  "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if e := decodeError(t, rec); e.Code != "invalid_query" {
		t.Errorf("code = %q", e.Code)
	}
}

func TestSearch_MalformedBody(t *testing.T) {
	mux := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/search", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestSearch_IngestThenSearch(t *testing.T) {
	mux := newTestServer(t)
	ingestGrants(t, mux,
		grantDTO{OpportunityID: "NSF-AI-2024-001", Title: "AI safety research", Agency: "NSF",
			PostedDate: "2024-03-01", CloseDate: "2024-06-30"},
		grantDTO{OpportunityID: "DOT-BR-2024-007", Title: "Bridge repair program", Agency: "DOT"},
	)

	rec := doJSON(t, mux, http.MethodPost, "/v1/search", searchRequestDTO{Query: "AI safety research"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp searchResponseDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count == 0 {
		t.Fatal("no results")
	}
	if resp.Results[0].OpportunityID != "NSF-AI-2024-001" {
		t.Errorf("top hit = %q", resp.Results[0].OpportunityID)
	}
	if resp.Results[0].Grant.PostedDate != "2024-03-01" {
		t.Errorf("posted_date = %q", resp.Results[0].Grant.PostedDate)
	}
}

func TestSearch_AgencyFilter(t *testing.T) {
	mux := newTestServer(t)
	ingestGrants(t, mux,
		grantDTO{OpportunityID: "g-1", Title: "Energy research", Agency: "DOE"},
		grantDTO{OpportunityID: "g-2", Title: "Energy research too", Agency: "NSF"},
	)

	rec := doJSON(t, mux, http.MethodPost, "/v1/search", searchRequestDTO{
		Query:   "Energy research",
		Filters: &filterDTO{Agency: "DOE"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp searchResponseDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 1 || resp.Results[0].Grant.Agency != "DOE" {
		t.Errorf("results = %+v, want only the DOE grant", resp.Results)
	}
}

func TestSearch_BadFilterDate(t *testing.T) {
	mux := newTestServer(t)

	rec := doJSON(t, mux, http.MethodPost, "/v1/search", searchRequestDTO{
		Query:   "anything",
		Filters: &filterDTO{PostedFrom: "03/01/2024"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for a non-ISO date", rec.Code)
	}
}

func TestIngest_MalformedRecordsReportedPerItem(t *testing.T) {
	mux := newTestServer(t)

	rec := doJSON(t, mux, http.MethodPost, "/v1/ingest", ingestRequestDTO{Grants: []grantDTO{
		{OpportunityID: "g-1", Title: "Valid"},
		{OpportunityID: "bad id!", Title: "Invalid ID"},
		{OpportunityID: "g-2", Title: ""},
	}})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp ingestResponseDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Indexed != 1 || resp.Skipped != 2 {
		t.Errorf("indexed=%d skipped=%d, want 1/2", resp.Indexed, resp.Skipped)
	}
	for _, item := range resp.Items {
		if item.Status == "skipped" && item.Error == "" {
			t.Errorf("skipped item %q has no error message", item.OpportunityID)
		}
	}
}

func TestIngest_EmptyBatchRejected(t *testing.T) {
	mux := newTestServer(t)

	rec := doJSON(t, mux, http.MethodPost, "/v1/ingest", ingestRequestDTO{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestQuery_SearchIntent(t *testing.T) {
	mux := newTestServer(t)
	ingestGrants(t, mux, grantDTO{OpportunityID: "g-1", Title: "Wildfire prevention"})

	rec := doJSON(t, mux, http.MethodPost, "/v1/query", queryRequestDTO{Text: "wildfire prevention grants"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp queryResponseDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Intent != "search" || resp.State != "completed" {
		t.Errorf("intent=%q state=%q", resp.Intent, resp.State)
	}
}

func TestQuery_Unroutable(t *testing.T) {
	mux := newTestServer(t)

	rec := doJSON(t, mux, http.MethodPost, "/v1/query", queryRequestDTO{Text: "  "})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}

	var resp queryResponseDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Clarification == "" {
		t.Error("unroutable response must include a clarification")
	}
}

func TestHealth_NotReadyThenOK(t *testing.T) {
	mux := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 before first ingestion", rec.Code)
	}

	ingestGrants(t, mux, grantDTO{OpportunityID: "g-1", Title: "Anything"})

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 after ingestion", rec.Code)
	}
}

func TestDomainError_UnmappedErrorUsesRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	srv := NewServer(nil, nil, nil, nil, SearchDefaults{})

	req := httptest.NewRequest(http.MethodPost, "/v1/search", nil)
	req = req.WithContext(logpkg.ContextWithLogger(req.Context(), zap.New(core)))
	rec := httptest.NewRecorder()

	srv.handleDomainError(rec, req, errors.New("snapshot corrupted"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if logs.Len() != 1 {
		t.Fatalf("observed %d log entries, want 1", logs.Len())
	}
	if got := logs.All()[0].Message; got != "Unhandled error" {
		t.Errorf("message = %q, want %q", got, "Unhandled error")
	}
}
