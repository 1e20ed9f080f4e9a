package chi

import (
	"fmt"
	"time"

	"github.com/grantwatch/retrieval/internal/domain"
	"github.com/grantwatch/retrieval/internal/domain/batch"
	"github.com/grantwatch/retrieval/internal/domain/search/filter"
	"github.com/grantwatch/retrieval/internal/domain/search/result"
	"github.com/grantwatch/retrieval/internal/usecase/router"
)

const dateLayout = "2006-01-02"

// errorResponse is the JSON error envelope.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// grantDTO is the wire shape of a grant record.
type grantDTO struct {
	OpportunityID string `json:"opportunity_id"`
	Title         string `json:"title"`
	Agency        string `json:"agency,omitempty"`
	Description   string `json:"description,omitempty"`
	Category      string `json:"category,omitempty"`
	FundingType   string `json:"funding_type,omitempty"`
	PostedDate    string `json:"posted_date,omitempty"`
	CloseDate     string `json:"close_date,omitempty"`
}

// filterDTO is the wire shape of the search post-filter.
type filterDTO struct {
	Agency      string `json:"agency,omitempty"`
	Category    string `json:"category,omitempty"`
	FundingType string `json:"funding_type,omitempty"`
	PostedFrom  string `json:"posted_from,omitempty"`
	CloseUntil  string `json:"close_until,omitempty"`
}

type searchRequestDTO struct {
	Query    string     `json:"query"`
	TopK     int        `json:"top_k,omitempty"`
	MinScore *float64   `json:"min_score,omitempty"`
	Filters  *filterDTO `json:"filters,omitempty"`
}

type searchResultDTO struct {
	OpportunityID string   `json:"opportunity_id"`
	Score         float64  `json:"score"`
	Grant         grantDTO `json:"grant"`
}

type searchResponseDTO struct {
	Results []searchResultDTO `json:"results"`
	Count   int               `json:"count"`
}

type ingestRequestDTO struct {
	Grants []grantDTO `json:"grants"`
}

type ingestItemDTO struct {
	OpportunityID string `json:"opportunity_id"`
	Status        string `json:"status"`
	Error         string `json:"error,omitempty"`
}

type ingestResponseDTO struct {
	Indexed int             `json:"indexed"`
	Skipped int             `json:"skipped"`
	Items   []ingestItemDTO `json:"items"`
}

type queryRequestDTO struct {
	Text string `json:"text"`
}

type queryResponseDTO struct {
	Intent        string            `json:"intent"`
	State         string            `json:"state"`
	Summary       string            `json:"summary,omitempty"`
	Degraded      bool              `json:"degraded,omitempty"`
	Clarification string            `json:"clarification,omitempty"`
	Results       []searchResultDTO `json:"results,omitempty"`
}

type healthResponseDTO struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func grantFromDTO(dto grantDTO) (domain.GrantRecord, error) {
	posted, err := parseOptionalDate(dto.PostedDate)
	if err != nil {
		return domain.GrantRecord{}, fmt.Errorf("posted_date: %w", err)
	}
	closeDate, err := parseOptionalDate(dto.CloseDate)
	if err != nil {
		return domain.GrantRecord{}, fmt.Errorf("close_date: %w", err)
	}
	return domain.NewGrantRecord(
		dto.OpportunityID, dto.Title, dto.Agency, dto.Description,
		dto.Category, dto.FundingType, posted, closeDate,
	)
}

func grantToDTO(rec domain.GrantRecord) grantDTO {
	return grantDTO{
		OpportunityID: rec.OpportunityID(),
		Title:         rec.Title(),
		Agency:        rec.Agency(),
		Description:   rec.Description(),
		Category:      rec.Category(),
		FundingType:   rec.FundingType(),
		PostedDate:    formatOptionalDate(rec.PostedDate()),
		CloseDate:     formatOptionalDate(rec.CloseDate()),
	}
}

func filterFromDTO(dto *filterDTO) (filter.Filter, error) {
	if dto == nil {
		return filter.Filter{}, nil
	}
	postedFrom, err := parseOptionalDate(dto.PostedFrom)
	if err != nil {
		return filter.Filter{}, fmt.Errorf("posted_from: %w", err)
	}
	closeUntil, err := parseOptionalDate(dto.CloseUntil)
	if err != nil {
		return filter.Filter{}, fmt.Errorf("close_until: %w", err)
	}
	return filter.New(dto.Agency, dto.Category, dto.FundingType, postedFrom, closeUntil), nil
}

func resultsToDTO(results []result.Result) []searchResultDTO {
	out := make([]searchResultDTO, len(results))
	for i := range results {
		out[i] = searchResultDTO{
			OpportunityID: results[i].OpportunityID(),
			Score:         results[i].Score(),
			Grant:         grantToDTO(results[i].Record()),
		}
	}
	return out
}

func ingestItemsToDTO(items []batch.Result) []ingestItemDTO {
	out := make([]ingestItemDTO, len(items))
	for i, item := range items {
		dto := ingestItemDTO{
			OpportunityID: item.ID(),
			Status:        string(item.Status()),
		}
		if item.Err() != nil {
			dto.Error = item.Err().Error()
		}
		out[i] = dto
	}
	return out
}

func routerResponseToDTO(resp router.Response) queryResponseDTO {
	return queryResponseDTO{
		Intent:        string(resp.Intent),
		State:         string(resp.State),
		Summary:       resp.Summary,
		Degraded:      resp.Degraded,
		Clarification: resp.Clarification,
		Results:       resultsToDTO(resp.Results),
	}
}

func parseOptionalDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD, got %q", s)
	}
	return t, nil
}

func formatOptionalDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}
