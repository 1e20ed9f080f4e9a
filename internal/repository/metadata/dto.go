package metadata

import (
	"fmt"
	"time"

	"github.com/grantwatch/retrieval/internal/domain"
)

// dateLayout is the calendar-date wire format for posted/close dates.
const dateLayout = "2006-01-02"

// snapshotDTO is the JSON shape of the persisted metadata snapshot.
type snapshotDTO struct {
	Version    int                  `json:"version"`
	Model      string               `json:"model"`
	Dimensions int                  `json:"dimensions"`
	Records    map[string]recordDTO `json:"records"`
}

// recordDTO is the JSON shape of a single grant record.
type recordDTO struct {
	Title       string `json:"title"`
	Agency      string `json:"agency,omitempty"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	FundingType string `json:"funding_type,omitempty"`
	PostedDate  string `json:"posted_date,omitempty"`
	CloseDate   string `json:"close_date,omitempty"`
}

func toDTO(rec *domain.GrantRecord) recordDTO {
	return recordDTO{
		Title:       rec.Title(),
		Agency:      rec.Agency(),
		Description: rec.Description(),
		Category:    rec.Category(),
		FundingType: rec.FundingType(),
		PostedDate:  formatDate(rec.PostedDate()),
		CloseDate:   formatDate(rec.CloseDate()),
	}
}

func fromDTO(id string, dto recordDTO) (domain.GrantRecord, error) {
	posted, err := parseDate(dto.PostedDate)
	if err != nil {
		return domain.GrantRecord{}, fmt.Errorf("record %q posted_date: %w", id, err)
	}
	closeDate, err := parseDate(dto.CloseDate)
	if err != nil {
		return domain.GrantRecord{}, fmt.Errorf("record %q close_date: %w", id, err)
	}
	return domain.ReconstructGrantRecord(
		id, dto.Title, dto.Agency, dto.Description, dto.Category, dto.FundingType,
		posted, closeDate,
	), nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}
