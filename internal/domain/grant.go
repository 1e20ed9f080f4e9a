package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
)

var grantIDRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// EmbeddingTextSeparator joins record fields into the text handed to the embedder.
const EmbeddingTextSeparator = " | "

// GrantRecord is a normalized funding opportunity (immutable value object).
// Identity is the opportunity ID: re-ingesting the same ID replaces the record.
type GrantRecord struct {
	opportunityID string
	title         string
	agency        string
	description   string
	category      string
	fundingType   string
	postedDate    time.Time // zero = unknown
	closeDate     time.Time // zero = unknown
}

// NewGrantRecord validates and creates a GrantRecord.
// ID: ^[a-zA-Z0-9._-]+$, 1-256 chars. Title is required; everything else is optional.
func NewGrantRecord(
	id, title, agency, description, category, fundingType string,
	postedDate, closeDate time.Time,
) (GrantRecord, error) {
	if id == "" {
		return GrantRecord{}, fmt.Errorf("opportunity ID is required")
	}
	if len(id) > 256 {
		return GrantRecord{}, fmt.Errorf("opportunity ID too long (max 256)")
	}
	if !grantIDRegex.MatchString(id) {
		return GrantRecord{}, fmt.Errorf("opportunity ID must be alphanumeric with dots, underscores and hyphens")
	}
	if strings.TrimSpace(title) == "" {
		return GrantRecord{}, fmt.Errorf("title is required")
	}

	return GrantRecord{
		opportunityID: id,
		title:         title,
		agency:        agency,
		description:   description,
		category:      category,
		fundingType:   fundingType,
		postedDate:    postedDate,
		closeDate:     closeDate,
	}, nil
}

// ReconstructGrantRecord creates a GrantRecord without validation (storage hydration).
func ReconstructGrantRecord(
	id, title, agency, description, category, fundingType string,
	postedDate, closeDate time.Time,
) GrantRecord {
	return GrantRecord{
		opportunityID: id,
		title:         title,
		agency:        agency,
		description:   description,
		category:      category,
		fundingType:   fundingType,
		postedDate:    postedDate,
		closeDate:     closeDate,
	}
}

// OpportunityID returns the unique opportunity identifier.
func (g *GrantRecord) OpportunityID() string { return g.opportunityID }

// Title returns the opportunity title.
func (g *GrantRecord) Title() string { return g.title }

// Agency returns the issuing agency name.
func (g *GrantRecord) Agency() string { return g.agency }

// Description returns the funding description.
func (g *GrantRecord) Description() string { return g.description }

// Category returns the opportunity category.
func (g *GrantRecord) Category() string { return g.category }

// FundingType returns the funding instrument type.
func (g *GrantRecord) FundingType() string { return g.fundingType }

// PostedDate returns the posting date (zero time when unknown).
func (g *GrantRecord) PostedDate() time.Time { return g.postedDate }

// CloseDate returns the application deadline (zero time when unknown).
func (g *GrantRecord) CloseDate() time.Time { return g.closeDate }

// EmbeddingText builds the text fed to the embedder: non-empty fields joined by
// a fixed separator, control characters stripped. Empty fields are omitted
// entirely so the separator never appears around missing values.
func (g *GrantRecord) EmbeddingText() string {
	fields := []string{g.title, g.agency, g.description, g.category, g.fundingType}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if cleaned := sanitizeField(f); cleaned != "" {
			parts = append(parts, cleaned)
		}
	}
	return strings.Join(parts, EmbeddingTextSeparator)
}

// sanitizeField drops control characters and collapses runs of whitespace.
func sanitizeField(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(mapped), " ")
}
