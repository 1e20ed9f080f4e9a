// Package filter defines the structured post-filter applied to search results
// after similarity ranking.
package filter

import (
	"time"

	"github.com/grantwatch/retrieval/internal/domain"
)

// Filter is a conjunction of optional predicates over grant attributes.
// A predicate referencing a field the record does not carry excludes the record.
// Date bounds are inclusive on both ends.
type Filter struct {
	agency      string
	category    string
	fundingType string
	postedFrom  time.Time // posted_date >= postedFrom
	closeUntil  time.Time // close_date <= closeUntil
}

// New creates a Filter. Empty strings and zero times mean "no predicate".
func New(agency, category, fundingType string, postedFrom, closeUntil time.Time) Filter {
	return Filter{
		agency:      agency,
		category:    category,
		fundingType: fundingType,
		postedFrom:  postedFrom,
		closeUntil:  closeUntil,
	}
}

// Agency returns the agency equality predicate ("" = unset).
func (f Filter) Agency() string { return f.agency }

// Category returns the category equality predicate ("" = unset).
func (f Filter) Category() string { return f.category }

// FundingType returns the funding type equality predicate ("" = unset).
func (f Filter) FundingType() string { return f.fundingType }

// PostedFrom returns the inclusive lower bound on posted_date (zero = unset).
func (f Filter) PostedFrom() time.Time { return f.postedFrom }

// CloseUntil returns the inclusive upper bound on close_date (zero = unset).
func (f Filter) CloseUntil() time.Time { return f.closeUntil }

// IsEmpty reports whether the filter has no predicates.
func (f Filter) IsEmpty() bool {
	return f.agency == "" && f.category == "" && f.fundingType == "" &&
		f.postedFrom.IsZero() && f.closeUntil.IsZero()
}

// Matches evaluates the conjunction against a record.
func (f Filter) Matches(rec *domain.GrantRecord) bool {
	if f.agency != "" && rec.Agency() != f.agency {
		return false
	}
	if f.category != "" && rec.Category() != f.category {
		return false
	}
	if f.fundingType != "" && rec.FundingType() != f.fundingType {
		return false
	}
	if !f.postedFrom.IsZero() {
		if rec.PostedDate().IsZero() || rec.PostedDate().Before(f.postedFrom) {
			return false
		}
	}
	if !f.closeUntil.IsZero() {
		if rec.CloseDate().IsZero() || rec.CloseDate().After(f.closeUntil) {
			return false
		}
	}
	return true
}
