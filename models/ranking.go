package models

import (
	"sort"
	"strings"
	"time"
)

// MaxDisplayedErrors is how many distinct fetch errors are shown to a user
const MaxDisplayedErrors = 2

// RankingResult is the outcome of one ranking refresh. It is built fresh per
// refresh and never mutated once every fetch has settled.
type RankingResult struct {
	ID          string              `json:"id"`
	Entries     []AirQualityReading `json:"entries"` // completion order
	Errors      []string            `json:"errors"`  // distinct hard-fail messages, first-seen order
	StartedAt   time.Time           `json:"startedAt"`
	CompletedAt time.Time           `json:"completedAt"`
}

// Sorted returns a copy of the entries ordered by raw value descending.
// Ties keep completion order.
func (r RankingResult) Sorted() []AirQualityReading {
	out := make([]AirQualityReading, len(r.Entries))
	copy(out, r.Entries)
	SortByValueDesc(out)
	return out
}

// Top returns the n highest entries, or all of them when n <= 0
func (r RankingResult) Top(n int) []AirQualityReading {
	sorted := r.Sorted()
	if n > 0 && n < len(sorted) {
		return sorted[:n]
	}
	return sorted
}

// ErrorSummary joins at most MaxDisplayedErrors errors with "; " and appends
// "..." when more were suppressed. It is empty when there were no errors.
func (r RankingResult) ErrorSummary() string {
	return SummarizeErrors(r.Errors, MaxDisplayedErrors)
}

// Failed reports whether the refresh completed without any usable entry but with errors
func (r RankingResult) Failed() bool {
	return len(r.Entries) == 0 && len(r.Errors) > 0
}

// SortByValueDesc sorts readings in place by raw value, highest first.
// Readings without a value sink to the bottom.
func SortByValueDesc(readings []AirQualityReading) {
	sort.SliceStable(readings, func(i, j int) bool {
		return readings[i].Value() > readings[j].Value()
	})
}

// SummarizeErrors renders the first max errors followed by "..." if any were left out
func SummarizeErrors(errs []string, max int) string {
	if len(errs) == 0 {
		return ""
	}
	if max <= 0 || len(errs) <= max {
		return strings.Join(errs, "; ")
	}
	return strings.Join(errs[:max], "; ") + "..."
}

// RankingView is the presentation form of a result: entries sorted worst first
// and the error summary a user should see.
type RankingView struct {
	ID           string              `json:"id"`
	Entries      []AirQualityReading `json:"entries"`
	Count        int                 `json:"count"`
	Errors       []string            `json:"errors"`
	ErrorSummary string              `json:"errorSummary,omitempty"`
	CompletedAt  time.Time           `json:"completedAt"`
}

// View renders the top n entries (all when n <= 0)
func (r RankingResult) View(n int) RankingView {
	entries := r.Top(n)
	errs := r.Errors
	if errs == nil {
		errs = []string{}
	}
	return RankingView{
		ID:           r.ID,
		Entries:      entries,
		Count:        len(r.Entries),
		Errors:       errs,
		ErrorSummary: r.ErrorSummary(),
		CompletedAt:  r.CompletedAt,
	}
}
