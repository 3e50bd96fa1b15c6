package models

import "time"

// DateRange is a half-open timestamp window [GTE, LT). Open-ended periods
// ("today", "this month", "last 7 days") leave LT nil.
type DateRange struct {
	GTE time.Time  `json:"gte"`
	LT  *time.Time `json:"lt,omitempty"`
}

// StatusFilter is an exact-match predicate on a status-like field. Field is
// either "status" (order status) or "payment_status"; the extractor keeps
// the two vocabularies strictly apart.
type StatusFilter struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// NumericFilter is a comparison predicate on an amount field. Only the
// operators present are applied.
type NumericFilter struct {
	Field string   `json:"field"`
	GT    *float64 `json:"gt,omitempty"`
	GTE   *float64 `json:"gte,omitempty"`
	LT    *float64 `json:"lt,omitempty"`
	LTE   *float64 `json:"lte,omitempty"`
}

// ExtractedFilters holds every structured constraint recovered from question
// text. Absent filters mean "no constraint detected"; that is the correct
// representation, not an error.
type ExtractedFilters struct {
	Date    *DateRange     `json:"date,omitempty"`
	Status  []StatusFilter `json:"status,omitempty"`
	Numeric *NumericFilter `json:"numeric,omitempty"`
	// Extra carries literal field=value equality filters supplied by the
	// generative classifier. Values are injection-screened before they may
	// enter a pipeline.
	Extra map[string]string `json:"extra,omitempty"`
}

// IsEmpty reports whether no filter of any kind was extracted.
func (f ExtractedFilters) IsEmpty() bool {
	return f.Date == nil && len(f.Status) == 0 && f.Numeric == nil && len(f.Extra) == 0
}
