package models

// ResultEnvelope is the normalized outcome of one tool execution. Exactly one
// of Records, Value, or Count carries the primary payload depending on the
// tool; Meta holds secondary details (record counts behind an average, the
// window behind a date-range query).
type ResultEnvelope struct {
	Success bool             `json:"success"`
	Records []map[string]any `json:"records,omitempty"`
	Value   *float64         `json:"value,omitempty"`
	Count   *int64           `json:"count,omitempty"`
	Meta    map[string]any   `json:"meta,omitempty"`
	Err     string           `json:"error,omitempty"`
}

// FailedEnvelope builds a success:false envelope with a human-readable
// message. Used for bad parameters and classification misses, never for
// store connectivity failures, which propagate as errors instead.
func FailedEnvelope(msg string) ResultEnvelope {
	return ResultEnvelope{Success: false, Err: msg}
}
