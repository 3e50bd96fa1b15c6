package jsonutil

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FlexibleStringValue converts a json.RawMessage to a string, handling cases where
// LLMs return numbers or booleans instead of strings. Returns empty string for null/empty.
func FlexibleStringValue(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	// Try string first
	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		return strVal
	}

	// Try number
	var numVal float64
	if err := json.Unmarshal(raw, &numVal); err == nil {
		if numVal == float64(int64(numVal)) {
			return fmt.Sprintf("%d", int64(numVal))
		}
		return fmt.Sprintf("%g", numVal)
	}

	// Try boolean
	var boolVal bool
	if err := json.Unmarshal(raw, &boolVal); err == nil {
		return fmt.Sprintf("%t", boolVal)
	}

	// Fallback: return raw string representation
	return string(raw)
}

// FlexibleIntValue converts a json.RawMessage to an int, handling cases where
// LLMs return quoted numbers ("7") or floats (7.0) instead of integers.
// Returns 0 and false when no integer can be extracted.
func FlexibleIntValue(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}

	// Try number first
	var numVal float64
	if err := json.Unmarshal(raw, &numVal); err == nil {
		return int(numVal), true
	}

	// Try quoted number
	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		strVal = strings.TrimSpace(strVal)
		if strVal == "" {
			return 0, false
		}
		if n, err := strconv.Atoi(strVal); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(strVal, 64); err == nil {
			return int(f), true
		}
	}

	return 0, false
}

// FlexibleFloatValue converts a json.RawMessage to a float64, handling quoted
// numbers. Returns 0 and false when no number can be extracted.
func FlexibleFloatValue(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}

	var numVal float64
	if err := json.Unmarshal(raw, &numVal); err == nil {
		return numVal, true
	}

	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		strVal = strings.TrimSpace(strVal)
		if strVal == "" {
			return 0, false
		}
		if f, err := strconv.ParseFloat(strVal, 64); err == nil {
			return f, true
		}
	}

	return 0, false
}

// FlexibleBoolValue converts a json.RawMessage to a bool, accepting native
// booleans and the strings "true"/"false". Returns false and false otherwise.
func FlexibleBoolValue(raw json.RawMessage) (bool, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return false, false
	}

	var boolVal bool
	if err := json.Unmarshal(raw, &boolVal); err == nil {
		return boolVal, true
	}

	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		switch strings.ToLower(strings.TrimSpace(strVal)) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}

	return false, false
}
