package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name   string
		status int
		code   string
		msg    string
	}{
		{"validation failure", http.StatusBadRequest, "validation_error", "question is required"},
		{"missing auth", http.StatusUnauthorized, "unauthorized", "missing or invalid token"},
		{"store outage", http.StatusServiceUnavailable, "service_unavailable", "analytics is temporarily unavailable, please try again"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			if err := ErrorResponse(w, tt.status, tt.code, tt.msg); err != nil {
				t.Fatalf("ErrorResponse: %v", err)
			}

			resp := w.Result()
			defer resp.Body.Close()

			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}

			var body map[string]string
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body["error"] != tt.code || body["message"] != tt.msg {
				t.Errorf("body = %v, want error=%q message=%q", body, tt.code, tt.msg)
			}
		})
	}
}

func TestWriteJSON(t *testing.T) {
	type answer struct {
		Success bool   `json:"success"`
		Answer  string `json:"answer"`
		Count   int    `json:"count"`
	}

	t.Run("encodes the payload with the given status", func(t *testing.T) {
		w := httptest.NewRecorder()

		if err := WriteJSON(w, http.StatusOK, answer{Success: true, Answer: "You have 42 orders.", Count: 42}); err != nil {
			t.Fatalf("WriteJSON: %v", err)
		}

		resp := w.Result()
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d, want 200", resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}

		var got answer
		if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if !got.Success || got.Count != 42 {
			t.Errorf("body = %+v", got)
		}
	})

	t.Run("non-200 status is written", func(t *testing.T) {
		w := httptest.NewRecorder()

		if err := WriteJSON(w, http.StatusAccepted, map[string]string{"state": "queued"}); err != nil {
			t.Fatalf("WriteJSON: %v", err)
		}
		if w.Code != http.StatusAccepted {
			t.Errorf("status = %d, want 202", w.Code)
		}
	})

	t.Run("unencodable payload returns an error", func(t *testing.T) {
		w := httptest.NewRecorder()

		if err := WriteJSON(w, http.StatusOK, make(chan int)); err == nil {
			t.Error("WriteJSON(chan) = nil error, want failure")
		}
	})
}
