package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/shoplens-ai/shoplens-engine/pkg/apperrors"
	"github.com/shoplens-ai/shoplens-engine/pkg/auth"
	"github.com/shoplens-ai/shoplens-engine/pkg/models"
)

// stubOrchestrator records the question it was asked and returns canned results.
type stubOrchestrator struct {
	response    models.QueryResponse
	err         error
	gotQuestion models.Question
	gotUseCache bool
	calls       int
}

func (s *stubOrchestrator) ProcessQuery(ctx context.Context, question models.Question, useCache bool) (models.QueryResponse, error) {
	s.calls++
	s.gotQuestion = question
	s.gotUseCache = useCache
	return s.response, s.err
}

func askRequest(t *testing.T, shopID int64, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(body))
	if shopID > 0 {
		ctx := context.WithValue(req.Context(), auth.ClaimsKey, &auth.Claims{ShopID: shopID})
		req = req.WithContext(ctx)
	}
	return req
}

func TestQueryHandler_Ask_Success(t *testing.T) {
	orch := &stubOrchestrator{response: models.QueryResponse{
		Answer:     "You have 7 orders.",
		Tool:       models.ToolCountDocuments,
		Confidence: 0.9,
		Method:     models.MethodPattern,
	}}
	handler := NewQueryHandler(orch, zap.NewNop())

	req := askRequest(t, 13, `{"question": "  How many orders do I have?  "}`)
	rec := httptest.NewRecorder()

	handler.Ask(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (body %s)", rec.Code, rec.Body.String())
	}

	var response models.QueryResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Answer != "You have 7 orders." {
		t.Errorf("unexpected answer %q", response.Answer)
	}
	if response.Tool != models.ToolCountDocuments {
		t.Errorf("unexpected tool %q", response.Tool)
	}

	if orch.gotQuestion.ShopID != 13 {
		t.Errorf("expected shop 13 from claims, got %d", orch.gotQuestion.ShopID)
	}
	if orch.gotQuestion.Text != "How many orders do I have?" {
		t.Errorf("expected trimmed question text, got %q", orch.gotQuestion.Text)
	}
	if !orch.gotUseCache {
		t.Error("expected use_cache to default to true")
	}
}

func TestQueryHandler_Ask_CacheOptOut(t *testing.T) {
	orch := &stubOrchestrator{response: models.QueryResponse{Answer: "ok"}}
	handler := NewQueryHandler(orch, zap.NewNop())

	req := askRequest(t, 13, `{"question": "how many orders", "use_cache": false}`)
	rec := httptest.NewRecorder()

	handler.Ask(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if orch.gotUseCache {
		t.Error("expected use_cache false to be passed through")
	}
}

func TestQueryHandler_Ask_RequiresAuthenticatedShop(t *testing.T) {
	orch := &stubOrchestrator{}
	handler := NewQueryHandler(orch, zap.NewNop())

	req := askRequest(t, 0, `{"question": "how many orders"}`)
	rec := httptest.NewRecorder()

	handler.Ask(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", rec.Code)
	}
	if orch.calls != 0 {
		t.Error("expected orchestrator not to be called")
	}
}

func TestQueryHandler_Ask_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "invalid JSON", body: `{"question": `},
		{name: "missing question", body: `{}`},
		{name: "blank question", body: `{"question": "   "}`},
		{name: "oversized question", body: fmt.Sprintf(`{"question": %q}`, strings.Repeat("why ", 200))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orch := &stubOrchestrator{}
			handler := NewQueryHandler(orch, zap.NewNop())

			req := askRequest(t, 13, tt.body)
			rec := httptest.NewRecorder()

			handler.Ask(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected status 400, got %d", rec.Code)
			}
			if orch.calls != 0 {
				t.Error("expected orchestrator not to be called")
			}
		})
	}
}

func TestQueryHandler_Ask_StoreDownIs503(t *testing.T) {
	orch := &stubOrchestrator{
		response: models.QueryResponse{Answer: "I couldn't reach your shop data right now. Please try again in a moment."},
		err:      fmt.Errorf("aggregate: %w", apperrors.ErrStoreUnavailable),
	}
	handler := NewQueryHandler(orch, zap.NewNop())

	req := askRequest(t, 13, `{"question": "how many orders do I have"}`)
	rec := httptest.NewRecorder()

	handler.Ask(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rec.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	if body["error"] != "service_unavailable" {
		t.Errorf("expected error 'service_unavailable', got %q", body["error"])
	}
	if !strings.Contains(body["message"], "try again") {
		t.Errorf("expected the polite answer in the message, got %q", body["message"])
	}
}

func TestQueryHandler_Ask_UnexpectedErrorIs500(t *testing.T) {
	orch := &stubOrchestrator{err: errors.New("boom")}
	handler := NewQueryHandler(orch, zap.NewNop())

	req := askRequest(t, 13, `{"question": "how many orders do I have"}`)
	rec := httptest.NewRecorder()

	handler.Ask(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", rec.Code)
	}
}

// TestQueryHandler_RoutedThroughAuth exercises the full mux + middleware chain
// with a dev-mode verifier (parse without signature check).
func TestQueryHandler_RoutedThroughAuth(t *testing.T) {
	orch := &stubOrchestrator{response: models.QueryResponse{Answer: "You have 7 orders."}}
	handler := NewQueryHandler(orch, zap.NewNop())

	verifier, err := auth.NewVerifier(&auth.VerifierConfig{EnableVerification: false})
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	middleware := auth.NewMiddleware(auth.NewAuthService(verifier, zap.NewNop()), zap.NewNop())

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux, middleware)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &auth.Claims{ShopID: 13}).
		SignedString([]byte("dev"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`{"question": "how many orders"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (body %s)", rec.Code, rec.Body.String())
	}
	if orch.gotQuestion.ShopID != 13 {
		t.Errorf("expected shop 13 to flow from the token, got %d", orch.gotQuestion.ShopID)
	}

	// No token: rejected before the handler runs.
	req = httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`{"question": "how many orders"}`))
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401 without a token, got %d", rec.Code)
	}

	// Wrong method: the mux pattern only accepts POST.
	req = httptest.NewRequest(http.MethodGet, "/api/query", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405 for GET, got %d", rec.Code)
	}
}
