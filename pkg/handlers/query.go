package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/shoplens-ai/shoplens-engine/pkg/apperrors"
	"github.com/shoplens-ai/shoplens-engine/pkg/auth"
	"github.com/shoplens-ai/shoplens-engine/pkg/models"
	"github.com/shoplens-ai/shoplens-engine/pkg/services"
)

// maxQuestionLength caps accepted question text. Anything longer is not a
// question a shop owner typed.
const maxQuestionLength = 500

// AskRequest is the POST /api/query body.
type AskRequest struct {
	Question string `json:"question"`

	// UseCache defaults to true when omitted.
	UseCache *bool `json:"use_cache,omitempty"`
}

// QueryHandler answers natural-language analytics questions for the
// authenticated shop.
type QueryHandler struct {
	orchestrator services.Orchestrator
	logger       *zap.Logger
}

// NewQueryHandler creates a new query handler.
func NewQueryHandler(orchestrator services.Orchestrator, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{
		orchestrator: orchestrator,
		logger:       logger,
	}
}

// RegisterRoutes registers the query handler's routes on the given mux.
func (h *QueryHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/query", authMiddleware.RequireShop(h.Ask))
}

// Ask handles POST /api/query.
func (h *QueryHandler) Ask(w http.ResponseWriter, r *http.Request) {
	shopID, err := auth.RequireShopIDFromContext(r.Context())
	if err != nil {
		if err := ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "Authentication required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_json", "Request body must be valid JSON"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	question := strings.TrimSpace(req.Question)
	if question == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "validation_error", "question is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	if len(question) > maxQuestionLength {
		if err := ErrorResponse(w, http.StatusBadRequest, "validation_error", "question is too long"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	useCache := true
	if req.UseCache != nil {
		useCache = *req.UseCache
	}

	response, err := h.orchestrator.ProcessQuery(r.Context(), models.Question{
		ShopID: shopID,
		Text:   question,
	}, useCache)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrStoreUnavailable):
			h.logger.Error("Store unavailable while answering question",
				zap.Int64("shop_id", shopID),
				zap.Error(err))
			// The orchestrator still produced a human-readable answer.
			if err := ErrorResponse(w, http.StatusServiceUnavailable, "service_unavailable", response.Answer); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
		case errors.Is(err, apperrors.ErrMissingShopID):
			if err := ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "Token does not grant access to a shop"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
		default:
			h.logger.Error("Failed to process question",
				zap.Int64("shop_id", shopID),
				zap.Error(err))
			if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to process question"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode query response", zap.Error(err))
	}
}
