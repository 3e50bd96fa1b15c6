package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/shoplens-ai/shoplens-engine/pkg/models"
)

// RouterPolicy controls when a tier's decision is accepted and when the
// router escalates to the next tier.
type RouterPolicy struct {
	// EscalationThreshold is the minimum confidence a decision needs to be
	// accepted. Decisions below it, and ToolNone decisions at any
	// confidence, escalate.
	EscalationThreshold float64
}

// Router resolves a question to a single tool decision by walking an
// ordered list of classifier tiers.
type Router interface {
	// Route always returns a usable decision. When every tier is exhausted
	// the decision is ToolNone with method "default"; it never returns an
	// error because a degraded decision is still an answerable one.
	Route(ctx context.Context, question models.Question, extracted models.ExtractedFilters) models.ToolDecision
}

type router struct {
	tiers  []Classifier
	policy RouterPolicy
	logger *zap.Logger
}

// NewRouter creates a router over the given tiers, consulted in order.
func NewRouter(tiers []Classifier, policy RouterPolicy, logger *zap.Logger) Router {
	return &router{
		tiers:  tiers,
		policy: policy,
		logger: logger.Named("router"),
	}
}

// Route implements Router.
func (r *router) Route(ctx context.Context, question models.Question, extracted models.ExtractedFilters) models.ToolDecision {
	for _, tier := range r.tiers {
		decision, err := tier.Classify(ctx, question)
		if err != nil {
			// A failing tier escalates. Its error never reaches the caller:
			// the next tier may still produce a decision.
			r.logger.Warn("classifier tier failed, escalating",
				zap.String("tier", tier.Name()),
				zap.Error(err))
			continue
		}

		if !r.accepts(decision) {
			r.logger.Debug("decision below threshold, escalating",
				zap.String("tier", tier.Name()),
				zap.String("tool", string(decision.Tool)),
				zap.Float64("confidence", decision.Confidence))
			continue
		}

		decision = mergeExtractedFilters(decision, extracted)
		r.logger.Info("decision accepted",
			zap.String("tier", tier.Name()),
			zap.String("tool", string(decision.Tool)),
			zap.String("method", decision.Method),
			zap.Float64("confidence", decision.Confidence))
		return decision
	}

	r.logger.Info("all tiers exhausted, defaulting to none",
		zap.Int64("shop_id", question.ShopID))
	return models.ToolDecision{
		Tool:   models.ToolNone,
		Method: models.MethodDefault,
	}
}

func (r *router) accepts(decision models.ToolDecision) bool {
	return decision.Tool != models.ToolNone &&
		decision.Confidence >= r.policy.EscalationThreshold
}

// mergeExtractedFilters folds the deterministic extractor's output into the
// winning decision. Extracted date, status, and numeric filters win over
// anything a tier guessed; extra literal filters stay with the decision
// because only the generative tier produces them and they are already
// screened.
func mergeExtractedFilters(decision models.ToolDecision, extracted models.ExtractedFilters) models.ToolDecision {
	if extracted.Date != nil {
		decision.Params.Filters.Date = extracted.Date
	}
	if len(extracted.Status) > 0 {
		decision.Params.Filters.Status = extracted.Status
	}
	if extracted.Numeric != nil {
		decision.Params.Filters.Numeric = extracted.Numeric
	}
	return decision
}
