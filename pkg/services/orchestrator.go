package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shoplens-ai/shoplens-engine/pkg/apperrors"
	"github.com/shoplens-ai/shoplens-engine/pkg/logging"
	"github.com/shoplens-ai/shoplens-engine/pkg/models"
)

// minComplexPartLength filters out conjunctions that are list items rather
// than question parts ("orders and customers").
const minComplexPartLength = 12

// storeDownAnswer is what the user reads when the data store is unreachable.
// The transport pairs it with a 503.
const storeDownAnswer = "I couldn't reach your shop data right now. Please try again in a moment."

// Orchestrator runs the full question pipeline: cache, extraction,
// classification, execution, formatting.
type Orchestrator interface {
	// ProcessQuery answers one question. The returned error is non-nil only
	// for infrastructure failures (missing tenant, store unreachable);
	// everything else, including questions nothing could classify, is a
	// normal response with a polite answer.
	ProcessQuery(ctx context.Context, question models.Question, useCache bool) (models.QueryResponse, error)
}

type orchestrator struct {
	extractor     ParameterExtractor
	router        Router
	executor      ToolExecutor
	formatter     ResponseFormatter
	cache         AnswerCache
	pattern       Classifier
	enableComplex bool
	logger        *zap.Logger
}

// NewOrchestrator wires the question pipeline. pattern is the classifier used
// to probe the halves of a potential two-part question; it must be cheap and
// deterministic.
func NewOrchestrator(
	extractor ParameterExtractor,
	router Router,
	executor ToolExecutor,
	formatter ResponseFormatter,
	cache AnswerCache,
	pattern Classifier,
	enableComplex bool,
	logger *zap.Logger,
) Orchestrator {
	return &orchestrator{
		extractor:     extractor,
		router:        router,
		executor:      executor,
		formatter:     formatter,
		cache:         cache,
		pattern:       pattern,
		enableComplex: enableComplex,
		logger:        logger.Named("orchestrator"),
	}
}

// ProcessQuery implements Orchestrator.
func (o *orchestrator) ProcessQuery(ctx context.Context, question models.Question, useCache bool) (models.QueryResponse, error) {
	start := time.Now()

	if question.ShopID <= 0 {
		return models.QueryResponse{}, apperrors.ErrMissingShopID
	}

	if strings.TrimSpace(question.Text) == "" {
		return o.fallbackResponse(ctx, question, start), nil
	}

	if useCache {
		if entry, err := o.cache.Get(ctx, question.ShopID, question.Text); err == nil {
			o.logger.Debug("answer served from cache",
				zap.Int64("shop_id", question.ShopID),
				zap.String("tool", string(entry.Tool)))
			return models.QueryResponse{
				Answer:       entry.Answer,
				Payload:      entry.Payload,
				Tool:         entry.Tool,
				Method:       models.MethodCached,
				ProcessingMS: time.Since(start).Milliseconds(),
				Cached:       true,
			}, nil
		}
	}

	if o.enableComplex {
		if response, handled, err := o.processComplex(ctx, question, start); handled {
			return response, err
		}
	}

	extracted := o.extractor.Extract(question.Text)
	decision := o.router.Route(ctx, question, extracted)

	if decision.Tool == models.ToolNone {
		return o.fallbackResponse(ctx, question, start), nil
	}

	envelope, err := o.executor.Execute(ctx, question.ShopID, decision)
	if err != nil {
		return o.executionFailure(question, decision, envelope, start, err)
	}

	answer := o.formatter.Format(ctx, question, decision, envelope)

	if useCache && envelope.Success {
		if err := o.cache.Set(ctx, question.ShopID, question.Text, CachedAnswer{
			Answer:  answer,
			Payload: envelope,
			Tool:    decision.Tool,
		}); err != nil {
			o.logger.Debug("caching answer failed", zap.Error(err))
		}
	}

	return models.QueryResponse{
		Answer:       answer,
		Payload:      envelope,
		Tool:         decision.Tool,
		Confidence:   decision.Confidence,
		Method:       decision.Method,
		ProcessingMS: time.Since(start).Milliseconds(),
	}, nil
}

// processComplex detects a two-part question and answers both parts with
// parallel aggregations. handled is false when the text is not a usable
// two-part question, in which case the normal path proceeds.
func (o *orchestrator) processComplex(ctx context.Context, question models.Question, start time.Time) (models.QueryResponse, bool, error) {
	parts, ok := splitQuestionParts(question.Text)
	if !ok {
		return models.QueryResponse{}, false, nil
	}

	decisions := make([]models.ToolDecision, len(parts))
	for i, part := range parts {
		sub := models.Question{ShopID: question.ShopID, Text: part, Context: question.Context}
		decision, err := o.pattern.Classify(ctx, sub)
		if err != nil || decision.Tool == models.ToolNone {
			return models.QueryResponse{}, false, nil
		}
		decision = mergeExtractedFilters(decision, o.extractor.Extract(part))
		decisions[i] = decision
	}

	// Two copies of the same aggregation are one question, not two.
	if decisions[0].Tool == decisions[1].Tool &&
		decisions[0].Params.Collection == decisions[1].Params.Collection {
		return models.QueryResponse{}, false, nil
	}

	o.logger.Info("answering as two-part question",
		zap.Int64("shop_id", question.ShopID),
		zap.String("first_tool", string(decisions[0].Tool)),
		zap.String("second_tool", string(decisions[1].Tool)))

	envelopes := make([]models.ResultEnvelope, len(parts))
	g, gctx := errgroup.WithContext(ctx)
	for i := range parts {
		g.Go(func() error {
			envelope, err := o.executor.Execute(gctx, question.ShopID, decisions[i])
			envelopes[i] = envelope
			return err
		})
	}
	if err := g.Wait(); err != nil {
		if errors.Is(err, apperrors.ErrStoreUnavailable) {
			response, rerr := o.executionFailure(question, decisions[0], models.FailedEnvelope(storeDownAnswer), start, err)
			return response, true, rerr
		}
		// A non-infra failure in either half: let the single-question path
		// take over rather than half-answering.
		o.logger.Warn("two-part execution failed, retrying as one question", zap.Error(err))
		return models.QueryResponse{}, false, nil
	}

	answers := make([]string, len(parts))
	for i := range parts {
		sub := models.Question{ShopID: question.ShopID, Text: parts[i], Context: question.Context}
		answers[i] = o.formatter.Format(ctx, sub, decisions[i], envelopes[i])
	}

	confidence := decisions[0].Confidence
	if decisions[1].Confidence < confidence {
		confidence = decisions[1].Confidence
	}

	return models.QueryResponse{
		Answer:       strings.Join(answers, " "),
		Payload:      envelopes,
		Tool:         decisions[0].Tool,
		Confidence:   confidence,
		Method:       decisions[0].Method,
		ProcessingMS: time.Since(start).Milliseconds(),
	}, true, nil
}

// splitQuestionParts returns exactly two substantial question parts joined by
// "and", or ok=false.
func splitQuestionParts(text string) ([]string, bool) {
	lower := strings.ToLower(text)
	idx := strings.Index(lower, " and ")
	if idx < 0 {
		return nil, false
	}
	// A second "and" makes the split ambiguous; leave it to the normal path.
	if strings.Contains(lower[idx+len(" and "):], " and ") {
		return nil, false
	}

	first := strings.TrimSpace(text[:idx])
	second := strings.TrimSpace(text[idx+len(" and "):])
	if len(first) < minComplexPartLength || len(second) < minComplexPartLength {
		return nil, false
	}
	return []string{first, second}, true
}

func (o *orchestrator) fallbackResponse(ctx context.Context, question models.Question, start time.Time) models.QueryResponse {
	decision := models.ToolDecision{Tool: models.ToolNone, Method: models.MethodDefault}
	return models.QueryResponse{
		Answer:       o.formatter.Format(ctx, question, decision, models.ResultEnvelope{}),
		Tool:         models.ToolNone,
		Method:       models.MethodDefault,
		ProcessingMS: time.Since(start).Milliseconds(),
	}
}

// executionFailure maps executor errors onto responses. Store connectivity
// propagates so the transport can answer 503; decision-shaped failures
// (unknown tool or collection reaching the executor) degrade to the
// envelope's message with no error.
func (o *orchestrator) executionFailure(question models.Question, decision models.ToolDecision, envelope models.ResultEnvelope, start time.Time, err error) (models.QueryResponse, error) {
	o.logger.Error("query execution failed",
		zap.Int64("shop_id", question.ShopID),
		zap.String("question", logging.SanitizeQuestion(question.Text)),
		zap.String("tool", string(decision.Tool)),
		zap.String("collection", decision.Params.Collection),
		zap.Error(err))

	if errors.Is(err, apperrors.ErrStoreUnavailable) {
		return models.QueryResponse{
			Answer:       storeDownAnswer,
			Tool:         decision.Tool,
			Confidence:   decision.Confidence,
			Method:       decision.Method,
			ProcessingMS: time.Since(start).Milliseconds(),
		}, err
	}

	answer := envelope.Err
	if answer == "" {
		answer = "I couldn't answer that question."
	}
	return models.QueryResponse{
		Answer:       answer,
		Payload:      envelope,
		Tool:         decision.Tool,
		Confidence:   decision.Confidence,
		Method:       decision.Method,
		ProcessingMS: time.Since(start).Milliseconds(),
	}, nil
}
