package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shoplens-ai/shoplens-engine/pkg/jsonutil"
	"github.com/shoplens-ai/shoplens-engine/pkg/llm"
	"github.com/shoplens-ai/shoplens-engine/pkg/logging"
	"github.com/shoplens-ai/shoplens-engine/pkg/models"
	"github.com/shoplens-ai/shoplens-engine/pkg/pipeline"
	"github.com/shoplens-ai/shoplens-engine/pkg/prompts"
	"github.com/shoplens-ai/shoplens-engine/pkg/retry"
)

// classificationTemperature keeps the decision output as deterministic as the
// provider allows.
const classificationTemperature = 0.1

// keywordConfidence is reported by the keyword heuristic that absorbs parse
// failures and unreachable models. Above the escalation threshold, below
// every real tier.
const keywordConfidence = 0.4

// generativeClassifier asks an LLM to pick a tool. It is the slowest and
// least reliable tier, so every failure mode (timeout, transport error,
// malformed output) degrades to the keyword heuristic instead of
// propagating. The router never waits past the configured timeout.
type generativeClassifier struct {
	client       llm.LLMClient // nil disables the LLM, leaving only the heuristic
	schema       SchemaService
	breaker      *llm.CircuitBreaker
	timeout      time.Duration
	maxRetries   int
	defaultLimit int
	logger       *zap.Logger
}

// NewGenerativeClassifier creates the LLM-backed tier. timeout bounds each
// classification wall-clock including retries; it must stay below the outer
// request budget. client may be nil, which skips straight to the keyword
// heuristic.
func NewGenerativeClassifier(
	client llm.LLMClient,
	schema SchemaService,
	timeout time.Duration,
	maxRetries int,
	defaultLimit int,
	logger *zap.Logger,
) Classifier {
	return &generativeClassifier{
		client:       client,
		schema:       schema,
		breaker:      llm.NewCircuitBreaker(llm.DefaultCircuitBreakerConfig()),
		timeout:      timeout,
		maxRetries:   maxRetries,
		defaultLimit: defaultLimit,
		logger:       logger.Named("generative-classifier"),
	}
}

var _ Classifier = (*generativeClassifier)(nil)

func (c *generativeClassifier) Name() string { return models.MethodGenerative }

func (c *generativeClassifier) Classify(ctx context.Context, question models.Question) (models.ToolDecision, error) {
	if c.client == nil {
		return c.keywordHeuristic(question.Text), nil
	}

	// When the provider keeps failing, skip it outright rather than burn
	// the whole timeout on a dead endpoint.
	if err := c.breaker.Allow(); err != nil {
		c.logger.Debug("skipping generative tier, circuit open", zap.Error(err))
		return c.keywordHeuristic(question.Text), nil
	}

	// Hard wall-clock bound over prompt building, the call, and retries.
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := prompts.BuildClassificationPrompt(question.Text, c.schema.GetFormattedSchema(ctx))
	system := prompts.BuildClassificationSystemMessage()

	var raw string
	err := retry.DoIfRetryable(ctx, &retry.Config{
		MaxRetries:   c.maxRetries,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}, func() error {
		var genErr error
		raw, genErr = c.client.GenerateResponse(ctx, prompt, system, classificationTemperature)
		return genErr
	})
	if err != nil {
		c.breaker.RecordFailure()
		c.logger.Warn("generative classification failed, using keyword heuristic",
			zap.Error(err),
			zap.Duration("timeout", c.timeout))
		return c.keywordHeuristic(question.Text), nil
	}
	// The breaker tracks reachability; a garbage answer still means the
	// provider is up, so parse failures below do not trip it.
	c.breaker.RecordSuccess()

	decision, parseErr := c.parseDecision(question.Text, raw)
	if parseErr != nil {
		// A returned-but-unparseable response is a parse failure: fall back,
		// never retry the same call.
		fields := []zap.Field{
			zap.Error(parseErr),
			zap.Int("response_len", len(raw)),
		}
		if thinking := llm.ExtractThinking(raw); thinking != "" {
			fields = append(fields, zap.String("model_thinking", logging.SanitizeQuestion(thinking)))
		}
		c.logger.Warn("generative decision unparseable, using keyword heuristic", fields...)
		return c.keywordHeuristic(question.Text), nil
	}

	return decision, nil
}

// rawDecision is the wire shape of the model's decision. Parameter fields
// are RawMessage because models quote numbers and booleans unpredictably;
// jsonutil coerces them after schema validation.
type rawDecision struct {
	Tool       string                     `json:"tool"`
	Confidence json.RawMessage            `json:"confidence"`
	Collection json.RawMessage            `json:"collection"`
	GroupBy    json.RawMessage            `json:"group_by"`
	Field      json.RawMessage            `json:"field"`
	SortBy     json.RawMessage            `json:"sort_by"`
	SortDesc   json.RawMessage            `json:"sort_desc"`
	Limit      json.RawMessage            `json:"limit"`
	Days       json.RawMessage            `json:"days"`
	Filters    map[string]json.RawMessage `json:"filters"`
	Reasoning  json.RawMessage            `json:"reasoning"`
}

// parseDecision extracts a tool decision from model output: strip think tags
// and fences, locate the outermost braces, validate against the decision
// schema, then coerce values.
func (c *generativeClassifier) parseDecision(questionText, response string) (models.ToolDecision, error) {
	jsonStr, err := llm.ExtractJSON(response)
	if err != nil {
		return models.ToolDecision{}, llm.NewParseError("no JSON in model output", err)
	}

	if err := llm.ValidateDecisionJSON(jsonStr); err != nil {
		return models.ToolDecision{}, err
	}

	var raw rawDecision
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return models.ToolDecision{}, llm.NewParseError("decision JSON does not decode", err)
	}

	tool := models.ParseToolName(strings.TrimSpace(raw.Tool))
	if tool == models.ToolNone && strings.TrimSpace(raw.Tool) != string(models.ToolNone) {
		return models.ToolDecision{}, llm.NewParseError("model chose unknown tool "+raw.Tool, nil)
	}

	confidence, ok := jsonutil.FlexibleFloatValue(raw.Confidence)
	if !ok {
		return models.ToolDecision{}, llm.NewParseError("decision has no numeric confidence", nil)
	}
	confidence = clamp01(confidence)

	lower := strings.ToLower(questionText)
	params := buildToolParams(tool, lower, c.defaultLimit)

	// The model's explicit parameters override the text inference, but only
	// after sanity checks; a wrong collection or field is worse than the
	// inferred one.
	if collection := jsonutil.FlexibleStringValue(raw.Collection); collection != "" {
		if models.IsValidCollection(collection) {
			params.Collection = collection
		} else {
			c.logger.Debug("dropping unknown collection from model decision",
				zap.String("collection", collection))
		}
	}
	if groupBy := jsonutil.FlexibleStringValue(raw.GroupBy); groupBy != "" {
		params.GroupBy = groupBy
	}
	if field := jsonutil.FlexibleStringValue(raw.Field); field != "" {
		params.Field = field
	}
	if sortBy := jsonutil.FlexibleStringValue(raw.SortBy); sortBy != "" {
		params.SortBy = sortBy
	}
	if sortDesc, ok := jsonutil.FlexibleBoolValue(raw.SortDesc); ok {
		params.SortDesc = sortDesc
	}
	if limit, ok := jsonutil.FlexibleIntValue(raw.Limit); ok && limit > 0 {
		params.Limit = limit
	}
	if days, ok := jsonutil.FlexibleIntValue(raw.Days); ok && days > 0 {
		params.Days = days
	}

	if extra := c.screenedExtraFilters(raw.Filters); len(extra) > 0 {
		params.Filters.Extra = extra
	}

	return models.ToolDecision{
		Tool:       tool,
		Params:     params,
		Confidence: confidence,
		Method:     models.MethodGenerative,
	}, nil
}

// screenedExtraFilters coerces the model's literal filters to strings and
// runs injection screening per entry. A failed entry is dropped, not fatal:
// extra filters are a refinement, never required for a usable decision.
func (c *generativeClassifier) screenedExtraFilters(filters map[string]json.RawMessage) map[string]string {
	if len(filters) == 0 {
		return nil
	}

	extra := make(map[string]string, len(filters))
	for key, rawValue := range filters {
		value := jsonutil.FlexibleStringValue(rawValue)
		if value == "" {
			continue
		}
		if err := pipeline.ScreenExtraFilters(map[string]string{key: value}); err != nil {
			c.logger.Warn("dropping screened-out filter from model decision",
				zap.String("key", key),
				zap.Error(err))
			continue
		}
		extra[key] = value
	}

	if len(extra) == 0 {
		return nil
	}
	return extra
}

// keywordToolHints maps coarse phrases onto tools for the degraded path.
// Ordered: specific rankings before generic aggregates before listing verbs.
var keywordToolHints = []struct {
	keywords []string
	tool     models.ToolName
}{
	{[]string{"best sell", "top sell", "most sold", "most popular"}, models.ToolBestSellingProducts},
	{[]string{"top customer", "biggest spender", "most valuable customer"}, models.ToolTopCustomersBySpending},
	{[]string{"how many", "count", "number of"}, models.ToolCountDocuments},
	{[]string{"average", "avg", "mean"}, models.ToolCalculateAverage},
	{[]string{"revenue", "sales", "total", "earn", "income", "sum"}, models.ToolCalculateSum},
	{[]string{"breakdown", "break down", "distribution", "group"}, models.ToolGroupAndCount},
	{[]string{"top", "highest", "largest", "biggest"}, models.ToolGetTopN},
	{[]string{"recent", "last few"}, models.ToolGetDateRange},
	{[]string{"show", "list", "display", "find", "give me"}, models.ToolFindDocuments},
}

// keywordHeuristic is the degraded decision used when the model is
// unreachable, times out, or returns garbage.
func (c *generativeClassifier) keywordHeuristic(text string) models.ToolDecision {
	lower := strings.ToLower(text)

	for _, hint := range keywordToolHints {
		for _, kw := range hint.keywords {
			if strings.Contains(lower, kw) {
				return models.ToolDecision{
					Tool:       hint.tool,
					Params:     buildToolParams(hint.tool, lower, c.defaultLimit),
					Confidence: keywordConfidence,
					Method:     models.MethodKeyword,
				}
			}
		}
	}

	return models.ToolDecision{
		Tool:   models.ToolNone,
		Method: models.MethodKeyword,
	}
}
