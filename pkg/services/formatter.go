package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/shoplens-ai/shoplens-engine/pkg/llm"
	"github.com/shoplens-ai/shoplens-engine/pkg/models"
	"github.com/shoplens-ai/shoplens-engine/pkg/prompts"
)

// enhanceTemperature keeps rephrasing close to the template wording.
const enhanceTemperature = 0.3

// minEnhancedLength marks rephrased answers below it as implausible.
const minEnhancedLength = 10

// FallbackAnswer is returned when no tier could map the question to a tool.
const FallbackAnswer = "I couldn't understand that question. Try asking about your orders, products, customers or revenue."

// ResponseFormatter renders a tool result as a natural-language answer.
// Templates are the source of truth for every number; the optional generative
// rephrasing never is.
type ResponseFormatter interface {
	Format(ctx context.Context, question models.Question, decision models.ToolDecision, envelope models.ResultEnvelope) string
}

type responseFormatter struct {
	client       llm.LLMClient
	enhance      bool
	displayLimit int
	logger       *zap.Logger
}

// NewResponseFormatter creates a formatter. client may be nil; enhancement
// then stays off regardless of the flag. displayLimit caps how many entries a
// ranked or listed answer spells out.
func NewResponseFormatter(client llm.LLMClient, enhance bool, displayLimit int, logger *zap.Logger) ResponseFormatter {
	if displayLimit <= 0 {
		displayLimit = 5
	}
	return &responseFormatter{
		client:       client,
		enhance:      enhance,
		displayLimit: displayLimit,
		logger:       logger.Named("formatter"),
	}
}

// Format implements ResponseFormatter.
func (f *responseFormatter) Format(ctx context.Context, question models.Question, decision models.ToolDecision, envelope models.ResultEnvelope) string {
	if decision.Tool == models.ToolNone {
		return FallbackAnswer
	}

	if !envelope.Success {
		if envelope.Err != "" {
			return envelope.Err
		}
		return "I couldn't fetch that data right now."
	}

	template := f.template(decision, envelope)
	return f.maybeEnhance(ctx, question, decision.Tool, template)
}

func (f *responseFormatter) template(decision models.ToolDecision, envelope models.ResultEnvelope) string {
	collection := metaString(envelope.Meta, "collection")

	switch decision.Tool {
	case models.ToolCountDocuments:
		var n int64
		if envelope.Count != nil {
			n = *envelope.Count
		}
		return fmt.Sprintf("You have %s.", countNoun(n, collection))

	case models.ToolFindDocuments:
		return f.listAnswer(envelope.Records, collection)

	case models.ToolGroupAndCount:
		return f.breakdownAnswer(envelope, collection)

	case models.ToolCalculateSum:
		return f.metricAnswer(envelope, collection, "total", sumMetricNoun(metaString(envelope.Meta, "field")))

	case models.ToolCalculateAverage:
		return f.metricAnswer(envelope, collection, "average", avgMetricNoun(metaString(envelope.Meta, "field")))

	case models.ToolGetTopN:
		if len(envelope.Records) == 0 {
			return fmt.Sprintf("I didn't find any %s to rank.", pluralNoun(collection))
		}
		labels := f.recordLabels(envelope.Records, collection)
		return fmt.Sprintf("Top %d %s by %s: %s.",
			len(envelope.Records), pluralNoun(collection),
			humanizeField(metaString(envelope.Meta, "sort_by")),
			strings.Join(labels, ", "))

	case models.ToolGetDateRange:
		days := metaInt(envelope.Meta, "days")
		n := int64(len(envelope.Records))
		if n == 0 {
			return fmt.Sprintf("No %s in the last %d days.", pluralNoun(collection), days)
		}
		answer := fmt.Sprintf("You had %s in the last %d days", countNoun(n, collection), days)
		if labels := f.recordLabels(envelope.Records, collection); len(labels) > 0 {
			answer += ": " + strings.Join(labels, ", ")
		}
		return answer + "."

	case models.ToolBestSellingProducts:
		if len(envelope.Records) == 0 {
			return "No sales recorded in that period yet."
		}
		parts := make([]string, 0, f.displayLimit)
		for _, r := range truncateRecords(envelope.Records, f.displayLimit) {
			qty, _ := toInt64(r["quantity"])
			entry := fmt.Sprintf("%s (%d sold", labelOf(r, "name"), qty)
			if revenue, ok := toFloat64(r["revenue"]); ok {
				entry += fmt.Sprintf(", $%s", formatCurrency(revenue))
			}
			parts = append(parts, entry+")")
		}
		return "Your best selling products: " + strings.Join(parts, ", ") + "."

	case models.ToolTopCustomersBySpending:
		if len(envelope.Records) == 0 {
			return "No customer purchases recorded in that period yet."
		}
		parts := make([]string, 0, f.displayLimit)
		for _, r := range truncateRecords(envelope.Records, f.displayLimit) {
			total, _ := toFloat64(r["total"])
			orders, _ := toInt64(r["orders"])
			parts = append(parts, fmt.Sprintf("%s ($%s across %s)",
				labelOf(r, "name"), formatCurrency(total), countNoun(orders, models.CollectionOrders)))
		}
		return "Your top customers: " + strings.Join(parts, ", ") + "."

	default:
		return FallbackAnswer
	}
}

// listAnswer renders find results: a count plus the first few labels.
func (f *responseFormatter) listAnswer(records []map[string]any, collection string) string {
	n := int64(len(records))
	if n == 0 {
		return fmt.Sprintf("No %s matched your question.", pluralNoun(collection))
	}

	answer := fmt.Sprintf("I found %s", countNoun(n, collection))
	if labels := f.recordLabels(records, collection); len(labels) > 0 {
		answer += ": " + strings.Join(labels, ", ")
	}
	if int(n) > f.displayLimit {
		answer += fmt.Sprintf(" (showing %d)", f.displayLimit)
	}
	return answer + "."
}

func (f *responseFormatter) breakdownAnswer(envelope models.ResultEnvelope, collection string) string {
	if len(envelope.Records) == 0 {
		return fmt.Sprintf("I didn't find any %s to break down.", pluralNoun(collection))
	}

	parts := make([]string, 0, f.displayLimit)
	for _, r := range truncateRecords(envelope.Records, f.displayLimit) {
		count, _ := toInt64(r["count"])
		parts = append(parts, fmt.Sprintf("%v (%d)", r["value"], count))
	}

	return fmt.Sprintf("%s by %s: %s.",
		capitalize(pluralNoun(collection)),
		humanizeField(metaString(envelope.Meta, "group_by")),
		strings.Join(parts, ", "))
}

// metricAnswer renders sum and average results, grouped or not. kind is the
// record field carrying the grouped figure ("total" or "average").
func (f *responseFormatter) metricAnswer(envelope models.ResultEnvelope, collection, kind, metric string) string {
	if len(envelope.Records) > 0 {
		parts := make([]string, 0, f.displayLimit)
		for _, r := range truncateRecords(envelope.Records, f.displayLimit) {
			v, _ := toFloat64(r[kind])
			parts = append(parts, fmt.Sprintf("%v ($%s)", r["value"], formatCurrency(v)))
		}
		return fmt.Sprintf("%s %s by %s: %s.",
			capitalize(kind), metric,
			humanizeField(metaString(envelope.Meta, "group_by")),
			strings.Join(parts, ", "))
	}

	var value float64
	if envelope.Value != nil {
		value = *envelope.Value
	}
	records := int64(metaInt(envelope.Meta, "records"))

	if records == 0 {
		return fmt.Sprintf("No %s matched, so your %s %s is $0.00.", pluralNoun(collection), kind, metric)
	}
	return fmt.Sprintf("Your %s %s is $%s across %s.",
		kind, metric, formatCurrency(value), countNoun(records, collection))
}

// maybeEnhance asks the model to rephrase the template and keeps the template
// whenever the rephrasing fails, stalls, or breaks the numbers contract.
func (f *responseFormatter) maybeEnhance(ctx context.Context, question models.Question, tool models.ToolName, template string) string {
	if !f.enhance || f.client == nil {
		return template
	}

	out, err := f.client.GenerateResponse(ctx,
		prompts.BuildEnhancementPrompt(question.Text, template),
		prompts.BuildEnhancementSystemMessage(),
		enhanceTemperature)
	if err != nil {
		f.logger.Debug("answer enhancement failed, keeping template", zap.Error(err))
		return template
	}

	enhanced := strings.TrimSpace(out)
	if reason := rejectEnhancement(tool, enhanced); reason != "" {
		f.logger.Debug("rejecting enhanced answer",
			zap.String("reason", reason),
			zap.Int("length", len(enhanced)))
		return template
	}
	return enhanced
}

var refusalPhrases = []string{
	"i can't", "i cannot", "i'm sorry", "i am sorry", "as an ai", "unable to help",
}

var noDataWords = []string{"no ", "none", "zero", "empty", "nothing"}

// rejectEnhancement returns a non-empty reason when the rephrased answer must
// not replace the template.
func rejectEnhancement(tool models.ToolName, enhanced string) string {
	if len(enhanced) < minEnhancedLength {
		return "too short"
	}

	lower := strings.ToLower(enhanced)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return "refusal language"
		}
	}

	if isNumericTool(tool) && !strings.ContainsAny(enhanced, "0123456789") {
		for _, w := range noDataWords {
			if strings.Contains(lower, w) {
				return ""
			}
		}
		return "dropped the numbers"
	}
	return ""
}

func isNumericTool(tool models.ToolName) bool {
	switch tool {
	case models.ToolCountDocuments, models.ToolCalculateSum, models.ToolCalculateAverage:
		return true
	}
	return false
}

// recordLabels summarizes up to displayLimit records as short labels.
func (f *responseFormatter) recordLabels(records []map[string]any, collection string) []string {
	labels := make([]string, 0, f.displayLimit)
	for _, r := range truncateRecords(records, f.displayLimit) {
		if collection == models.CollectionOrders {
			if num, ok := r["order_number"].(string); ok && num != "" {
				labels = append(labels, "#"+num)
				continue
			}
		}
		labels = append(labels, labelOf(r, "name"))
	}
	return labels
}

func labelOf(r map[string]any, key string) string {
	if s, ok := r[key].(string); ok && s != "" {
		return s
	}
	return "(unnamed)"
}

func truncateRecords(records []map[string]any, limit int) []map[string]any {
	if len(records) > limit {
		return records[:limit]
	}
	return records
}

// formatCurrency renders a float with two decimals and thousands separators:
// 1850.5 becomes "1,850.50". This is the only place numbers are formatted;
// everything upstream stays raw.
func formatCurrency(v float64) string {
	neg := v < 0
	if neg {
		v = -v
	}

	s := strconv.FormatFloat(v, 'f', 2, 64)
	dot := strings.IndexByte(s, '.')
	intPart, frac := s[:dot], s[dot:]

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	head := len(intPart) % 3
	if head == 0 {
		head = 3
	}
	b.WriteString(intPart[:head])
	for i := head; i < len(intPart); i += 3 {
		b.WriteByte(',')
		b.WriteString(intPart[i : i+3])
	}
	b.WriteString(frac)
	return b.String()
}

// countNoun renders "1 order" / "7 orders" for a collection name.
func countNoun(n int64, collection string) string {
	return fmt.Sprintf("%d %s", n, noun(collection, n))
}

func noun(collection string, n int64) string {
	base := inflection.Singular(collection)
	if base == "" {
		base = "record"
	}
	if n == 1 {
		return base
	}
	return inflection.Plural(base)
}

func pluralNoun(collection string) string {
	return noun(collection, 2)
}

func sumMetricNoun(field string) string {
	switch field {
	case models.FieldGrandTotal, "":
		return "revenue"
	case models.FieldDeliveryCharge:
		return "delivery charges"
	default:
		return humanizeField(field)
	}
}

func avgMetricNoun(field string) string {
	switch field {
	case models.FieldGrandTotal, "":
		return "order value"
	case models.FieldDeliveryCharge:
		return "delivery charge"
	default:
		return humanizeField(field)
	}
}

func humanizeField(field string) string {
	if field == "" {
		return "value"
	}
	return strings.ReplaceAll(field, "_", " ")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func metaString(meta map[string]any, key string) string {
	if meta == nil {
		return ""
	}
	if s, ok := meta[key].(string); ok {
		return s
	}
	return ""
}

func metaInt(meta map[string]any, key string) int {
	if meta == nil {
		return 0
	}
	if n, ok := toInt64(meta[key]); ok {
		return int(n)
	}
	return 0
}
