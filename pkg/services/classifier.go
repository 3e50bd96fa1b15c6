package services

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/shoplens-ai/shoplens-engine/pkg/models"
)

// Classifier is the common contract of every classification tier: given a
// question, return which tool should answer it, with what parameters, and
// how confident the tier is. Tiers never mutate a prior decision; the router
// replaces decisions wholesale when it escalates.
type Classifier interface {
	// Name identifies the tier in logs and decision metadata.
	Name() string

	// Classify maps question text onto a tool decision. A tier that cannot
	// claim the question returns a ToolNone decision, not an error; errors
	// are reserved for internal faults and make the router skip the tier.
	Classify(ctx context.Context, question models.Question) (models.ToolDecision, error)
}

// ---------------------------------------------------------------------------
// Shared text inference
//
// Every tier that works from surface text (pattern matcher, semantic matcher,
// keyword heuristic) resolves collections, amount fields, grouping fields,
// and limits the same way, so a question keeps its parameters when the router
// escalates between them.
// ---------------------------------------------------------------------------

var (
	productWords  = regexp.MustCompile(`\b(?:products?|items?|goods|inventory|stock|catalog(?:ue)?)\b`)
	customerWords = regexp.MustCompile(`\b(?:customers?|clients?|buyers?|shoppers?)\b`)

	groupByPattern = regexp.MustCompile(`\b(?:by|per|grouped\s+by|split\s+by)\s+([a-z_]+)`)
	topNCapture    = regexp.MustCompile(`\btop\s+(\d{1,3})\b`)
	lastNDaysValue = regexp.MustCompile(`\b(?:last|past|previous)\s+(\d{1,3})\s+days?\b`)
)

// inferCollection picks the collection a question is about. Orders are the
// default: most analytics questions ("revenue", "sales") are order questions
// even without the word.
func inferCollection(lower string) string {
	// "best selling products" ranks order items, and "top customers" ranks
	// order spend; both run against orders, handled by their tools.
	switch {
	case customerWords.MatchString(lower):
		return models.CollectionCustomers
	case productWords.MatchString(lower):
		return models.CollectionProducts
	default:
		return models.CollectionOrders
	}
}

// inferAmountField picks the money field a sum/average/comparison refers to.
func inferAmountField(lower string) string {
	if deliveryFieldPattern.MatchString(lower) {
		return models.FieldDeliveryCharge
	}
	return models.FieldGrandTotal
}

// groupFieldAliases maps grouping words people use onto real fields.
var groupFieldAliases = map[string]string{
	"status":   models.FieldStatus,
	"state":    models.FieldStatus,
	"payment":  models.FieldPaymentStatus,
	"category": "category",
	"product":  "category",
	"type":     "category",
}

// inferGroupBy resolves "by X" / "per X" phrasing onto a known field,
// falling back to the collection default when the word is unknown.
func inferGroupBy(lower, collection string) string {
	if m := groupByPattern.FindStringSubmatch(lower); m != nil {
		if field, ok := groupFieldAliases[m[1]]; ok {
			return field
		}
	}
	if strings.Contains(lower, "payment") {
		return models.FieldPaymentStatus
	}
	return models.DefaultGroupBy(collection)
}

// inferLimit reads "top N" phrasing, returning fallback when absent or
// out of sensible range.
func inferLimit(lower string, fallback int) int {
	if m := topNCapture.FindStringSubmatch(lower); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

// inferDays reads "last N days" phrasing for the rolling-window tool.
func inferDays(lower string, fallback int) int {
	if m := lastNDaysValue.FindStringSubmatch(lower); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

// rankSortField picks the sort key for top-N listings per collection.
func rankSortField(collection string) string {
	switch collection {
	case models.CollectionProducts:
		return "price"
	case models.CollectionCustomers:
		return models.FieldCreatedAt
	default:
		return models.FieldGrandTotal
	}
}

// buildToolParams assembles the parameter struct every text tier hands to the
// executor for a given tool. Filters stay empty here: the router merges the
// extractor's output in after the winning tier is chosen.
func buildToolParams(tool models.ToolName, lower string, defaultLimit int) models.ToolParams {
	collection := inferCollection(lower)

	switch tool {
	case models.ToolCountDocuments:
		return models.ToolParams{Collection: collection}

	case models.ToolFindDocuments:
		return models.ToolParams{
			Collection: collection,
			SortBy:     models.FieldCreatedAt,
			SortDesc:   true,
			Limit:      inferLimit(lower, defaultLimit),
		}

	case models.ToolGroupAndCount:
		return models.ToolParams{
			Collection: collection,
			GroupBy:    inferGroupBy(lower, collection),
		}

	case models.ToolCalculateSum, models.ToolCalculateAverage:
		// Money aggregations always run over orders; a "by X" clause turns
		// them into grouped variants.
		params := models.ToolParams{
			Collection: models.CollectionOrders,
			Field:      inferAmountField(lower),
		}
		if m := groupByPattern.FindStringSubmatch(lower); m != nil {
			if field, ok := groupFieldAliases[m[1]]; ok {
				params.GroupBy = field
			}
		}
		return params

	case models.ToolGetTopN:
		return models.ToolParams{
			Collection: collection,
			SortBy:     rankSortField(collection),
			SortDesc:   true,
			Limit:      inferLimit(lower, defaultLimit),
		}

	case models.ToolGetDateRange:
		return models.ToolParams{
			Collection: models.CollectionOrders,
			Days:       inferDays(lower, 7),
			Limit:      inferLimit(lower, defaultLimit),
		}

	case models.ToolBestSellingProducts, models.ToolTopCustomersBySpending:
		return models.ToolParams{
			Collection: models.CollectionOrders,
			Limit:      inferLimit(lower, defaultLimit),
		}

	default:
		return models.ToolParams{}
	}
}
