package services

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/shoplens-ai/shoplens-engine/pkg/adapters/docstore"
	"github.com/shoplens-ai/shoplens-engine/pkg/apperrors"
	"github.com/shoplens-ai/shoplens-engine/pkg/models"
	"github.com/shoplens-ai/shoplens-engine/pkg/pipeline"
)

// fallbackResultLimit bounds result sets when a decision carries no usable
// limit of its own.
const fallbackResultLimit = 10

// defaultDateRangeDays is the rolling window applied when a date-range
// question does not name one.
const defaultDateRangeDays = 7

// fieldNamePattern accepts plain and dotted document paths. Group and sort
// fields that fail it are replaced with safe defaults instead of erroring:
// a breakdown over the wrong field is still an answer, an injected one is not.
var fieldNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)*$`)

// ToolExecutor turns an accepted tool decision into data. Implementations
// must scope every operation to the given shop.
type ToolExecutor interface {
	// Execute runs the decision's tool against the store. The returned error
	// is non-nil for infrastructure failures (store unreachable) and for
	// decisions that violate executor invariants; user-shaped misses (no
	// matching data, unusable parameters) come back as a failed envelope
	// with a nil error.
	Execute(ctx context.Context, shopID int64, decision models.ToolDecision) (models.ResultEnvelope, error)
}

type toolExecutor struct {
	store   docstore.DocumentStore
	maxDocs int
	now     func() time.Time
	logger  *zap.Logger
}

// NewToolExecutor creates an executor over the given store. maxDocs caps the
// records any single tool may return.
func NewToolExecutor(store docstore.DocumentStore, maxDocs int, logger *zap.Logger) ToolExecutor {
	return NewToolExecutorWithClock(store, maxDocs, time.Now, logger)
}

// NewToolExecutorWithClock is NewToolExecutor with an injected clock so
// rolling date windows are reproducible in tests.
func NewToolExecutorWithClock(store docstore.DocumentStore, maxDocs int, now func() time.Time, logger *zap.Logger) ToolExecutor {
	if maxDocs <= 0 {
		maxDocs = 100
	}
	return &toolExecutor{
		store:   store,
		maxDocs: maxDocs,
		now:     now,
		logger:  logger.Named("tool-executor"),
	}
}

// Execute implements ToolExecutor.
func (e *toolExecutor) Execute(ctx context.Context, shopID int64, decision models.ToolDecision) (models.ResultEnvelope, error) {
	if shopID <= 0 {
		return models.FailedEnvelope("a shop is required to run analytics"),
			fmt.Errorf("execute %s: %w", decision.Tool, apperrors.ErrMissingShopID)
	}

	collection := decision.Params.Collection
	if collection == "" {
		collection = models.CollectionOrders
	}
	if !models.IsValidCollection(collection) {
		return models.FailedEnvelope(fmt.Sprintf("I can't query %q, only orders, products and customers.", collection)),
			fmt.Errorf("execute %s: collection %q: %w", decision.Tool, collection, apperrors.ErrUnknownCollection)
	}

	params := decision.Params

	switch decision.Tool {
	case models.ToolCountDocuments:
		return e.executeCount(ctx, shopID, collection, params)
	case models.ToolFindDocuments:
		return e.executeFind(ctx, shopID, collection, params)
	case models.ToolGroupAndCount:
		return e.executeGroupAndCount(ctx, shopID, collection, params)
	case models.ToolCalculateSum:
		return e.executeMetric(ctx, shopID, collection, params, "$sum")
	case models.ToolCalculateAverage:
		return e.executeMetric(ctx, shopID, collection, params, "$avg")
	case models.ToolGetTopN:
		return e.executeTopN(ctx, shopID, collection, params)
	case models.ToolGetDateRange:
		return e.executeDateRange(ctx, shopID, collection, params)
	case models.ToolBestSellingProducts:
		return e.executeBestSellers(ctx, shopID, params)
	case models.ToolTopCustomersBySpending:
		return e.executeTopCustomers(ctx, shopID, params)
	default:
		return models.FailedEnvelope("I don't know how to answer that yet."),
			fmt.Errorf("execute: tool %q: %w", decision.Tool, apperrors.ErrUnknownTool)
	}
}

func (e *toolExecutor) executeCount(ctx context.Context, shopID int64, collection string, params models.ToolParams) (models.ResultEnvelope, error) {
	filter := pipeline.BuildMatchFilter(shopID, params.Filters)

	n, err := e.store.Count(ctx, collection, filter)
	if err != nil {
		return e.storeFailure("count documents", shopID, collection, err)
	}

	return models.ResultEnvelope{
		Success: true,
		Count:   &n,
		Meta:    map[string]any{"collection": collection},
	}, nil
}

func (e *toolExecutor) executeFind(ctx context.Context, shopID int64, collection string, params models.ToolParams) (models.ResultEnvelope, error) {
	filter := pipeline.BuildMatchFilter(shopID, params.Filters)

	docs, err := e.store.Find(ctx, collection, filter, docstore.FindOptions{
		Sort:       bson.D{{Key: models.FieldCreatedAt, Value: -1}},
		Limit:      int64(e.clampLimit(params.Limit)),
		Projection: bson.D{{Key: "_id", Value: 0}},
	})
	if err != nil {
		return e.storeFailure("find documents", shopID, collection, err)
	}

	return models.ResultEnvelope{
		Success: true,
		Records: toRecords(docs),
		Meta:    map[string]any{"collection": collection},
	}, nil
}

func (e *toolExecutor) executeGroupAndCount(ctx context.Context, shopID int64, collection string, params models.ToolParams) (models.ResultEnvelope, error) {
	groupBy := e.safeGroupBy(params.GroupBy, collection)

	p := pipeline.New(
		pipeline.Match(pipeline.BuildMatchFilter(shopID, params.Filters)),
		pipeline.Group("$"+groupBy, bson.D{{Key: "count", Value: pipeline.Sum(1)}}),
		pipeline.Sort("count", true),
		pipeline.Limit(e.maxDocs),
		pipeline.Project(bson.D{
			{Key: "_id", Value: 0},
			{Key: "value", Value: "$_id"},
			{Key: "count", Value: 1},
		}),
	)

	docs, err := e.runPipeline(ctx, shopID, collection, p)
	if err != nil {
		return e.storeFailure("group and count", shopID, collection, err)
	}

	return models.ResultEnvelope{
		Success: true,
		Records: toRecords(docs),
		Meta:    map[string]any{"collection": collection, "group_by": groupBy},
	}, nil
}

// executeMetric covers calculate_sum and calculate_average; op is the
// aggregation accumulator ($sum or $avg). With a group-by it returns one
// record per group sorted by the accumulated value; without one it collapses
// to a single number, and an empty result set is a legitimate zero.
func (e *toolExecutor) executeMetric(ctx context.Context, shopID int64, collection string, params models.ToolParams, op string) (models.ResultEnvelope, error) {
	field := e.safeMetricField(params.Field)
	valueName := "total"
	if op == "$avg" {
		valueName = "average"
	}

	if params.GroupBy != "" {
		groupBy := e.safeGroupBy(params.GroupBy, collection)
		p := pipeline.New(
			pipeline.Match(pipeline.BuildMatchFilter(shopID, params.Filters)),
			pipeline.Group("$"+groupBy, bson.D{
				{Key: valueName, Value: bson.D{{Key: op, Value: "$" + field}}},
				{Key: "count", Value: pipeline.Sum(1)},
			}),
			pipeline.Sort(valueName, true),
			pipeline.Limit(e.maxDocs),
			pipeline.Project(bson.D{
				{Key: "_id", Value: 0},
				{Key: "value", Value: "$_id"},
				{Key: valueName, Value: 1},
				{Key: "count", Value: 1},
			}),
		)

		docs, err := e.runPipeline(ctx, shopID, collection, p)
		if err != nil {
			return e.storeFailure("aggregate "+valueName, shopID, collection, err)
		}

		return models.ResultEnvelope{
			Success: true,
			Records: toRecords(docs),
			Meta:    map[string]any{"collection": collection, "field": field, "group_by": groupBy},
		}, nil
	}

	p := pipeline.New(
		pipeline.Match(pipeline.BuildMatchFilter(shopID, params.Filters)),
		pipeline.Group(nil, bson.D{
			{Key: "value", Value: bson.D{{Key: op, Value: "$" + field}}},
			{Key: "count", Value: pipeline.Sum(1)},
		}),
		pipeline.Project(bson.D{
			{Key: "_id", Value: 0},
			{Key: "value", Value: 1},
			{Key: "count", Value: 1},
		}),
	)

	docs, err := e.runPipeline(ctx, shopID, collection, p)
	if err != nil {
		return e.storeFailure("aggregate "+valueName, shopID, collection, err)
	}

	// No documents matched: the aggregate of nothing is zero, which is a
	// first-class answer, not a failure.
	value := 0.0
	records := int64(0)
	if len(docs) > 0 {
		if v, ok := toFloat64(docs[0]["value"]); ok {
			value = v
		}
		if n, ok := toInt64(docs[0]["count"]); ok {
			records = n
		}
	}

	return models.ResultEnvelope{
		Success: true,
		Value:   &value,
		Meta:    map[string]any{"collection": collection, "field": field, "records": records},
	}, nil
}

func (e *toolExecutor) executeTopN(ctx context.Context, shopID int64, collection string, params models.ToolParams) (models.ResultEnvelope, error) {
	sortBy := params.SortBy
	if sortBy == "" || !fieldNamePattern.MatchString(sortBy) {
		sortBy = models.FieldCreatedAt
	}

	p := pipeline.New(
		pipeline.Match(pipeline.BuildMatchFilter(shopID, params.Filters)),
		pipeline.Sort(sortBy, params.SortDesc),
		pipeline.Limit(e.clampLimit(params.Limit)),
		pipeline.Project(bson.D{{Key: "_id", Value: 0}}),
	)

	docs, err := e.runPipeline(ctx, shopID, collection, p)
	if err != nil {
		return e.storeFailure("top n", shopID, collection, err)
	}

	return models.ResultEnvelope{
		Success: true,
		Records: toRecords(docs),
		Meta:    map[string]any{"collection": collection, "sort_by": sortBy},
	}, nil
}

// executeDateRange answers "recent" questions with a rolling now-minus-N-days
// window. Any absolute date the extractor found is replaced: "recent" means
// relative to now, whatever else the text mentioned.
func (e *toolExecutor) executeDateRange(ctx context.Context, shopID int64, collection string, params models.ToolParams) (models.ResultEnvelope, error) {
	days := params.Days
	if days <= 0 {
		days = defaultDateRangeDays
	}
	from := e.now().AddDate(0, 0, -days)

	filters := params.Filters
	filters.Date = &models.DateRange{GTE: from}
	filter := pipeline.BuildMatchFilter(shopID, filters)

	docs, err := e.store.Find(ctx, collection, filter, docstore.FindOptions{
		Sort:       bson.D{{Key: models.FieldCreatedAt, Value: -1}},
		Limit:      int64(e.clampLimit(params.Limit)),
		Projection: bson.D{{Key: "_id", Value: 0}},
	})
	if err != nil {
		return e.storeFailure("date range", shopID, collection, err)
	}

	return models.ResultEnvelope{
		Success: true,
		Records: toRecords(docs),
		Meta: map[string]any{
			"collection": collection,
			"days":       days,
			"from":       from.UTC().Format(time.RFC3339),
		},
	}, nil
}

// executeBestSellers ranks products by units sold. It always runs on orders:
// the sales signal lives in order line items, not in the products collection.
func (e *toolExecutor) executeBestSellers(ctx context.Context, shopID int64, params models.ToolParams) (models.ResultEnvelope, error) {
	limit := e.clampLimit(params.Limit)

	p := pipeline.New(
		pipeline.Match(pipeline.BuildMatchFilter(shopID, params.Filters)),
		pipeline.Unwind("$items"),
		pipeline.Group("$items.product_id", bson.D{
			{Key: "name", Value: bson.D{{Key: "$first", Value: "$items.name"}}},
			{Key: "quantity", Value: pipeline.Sum("$items.quantity")},
			{Key: "revenue", Value: pipeline.Sum(bson.D{
				{Key: "$multiply", Value: bson.A{"$items.quantity", "$items.price"}},
			})},
		}),
		pipeline.Sort("quantity", true),
		pipeline.Limit(limit),
		pipeline.Lookup(models.CollectionProducts, "_id", "_id", "product"),
		pipeline.Project(bson.D{
			{Key: "_id", Value: 0},
			{Key: "product_id", Value: "$_id"},
			{Key: "name", Value: bson.D{{Key: "$ifNull", Value: bson.A{
				bson.D{{Key: "$arrayElemAt", Value: bson.A{"$product.name", 0}}},
				"$name",
			}}}},
			{Key: "quantity", Value: 1},
			{Key: "revenue", Value: 1},
		}),
	)

	docs, err := e.runPipeline(ctx, shopID, models.CollectionOrders, p)
	if err != nil {
		return e.storeFailure("best sellers", shopID, models.CollectionOrders, err)
	}

	return models.ResultEnvelope{
		Success: true,
		Records: toRecords(docs),
		Meta:    map[string]any{"collection": models.CollectionOrders, "limit": limit},
	}, nil
}

// executeTopCustomers ranks customers by lifetime spend, joined back to the
// customers collection for display names.
func (e *toolExecutor) executeTopCustomers(ctx context.Context, shopID int64, params models.ToolParams) (models.ResultEnvelope, error) {
	limit := e.clampLimit(params.Limit)

	p := pipeline.New(
		pipeline.Match(pipeline.BuildMatchFilter(shopID, params.Filters)),
		pipeline.Group("$customer_id", bson.D{
			{Key: "total", Value: pipeline.Sum("$" + models.FieldGrandTotal)},
			{Key: "orders", Value: pipeline.Sum(1)},
		}),
		pipeline.Sort("total", true),
		pipeline.Limit(limit),
		pipeline.Lookup(models.CollectionCustomers, "_id", "_id", "customer"),
		pipeline.Project(bson.D{
			{Key: "_id", Value: 0},
			{Key: "customer_id", Value: "$_id"},
			{Key: "name", Value: bson.D{{Key: "$ifNull", Value: bson.A{
				bson.D{{Key: "$arrayElemAt", Value: bson.A{"$customer.name", 0}}},
				"unknown",
			}}}},
			{Key: "email", Value: bson.D{{Key: "$arrayElemAt", Value: bson.A{"$customer.email", 0}}}},
			{Key: "total", Value: 1},
			{Key: "orders", Value: 1},
		}),
	)

	docs, err := e.runPipeline(ctx, shopID, models.CollectionOrders, p)
	if err != nil {
		return e.storeFailure("top customers", shopID, models.CollectionOrders, err)
	}

	return models.ResultEnvelope{
		Success: true,
		Records: toRecords(docs),
		Meta:    map[string]any{"collection": models.CollectionOrders, "limit": limit},
	}, nil
}

// runPipeline guards every aggregation with the stage allowlist and the
// tenant-scope check before handing it to the store. The checks apply even to
// pipelines from the fixed templates above; the invariant is cheap and the
// templates change.
func (e *toolExecutor) runPipeline(ctx context.Context, shopID int64, collection string, p mongo.Pipeline) ([]bson.M, error) {
	if err := pipeline.Validate(p); err != nil {
		return nil, err
	}
	if err := pipeline.VerifyTenantScope(p, shopID); err != nil {
		return nil, err
	}
	return e.store.Aggregate(ctx, collection, p)
}

func (e *toolExecutor) storeFailure(op string, shopID int64, collection string, err error) (models.ResultEnvelope, error) {
	e.logger.Error("tool execution failed",
		zap.String("op", op),
		zap.Int64("shop_id", shopID),
		zap.String("collection", collection),
		zap.Error(err))
	return models.FailedEnvelope("I couldn't fetch that data right now."),
		fmt.Errorf("%s on %s: %w", op, collection, err)
}

func (e *toolExecutor) clampLimit(n int) int {
	if n <= 0 {
		n = fallbackResultLimit
	}
	if n > e.maxDocs {
		n = e.maxDocs
	}
	return n
}

// safeGroupBy validates a grouping field, substituting the collection's
// default for anything empty or malformed.
func (e *toolExecutor) safeGroupBy(field, collection string) string {
	if field == "" || !fieldNamePattern.MatchString(field) {
		fallback := models.DefaultGroupBy(collection)
		if field != "" {
			e.logger.Warn("replacing malformed group_by",
				zap.String("group_by", field),
				zap.String("fallback", fallback))
		}
		return fallback
	}
	return field
}

func (e *toolExecutor) safeMetricField(field string) string {
	if field == "" || !fieldNamePattern.MatchString(field) {
		return models.FieldGrandTotal
	}
	return field
}

func toRecords(docs []bson.M) []map[string]any {
	records := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		records = append(records, map[string]any(d))
	}
	return records
}

// toFloat64 coerces the numeric types the BSON decoder produces.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}
