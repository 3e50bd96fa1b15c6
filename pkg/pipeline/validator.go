package pipeline

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/shoplens-ai/shoplens-engine/pkg/apperrors"
	"github.com/shoplens-ai/shoplens-engine/pkg/models"
)

// allowedStages is the closed set of aggregation stages the engine will run.
// Everything the tool catalogue produces fits in here; anything else is
// rejected before it reaches the document store.
var allowedStages = map[string]bool{
	"$match":     true,
	"$group":     true,
	"$sort":      true,
	"$limit":     true,
	"$skip":      true,
	"$project":   true,
	"$count":     true,
	"$unwind":    true,
	"$lookup":    true,
	"$addFields": true,
}

// deniedOperators can write outside the query or execute server-side code.
// They are rejected anywhere in a pipeline document, not just at stage level,
// so a $lookup sub-pipeline or expression cannot smuggle one in.
var deniedOperators = map[string]bool{
	"$out":         true,
	"$merge":       true,
	"$function":    true,
	"$where":       true,
	"$accumulator": true,
}

// Validate checks every stage against the allowlist and scans stage bodies
// for denied operators. All pipelines pass through here before execution,
// regardless of which classifier produced the decision behind them.
func Validate(p mongo.Pipeline) error {
	if len(p) == 0 {
		return fmt.Errorf("%w: empty pipeline", apperrors.ErrUnsafePipeline)
	}
	for i, stage := range p {
		if len(stage) != 1 {
			return fmt.Errorf("%w: stage %d must hold exactly one operator, got %d", apperrors.ErrUnsafePipeline, i, len(stage))
		}
		op := stage[0].Key
		if !allowedStages[op] {
			return fmt.Errorf("%w: stage %d uses %s", apperrors.ErrUnsafePipeline, i, op)
		}
		if err := scanValue(stage[0].Value); err != nil {
			return fmt.Errorf("stage %d (%s): %w", i, op, err)
		}
	}
	return nil
}

// VerifyTenantScope confirms the pipeline opens with a $match that pins the
// tenant key to the expected shop. Executed pipelines must satisfy this in
// addition to Validate.
func VerifyTenantScope(p mongo.Pipeline, shopID int64) error {
	if len(p) == 0 || len(p[0]) != 1 || p[0][0].Key != "$match" {
		return fmt.Errorf("%w: pipeline must start with $match", apperrors.ErrMissingShopID)
	}
	match, ok := p[0][0].Value.(bson.D)
	if !ok {
		return fmt.Errorf("%w: first $match has unexpected shape", apperrors.ErrMissingShopID)
	}
	for _, e := range match {
		if e.Key != models.FieldShopID {
			continue
		}
		if v, ok := e.Value.(int64); ok && v == shopID {
			return nil
		}
		return fmt.Errorf("%w: first $match pins %s to a different tenant", apperrors.ErrMissingShopID, models.FieldShopID)
	}
	return fmt.Errorf("%w: first $match does not constrain %s", apperrors.ErrMissingShopID, models.FieldShopID)
}

// scanValue walks a stage body looking for denied operators in any nested
// document or array.
func scanValue(v any) error {
	switch val := v.(type) {
	case bson.D:
		for _, e := range val {
			if deniedOperators[e.Key] {
				return fmt.Errorf("%w: contains %s", apperrors.ErrUnsafePipeline, e.Key)
			}
			if err := scanValue(e.Value); err != nil {
				return err
			}
		}
	case bson.M:
		for k, inner := range val {
			if deniedOperators[k] {
				return fmt.Errorf("%w: contains %s", apperrors.ErrUnsafePipeline, k)
			}
			if err := scanValue(inner); err != nil {
				return err
			}
		}
	case map[string]any:
		for k, inner := range val {
			if deniedOperators[k] {
				return fmt.Errorf("%w: contains %s", apperrors.ErrUnsafePipeline, k)
			}
			if err := scanValue(inner); err != nil {
				return err
			}
		}
	case bson.A:
		for _, item := range val {
			if err := scanValue(item); err != nil {
				return err
			}
		}
	case []any:
		for _, item := range val {
			if err := scanValue(item); err != nil {
				return err
			}
		}
	case []bson.D:
		for _, item := range val {
			if err := scanValue(item); err != nil {
				return err
			}
		}
	}
	return nil
}
