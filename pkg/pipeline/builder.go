// Package pipeline builds and validates MongoDB aggregation pipelines.
// Builders produce the fixed tool shapes; the validator guards the trust
// boundary for anything influenced by classifier output before it reaches
// the document store.
package pipeline

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/shoplens-ai/shoplens-engine/pkg/models"
)

// BuildMatchFilter merges the tenant scope with every extracted filter into
// the first-stage $match document. The shop key is written last and
// unconditionally, so no filter, extractor-built or generative, can
// overwrite it.
func BuildMatchFilter(shopID int64, f models.ExtractedFilters) bson.D {
	filter := bson.D{}

	if f.Date != nil {
		rng := bson.D{{Key: "$gte", Value: f.Date.GTE}}
		if f.Date.LT != nil {
			rng = append(rng, bson.E{Key: "$lt", Value: *f.Date.LT})
		}
		filter = append(filter, bson.E{Key: models.FieldCreatedAt, Value: rng})
	}

	for _, s := range f.Status {
		filter = append(filter, bson.E{Key: s.Field, Value: s.Value})
	}

	if f.Numeric != nil {
		cmp := bson.D{}
		if f.Numeric.GT != nil {
			cmp = append(cmp, bson.E{Key: "$gt", Value: *f.Numeric.GT})
		}
		if f.Numeric.GTE != nil {
			cmp = append(cmp, bson.E{Key: "$gte", Value: *f.Numeric.GTE})
		}
		if f.Numeric.LT != nil {
			cmp = append(cmp, bson.E{Key: "$lt", Value: *f.Numeric.LT})
		}
		if f.Numeric.LTE != nil {
			cmp = append(cmp, bson.E{Key: "$lte", Value: *f.Numeric.LTE})
		}
		if len(cmp) > 0 {
			filter = append(filter, bson.E{Key: f.Numeric.Field, Value: cmp})
		}
	}

	for key, value := range f.Extra {
		if key == models.FieldShopID {
			continue
		}
		filter = append(filter, bson.E{Key: key, Value: value})
	}

	// Tenant scope last: dropKey removes any earlier shadow, so the document
	// carries exactly one shop pin and it is ours.
	filter = dropKey(filter, models.FieldShopID)
	filter = append(filter, bson.E{Key: models.FieldShopID, Value: shopID})

	return filter
}

func dropKey(doc bson.D, key string) bson.D {
	out := doc[:0]
	for _, e := range doc {
		if e.Key != key {
			out = append(out, e)
		}
	}
	return out
}

// Match wraps a filter document in a $match stage.
func Match(filter bson.D) bson.D {
	return bson.D{{Key: "$match", Value: filter}}
}

// Count appends a $count stage writing the total into the named field.
func Count(field string) bson.D {
	return bson.D{{Key: "$count", Value: field}}
}

// Group builds a $group stage with the given _id expression and
// accumulators.
func Group(id any, accumulators bson.D) bson.D {
	spec := bson.D{{Key: "_id", Value: id}}
	spec = append(spec, accumulators...)
	return bson.D{{Key: "$group", Value: spec}}
}

// Sum is a {$sum: expr} accumulator for use inside Group.
func Sum(expr any) bson.D {
	return bson.D{{Key: "$sum", Value: expr}}
}

// Avg is a {$avg: expr} accumulator for use inside Group.
func Avg(expr any) bson.D {
	return bson.D{{Key: "$avg", Value: expr}}
}

// Sort builds a single-field $sort stage.
func Sort(field string, desc bool) bson.D {
	dir := 1
	if desc {
		dir = -1
	}
	return bson.D{{Key: "$sort", Value: bson.D{{Key: field, Value: dir}}}}
}

// Limit builds a $limit stage.
func Limit(n int) bson.D {
	return bson.D{{Key: "$limit", Value: n}}
}

// Unwind builds an $unwind stage for an array path ("$items").
func Unwind(path string) bson.D {
	return bson.D{{Key: "$unwind", Value: path}}
}

// Lookup builds a $lookup join stage.
func Lookup(from, localField, foreignField, as string) bson.D {
	return bson.D{{Key: "$lookup", Value: bson.D{
		{Key: "from", Value: from},
		{Key: "localField", Value: localField},
		{Key: "foreignField", Value: foreignField},
		{Key: "as", Value: as},
	}}}
}

// Project builds a $project stage from the given field spec.
func Project(fields bson.D) bson.D {
	return bson.D{{Key: "$project", Value: fields}}
}

// New assembles stages into a pipeline, skipping nil stages so optional
// stages can be composed inline.
func New(stages ...bson.D) mongo.Pipeline {
	p := make(mongo.Pipeline, 0, len(stages))
	for _, s := range stages {
		if s != nil {
			p = append(p, s)
		}
	}
	return p
}
