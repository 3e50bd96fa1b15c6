//go:build integration

package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shoplens-ai/shoplens-engine/pkg/adapters/docstore"
	"github.com/shoplens-ai/shoplens-engine/pkg/models"
	"github.com/shoplens-ai/shoplens-engine/pkg/testhelpers"
)

// integrationExecutor runs the executor against a real MongoDB so the
// compiled pipelines are exercised by the actual aggregation engine, not a
// mock. Each test gets its own database via ShopDatabase.
func integrationExecutor(t *testing.T) (ToolExecutor, ResponseFormatter) {
	t.Helper()

	ts := testhelpers.GetTestStore(t)
	db := ts.ShopDatabase(t)

	testhelpers.SeedOrders(t, db, 13, 7)
	testhelpers.SeedOrders(t, db, 99, 3)

	store := docstore.NewMongoStore(ts.Client, db.Name(), 10*time.Second, zap.NewNop())
	return NewToolExecutor(store, 100, zap.NewNop()), NewResponseFormatter(nil, false, 5, zap.NewNop())
}

func TestToolExecutor_CountSeesOnlyOwnShop(t *testing.T) {
	exec, formatter := integrationExecutor(t)

	envelope, err := exec.Execute(context.Background(), 13,
		decisionFor(models.ToolCountDocuments, models.ToolParams{Collection: models.CollectionOrders}))
	require.NoError(t, err)
	require.True(t, envelope.Success)

	require.NotNil(t, envelope.Count)
	assert.Equal(t, int64(7), *envelope.Count, "the other shop's 3 orders must not be counted")

	answer := formatter.Format(context.Background(),
		models.Question{ShopID: 13, Text: "how many orders do I have?"},
		decisionFor(models.ToolCountDocuments, models.ToolParams{Collection: models.CollectionOrders}),
		envelope)
	assert.Equal(t, "You have 7 orders.", answer)
}

func TestToolExecutor_SumAggregatesOnlyOwnShop(t *testing.T) {
	exec, formatter := integrationExecutor(t)

	// Seeded grand totals are 10..70 for shop 13, so the only scoped sum
	// is 280; any leak from shop 99 would show up in the figure.
	decision := decisionFor(models.ToolCalculateSum, models.ToolParams{
		Collection: models.CollectionOrders,
		Field:      models.FieldGrandTotal,
	})

	envelope, err := exec.Execute(context.Background(), 13, decision)
	require.NoError(t, err)
	require.True(t, envelope.Success)

	require.NotNil(t, envelope.Value)
	assert.InDelta(t, 280.0, *envelope.Value, 0.001)

	answer := formatter.Format(context.Background(),
		models.Question{ShopID: 13, Text: "what is my total revenue?"},
		decision, envelope)
	assert.Equal(t, "Your total revenue is $280.00 across 7 orders.", answer)
}

func TestToolExecutor_ForeignShopWithNoDataGetsZero(t *testing.T) {
	exec, formatter := integrationExecutor(t)

	decision := decisionFor(models.ToolCalculateSum, models.ToolParams{
		Collection: models.CollectionOrders,
		Field:      models.FieldGrandTotal,
	})

	envelope, err := exec.Execute(context.Background(), 42, decision)
	require.NoError(t, err)
	require.True(t, envelope.Success, "an empty aggregate is an answer, not a failure")

	answer := formatter.Format(context.Background(),
		models.Question{ShopID: 42, Text: "what is my total revenue?"},
		decision, envelope)
	assert.Equal(t, "No orders matched, so your total revenue is $0.00.", answer)
}
