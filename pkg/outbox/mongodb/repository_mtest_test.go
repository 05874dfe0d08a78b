package mongodb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/wms-platform/returns-service/pkg/outbox"
)

func TestOutboxRepository_MockOps(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("save and find", func(mt *mtest.T) {
		repo := NewOutboxRepository(mt.DB)
		ctx := context.Background()
		ns := mt.DB.Name() + "." + DefaultCollectionName

		mt.AddMockResponses(mtest.CreateSuccessResponse())
		require.NoError(t, repo.SaveAll(ctx, []*outbox.OutboxEvent{
			{ID: "evt-1", AggregateID: "RMA-1", EventType: "wms.return.created", CreatedAt: time.Now()},
			{ID: "evt-2", AggregateID: "RMA-1", EventType: "wms.return.approved", CreatedAt: time.Now()},
		}))

		// no round trip for an empty batch
		require.NoError(t, repo.SaveAll(ctx, nil))

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "evt-1"},
			{Key: "aggregateId", Value: "RMA-1"},
			{Key: "eventType", Value: "wms.return.created"},
			{Key: "retryCount", Value: 0},
			{Key: "maxRetries", Value: 10},
		}))
		events, err := repo.FindUnpublished(ctx, 50)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "evt-1", events[0].ID)
		assert.True(t, events[0].ShouldRetry())

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{{Key: "_id", Value: "evt-1"}, {Key: "aggregateId", Value: "RMA-1"}},
		))
		events, err = repo.FindByAggregateID(ctx, "RMA-1")
		require.NoError(t, err)
		assert.Len(t, events, 1)
	})

	mt.Run("updates", func(mt *mtest.T) {
		repo := NewOutboxRepository(mt.DB)
		ctx := context.Background()

		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))
		require.NoError(t, repo.MarkPublished(ctx, "evt-1"))

		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))
		require.NoError(t, repo.IncrementRetry(ctx, "evt-2", "broker down"))

		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}))
		err := repo.MarkPublished(ctx, "missing")
		assert.ErrorIs(t, err, ErrEventNotFound)
	})

	mt.Run("indexes", func(mt *mtest.T) {
		repo := NewOutboxRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		require.NoError(t, repo.EnsureIndexes(context.Background()))
	})
}
