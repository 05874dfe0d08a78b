package mongodb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/wms-platform/returns-service/internal/domain"
	"github.com/wms-platform/returns-service/pkg/cloudevents"
	outboxMongo "github.com/wms-platform/returns-service/pkg/outbox/mongodb"
	"github.com/wms-platform/returns-service/pkg/tenant"
)

func newTestReturn(t *testing.T) *domain.Return {
	t.Helper()
	fulfilled := time.Now().UTC().Add(-72 * time.Hour)
	policy, err := domain.NewPolicySnapshot(domain.PolicySnapshotParams{
		PolicyVersion:    1,
		Currency:         "USD",
		ReturnWindowDays: 30,
		CreatedAt:        time.Now().UTC(),
	})
	require.NoError(t, err)

	order := domain.OrderSnapshot{
		OrderID:  "ORD-1001",
		TenantID: "tenant-a",
		Currency: "USD",
		Dates:    domain.OrderDates{OrderDate: fulfilled, FulfilledAt: &fulfilled},
	}
	r, err := domain.NewReturn("tenant-a", order, "shopper@example.com", domain.ChannelCustomer, domain.MethodPrepaidLabel, policy)
	require.NoError(t, err)
	return r
}

func newMockReturnRepository(mt *mtest.T) *ReturnRepository {
	return &ReturnRepository{
		collection:   mt.DB.Collection(returnsCollection),
		db:           mt.DB,
		outboxRepo:   outboxMongo.NewOutboxRepository(mt.DB),
		eventFactory: cloudevents.NewEventFactory(cloudevents.SourceReturns),
	}
}

func TestRepositoryConstructors(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("returns", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(), // returns indexes
			mtest.CreateSuccessResponse(), // outbox indexes
		)
		repo := NewReturnRepository(mt.DB, cloudevents.NewEventFactory(cloudevents.SourceReturns), nil)
		require.NotNil(t, repo)
	})

	mt.Run("policies", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		repo := NewPolicyRepository(mt.DB, nil)
		require.NotNil(t, repo)
	})
}

func TestReturnRepository_Save(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("insert new return", func(mt *mtest.T) {
		repo := newMockReturnRepository(mt)
		r := newTestReturn(t)

		mt.AddMockResponses(
			mtest.CreateSuccessResponse(), // insert
			mtest.CreateSuccessResponse(), // commitTransaction
		)

		require.NoError(t, repo.Save(context.Background(), r))
		assert.Equal(t, int64(1), r.Version)
	})

	mt.Run("update writes events to the outbox", func(mt *mtest.T) {
		repo := newMockReturnRepository(mt)
		r := newTestReturn(t)
		r.Version = 3
		require.NoError(t, r.Cancel("agent@example.com", "duplicate request"))
		require.Len(t, r.DomainEvents(), 1)

		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}),
			mtest.CreateSuccessResponse(), // outbox insertMany
			mtest.CreateSuccessResponse(), // commitTransaction
		)

		require.NoError(t, repo.Save(context.Background(), r))
		assert.Equal(t, int64(4), r.Version)
		assert.Empty(t, r.DomainEvents())
	})

	mt.Run("stale version", func(mt *mtest.T) {
		repo := newMockReturnRepository(mt)
		r := newTestReturn(t)
		r.Version = 3
		require.NoError(t, r.Cancel("agent@example.com", "duplicate request"))

		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
			mtest.CreateSuccessResponse(), // abortTransaction
		)

		err := repo.Save(context.Background(), r)
		assert.ErrorIs(t, err, domain.ErrConcurrentModification)
		assert.Equal(t, int64(3), r.Version)
		assert.Len(t, r.DomainEvents(), 1)
	})

	mt.Run("foreign tenant on context", func(mt *mtest.T) {
		repo := newMockReturnRepository(mt)
		r := newTestReturn(t)

		ctx := tenant.WithTenantID(context.Background(), "tenant-b")
		err := repo.Save(ctx, r)
		assert.ErrorIs(t, err, domain.ErrCrossTenantAccess)
		assert.Equal(t, int64(0), r.Version)
	})
}

func TestReturnRepository_Reads(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	returnDoc := func(id string) bson.D {
		return bson.D{
			{Key: "returnId", Value: id},
			{Key: "tenantId", Value: "tenant-a"},
			{Key: "orderId", Value: "ORD-1001"},
			{Key: "status", Value: "REQUESTED"},
			{Key: "customerEmail", Value: "shopper@example.com"},
			{Key: "version", Value: int64(2)},
		}
	}

	mt.Run("find by id", func(mt *mtest.T) {
		repo := newMockReturnRepository(mt)
		ctx := context.Background()
		ns := mt.DB.Name() + "." + returnsCollection

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, returnDoc("RMA-1")))
		r, err := repo.FindByID(ctx, "tenant-a", "RMA-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusRequested, r.Status)
		assert.Equal(t, int64(2), r.Version)

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, returnDoc("RMA-1")))
		_, err = repo.FindByID(ctx, "tenant-b", "RMA-1")
		assert.ErrorIs(t, err, domain.ErrCrossTenantAccess)

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))
		_, err = repo.FindByID(ctx, "tenant-a", "RMA-404")
		assert.ErrorIs(t, err, domain.ErrReturnNotFound)
	})

	mt.Run("search", func(mt *mtest.T) {
		repo := newMockReturnRepository(mt)
		ns := mt.DB.Name() + "." + returnsCollection

		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{{Key: "n", Value: int64(7)}}),
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, returnDoc("RMA-1"), returnDoc("RMA-2")),
		)

		status := domain.StatusRequested
		from := time.Now().Add(-24 * time.Hour)
		returns, total, err := repo.Search(context.Background(),
			domain.ReturnFilter{TenantID: "tenant-a", Status: &status, CreatedFrom: &from},
			domain.Pagination{Page: 1, PageSize: 2},
		)
		require.NoError(t, err)
		assert.Equal(t, int64(7), total)
		require.Len(t, returns, 2)
		assert.Equal(t, "RMA-2", returns[1].ReturnID)
	})

	mt.Run("customer history", func(mt *mtest.T) {
		repo := newMockReturnRepository(mt)
		ns := mt.DB.Name() + "." + returnsCollection

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "_id", Value: nil},
			{Key: "returns", Value: int32(3)},
			{Key: "codes", Value: bson.A{bson.A{"wrong_size"}, bson.A{"defective", "defective"}}},
		}))

		profile, err := repo.CustomerHistory(context.Background(), "tenant-a", "shopper@example.com", time.Now().Add(-90*24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 3, profile.ReturnsLast90Days)
		assert.Equal(t, []string{"wrong_size", "defective", "defective"}, profile.PriorReasonCodes)
	})

	mt.Run("customer without returns", func(mt *mtest.T) {
		repo := newMockReturnRepository(mt)
		ns := mt.DB.Name() + "." + returnsCollection

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		profile, err := repo.CustomerHistory(context.Background(), "tenant-a", "new@example.com", time.Now())
		require.NoError(t, err)
		assert.Zero(t, profile.ReturnsLast90Days)
		assert.Empty(t, profile.PriorReasonCodes)
	})
}

func TestSearchFilter(t *testing.T) {
	orderID := "ORD-1001"
	to := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	query := searchFilter(domain.ReturnFilter{TenantID: "tenant-a", OrderID: &orderID, CreatedTo: &to})

	assert.Equal(t, "tenant-a", query["tenantId"])
	assert.Equal(t, "ORD-1001", query["orderId"])
	assert.Equal(t, bson.M{"$lte": to}, query["createdAt"])
	assert.NotContains(t, query, "status")
}

func TestPolicyRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	newRepo := func(mt *mtest.T) *PolicyRepository {
		return &PolicyRepository{
			collection: mt.DB.Collection(policiesCollection),
			db:         mt.DB,
			now:        func() time.Time { return time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC) },
		}
	}

	mt.Run("save next version", func(mt *mtest.T) {
		repo := newRepo(mt)
		ns := mt.DB.Name() + "." + policiesCollection

		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{{Key: "version", Value: 2}}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}),
			mtest.CreateSuccessResponse(), // insert
			mtest.CreateSuccessResponse(), // commitTransaction
		)

		saved, err := repo.Save(context.Background(), "tenant-a", domain.PolicyConfig{Name: "standard", Currency: "USD"}, "merchant@example.com")
		require.NoError(t, err)
		assert.Equal(t, 3, saved.Version)
		assert.True(t, saved.Active)
		assert.Equal(t, "merchant@example.com", saved.ActivatedBy)
	})

	mt.Run("first version", func(mt *mtest.T) {
		repo := newRepo(mt)
		ns := mt.DB.Name() + "." + policiesCollection

		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
			mtest.CreateSuccessResponse(),
			mtest.CreateSuccessResponse(),
		)

		saved, err := repo.Save(context.Background(), "tenant-a", domain.PolicyConfig{Name: "standard"}, "merchant")
		require.NoError(t, err)
		assert.Equal(t, 1, saved.Version)
	})

	mt.Run("get active", func(mt *mtest.T) {
		repo := newRepo(mt)
		ns := mt.DB.Name() + "." + policiesCollection

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "tenantId", Value: "tenant-a"},
			{Key: "version", Value: 3},
			{Key: "active", Value: true},
			{Key: "config", Value: bson.D{{Key: "name", Value: "standard"}, {Key: "currency", Value: "USD"}}},
		}))
		active, err := repo.GetActive(context.Background(), "tenant-a")
		require.NoError(t, err)
		assert.Equal(t, 3, active.Version)
		assert.Equal(t, "standard", active.Config.Name)

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))
		_, err = repo.GetActive(context.Background(), "tenant-b")
		assert.ErrorIs(t, err, domain.ErrPolicyNotFound)
	})
}
