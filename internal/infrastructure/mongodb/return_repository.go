package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/returns-service/internal/domain"
	"github.com/wms-platform/returns-service/pkg/cloudevents"
	"github.com/wms-platform/returns-service/pkg/kafka"
	pkgmongo "github.com/wms-platform/returns-service/pkg/mongodb"
	"github.com/wms-platform/returns-service/pkg/outbox"
	outboxMongo "github.com/wms-platform/returns-service/pkg/outbox/mongodb"
	"github.com/wms-platform/returns-service/pkg/tenant"
)

const (
	returnsCollection = "returns"
	aggregateType     = "Return"
)

// ReturnRepository implements domain.ReturnRepository
type ReturnRepository struct {
	collection   *mongo.Collection
	db           *mongo.Database
	outboxRepo   *outboxMongo.OutboxRepository
	eventFactory *cloudevents.EventFactory
	instr        *pkgmongo.Instrumentation
}

// NewReturnRepository creates a new ReturnRepository. instr may be nil.
func NewReturnRepository(db *mongo.Database, eventFactory *cloudevents.EventFactory, instr *pkgmongo.Instrumentation) *ReturnRepository {
	r := &ReturnRepository{
		collection:   db.Collection(returnsCollection),
		db:           db,
		outboxRepo:   outboxMongo.NewOutboxRepository(db),
		eventFactory: eventFactory,
		instr:        instr,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = r.EnsureIndexes(ctx)

	return r
}

// EnsureIndexes creates the returns and outbox indexes
func (r *ReturnRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "returnId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "tenantId", Value: 1},
				{Key: "status", Value: 1},
				{Key: "createdAt", Value: -1},
			},
		},
		{
			Keys: bson.D{
				{Key: "tenantId", Value: 1},
				{Key: "orderId", Value: 1},
			},
		},
		{
			Keys: bson.D{
				{Key: "tenantId", Value: 1},
				{Key: "customerEmail", Value: 1},
				{Key: "createdAt", Value: -1},
			},
		},
	}

	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create return indexes: %w", err)
	}
	return r.outboxRepo.EnsureIndexes(ctx)
}

// Save writes the return with a version check and its pending events to the outbox
// in one transaction. Events are cleared only after the commit.
func (r *ReturnRepository) Save(ctx context.Context, ret *domain.Return) error {
	if err := tenant.VerifyOwnership(ctx, ret.TenantID); err != nil {
		return domain.ErrCrossTenantAccess
	}

	expected := ret.Version
	ret.Version = expected + 1

	err := r.instr.Observe(ctx, returnsCollection, "save", func(ctx context.Context) error {
		session, err := r.db.Client().StartSession()
		if err != nil {
			return fmt.Errorf("failed to start session: %w", err)
		}
		defer session.EndSession(ctx)

		_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
			if err := r.write(sessCtx, ret, expected); err != nil {
				return nil, err
			}

			events, err := r.outboxEvents(ret)
			if err != nil {
				return nil, err
			}
			if err := r.outboxRepo.SaveAll(sessCtx, events); err != nil {
				return nil, fmt.Errorf("failed to save outbox events: %w", err)
			}
			return nil, nil
		})
		return err
	})
	if err != nil {
		ret.Version = expected
		return err
	}

	ret.ClearDomainEvents()
	return nil
}

// write inserts a new return or replaces the stored one if it is still at expected
func (r *ReturnRepository) write(ctx context.Context, ret *domain.Return, expected int64) error {
	if expected == 0 {
		res, err := r.collection.InsertOne(ctx, ret)
		if err != nil {
			if pkgmongo.IsDuplicateKey(err) {
				return domain.ErrConcurrentModification
			}
			return fmt.Errorf("failed to insert return: %w", err)
		}
		if id, ok := res.InsertedID.(primitive.ObjectID); ok {
			ret.ID = id
		}
		return nil
	}

	filter := bson.M{
		"returnId": ret.ReturnID,
		"tenantId": ret.TenantID,
		"version":  expected,
	}
	res, err := r.collection.ReplaceOne(ctx, filter, ret)
	if err != nil {
		return fmt.Errorf("failed to update return: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrConcurrentModification
	}
	return nil
}

func (r *ReturnRepository) outboxEvents(ret *domain.Return) ([]*outbox.OutboxEvent, error) {
	pending := ret.DomainEvents()
	events := make([]*outbox.OutboxEvent, 0, len(pending))
	for _, event := range pending {
		ce := r.eventFactory.CreateTenantEvent(
			event.EventType(),
			event.AggregateID(),
			event.Tenant(),
			event.Correlation(),
			event.OccurredAt(),
			event,
		)
		oe, err := outbox.NewOutboxEventFromCloudEvent(ret.ReturnID, aggregateType, kafka.Topics.ReturnEvents, ce)
		if err != nil {
			return nil, fmt.Errorf("failed to create outbox event: %w", err)
		}
		events = append(events, oe)
	}
	return events, nil
}

// FindByID loads a return by id, then checks it belongs to tenantID
func (r *ReturnRepository) FindByID(ctx context.Context, tenantID, returnID string) (*domain.Return, error) {
	var ret domain.Return
	err := r.instr.Observe(ctx, returnsCollection, "findOne", func(ctx context.Context) error {
		return r.collection.FindOne(ctx, bson.M{"returnId": returnID}).Decode(&ret)
	})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrReturnNotFound
		}
		return nil, fmt.Errorf("failed to find return: %w", err)
	}
	if ret.TenantID != tenantID {
		return nil, domain.ErrCrossTenantAccess
	}
	return &ret, nil
}

// Search returns one page of a tenant's returns, newest first, and the total match count
func (r *ReturnRepository) Search(ctx context.Context, filter domain.ReturnFilter, pagination domain.Pagination) ([]*domain.Return, int64, error) {
	query := searchFilter(filter)

	var (
		total   int64
		returns []*domain.Return
	)
	err := r.instr.Observe(ctx, returnsCollection, "find", func(ctx context.Context) error {
		var err error
		total, err = r.collection.CountDocuments(ctx, query)
		if err != nil {
			return err
		}

		cursor, err := r.collection.Find(ctx, query, pkgmongo.PageOptions("createdAt", pagination.Skip(), pagination.Limit()))
		if err != nil {
			return err
		}
		defer cursor.Close(ctx)

		returns = make([]*domain.Return, 0)
		return cursor.All(ctx, &returns)
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search returns: %w", err)
	}
	return returns, total, nil
}

func searchFilter(f domain.ReturnFilter) bson.M {
	query := bson.M{"tenantId": f.TenantID}
	if f.Status != nil {
		query["status"] = *f.Status
	}
	if f.OrderID != nil {
		query["orderId"] = *f.OrderID
	}
	if f.CustomerEmail != nil {
		query["customerEmail"] = *f.CustomerEmail
	}

	var from, to interface{}
	if f.CreatedFrom != nil {
		from = *f.CreatedFrom
	}
	if f.CreatedTo != nil {
		to = *f.CreatedTo
	}
	if cond := pkgmongo.DateRange(from, to); cond != nil {
		query["createdAt"] = cond
	}
	return query
}

// CustomerHistory counts a customer's submitted returns since a point in time and
// collects the reason codes they used
func (r *ReturnRepository) CustomerHistory(ctx context.Context, tenantID, customerEmail string, since time.Time) (*domain.CustomerProfile, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"tenantId":      tenantID,
			"customerEmail": customerEmail,
			"status":        bson.M{"$ne": domain.StatusDraft},
			"createdAt":     bson.M{"$gte": since},
		}}},
		{{Key: "$project", Value: bson.M{"codes": "$items.reason.code"}}},
		{{Key: "$group", Value: bson.M{
			"_id":     nil,
			"returns": bson.M{"$sum": 1},
			"codes":   bson.M{"$push": "$codes"},
		}}},
	}

	var row struct {
		Returns int        `bson:"returns"`
		Codes   [][]string `bson:"codes"`
	}
	err := r.instr.Observe(ctx, returnsCollection, "aggregate", func(ctx context.Context) error {
		cursor, err := r.collection.Aggregate(ctx, pipeline)
		if err != nil {
			return err
		}
		defer cursor.Close(ctx)
		if cursor.Next(ctx) {
			return cursor.Decode(&row)
		}
		return cursor.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load customer history: %w", err)
	}

	profile := &domain.CustomerProfile{Email: customerEmail, ReturnsLast90Days: row.Returns}
	for _, codes := range row.Codes {
		profile.PriorReasonCodes = append(profile.PriorReasonCodes, codes...)
	}
	return profile, nil
}
