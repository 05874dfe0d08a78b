package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/returns-service/internal/domain"
	pkgmongo "github.com/wms-platform/returns-service/pkg/mongodb"
)

const policiesCollection = "return_policies"

// ErrPolicyVersionTaken is returned when two activations race for the same version
var ErrPolicyVersionTaken = errors.New("policy version already exists")

// PolicyRepository implements domain.PolicyRepository. Every activation is kept as
// a numbered version; exactly one per tenant is active.
type PolicyRepository struct {
	collection *mongo.Collection
	db         *mongo.Database
	instr      *pkgmongo.Instrumentation
	now        func() time.Time
}

// NewPolicyRepository creates a new PolicyRepository. instr may be nil.
func NewPolicyRepository(db *mongo.Database, instr *pkgmongo.Instrumentation) *PolicyRepository {
	r := &PolicyRepository{
		collection: db.Collection(policiesCollection),
		db:         db,
		instr:      instr,
		now:        func() time.Time { return time.Now().UTC() },
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = r.EnsureIndexes(ctx)

	return r
}

// EnsureIndexes creates the policy indexes
func (r *PolicyRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "tenantId", Value: 1}, {Key: "version", Value: -1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "tenantId", Value: 1}, {Key: "active", Value: 1}},
		},
	}
	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create policy indexes: %w", err)
	}
	return nil
}

// Save deactivates the tenant's current policy and stores cfg as the next version
func (r *PolicyRepository) Save(ctx context.Context, tenantID string, cfg domain.PolicyConfig, activatedBy string) (*domain.PolicyVersion, error) {
	var saved domain.PolicyVersion

	err := r.instr.Observe(ctx, policiesCollection, "save", func(ctx context.Context) error {
		session, err := r.db.Client().StartSession()
		if err != nil {
			return fmt.Errorf("failed to start session: %w", err)
		}
		defer session.EndSession(ctx)

		_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
			latest, err := r.latestVersion(sessCtx, tenantID)
			if err != nil {
				return nil, err
			}

			if _, err := r.collection.UpdateMany(sessCtx,
				bson.M{"tenantId": tenantID, "active": true},
				bson.M{"$set": bson.M{"active": false}},
			); err != nil {
				return nil, fmt.Errorf("failed to deactivate policy: %w", err)
			}

			saved = domain.PolicyVersion{
				TenantID:    tenantID,
				Version:     latest + 1,
				Config:      cfg,
				Active:      true,
				ActivatedBy: activatedBy,
				ActivatedAt: r.now(),
			}
			if _, err := r.collection.InsertOne(sessCtx, saved); err != nil {
				if pkgmongo.IsDuplicateKey(err) {
					return nil, ErrPolicyVersionTaken
				}
				return nil, fmt.Errorf("failed to insert policy: %w", err)
			}
			return nil, nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

func (r *PolicyRepository) latestVersion(ctx context.Context, tenantID string) (int, error) {
	var latest struct {
		Version int `bson:"version"`
	}
	opts := options.FindOne().
		SetSort(bson.D{{Key: "version", Value: -1}}).
		SetProjection(bson.M{"version": 1})

	err := r.collection.FindOne(ctx, bson.M{"tenantId": tenantID}, opts).Decode(&latest)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read latest policy version: %w", err)
	}
	return latest.Version, nil
}

// GetActive returns the tenant's active policy
func (r *PolicyRepository) GetActive(ctx context.Context, tenantID string) (*domain.PolicyVersion, error) {
	var version domain.PolicyVersion
	err := r.instr.Observe(ctx, policiesCollection, "findOne", func(ctx context.Context) error {
		return r.collection.FindOne(ctx, bson.M{"tenantId": tenantID, "active": true}).Decode(&version)
	})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrPolicyNotFound
		}
		return nil, fmt.Errorf("failed to find active policy: %w", err)
	}
	return &version, nil
}
