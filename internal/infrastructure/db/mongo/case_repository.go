package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/opsportal/portal/internal/core/domain"
	"github.com/opsportal/portal/internal/core/ports"
)

const collectionCases = "cases"

// CaseRepository stores cases with their embedded timeline. Every filter it
// builds carries the scope's facet, so a case owned by another facet is
// indistinguishable from a missing one.
type CaseRepository struct {
	col *mongo.Collection
}

var _ ports.CaseRepository = (*CaseRepository)(nil)

func NewCaseRepository(db *mongo.Database) *CaseRepository {
	return &CaseRepository{col: db.Collection(collectionCases)}
}

// scopeFilter restricts a query to the side of the case the scope acts on.
func scopeFilter(scope domain.OwnerScope) bson.M {
	field := "vendor_facet_id"
	if scope.Role() == domain.FacetClient {
		field = "client_facet_id"
	}
	return bson.M{field: string(scope.FacetID())}
}

func scopedID(scope domain.OwnerScope, caseID string) bson.M {
	f := scopeFilter(scope)
	f["_id"] = caseID
	return f
}

// Create inserts a new case document.
func (r *CaseRepository) Create(ctx context.Context, c *domain.Case) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if c.Timeline == nil {
		c.Timeline = []domain.TimelineEntry{}
	}
	_, err := r.col.InsertOne(ctx, c)
	return err
}

func (r *CaseRepository) FindScoped(ctx context.Context, scope domain.OwnerScope, caseID string) (*domain.Case, error) {
	if scope.IsZero() {
		return nil, domain.ErrScopeRequired
	}
	return r.findOne(ctx, scopedID(scope, caseID))
}

// FindByIdempotencyKey retrieves a case the scope's facet created with key.
func (r *CaseRepository) FindByIdempotencyKey(ctx context.Context, scope domain.OwnerScope, key string) (*domain.Case, error) {
	if scope.IsZero() {
		return nil, domain.ErrScopeRequired
	}
	f := scopeFilter(scope)
	f["idempotency_key"] = key
	return r.findOne(ctx, f)
}

func (r *CaseRepository) findOne(ctx context.Context, filter bson.M) (*domain.Case, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var c domain.Case
	err := r.col.FindOne(ctx, filter).Decode(&c)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrCaseNotFound
		}
		return nil, err
	}
	return &c, nil
}

// ListScoped returns one page of the scope's cases, newest first, and the total
// number of matches.
func (r *CaseRepository) ListScoped(ctx context.Context, scope domain.OwnerScope, filter ports.ListCasesFilter) ([]*domain.Case, int64, error) {
	if scope.IsZero() {
		return nil, 0, domain.ErrScopeRequired
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	q := listFilter(scope, filter)
	total, err := r.col.CountDocuments(ctx, q)
	if err != nil {
		return nil, 0, err
	}

	page := max(filter.Page, 1)
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64((page - 1) * filter.Limit)).
		SetLimit(int64(filter.Limit)).
		SetProjection(bson.M{"timeline": 0})
	cur, err := r.col.Find(ctx, q, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cur.Close(ctx)

	items := make([]*domain.Case, 0, filter.Limit)
	if err := cur.All(ctx, &items); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func listFilter(scope domain.OwnerScope, filter ports.ListCasesFilter) bson.M {
	q := scopeFilter(scope)
	if filter.Status != "" {
		q["status"] = filter.Status
	}
	return q
}

// ApplyTransition sets the status and appends the entries in one update whose
// filter also requires the stored status to still be t.From. When nothing
// matches, a second scoped read tells a lost race apart from a missing case.
func (r *CaseRepository) ApplyTransition(ctx context.Context, scope domain.OwnerScope, t ports.CaseTransition) error {
	if scope.IsZero() {
		return domain.ErrScopeRequired
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter, update := transitionUpdate(scope, t)
	res, err := r.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}

	n, err := r.col.CountDocuments(ctx, scopedID(scope, t.CaseID))
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrCaseNotFound
	}
	return domain.ErrConcurrentUpdate
}

func transitionUpdate(scope domain.OwnerScope, t ports.CaseTransition) (bson.M, bson.M) {
	filter := scopedID(scope, t.CaseID)
	filter["status"] = string(t.From)

	set := bson.M{
		"status":     string(t.To),
		"updated_at": t.At.UTC(),
	}
	if t.Stamp != nil {
		switch t.To {
		case domain.CaseResolved:
			set["resolved"] = t.Stamp
		case domain.CaseClosed:
			set["closed"] = t.Stamp
		}
	}
	update := bson.M{
		"$set":  set,
		"$push": bson.M{"timeline": bson.M{"$each": t.Entries}},
	}
	return filter, update
}

// AppendTimeline pushes entries without touching the status.
func (r *CaseRepository) AppendTimeline(ctx context.Context, scope domain.OwnerScope, caseID string, entries ...domain.TimelineEntry) error {
	if scope.IsZero() {
		return domain.ErrScopeRequired
	}
	if len(entries) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.UpdateOne(ctx, scopedID(scope, caseID), bson.M{
		"$set":  bson.M{"updated_at": entries[len(entries)-1].CreatedAt.UTC()},
		"$push": bson.M{"timeline": bson.M{"$each": entries}},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrCaseNotFound
	}
	return nil
}

// EnsureIndexes creates the indexes used by scoped reads.
func (r *CaseRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "client_facet_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "vendor_facet_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "idempotency_key", Value: 1}}},
	}

	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	return err
}
