package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"gotow/internal/models"
	"gotow/internal/repositories/interfaces"
	"gotow/internal/utils"
)

type requestRepository struct {
	collection *mongo.Collection
	cache      CacheService
}

func NewRequestRepository(db *mongo.Database, cache CacheService) interfaces.RequestRepository {
	return &requestRepository{
		collection: db.Collection("tow_requests"),
		cache:      cache,
	}
}

// Basic CRUD operations
func (r *requestRepository) Create(ctx context.Context, request *models.TowRequest) error {
	request.ID = primitive.NewObjectID()
	request.Status = models.RequestStatusPending
	request.Version = 1
	request.CreatedAt = time.Now()
	request.UpdatedAt = request.CreatedAt

	_, err := r.collection.InsertOne(ctx, request)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return interfaces.ErrDuplicateKey
		}
		return fmt.Errorf("failed to create tow request: %w", err)
	}

	r.cacheRequest(ctx, request)

	return nil
}

func (r *requestRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.TowRequest, error) {
	if request := r.getRequestFromCache(ctx, id.Hex()); request != nil {
		return request, nil
	}

	var request models.TowRequest
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&request)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get tow request: %w", err)
	}

	// Readers never populate the cache. A reader holding a document
	// decoded before a concurrent transition could otherwise re-cache
	// the pre-transition state after the writer's refresh and roll
	// observed versions backwards for the full TTL.
	return &request, nil
}

func (r *requestRepository) Update(ctx context.Context, id primitive.ObjectID, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()

	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id},
		bson.M{"$set": updates},
	)
	if err != nil {
		return fmt.Errorf("failed to update tow request: %w", err)
	}
	if result.MatchedCount == 0 {
		return interfaces.ErrNotFound
	}

	r.invalidateRequestCache(ctx, id.Hex())

	return nil
}

// Idempotency. Only a live request counts as a replay target; once a
// request reaches a terminal state its key is released (see
// releaseIdempotencyKey) and the same key opens a fresh dispatch.
func (r *requestRepository) GetByIdempotencyKey(ctx context.Context, requesterID primitive.ObjectID, key string) (*models.TowRequest, error) {
	var request models.TowRequest
	err := r.collection.FindOne(ctx, bson.M{
		"requester_id":    requesterID,
		"idempotency_key": key,
		"status":          bson.M{"$nin": models.TerminalStatuses()},
	}).Decode(&request)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get tow request by idempotency key: %w", err)
	}

	return &request, nil
}

// Requester views
func (r *requestRepository) GetActiveByRequester(ctx context.Context, requesterID primitive.ObjectID) ([]*models.TowRequest, error) {
	filter := bson.M{
		"requester_id": requesterID,
		"status":       bson.M{"$nin": models.TerminalStatuses()},
	}

	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to find active requests by requester: %w", err)
	}
	defer cursor.Close(ctx)

	var requests []*models.TowRequest
	if err := cursor.All(ctx, &requests); err != nil {
		return nil, fmt.Errorf("failed to decode active requests: %w", err)
	}

	return requests, nil
}

func (r *requestRepository) GetByRequester(ctx context.Context, requesterID primitive.ObjectID, params *utils.PaginationParams) ([]*models.TowRequest, int64, error) {
	filter := bson.M{"requester_id": requesterID}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count requests: %w", err)
	}

	cursor, err := r.collection.Find(ctx, filter, params.GetSortOptions())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to find requests by requester: %w", err)
	}
	defer cursor.Close(ctx)

	var requests []*models.TowRequest
	if err := cursor.All(ctx, &requests); err != nil {
		return nil, 0, fmt.Errorf("failed to decode requests: %w", err)
	}

	return requests, total, nil
}

// Candidate bookkeeping
func (r *requestRepository) AddCandidates(ctx context.Context, id primitive.ObjectID, candidates []models.Candidate, round int) error {
	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id, "status": models.RequestStatusPending},
		bson.M{
			"$push": bson.M{"candidates": bson.M{"$each": candidates}},
			"$set":  bson.M{"fanout_round": round, "updated_at": time.Now()},
			"$inc":  bson.M{"version": 1},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to add candidates: %w", err)
	}
	if result.MatchedCount == 0 {
		return r.classifyMiss(ctx, id, models.RequestStatusPending)
	}

	r.invalidateRequestCache(ctx, id.Hex())

	return nil
}

func (r *requestRepository) UpdateCandidateStatus(ctx context.Context, id, providerID primitive.ObjectID, from, to models.CandidateStatus) error {
	now := time.Now()
	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{
			"_id": id,
			"candidates": bson.M{"$elemMatch": bson.M{
				"provider_id": providerID,
				"status":      from,
			}},
		},
		bson.M{"$set": bson.M{
			"candidates.$.status":       to,
			"candidates.$.responded_at": now,
			"updated_at":                now,
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to update candidate status: %w", err)
	}
	if result.MatchedCount == 0 {
		return interfaces.ErrNotFound
	}

	r.invalidateRequestCache(ctx, id.Hex())

	return nil
}

func (r *requestRepository) TimeoutOutstandingCandidates(ctx context.Context, id primitive.ObjectID, notifiedBefore time.Time) (int64, error) {
	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id, "status": models.RequestStatusPending},
		bson.M{"$set": bson.M{
			"candidates.$[stale].status": models.CandidateStatusTimedOut,
			"updated_at":                 time.Now(),
		}},
		options.Update().SetArrayFilters(options.ArrayFilters{
			Filters: []interface{}{bson.M{
				"stale.status":      models.CandidateStatusNotified,
				"stale.notified_at": bson.M{"$lt": notifiedBefore},
			}},
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to timeout candidates: %w", err)
	}

	if result.ModifiedCount > 0 {
		r.invalidateRequestCache(ctx, id.Hex())
	}

	return result.ModifiedCount, nil
}

func (r *requestRepository) GetPendingForProvider(ctx context.Context, providerID primitive.ObjectID) ([]*models.TowRequest, error) {
	filter := bson.M{
		"status":     models.RequestStatusPending,
		"expires_at": bson.M{"$gt": time.Now()},
		"candidates": bson.M{"$elemMatch": bson.M{
			"provider_id": providerID,
			"status":      models.CandidateStatusNotified,
		}},
	}

	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to find pending requests for provider: %w", err)
	}
	defer cursor.Close(ctx)

	var requests []*models.TowRequest
	if err := cursor.All(ctx, &requests); err != nil {
		return nil, fmt.Errorf("failed to decode pending requests: %w", err)
	}

	return requests, nil
}

// AssignProvider is the arbitration point. The filter only matches a
// pending, unassigned request that still carries the provider as a
// notified candidate, so concurrent accepts resolve to exactly one
// winner no matter how they interleave.
func (r *requestRepository) AssignProvider(ctx context.Context, id, providerID primitive.ObjectID) (*models.TowRequest, error) {
	now := time.Now()

	filter := bson.M{
		"_id":                  id,
		"status":               models.RequestStatusPending,
		"assigned_provider_id": nil,
		"candidates": bson.M{"$elemMatch": bson.M{
			"provider_id": providerID,
			"status":      models.CandidateStatusNotified,
		}},
	}

	update := bson.M{
		"$set": bson.M{
			"status":                            models.RequestStatusAccepted,
			"assigned_provider_id":              providerID,
			"assigned_at":                       now,
			"updated_at":                        now,
			"candidates.$[winner].status":       models.CandidateStatusAccepted,
			"candidates.$[winner].responded_at": now,
			"candidates.$[loser].status":        models.CandidateStatusRejected,
		},
		"$inc": bson.M{"version": 1},
	}

	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetArrayFilters(options.ArrayFilters{
			Filters: []interface{}{
				bson.M{"winner.provider_id": providerID},
				bson.M{
					"loser.provider_id": bson.M{"$ne": providerID},
					"loser.status":      models.CandidateStatusNotified,
				},
			},
		})

	var request models.TowRequest
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&request)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, r.classifyMiss(ctx, id, models.RequestStatusPending)
		}
		return nil, fmt.Errorf("failed to assign provider: %w", err)
	}

	r.cacheRequest(ctx, &request)

	return &request, nil
}

// Status transitions
func (r *requestRepository) UpdateStatus(ctx context.Context, id primitive.ObjectID, from, to models.RequestStatus, updates map[string]interface{}) (*models.TowRequest, error) {
	if !models.CanTransition(from, to) {
		return nil, interfaces.ErrInvalidTransition
	}

	set := bson.M{
		"status":     to,
		"updated_at": time.Now(),
	}
	for key, value := range updates {
		set[key] = value
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var request models.TowRequest
	err := r.collection.FindOneAndUpdate(
		ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": set, "$inc": bson.M{"version": 1}},
		opts,
	).Decode(&request)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, r.classifyMiss(ctx, id, from)
		}
		return nil, fmt.Errorf("failed to update request status: %w", err)
	}

	if to.IsTerminal() {
		r.releaseIdempotencyKey(ctx, &request)
	}

	r.cacheRequest(ctx, &request)

	return &request, nil
}

// releaseIdempotencyKey frees the unique (requester_id, idempotency_key)
// slot of a terminal request by suffixing the key with the request id.
// The original key can then open a fresh dispatch while the record keeps
// a traceable form of the key it was created with. Best effort: if the
// write fails the slot stays held and a replay of the key surfaces the
// duplicate instead of silently reusing the dead request.
func (r *requestRepository) releaseIdempotencyKey(ctx context.Context, request *models.TowRequest) {
	if request.IdempotencyKey == "" {
		return
	}

	released := request.IdempotencyKey + ":" + request.ID.Hex()
	if _, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": request.ID},
		bson.M{"$set": bson.M{"idempotency_key": released}},
	); err == nil {
		request.IdempotencyKey = released
	}
}

// Sweeps
func (r *requestRepository) ListPending(ctx context.Context) ([]*models.TowRequest, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"status": models.RequestStatusPending})
	if err != nil {
		return nil, fmt.Errorf("failed to find pending requests: %w", err)
	}
	defer cursor.Close(ctx)

	var requests []*models.TowRequest
	if err := cursor.All(ctx, &requests); err != nil {
		return nil, fmt.Errorf("failed to decode pending requests: %w", err)
	}

	return requests, nil
}

func (r *requestRepository) ListExpired(ctx context.Context, now time.Time) ([]*models.TowRequest, error) {
	filter := bson.M{
		"status":     models.RequestStatusPending,
		"expires_at": bson.M{"$lte": now},
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find expired requests: %w", err)
	}
	defer cursor.Close(ctx)

	var requests []*models.TowRequest
	if err := cursor.All(ctx, &requests); err != nil {
		return nil, fmt.Errorf("failed to decode expired requests: %w", err)
	}

	return requests, nil
}

// classifyMiss explains why a guarded write matched nothing.
func (r *requestRepository) classifyMiss(ctx context.Context, id primitive.ObjectID, expected models.RequestStatus) error {
	var request models.TowRequest
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&request)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return interfaces.ErrNotFound
		}
		return fmt.Errorf("failed to inspect request after missed write: %w", err)
	}

	if request.Status.IsTerminal() {
		return interfaces.ErrTerminalState
	}
	if request.IsAssigned() || request.Status != expected {
		return interfaces.ErrAlreadyAssigned
	}

	// Status matched but a candidate guard did not.
	return interfaces.ErrNotFound
}

// Cache operations.
//
// Only writers call cacheRequest, always with the post-image returned by
// a guarded write, so the cached version can only move forward. The
// version check keeps two writers whose cache refreshes interleave from
// clobbering the newer snapshot with the older one.
func (r *requestRepository) cacheRequest(ctx context.Context, request *models.TowRequest) {
	if r.cache == nil {
		return
	}

	cacheKey := utils.CacheRequestPrefix + request.ID.Hex()
	if request.Status.IsTerminal() {
		r.cache.Delete(ctx, cacheKey)
		return
	}

	var cached models.TowRequest
	if err := r.cache.Get(ctx, cacheKey, &cached); err == nil && cached.Version >= request.Version {
		return
	}

	r.cache.Set(ctx, cacheKey, request, 2*time.Minute)
}

func (r *requestRepository) getRequestFromCache(ctx context.Context, requestID string) *models.TowRequest {
	if r.cache == nil {
		return nil
	}

	var request models.TowRequest
	if err := r.cache.Get(ctx, utils.CacheRequestPrefix+requestID, &request); err != nil {
		return nil
	}

	return &request
}

func (r *requestRepository) invalidateRequestCache(ctx context.Context, requestID string) {
	if r.cache != nil {
		r.cache.Delete(ctx, utils.CacheRequestPrefix+requestID)
	}
}
