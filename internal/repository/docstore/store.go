package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"example.com/trip-budget-planner/backend/internal/models"
	"example.com/trip-budget-planner/backend/internal/repository"
)

const (
	plansCollection      = "trip_plans"
	aiRequestsCollection = "ai_requests"
)

// Store is the MongoDB PlanStore. Each plan is one document with embedded expenses.
type Store struct {
	plans      *mongo.Collection
	aiRequests *mongo.Collection
	nowFunc    func() time.Time
}

var (
	_ repository.PlanStore       = (*Store)(nil)
	_ repository.AIRequestLogger = (*Store)(nil)
)

// New создает хранилище планов поверх базы MongoDB.
func New(db *mongo.Database) *Store {
	return &Store{
		plans:      db.Collection(plansCollection),
		aiRequests: db.Collection(aiRequestsCollection),
		nowFunc:    func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

// EnsureIndexes создает уникальный индекс по (владелец, направление).
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.plans.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "owner_id", Value: 1}, {Key: "destination", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("owner_destination_unique"),
		},
		{
			Keys:    bson.D{{Key: "owner_id", Value: 1}, {Key: "expenses._id", Value: 1}},
			Options: options.Index().SetName("owner_expense"),
		},
	})
	return err
}

func (s *Store) UpsertPlan(ctx context.Context, ownerID, destination string, fields repository.PlanFields) (models.TripPlan, error) {
	owner, place, err := repository.NormalizeKey(ownerID, destination)
	if err != nil {
		return models.TripPlan{}, err
	}
	if err := fields.Validate(); err != nil {
		return models.TripPlan{}, err
	}
	fields = fields.Normalized()

	filter := bson.M{"owner_id": owner, "destination": place}

	existing, err := s.findOne(ctx, filter)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		if fields.TotalBudget == nil {
			return models.TripPlan{}, fmt.Errorf("%w: totalBudget is required for a new plan", repository.ErrInvalid)
		}
	case err != nil:
		return models.TripPlan{}, err
	default:
		merged := existing.Clone()
		if err := fields.Apply(&merged); err != nil {
			return models.TripPlan{}, err
		}
	}

	fields = truncated(fields)
	insert := &planDocument{ID: uuid.NewString(), OwnerID: owner, Destination: place}
	update := planUpdate(fields, s.nowFunc(), insert)

	opts := options.FindOneAndUpdate().
		SetUpsert(fields.TotalBudget != nil).
		SetReturnDocument(options.After)

	plan, err := s.findOneAndUpdate(ctx, filter, update, opts)
	if errors.Is(err, repository.ErrNotFound) {
		return plan, fmt.Errorf("%w: totalBudget is required for a new plan", repository.ErrInvalid)
	}
	return plan, err
}

func (s *Store) UpdatePlan(ctx context.Context, ownerID string, planID uuid.UUID, fields repository.PlanFields) (models.TripPlan, error) {
	if err := fields.Validate(); err != nil {
		return models.TripPlan{}, err
	}
	fields = fields.Normalized()

	filter := bson.M{"_id": planID.String(), "owner_id": ownerID}

	existing, err := s.findOne(ctx, filter)
	if err != nil {
		return models.TripPlan{}, err
	}
	merged := existing.Clone()
	if err := fields.Apply(&merged); err != nil {
		return models.TripPlan{}, err
	}

	update := planUpdate(truncated(fields), s.nowFunc(), nil)
	return s.findOneAndUpdate(ctx, filter, update, options.FindOneAndUpdate().SetReturnDocument(options.After))
}

func (s *Store) GetPlan(ctx context.Context, ownerID, destination string) (models.TripPlan, error) {
	owner, place, err := repository.NormalizeKey(ownerID, destination)
	if err != nil {
		return models.TripPlan{}, err
	}

	return s.findOne(ctx, bson.M{"owner_id": owner, "destination": place})
}

func (s *Store) GetPlanByID(ctx context.Context, ownerID string, planID uuid.UUID) (models.TripPlan, error) {
	return s.findOne(ctx, bson.M{"_id": planID.String(), "owner_id": ownerID})
}

func (s *Store) ListPlans(ctx context.Context, ownerID string) ([]models.TripPlan, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}, {Key: "_id", Value: 1}})

	cursor, err := s.plans.Find(ctx, bson.M{"owner_id": ownerID}, opts)
	if err != nil {
		return nil, err
	}

	var docs []planDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	plans := make([]models.TripPlan, 0, len(docs))
	for _, doc := range docs {
		plan, err := doc.toModel()
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}

	return plans, nil
}

func (s *Store) DeletePlan(ctx context.Context, ownerID string, planID uuid.UUID) error {
	result, err := s.plans.DeleteOne(ctx, bson.M{"_id": planID.String(), "owner_id": ownerID})
	if err != nil {
		return err
	}

	if result.DeletedCount == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func (s *Store) AddExpense(ctx context.Context, ownerID string, planID uuid.UUID, expense models.Expense) (models.TripPlan, error) {
	if err := repository.ValidateExpense(expense); err != nil {
		return models.TripPlan{}, err
	}

	now := s.nowFunc()
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = now
	}

	filter := bson.M{
		"_id":          planID.String(),
		"owner_id":     ownerID,
		"expenses._id": bson.M{"$ne": expense.ID.String()},
	}
	update := bson.M{
		"$push": bson.M{"expenses": fromExpense(expense)},
		"$set":  bson.M{"updated_at": now},
	}

	return s.findOneAndUpdate(ctx, filter, update, options.FindOneAndUpdate().SetReturnDocument(options.After))
}

func (s *Store) RemoveExpense(ctx context.Context, ownerID string, expenseID uuid.UUID) (models.TripPlan, error) {
	id := expenseID.String()
	filter := bson.M{"owner_id": ownerID, "expenses._id": id}
	update := bson.M{
		"$pull": bson.M{"expenses": bson.M{"_id": id}},
		"$set":  bson.M{"updated_at": s.nowFunc()},
	}

	return s.findOneAndUpdate(ctx, filter, update, options.FindOneAndUpdate().SetReturnDocument(options.After))
}

// LogRequest сохраняет лог AI-запроса в коллекцию ai_requests.
func (s *Store) LogRequest(ctx context.Context, log repository.AIRequestLog) error {
	createdAt := log.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.nowFunc()
	}

	_, err := s.aiRequests.InsertOne(ctx, aiRequestDocument{
		OwnerID:         log.OwnerID,
		RequestType:     log.RequestType,
		Provider:        log.Provider,
		Model:           log.Model,
		Prompt:          log.Prompt,
		RequestPayload:  string(log.RequestPayload),
		ResponsePayload: string(log.ResponsePayload),
		RawResponse:     log.RawResponse,
		Success:         log.Success,
		ErrorMessage:    log.ErrorMessage,
		CreatedAt:       createdAt,
	})
	return err
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (models.TripPlan, error) {
	var doc planDocument
	if err := s.plans.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.TripPlan{}, repository.ErrNotFound
		}
		return models.TripPlan{}, err
	}

	return doc.toModel()
}

func (s *Store) findOneAndUpdate(ctx context.Context, filter, update bson.M, opts *options.FindOneAndUpdateOptions) (models.TripPlan, error) {
	var doc planDocument
	if err := s.plans.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
			return models.TripPlan{}, repository.ErrNotFound
		case mongo.IsDuplicateKeyError(err):
			return models.TripPlan{}, fmt.Errorf("%w: %v", repository.ErrConflict, err)
		}
		return models.TripPlan{}, err
	}

	return doc.toModel()
}

func truncated(fields repository.PlanFields) repository.PlanFields {
	if fields.TripStartDate != nil {
		start := dateOnly(*fields.TripStartDate)
		fields.TripStartDate = &start
	}
	if fields.TripEndDate != nil {
		end := dateOnly(*fields.TripEndDate)
		fields.TripEndDate = &end
	}
	return fields
}

func dateOnly(value time.Time) time.Time {
	year, month, day := value.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
