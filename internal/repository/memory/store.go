package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"example.com/trip-budget-planner/backend/internal/models"
	"example.com/trip-budget-planner/backend/internal/repository"
)

type planKey struct {
	owner       string
	destination string
}

// Store is an in-memory PlanStore and AIRequestLogger. Values are copied on the way in and out.
type Store struct {
	mu      sync.RWMutex
	plans   map[uuid.UUID]*models.TripPlan
	byKey   map[planKey]uuid.UUID
	aiLogs  []repository.AIRequestLog
	nowFunc func() time.Time
}

var (
	_ repository.PlanStore       = (*Store)(nil)
	_ repository.AIRequestLogger = (*Store)(nil)
)

// New создает пустое хранилище в памяти.
func New() *Store {
	return &Store{
		plans:   make(map[uuid.UUID]*models.TripPlan),
		byKey:   make(map[planKey]uuid.UUID),
		nowFunc: func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) UpsertPlan(ctx context.Context, ownerID, destination string, fields repository.PlanFields) (models.TripPlan, error) {
	owner, place, err := repository.NormalizeKey(ownerID, destination)
	if err != nil {
		return models.TripPlan{}, err
	}
	if err := fields.Validate(); err != nil {
		return models.TripPlan{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	key := planKey{owner: owner, destination: place}

	if id, exists := s.byKey[key]; exists {
		return s.applyLocked(id, fields, now)
	}

	if fields.TotalBudget == nil {
		return models.TripPlan{}, fmt.Errorf("%w: totalBudget is required for a new plan", repository.ErrInvalid)
	}

	plan := models.TripPlan{
		ID:          uuid.New(),
		OwnerID:     owner,
		Destination: place,
		Expenses:    []models.Expense{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := fields.Apply(&plan); err != nil {
		return models.TripPlan{}, err
	}

	s.plans[plan.ID] = &plan
	s.byKey[key] = plan.ID

	return plan.Clone(), nil
}

func (s *Store) UpdatePlan(ctx context.Context, ownerID string, planID uuid.UUID, fields repository.PlanFields) (models.TripPlan, error) {
	if err := fields.Validate(); err != nil {
		return models.TripPlan{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	plan, ok := s.plans[planID]
	if !ok || plan.OwnerID != ownerID {
		return models.TripPlan{}, repository.ErrNotFound
	}

	return s.applyLocked(planID, fields, s.nowFunc())
}

func (s *Store) applyLocked(id uuid.UUID, fields repository.PlanFields, now time.Time) (models.TripPlan, error) {
	updated := s.plans[id].Clone()
	if err := fields.Apply(&updated); err != nil {
		return models.TripPlan{}, err
	}
	updated.UpdatedAt = now

	s.plans[id] = &updated
	return updated.Clone(), nil
}

func (s *Store) GetPlan(ctx context.Context, ownerID, destination string) (models.TripPlan, error) {
	owner, place, err := repository.NormalizeKey(ownerID, destination)
	if err != nil {
		return models.TripPlan{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byKey[planKey{owner: owner, destination: place}]
	if !ok {
		return models.TripPlan{}, repository.ErrNotFound
	}

	return s.plans[id].Clone(), nil
}

func (s *Store) GetPlanByID(ctx context.Context, ownerID string, planID uuid.UUID) (models.TripPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plan, ok := s.plans[planID]
	if !ok || plan.OwnerID != ownerID {
		return models.TripPlan{}, repository.ErrNotFound
	}

	return plan.Clone(), nil
}

func (s *Store) ListPlans(ctx context.Context, ownerID string) ([]models.TripPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plans := make([]models.TripPlan, 0)
	for _, plan := range s.plans {
		if plan.OwnerID == ownerID {
			plans = append(plans, plan.Clone())
		}
	}

	sort.Slice(plans, func(i, j int) bool {
		if plans[i].UpdatedAt.Equal(plans[j].UpdatedAt) {
			return plans[i].ID.String() < plans[j].ID.String()
		}
		return plans[i].UpdatedAt.After(plans[j].UpdatedAt)
	})

	return plans, nil
}

func (s *Store) DeletePlan(ctx context.Context, ownerID string, planID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	plan, ok := s.plans[planID]
	if !ok || plan.OwnerID != ownerID {
		return repository.ErrNotFound
	}

	delete(s.byKey, planKey{owner: plan.OwnerID, destination: plan.Destination})
	delete(s.plans, planID)
	return nil
}

func (s *Store) AddExpense(ctx context.Context, ownerID string, planID uuid.UUID, expense models.Expense) (models.TripPlan, error) {
	if err := repository.ValidateExpense(expense); err != nil {
		return models.TripPlan{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	plan, ok := s.plans[planID]
	if !ok || plan.OwnerID != ownerID {
		return models.TripPlan{}, repository.ErrNotFound
	}

	for _, existing := range plan.Expenses {
		if existing.ID == expense.ID {
			return models.TripPlan{}, fmt.Errorf("%w: expense %s already exists", repository.ErrConflict, expense.ID)
		}
	}

	now := s.nowFunc()
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = now
	}

	plan.Expenses = append(plan.Expenses, expense)
	plan.UpdatedAt = now

	return plan.Clone(), nil
}

func (s *Store) RemoveExpense(ctx context.Context, ownerID string, expenseID uuid.UUID) (models.TripPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, plan := range s.plans {
		if plan.OwnerID != ownerID {
			continue
		}

		for i, expense := range plan.Expenses {
			if expense.ID != expenseID {
				continue
			}

			expenses := make([]models.Expense, 0, len(plan.Expenses)-1)
			expenses = append(expenses, plan.Expenses[:i]...)
			expenses = append(expenses, plan.Expenses[i+1:]...)
			plan.Expenses = expenses
			plan.UpdatedAt = s.nowFunc()

			return plan.Clone(), nil
		}
	}

	return models.TripPlan{}, repository.ErrNotFound
}

// LogRequest сохраняет лог AI-запроса в памяти.
func (s *Store) LogRequest(ctx context.Context, log repository.AIRequestLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if log.CreatedAt.IsZero() {
		log.CreatedAt = s.nowFunc()
	}
	s.aiLogs = append(s.aiLogs, log)
	return nil
}

// AIRequests возвращает копию сохраненных логов AI-запросов.
func (s *Store) AIRequests() []repository.AIRequestLog {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]repository.AIRequestLog, len(s.aiLogs))
	copy(out, s.aiLogs)
	return out
}
