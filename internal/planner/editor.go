package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"example.com/trip-budget-planner/backend/internal/ai"
	"example.com/trip-budget-planner/backend/internal/models"
	"example.com/trip-budget-planner/backend/internal/money"
	"example.com/trip-budget-planner/backend/internal/repository"
)

type State int

const (
	StateEmpty State = iota
	StateConfiguring
	StateGenerating
	StateReviewing
	StateEditing
	StateCommitting
	StateSaved
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateConfiguring:
		return "configuring"
	case StateGenerating:
		return "generating"
	case StateReviewing:
		return "reviewing"
	case StateEditing:
		return "editing"
	case StateCommitting:
		return "committing"
	case StateSaved:
		return "saved"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	ErrInvalidState     = errors.New("operation not allowed in current state")
	ErrIncompleteParams = errors.New("destination and both trip dates are required")
	ErrIndexOutOfRange  = errors.New("index out of range")
	ErrInvalidValue     = errors.New("invalid value")
)

type Generator interface {
	GeneratePlan(ctx context.Context, input ai.GeneratePlanInput) (models.GeneratedPlan, ai.Trace, error)
}

type PlanWriter interface {
	UpsertPlan(ctx context.Context, ownerID, destination string, fields repository.PlanFields) (models.TripPlan, error)
}

type Params struct {
	Destination   string
	TravelStyle   models.TravelStyle
	TripStartDate string
	TripEndDate   string
	CustomPrompt  string
}

// Editor holds one owner's working copy of a plan between generation and commit.
// It is safe for concurrent use; operations that do not fit the current state fail with ErrInvalidState.
type Editor struct {
	mu        sync.Mutex
	ownerID   string
	generator Generator
	store     PlanWriter

	state  State
	params Params
	draft  models.GeneratedPlan
	saved  *models.TripPlan
	err    error

	// budgetOnly keeps a loaded total while the plan has no breakdown to derive it from.
	budgetOnly bool
}

// NewEditor создает редактор плана для владельца.
func NewEditor(ownerID string, generator Generator, store PlanWriter) *Editor {
	return &Editor{
		ownerID:   ownerID,
		generator: generator,
		store:     store,
		state:     StateEmpty,
	}
}

func (e *Editor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Err возвращает ошибку последней неудачной генерации или сохранения.
func (e *Editor) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

func (e *Editor) Params() Params {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params
}

// Draft возвращает копию рабочего плана.
func (e *Editor) Draft() models.GeneratedPlan {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.draft.Clone()
}

// Saved возвращает последний сохраненный план, если коммит был успешным.
func (e *Editor) Saved() (models.TripPlan, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.saved == nil {
		return models.TripPlan{}, false
	}
	return e.saved.Clone(), true
}

// Configure задает параметры поездки и переводит редактор в Configuring.
func (e *Editor) Configure(params Params) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.require(StateEmpty, StateConfiguring, StateSaved); err != nil {
		return err
	}

	params.Destination = strings.TrimSpace(params.Destination)
	params.TripStartDate = strings.TrimSpace(params.TripStartDate)
	params.TripEndDate = strings.TrimSpace(params.TripEndDate)

	e.params = params
	e.draft = models.GeneratedPlan{}
	e.budgetOnly = false
	e.saved = nil
	e.err = nil
	e.state = StateConfiguring
	return nil
}

// Generate запрашивает план у генератора. При ошибке редактор возвращается в Configuring.
func (e *Editor) Generate(ctx context.Context) error {
	e.mu.Lock()
	if err := e.require(StateConfiguring); err != nil {
		e.mu.Unlock()
		return err
	}
	if e.params.Destination == "" || e.params.TripStartDate == "" || e.params.TripEndDate == "" {
		e.mu.Unlock()
		return ErrIncompleteParams
	}

	params := e.params
	e.err = nil
	e.state = StateGenerating
	e.mu.Unlock()

	plan, _, err := e.generator.GeneratePlan(ctx, ai.GeneratePlanInput{
		Destination:   params.Destination,
		TravelStyle:   params.TravelStyle,
		TripStartDate: params.TripStartDate,
		TripEndDate:   params.TripEndDate,
		CustomPrompt:  params.CustomPrompt,
	})

	e.mu.Lock()
	defer e.mu.Unlock()

	if err != nil {
		e.err = err
		e.state = StateConfiguring
		return err
	}

	e.draft = plan.Clone()
	e.budgetOnly = false
	if e.draft.Breakdown == nil {
		e.draft.Breakdown = []models.BreakdownItem{}
	}
	if e.draft.Itinerary == nil {
		e.draft.Itinerary = []models.DayPlan{}
	}
	e.recompute()
	e.state = StateReviewing
	return nil
}

// Load открывает сохраненный план для просмотра, минуя генерацию.
func (e *Editor) Load(plan models.TripPlan) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.require(StateEmpty, StateConfiguring, StateReviewing, StateEditing, StateSaved); err != nil {
		return err
	}

	e.params = Params{
		Destination: plan.Destination,
		TravelStyle: plan.TravelStyle,
	}
	if plan.TripStartDate != nil {
		e.params.TripStartDate = plan.TripStartDate.Format(ai.DateLayout)
	}
	if plan.TripEndDate != nil {
		e.params.TripEndDate = plan.TripEndDate.Format(ai.DateLayout)
	}

	e.draft = models.GeneratedPlan{
		TotalEstimatedCost: plan.TotalBudget,
		Breakdown:          models.CloneBreakdown(plan.Breakdown),
		Itinerary:          models.CloneItinerary(plan.Itinerary),
	}
	if e.draft.Breakdown == nil {
		e.draft.Breakdown = []models.BreakdownItem{}
	}
	if e.draft.Itinerary == nil {
		e.draft.Itinerary = []models.DayPlan{}
	}
	e.budgetOnly = len(e.draft.Breakdown) == 0
	e.recompute()

	saved := plan.Clone()
	e.saved = &saved
	e.err = nil
	e.state = StateReviewing
	return nil
}

// Reset отбрасывает рабочий план без сохранения.
func (e *Editor) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.require(StateEmpty, StateConfiguring, StateReviewing, StateEditing, StateSaved); err != nil {
		return err
	}

	e.params = Params{}
	e.draft = models.GeneratedPlan{}
	e.budgetOnly = false
	e.saved = nil
	e.err = nil
	e.state = StateEmpty
	return nil
}

// Commit сохраняет рабочий план. При ошибке редактор остается в Editing.
func (e *Editor) Commit(ctx context.Context) (models.TripPlan, error) {
	e.mu.Lock()
	if err := e.require(StateReviewing, StateEditing); err != nil {
		e.mu.Unlock()
		return models.TripPlan{}, err
	}

	e.recompute()
	fields, err := e.commitFields()
	if err != nil {
		e.err = err
		e.state = StateEditing
		e.mu.Unlock()
		return models.TripPlan{}, err
	}

	destination := e.params.Destination
	e.err = nil
	e.state = StateCommitting
	e.mu.Unlock()

	plan, err := e.store.UpsertPlan(ctx, e.ownerID, destination, fields)

	e.mu.Lock()
	defer e.mu.Unlock()

	if err != nil {
		e.err = err
		e.state = StateEditing
		return models.TripPlan{}, err
	}

	saved := plan.Clone()
	e.saved = &saved
	e.state = StateSaved
	return plan, nil
}

func (e *Editor) commitFields() (repository.PlanFields, error) {
	total := e.draft.TotalEstimatedCost
	breakdown := models.CloneBreakdown(e.draft.Breakdown)
	itinerary := models.CloneItinerary(e.draft.Itinerary)

	fields := repository.PlanFields{
		TotalBudget: &total,
		Breakdown:   &breakdown,
		Itinerary:   &itinerary,
	}

	if e.params.TravelStyle != "" {
		style := e.params.TravelStyle
		fields.TravelStyle = &style
	}

	if e.params.TripStartDate != "" && e.params.TripEndDate != "" {
		start, end, err := ai.ParseTripWindow(e.params.TripStartDate, e.params.TripEndDate)
		if err != nil {
			return fields, err
		}
		fields.TripStartDate = &start
		fields.TripEndDate = &end
	}

	return fields, nil
}

func (e *Editor) UpdateBreakdownCategory(index int, category string) error {
	category = strings.TrimSpace(category)
	if category == "" {
		return fmt.Errorf("%w: category must not be empty", ErrInvalidValue)
	}

	return e.editBreakdown(func() error {
		if !inRange(index, len(e.draft.Breakdown)) {
			return ErrIndexOutOfRange
		}
		e.draft.Breakdown[index].Category = category
		return nil
	})
}

func (e *Editor) UpdateBreakdownAmount(index int, amount float64) error {
	if amount < 0 {
		return fmt.Errorf("%w: amount must not be negative", ErrInvalidValue)
	}

	return e.editBreakdown(func() error {
		if !inRange(index, len(e.draft.Breakdown)) {
			return ErrIndexOutOfRange
		}
		e.draft.Breakdown[index].Amount = amount
		return nil
	})
}

func (e *Editor) UpdateBreakdownDescription(index int, description string) error {
	return e.editBreakdown(func() error {
		if !inRange(index, len(e.draft.Breakdown)) {
			return ErrIndexOutOfRange
		}
		e.draft.Breakdown[index].Description = description
		return nil
	})
}

// AddBreakdown добавляет строку Other с нулевой суммой и возвращает ее индекс.
func (e *Editor) AddBreakdown() (int, error) {
	var index int
	err := e.editBreakdown(func() error {
		e.draft.Breakdown = append(e.draft.Breakdown, models.BreakdownItem{Category: string(models.ExpenseCategoryOther)})
		index = len(e.draft.Breakdown) - 1
		return nil
	})
	return index, err
}

func (e *Editor) RemoveBreakdown(index int) error {
	return e.editBreakdown(func() error {
		if !inRange(index, len(e.draft.Breakdown)) {
			return ErrIndexOutOfRange
		}
		e.draft.Breakdown = append(e.draft.Breakdown[:index:index], e.draft.Breakdown[index+1:]...)
		return nil
	})
}

func (e *Editor) UpdateDayCost(dayIndex int, cost float64) error {
	if cost < 0 {
		return fmt.Errorf("%w: estimatedCost must not be negative", ErrInvalidValue)
	}

	return e.edit(func() error {
		if !inRange(dayIndex, len(e.draft.Itinerary)) {
			return ErrIndexOutOfRange
		}
		e.draft.Itinerary[dayIndex].EstimatedCost = cost
		return nil
	})
}

func (e *Editor) UpdateActivity(dayIndex, activityIndex int, text string) error {
	return e.edit(func() error {
		if !inRange(dayIndex, len(e.draft.Itinerary)) || !inRange(activityIndex, len(e.draft.Itinerary[dayIndex].Activities)) {
			return ErrIndexOutOfRange
		}
		e.draft.Itinerary[dayIndex].Activities[activityIndex] = text
		return nil
	})
}

func (e *Editor) AddActivity(dayIndex int, text string) error {
	return e.edit(func() error {
		if !inRange(dayIndex, len(e.draft.Itinerary)) {
			return ErrIndexOutOfRange
		}
		e.draft.Itinerary[dayIndex].Activities = append(e.draft.Itinerary[dayIndex].Activities, text)
		return nil
	})
}

func (e *Editor) RemoveActivity(dayIndex, activityIndex int) error {
	return e.edit(func() error {
		if !inRange(dayIndex, len(e.draft.Itinerary)) || !inRange(activityIndex, len(e.draft.Itinerary[dayIndex].Activities)) {
			return ErrIndexOutOfRange
		}
		activities := e.draft.Itinerary[dayIndex].Activities
		e.draft.Itinerary[dayIndex].Activities = append(activities[:activityIndex:activityIndex], activities[activityIndex+1:]...)
		return nil
	})
}

// edit применяет изменение к черновику и пересчитывает итог. Ошибка не меняет состояние.
func (e *Editor) edit(mutate func() error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.require(StateReviewing, StateEditing); err != nil {
		return err
	}

	if err := mutate(); err != nil {
		return err
	}

	e.recompute()
	e.state = StateEditing
	return nil
}

// editBreakdown применяет изменение сметы; после него итог всегда равен сумме сметы.
func (e *Editor) editBreakdown(mutate func() error) error {
	return e.edit(func() error {
		if err := mutate(); err != nil {
			return err
		}
		e.budgetOnly = false
		return nil
	})
}

func (e *Editor) recompute() {
	if e.budgetOnly {
		return
	}
	e.draft.TotalEstimatedCost = money.SumBy(e.draft.Breakdown, func(item models.BreakdownItem) float64 { return item.Amount })
}

func (e *Editor) require(allowed ...State) error {
	for _, state := range allowed {
		if e.state == state {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidState, e.state)
}

func inRange(index, length int) bool {
	return index >= 0 && index < length
}
