package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"

	"example.com/trip-budget-planner/backend/internal/models"
)

const (
	pgCheckViolation  = "23514"
	pgUniqueViolation = "23505"

	planColumns = `id, owner_id, destination, travel_style, trip_start_date, trip_end_date,
		total_budget::float8, breakdown, itinerary, created_at, updated_at`
)

var readSnapshot = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}

// PlanRepository is the PostgreSQL PlanStore.
type PlanRepository struct {
	db *pgxpool.Pool
}

// NewPlanRepository создает репозиторий планов поездок.
func NewPlanRepository(db *pgxpool.Pool) *PlanRepository {
	return &PlanRepository{db: db}
}

// UpsertPlan создает план или частично обновляет существующий по (владелец, направление).
func (r *PlanRepository) UpsertPlan(ctx context.Context, ownerID, destination string, fields PlanFields) (models.TripPlan, error) {
	var plan models.TripPlan

	owner, place, err := NormalizeKey(ownerID, destination)
	if err != nil {
		return plan, err
	}
	if err := fields.Validate(); err != nil {
		return plan, err
	}
	fields = fields.Normalized()

	breakdown, itinerary, err := encodeDetails(fields)
	if err != nil {
		return plan, err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return plan, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var planID uuid.UUID
	err = tx.QueryRow(ctx,
		`SELECT id FROM trip_plans WHERE owner_id = $1 AND destination = $2 FOR UPDATE`,
		owner, place,
	).Scan(&planID)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if fields.TotalBudget == nil {
			return plan, fmt.Errorf("%w: totalBudget is required for a new plan", ErrInvalid)
		}

		err = tx.QueryRow(ctx,
			`INSERT INTO trip_plans
			 (id, owner_id, destination, travel_style, trip_start_date, trip_end_date, total_budget, breakdown, itinerary)
			 VALUES ($1, $2, $3, COALESCE($4, 'Standard'), $5, $6, $7, COALESCE($8::jsonb, '[]'::jsonb), COALESCE($9::jsonb, '[]'::jsonb))
			 ON CONFLICT (owner_id, destination) DO UPDATE
			 SET travel_style = COALESCE($4, trip_plans.travel_style),
			     trip_start_date = COALESCE($5, trip_plans.trip_start_date),
			     trip_end_date = COALESCE($6, trip_plans.trip_end_date),
			     total_budget = COALESCE($7, trip_plans.total_budget),
			     breakdown = COALESCE($8::jsonb, trip_plans.breakdown),
			     itinerary = COALESCE($9::jsonb, trip_plans.itinerary),
			     updated_at = NOW()
			 RETURNING id`,
			uuid.New(), owner, place, fields.TravelStyle, dateParam(fields.TripStartDate), dateParam(fields.TripEndDate),
			fields.TotalBudget, breakdown, itinerary,
		).Scan(&planID)
	case err == nil:
		err = updatePlanRow(ctx, tx, owner, planID, fields, breakdown, itinerary)
	}
	if err != nil {
		return plan, translateError(err)
	}

	plan, err = loadPlan(ctx, tx, `id = $1`, planID)
	if err != nil {
		return plan, err
	}

	if err := tx.Commit(ctx); err != nil {
		return plan, err
	}

	return plan, nil
}

// UpdatePlan частично обновляет план владельца по идентификатору.
func (r *PlanRepository) UpdatePlan(ctx context.Context, ownerID string, planID uuid.UUID, fields PlanFields) (models.TripPlan, error) {
	var plan models.TripPlan

	if err := fields.Validate(); err != nil {
		return plan, err
	}
	fields = fields.Normalized()

	breakdown, itinerary, err := encodeDetails(fields)
	if err != nil {
		return plan, err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return plan, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := updatePlanRow(ctx, tx, ownerID, planID, fields, breakdown, itinerary); err != nil {
		return plan, translateError(err)
	}

	plan, err = loadPlan(ctx, tx, `id = $1`, planID)
	if err != nil {
		return plan, err
	}

	if err := tx.Commit(ctx); err != nil {
		return plan, err
	}

	return plan, nil
}

// GetPlan возвращает план владельца по направлению.
func (r *PlanRepository) GetPlan(ctx context.Context, ownerID, destination string) (models.TripPlan, error) {
	owner, place, err := NormalizeKey(ownerID, destination)
	if err != nil {
		return models.TripPlan{}, err
	}

	return r.readPlan(ctx, `owner_id = $1 AND destination = $2`, owner, place)
}

// GetPlanByID возвращает план владельца по идентификатору.
func (r *PlanRepository) GetPlanByID(ctx context.Context, ownerID string, planID uuid.UUID) (models.TripPlan, error) {
	return r.readPlan(ctx, `id = $1 AND owner_id = $2`, planID, ownerID)
}

// ListPlans возвращает планы владельца, недавно измененные первыми.
func (r *PlanRepository) ListPlans(ctx context.Context, ownerID string) ([]models.TripPlan, error) {
	tx, err := r.db.BeginTx(ctx, readSnapshot)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	rows, err := tx.Query(ctx,
		`SELECT `+planColumns+`
		 FROM trip_plans
		 WHERE owner_id = $1
		 ORDER BY updated_at DESC, id`,
		ownerID,
	)
	if err != nil {
		return nil, err
	}

	plans, err := pgx.CollectRows(rows, scanPlan)
	if err != nil {
		return nil, err
	}

	if err := attachExpenses(ctx, tx, plans); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return plans, nil
}

// DeletePlan удаляет план вместе с расходами.
func (r *PlanRepository) DeletePlan(ctx context.Context, ownerID string, planID uuid.UUID) error {
	cmd, err := r.db.Exec(ctx,
		`DELETE FROM trip_plans
		 WHERE id = $1 AND owner_id = $2`,
		planID, ownerID,
	)
	if err != nil {
		return err
	}

	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// AddExpense добавляет расход в план и возвращает обновленный план.
func (r *PlanRepository) AddExpense(ctx context.Context, ownerID string, planID uuid.UUID, expense models.Expense) (models.TripPlan, error) {
	var plan models.TripPlan

	if err := ValidateExpense(expense); err != nil {
		return plan, err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return plan, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	cmd, err := tx.Exec(ctx,
		`UPDATE trip_plans SET updated_at = NOW()
		 WHERE id = $1 AND owner_id = $2`,
		planID, ownerID,
	)
	if err != nil {
		return plan, err
	}
	if cmd.RowsAffected() == 0 {
		return plan, ErrNotFound
	}

	createdAt := expense.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO trip_expenses (id, plan_id, category, amount, description, spent_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		expense.ID, planID, expense.Category, expense.Amount, expense.Description, expense.Date, createdAt,
	)
	if err != nil {
		return plan, translateError(err)
	}

	plan, err = loadPlan(ctx, tx, `id = $1`, planID)
	if err != nil {
		return plan, err
	}

	if err := tx.Commit(ctx); err != nil {
		return plan, err
	}

	return plan, nil
}

// RemoveExpense удаляет расход владельца и возвращает план, к которому он относился.
func (r *PlanRepository) RemoveExpense(ctx context.Context, ownerID string, expenseID uuid.UUID) (models.TripPlan, error) {
	var plan models.TripPlan

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return plan, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var planID uuid.UUID
	err = tx.QueryRow(ctx,
		`DELETE FROM trip_expenses e
		 USING trip_plans p
		 WHERE e.id = $1 AND e.plan_id = p.id AND p.owner_id = $2
		 RETURNING e.plan_id`,
		expenseID, ownerID,
	).Scan(&planID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return plan, ErrNotFound
		}
		return plan, err
	}

	if _, err := tx.Exec(ctx, `UPDATE trip_plans SET updated_at = NOW() WHERE id = $1`, planID); err != nil {
		return plan, err
	}

	plan, err = loadPlan(ctx, tx, `id = $1`, planID)
	if err != nil {
		return plan, err
	}

	if err := tx.Commit(ctx); err != nil {
		return plan, err
	}

	return plan, nil
}

func (r *PlanRepository) readPlan(ctx context.Context, where string, args ...any) (models.TripPlan, error) {
	tx, err := r.db.BeginTx(ctx, readSnapshot)
	if err != nil {
		return models.TripPlan{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	plan, err := loadPlan(ctx, tx, where, args...)
	if err != nil {
		return plan, err
	}

	if err := tx.Commit(ctx); err != nil {
		return plan, err
	}

	return plan, nil
}

func updatePlanRow(ctx context.Context, tx pgx.Tx, ownerID string, planID uuid.UUID, fields PlanFields, breakdown, itinerary []byte) error {
	cmd, err := tx.Exec(ctx,
		`UPDATE trip_plans
		 SET travel_style = COALESCE($3, travel_style),
		     trip_start_date = COALESCE($4, trip_start_date),
		     trip_end_date = COALESCE($5, trip_end_date),
		     total_budget = COALESCE($6, total_budget),
		     breakdown = COALESCE($7::jsonb, breakdown),
		     itinerary = COALESCE($8::jsonb, itinerary),
		     updated_at = NOW()
		 WHERE id = $1 AND owner_id = $2`,
		planID, ownerID, fields.TravelStyle, dateParam(fields.TripStartDate), dateParam(fields.TripEndDate),
		fields.TotalBudget, breakdown, itinerary,
	)
	if err != nil {
		return err
	}

	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func loadPlan(ctx context.Context, tx pgx.Tx, where string, args ...any) (models.TripPlan, error) {
	rows, err := tx.Query(ctx, `SELECT `+planColumns+` FROM trip_plans WHERE `+where, args...)
	if err != nil {
		return models.TripPlan{}, err
	}

	plan, err := pgx.CollectExactlyOneRow(rows, scanPlan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return plan, ErrNotFound
		}
		return plan, err
	}

	plans := []models.TripPlan{plan}
	if err := attachExpenses(ctx, tx, plans); err != nil {
		return plan, err
	}

	return plans[0], nil
}

func scanPlan(row pgx.CollectableRow) (models.TripPlan, error) {
	var plan models.TripPlan

	err := row.Scan(&plan.ID, &plan.OwnerID, &plan.Destination, &plan.TravelStyle, &plan.TripStartDate, &plan.TripEndDate,
		&plan.TotalBudget, &plan.Breakdown, &plan.Itinerary, &plan.CreatedAt, &plan.UpdatedAt)
	if err != nil {
		return plan, err
	}

	if plan.Breakdown == nil {
		plan.Breakdown = []models.BreakdownItem{}
	}
	if plan.Itinerary == nil {
		plan.Itinerary = []models.DayPlan{}
	}

	return plan, nil
}

func attachExpenses(ctx context.Context, tx pgx.Tx, plans []models.TripPlan) error {
	if len(plans) == 0 {
		return nil
	}

	ids := lo.Map(plans, func(plan models.TripPlan, _ int) uuid.UUID { return plan.ID })

	rows, err := tx.Query(ctx,
		`SELECT plan_id, id, category, amount::float8, description, spent_at, created_at
		 FROM trip_expenses
		 WHERE plan_id = ANY($1)
		 ORDER BY created_at, id`,
		ids,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	byPlan := make(map[uuid.UUID][]models.Expense, len(plans))
	for rows.Next() {
		var planID uuid.UUID
		var expense models.Expense

		err := rows.Scan(&planID, &expense.ID, &expense.Category, &expense.Amount, &expense.Description, &expense.Date, &expense.CreatedAt)
		if err != nil {
			return err
		}

		byPlan[planID] = append(byPlan[planID], expense)
	}

	if err := rows.Err(); err != nil {
		return err
	}

	for i := range plans {
		plans[i].Expenses = byPlan[plans[i].ID]
		if plans[i].Expenses == nil {
			plans[i].Expenses = []models.Expense{}
		}
	}

	return nil
}

func encodeDetails(fields PlanFields) ([]byte, []byte, error) {
	var breakdown, itinerary []byte
	var err error

	if fields.Breakdown != nil {
		breakdown, err = json.Marshal(lo.Ternary(*fields.Breakdown == nil, []models.BreakdownItem{}, *fields.Breakdown))
		if err != nil {
			return nil, nil, err
		}
	}

	if fields.Itinerary != nil {
		itinerary, err = json.Marshal(lo.Ternary(*fields.Itinerary == nil, []models.DayPlan{}, *fields.Itinerary))
		if err != nil {
			return nil, nil, err
		}
	}

	return breakdown, itinerary, nil
}

func dateParam(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	date := truncateDate(*value)
	return &date
}

func translateError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgCheckViolation:
			return fmt.Errorf("%w: %s", ErrInvalid, pgErr.ConstraintName)
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
		}
	}
	return err
}
