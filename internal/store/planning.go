package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/stemreport/apiserver/types"
)

// PlanningRepository handles persistence for the Policy → Teras → Strategy
// → Initiative tree. Children are ordered by position, then id.
type PlanningRepository struct {
	db *sql.DB
}

func NewPlanningRepository(db *sql.DB) *PlanningRepository {
	return &PlanningRepository{db: db}
}

// childIDs returns the ordered child ids of every parent in table.
func (r *PlanningRepository) childIDs(ctx context.Context, table, parentColumn, parentID string) (map[string][]string, error) {
	query := `SELECT id, ` + parentColumn + ` FROM ` + table
	args := []any{}
	if parentID != "" {
		query += ` WHERE ` + parentColumn + ` = $1`
		args = append(args, parentID)
	}
	query += ` ORDER BY position, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	children := make(map[string][]string)
	for rows.Next() {
		var id, parent string
		if err := rows.Scan(&id, &parent); err != nil {
			return nil, err
		}
		children[parent] = append(children[parent], id)
	}
	return children, rows.Err()
}

func orEmpty(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// Policies

func (r *PlanningRepository) ListPolicies(ctx context.Context) ([]types.Policy, error) {
	const query = `SELECT id, name, region, created_at, updated_at FROM policies ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	policies := []types.Policy{}
	for rows.Next() {
		var p types.Policy
		if err := rows.Scan(&p.ID, &p.Name, &p.Region, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	children, err := r.childIDs(ctx, "teras", "policy_id", "")
	if err != nil {
		return nil, err
	}
	for i := range policies {
		policies[i].TerasIDs = orEmpty(children[policies[i].ID])
	}
	return policies, nil
}

func (r *PlanningRepository) GetPolicy(ctx context.Context, id string) (types.Policy, error) {
	const query = `SELECT id, name, region, created_at, updated_at FROM policies WHERE id = $1`
	var p types.Policy
	err := r.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Name, &p.Region, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Policy{}, ErrNotFound
		}
		return types.Policy{}, err
	}

	children, err := r.childIDs(ctx, "teras", "policy_id", id)
	if err != nil {
		return types.Policy{}, err
	}
	p.TerasIDs = orEmpty(children[id])
	return p, nil
}

func (r *PlanningRepository) CreatePolicy(ctx context.Context, p types.Policy) (types.Policy, error) {
	now := time.Now().UTC()
	p.ID = uuid.NewString()
	p.CreatedAt = now
	p.UpdatedAt = now
	p.TerasIDs = []string{}

	const query = `
		INSERT INTO policies (id, name, region, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.db.ExecContext(ctx, query, p.ID, p.Name, p.Region, p.CreatedAt, p.UpdatedAt); err != nil {
		return types.Policy{}, err
	}
	return p, nil
}

func (r *PlanningRepository) UpdatePolicy(ctx context.Context, p types.Policy) (types.Policy, error) {
	p.UpdatedAt = time.Now().UTC()

	const query = `UPDATE policies SET name = $1, region = $2, updated_at = $3 WHERE id = $4`
	if err := r.execOne(ctx, query, p.Name, p.Region, p.UpdatedAt, p.ID); err != nil {
		return types.Policy{}, err
	}
	return r.GetPolicy(ctx, p.ID)
}

// Teras

const terasColumns = `id, policy_id, name, region, position, created_at, updated_at`

func scanTeras(row interface{ Scan(...any) error }) (types.Teras, error) {
	var t types.Teras
	err := row.Scan(&t.ID, &t.PolicyID, &t.Name, &t.Region, &t.Position, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

// ListTeras lists the teras under policyID, or every teras when policyID is empty.
func (r *PlanningRepository) ListTeras(ctx context.Context, policyID string) ([]types.Teras, error) {
	query := `SELECT ` + terasColumns + ` FROM teras`
	args := []any{}
	if policyID != "" {
		query += ` WHERE policy_id = $1`
		args = append(args, policyID)
	}
	query += ` ORDER BY position, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []types.Teras{}
	for rows.Next() {
		t, err := scanTeras(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	children, err := r.childIDs(ctx, "strategies", "teras_id", "")
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].StrategyIDs = orEmpty(children[items[i].ID])
	}
	return items, nil
}

func (r *PlanningRepository) GetTeras(ctx context.Context, id string) (types.Teras, error) {
	query := `SELECT ` + terasColumns + ` FROM teras WHERE id = $1`
	t, err := scanTeras(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Teras{}, ErrNotFound
		}
		return types.Teras{}, err
	}

	children, err := r.childIDs(ctx, "strategies", "teras_id", id)
	if err != nil {
		return types.Teras{}, err
	}
	t.StrategyIDs = orEmpty(children[id])
	return t, nil
}

func (r *PlanningRepository) CreateTeras(ctx context.Context, t types.Teras) (types.Teras, error) {
	now := time.Now().UTC()
	t.ID = uuid.NewString()
	t.CreatedAt = now
	t.UpdatedAt = now
	t.StrategyIDs = []string{}

	const query = `
		INSERT INTO teras (id, policy_id, name, region, position, created_at, updated_at)
		VALUES ($1, $2, $3, $4, (SELECT COALESCE(MAX(position) + 1, 0) FROM teras WHERE policy_id = $2), $5, $6)
		RETURNING position`
	if err := r.db.QueryRowContext(ctx, query, t.ID, t.PolicyID, t.Name, t.Region, t.CreatedAt, t.UpdatedAt).Scan(&t.Position); err != nil {
		return types.Teras{}, err
	}
	return t, nil
}

func (r *PlanningRepository) UpdateTeras(ctx context.Context, t types.Teras) (types.Teras, error) {
	t.UpdatedAt = time.Now().UTC()

	const query = `UPDATE teras SET name = $1, region = $2, updated_at = $3 WHERE id = $4`
	if err := r.execOne(ctx, query, t.Name, t.Region, t.UpdatedAt, t.ID); err != nil {
		return types.Teras{}, err
	}
	return r.GetTeras(ctx, t.ID)
}

// Strategies

const strategyColumns = `id, teras_id, name, region, position, created_at, updated_at`

func scanStrategy(row interface{ Scan(...any) error }) (types.Strategy, error) {
	var s types.Strategy
	err := row.Scan(&s.ID, &s.TerasID, &s.Name, &s.Region, &s.Position, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

// ListStrategies lists the strategies under terasID, or every strategy when terasID is empty.
func (r *PlanningRepository) ListStrategies(ctx context.Context, terasID string) ([]types.Strategy, error) {
	query := `SELECT ` + strategyColumns + ` FROM strategies`
	args := []any{}
	if terasID != "" {
		query += ` WHERE teras_id = $1`
		args = append(args, terasID)
	}
	query += ` ORDER BY position, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []types.Strategy{}
	for rows.Next() {
		s, err := scanStrategy(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	children, err := r.childIDs(ctx, "initiatives", "strategy_id", "")
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].InitiativeIDs = orEmpty(children[items[i].ID])
	}
	return items, nil
}

func (r *PlanningRepository) GetStrategy(ctx context.Context, id string) (types.Strategy, error) {
	query := `SELECT ` + strategyColumns + ` FROM strategies WHERE id = $1`
	s, err := scanStrategy(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Strategy{}, ErrNotFound
		}
		return types.Strategy{}, err
	}

	children, err := r.childIDs(ctx, "initiatives", "strategy_id", id)
	if err != nil {
		return types.Strategy{}, err
	}
	s.InitiativeIDs = orEmpty(children[id])
	return s, nil
}

func (r *PlanningRepository) CreateStrategy(ctx context.Context, s types.Strategy) (types.Strategy, error) {
	now := time.Now().UTC()
	s.ID = uuid.NewString()
	s.CreatedAt = now
	s.UpdatedAt = now
	s.InitiativeIDs = []string{}

	const query = `
		INSERT INTO strategies (id, teras_id, name, region, position, created_at, updated_at)
		VALUES ($1, $2, $3, $4, (SELECT COALESCE(MAX(position) + 1, 0) FROM strategies WHERE teras_id = $2), $5, $6)
		RETURNING position`
	if err := r.db.QueryRowContext(ctx, query, s.ID, s.TerasID, s.Name, s.Region, s.CreatedAt, s.UpdatedAt).Scan(&s.Position); err != nil {
		return types.Strategy{}, err
	}
	return s, nil
}

func (r *PlanningRepository) UpdateStrategy(ctx context.Context, s types.Strategy) (types.Strategy, error) {
	s.UpdatedAt = time.Now().UTC()

	const query = `UPDATE strategies SET name = $1, region = $2, updated_at = $3 WHERE id = $4`
	if err := r.execOne(ctx, query, s.Name, s.Region, s.UpdatedAt, s.ID); err != nil {
		return types.Strategy{}, err
	}
	return r.GetStrategy(ctx, s.ID)
}

// Initiatives

const initiativeColumns = `id, strategy_id, name, region, position, kpi_current_value, kpi_target, kpi_unit, created_at, updated_at`

func scanInitiative(row interface{ Scan(...any) error }) (types.Initiative, error) {
	var in types.Initiative
	err := row.Scan(
		&in.ID,
		&in.StrategyID,
		&in.Name,
		&in.Region,
		&in.Position,
		&in.KPI.CurrentValue,
		&in.KPI.Target,
		&in.KPI.Unit,
		&in.CreatedAt,
		&in.UpdatedAt,
	)
	return in, err
}

// ListInitiatives lists the initiatives under strategyID, or every
// initiative when strategyID is empty.
func (r *PlanningRepository) ListInitiatives(ctx context.Context, strategyID string) ([]types.Initiative, error) {
	query := `SELECT ` + initiativeColumns + ` FROM initiatives`
	args := []any{}
	if strategyID != "" {
		query += ` WHERE strategy_id = $1`
		args = append(args, strategyID)
	}
	query += ` ORDER BY position, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []types.Initiative{}
	for rows.Next() {
		in, err := scanInitiative(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, in)
	}
	return items, rows.Err()
}

func (r *PlanningRepository) GetInitiative(ctx context.Context, id string) (types.Initiative, error) {
	query := `SELECT ` + initiativeColumns + ` FROM initiatives WHERE id = $1`
	in, err := scanInitiative(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Initiative{}, ErrNotFound
		}
		return types.Initiative{}, err
	}
	return in, nil
}

func (r *PlanningRepository) CreateInitiative(ctx context.Context, in types.Initiative) (types.Initiative, error) {
	now := time.Now().UTC()
	in.ID = uuid.NewString()
	in.CreatedAt = now
	in.UpdatedAt = now

	const query = `
		INSERT INTO initiatives (id, strategy_id, name, region, position, kpi_current_value, kpi_target, kpi_unit, created_at, updated_at)
		VALUES ($1, $2, $3, $4, (SELECT COALESCE(MAX(position) + 1, 0) FROM initiatives WHERE strategy_id = $2), $5, $6, $7, $8, $9)
		RETURNING position`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		in.ID,
		in.StrategyID,
		in.Name,
		in.Region,
		in.KPI.CurrentValue,
		in.KPI.Target,
		in.KPI.Unit,
		in.CreatedAt,
		in.UpdatedAt,
	).Scan(&in.Position); err != nil {
		return types.Initiative{}, err
	}
	return in, nil
}

// UpdateInitiative changes the descriptive fields and the KPI target and
// unit. The current KPI value is only written by report approval.
func (r *PlanningRepository) UpdateInitiative(ctx context.Context, in types.Initiative) (types.Initiative, error) {
	in.UpdatedAt = time.Now().UTC()

	const query = `
		UPDATE initiatives
		SET name = $1,
			region = $2,
			kpi_target = $3,
			kpi_unit = $4,
			updated_at = $5
		WHERE id = $6`
	if err := r.execOne(ctx, query, in.Name, in.Region, in.KPI.Target, in.KPI.Unit, in.UpdatedAt, in.ID); err != nil {
		return types.Initiative{}, err
	}
	return r.GetInitiative(ctx, in.ID)
}

func (r *PlanningRepository) execOne(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
