package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/stemreport/apiserver/types"
)

// RegionRepository handles persistence for Negeri reference data.
type RegionRepository struct {
	db *sql.DB
}

func NewRegionRepository(db *sql.DB) *RegionRepository {
	return &RegionRepository{db: db}
}

func (r *RegionRepository) List(ctx context.Context) ([]types.Region, error) {
	const query = `SELECT state_name, ppds FROM regions ORDER BY state_name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	regions := []types.Region{}
	for rows.Next() {
		var region types.Region
		var ppdsJSON []byte
		if err := rows.Scan(&region.StateName, &ppdsJSON); err != nil {
			return nil, err
		}
		region.PPDs = []string{}
		_ = json.Unmarshal(ppdsJSON, &region.PPDs)
		regions = append(regions, region)
	}
	return regions, rows.Err()
}

func (r *RegionRepository) Get(ctx context.Context, stateName string) (types.Region, error) {
	const query = `SELECT state_name, ppds FROM regions WHERE state_name = $1`
	var region types.Region
	var ppdsJSON []byte
	if err := r.db.QueryRowContext(ctx, query, stateName).Scan(&region.StateName, &ppdsJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Region{}, ErrNotFound
		}
		return types.Region{}, err
	}
	region.PPDs = []string{}
	_ = json.Unmarshal(ppdsJSON, &region.PPDs)
	return region, nil
}

// Upsert creates the region or replaces its PPD list.
func (r *RegionRepository) Upsert(ctx context.Context, region types.Region) (types.Region, error) {
	if region.PPDs == nil {
		region.PPDs = []string{}
	}
	ppdsJSON, err := json.Marshal(region.PPDs)
	if err != nil {
		return types.Region{}, err
	}

	const query = `
		INSERT INTO regions (state_name, ppds, updated_at)
		VALUES ($1, $2::jsonb, NOW())
		ON CONFLICT (state_name) DO UPDATE SET ppds = EXCLUDED.ppds, updated_at = NOW()`
	if _, err := r.db.ExecContext(ctx, query, region.StateName, string(ppdsJSON)); err != nil {
		return types.Region{}, err
	}
	return region, nil
}
