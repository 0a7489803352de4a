package services

import (
	"context"
	"strings"

	"github.com/stemreport/apiserver/internal/access"
	"github.com/stemreport/apiserver/internal/rollup"
	"github.com/stemreport/apiserver/types"
)

// AggregationService serves the monitoring dashboards. Figures are
// recomputed from a fresh snapshot on every call.
type AggregationService struct {
	planning PlanningRepository
	reports  ReportRepository
	users    UserRepository
	regions  RegionRepository
}

func NewAggregationService(planning PlanningRepository, reports ReportRepository, users UserRepository, regions RegionRepository) *AggregationService {
	return &AggregationService{planning: planning, reports: reports, users: users, regions: regions}
}

// Totals returns the tree totals. They are visible to every authenticated
// caller.
func (s *AggregationService) Totals(ctx context.Context) (types.TreeTotals, error) {
	snapshot, err := s.snapshot(ctx, false)
	if err != nil {
		return types.TreeTotals{}, err
	}
	return rollup.Totals(snapshot), nil
}

// Progress returns the KPI progress of every initiative.
func (s *AggregationService) Progress(ctx context.Context, actor types.Principal) ([]types.InitiativeProgress, error) {
	if !access.Allowed(actor.Role, access.ViewAllReports) {
		return nil, ErrUnauthorized
	}
	snapshot, err := s.snapshot(ctx, false)
	if err != nil {
		return nil, err
	}
	return rollup.Progress(snapshot), nil
}

// Regions returns the per-Negeri completion table, for one period or for
// all periods when period is empty.
func (s *AggregationService) Regions(ctx context.Context, actor types.Principal, period string) ([]types.RegionRow, error) {
	if !access.Allowed(actor.Role, access.ViewAllReports) {
		return nil, ErrUnauthorized
	}
	snapshot, err := s.snapshot(ctx, true)
	if err != nil {
		return nil, err
	}
	return rollup.Regions(snapshot, strings.TrimSpace(period)), nil
}

func (s *AggregationService) snapshot(ctx context.Context, withRegions bool) (rollup.Snapshot, error) {
	var snap rollup.Snapshot
	var err error
	if snap.Policies, err = s.planning.ListPolicies(ctx); err != nil {
		return rollup.Snapshot{}, err
	}
	if snap.Teras, err = s.planning.ListTeras(ctx, ""); err != nil {
		return rollup.Snapshot{}, err
	}
	if snap.Strategies, err = s.planning.ListStrategies(ctx, ""); err != nil {
		return rollup.Snapshot{}, err
	}
	if snap.Initiatives, err = s.planning.ListInitiatives(ctx, ""); err != nil {
		return rollup.Snapshot{}, err
	}
	if snap.Reports, _, err = s.reports.List(ctx, types.ReportFilter{}, 0, 0); err != nil {
		return rollup.Snapshot{}, err
	}
	if withRegions {
		if snap.Users, err = s.users.List(ctx); err != nil {
			return rollup.Snapshot{}, err
		}
		if snap.Regions, err = s.regions.List(ctx); err != nil {
			return rollup.Snapshot{}, err
		}
	}
	return snap, nil
}
