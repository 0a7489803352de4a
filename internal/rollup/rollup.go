// Package rollup computes the dashboard figures of the planning tree. Every
// function is a pure function of the snapshot it is given: calling it twice
// on the same snapshot yields identical results.
package rollup

import (
	"sort"

	"github.com/stemreport/apiserver/types"
)

// Snapshot is the store state an aggregation is computed from.
type Snapshot struct {
	Policies    []types.Policy
	Teras       []types.Teras
	Strategies  []types.Strategy
	Initiatives []types.Initiative
	Reports     []types.Report
	Users       []types.User
	Regions     []types.Region
}

// tree indexes the reachable part of a snapshot in display order.
type tree struct {
	policies    []types.Policy
	teras       map[string][]types.Teras
	strategies  map[string][]types.Strategy
	initiatives map[string][]types.Initiative
}

func buildTree(s Snapshot) tree {
	t := tree{
		policies:    append([]types.Policy(nil), s.Policies...),
		teras:       make(map[string][]types.Teras),
		strategies:  make(map[string][]types.Strategy),
		initiatives: make(map[string][]types.Initiative),
	}
	sort.SliceStable(t.policies, func(i, j int) bool {
		a, b := t.policies[i], t.policies[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	for _, te := range s.Teras {
		t.teras[te.PolicyID] = append(t.teras[te.PolicyID], te)
	}
	for _, st := range s.Strategies {
		t.strategies[st.TerasID] = append(t.strategies[st.TerasID], st)
	}
	for _, in := range s.Initiatives {
		t.initiatives[in.StrategyID] = append(t.initiatives[in.StrategyID], in)
	}
	for k, v := range t.teras {
		sort.SliceStable(v, func(i, j int) bool { return byPosition(v[i].Position, v[j].Position, v[i].ID, v[j].ID) })
		t.teras[k] = v
	}
	for k, v := range t.strategies {
		sort.SliceStable(v, func(i, j int) bool { return byPosition(v[i].Position, v[j].Position, v[i].ID, v[j].ID) })
		t.strategies[k] = v
	}
	for k, v := range t.initiatives {
		sort.SliceStable(v, func(i, j int) bool { return byPosition(v[i].Position, v[j].Position, v[i].ID, v[j].ID) })
		t.initiatives[k] = v
	}
	return t
}

func byPosition(pi, pj int, idi, idj string) bool {
	if pi != pj {
		return pi < pj
	}
	return idi < idj
}

// walk visits every initiative reachable from the policies, in display order.
func (t tree) walk(fn func(types.InitiativeChain)) {
	for _, p := range t.policies {
		for _, te := range t.teras[p.ID] {
			for _, st := range t.strategies[te.ID] {
				for _, in := range t.initiatives[st.ID] {
					fn(types.InitiativeChain{Initiative: in, Strategy: st, Teras: te, Policy: p})
				}
			}
		}
	}
}

// latestReports returns the most recently updated report per initiative.
func latestReports(reports []types.Report) map[string]types.Report {
	latest := make(map[string]types.Report)
	for _, r := range reports {
		cur, ok := latest[r.InitiativeID]
		if !ok || r.UpdatedAt.After(cur.UpdatedAt) || (r.UpdatedAt.Equal(cur.UpdatedAt) && r.ID > cur.ID) {
			latest[r.InitiativeID] = r
		}
	}
	return latest
}

// Totals counts the nodes reachable from the policies. A policy with no
// teras still counts.
func Totals(s Snapshot) types.TreeTotals {
	t := buildTree(s)
	totals := types.TreeTotals{
		ByStatus:          map[string]int{types.StatusNoReport: 0},
		StrategiesByTeras: make(map[string]int),
	}
	for _, status := range types.ReportStatuses {
		totals.ByStatus[string(status)] = 0
	}

	latest := latestReports(s.Reports)
	for _, p := range t.policies {
		totals.Policies++
		for _, te := range t.teras[p.ID] {
			totals.Teras++
			strategies := t.strategies[te.ID]
			totals.StrategiesByTeras[te.ID] = len(strategies)
			for _, st := range strategies {
				totals.Strategies++
				for _, in := range t.initiatives[st.ID] {
					totals.Initiatives++
					if r, ok := latest[in.ID]; ok {
						totals.ByStatus[string(r.Status)]++
					} else {
						totals.ByStatus[types.StatusNoReport]++
					}
				}
			}
		}
	}
	return totals
}

// Progress lists the KPI progress of every reachable initiative in tree order.
func Progress(s Snapshot) []types.InitiativeProgress {
	t := buildTree(s)
	latest := latestReports(s.Reports)
	counts := make(map[string]int)
	for _, r := range s.Reports {
		counts[r.InitiativeID]++
	}

	rows := []types.InitiativeProgress{}
	t.walk(func(c types.InitiativeChain) {
		in := c.Initiative
		status := types.StatusNoReport
		if r, ok := latest[in.ID]; ok {
			status = string(r.Status)
		}
		rows = append(rows, types.InitiativeProgress{
			InitiativeID: in.ID,
			Name:         in.Name,
			StrategyID:   in.StrategyID,
			Region:       c.EffectiveRegion(),
			CurrentValue: in.KPI.CurrentValue,
			Target:       in.KPI.Target,
			Unit:         in.KPI.Unit,
			Progress:     in.KPI.Progress(),
			LatestStatus: status,
			ReportCount:  counts[in.ID],
		})
	})
	return rows
}

// Regions builds the per-Negeri monitoring table. A PPD is done when a PPD
// user assigned to it has an approved report for the period on an
// initiative whose effective region is empty or the state itself. The JPN
// (state office) is done when a Negeri user of the state has one. An empty
// period matches every report.
func Regions(s Snapshot, period string) []types.RegionRow {
	t := buildTree(s)
	regionOf := make(map[string]string)
	t.walk(func(c types.InitiativeChain) {
		regionOf[c.Initiative.ID] = c.EffectiveRegion()
	})
	users := make(map[string]types.User, len(s.Users))
	for _, u := range s.Users {
		users[u.ID] = u
	}

	ppdDone := make(map[string]map[string]bool)
	jpnDone := make(map[string]bool)
	for _, r := range s.Reports {
		if r.Status != types.StatusApproved {
			continue
		}
		if period != "" && r.Period != period {
			continue
		}
		region, reachable := regionOf[r.InitiativeID]
		if !reachable {
			continue
		}
		u, ok := users[r.SubmittedBy]
		if !ok || u.StateName == "" {
			continue
		}
		if region != "" && region != u.StateName {
			continue
		}
		switch u.Role {
		case types.RolePPD:
			if u.PPD == "" {
				continue
			}
			if ppdDone[u.StateName] == nil {
				ppdDone[u.StateName] = make(map[string]bool)
			}
			ppdDone[u.StateName][u.PPD] = true
		case types.RoleNegeri:
			jpnDone[u.StateName] = true
		}
	}

	regions := append([]types.Region(nil), s.Regions...)
	sort.SliceStable(regions, func(i, j int) bool { return regions[i].StateName < regions[j].StateName })

	rows := make([]types.RegionRow, 0, len(regions))
	for _, region := range regions {
		row := types.RegionRow{StateName: region.StateName, TotalPPDs: len(region.PPDs)}
		for _, ppd := range region.PPDs {
			if ppdDone[region.StateName][ppd] {
				row.PPDSelesai++
			}
		}
		if jpnDone[region.StateName] {
			row.JPNSelesai = 1
		}
		row.Progress = float64(row.PPDSelesai+row.JPNSelesai) / float64(row.TotalPPDs+1) * 100
		rows = append(rows, row)
	}
	return rows
}
