// Package memory provides in-process implementations of the store
// repositories. It is used by tests and by STORE_BACKEND=memory.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stemreport/apiserver/internal/store"
	"github.com/stemreport/apiserver/types"
)

// Store holds every record behind a single lock so that multi-record
// updates are observed atomically.
type Store struct {
	mu sync.RWMutex

	users       map[string]types.User
	policies    map[string]types.Policy
	teras       map[string]types.Teras
	strategies  map[string]types.Strategy
	initiatives map[string]types.Initiative
	reports     map[string]types.Report
	reviews     map[string][]types.ReportReview
	regions     map[string]types.Region

	now            func() time.Time
	lastReportTick time.Time
}

func New() *Store {
	return &Store{
		users:       make(map[string]types.User),
		policies:    make(map[string]types.Policy),
		teras:       make(map[string]types.Teras),
		strategies:  make(map[string]types.Strategy),
		initiatives: make(map[string]types.Initiative),
		reports:     make(map[string]types.Report),
		reviews:     make(map[string][]types.ReportReview),
		regions:     make(map[string]types.Region),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// tick returns a timestamp strictly after *last and records it. Callers
// hold the write lock.
func (s *Store) tick(last *time.Time) time.Time {
	now := s.now()
	if !now.After(*last) {
		now = last.Add(time.Microsecond)
	}
	*last = now
	return now
}

func (s *Store) Users() *UserRepository { return &UserRepository{s: s} }
func (s *Store) Planning() *PlanningRepository { return &PlanningRepository{s: s} }
func (s *Store) Reports() *ReportRepository { return &ReportRepository{s: s} }
func (s *Store) Regions() *RegionRepository { return &RegionRepository{s: s} }

// Users

type UserRepository struct {
	s *Store
}

func (r *UserRepository) GetByID(_ context.Context, id string) (types.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	user, ok := r.s.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *UserRepository) GetByEmail(_ context.Context, email string) (types.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	email = strings.TrimSpace(email)
	for _, user := range r.s.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *UserRepository) List(_ context.Context) ([]types.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	users := make([]types.User, 0, len(r.s.users))
	for _, user := range r.s.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool {
		if !users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].CreatedAt.Before(users[j].CreatedAt)
		}
		return users[i].ID < users[j].ID
	})
	return users, nil
}

func (r *UserRepository) Create(_ context.Context, user types.User) (types.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return types.User{}, store.ErrConflict
		}
	}
	now := r.s.now()
	user.ID = uuid.NewString()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.s.users[user.ID] = user
	return user, nil
}

func (r *UserRepository) Update(_ context.Context, user types.User) (types.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.users[user.ID]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	user.CreatedAt = existing.CreatedAt
	user.UpdatedAt = r.s.now()
	r.s.users[user.ID] = user
	return user, nil
}

// Planning

type PlanningRepository struct {
	s *Store
}

func byPosition[T any](items []T, position func(T) int, id func(T) string) {
	sort.Slice(items, func(i, j int) bool {
		pi, pj := position(items[i]), position(items[j])
		if pi != pj {
			return pi < pj
		}
		return id(items[i]) < id(items[j])
	})
}

func (r *PlanningRepository) terasIDs(policyID string) []string {
	items := r.terasUnder(policyID)
	ids := make([]string, 0, len(items))
	for _, t := range items {
		ids = append(ids, t.ID)
	}
	return ids
}

func (r *PlanningRepository) terasUnder(policyID string) []types.Teras {
	items := []types.Teras{}
	for _, t := range r.s.teras {
		if policyID == "" || t.PolicyID == policyID {
			items = append(items, t)
		}
	}
	byPosition(items, func(t types.Teras) int { return t.Position }, func(t types.Teras) string { return t.ID })
	return items
}

func (r *PlanningRepository) strategiesUnder(terasID string) []types.Strategy {
	items := []types.Strategy{}
	for _, st := range r.s.strategies {
		if terasID == "" || st.TerasID == terasID {
			items = append(items, st)
		}
	}
	byPosition(items, func(s types.Strategy) int { return s.Position }, func(s types.Strategy) string { return s.ID })
	return items
}

func (r *PlanningRepository) initiativesUnder(strategyID string) []types.Initiative {
	items := []types.Initiative{}
	for _, in := range r.s.initiatives {
		if strategyID == "" || in.StrategyID == strategyID {
			items = append(items, in)
		}
	}
	byPosition(items, func(in types.Initiative) int { return in.Position }, func(in types.Initiative) string { return in.ID })
	return items
}

func (r *PlanningRepository) withTeras(p types.Policy) types.Policy {
	p.TerasIDs = r.terasIDs(p.ID)
	return p
}

func (r *PlanningRepository) withStrategies(t types.Teras) types.Teras {
	t.StrategyIDs = []string{}
	for _, st := range r.strategiesUnder(t.ID) {
		t.StrategyIDs = append(t.StrategyIDs, st.ID)
	}
	return t
}

func (r *PlanningRepository) withInitiatives(st types.Strategy) types.Strategy {
	st.InitiativeIDs = []string{}
	for _, in := range r.initiativesUnder(st.ID) {
		st.InitiativeIDs = append(st.InitiativeIDs, in.ID)
	}
	return st
}

func (r *PlanningRepository) ListPolicies(_ context.Context) ([]types.Policy, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	policies := make([]types.Policy, 0, len(r.s.policies))
	for _, p := range r.s.policies {
		policies = append(policies, r.withTeras(p))
	}
	sort.Slice(policies, func(i, j int) bool {
		if !policies[i].CreatedAt.Equal(policies[j].CreatedAt) {
			return policies[i].CreatedAt.Before(policies[j].CreatedAt)
		}
		return policies[i].ID < policies[j].ID
	})
	return policies, nil
}

func (r *PlanningRepository) GetPolicy(_ context.Context, id string) (types.Policy, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.policies[id]
	if !ok {
		return types.Policy{}, store.ErrNotFound
	}
	return r.withTeras(p), nil
}

func (r *PlanningRepository) CreatePolicy(_ context.Context, p types.Policy) (types.Policy, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	p.ID = uuid.NewString()
	p.CreatedAt = now
	p.UpdatedAt = now
	p.TerasIDs = []string{}
	r.s.policies[p.ID] = p
	return p, nil
}

func (r *PlanningRepository) UpdatePolicy(_ context.Context, p types.Policy) (types.Policy, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.policies[p.ID]
	if !ok {
		return types.Policy{}, store.ErrNotFound
	}
	existing.Name = p.Name
	existing.Region = p.Region
	existing.UpdatedAt = r.s.now()
	r.s.policies[p.ID] = existing
	return r.withTeras(existing), nil
}

func (r *PlanningRepository) ListTeras(_ context.Context, policyID string) ([]types.Teras, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	items := r.terasUnder(policyID)
	for i := range items {
		items[i] = r.withStrategies(items[i])
	}
	return items, nil
}

func (r *PlanningRepository) GetTeras(_ context.Context, id string) (types.Teras, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.teras[id]
	if !ok {
		return types.Teras{}, store.ErrNotFound
	}
	return r.withStrategies(t), nil
}

func (r *PlanningRepository) CreateTeras(_ context.Context, t types.Teras) (types.Teras, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.policies[t.PolicyID]; !ok {
		return types.Teras{}, store.ErrNotFound
	}
	siblings := r.terasUnder(t.PolicyID)
	t.Position = 0
	if n := len(siblings); n > 0 {
		t.Position = siblings[n-1].Position + 1
	}
	now := r.s.now()
	t.ID = uuid.NewString()
	t.CreatedAt = now
	t.UpdatedAt = now
	t.StrategyIDs = []string{}
	r.s.teras[t.ID] = t
	return t, nil
}

func (r *PlanningRepository) UpdateTeras(_ context.Context, t types.Teras) (types.Teras, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.teras[t.ID]
	if !ok {
		return types.Teras{}, store.ErrNotFound
	}
	existing.Name = t.Name
	existing.Region = t.Region
	existing.UpdatedAt = r.s.now()
	r.s.teras[t.ID] = existing
	return r.withStrategies(existing), nil
}

func (r *PlanningRepository) ListStrategies(_ context.Context, terasID string) ([]types.Strategy, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	items := r.strategiesUnder(terasID)
	for i := range items {
		items[i] = r.withInitiatives(items[i])
	}
	return items, nil
}

func (r *PlanningRepository) GetStrategy(_ context.Context, id string) (types.Strategy, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	st, ok := r.s.strategies[id]
	if !ok {
		return types.Strategy{}, store.ErrNotFound
	}
	return r.withInitiatives(st), nil
}

func (r *PlanningRepository) CreateStrategy(_ context.Context, st types.Strategy) (types.Strategy, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.teras[st.TerasID]; !ok {
		return types.Strategy{}, store.ErrNotFound
	}
	siblings := r.strategiesUnder(st.TerasID)
	st.Position = 0
	if n := len(siblings); n > 0 {
		st.Position = siblings[n-1].Position + 1
	}
	now := r.s.now()
	st.ID = uuid.NewString()
	st.CreatedAt = now
	st.UpdatedAt = now
	st.InitiativeIDs = []string{}
	r.s.strategies[st.ID] = st
	return st, nil
}

func (r *PlanningRepository) UpdateStrategy(_ context.Context, st types.Strategy) (types.Strategy, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.strategies[st.ID]
	if !ok {
		return types.Strategy{}, store.ErrNotFound
	}
	existing.Name = st.Name
	existing.Region = st.Region
	existing.UpdatedAt = r.s.now()
	r.s.strategies[st.ID] = existing
	return r.withInitiatives(existing), nil
}

func (r *PlanningRepository) ListInitiatives(_ context.Context, strategyID string) ([]types.Initiative, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.initiativesUnder(strategyID), nil
}

func (r *PlanningRepository) GetInitiative(_ context.Context, id string) (types.Initiative, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	in, ok := r.s.initiatives[id]
	if !ok {
		return types.Initiative{}, store.ErrNotFound
	}
	return in, nil
}

func (r *PlanningRepository) CreateInitiative(_ context.Context, in types.Initiative) (types.Initiative, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.strategies[in.StrategyID]; !ok {
		return types.Initiative{}, store.ErrNotFound
	}
	siblings := r.initiativesUnder(in.StrategyID)
	in.Position = 0
	if n := len(siblings); n > 0 {
		in.Position = siblings[n-1].Position + 1
	}
	now := r.s.now()
	in.ID = uuid.NewString()
	in.CreatedAt = now
	in.UpdatedAt = now
	r.s.initiatives[in.ID] = in
	return in, nil
}

func (r *PlanningRepository) UpdateInitiative(_ context.Context, in types.Initiative) (types.Initiative, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.initiatives[in.ID]
	if !ok {
		return types.Initiative{}, store.ErrNotFound
	}
	existing.Name = in.Name
	existing.Region = in.Region
	existing.KPI.Target = in.KPI.Target
	existing.KPI.Unit = in.KPI.Unit
	existing.UpdatedAt = r.s.now()
	r.s.initiatives[in.ID] = existing
	return existing, nil
}

// Reports

type ReportRepository struct {
	s *Store
}

func cloneReport(report types.Report) types.Report {
	report.Attachments = append([]types.Attachment{}, report.Attachments...)
	if report.KPIValue != nil {
		v := *report.KPIValue
		report.KPIValue = &v
	}
	return report
}

func (r *ReportRepository) Get(_ context.Context, id string) (types.Report, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	report, ok := r.s.reports[id]
	if !ok {
		return types.Report{}, store.ErrNotFound
	}
	return cloneReport(report), nil
}

func (r *ReportRepository) matches(report types.Report, filter types.ReportFilter) bool {
	if filter.InitiativeID != "" && report.InitiativeID != filter.InitiativeID {
		return false
	}
	if filter.SubmittedBy != "" && report.SubmittedBy != filter.SubmittedBy {
		return false
	}
	if filter.Period != "" && report.Period != filter.Period {
		return false
	}
	if filter.Status != "" && report.Status != filter.Status {
		return false
	}
	if filter.StateName != "" && r.s.users[report.SubmittedBy].StateName != filter.StateName {
		return false
	}
	return true
}

// List mirrors store.ReportRepository.List.
func (r *ReportRepository) List(_ context.Context, filter types.ReportFilter, offset, limit int) ([]types.Report, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	reports := []types.Report{}
	for _, report := range r.s.reports {
		if r.matches(report, filter) {
			reports = append(reports, cloneReport(report))
		}
	}
	sort.Slice(reports, func(i, j int) bool {
		if !reports[i].UpdatedAt.Equal(reports[j].UpdatedAt) {
			return reports[i].UpdatedAt.After(reports[j].UpdatedAt)
		}
		return reports[i].ID > reports[j].ID
	})

	total := len(reports)
	if limit > 0 {
		if offset < 0 {
			offset = 0
		}
		if offset > total {
			offset = total
		}
		end := offset + limit
		if end > total {
			end = total
		}
		reports = reports[offset:end]
	}
	return reports, total, nil
}

func (r *ReportRepository) Create(_ context.Context, report types.Report) (types.Report, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.tick(&r.s.lastReportTick)
	report.ID = uuid.NewString()
	report.Version = 1
	report.CreatedAt = now
	report.UpdatedAt = now
	if report.Attachments == nil {
		report.Attachments = []types.Attachment{}
	}
	report = cloneReport(report)
	r.s.reports[report.ID] = report
	return cloneReport(report), nil
}

// Transition mirrors store.ReportRepository.Transition. The report update,
// the review record and the KPI update are applied together or not at all.
func (r *ReportRepository) Transition(_ context.Context, t types.ReportTransition) (types.Report, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	report, ok := r.s.reports[t.ReportID]
	if !ok {
		return types.Report{}, store.ErrNotFound
	}
	if report.Status != t.ExpectedStatus || report.Version != t.ExpectedVersion {
		return types.Report{}, store.ErrConflict
	}

	var initiative types.Initiative
	if t.ApplyKPI != nil {
		initiative, ok = r.s.initiatives[t.ApplyKPI.InitiativeID]
		if !ok {
			return types.Report{}, store.ErrNotFound
		}
	}

	now := r.s.tick(&r.s.lastReportTick)
	report = cloneReport(report)
	report.Status = t.NewStatus
	report.Version++
	report.UpdatedAt = now
	if t.Fields != nil {
		t.Fields.Apply(&report)
		if report.KPIValue != nil {
			v := *report.KPIValue
			report.KPIValue = &v
		}
	}
	r.s.reports[report.ID] = report

	if t.Review != nil {
		review := *t.Review
		review.ID = uuid.NewString()
		review.ReportID = t.ReportID
		review.FromStatus = t.ExpectedStatus
		review.ToStatus = t.NewStatus
		review.CreatedAt = now
		r.s.reviews[t.ReportID] = append(r.s.reviews[t.ReportID], review)
	}

	if t.ApplyKPI != nil {
		initiative.KPI.CurrentValue = t.ApplyKPI.CurrentValue
		initiative.UpdatedAt = now
		r.s.initiatives[initiative.ID] = initiative
	}

	return cloneReport(report), nil
}

func (r *ReportRepository) AddAttachment(_ context.Context, reportID string, a types.Attachment) (types.Report, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	report, ok := r.s.reports[reportID]
	if !ok {
		return types.Report{}, store.ErrNotFound
	}
	if report.Status == types.StatusApproved {
		return types.Report{}, store.ErrConflict
	}
	report = cloneReport(report)
	report.Attachments = append(report.Attachments, a)
	report.UpdatedAt = r.s.tick(&r.s.lastReportTick)
	r.s.reports[reportID] = report
	return cloneReport(report), nil
}

func (r *ReportRepository) Reviews(_ context.Context, reportID string) ([]types.ReportReview, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return append([]types.ReportReview{}, r.s.reviews[reportID]...), nil
}

// Regions

type RegionRepository struct {
	s *Store
}

func (r *RegionRepository) List(_ context.Context) ([]types.Region, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	regions := make([]types.Region, 0, len(r.s.regions))
	for _, region := range r.s.regions {
		region.PPDs = append([]string{}, region.PPDs...)
		regions = append(regions, region)
	}
	sort.Slice(regions, func(i, j int) bool { return regions[i].StateName < regions[j].StateName })
	return regions, nil
}

func (r *RegionRepository) Get(_ context.Context, stateName string) (types.Region, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	region, ok := r.s.regions[stateName]
	if !ok {
		return types.Region{}, store.ErrNotFound
	}
	region.PPDs = append([]string{}, region.PPDs...)
	return region, nil
}

func (r *RegionRepository) Upsert(_ context.Context, region types.Region) (types.Region, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	region.PPDs = append([]string{}, region.PPDs...)
	r.s.regions[region.StateName] = region
	return region, nil
}
