package services

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/stemreport/apiserver/internal/store"
	"github.com/stemreport/apiserver/internal/store/memory"
	"github.com/stemreport/apiserver/types"
)

// fixture is a seeded memory store with one full planning chain and one
// account per role.
type fixture struct {
	store *memory.Store

	users       *UserService
	planning    *PlanningService
	reports     *ReportService
	aggregation *AggregationService

	events  *recordingPublisher
	objects *memoryObjects

	admin    types.Principal
	negeri   types.Principal
	johor    types.Principal
	bahagian types.Principal
	ppd      types.Principal
	user     types.Principal

	initiative types.Initiative
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	st := memory.New()
	f := &fixture{
		store:   st,
		events:  &recordingPublisher{},
		objects: newMemoryObjects(),
	}
	logger := zerolog.Nop()
	f.users = NewUserService(st.Users(), logger)
	f.planning = NewPlanningService(st.Planning(), st.Regions(), logger)
	f.reports = NewReportService(
		st.Reports(),
		st.Planning(),
		st.Users(),
		logger,
		WithEventPublisher(f.events),
		WithObjectStore(f.objects, 1024),
	)
	f.aggregation = NewAggregationService(st.Planning(), st.Reports(), st.Users(), st.Regions())

	f.admin = f.seedUser(t, "admin@moe.gov.my", types.RoleAdmin, "", "")
	f.negeri = f.seedUser(t, "jpn.selangor@moe.gov.my", types.RoleNegeri, "Selangor", "")
	f.johor = f.seedUser(t, "jpn.johor@moe.gov.my", types.RoleNegeri, "Johor", "")
	f.bahagian = f.seedUser(t, "bahagian@moe.gov.my", types.RoleBahagian, "", "")
	f.ppd = f.seedUser(t, "ppd.klang@moe.gov.my", types.RolePPD, "Selangor", "Klang")
	f.user = f.seedUser(t, "guru@moe.gov.my", types.RoleUser, "Selangor", "")

	policy, err := f.planning.CreatePolicy(ctx, f.admin, NodeInput{Name: "STEM Policy"})
	require.NoError(t, err)
	teras, err := f.planning.CreateTeras(ctx, f.admin, policy.ID, NodeInput{Name: "Teras 1"})
	require.NoError(t, err)
	strategy, err := f.planning.CreateStrategy(ctx, f.admin, teras.ID, NodeInput{Name: "Strategy 1"})
	require.NoError(t, err)
	f.initiative, err = f.planning.CreateInitiative(ctx, f.admin, strategy.ID, InitiativeInput{Name: "I1", Target: 200, Unit: "schools"})
	require.NoError(t, err)

	return f
}

func (f *fixture) seedUser(t *testing.T, email string, role types.Role, state, ppd string) types.Principal {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)
	user, err := f.store.Users().Create(context.Background(), types.User{
		Email:        email,
		Name:         email,
		Role:         role,
		StateName:    state,
		PPD:          ppd,
		PasswordHash: string(hash),
	})
	require.NoError(t, err)
	return types.PrincipalOf(user)
}

func (f *fixture) submit(t *testing.T, actor types.Principal, kpi *float64) types.Report {
	t.Helper()
	report, err := f.reports.Submit(context.Background(), actor, SubmitInput{
		InitiativeID: f.initiative.ID,
		Period:       "2025-Q3",
		ReportFields: fields("progress", kpi),
	})
	require.NoError(t, err)
	return report
}

func fields(summary string, kpi *float64) types.ReportFields {
	return types.ReportFields{
		Summary:    summary,
		Challenges: "funding",
		NextSteps:  "expand",
		KPIValue:   kpi,
	}
}

func ptr(v float64) *float64 {
	return &v
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []types.ReportEvent
	err    error
}

func (p *recordingPublisher) PublishReportEvent(_ context.Context, event types.ReportEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) eventTypes() []types.ReportEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.ReportEventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type memoryObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemoryObjects() *memoryObjects {
	return &memoryObjects{objects: make(map[string][]byte)}
}

func (m *memoryObjects) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memoryObjects) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryObjects) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}
