package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemreport/apiserver/internal/store"
	"github.com/stemreport/apiserver/types"
)

func seed(t *testing.T) (*Store, types.Initiative, types.User) {
	t.Helper()
	ctx := context.Background()
	s := New()

	user, err := s.Users().Create(ctx, types.User{Email: "ppd@moe.gov.my", Role: types.RolePPD, StateName: "Selangor"})
	require.NoError(t, err)
	policy, err := s.Planning().CreatePolicy(ctx, types.Policy{Name: "P"})
	require.NoError(t, err)
	teras, err := s.Planning().CreateTeras(ctx, types.Teras{PolicyID: policy.ID, Name: "T"})
	require.NoError(t, err)
	strategy, err := s.Planning().CreateStrategy(ctx, types.Strategy{TerasID: teras.ID, Name: "S"})
	require.NoError(t, err)
	initiative, err := s.Planning().CreateInitiative(ctx, types.Initiative{StrategyID: strategy.ID, Name: "I", KPI: types.KPI{Target: 10}})
	require.NoError(t, err)
	return s, initiative, user
}

func TestTransitionCompareAndSet(t *testing.T) {
	s, initiative, user := seed(t)
	ctx := context.Background()
	reports := s.Reports()

	value := 7.0
	report, err := reports.Create(ctx, types.Report{InitiativeID: initiative.ID, SubmittedBy: user.ID, Status: types.StatusPendingReview, KPIValue: &value})
	require.NoError(t, err)

	approve := types.ReportTransition{
		ReportID:        report.ID,
		ExpectedStatus:  types.StatusPendingReview,
		ExpectedVersion: report.Version,
		NewStatus:       types.StatusApproved,
		Review:          &types.ReportReview{ReviewerID: "admin", Decision: types.DecisionApprove},
		ApplyKPI:        &types.KPIUpdate{InitiativeID: initiative.ID, CurrentValue: value},
	}
	approved, err := reports.Transition(ctx, approve)
	require.NoError(t, err)
	assert.Equal(t, types.StatusApproved, approved.Status)
	assert.Equal(t, 2, approved.Version)

	_, err = reports.Transition(ctx, approve)
	assert.ErrorIs(t, err, store.ErrConflict)

	approve.ReportID = "missing"
	_, err = reports.Transition(ctx, approve)
	assert.ErrorIs(t, err, store.ErrNotFound)

	stored, err := s.Planning().GetInitiative(ctx, initiative.ID)
	require.NoError(t, err)
	assert.Equal(t, 7.0, stored.KPI.CurrentValue)

	reviews, err := reports.Reviews(ctx, report.ID)
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.Equal(t, types.StatusPendingReview, reviews[0].FromStatus)
}

func TestTransitionMissingInitiativeChangesNothing(t *testing.T) {
	s, initiative, user := seed(t)
	ctx := context.Background()

	report, err := s.Reports().Create(ctx, types.Report{InitiativeID: initiative.ID, SubmittedBy: user.ID, Status: types.StatusPendingReview})
	require.NoError(t, err)

	_, err = s.Reports().Transition(ctx, types.ReportTransition{
		ReportID:        report.ID,
		ExpectedStatus:  types.StatusPendingReview,
		ExpectedVersion: 1,
		NewStatus:       types.StatusApproved,
		Review:          &types.ReportReview{ReviewerID: "admin", Decision: types.DecisionApprove},
		ApplyKPI:        &types.KPIUpdate{InitiativeID: "missing", CurrentValue: 1},
	})
	assert.ErrorIs(t, err, store.ErrNotFound)

	stored, err := s.Reports().Get(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPendingReview, stored.Status)
	reviews, err := s.Reports().Reviews(ctx, report.ID)
	require.NoError(t, err)
	assert.Empty(t, reviews)
}

func TestAddAttachmentRejectsApproved(t *testing.T) {
	s, initiative, user := seed(t)
	ctx := context.Background()

	report, err := s.Reports().Create(ctx, types.Report{InitiativeID: initiative.ID, SubmittedBy: user.ID, Status: types.StatusApproved})
	require.NoError(t, err)

	_, err = s.Reports().AddAttachment(ctx, report.ID, types.Attachment{ID: "a1"})
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestListFiltersAndOrders(t *testing.T) {
	s, initiative, user := seed(t)
	ctx := context.Background()
	other, err := s.Users().Create(ctx, types.User{Email: "johor@moe.gov.my", Role: types.RoleNegeri, StateName: "Johor"})
	require.NoError(t, err)

	var ids []string
	for _, submitter := range []string{user.ID, other.ID, user.ID} {
		r, err := s.Reports().Create(ctx, types.Report{InitiativeID: initiative.ID, SubmittedBy: submitter, Period: "2025-Q3", Status: types.StatusPendingReview})
		require.NoError(t, err)
		ids = append(ids, r.ID)
	}

	all, total, err := s.Reports().List(ctx, types.ReportFilter{}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{all[0].ID, all[1].ID, all[2].ID})

	selangor, total, err := s.Reports().List(ctx, types.ReportFilter{StateName: "Selangor"}, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, selangor, 1)
	assert.Equal(t, ids[2], selangor[0].ID)
}

func TestDuplicateEmailConflicts(t *testing.T) {
	s, _, _ := seed(t)

	_, err := s.Users().Create(context.Background(), types.User{Email: "PPD@moe.gov.my"})
	assert.ErrorIs(t, err, store.ErrConflict)
}
