package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemreport/apiserver/types"
)

func TestSubmitStartsPendingReview(t *testing.T) {
	f := newFixture(t)

	report := f.submit(t, f.ppd, nil)

	assert.Equal(t, types.StatusPendingReview, report.Status)
	assert.Equal(t, f.ppd.UserID, report.SubmittedBy)
	assert.Equal(t, "2025-Q3", report.Period)
	assert.Equal(t, 1, report.Version)
	assert.NotEmpty(t, report.ID)
	assert.Equal(t, []types.ReportEventType{types.EventReportSubmitted}, f.events.eventTypes())
}

func TestSubmitUnknownInitiative(t *testing.T) {
	f := newFixture(t)

	_, err := f.reports.Submit(context.Background(), f.ppd, SubmitInput{
		InitiativeID: "missing",
		Period:       "2025-Q3",
		ReportFields: fields("progress", nil),
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name  string
		input SubmitInput
	}{
		{"missing period", SubmitInput{InitiativeID: f.initiative.ID, ReportFields: fields("x", nil)}},
		{"blank summary", SubmitInput{InitiativeID: f.initiative.ID, Period: "2025-Q3", ReportFields: fields("   ", nil)}},
		{"negative kpi", SubmitInput{InitiativeID: f.initiative.ID, Period: "2025-Q3", ReportFields: fields("x", ptr(-1))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.reports.Submit(context.Background(), f.ppd, tt.input)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestDuplicateSubmissionsAreKept(t *testing.T) {
	f := newFixture(t)

	first := f.submit(t, f.ppd, nil)
	second := f.submit(t, f.ppd, nil)

	assert.NotEqual(t, first.ID, second.ID)
	_, total, err := f.reports.ListOwn(context.Background(), f.ppd, types.ReportFilter{}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestApproveIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	report := f.submit(t, f.ppd, nil)

	approved, err := f.reports.Review(ctx, f.admin, report.ID, ReviewInput{Decision: types.DecisionApprove})
	require.NoError(t, err)
	assert.Equal(t, types.StatusApproved, approved.Status)

	_, err = f.reports.Edit(ctx, f.ppd, report.ID, fields("changed", nil))
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.reports.Edit(ctx, f.admin, report.ID, fields("changed", nil))
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.reports.Review(ctx, f.admin, report.ID, ReviewInput{Decision: types.DecisionRequestRevision})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	stored, err := f.reports.Get(ctx, f.admin, report.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusApproved, stored.Status)
}

func TestRequestRevisionThenEdit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	report := f.submit(t, f.ppd, nil)

	revised, err := f.reports.Review(ctx, f.negeri, report.ID, ReviewInput{Decision: types.DecisionRequestRevision, Note: "add numbers"})
	require.NoError(t, err)
	assert.Equal(t, types.StatusNeedsRevision, revised.Status)

	edited, err := f.reports.Edit(ctx, f.ppd, report.ID, fields("with numbers", ptr(40)))
	require.NoError(t, err)
	assert.Equal(t, types.StatusPendingReview, edited.Status)
	assert.Equal(t, "with numbers", edited.Summary)
	assert.Equal(t, 40.0, *edited.KPIValue)
	assert.Equal(t, 3, edited.Version)

	reviews, err := f.reports.Reviews(ctx, f.ppd, report.ID)
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.Equal(t, f.negeri.UserID, reviews[0].ReviewerID)
	assert.Equal(t, types.DecisionRequestRevision, reviews[0].Decision)
	assert.Equal(t, "add numbers", reviews[0].Note)
	assert.Equal(t, types.StatusPendingReview, reviews[0].FromStatus)
	assert.Equal(t, types.StatusNeedsRevision, reviews[0].ToStatus)

	assert.Equal(t, []types.ReportEventType{
		types.EventReportSubmitted,
		types.EventReportRevisionRequested,
		types.EventReportEdited,
	}, f.events.eventTypes())
}

func TestEditOnlyFromNeedsRevision(t *testing.T) {
	f := newFixture(t)
	report := f.submit(t, f.ppd, nil)

	_, err := f.reports.Edit(context.Background(), f.ppd, report.ID, fields("changed", nil))
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestEditRequiresOwnerOrAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	report := f.submit(t, f.ppd, nil)
	_, err := f.reports.Review(ctx, f.negeri, report.ID, ReviewInput{Decision: types.DecisionRequestRevision})
	require.NoError(t, err)

	_, err = f.reports.Edit(ctx, f.user, report.ID, fields("changed", nil))
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.reports.Edit(ctx, f.negeri, report.ID, fields("changed", nil))
	assert.ErrorIs(t, err, ErrUnauthorized)

	edited, err := f.reports.Edit(ctx, f.admin, report.ID, fields("changed by admin", nil))
	require.NoError(t, err)
	assert.Equal(t, types.StatusPendingReview, edited.Status)
}

func TestReportersCannotReview(t *testing.T) {
	f := newFixture(t)
	report := f.submit(t, f.ppd, nil)

	for _, actor := range []types.Principal{f.ppd, f.user} {
		for _, decision := range []types.ReviewDecision{types.DecisionApprove, types.DecisionRequestRevision} {
			_, err := f.reports.Review(context.Background(), actor, report.ID, ReviewInput{Decision: decision})
			assert.ErrorIs(t, err, ErrUnauthorized)
		}
	}

	// Denied before the report is even looked up.
	_, err := f.reports.Review(context.Background(), f.ppd, "missing", ReviewInput{Decision: types.DecisionApprove})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestReviewIsScopedToState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	report := f.submit(t, f.ppd, nil)

	_, err := f.reports.Review(ctx, f.johor, report.ID, ReviewInput{Decision: types.DecisionApprove})
	assert.ErrorIs(t, err, ErrUnauthorized)

	approved, err := f.reports.Review(ctx, f.bahagian, report.ID, ReviewInput{Decision: types.DecisionApprove})
	require.NoError(t, err)
	assert.Equal(t, types.StatusApproved, approved.Status)
}

func TestReviewUnknownDecision(t *testing.T) {
	f := newFixture(t)
	report := f.submit(t, f.ppd, nil)

	_, err := f.reports.Review(context.Background(), f.admin, report.ID, ReviewInput{Decision: "reject"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestReviewMissingReport(t *testing.T) {
	f := newFixture(t)

	_, err := f.reports.Review(context.Background(), f.admin, "missing", ReviewInput{Decision: types.DecisionApprove})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApproveSetsKPICurrentValue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	withKPI := f.submit(t, f.ppd, ptr(150))
	_, err := f.reports.Review(ctx, f.negeri, withKPI.ID, ReviewInput{Decision: types.DecisionApprove})
	require.NoError(t, err)

	initiative, err := f.planning.GetInitiative(ctx, f.initiative.ID)
	require.NoError(t, err)
	assert.Equal(t, 150.0, initiative.KPI.CurrentValue)
	assert.InDelta(t, 75.0, initiative.KPI.Progress(), 1e-9)

	withoutKPI := f.submit(t, f.ppd, nil)
	_, err = f.reports.Review(ctx, f.negeri, withoutKPI.ID, ReviewInput{Decision: types.DecisionApprove})
	require.NoError(t, err)

	initiative, err = f.planning.GetInitiative(ctx, f.initiative.ID)
	require.NoError(t, err)
	assert.Equal(t, 150.0, initiative.KPI.CurrentValue)
}

func TestRequestRevisionLeavesKPI(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	report := f.submit(t, f.ppd, ptr(150))

	_, err := f.reports.Review(ctx, f.negeri, report.ID, ReviewInput{Decision: types.DecisionRequestRevision})
	require.NoError(t, err)

	initiative, err := f.planning.GetInitiative(ctx, f.initiative.ID)
	require.NoError(t, err)
	assert.Zero(t, initiative.KPI.CurrentValue)
}

func TestConcurrentReviewsExactlyOneWins(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t)
		report := f.submit(t, f.ppd, ptr(10))

		decisions := []types.ReviewDecision{types.DecisionApprove, types.DecisionRequestRevision}
		errs := make([]error, len(decisions))
		var start, wg sync.WaitGroup
		start.Add(1)
		for j, decision := range decisions {
			wg.Add(1)
			go func(j int, decision types.ReviewDecision) {
				defer wg.Done()
				start.Wait()
				_, errs[j] = f.reports.Review(context.Background(), f.admin, report.ID, ReviewInput{Decision: decision})
			}(j, decision)
		}
		start.Done()
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.True(t, errors.Is(err, ErrInvalidTransition), "unexpected error %v", err)
		}
		require.Equal(t, 1, succeeded)

		reviews, err := f.reports.Reviews(context.Background(), f.admin, report.ID)
		require.NoError(t, err)
		assert.Len(t, reviews, 1)

		stored, err := f.reports.Get(context.Background(), f.admin, report.ID)
		require.NoError(t, err)
		initiative, err := f.planning.GetInitiative(context.Background(), f.initiative.ID)
		require.NoError(t, err)
		if stored.Status == types.StatusApproved {
			assert.Equal(t, 10.0, initiative.KPI.CurrentValue)
		} else {
			assert.Equal(t, types.StatusNeedsRevision, stored.Status)
			assert.Zero(t, initiative.KPI.CurrentValue)
		}
	}
}

func TestPublishFailureKeepsTransition(t *testing.T) {
	f := newFixture(t)
	f.events.err = errors.New("broker down")

	report := f.submit(t, f.ppd, nil)
	approved, err := f.reports.Review(context.Background(), f.admin, report.ID, ReviewInput{Decision: types.DecisionApprove})
	require.NoError(t, err)
	assert.Equal(t, types.StatusApproved, approved.Status)
}

func TestReportVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	report := f.submit(t, f.ppd, nil)

	_, err := f.reports.Get(ctx, f.ppd, report.ID)
	assert.NoError(t, err)
	_, err = f.reports.Get(ctx, f.negeri, report.ID)
	assert.NoError(t, err)
	_, err = f.reports.Get(ctx, f.bahagian, report.ID)
	assert.NoError(t, err)

	_, err = f.reports.Get(ctx, f.user, report.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.reports.Get(ctx, f.johor, report.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestListAllIsScoped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.submit(t, f.ppd, nil)
	f.submit(t, f.johor, nil)

	_, err := ignoreList(f.reports.ListAll(ctx, f.ppd, types.ReportFilter{}, 0, 0))
	assert.ErrorIs(t, err, ErrUnauthorized)

	total, err := ignoreList(f.reports.ListAll(ctx, f.negeri, types.ReportFilter{}, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	total, err = ignoreList(f.reports.ListAll(ctx, f.bahagian, types.ReportFilter{}, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	total, err = ignoreList(f.reports.ListAll(ctx, f.admin, types.ReportFilter{InitiativeID: f.initiative.ID}, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	_, err = ignoreList(f.reports.ListAll(ctx, f.admin, types.ReportFilter{Status: "Rejected"}, 0, 0))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestListPagination(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.submit(t, f.ppd, nil)
	}

	page, total, err := f.reports.ListOwn(context.Background(), f.ppd, types.ReportFilter{}, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, page, 1)
}

func ignoreList(_ []types.Report, total int, err error) (int, error) {
	return total, err
}
