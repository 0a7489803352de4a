package services

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/stemreport/apiserver/internal/access"
	"github.com/stemreport/apiserver/internal/store"
	"github.com/stemreport/apiserver/types"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// ReportRepository defines persistence operations for reports.
type ReportRepository interface {
	Get(ctx context.Context, id string) (types.Report, error)
	List(ctx context.Context, filter types.ReportFilter, offset, limit int) ([]types.Report, int, error)
	Create(ctx context.Context, report types.Report) (types.Report, error)
	Transition(ctx context.Context, t types.ReportTransition) (types.Report, error)
	AddAttachment(ctx context.Context, reportID string, a types.Attachment) (types.Report, error)
	Reviews(ctx context.Context, reportID string) ([]types.ReportReview, error)
}

// EventPublisher announces committed report transitions.
type EventPublisher interface {
	PublishReportEvent(ctx context.Context, event types.ReportEvent) error
}

// SubmitInput is the content of a new report.
type SubmitInput struct {
	InitiativeID string `json:"initiativeId" validate:"required"`
	Period       string `json:"period" validate:"required,max=32"`
	types.ReportFields
}

// ReviewInput is a reviewer's decision on a pending report.
type ReviewInput struct {
	Decision types.ReviewDecision `json:"decision" validate:"required"`
	Note     string               `json:"note" validate:"max=2000"`
}

// ReportService is the report lifecycle engine. It owns the status state
// machine: Pending Review → Approved (terminal), Pending Review → Needs
// Revision → Pending Review. Every transition is a compare-and-set on the
// stored status and version.
type ReportService struct {
	reports  ReportRepository
	planning PlanningRepository
	users    UserRepository
	events   EventPublisher
	storage  ObjectStore
	maxBytes int64
	logger   zerolog.Logger
}

// ReportServiceOption configures optional collaborators of a ReportService.
type ReportServiceOption func(*ReportService)

// WithEventPublisher publishes an event after every committed transition.
func WithEventPublisher(p EventPublisher) ReportServiceOption {
	return func(s *ReportService) {
		s.events = p
	}
}

// WithObjectStore enables evidence attachments up to maxBytes each.
func WithObjectStore(o ObjectStore, maxBytes int64) ReportServiceOption {
	return func(s *ReportService) {
		s.storage = o
		s.maxBytes = maxBytes
	}
}

func NewReportService(reports ReportRepository, planning PlanningRepository, users UserRepository, logger zerolog.Logger, opts ...ReportServiceOption) *ReportService {
	s := &ReportService{
		reports:  reports,
		planning: planning,
		users:    users,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit files a new report against a fully resolvable initiative. The
// report starts in Pending Review.
func (s *ReportService) Submit(ctx context.Context, actor types.Principal, input SubmitInput) (types.Report, error) {
	if !access.Allowed(actor.Role, access.SubmitReport) {
		return types.Report{}, ErrUnauthorized
	}
	input.InitiativeID = strings.TrimSpace(input.InitiativeID)
	input.Period = strings.TrimSpace(input.Period)
	input.ReportFields = trimFields(input.ReportFields)
	if err := validateStruct(input); err != nil {
		return types.Report{}, err
	}
	if _, err := resolveChain(ctx, s.planning, input.InitiativeID); err != nil {
		return types.Report{}, err
	}

	report := types.Report{
		InitiativeID: input.InitiativeID,
		Period:       input.Period,
		SubmittedBy:  actor.UserID,
		Status:       types.StatusPendingReview,
	}
	input.ReportFields.Apply(&report)

	created, err := s.reports.Create(ctx, report)
	if err != nil {
		return types.Report{}, err
	}
	s.committed(ctx, actor, created, "", types.EventReportSubmitted, "")
	return created, nil
}

// Edit replaces the content of a report in Needs Revision and sends it back
// to Pending Review. Only the submitter or an Admin may edit.
func (s *ReportService) Edit(ctx context.Context, actor types.Principal, reportID string, fields types.ReportFields) (types.Report, error) {
	if !access.Allowed(actor.Role, access.EditReport) {
		return types.Report{}, ErrUnauthorized
	}
	report, err := s.reports.Get(ctx, reportID)
	if err != nil {
		return types.Report{}, err
	}
	relation, err := s.relation(ctx, actor, report)
	if err != nil {
		return types.Report{}, err
	}
	if !access.Can(actor.Role, access.EditReport, relation) {
		return types.Report{}, ErrUnauthorized
	}
	if report.Status != types.StatusNeedsRevision {
		return types.Report{}, ErrInvalidTransition
	}

	fields = trimFields(fields)
	if err := validateStruct(fields); err != nil {
		return types.Report{}, err
	}

	updated, err := s.reports.Transition(ctx, types.ReportTransition{
		ReportID:        report.ID,
		ExpectedStatus:  types.StatusNeedsRevision,
		ExpectedVersion: report.Version,
		NewStatus:       types.StatusPendingReview,
		Fields:          &fields,
	})
	if err != nil {
		return types.Report{}, transitionError(err)
	}
	s.committed(ctx, actor, updated, report.Status, types.EventReportEdited, "")
	return updated, nil
}

// Review applies a reviewer's decision to a pending report. Approving a
// report that carries a KPI value sets the initiative's current value in
// the same atomic unit as the status change.
func (s *ReportService) Review(ctx context.Context, actor types.Principal, reportID string, input ReviewInput) (types.Report, error) {
	if !access.Allowed(actor.Role, access.ApproveReport) {
		return types.Report{}, ErrUnauthorized
	}
	input.Note = strings.TrimSpace(input.Note)
	if err := validateStruct(input); err != nil {
		return types.Report{}, err
	}
	if !input.Decision.Valid() {
		return types.Report{}, validationf("unknown decision %q", input.Decision)
	}

	report, err := s.reports.Get(ctx, reportID)
	if err != nil {
		return types.Report{}, err
	}
	relation, err := s.relation(ctx, actor, report)
	if err != nil {
		return types.Report{}, err
	}
	if !access.Can(actor.Role, access.ApproveReport, relation) {
		return types.Report{}, ErrUnauthorized
	}
	if report.Status != types.StatusPendingReview {
		return types.Report{}, ErrInvalidTransition
	}

	target := input.Decision.Target()
	transition := types.ReportTransition{
		ReportID:        report.ID,
		ExpectedStatus:  types.StatusPendingReview,
		ExpectedVersion: report.Version,
		NewStatus:       target,
		Review: &types.ReportReview{
			ReviewerID: actor.UserID,
			Decision:   input.Decision,
			Note:       input.Note,
		},
	}
	if target == types.StatusApproved && report.KPIValue != nil {
		transition.ApplyKPI = &types.KPIUpdate{
			InitiativeID: report.InitiativeID,
			CurrentValue: *report.KPIValue,
		}
	}

	updated, err := s.reports.Transition(ctx, transition)
	if err != nil {
		return types.Report{}, transitionError(err)
	}

	eventType := types.EventReportRevisionRequested
	if target == types.StatusApproved {
		eventType = types.EventReportApproved
	}
	s.committed(ctx, actor, updated, report.Status, eventType, input.Note)
	return updated, nil
}

// Get returns a report the caller may see: their own, or any report in
// their review scope.
func (s *ReportService) Get(ctx context.Context, actor types.Principal, reportID string) (types.Report, error) {
	report, err := s.reports.Get(ctx, reportID)
	if err != nil {
		return types.Report{}, err
	}
	if err := s.authorizeView(ctx, actor, report); err != nil {
		return types.Report{}, err
	}
	return report, nil
}

// ListOwn lists the caller's own reports, newest first.
func (s *ReportService) ListOwn(ctx context.Context, actor types.Principal, filter types.ReportFilter, offset, limit int) ([]types.Report, int, error) {
	if !access.Allowed(actor.Role, access.ViewOwnReports) {
		return nil, 0, ErrUnauthorized
	}
	filter.SubmittedBy = actor.UserID
	filter.StateName = ""
	offset, limit = page(offset, limit)
	return s.reports.List(ctx, filter, offset, limit)
}

// ListAll lists every report in the caller's review scope, newest first.
// Reviewers assigned to a Negeri only see reports of submitters from it.
func (s *ReportService) ListAll(ctx context.Context, actor types.Principal, filter types.ReportFilter, offset, limit int) ([]types.Report, int, error) {
	if !access.Allowed(actor.Role, access.ViewAllReports) {
		return nil, 0, ErrUnauthorized
	}
	filter.StateName = ""
	if actor.StateName != "" && !access.Can(actor.Role, access.ViewAllReports, access.RelationOutOfScope) {
		filter.StateName = actor.StateName
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, validationf("unknown status %q", filter.Status)
	}
	offset, limit = page(offset, limit)
	return s.reports.List(ctx, filter, offset, limit)
}

// Reviews returns the review trail of a report the caller may see.
func (s *ReportService) Reviews(ctx context.Context, actor types.Principal, reportID string) ([]types.ReportReview, error) {
	if _, err := s.Get(ctx, actor, reportID); err != nil {
		return nil, err
	}
	return s.reports.Reviews(ctx, reportID)
}

func (s *ReportService) authorizeView(ctx context.Context, actor types.Principal, report types.Report) error {
	if report.SubmittedBy == actor.UserID && access.Allowed(actor.Role, access.ViewOwnReports) {
		return nil
	}
	if !access.Allowed(actor.Role, access.ViewAllReports) {
		return ErrUnauthorized
	}
	relation, err := s.relation(ctx, actor, report)
	if err != nil {
		return err
	}
	if !access.Can(actor.Role, access.ViewAllReports, relation) {
		return ErrUnauthorized
	}
	return nil
}

// relation resolves how actor stands to report: its submitter, or a
// reviewer inside or outside the submitter's Negeri.
func (s *ReportService) relation(ctx context.Context, actor types.Principal, report types.Report) (access.Relation, error) {
	if report.SubmittedBy == actor.UserID {
		return access.RelationOwner, nil
	}
	submitter, err := s.users.GetByID(ctx, report.SubmittedBy)
	if err != nil {
		return access.RelationNone, err
	}
	return access.ScopeRelation(actor.StateName, submitter.StateName), nil
}

// committed logs a transition and publishes its event. Publishing failures
// are logged and never undo the transition.
func (s *ReportService) committed(ctx context.Context, actor types.Principal, report types.Report, from types.ReportStatus, eventType types.ReportEventType, note string) {
	s.logger.Info().
		Str("report_id", report.ID).
		Str("initiative_id", report.InitiativeID).
		Str("from", string(from)).
		Str("to", string(report.Status)).
		Str("actor", actor.UserID).
		Int("version", report.Version).
		Msg("report transition committed")

	if s.events == nil {
		return
	}
	event := types.ReportEvent{
		Type:         eventType,
		ReportID:     report.ID,
		InitiativeID: report.InitiativeID,
		Period:       report.Period,
		SubmittedBy:  report.SubmittedBy,
		ActorID:      actor.UserID,
		Status:       report.Status,
		Note:         note,
		Version:      report.Version,
	}
	if err := s.events.PublishReportEvent(ctx, event); err != nil {
		s.logger.Error().
			Err(err).
			Str("report_id", report.ID).
			Str("event", string(eventType)).
			Msg("failed to publish report event")
	}
}

// transitionError maps a lost compare-and-set to ErrInvalidTransition.
func transitionError(err error) error {
	if errors.Is(err, store.ErrConflict) {
		return ErrInvalidTransition
	}
	return err
}

func trimFields(f types.ReportFields) types.ReportFields {
	f.Summary = strings.TrimSpace(f.Summary)
	f.Challenges = strings.TrimSpace(f.Challenges)
	f.NextSteps = strings.TrimSpace(f.NextSteps)
	return f
}

func page(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return offset, limit
}
