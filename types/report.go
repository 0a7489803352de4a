package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// ReportStatus is the lifecycle state of a report.
type ReportStatus string

// Report states. PendingReview is initial, Approved is terminal.
const (
	StatusPendingReview ReportStatus = "Pending Review"
	StatusApproved      ReportStatus = "Approved"
	StatusNeedsRevision ReportStatus = "Needs Revision"
)

// ReportStatuses lists every valid report state.
var ReportStatuses = []ReportStatus{StatusPendingReview, StatusApproved, StatusNeedsRevision}

// Valid reports whether s is one of the defined states.
func (s ReportStatus) Valid() bool {
	switch s {
	case StatusPendingReview, StatusApproved, StatusNeedsRevision:
		return true
	default:
		return false
	}
}

// UnmarshalJSON rejects unknown states.
func (s *ReportStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	status := ReportStatus(raw)
	if !status.Valid() {
		return fmt.Errorf("unknown report status %q", raw)
	}
	*s = status
	return nil
}

// ReviewDecision is the outcome a reviewer applies to a pending report.
type ReviewDecision string

// Supported review decisions.
const (
	DecisionApprove         ReviewDecision = "approve"
	DecisionRequestRevision ReviewDecision = "requestRevision"
)

// Valid reports whether d is a supported decision.
func (d ReviewDecision) Valid() bool {
	return d == DecisionApprove || d == DecisionRequestRevision
}

// Target returns the state a pending report moves to under this decision.
func (d ReviewDecision) Target() ReportStatus {
	if d == DecisionApprove {
		return StatusApproved
	}
	return StatusNeedsRevision
}

// Report is one reporting-period submission against one initiative.
// Reports are never physically deleted.
type Report struct {
	// ID is the opaque identifier of the report.
	ID string `json:"id" db:"id"`

	// InitiativeID references the initiative the report is filed against.
	InitiativeID string `json:"initiativeId" db:"initiative_id"`

	// Period is the reporting period label, e.g. "2025-Q3".
	Period string `json:"period" db:"period"`

	// Summary describes the progress made during the period.
	Summary string `json:"summary" db:"summary"`

	// Challenges describes obstacles met during the period.
	Challenges string `json:"challenges" db:"challenges"`

	// NextSteps describes the planned actions for the next period.
	NextSteps string `json:"nextSteps" db:"next_steps"`

	// KPIValue is the KPI value the reporter claims for the initiative.
	// When set, approval copies it into the initiative's current value.
	KPIValue *float64 `json:"kpiValue,omitempty" db:"kpi_value"`

	// SubmittedBy references the user who created the report.
	SubmittedBy string `json:"submittedBy" db:"submitted_by"`

	// Status is the lifecycle state of the report.
	Status ReportStatus `json:"status" db:"status"`

	// Version increases with every committed transition and guards
	// compare-and-set updates.
	Version int `json:"version" db:"version"`

	// Attachments lists the evidence files uploaded for this report.
	Attachments []Attachment `json:"attachments" db:"attachments"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// ReportFields holds the reporter-editable content of a report.
type ReportFields struct {
	Summary    string   `json:"summary" validate:"required,max=10000"`
	Challenges string   `json:"challenges" validate:"required,max=10000"`
	NextSteps  string   `json:"nextSteps" validate:"required,max=10000"`
	KPIValue   *float64 `json:"kpiValue,omitempty" validate:"omitempty,gte=0"`
}

// Apply copies the editable fields onto r.
func (f ReportFields) Apply(r *Report) {
	r.Summary = f.Summary
	r.Challenges = f.Challenges
	r.NextSteps = f.NextSteps
	r.KPIValue = f.KPIValue
}

// Attachment is an evidence file stored in object storage.
type Attachment struct {
	// ID is the opaque identifier of the attachment.
	ID string `json:"id"`

	// Filename is the original client-side filename.
	Filename string `json:"filename"`

	// ObjectKey is the key of the object in the configured bucket.
	ObjectKey string `json:"objectKey"`

	// ContentType is the MIME type reported at upload time.
	ContentType string `json:"contentType"`

	// Size is the object size in bytes.
	Size int64 `json:"size"`

	// SHA256 is the hex digest of the uploaded content.
	SHA256 string `json:"sha256"`

	// UploadedBy references the uploading user.
	UploadedBy string `json:"uploadedBy"`

	UploadedAt time.Time `json:"uploadedAt"`
}

// ReportReview is an audit record of a single review decision.
type ReportReview struct {
	ID         string         `json:"id" db:"id"`
	ReportID   string         `json:"reportId" db:"report_id"`
	ReviewerID string         `json:"reviewerId" db:"reviewer_id"`
	Decision   ReviewDecision `json:"decision" db:"decision"`
	Note       string         `json:"note,omitempty" db:"note"`
	FromStatus ReportStatus   `json:"fromStatus" db:"from_status"`
	ToStatus   ReportStatus   `json:"toStatus" db:"to_status"`
	CreatedAt  time.Time      `json:"createdAt" db:"created_at"`
}

// ReportFilter narrows report listings. Zero values match everything.
type ReportFilter struct {
	InitiativeID string
	SubmittedBy  string
	Period       string
	Status       ReportStatus
	// StateName restricts to reports whose submitter is assigned to this Negeri.
	StateName string
}

// ReportTransition is a compare-and-set update of a report. The store
// applies it only when the stored status and version still match the
// expected values.
type ReportTransition struct {
	ReportID        string
	ExpectedStatus  ReportStatus
	ExpectedVersion int
	NewStatus       ReportStatus

	// Fields replaces the editable content when non-nil.
	Fields *ReportFields

	// Review is recorded in the same atomic unit when non-nil.
	Review *ReportReview

	// ApplyKPI sets the initiative's current value in the same atomic unit
	// when non-nil.
	ApplyKPI *KPIUpdate
}

// KPIUpdate sets the current KPI value of an initiative.
type KPIUpdate struct {
	InitiativeID string
	CurrentValue float64
}
