package types

// Region is a Negeri together with the PPD district offices under it.
type Region struct {
	// StateName identifies the Negeri.
	StateName string `json:"stateName" db:"state_name"`

	// PPDs lists the district offices that must report for the state.
	PPDs []string `json:"ppds" db:"ppds"`
}

// StatusNoReport buckets initiatives that have not received any report.
const StatusNoReport = "No Report"

// TreeTotals are the rolled-up counts of the planning tree.
type TreeTotals struct {
	Policies    int `json:"policies"`
	Teras       int `json:"teras"`
	Strategies  int `json:"strategies"`
	Initiatives int `json:"initiatives"`

	// ByStatus counts initiatives by the status of their latest report,
	// with StatusNoReport for initiatives without reports.
	ByStatus map[string]int `json:"byStatus"`

	// StrategiesByTeras counts the strategies under each teras.
	StrategiesByTeras map[string]int `json:"strategiesByTeras"`
}

// InitiativeProgress is the derived KPI progress of one initiative.
type InitiativeProgress struct {
	InitiativeID string  `json:"initiativeId"`
	Name         string  `json:"name"`
	StrategyID   string  `json:"strategyId"`
	Region       string  `json:"region,omitempty"`
	CurrentValue float64 `json:"currentValue"`
	Target       float64 `json:"target"`
	Unit         string  `json:"unit"`
	Progress     float64 `json:"progress"`
	LatestStatus string  `json:"latestStatus"`
	ReportCount  int     `json:"reportCount"`
}

// RegionRow is one row of the per-Negeri monitoring table.
type RegionRow struct {
	StateName  string  `json:"stateName"`
	PPDSelesai int     `json:"ppdSelesai"`
	TotalPPDs  int     `json:"totalPPDs"`
	JPNSelesai int     `json:"jpnSelesai"`
	Progress   float64 `json:"progress"`
}

// ReportEventType names a committed report lifecycle transition.
type ReportEventType string

// Published lifecycle events.
const (
	EventReportSubmitted         ReportEventType = "report.submitted"
	EventReportEdited            ReportEventType = "report.edited"
	EventReportApproved          ReportEventType = "report.approved"
	EventReportRevisionRequested ReportEventType = "report.revision_requested"
)

// ReportEvent is the payload published after a committed transition.
type ReportEvent struct {
	Type         ReportEventType `json:"type"`
	ReportID     string          `json:"reportId"`
	InitiativeID string          `json:"initiativeId"`
	Period       string          `json:"period"`
	SubmittedBy  string          `json:"submittedBy"`
	ActorID      string          `json:"actorId"`
	Status       ReportStatus    `json:"status"`
	Note         string          `json:"note,omitempty"`
	Version      int             `json:"version"`
}
