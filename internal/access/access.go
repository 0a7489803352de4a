// Package access holds the static capability table of the portal. The
// server consults it for every mutating operation; clients receive the same
// table to decide which routes to render, which is advisory only.
package access

import "github.com/stemreport/apiserver/types"

// Action is an operation subject to authorization.
type Action string

const (
	SubmitReport       Action = "submitReport"
	EditReport         Action = "editReport"
	ViewOwnReports     Action = "viewOwnReports"
	ViewAllReports     Action = "viewAllReports"
	ApproveReport      Action = "approveReport"
	ManageUsers        Action = "manageUsers"
	ManagePlanningTree Action = "managePlanningTree"
)

// Actions lists every action in a stable order.
var Actions = []Action{
	SubmitReport,
	EditReport,
	ViewOwnReports,
	ViewAllReports,
	ApproveReport,
	ManageUsers,
	ManagePlanningTree,
}

// Relation describes how the caller relates to the resource acted upon.
type Relation int

const (
	// RelationNone is used for actions without a specific resource.
	RelationNone Relation = iota
	// RelationOwner means the caller submitted the resource.
	RelationOwner
	// RelationInScope means the resource falls inside the caller's region.
	RelationInScope
	// RelationOutOfScope means the resource belongs to another region.
	RelationOutOfScope
)

// Decision is the outcome of a policy check.
type Decision bool

const (
	Allow Decision = true
	Deny  Decision = false
)

type grant struct {
	allowed bool
	// scoped grants hold only for RelationNone, RelationOwner and RelationInScope.
	scoped bool
	// ownerOnly grants hold only for RelationNone and RelationOwner.
	ownerOnly bool
}

var (
	open      = grant{allowed: true}
	scoped    = grant{allowed: true, scoped: true}
	ownerOnly = grant{allowed: true, ownerOnly: true}
)

var capabilities = map[types.Role]map[Action]grant{
	types.RoleAdmin: {
		SubmitReport:       open,
		EditReport:         open,
		ViewOwnReports:     open,
		ViewAllReports:     open,
		ApproveReport:      open,
		ManageUsers:        open,
		ManagePlanningTree: open,
	},
	types.RoleNegeri: {
		SubmitReport:   open,
		EditReport:     ownerOnly,
		ViewOwnReports: open,
		ViewAllReports: scoped,
		ApproveReport:  scoped,
	},
	types.RoleBahagian: {
		SubmitReport:   open,
		EditReport:     ownerOnly,
		ViewOwnReports: open,
		ViewAllReports: scoped,
		ApproveReport:  scoped,
	},
	types.RolePPD: {
		SubmitReport:   open,
		EditReport:     ownerOnly,
		ViewOwnReports: open,
	},
	types.RoleUser: {
		SubmitReport:   open,
		EditReport:     ownerOnly,
		ViewOwnReports: open,
	},
}

// Can decides whether role may perform action on a resource the caller
// stands in the given relation to.
func Can(role types.Role, action Action, relation Relation) Decision {
	g, ok := capabilities[role][action]
	if !ok || !g.allowed {
		return Deny
	}
	switch {
	case g.ownerOnly:
		return Decision(relation == RelationNone || relation == RelationOwner)
	case g.scoped:
		return Decision(relation != RelationOutOfScope)
	default:
		return Allow
	}
}

// Allowed reports whether role holds action at all, ignoring relation.
func Allowed(role types.Role, action Action) bool {
	return bool(Can(role, action, RelationNone))
}

// ScopeRelation resolves whether a resource owned by a user assigned to
// ownerState lies inside the scope of a reviewer assigned to reviewerState.
// Reviewers without a state are national.
func ScopeRelation(reviewerState, ownerState string) Relation {
	if reviewerState == "" || reviewerState == ownerState {
		return RelationInScope
	}
	return RelationOutOfScope
}

// Route is a client navigation entry gated by an action.
type Route struct {
	Path   string `json:"path"`
	Label  string `json:"label"`
	Action Action `json:"action"`
}

var routes = []Route{
	{Path: "/reports/new", Label: "Submit report", Action: SubmitReport},
	{Path: "/reports/mine", Label: "My reports", Action: ViewOwnReports},
	{Path: "/monitor/reports", Label: "Report monitoring", Action: ViewAllReports},
	{Path: "/monitor/initiatives", Label: "Initiative monitoring", Action: ViewAllReports},
	{Path: "/monitor/regions", Label: "Regional monitoring", Action: ViewAllReports},
	{Path: "/review", Label: "Review queue", Action: ApproveReport},
	{Path: "/admin/users", Label: "Users", Action: ManageUsers},
	{Path: "/admin/planning", Label: "Planning tree", Action: ManagePlanningTree},
}

// Capabilities is the advisory view of the table for one role.
type Capabilities struct {
	Role    types.Role `json:"role"`
	Actions []Action   `json:"actions"`
	Routes  []Route    `json:"routes"`
}

// CapabilitiesFor lists the actions and routes available to role.
func CapabilitiesFor(role types.Role) Capabilities {
	c := Capabilities{Role: role, Actions: []Action{}, Routes: []Route{}}
	for _, action := range Actions {
		if Allowed(role, action) {
			c.Actions = append(c.Actions, action)
		}
	}
	for _, route := range routes {
		if Allowed(role, route.Action) {
			c.Routes = append(c.Routes, route)
		}
	}
	return c
}
