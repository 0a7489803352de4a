package access

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stemreport/apiserver/types"
)

func TestCapabilityMatrix(t *testing.T) {
	tests := []struct {
		role    types.Role
		allowed []Action
	}{
		{types.RoleAdmin, Actions},
		{types.RoleNegeri, []Action{SubmitReport, EditReport, ViewOwnReports, ViewAllReports, ApproveReport}},
		{types.RoleBahagian, []Action{SubmitReport, EditReport, ViewOwnReports, ViewAllReports, ApproveReport}},
		{types.RolePPD, []Action{SubmitReport, EditReport, ViewOwnReports}},
		{types.RoleUser, []Action{SubmitReport, EditReport, ViewOwnReports}},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			assert.Equal(t, tt.allowed, CapabilitiesFor(tt.role).Actions)
		})
	}
}

func TestReportersNeverApprove(t *testing.T) {
	relations := []Relation{RelationNone, RelationOwner, RelationInScope, RelationOutOfScope}
	for _, role := range []types.Role{types.RolePPD, types.RoleUser} {
		for _, relation := range relations {
			assert.Equal(t, Deny, Can(role, ApproveReport, relation), "role %s relation %d", role, relation)
		}
	}
}

func TestEditRequiresOwnershipUnlessAdmin(t *testing.T) {
	assert.Equal(t, Allow, Can(types.RolePPD, EditReport, RelationOwner))
	assert.Equal(t, Deny, Can(types.RolePPD, EditReport, RelationInScope))
	assert.Equal(t, Deny, Can(types.RoleNegeri, EditReport, RelationOutOfScope))
	assert.Equal(t, Allow, Can(types.RoleAdmin, EditReport, RelationOutOfScope))
}

func TestScopedApproval(t *testing.T) {
	assert.Equal(t, Allow, Can(types.RoleNegeri, ApproveReport, ScopeRelation("Selangor", "Selangor")))
	assert.Equal(t, Deny, Can(types.RoleNegeri, ApproveReport, ScopeRelation("Selangor", "Johor")))
	assert.Equal(t, Allow, Can(types.RoleBahagian, ApproveReport, ScopeRelation("", "Johor")))
	assert.Equal(t, Allow, Can(types.RoleAdmin, ApproveReport, RelationOutOfScope))
}

func TestUnknownRoleIsDenied(t *testing.T) {
	for _, action := range Actions {
		assert.Equal(t, Deny, Can(types.Role("Guest"), action, RelationOwner))
	}
}

func TestCapabilitiesRoutes(t *testing.T) {
	routes := CapabilitiesFor(types.RolePPD).Routes
	paths := make([]string, 0, len(routes))
	for _, r := range routes {
		paths = append(paths, r.Path)
	}
	assert.Equal(t, []string{"/reports/new", "/reports/mine"}, paths)

	assert.Len(t, CapabilitiesFor(types.RoleAdmin).Routes, len(routes)+6)
}
