package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stemreport/apiserver/internal/services"
	"github.com/stemreport/apiserver/types"
)

// UserHandler provides account management endpoints.
type UserHandler struct {
	userService   *services.UserService
	reportService *services.ReportService
}

func NewUserHandler(userService *services.UserService, reportService *services.ReportService) *UserHandler {
	return &UserHandler{
		userService:   userService,
		reportService: reportService,
	}
}

// UserRouter registers /users routes.
func UserRouter(r chi.Router, handler *UserHandler) {
	r.Get("/", handler.ListUsers)
	r.Post("/", handler.CreateUser)
	r.Route("/{id}", func(r chi.Router) {
		r.Put("/", handler.UpdateUser)
		r.Get("/reports", handler.ListUserReports)
	})
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	users, err := h.userService.List(r.Context(), principal)
	if err != nil {
		writeServiceError(w, r, err, "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	principal, input, ok := decodeWithPrincipal[services.NewUser](w, r)
	if !ok {
		return
	}
	user, err := h.userService.Create(r.Context(), principal, input)
	if err != nil {
		writeServiceError(w, r, err, "failed to create user")
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	principal, input, ok := decodeWithPrincipal[services.UserAssignment](w, r)
	if !ok {
		return
	}
	user, err := h.userService.UpdateAssignment(r.Context(), principal, chi.URLParam(r, "id"), input)
	if err != nil {
		writeServiceError(w, r, err, "failed to update user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// ListUserReports lists the reports submitted by one user. Callers see
// their own reports, reviewers the reports of users in their scope.
func (h *UserHandler) ListUserReports(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	userID := chi.URLParam(r, "id")
	filter := reportFilterFromQuery(r)
	var items []types.Report
	var total int
	if userID == principal.UserID {
		items, total, err = h.reportService.ListOwn(r.Context(), principal, filter, offset, limit)
	} else {
		filter.SubmittedBy = userID
		items, total, err = h.reportService.ListAll(r.Context(), principal, filter, offset, limit)
	}
	if err != nil {
		writeServiceError(w, r, err, "failed to list reports")
		return
	}
	writeJSON(w, http.StatusOK, ListResponse[types.Report]{
		Items: items,
		Page:  page,
		Limit: limit,
		Total: total,
	})
}
