package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stemreport/apiserver/internal/services"
	"github.com/stemreport/apiserver/types"
)

// PlanningHandler provides HTTP handlers for the planning tree and the
// Negeri reference data.
type PlanningHandler struct {
	planningService *services.PlanningService
	reportService   *services.ReportService
}

func NewPlanningHandler(planningService *services.PlanningService, reportService *services.ReportService) *PlanningHandler {
	return &PlanningHandler{
		planningService: planningService,
		reportService:   reportService,
	}
}

// PolicyRouter registers /policies routes.
func PolicyRouter(r chi.Router, handler *PlanningHandler) {
	r.Get("/", handler.ListPolicies)
	r.Post("/", handler.CreatePolicy)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", handler.GetPolicy)
		r.Put("/", handler.UpdatePolicy)
		r.Get("/children", handler.ListTeras)
		r.Post("/children", handler.CreateTeras)
	})
}

// TerasRouter registers /teras routes.
func TerasRouter(r chi.Router, handler *PlanningHandler) {
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", handler.GetTeras)
		r.Put("/", handler.UpdateTeras)
		r.Get("/children", handler.ListStrategies)
		r.Post("/children", handler.CreateStrategy)
	})
}

// StrategyRouter registers /strategies routes.
func StrategyRouter(r chi.Router, handler *PlanningHandler) {
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", handler.GetStrategy)
		r.Put("/", handler.UpdateStrategy)
		r.Get("/children", handler.ListInitiatives)
		r.Post("/children", handler.CreateInitiative)
	})
}

// InitiativeRouter registers /initiatives routes.
func InitiativeRouter(r chi.Router, handler *PlanningHandler) {
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", handler.GetInitiative)
		r.Put("/", handler.UpdateInitiative)
		r.Get("/chain", handler.ResolveChain)
		r.Get("/reports", handler.ListInitiativeReports)
	})
}

// RegionRouter registers /regions routes.
func RegionRouter(r chi.Router, handler *PlanningHandler) {
	r.Get("/", handler.ListRegions)
	r.Put("/{stateName}", handler.UpsertRegion)
}

func (h *PlanningHandler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := h.planningService.ListPolicies(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "failed to list policies")
		return
	}
	writeJSON(w, http.StatusOK, policies)
}

func (h *PlanningHandler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	policy, err := h.planningService.GetPolicy(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err, "failed to fetch policy")
		return
	}
	writeJSON(w, http.StatusOK, policy)
}

func (h *PlanningHandler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	principal, input, ok := decodeWithPrincipal[services.NodeInput](w, r)
	if !ok {
		return
	}
	policy, err := h.planningService.CreatePolicy(r.Context(), principal, input)
	if err != nil {
		writeServiceError(w, r, err, "failed to create policy")
		return
	}
	writeJSON(w, http.StatusCreated, policy)
}

func (h *PlanningHandler) UpdatePolicy(w http.ResponseWriter, r *http.Request) {
	principal, input, ok := decodeWithPrincipal[services.NodeInput](w, r)
	if !ok {
		return
	}
	policy, err := h.planningService.UpdatePolicy(r.Context(), principal, chi.URLParam(r, "id"), input)
	if err != nil {
		writeServiceError(w, r, err, "failed to update policy")
		return
	}
	writeJSON(w, http.StatusOK, policy)
}

func (h *PlanningHandler) ListTeras(w http.ResponseWriter, r *http.Request) {
	teras, err := h.planningService.ListTeras(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err, "failed to list teras")
		return
	}
	writeJSON(w, http.StatusOK, teras)
}

func (h *PlanningHandler) GetTeras(w http.ResponseWriter, r *http.Request) {
	teras, err := h.planningService.GetTeras(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err, "failed to fetch teras")
		return
	}
	writeJSON(w, http.StatusOK, teras)
}

func (h *PlanningHandler) CreateTeras(w http.ResponseWriter, r *http.Request) {
	principal, input, ok := decodeWithPrincipal[services.NodeInput](w, r)
	if !ok {
		return
	}
	teras, err := h.planningService.CreateTeras(r.Context(), principal, chi.URLParam(r, "id"), input)
	if err != nil {
		writeServiceError(w, r, err, "failed to create teras")
		return
	}
	writeJSON(w, http.StatusCreated, teras)
}

func (h *PlanningHandler) UpdateTeras(w http.ResponseWriter, r *http.Request) {
	principal, input, ok := decodeWithPrincipal[services.NodeInput](w, r)
	if !ok {
		return
	}
	teras, err := h.planningService.UpdateTeras(r.Context(), principal, chi.URLParam(r, "id"), input)
	if err != nil {
		writeServiceError(w, r, err, "failed to update teras")
		return
	}
	writeJSON(w, http.StatusOK, teras)
}

func (h *PlanningHandler) ListStrategies(w http.ResponseWriter, r *http.Request) {
	strategies, err := h.planningService.ListStrategies(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err, "failed to list strategies")
		return
	}
	writeJSON(w, http.StatusOK, strategies)
}

func (h *PlanningHandler) GetStrategy(w http.ResponseWriter, r *http.Request) {
	strategy, err := h.planningService.GetStrategy(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err, "failed to fetch strategy")
		return
	}
	writeJSON(w, http.StatusOK, strategy)
}

func (h *PlanningHandler) CreateStrategy(w http.ResponseWriter, r *http.Request) {
	principal, input, ok := decodeWithPrincipal[services.NodeInput](w, r)
	if !ok {
		return
	}
	strategy, err := h.planningService.CreateStrategy(r.Context(), principal, chi.URLParam(r, "id"), input)
	if err != nil {
		writeServiceError(w, r, err, "failed to create strategy")
		return
	}
	writeJSON(w, http.StatusCreated, strategy)
}

func (h *PlanningHandler) UpdateStrategy(w http.ResponseWriter, r *http.Request) {
	principal, input, ok := decodeWithPrincipal[services.NodeInput](w, r)
	if !ok {
		return
	}
	strategy, err := h.planningService.UpdateStrategy(r.Context(), principal, chi.URLParam(r, "id"), input)
	if err != nil {
		writeServiceError(w, r, err, "failed to update strategy")
		return
	}
	writeJSON(w, http.StatusOK, strategy)
}

func (h *PlanningHandler) ListInitiatives(w http.ResponseWriter, r *http.Request) {
	initiatives, err := h.planningService.ListInitiatives(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err, "failed to list initiatives")
		return
	}
	writeJSON(w, http.StatusOK, initiatives)
}

func (h *PlanningHandler) GetInitiative(w http.ResponseWriter, r *http.Request) {
	initiative, err := h.planningService.GetInitiative(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err, "failed to fetch initiative")
		return
	}
	writeJSON(w, http.StatusOK, initiative)
}

func (h *PlanningHandler) CreateInitiative(w http.ResponseWriter, r *http.Request) {
	principal, input, ok := decodeWithPrincipal[services.InitiativeInput](w, r)
	if !ok {
		return
	}
	initiative, err := h.planningService.CreateInitiative(r.Context(), principal, chi.URLParam(r, "id"), input)
	if err != nil {
		writeServiceError(w, r, err, "failed to create initiative")
		return
	}
	writeJSON(w, http.StatusCreated, initiative)
}

func (h *PlanningHandler) UpdateInitiative(w http.ResponseWriter, r *http.Request) {
	principal, input, ok := decodeWithPrincipal[services.InitiativeInput](w, r)
	if !ok {
		return
	}
	initiative, err := h.planningService.UpdateInitiative(r.Context(), principal, chi.URLParam(r, "id"), input)
	if err != nil {
		writeServiceError(w, r, err, "failed to update initiative")
		return
	}
	writeJSON(w, http.StatusOK, initiative)
}

// ResolveChain returns the initiative with its strategy, teras and policy.
func (h *PlanningHandler) ResolveChain(w http.ResponseWriter, r *http.Request) {
	chain, err := h.planningService.ResolveChain(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err, "failed to resolve initiative")
		return
	}
	writeJSON(w, http.StatusOK, chain)
}

// ListInitiativeReports lists the reports of one initiative within the
// caller's review scope.
func (h *PlanningHandler) ListInitiativeReports(w http.ResponseWriter, r *http.Request) {
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

	initiativeID := chi.URLParam(r, "id")
	if _, err := h.planningService.GetInitiative(r.Context(), initiativeID); err != nil {
		writeServiceError(w, r, err, "failed to fetch initiative")
		return
	}

	filter := reportFilterFromQuery(r)
	filter.InitiativeID = initiativeID
	items, total, err := h.reportService.ListAll(r.Context(), principal, filter, offset, limit)
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

func (h *PlanningHandler) ListRegions(w http.ResponseWriter, r *http.Request) {
	regions, err := h.planningService.ListRegions(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "failed to list regions")
		return
	}
	writeJSON(w, http.StatusOK, regions)
}

func (h *PlanningHandler) UpsertRegion(w http.ResponseWriter, r *http.Request) {
	principal, input, ok := decodeWithPrincipal[services.RegionInput](w, r)
	if !ok {
		return
	}
	region, err := h.planningService.UpsertRegion(r.Context(), principal, chi.URLParam(r, "stateName"), input)
	if err != nil {
		writeServiceError(w, r, err, "failed to save region")
		return
	}
	writeJSON(w, http.StatusOK, region)
}

// decodeWithPrincipal reads the caller and a JSON body, writing the error
// response itself when either is missing.
func decodeWithPrincipal[T any](w http.ResponseWriter, r *http.Request) (types.Principal, T, bool) {
	var input T
	principal, err := principalFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return types.Principal{}, input, false
	}
	if err := decodeJSON(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return types.Principal{}, input, false
	}
	return principal, input, true
}
