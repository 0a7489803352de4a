package services

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/stemreport/apiserver/internal/access"
	"github.com/stemreport/apiserver/types"
)

// PlanningRepository defines persistence operations for the planning tree.
type PlanningRepository interface {
	ListPolicies(ctx context.Context) ([]types.Policy, error)
	GetPolicy(ctx context.Context, id string) (types.Policy, error)
	CreatePolicy(ctx context.Context, p types.Policy) (types.Policy, error)
	UpdatePolicy(ctx context.Context, p types.Policy) (types.Policy, error)

	ListTeras(ctx context.Context, policyID string) ([]types.Teras, error)
	GetTeras(ctx context.Context, id string) (types.Teras, error)
	CreateTeras(ctx context.Context, t types.Teras) (types.Teras, error)
	UpdateTeras(ctx context.Context, t types.Teras) (types.Teras, error)

	ListStrategies(ctx context.Context, terasID string) ([]types.Strategy, error)
	GetStrategy(ctx context.Context, id string) (types.Strategy, error)
	CreateStrategy(ctx context.Context, s types.Strategy) (types.Strategy, error)
	UpdateStrategy(ctx context.Context, s types.Strategy) (types.Strategy, error)

	ListInitiatives(ctx context.Context, strategyID string) ([]types.Initiative, error)
	GetInitiative(ctx context.Context, id string) (types.Initiative, error)
	CreateInitiative(ctx context.Context, in types.Initiative) (types.Initiative, error)
	UpdateInitiative(ctx context.Context, in types.Initiative) (types.Initiative, error)
}

// RegionRepository defines persistence operations for Negeri reference data.
type RegionRepository interface {
	List(ctx context.Context) ([]types.Region, error)
	Get(ctx context.Context, stateName string) (types.Region, error)
	Upsert(ctx context.Context, region types.Region) (types.Region, error)
}

// NodeInput names a Policy, Teras or Strategy.
type NodeInput struct {
	Name   string `json:"name" validate:"required,max=200"`
	Region string `json:"region" validate:"max=100"`
}

// InitiativeInput describes an Initiative and its KPI.
type InitiativeInput struct {
	Name   string  `json:"name" validate:"required,max=200"`
	Region string  `json:"region" validate:"max=100"`
	Target float64 `json:"target" validate:"gte=0"`
	Unit   string  `json:"unit" validate:"max=50"`
}

// RegionInput lists the PPD districts of a Negeri.
type RegionInput struct {
	PPDs []string `json:"ppds" validate:"dive,required,max=100"`
}

// PlanningService encapsulates planning tree use-cases. Reads are open to
// every authenticated caller, writes require managePlanningTree.
type PlanningService struct {
	repo    PlanningRepository
	regions RegionRepository
	logger  zerolog.Logger
}

func NewPlanningService(repo PlanningRepository, regions RegionRepository, logger zerolog.Logger) *PlanningService {
	return &PlanningService{repo: repo, regions: regions, logger: logger}
}

func (s *PlanningService) authorize(actor types.Principal) error {
	if !access.Allowed(actor.Role, access.ManagePlanningTree) {
		return ErrUnauthorized
	}
	return nil
}

func (s *PlanningService) audit(actor types.Principal, level, id, action string) {
	s.logger.Info().
		Str("actor", actor.UserID).
		Str("level", level).
		Str("id", id).
		Msg(action)
}

func normalizeNode(input NodeInput) (NodeInput, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Region = strings.TrimSpace(input.Region)
	return input, validateStruct(input)
}

// Policies

func (s *PlanningService) ListPolicies(ctx context.Context) ([]types.Policy, error) {
	return s.repo.ListPolicies(ctx)
}

func (s *PlanningService) GetPolicy(ctx context.Context, id string) (types.Policy, error) {
	return s.repo.GetPolicy(ctx, id)
}

func (s *PlanningService) CreatePolicy(ctx context.Context, actor types.Principal, input NodeInput) (types.Policy, error) {
	if err := s.authorize(actor); err != nil {
		return types.Policy{}, err
	}
	input, err := normalizeNode(input)
	if err != nil {
		return types.Policy{}, err
	}
	p, err := s.repo.CreatePolicy(ctx, types.Policy{Name: input.Name, Region: input.Region})
	if err != nil {
		return types.Policy{}, err
	}
	s.audit(actor, "policy", p.ID, "planning node created")
	return p, nil
}

func (s *PlanningService) UpdatePolicy(ctx context.Context, actor types.Principal, id string, input NodeInput) (types.Policy, error) {
	if err := s.authorize(actor); err != nil {
		return types.Policy{}, err
	}
	input, err := normalizeNode(input)
	if err != nil {
		return types.Policy{}, err
	}
	p, err := s.repo.UpdatePolicy(ctx, types.Policy{ID: id, Name: input.Name, Region: input.Region})
	if err != nil {
		return types.Policy{}, err
	}
	s.audit(actor, "policy", p.ID, "planning node updated")
	return p, nil
}

// Teras

// ListTeras lists the teras of a policy. The policy must exist.
func (s *PlanningService) ListTeras(ctx context.Context, policyID string) ([]types.Teras, error) {
	if _, err := s.repo.GetPolicy(ctx, policyID); err != nil {
		return nil, err
	}
	return s.repo.ListTeras(ctx, policyID)
}

func (s *PlanningService) GetTeras(ctx context.Context, id string) (types.Teras, error) {
	return s.repo.GetTeras(ctx, id)
}

func (s *PlanningService) CreateTeras(ctx context.Context, actor types.Principal, policyID string, input NodeInput) (types.Teras, error) {
	if err := s.authorize(actor); err != nil {
		return types.Teras{}, err
	}
	input, err := normalizeNode(input)
	if err != nil {
		return types.Teras{}, err
	}
	if _, err := s.repo.GetPolicy(ctx, policyID); err != nil {
		return types.Teras{}, err
	}
	t, err := s.repo.CreateTeras(ctx, types.Teras{PolicyID: policyID, Name: input.Name, Region: input.Region})
	if err != nil {
		return types.Teras{}, err
	}
	s.audit(actor, "teras", t.ID, "planning node created")
	return t, nil
}

func (s *PlanningService) UpdateTeras(ctx context.Context, actor types.Principal, id string, input NodeInput) (types.Teras, error) {
	if err := s.authorize(actor); err != nil {
		return types.Teras{}, err
	}
	input, err := normalizeNode(input)
	if err != nil {
		return types.Teras{}, err
	}
	t, err := s.repo.UpdateTeras(ctx, types.Teras{ID: id, Name: input.Name, Region: input.Region})
	if err != nil {
		return types.Teras{}, err
	}
	s.audit(actor, "teras", t.ID, "planning node updated")
	return t, nil
}

// Strategies

// ListStrategies lists the strategies of a teras. The teras must exist.
func (s *PlanningService) ListStrategies(ctx context.Context, terasID string) ([]types.Strategy, error) {
	if _, err := s.repo.GetTeras(ctx, terasID); err != nil {
		return nil, err
	}
	return s.repo.ListStrategies(ctx, terasID)
}

func (s *PlanningService) GetStrategy(ctx context.Context, id string) (types.Strategy, error) {
	return s.repo.GetStrategy(ctx, id)
}

func (s *PlanningService) CreateStrategy(ctx context.Context, actor types.Principal, terasID string, input NodeInput) (types.Strategy, error) {
	if err := s.authorize(actor); err != nil {
		return types.Strategy{}, err
	}
	input, err := normalizeNode(input)
	if err != nil {
		return types.Strategy{}, err
	}
	if _, err := s.repo.GetTeras(ctx, terasID); err != nil {
		return types.Strategy{}, err
	}
	st, err := s.repo.CreateStrategy(ctx, types.Strategy{TerasID: terasID, Name: input.Name, Region: input.Region})
	if err != nil {
		return types.Strategy{}, err
	}
	s.audit(actor, "strategy", st.ID, "planning node created")
	return st, nil
}

func (s *PlanningService) UpdateStrategy(ctx context.Context, actor types.Principal, id string, input NodeInput) (types.Strategy, error) {
	if err := s.authorize(actor); err != nil {
		return types.Strategy{}, err
	}
	input, err := normalizeNode(input)
	if err != nil {
		return types.Strategy{}, err
	}
	st, err := s.repo.UpdateStrategy(ctx, types.Strategy{ID: id, Name: input.Name, Region: input.Region})
	if err != nil {
		return types.Strategy{}, err
	}
	s.audit(actor, "strategy", st.ID, "planning node updated")
	return st, nil
}

// Initiatives

// ListInitiatives lists the initiatives of a strategy. The strategy must exist.
func (s *PlanningService) ListInitiatives(ctx context.Context, strategyID string) ([]types.Initiative, error) {
	if _, err := s.repo.GetStrategy(ctx, strategyID); err != nil {
		return nil, err
	}
	return s.repo.ListInitiatives(ctx, strategyID)
}

func (s *PlanningService) GetInitiative(ctx context.Context, id string) (types.Initiative, error) {
	return s.repo.GetInitiative(ctx, id)
}

func normalizeInitiative(input InitiativeInput) (InitiativeInput, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Region = strings.TrimSpace(input.Region)
	input.Unit = strings.TrimSpace(input.Unit)
	return input, validateStruct(input)
}

// CreateInitiative adds an initiative with a zero current KPI value.
func (s *PlanningService) CreateInitiative(ctx context.Context, actor types.Principal, strategyID string, input InitiativeInput) (types.Initiative, error) {
	if err := s.authorize(actor); err != nil {
		return types.Initiative{}, err
	}
	input, err := normalizeInitiative(input)
	if err != nil {
		return types.Initiative{}, err
	}
	if _, err := s.repo.GetStrategy(ctx, strategyID); err != nil {
		return types.Initiative{}, err
	}
	in, err := s.repo.CreateInitiative(ctx, types.Initiative{
		StrategyID: strategyID,
		Name:       input.Name,
		Region:     input.Region,
		KPI:        types.KPI{Target: input.Target, Unit: input.Unit},
	})
	if err != nil {
		return types.Initiative{}, err
	}
	s.audit(actor, "initiative", in.ID, "planning node created")
	return in, nil
}

// UpdateInitiative changes the name, region and KPI target and unit. The
// current KPI value is left untouched.
func (s *PlanningService) UpdateInitiative(ctx context.Context, actor types.Principal, id string, input InitiativeInput) (types.Initiative, error) {
	if err := s.authorize(actor); err != nil {
		return types.Initiative{}, err
	}
	input, err := normalizeInitiative(input)
	if err != nil {
		return types.Initiative{}, err
	}
	in, err := s.repo.UpdateInitiative(ctx, types.Initiative{
		ID:     id,
		Name:   input.Name,
		Region: input.Region,
		KPI:    types.KPI{Target: input.Target, Unit: input.Unit},
	})
	if err != nil {
		return types.Initiative{}, err
	}
	s.audit(actor, "initiative", in.ID, "planning node updated")
	return in, nil
}

// ResolveChain loads an initiative together with its strategy, teras and
// policy. Any missing link yields ErrNotFound.
func (s *PlanningService) ResolveChain(ctx context.Context, initiativeID string) (types.InitiativeChain, error) {
	return resolveChain(ctx, s.repo, initiativeID)
}

func resolveChain(ctx context.Context, repo PlanningRepository, initiativeID string) (types.InitiativeChain, error) {
	var chain types.InitiativeChain
	var err error
	if chain.Initiative, err = repo.GetInitiative(ctx, initiativeID); err != nil {
		return types.InitiativeChain{}, err
	}
	if chain.Strategy, err = repo.GetStrategy(ctx, chain.Initiative.StrategyID); err != nil {
		return types.InitiativeChain{}, err
	}
	if chain.Teras, err = repo.GetTeras(ctx, chain.Strategy.TerasID); err != nil {
		return types.InitiativeChain{}, err
	}
	if chain.Policy, err = repo.GetPolicy(ctx, chain.Teras.PolicyID); err != nil {
		return types.InitiativeChain{}, err
	}
	return chain, nil
}

// Regions

func (s *PlanningService) ListRegions(ctx context.Context) ([]types.Region, error) {
	return s.regions.List(ctx)
}

// UpsertRegion creates the Negeri or replaces its PPD list.
func (s *PlanningService) UpsertRegion(ctx context.Context, actor types.Principal, stateName string, input RegionInput) (types.Region, error) {
	if err := s.authorize(actor); err != nil {
		return types.Region{}, err
	}
	stateName = strings.TrimSpace(stateName)
	if stateName == "" {
		return types.Region{}, validationf("stateName is required")
	}
	ppds := make([]string, 0, len(input.PPDs))
	seen := make(map[string]bool, len(input.PPDs))
	for _, ppd := range input.PPDs {
		ppd = strings.TrimSpace(ppd)
		if seen[ppd] {
			continue
		}
		seen[ppd] = true
		ppds = append(ppds, ppd)
	}
	input.PPDs = ppds
	if err := validateStruct(input); err != nil {
		return types.Region{}, err
	}

	region, err := s.regions.Upsert(ctx, types.Region{StateName: stateName, PPDs: input.PPDs})
	if err != nil {
		return types.Region{}, err
	}
	s.audit(actor, "region", region.StateName, "region upserted")
	return region, nil
}
