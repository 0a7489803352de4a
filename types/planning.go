package types

import "time"

// Policy is the root of a planning tree. It owns an ordered list of Teras.
type Policy struct {
	// ID is the opaque identifier of the policy.
	ID string `json:"id" db:"id"`

	// Name is the human-readable title of the policy.
	Name string `json:"name" db:"name"`

	// Region is an optional Negeri label inherited by every initiative
	// below this policy that does not carry its own.
	Region string `json:"region,omitempty" db:"region"`

	// TerasIDs is the ordered list of child Teras identifiers.
	TerasIDs []string `json:"terasIds" db:"-"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Teras is a strategic pillar grouping Strategies under a Policy.
type Teras struct {
	// ID is the opaque identifier of the teras.
	ID string `json:"id" db:"id"`

	// PolicyID is the non-owning back-reference to the parent policy.
	PolicyID string `json:"policyId" db:"policy_id"`

	// Name is the human-readable title of the teras.
	Name string `json:"name" db:"name"`

	// Region is an optional Negeri label, see Policy.Region.
	Region string `json:"region,omitempty" db:"region"`

	// Position orders the teras among its siblings.
	Position int `json:"position" db:"position"`

	// StrategyIDs is the ordered list of child Strategy identifiers.
	StrategyIDs []string `json:"strategyIds" db:"-"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Strategy groups Initiatives under a Teras.
type Strategy struct {
	// ID is the opaque identifier of the strategy.
	ID string `json:"id" db:"id"`

	// TerasID is the non-owning back-reference to the parent teras.
	TerasID string `json:"terasId" db:"teras_id"`

	// Name is the human-readable title of the strategy.
	Name string `json:"name" db:"name"`

	// Region is an optional Negeri label, see Policy.Region.
	Region string `json:"region,omitempty" db:"region"`

	// Position orders the strategy among its siblings.
	Position int `json:"position" db:"position"`

	// InitiativeIDs is the ordered list of child Initiative identifiers.
	InitiativeIDs []string `json:"initiativeIds" db:"-"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Initiative is a leaf of the planning tree against which reports are filed.
type Initiative struct {
	// ID is the opaque identifier of the initiative.
	ID string `json:"id" db:"id"`

	// StrategyID is the non-owning back-reference to the parent strategy.
	StrategyID string `json:"strategyId" db:"strategy_id"`

	// Name is the human-readable title of the initiative.
	Name string `json:"name" db:"name"`

	// Region is an optional Negeri label. When empty the label of the
	// nearest ancestor applies.
	Region string `json:"region,omitempty" db:"region"`

	// Position orders the initiative among its siblings.
	Position int `json:"position" db:"position"`

	// KPI is the indicator tracked for this initiative.
	KPI KPI `json:"kpi" db:"-"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// KPI is a key performance indicator tracked as a current value against a target.
type KPI struct {
	// CurrentValue is only changed by the approval of a report that
	// carries a KPI value.
	CurrentValue float64 `json:"currentValue" db:"kpi_current_value"`

	// Target must be non-negative. A zero target yields zero progress.
	Target float64 `json:"target" db:"kpi_target"`

	// Unit is a free-form label for the measured quantity.
	Unit string `json:"unit" db:"kpi_unit"`
}

// Progress returns the completion percentage in the range [0, 100].
func (k KPI) Progress() float64 {
	if k.Target <= 0 {
		return 0
	}
	ratio := k.CurrentValue / k.Target
	if ratio > 1 {
		ratio = 1
	}
	if ratio < 0 {
		ratio = 0
	}
	return ratio * 100
}

// InitiativeChain is an initiative with its fully resolved ancestor chain.
type InitiativeChain struct {
	Initiative Initiative `json:"initiative"`
	Strategy   Strategy   `json:"strategy"`
	Teras      Teras      `json:"teras"`
	Policy     Policy     `json:"policy"`
}

// EffectiveRegion returns the nearest non-empty region label walking from
// the initiative up to the policy.
func (c InitiativeChain) EffectiveRegion() string {
	for _, region := range []string{c.Initiative.Region, c.Strategy.Region, c.Teras.Region, c.Policy.Region} {
		if region != "" {
			return region
		}
	}
	return ""
}
