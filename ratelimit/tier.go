package ratelimit

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Tier is a named rate-limit configuration tied to a caller's
// subscription level. Tiers are static configuration and are not
// mutated at runtime.
type Tier struct {
	// Name identifies the tier (e.g. "free", "pro").
	Name string `mapstructure:"name" validate:"required"`
	// MaxTokens is the bucket capacity.
	MaxTokens float64 `mapstructure:"max_tokens" validate:"gt=0"`
	// RefillPerSecond is the continuous refill rate.
	RefillPerSecond float64 `mapstructure:"refill_per_second" validate:"gt=0"`
	// CostPerRequest is the tokens debited per admitted request.
	CostPerRequest float64 `mapstructure:"cost_per_request" validate:"gt=0"`
}

// DefaultTiers returns the standard tier table. Capacity and refill rate
// increase monotonically from free to unlimited.
func DefaultTiers() []Tier {
	return []Tier{
		{Name: "free", MaxTokens: 20, RefillPerSecond: 0.333, CostPerRequest: 1},
		{Name: "starter", MaxTokens: 60, RefillPerSecond: 1, CostPerRequest: 1},
		{Name: "pro", MaxTokens: 300, RefillPerSecond: 5, CostPerRequest: 1},
		{Name: "business", MaxTokens: 1000, RefillPerSecond: 16.667, CostPerRequest: 1},
		{Name: "unlimited", MaxTokens: 1e9, RefillPerSecond: 1e6, CostPerRequest: 1},
	}
}

// ValidateTiers checks a tier table: every tier well-formed, names unique,
// and capacity/refill monotonically non-decreasing in table order.
func ValidateTiers(tiers []Tier) error {
	if len(tiers) == 0 {
		return fmt.Errorf("ratelimit: at least one tier is required")
	}

	v := validator.New()
	seen := make(map[string]bool, len(tiers))
	for i, tier := range tiers {
		if err := v.Struct(tier); err != nil {
			return fmt.Errorf("ratelimit: tier %q invalid: %w", tier.Name, err)
		}
		if seen[tier.Name] {
			return fmt.Errorf("ratelimit: duplicate tier name %q", tier.Name)
		}
		seen[tier.Name] = true

		if i > 0 {
			prev := tiers[i-1]
			if tier.MaxTokens < prev.MaxTokens || tier.RefillPerSecond < prev.RefillPerSecond {
				return fmt.Errorf("ratelimit: tier %q must be at least as permissive as %q", tier.Name, prev.Name)
			}
		}
	}
	return nil
}

// mostRestrictive returns the tier with the smallest capacity. It is the
// fallback for unknown tier names.
func mostRestrictive(tiers []Tier) Tier {
	min := tiers[0]
	for _, t := range tiers[1:] {
		if t.MaxTokens < min.MaxTokens {
			min = t
		}
	}
	return min
}
