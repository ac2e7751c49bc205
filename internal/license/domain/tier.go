package domain

import "strings"

// Tier is a named entitlement level.
type Tier string

const (
	TierFree                 Tier = "FREE"
	TierPatreonSupporter     Tier = "PATREON_SUPPORTER"
	TierPatreonPlus          Tier = "PATREON_PLUS"
	TierPatreonPro           Tier = "PATREON_PRO"
	TierPatreonUltimate      Tier = "PATREON_ULTIMATE"
	TierCommercialStarter    Tier = "COMMERCIAL_STARTER"
	TierCommercialPro        Tier = "COMMERCIAL_PRO"
	TierCommercialEnterprise Tier = "COMMERCIAL_ENTERPRISE"
)

// Limits are the entitlements carried by a tier.
type Limits struct {
	MaxNodes          int
	MaxConcurrentJobs int
}

// FallbackLimits is the static entitlement table used when no pricing
// record exists for a tier.
var FallbackLimits = map[Tier]Limits{
	TierFree:                 {MaxNodes: 1, MaxConcurrentJobs: 2},
	TierPatreonSupporter:     {MaxNodes: 2, MaxConcurrentJobs: 3},
	TierPatreonPlus:          {MaxNodes: 3, MaxConcurrentJobs: 5},
	TierPatreonPro:           {MaxNodes: 5, MaxConcurrentJobs: 10},
	TierPatreonUltimate:      {MaxNodes: 10, MaxConcurrentJobs: 20},
	TierCommercialStarter:    {MaxNodes: 15, MaxConcurrentJobs: 30},
	TierCommercialPro:        {MaxNodes: 50, MaxConcurrentJobs: 100},
	TierCommercialEnterprise: {MaxNodes: 999, MaxConcurrentJobs: 999},
}

// ParseTier validates raw against the known tiers.
func ParseTier(raw string) (Tier, error) {
	tier := Tier(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := FallbackLimits[tier]; !ok {
		return "", ErrUnknownTier
	}
	return tier, nil
}

// Prefix returns the 3-character uppercase token prefix for the tier.
func (t Tier) Prefix() string {
	name := strings.ToUpper(string(t))
	if len(name) < 3 {
		return name
	}
	return name[:3]
}
