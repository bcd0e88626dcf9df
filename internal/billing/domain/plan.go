package domain

import (
	"fmt"
	"strings"
)

// Plan is a subscription tier.
type Plan string

const (
	PlanFree    Plan = "free"
	PlanStarter Plan = "starter"
	PlanPro     Plan = "pro"
)

// Valid reports whether p is a known plan.
func (p Plan) Valid() bool {
	switch p {
	case PlanFree, PlanStarter, PlanPro:
		return true
	}
	return false
}

// ParsePlan parses a plan name case-insensitively.
func ParsePlan(s string) (Plan, error) {
	p := Plan(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownPlan, s)
	}
	return p, nil
}

// PlanInfo is the catalog entry for a plan.
type PlanInfo struct {
	Plan              Plan                  `json:"plan"`
	Name              string                `json:"name"`
	MonthlyPriceUSD   int                   `json:"monthly_price_usd"`
	StemExportAllowed bool                  `json:"stem_export_allowed"`
	Limits            map[EventKind]float64 `json:"limits"`
}

var limits = map[Plan]map[EventKind]float64{
	PlanFree:    {KindGeneration: 10, KindExport: 5, KindAudioMinutes: 15},
	PlanStarter: {KindGeneration: 200, KindExport: 50, KindAudioMinutes: 300},
	PlanPro:     {KindGeneration: 2000, KindExport: 500, KindAudioMinutes: 5000},
}

var catalog = []PlanInfo{
	{Plan: PlanFree, Name: "Free", MonthlyPriceUSD: 0, StemExportAllowed: false},
	{Plan: PlanStarter, Name: "Starter", MonthlyPriceUSD: 29, StemExportAllowed: true},
	{Plan: PlanPro, Name: "Pro", MonthlyPriceUSD: 49, StemExportAllowed: true},
}

// Limit returns the monthly quota of kind under plan. Unknown plans get
// the free quota.
func Limit(plan Plan, kind EventKind) float64 {
	byKind, ok := limits[plan]
	if !ok {
		byKind = limits[PlanFree]
	}
	return byKind[kind]
}

// Catalog returns every plan in ascending price order.
func Catalog() []PlanInfo {
	out := make([]PlanInfo, len(catalog))
	for i, info := range catalog {
		info.Limits = make(map[EventKind]float64, len(limits[info.Plan]))
		for k, v := range limits[info.Plan] {
			info.Limits[k] = v
		}
		out[i] = info
	}
	return out
}

// LookupPlan returns the catalog entry for p.
func LookupPlan(p Plan) (PlanInfo, bool) {
	for _, info := range Catalog() {
		if info.Plan == p {
			return info, true
		}
	}
	return PlanInfo{}, false
}
