package store

import (
	"errors"
	"time"
)

// ErrCorruptGovernance marks a governance row whose JSON columns no
// longer decode. Callers treat the file as untracked.
var ErrCorruptGovernance = errors.New("corrupt file governance state")

// GovernanceRecord tracks which rules have acted on a file and which
// priorities currently govern its placement and rating services.
type GovernanceRecord struct {
	FileHash              string         `json:"file_hash"`
	RulesApplied          []string       `json:"rules_in_application"`
	ForceInPriority       int            `json:"force_in_priority_governance"`
	Placement             []string       `json:"correct_placement"`
	RatingServicesTouched []string       `json:"affected_rating_services"`
	RatingPriority        map[string]int `json:"rating_priority_governance"`
	LastUpdated           time.Time      `json:"last_updated"`
}

// NewGovernanceRecord returns the default state for an untracked file.
// ForceInPriority starts at -1 so priority-zero rules can win.
func NewGovernanceRecord(fileHash string) *GovernanceRecord {
	return &GovernanceRecord{
		FileHash:              fileHash,
		RulesApplied:          []string{},
		ForceInPriority:       -1,
		Placement:             []string{},
		RatingServicesTouched: []string{},
		RatingPriority:        map[string]int{},
	}
}

// RatingPriorityFor returns the priority governing one rating service,
// -1 when no rule has won it yet.
func (g *GovernanceRecord) RatingPriorityFor(serviceKey string) int {
	if p, ok := g.RatingPriority[serviceKey]; ok {
		return p
	}
	return -1
}

// MarkRuleApplied adds a rule id to the applied set.
func (g *GovernanceRecord) MarkRuleApplied(ruleID string) {
	g.RulesApplied = appendUnique(g.RulesApplied, ruleID)
}

// TouchRatingService records that a rule now governs one rating service.
func (g *GovernanceRecord) TouchRatingService(serviceKey string, priority int) {
	g.RatingServicesTouched = appendUnique(g.RatingServicesTouched, serviceKey)
	if g.RatingPriority == nil {
		g.RatingPriority = map[string]int{}
	}
	g.RatingPriority[serviceKey] = priority
}

// AddPlacement unions destination services into the expected placement.
func (g *GovernanceRecord) AddPlacement(serviceKeys ...string) {
	for _, key := range serviceKeys {
		g.Placement = appendUnique(g.Placement, key)
	}
}

// ReplacePlacement makes the given services the only expected placement
// and records the priority that forced them.
func (g *GovernanceRecord) ReplacePlacement(serviceKeys []string, priority int) {
	g.Placement = append([]string{}, serviceKeys...)
	g.ForceInPriority = priority
}

func appendUnique(list []string, value string) []string {
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}

func removeValue(list []string, value string) []string {
	out := list[:0]
	for _, v := range list {
		if v != value {
			out = append(out, v)
		}
	}
	return out
}
