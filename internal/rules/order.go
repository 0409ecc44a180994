package rules

import "sort"

// SortForExecution orders a batch so less important rules act first and
// more important rules can override their effects, with force_in
// resolving before other action types at equal importance and creation
// time as the final tie-break.
func SortForExecution(list []Rule) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.Importance != b.Importance {
			return a.Importance < b.Importance
		}
		aForce := a.ActionKind() == ActionForceIn
		bForce := b.ActionKind() == ActionForceIn
		if aForce != bForce {
			return aForce
		}
		return a.Created.Before(b.Created)
	})
}
