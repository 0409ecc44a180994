package translate

import (
	"strings"

	"butler/internal/rules"
)

// DefaultMinServicesToSplit is the group size at which a placement
// query is split into sequential per-service searches.
const DefaultMinServicesToSplit = 3

func isFileServicePredicate(p string) bool {
	return strings.HasPrefix(p, fileServiceInPrefix) || strings.HasPrefix(p, fileServiceNotInPrefix)
}

// PrepareSequentialSearches splits one oversized file-service OR group
// into separate full queries, one per service predicate, each carrying
// every other predicate from the original list. The query is returned
// unchanged when no group reaches minToSplit service predicates, or
// when more than one does.
func PrepareSequentialSearches(preds []rules.Predicate, minToSplit int) [][]rules.Predicate {
	if minToSplit <= 0 {
		minToSplit = DefaultMinServicesToSplit
	}

	splitIdx := -1
	for i, p := range preds {
		if !p.IsGroup() {
			continue
		}
		count := 0
		for _, alt := range p.Alternatives() {
			if isFileServicePredicate(alt) {
				count++
			}
		}
		if count < minToSplit {
			continue
		}
		if splitIdx != -1 {
			return [][]rules.Predicate{preds}
		}
		splitIdx = i
	}
	if splitIdx == -1 {
		return [][]rules.Predicate{preds}
	}

	base := make([]rules.Predicate, 0, len(preds))
	for i, p := range preds {
		if i != splitIdx {
			base = append(base, p)
		}
	}
	var services []string
	for _, alt := range preds[splitIdx].Alternatives() {
		if isFileServicePredicate(alt) {
			services = append(services, alt)
		} else {
			base = append(base, rules.Literal(alt))
		}
	}

	searches := make([][]rules.Predicate, 0, len(services))
	for _, svc := range services {
		query := make([]rules.Predicate, 0, len(base)+1)
		query = append(query, base...)
		query = append(query, rules.Literal(svc))
		searches = append(searches, query)
	}
	return searches
}
