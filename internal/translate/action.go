package translate

import (
	"fmt"
	"strings"

	"butler/internal/rules"
	"butler/internal/services/hydrus"
)

// addActionPredicates appends the implicit predicates an action carries
// so a rule never re-targets files it would be a no-op on.
func (t *translator) addActionPredicates(action rules.Action, deepCheck bool) {
	switch a := action.(type) {
	case nil:
	case rules.AddToAction:
		t.addExclusions(rules.ActionAddTo, a.DestinationServiceKeys.Keys())
	case rules.ForceInAction:
		if deepCheck {
			t.addPlacementCheckPredicates()
			return
		}
		keys := a.DestinationServiceKeys.Keys()
		if len(keys) == 0 {
			t.criticalf("force_in has no destination service keys, cannot narrow the search")
			return
		}
		if t.addExclusions(rules.ActionForceIn, keys) {
			t.infof("force_in added exclusion predicates so the search finds files not yet in the destination services")
		}
	case rules.AddTagsAction:
		t.addTagPredicates(rules.ActionAddTags, a.TagServiceKey, a.Tags)
	case rules.RemoveTagsAction:
		t.addTagPredicates(rules.ActionRemoveTags, a.TagServiceKey, a.Tags)
	case rules.ModifyRatingAction:
		t.addRatingExclusions(a)
	}
}

// addExclusions appends a membership exclusion per named destination
// and reports whether any predicate was added.
func (t *translator) addExclusions(kind rules.ActionType, keys []string) bool {
	added := false
	for _, key := range keys {
		svc, ok := t.catalog.Lookup(key)
		if !ok || strings.TrimSpace(svc.Name) == "" {
			t.criticalf("%s destination %q not found, skipping its exclusion predicate", kind, key)
			continue
		}
		t.preds = append(t.preds, rules.Literal(fileServiceNotInPrefix+svc.Name))
		added = true
	}
	return added
}

// addPlacementCheckPredicates widens a force_in search to one OR group
// over every named local file domain. The sequential splitter turns the
// group into one query per domain.
func (t *translator) addPlacementCheckPredicates() {
	for _, svc := range t.catalog.Services() {
		if svc.Type == hydrus.ServiceTypeLocalFileDomain && strings.TrimSpace(svc.Name) == "" {
			t.infof("local file service %s has no name and was left out of the placement check", svc.ServiceKey)
		}
	}
	locals := t.catalog.LocalFileServices()
	if len(locals) == 0 {
		t.criticalf("no named local file services are available for the placement check")
		return
	}
	members := make([]string, 0, len(locals))
	for _, svc := range locals {
		members = append(members, fileServiceInPrefix+svc.Name)
	}
	t.preds = append(t.preds, rules.AnyOf(members...))
	t.infof("placement check built an OR group over %d local file services, the search will run as sequential queries", len(members))
}

func (t *translator) addTagPredicates(kind rules.ActionType, serviceKey string, tags []string) {
	if serviceKey != "" && len(tags) > 0 {
		for _, tag := range tags {
			clean := strings.TrimSpace(tag)
			if clean == "" {
				continue
			}
			if kind == rules.ActionAddTags {
				clean = "-" + clean
			}
			t.preds = append(t.preds, rules.Literal(clean))
		}
		t.infof("%s implicit predicates are evaluated against all known tags", kind)
		return
	}
	if serviceKey == "" {
		t.criticalf("%s is missing its tag service key, skipping implicit predicates", kind)
	}
	if len(tags) == 0 {
		t.infof("%s has no tags, no implicit predicates generated", kind)
	}
}

func (t *translator) addRatingExclusions(a rules.ModifyRatingAction) {
	svc, ok := t.catalog.Lookup(a.RatingServiceKey)
	if !ok || strings.TrimSpace(svc.Name) == "" {
		t.criticalf("modify_rating service %q not found, skipping exclusion predicates", a.RatingServiceKey)
		return
	}
	name := svc.Name

	if a.Value.IsNull() {
		// Clearing a rating only makes sense for files that have one.
		t.preds = append(t.preds, rules.Literal("system:has a rating for "+name))
		return
	}
	if v, ok := a.Value.Bool(); ok {
		if svc.Type != hydrus.ServiceTypeRatingLike {
			t.infof("modify_rating has a like/dislike target but %q is not a like/dislike service, no exclusion predicates added", name)
			return
		}
		other := "like"
		if v {
			other = "dislike"
		}
		t.preds = append(t.preds, rules.AnyOf(
			"system:rating for "+name+" is "+other,
			"system:does not have a rating for "+name,
		))
		return
	}
	if f, ok := a.Value.Float(); ok {
		n := int(f)
		suffix := ""
		switch svc.Type {
		case hydrus.ServiceTypeRatingNumerical:
			if svc.MaxStars > 0 {
				suffix = fmt.Sprintf("/%d", svc.MaxStars)
			}
		case hydrus.ServiceTypeRatingIncDec:
		default:
			t.infof("modify_rating has a numeric target but %q is not a numerical or inc/dec service, no exclusion predicates added", name)
			return
		}
		t.preds = append(t.preds, rules.AnyOf(
			"system:does not have a rating for "+name,
			fmt.Sprintf("system:rating for %s < %d%s", name, n, suffix),
			fmt.Sprintf("system:rating for %s > %d%s", name, n, suffix),
		))
		return
	}
	t.infof("modify_rating target %s for %q produced no exclusion predicates, override history prevents repeats", a.Value, name)
}
