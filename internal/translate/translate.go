// Package translate converts rule conditions and actions into the
// predicate lists the client API search endpoint understands. Output
// predicates are plain strings or OR groups of strings; anything the
// translator cannot express safely becomes a warning instead.
package translate

import (
	"fmt"
	"strconv"
	"strings"

	"butler/internal/rules"
	"butler/internal/services/hydrus"
)

// File service membership prefixes shared by the paste corrector and
// the sequential splitter.
const (
	fileServiceInPrefix    = "system:file service currently in "
	fileServiceNotInPrefix = "system:file service is not currently in "
)

// Translate renders a rule's conditions plus its action's implicit
// predicates into one search query. deepCheck switches a force_in rule
// from destination exclusions to the widened placement check over every
// local file domain.
func Translate(rule rules.Rule, catalog *hydrus.Catalog, deepCheck bool) ([]rules.Predicate, []Warning) {
	t := &translator{catalog: catalog}

	for idx, cond := range rule.Conditions {
		t.addCondition(idx, cond)
	}
	t.addActionPredicates(rule.Action, deepCheck)

	if t.limit != "" {
		t.preds = append(t.preds, rules.Literal(t.limit))
	}
	if rule.Action != nil {
		t.infof("final search query after %s action processing: %s", rule.Action.Kind(), rules.RenderPredicates(t.preds))
	}
	if len(t.preds) == 0 {
		t.criticalf("no search predicates were generated and the rule would match every file: %s", emptyReason(rule))
	}
	return t.preds, t.warnings
}

func emptyReason(rule rules.Rule) string {
	if hasSubstantiveConditions(rule.Conditions) {
		return "conditions were set but yielded no search terms"
	}
	if rule.Action != nil {
		return fmt.Sprintf("the %s action generated no narrowing predicates and no conditions were set", rule.Action.Kind())
	}
	return "the rule has no substantive conditions and no action"
}

// hasSubstantiveConditions reports whether any condition could narrow a
// search. Limits never count; paste searches count only when they carry
// a non-comment line.
func hasSubstantiveConditions(conds []rules.Condition) bool {
	for _, cond := range conds {
		switch c := cond.(type) {
		case rules.LimitCondition:
		case rules.OrGroupCondition:
			if len(c.Conditions) > 0 {
				return true
			}
		case rules.PasteSearchCondition:
			for _, line := range strings.Split(strings.TrimSpace(c.Text), "\n") {
				s := strings.TrimSpace(line)
				if s != "" && !strings.HasPrefix(s, "#") {
					return true
				}
			}
		default:
			return true
		}
	}
	return false
}

type translator struct {
	catalog  *hydrus.Catalog
	preds    []rules.Predicate
	warnings []Warning

	// limit holds the first valid limit predicate, appended last.
	limit string
}

func (t *translator) infof(format string, args ...any) {
	t.warnings = append(t.warnings, Warning{Level: LevelInfo, Message: fmt.Sprintf(format, args...)})
}

func (t *translator) criticalf(format string, args ...any) {
	t.warnings = append(t.warnings, Warning{Level: LevelCritical, Message: fmt.Sprintf(format, args...)})
}

func (t *translator) addCondition(idx int, cond rules.Condition) {
	switch c := cond.(type) {
	case rules.LimitCondition:
		t.addLimit(c)
	case rules.OrGroupCondition:
		t.addOrGroup(idx, c)
	case rules.PasteSearchCondition:
		t.addPasteSearch(idx, c)
	default:
		t.preds = append(t.preds, t.translateSingle(cond)...)
	}
}

func (t *translator) addLimit(c rules.LimitCondition) {
	n, ok := c.Value.Int()
	if !ok {
		t.criticalf("limit condition value %q is not a number", c.Value)
		return
	}
	if n <= 0 {
		t.infof("limit condition value must be a positive number, got %s, ignoring it", c.Value)
		return
	}
	if t.limit != "" {
		t.infof("multiple limit conditions, keeping the first (%s)", t.limit)
		return
	}
	t.limit = fmt.Sprintf("system:limit = %d", n)
}

func (t *translator) addOrGroup(idx int, c rules.OrGroupCondition) {
	if len(c.Conditions) == 0 {
		t.criticalf("or group %d is empty, skipping condition", idx)
		return
	}
	var members []string
	for _, nested := range c.Conditions {
		switch nested.(type) {
		case rules.OrGroupCondition, rules.PasteSearchCondition:
			t.criticalf("or group %d cannot nest %s conditions, skipping the nested entry", idx, nested.Kind())
			continue
		}
		for _, p := range t.translateSingle(nested) {
			if p.IsGroup() {
				members = append(members, p.Alternatives()...)
			} else {
				members = append(members, p.Value())
			}
		}
	}
	if len(members) == 0 {
		t.criticalf("or group %d yielded no predicates", idx)
		return
	}
	t.preds = append(t.preds, rules.AnyOf(members...))
}

func (t *translator) addPasteSearch(idx int, c rules.PasteSearchCondition) {
	trimmed := strings.TrimSpace(c.Text)
	if trimmed == "" {
		t.infof("paste search %d is empty, nothing to add", idx)
		return
	}
	var produced []rules.Predicate
	content := false
	for i, line := range strings.Split(trimmed, "\n") {
		s := strings.TrimSpace(line)
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		content = true
		if strings.HasPrefix(strings.ToLower(s), "system:limit") {
			t.infof("paste search line %d: system:limit lines are ignored", i+1)
			continue
		}
		var parts []string
		for _, part := range strings.Split(s, " OR ") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			fixed := correctPastePredicate(part)
			if fixed != part {
				t.infof("paste search line %d: corrected %q to %q", i+1, part, fixed)
			}
			parts = append(parts, fixed)
		}
		if len(parts) > 1 {
			produced = append(produced, rules.AnyOf(parts...))
		} else if len(parts) == 1 {
			produced = append(produced, rules.Literal(parts[0]))
		}
	}
	if len(produced) > 0 {
		t.preds = append(t.preds, produced...)
		return
	}
	if content {
		t.criticalf("paste search %d yielded no usable predicates", idx)
	}
}

// correctPastePredicate rewrites the two malformed membership phrasings
// older client exports used into the forms the search endpoint accepts.
func correctPastePredicate(pred string) string {
	if rest, ok := strings.CutPrefix(pred, "system:is currently in "); ok {
		return fileServiceInPrefix + rest
	}
	if rest, ok := strings.CutPrefix(pred, "system:is not currently in "); ok {
		return fileServiceNotInPrefix + rest
	}
	return pred
}

// translateSingle renders one non-structural condition. Tags yield one
// predicate per term; != comparisons yield a two-member OR group.
func (t *translator) translateSingle(cond rules.Condition) []rules.Predicate {
	switch c := cond.(type) {
	case rules.TagsCondition:
		return t.tagsPredicates(c)
	case rules.RatingCondition:
		return t.ratingPredicates(c)
	case rules.FileServiceCondition:
		return t.fileServicePredicates(c)
	case rules.FilesizeCondition:
		return t.filesizePredicates(c)
	case rules.BooleanCondition:
		return t.booleanPredicates(c)
	case rules.FiletypeCondition:
		return t.filetypePredicates(c)
	case rules.URLCondition:
		return t.urlPredicates(c)
	default:
		t.criticalf("%s conditions cannot be used here, skipping condition", cond.Kind())
		return nil
	}
}

func (t *translator) tagsPredicates(c rules.TagsCondition) []rules.Predicate {
	if c.Operator != "search_terms" {
		t.criticalf("tags condition has unsupported operator %q, skipping condition", c.Operator)
		return nil
	}
	if len(c.Tags) == 0 {
		t.criticalf("tags condition has an empty tag list, skipping condition")
		return nil
	}
	out := make([]rules.Predicate, 0, len(c.Tags))
	for _, tag := range c.Tags {
		out = append(out, rules.Literal(tag))
	}
	return out
}

func (t *translator) ratingPredicates(c rules.RatingCondition) []rules.Predicate {
	if c.ServiceKey == "" || c.Operator == "" {
		t.criticalf("rating condition is missing its service key or operator, skipping condition")
		return nil
	}
	svc, ok := t.catalog.Lookup(c.ServiceKey)
	if !ok {
		t.criticalf("rating service %q not found, skipping condition", c.ServiceKey)
		return nil
	}

	switch {
	case c.Operator == "no_rating" && c.Value.IsNull():
		return []rules.Predicate{rules.Literal("system:does not have a rating for " + svc.Name)}
	case c.Operator == "has_rating" && c.Value.IsNull():
		return []rules.Predicate{rules.Literal("system:has a rating for " + svc.Name)}
	}

	switch svc.Type {
	case hydrus.ServiceTypeRatingLike:
		if c.Operator != "is" {
			t.criticalf("operator %q is not supported for like/dislike rating %q, skipping condition", c.Operator, svc.Name)
			return nil
		}
		v, ok := c.Value.Bool()
		if !ok {
			t.criticalf("like/dislike rating %q needs a true or false value, got %s, skipping condition", svc.Name, c.Value)
			return nil
		}
		keyword := "dislike"
		if v {
			keyword = "like"
		}
		return []rules.Predicate{rules.Literal("system:rating for " + svc.Name + " is " + keyword)}
	case hydrus.ServiceTypeRatingNumerical:
		return t.numericRatingPredicates(c, svc, true)
	case hydrus.ServiceTypeRatingIncDec:
		return t.numericRatingPredicates(c, svc, false)
	}
	t.criticalf("service %q is not a rating service, skipping condition", svc.Name)
	return nil
}

func (t *translator) numericRatingPredicates(c rules.RatingCondition, svc hydrus.Service, starred bool) []rules.Predicate {
	f, ok := c.Value.Float()
	if !ok {
		t.criticalf("rating condition for %q needs a numeric value, got %s, skipping condition", svc.Name, c.Value)
		return nil
	}
	n := int(f)
	base := "system:rating for " + svc.Name
	suffix := ""
	if starred && svc.MaxStars > 0 {
		suffix = fmt.Sprintf("/%d", svc.MaxStars)
	}

	switch c.Operator {
	case "is":
		if starred && svc.MaxStars <= 0 {
			t.infof("numerical rating %q has no star count, assuming plain numeric equality", svc.Name)
		}
		return []rules.Predicate{rules.Literal(fmt.Sprintf("%s = %d%s", base, n, suffix))}
	case "more_than":
		return []rules.Predicate{rules.Literal(fmt.Sprintf("%s > %d%s", base, n, suffix))}
	case "less_than":
		return []rules.Predicate{rules.Literal(fmt.Sprintf("%s < %d%s", base, n, suffix))}
	case "!=":
		less := fmt.Sprintf("%s < %d%s", base, n, suffix)
		more := fmt.Sprintf("%s > %d%s", base, n, suffix)
		t.infof("rating != for %q expands to an OR group of %q and %q", svc.Name, less, more)
		return []rules.Predicate{rules.AnyOf(less, more)}
	}
	t.criticalf("operator %q is not supported for rating %q, skipping condition", c.Operator, svc.Name)
	return nil
}

func (t *translator) fileServicePredicates(c rules.FileServiceCondition) []rules.Predicate {
	var faults []string
	if strings.TrimSpace(c.ServiceKey) == "" {
		faults = append(faults, "missing service key")
	}
	if c.Operator != "is_in" && c.Operator != "is_not_in" {
		faults = append(faults, fmt.Sprintf("unexpected operator %q", c.Operator))
	}
	if len(faults) > 0 {
		t.criticalf("malformed file_service condition (%s), skipping condition", strings.Join(faults, ", "))
		return nil
	}
	svc, ok := t.catalog.Lookup(c.ServiceKey)
	if !ok {
		t.criticalf("file service key %q not found, skipping condition", c.ServiceKey)
		return nil
	}
	if c.Operator == "is_in" {
		return []rules.Predicate{rules.Literal(fileServiceInPrefix + svc.Name)}
	}
	return []rules.Predicate{rules.Literal(fileServiceNotInPrefix + svc.Name)}
}

var filesizeOperators = map[string]string{
	"=":  "~=",
	">":  ">",
	"<":  "<",
	"!=": "≠",
}

var filesizeUnits = map[string]string{
	"bytes": "B",
	"KB":    "kilobytes",
	"MB":    "megabytes",
	"GB":    "GB",
}

func (t *translator) filesizePredicates(c rules.FilesizeCondition) []rules.Predicate {
	op, ok := filesizeOperators[c.Operator]
	if !ok {
		t.criticalf("filesize operator %q is not supported, skipping condition", c.Operator)
		return nil
	}
	unit, ok := filesizeUnits[c.Unit]
	if !ok {
		t.criticalf("filesize unit %q is not recognized, skipping condition", c.Unit)
		return nil
	}
	size, ok := c.Value.Float()
	if !ok {
		t.criticalf("filesize condition needs a numeric value, got %s, skipping condition", c.Value)
		return nil
	}
	if c.Operator == "!=" {
		t.infof("filesize != becomes the ≠ predicate")
	}
	return []rules.Predicate{rules.Literal(fmt.Sprintf("system:filesize %s %s %s", op, strconv.FormatFloat(size, 'f', -1, 64), unit))}
}

// booleanForms pairs a flag's positive predicate with its explicit
// negative predicate where the client defines one.
type booleanForms struct {
	positive string
	negative string
}

var booleanFlags = map[string]booleanForms{
	"inbox":        {"system:inbox", "-system:inbox"},
	"archive":      {"system:archive", "-system:archive"},
	"local":        {"system:file service currently in all local files", "system:file service is not currently in all local files"},
	"trashed":      {"system:file service currently in trash", "system:file service is not currently in trash"},
	"deleted":      {"system:is deleted", "-system:is deleted"},
	"has_duration": {"system:has duration", "system:no duration"},
	"is_the_best_quality_file_of_its_duplicate_group": {"system:is the best quality file of its duplicate group", "system:is not the best quality file of its duplicate group"},
	"has_audio":             {"system:has audio", "system:no audio"},
	"has_exif":              {"system:has exif", "system:no exif"},
	"has_embedded_metadata": {"system:has embedded metadata", "system:no embedded metadata"},
	"has_icc_profile":       {"system:has icc profile", "system:no icc profile"},
	"has_tags":              {"system:has tags", "system:no tags"},
	"has_notes":             {"system:has notes", "system:does not have notes"},
	"has_transparency":      {"system:has transparency", "-system:has transparency"},
}

func (t *translator) booleanPredicates(c rules.BooleanCondition) []rules.Predicate {
	forms, ok := booleanFlags[c.Flag]
	if !ok {
		t.criticalf("boolean flag %q has no predicate mapping, skipping condition", c.Flag)
		return nil
	}
	if c.Value {
		return []rules.Predicate{rules.Literal(forms.positive)}
	}
	if forms.negative == "" {
		negated := "-" + forms.positive
		t.infof("boolean flag %q has no explicit negative form, negated generically as %q", c.Flag, negated)
		return []rules.Predicate{rules.Literal(negated)}
	}
	switch c.Flag {
	case "has_tags":
		t.infof("has_tags false maps to system:no tags, system:untagged is an equivalent predicate")
	case "has_notes":
		t.infof("has_notes false maps to system:does not have notes, system:no notes is an equivalent predicate")
	}
	return []rules.Predicate{rules.Literal(forms.negative)}
}

func (t *translator) filetypePredicates(c rules.FiletypeCondition) []rules.Predicate {
	if len(c.Types) == 0 {
		t.criticalf("filetype condition needs a non-empty list of types, skipping condition")
		return nil
	}
	cleaned := make([]string, 0, len(c.Types))
	for _, v := range c.Types {
		cleaned = append(cleaned, strings.ToLower(strings.TrimSpace(v)))
	}
	joined := strings.Join(cleaned, ", ")

	switch c.Operator {
	case "is":
		return []rules.Predicate{rules.Literal("system:filetype = " + joined)}
	case "is_not":
		if len(cleaned) > 1 {
			t.infof("filetype is_not with multiple types relies on client-side exclusion semantics, verify the result")
		}
		return []rules.Predicate{rules.Literal("system:filetype is not " + joined)}
	}
	t.criticalf("filetype operator %q is not supported, skipping condition", c.Operator)
	return nil
}

func (t *translator) urlPredicates(c rules.URLCondition) []rules.Predicate {
	switch c.Subtype {
	case "specific":
		var text string
		if !c.Value.IsNull() {
			text = strings.TrimSpace(c.Value.String())
		}
		if c.SpecificType == "" || (c.Operator != "is" && c.Operator != "is_not") || text == "" {
			break
		}
		verb := "has "
		if c.Operator == "is_not" {
			verb = "does not have "
			if c.SpecificType == "regex" {
				verb = "does not have a "
			}
		}
		switch c.SpecificType {
		case "url":
			return []rules.Predicate{rules.Literal("system:" + verb + "url " + text)}
		case "domain":
			return []rules.Predicate{rules.Literal("system:" + verb + "domain " + text)}
		case "regex":
			return []rules.Predicate{rules.Literal("system:" + verb + "url matching regex " + text)}
		}
		t.criticalf("unknown specific url type %q, skipping condition", c.SpecificType)
		return nil
	case "existence":
		if !c.Value.IsNull() {
			break
		}
		switch c.Operator {
		case "has":
			return []rules.Predicate{rules.Literal("system:has urls")}
		case "has_not":
			return []rules.Predicate{rules.Literal("system:no urls")}
		}
	case "count":
		n, ok := c.Value.Int()
		if !ok {
			break
		}
		switch c.Operator {
		case "=", ">", "<":
			return []rules.Predicate{rules.Literal(fmt.Sprintf("system:number of urls %s %d", c.Operator, n))}
		case "!=":
			less := fmt.Sprintf("system:number of urls < %d", n)
			more := fmt.Sprintf("system:number of urls > %d", n)
			t.infof("url count != expands to an OR group of %q and %q", less, more)
			return []rules.Predicate{rules.AnyOf(less, more)}
		}
		t.criticalf("url count operator %q is not supported, skipping condition", c.Operator)
		return nil
	}
	t.criticalf("incomplete url condition (subtype %q, operator %q), skipping condition", c.Subtype, c.Operator)
	return nil
}
