package translate

import (
	"reflect"
	"strings"
	"testing"

	"butler/internal/rules"
	"butler/internal/services/hydrus"
)

func testCatalog() *hydrus.Catalog {
	return hydrus.NewCatalog([]hydrus.Service{
		{ServiceKey: "archive-key", Name: "archive", Type: hydrus.ServiceTypeLocalFileDomain},
		{ServiceKey: "inbox-key", Name: "sorting inbox", Type: hydrus.ServiceTypeLocalFileDomain},
		{ServiceKey: "cold-key", Name: "cold storage", Type: hydrus.ServiceTypeLocalFileDomain},
		{ServiceKey: "unnamed-key", Type: hydrus.ServiceTypeLocalFileDomain},
		{ServiceKey: "stars-key", Name: "quality", Type: hydrus.ServiceTypeRatingNumerical, MaxStars: 5},
		{ServiceKey: "score-key", Name: "score", Type: hydrus.ServiceTypeRatingNumerical},
		{ServiceKey: "like-key", Name: "favorites", Type: hydrus.ServiceTypeRatingLike},
		{ServiceKey: "incdec-key", Name: "views", Type: hydrus.ServiceTypeRatingIncDec},
		{ServiceKey: "tags-key", Name: "my tags", Type: 5},
	})
}

func literals(preds []rules.Predicate) []string {
	out := make([]string, 0, len(preds))
	for _, p := range preds {
		out = append(out, p.String())
	}
	return out
}

func hasWarningContaining(warnings []Warning, level Level, substr string) bool {
	for _, w := range warnings {
		if w.Level == level && strings.Contains(w.Message, substr) {
			return true
		}
	}
	return false
}

func TestTranslateConditionForms(t *testing.T) {
	cases := []struct {
		name string
		cond rules.Condition
		want []string
	}{
		{
			name: "tags pass through verbatim",
			cond: rules.TagsCondition{Operator: "search_terms", Tags: []string{"creator:someone", "-blurry"}},
			want: []string{"creator:someone", "-blurry"},
		},
		{
			name: "boolean inbox",
			cond: rules.BooleanCondition{Flag: "inbox", Value: true},
			want: []string{"system:inbox"},
		},
		{
			name: "boolean archive negated",
			cond: rules.BooleanCondition{Flag: "archive", Value: false},
			want: []string{"-system:archive"},
		},
		{
			name: "boolean local negative form",
			cond: rules.BooleanCondition{Flag: "local", Value: false},
			want: []string{"system:file service is not currently in all local files"},
		},
		{
			name: "boolean has_duration negative form",
			cond: rules.BooleanCondition{Flag: "has_duration", Value: false},
			want: []string{"system:no duration"},
		},
		{
			name: "boolean has_tags negative form",
			cond: rules.BooleanCondition{Flag: "has_tags", Value: false},
			want: []string{"system:no tags"},
		},
		{
			name: "rating absent",
			cond: rules.RatingCondition{ServiceKey: "stars-key", Operator: "no_rating", Value: rules.NullScalar()},
			want: []string{"system:does not have a rating for quality"},
		},
		{
			name: "rating present",
			cond: rules.RatingCondition{ServiceKey: "like-key", Operator: "has_rating", Value: rules.NullScalar()},
			want: []string{"system:has a rating for favorites"},
		},
		{
			name: "rating like",
			cond: rules.RatingCondition{ServiceKey: "like-key", Operator: "is", Value: rules.BoolScalar(true)},
			want: []string{"system:rating for favorites is like"},
		},
		{
			name: "rating dislike",
			cond: rules.RatingCondition{ServiceKey: "like-key", Operator: "is", Value: rules.BoolScalar(false)},
			want: []string{"system:rating for favorites is dislike"},
		},
		{
			name: "rating numerical equality with stars",
			cond: rules.RatingCondition{ServiceKey: "stars-key", Operator: "is", Value: rules.NumberScalar(4)},
			want: []string{"system:rating for quality = 4/5"},
		},
		{
			name: "rating numerical equality without stars",
			cond: rules.RatingCondition{ServiceKey: "score-key", Operator: "is", Value: rules.NumberScalar(4)},
			want: []string{"system:rating for score = 4"},
		},
		{
			name: "rating numerical more_than",
			cond: rules.RatingCondition{ServiceKey: "stars-key", Operator: "more_than", Value: rules.NumberScalar(2)},
			want: []string{"system:rating for quality > 2/5"},
		},
		{
			name: "rating numerical not equal expands",
			cond: rules.RatingCondition{ServiceKey: "stars-key", Operator: "!=", Value: rules.NumberScalar(3)},
			want: []string{"[system:rating for quality < 3/5 OR system:rating for quality > 3/5]"},
		},
		{
			name: "rating incdec has no star suffix",
			cond: rules.RatingCondition{ServiceKey: "incdec-key", Operator: "less_than", Value: rules.NumberScalar(10)},
			want: []string{"system:rating for views < 10"},
		},
		{
			name: "file service membership",
			cond: rules.FileServiceCondition{Operator: "is_in", ServiceKey: "archive-key"},
			want: []string{"system:file service currently in archive"},
		},
		{
			name: "file service exclusion",
			cond: rules.FileServiceCondition{Operator: "is_not_in", ServiceKey: "cold-key"},
			want: []string{"system:file service is not currently in cold storage"},
		},
		{
			name: "filesize approximate equality",
			cond: rules.FilesizeCondition{Operator: "=", Value: rules.NumberScalar(100), Unit: "MB"},
			want: []string{"system:filesize ~= 100 megabytes"},
		},
		{
			name: "filesize not equal keeps fraction",
			cond: rules.FilesizeCondition{Operator: "!=", Value: rules.NumberScalar(1.5), Unit: "GB"},
			want: []string{"system:filesize ≠ 1.5 GB"},
		},
		{
			name: "filesize bytes unit",
			cond: rules.FilesizeCondition{Operator: ">", Value: rules.NumberScalar(2048), Unit: "bytes"},
			want: []string{"system:filesize > 2048 B"},
		},
		{
			name: "filetype normalizes values",
			cond: rules.FiletypeCondition{Operator: "is", Types: []string{" JPEG", "png "}},
			want: []string{"system:filetype = jpeg, png"},
		},
		{
			name: "filetype exclusion",
			cond: rules.FiletypeCondition{Operator: "is_not", Types: []string{"gif"}},
			want: []string{"system:filetype is not gif"},
		},
		{
			name: "url domain",
			cond: rules.URLCondition{Subtype: "specific", SpecificType: "domain", Operator: "is", Value: rules.StringScalar("example.com")},
			want: []string{"system:has domain example.com"},
		},
		{
			name: "url regex negation",
			cond: rules.URLCondition{Subtype: "specific", SpecificType: "regex", Operator: "is_not", Value: rules.StringScalar(`example\.com/\d+`)},
			want: []string{`system:does not have a url matching regex example\.com/\d+`},
		},
		{
			name: "url existence",
			cond: rules.URLCondition{Subtype: "existence", Operator: "has_not", Value: rules.NullScalar()},
			want: []string{"system:no urls"},
		},
		{
			name: "url count not equal expands",
			cond: rules.URLCondition{Subtype: "count", Operator: "!=", Value: rules.NumberScalar(2)},
			want: []string{"[system:number of urls < 2 OR system:number of urls > 2]"},
		},
	}

	catalog := testCatalog()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rule := rules.Rule{Name: "case", Conditions: rules.Conditions{tc.cond}}
			preds, warnings := Translate(rule, catalog, false)
			if HasCritical(warnings) {
				t.Fatalf("unexpected critical warnings: %v", warnings)
			}
			if got := literals(preds); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("predicates = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestTranslateRejectsUnsafeConditions(t *testing.T) {
	cases := []struct {
		name string
		cond rules.Condition
	}{
		{"empty tag list", rules.TagsCondition{Operator: "search_terms"}},
		{"tags with wrong operator", rules.TagsCondition{Operator: "equals", Tags: []string{"a"}}},
		{"unknown rating service", rules.RatingCondition{ServiceKey: "ghost", Operator: "is", Value: rules.NumberScalar(1)}},
		{"rating on non-rating service", rules.RatingCondition{ServiceKey: "tags-key", Operator: "is", Value: rules.NumberScalar(1)}},
		{"non-numeric numerical rating", rules.RatingCondition{ServiceKey: "stars-key", Operator: "is", Value: rules.StringScalar("lots")}},
		{"like rating without boolean", rules.RatingCondition{ServiceKey: "like-key", Operator: "is", Value: rules.NumberScalar(1)}},
		{"like rating with comparison", rules.RatingCondition{ServiceKey: "like-key", Operator: "more_than", Value: rules.BoolScalar(true)}},
		{"unknown file service", rules.FileServiceCondition{Operator: "is_in", ServiceKey: "ghost"}},
		{"file service bad operator", rules.FileServiceCondition{Operator: "inside", ServiceKey: "archive-key"}},
		{"filesize bad operator", rules.FilesizeCondition{Operator: ">=", Value: rules.NumberScalar(1), Unit: "MB"}},
		{"filesize bad unit", rules.FilesizeCondition{Operator: ">", Value: rules.NumberScalar(1), Unit: "TB"}},
		{"filesize non-numeric", rules.FilesizeCondition{Operator: ">", Value: rules.StringScalar("big"), Unit: "MB"}},
		{"unknown boolean flag", rules.BooleanCondition{Flag: "sparkles", Value: true}},
		{"empty filetype list", rules.FiletypeCondition{Operator: "is"}},
		{"unknown specific url type", rules.URLCondition{Subtype: "specific", SpecificType: "path", Operator: "is", Value: rules.StringScalar("x")}},
		{"url count bad operator", rules.URLCondition{Subtype: "count", Operator: ">=", Value: rules.NumberScalar(1)}},
		{"incomplete url condition", rules.URLCondition{Subtype: "existence", Operator: "has", Value: rules.StringScalar("x")}},
		{"non-numeric limit", rules.LimitCondition{Value: rules.StringScalar("many")}},
	}

	catalog := testCatalog()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rule := rules.Rule{Name: "case", Conditions: rules.Conditions{tc.cond}}
			preds, warnings := Translate(rule, catalog, false)
			if !HasCritical(warnings) {
				t.Fatalf("expected a critical warning, got %v", warnings)
			}
			if len(preds) != 0 {
				t.Fatalf("unsafe condition produced predicates: %v", literals(preds))
			}
		})
	}
}

func TestTranslateLimitAppendedLast(t *testing.T) {
	rule := rules.Rule{
		Name: "limited",
		Conditions: rules.Conditions{
			rules.LimitCondition{Value: rules.NumberScalar(25)},
			rules.BooleanCondition{Flag: "inbox", Value: true},
		},
		Action: rules.AddToAction{DestinationServiceKeys: rules.ServiceKeyList{"archive-key"}},
	}
	preds, warnings := Translate(rule, testCatalog(), false)
	if HasCritical(warnings) {
		t.Fatalf("unexpected critical warnings: %v", warnings)
	}
	want := []string{
		"system:inbox",
		"system:file service is not currently in archive",
		"system:limit = 25",
	}
	if got := literals(preds); !reflect.DeepEqual(got, want) {
		t.Fatalf("predicates = %v, want %v", got, want)
	}
	if !hasWarningContaining(warnings, LevelInfo, "final search query") {
		t.Fatalf("missing final query note: %v", warnings)
	}
}

func TestTranslateKeepsFirstValidLimit(t *testing.T) {
	rule := rules.Rule{
		Name: "limits",
		Conditions: rules.Conditions{
			rules.BooleanCondition{Flag: "inbox", Value: true},
			rules.LimitCondition{Value: rules.NumberScalar(-5)},
			rules.LimitCondition{Value: rules.NumberScalar(50)},
			rules.LimitCondition{Value: rules.NumberScalar(100)},
		},
	}
	preds, warnings := Translate(rule, testCatalog(), false)
	if HasCritical(warnings) {
		t.Fatalf("unexpected critical warnings: %v", warnings)
	}
	want := []string{"system:inbox", "system:limit = 50"}
	if got := literals(preds); !reflect.DeepEqual(got, want) {
		t.Fatalf("predicates = %v, want %v", got, want)
	}
	if !hasWarningContaining(warnings, LevelInfo, "must be a positive number") {
		t.Fatalf("missing ignored-limit note: %v", warnings)
	}
	if !hasWarningContaining(warnings, LevelInfo, "keeping the first") {
		t.Fatalf("missing duplicate-limit note: %v", warnings)
	}
}

func TestTranslateOrGroupFlattensAlternatives(t *testing.T) {
	rule := rules.Rule{
		Name: "grouped",
		Conditions: rules.Conditions{
			rules.OrGroupCondition{Conditions: []rules.Condition{
				rules.RatingCondition{ServiceKey: "stars-key", Operator: "!=", Value: rules.NumberScalar(3)},
				rules.BooleanCondition{Flag: "inbox", Value: true},
			}},
		},
	}
	preds, warnings := Translate(rule, testCatalog(), false)
	if HasCritical(warnings) {
		t.Fatalf("unexpected critical warnings: %v", warnings)
	}
	want := []string{"[system:rating for quality < 3/5 OR system:rating for quality > 3/5 OR system:inbox]"}
	if got := literals(preds); !reflect.DeepEqual(got, want) {
		t.Fatalf("predicates = %v, want %v", got, want)
	}
}

func TestTranslateOrGroupRejectsNestedGroups(t *testing.T) {
	rule := rules.Rule{
		Name: "nested",
		Conditions: rules.Conditions{
			rules.BooleanCondition{Flag: "inbox", Value: true},
			rules.OrGroupCondition{Conditions: []rules.Condition{
				rules.OrGroupCondition{},
			}},
		},
	}
	preds, warnings := Translate(rule, testCatalog(), false)
	if !hasWarningContaining(warnings, LevelCritical, "cannot nest") {
		t.Fatalf("missing nested-group warning: %v", warnings)
	}
	if !hasWarningContaining(warnings, LevelCritical, "yielded no predicates") {
		t.Fatalf("missing empty-group warning: %v", warnings)
	}
	want := []string{"system:inbox"}
	if got := literals(preds); !reflect.DeepEqual(got, want) {
		t.Fatalf("predicates = %v, want %v", got, want)
	}
}

func TestTranslatePasteSearchCorrectsMembershipForms(t *testing.T) {
	text := "# saved from the client\n" +
		"system:inbox\n" +
		"system:is currently in archive OR system:is not currently in cold storage\n" +
		"system:limit = 64\n" +
		"creator:someone"
	rule := rules.Rule{
		Name:       "pasted",
		Conditions: rules.Conditions{rules.PasteSearchCondition{Text: text}},
	}
	preds, warnings := Translate(rule, testCatalog(), false)
	if HasCritical(warnings) {
		t.Fatalf("unexpected critical warnings: %v", warnings)
	}
	want := []string{
		"system:inbox",
		"[system:file service currently in archive OR system:file service is not currently in cold storage]",
		"creator:someone",
	}
	if got := literals(preds); !reflect.DeepEqual(got, want) {
		t.Fatalf("predicates = %v, want %v", got, want)
	}
	corrections := 0
	for _, w := range warnings {
		if w.Level == LevelInfo && strings.Contains(w.Message, "corrected") {
			corrections++
		}
	}
	if corrections != 2 {
		t.Fatalf("correction notes = %d, want 2: %v", corrections, warnings)
	}
	if !hasWarningContaining(warnings, LevelInfo, "system:limit lines are ignored") {
		t.Fatalf("missing ignored-limit note: %v", warnings)
	}
}

func TestTranslatePasteSearchWithOnlyLimitIsCritical(t *testing.T) {
	rule := rules.Rule{
		Name:       "pasted",
		Conditions: rules.Conditions{rules.PasteSearchCondition{Text: "system:limit = 10"}},
	}
	preds, warnings := Translate(rule, testCatalog(), false)
	if !hasWarningContaining(warnings, LevelCritical, "yielded no usable predicates") {
		t.Fatalf("missing empty-paste warning: %v", warnings)
	}
	if len(preds) != 0 {
		t.Fatalf("predicates = %v, want none", literals(preds))
	}
}

func TestTranslateAddToAppendsDestinationExclusions(t *testing.T) {
	rule := rules.Rule{
		Name:       "sorting",
		Conditions: rules.Conditions{rules.TagsCondition{Operator: "search_terms", Tags: []string{"creator:someone"}}},
		Action:     rules.AddToAction{DestinationServiceKeys: rules.ServiceKeyList{"archive-key", "cold-key"}},
	}
	preds, warnings := Translate(rule, testCatalog(), false)
	if HasCritical(warnings) {
		t.Fatalf("unexpected critical warnings: %v", warnings)
	}
	want := []string{
		"creator:someone",
		"system:file service is not currently in archive",
		"system:file service is not currently in cold storage",
	}
	if got := literals(preds); !reflect.DeepEqual(got, want) {
		t.Fatalf("predicates = %v, want %v", got, want)
	}
}

func TestTranslateAddToUnknownDestinationIsCritical(t *testing.T) {
	rule := rules.Rule{
		Name:       "sorting",
		Conditions: rules.Conditions{rules.BooleanCondition{Flag: "inbox", Value: true}},
		Action:     rules.AddToAction{DestinationServiceKeys: rules.ServiceKeyList{"ghost"}},
	}
	preds, warnings := Translate(rule, testCatalog(), false)
	if !hasWarningContaining(warnings, LevelCritical, "destination \"ghost\" not found") {
		t.Fatalf("missing destination warning: %v", warnings)
	}
	want := []string{"system:inbox"}
	if got := literals(preds); !reflect.DeepEqual(got, want) {
		t.Fatalf("predicates = %v, want %v", got, want)
	}
}

func TestTranslateForceInNormalMode(t *testing.T) {
	rule := rules.Rule{
		Name:       "consolidate",
		Conditions: rules.Conditions{rules.BooleanCondition{Flag: "inbox", Value: true}},
		Action:     rules.ForceInAction{DestinationServiceKeys: rules.ServiceKeyList{"archive-key"}},
	}
	preds, warnings := Translate(rule, testCatalog(), false)
	if HasCritical(warnings) {
		t.Fatalf("unexpected critical warnings: %v", warnings)
	}
	want := []string{"system:inbox", "system:file service is not currently in archive"}
	if got := literals(preds); !reflect.DeepEqual(got, want) {
		t.Fatalf("predicates = %v, want %v", got, want)
	}

	rule.Action = rules.ForceInAction{}
	_, warnings = Translate(rule, testCatalog(), false)
	if !hasWarningContaining(warnings, LevelCritical, "no destination service keys") {
		t.Fatalf("missing missing-destination warning: %v", warnings)
	}
}

func TestTranslateForceInDeepCheckWidensToLocalServices(t *testing.T) {
	rule := rules.Rule{
		Name:   "consolidate",
		Action: rules.ForceInAction{DestinationServiceKeys: rules.ServiceKeyList{"archive-key"}},
	}
	preds, warnings := Translate(rule, testCatalog(), true)
	if HasCritical(warnings) {
		t.Fatalf("unexpected critical warnings: %v", warnings)
	}
	want := []string{"[system:file service currently in archive OR system:file service currently in sorting inbox OR system:file service currently in cold storage]"}
	if got := literals(preds); !reflect.DeepEqual(got, want) {
		t.Fatalf("predicates = %v, want %v", got, want)
	}
	if !hasWarningContaining(warnings, LevelInfo, "sequential queries") {
		t.Fatalf("missing placement-check note: %v", warnings)
	}
	if !hasWarningContaining(warnings, LevelInfo, "has no name") {
		t.Fatalf("missing unnamed-service note: %v", warnings)
	}

	searches := PrepareSequentialSearches(preds, DefaultMinServicesToSplit)
	if len(searches) != 3 {
		t.Fatalf("sequential searches = %d, want 3", len(searches))
	}
}

func TestTranslateTagActionsGenerateImplicitPredicates(t *testing.T) {
	base := rules.Rule{
		Name:       "tagging",
		Conditions: rules.Conditions{rules.BooleanCondition{Flag: "inbox", Value: true}},
	}

	add := base
	add.Action = rules.AddTagsAction{TagServiceKey: "tags-key", Tags: []string{"processed", "  "}}
	preds, warnings := Translate(add, testCatalog(), false)
	if HasCritical(warnings) {
		t.Fatalf("unexpected critical warnings: %v", warnings)
	}
	want := []string{"system:inbox", "-processed"}
	if got := literals(preds); !reflect.DeepEqual(got, want) {
		t.Fatalf("add_tags predicates = %v, want %v", got, want)
	}
	if !hasWarningContaining(warnings, LevelInfo, "all known tags") {
		t.Fatalf("missing namespace note: %v", warnings)
	}

	remove := base
	remove.Action = rules.RemoveTagsAction{TagServiceKey: "tags-key", Tags: []string{"processed"}}
	preds, warnings = Translate(remove, testCatalog(), false)
	if HasCritical(warnings) {
		t.Fatalf("unexpected critical warnings: %v", warnings)
	}
	want = []string{"system:inbox", "processed"}
	if got := literals(preds); !reflect.DeepEqual(got, want) {
		t.Fatalf("remove_tags predicates = %v, want %v", got, want)
	}

	missing := base
	missing.Action = rules.AddTagsAction{Tags: []string{"processed"}}
	_, warnings = Translate(missing, testCatalog(), false)
	if !hasWarningContaining(warnings, LevelCritical, "missing its tag service key") {
		t.Fatalf("missing tag-service warning: %v", warnings)
	}
}

func TestTranslateModifyRatingExclusions(t *testing.T) {
	base := rules.Rule{
		Name:       "rating",
		Conditions: rules.Conditions{rules.BooleanCondition{Flag: "inbox", Value: true}},
	}

	cases := []struct {
		name   string
		action rules.ModifyRatingAction
		want   []string
	}{
		{
			name:   "clearing targets rated files only",
			action: rules.ModifyRatingAction{RatingServiceKey: "stars-key", Value: rules.NullScalar()},
			want:   []string{"system:inbox", "system:has a rating for quality"},
		},
		{
			name:   "boolean target excludes the other state",
			action: rules.ModifyRatingAction{RatingServiceKey: "like-key", Value: rules.BoolScalar(true)},
			want:   []string{"system:inbox", "[system:rating for favorites is dislike OR system:does not have a rating for favorites]"},
		},
		{
			name:   "numeric target with stars",
			action: rules.ModifyRatingAction{RatingServiceKey: "stars-key", Value: rules.NumberScalar(3)},
			want:   []string{"system:inbox", "[system:does not have a rating for quality OR system:rating for quality < 3/5 OR system:rating for quality > 3/5]"},
		},
		{
			name:   "numeric target on incdec",
			action: rules.ModifyRatingAction{RatingServiceKey: "incdec-key", Value: rules.NumberScalar(2)},
			want:   []string{"system:inbox", "[system:does not have a rating for views OR system:rating for views < 2 OR system:rating for views > 2]"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rule := base
			rule.Action = tc.action
			preds, warnings := Translate(rule, testCatalog(), false)
			if HasCritical(warnings) {
				t.Fatalf("unexpected critical warnings: %v", warnings)
			}
			if got := literals(preds); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("predicates = %v, want %v", got, tc.want)
			}
		})
	}

	t.Run("unknown service is critical", func(t *testing.T) {
		rule := base
		rule.Action = rules.ModifyRatingAction{RatingServiceKey: "ghost", Value: rules.NumberScalar(1)}
		_, warnings := Translate(rule, testCatalog(), false)
		if !hasWarningContaining(warnings, LevelCritical, "not found") {
			t.Fatalf("missing unknown-service warning: %v", warnings)
		}
	})

	t.Run("mismatched target only notes", func(t *testing.T) {
		rule := base
		rule.Action = rules.ModifyRatingAction{RatingServiceKey: "stars-key", Value: rules.BoolScalar(false)}
		preds, warnings := Translate(rule, testCatalog(), false)
		if HasCritical(warnings) {
			t.Fatalf("unexpected critical warnings: %v", warnings)
		}
		if !hasWarningContaining(warnings, LevelInfo, "not a like/dislike service") {
			t.Fatalf("missing mismatch note: %v", warnings)
		}
		want := []string{"system:inbox"}
		if got := literals(preds); !reflect.DeepEqual(got, want) {
			t.Fatalf("predicates = %v, want %v", got, want)
		}
	})
}

func TestTranslateEmptySearchIsCritical(t *testing.T) {
	t.Run("no conditions and no action", func(t *testing.T) {
		preds, warnings := Translate(rules.Rule{Name: "blank"}, testCatalog(), false)
		if len(preds) != 0 {
			t.Fatalf("predicates = %v, want none", literals(preds))
		}
		if !hasWarningContaining(warnings, LevelCritical, "would match every file") {
			t.Fatalf("missing empty-search warning: %v", warnings)
		}
	})

	t.Run("conditions degraded to nothing", func(t *testing.T) {
		rule := rules.Rule{
			Name:       "degraded",
			Conditions: rules.Conditions{rules.TagsCondition{Operator: "search_terms"}},
		}
		_, warnings := Translate(rule, testCatalog(), false)
		if !hasWarningContaining(warnings, LevelCritical, "yielded no search terms") {
			t.Fatalf("missing degraded-conditions warning: %v", warnings)
		}
	})

	t.Run("action generated nothing", func(t *testing.T) {
		rule := rules.Rule{
			Name:   "inert",
			Action: rules.AddTagsAction{TagServiceKey: "tags-key"},
		}
		_, warnings := Translate(rule, testCatalog(), false)
		if !hasWarningContaining(warnings, LevelCritical, "no narrowing predicates") {
			t.Fatalf("missing inert-action warning: %v", warnings)
		}
	})
}

func TestHasCritical(t *testing.T) {
	warnings := []Warning{
		{Level: LevelInfo, Message: "note"},
		{Level: LevelCritical, Message: "bad"},
		{Level: LevelCritical, Message: "worse"},
	}
	if !HasCritical(warnings) {
		t.Fatal("expected HasCritical to be true")
	}
	if HasCritical(warnings[:1]) {
		t.Fatal("expected HasCritical to be false for info-only warnings")
	}
	got := CriticalMessages(warnings)
	if !reflect.DeepEqual(got, []string{"bad", "worse"}) {
		t.Fatalf("CriticalMessages = %v", got)
	}
}
