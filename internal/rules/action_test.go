package rules

import (
	"reflect"
	"testing"
)

func TestDecodeActionBareStringDestination(t *testing.T) {
	raw := `{"type":"add_to","destination_service_keys":"only-one"}`
	got, err := DecodeAction([]byte(raw))
	if err != nil {
		t.Fatalf("DecodeAction: %v", err)
	}
	action, ok := got.(AddToAction)
	if !ok {
		t.Fatalf("got %T, want AddToAction", got)
	}
	if !reflect.DeepEqual(action.DestinationServiceKeys.Keys(), []string{"only-one"}) {
		t.Fatalf("destinations = %v", action.DestinationServiceKeys)
	}
}

func TestDecodeActionVariants(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want Action
	}{
		{
			name: "force_in list",
			raw:  `{"type":"force_in","destination_service_keys":["a","b"]}`,
			want: ForceInAction{DestinationServiceKeys: ServiceKeyList{"a", "b"}},
		},
		{
			name: "add_tags",
			raw:  `{"type":"add_tags","tag_service_key":"tags","tags_to_process":["processed","meta:done"]}`,
			want: AddTagsAction{TagServiceKey: "tags", Tags: []string{"processed", "meta:done"}},
		},
		{
			name: "remove_tags",
			raw:  `{"type":"remove_tags","tag_service_key":"tags","tags_to_process":["queued"]}`,
			want: RemoveTagsAction{TagServiceKey: "tags", Tags: []string{"queued"}},
		},
		{
			name: "modify_rating null clears",
			raw:  `{"type":"modify_rating","rating_service_key":"stars","rating_value":null}`,
			want: ModifyRatingAction{RatingServiceKey: "stars", Value: NullScalar()},
		},
		{
			name: "modify_rating numeric",
			raw:  `{"type":"modify_rating","rating_service_key":"stars","rating_value":4}`,
			want: ModifyRatingAction{RatingServiceKey: "stars", Value: NumberScalar(4)},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeAction([]byte(tc.raw))
			if err != nil {
				t.Fatalf("DecodeAction: %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got %#v, want %#v", got, tc.want)
			}
		})
	}
}

func TestDecodeActionRejectsUnknownType(t *testing.T) {
	if _, err := DecodeAction([]byte(`{"type":"explode"}`)); err == nil {
		t.Fatal("expected error for unknown action type")
	}
}

func TestGovernedActionTypes(t *testing.T) {
	governed := []ActionType{ActionAddTo, ActionForceIn, ActionModifyRating}
	for _, at := range governed {
		if !at.Governed() {
			t.Fatalf("%s should be governed", at)
		}
	}
	for _, at := range []ActionType{ActionAddTags, ActionRemoveTags} {
		if at.Governed() {
			t.Fatalf("%s should not be governed", at)
		}
	}
}
