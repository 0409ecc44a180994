package rules

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ActionType tags the action variants in the document format.
type ActionType string

const (
	ActionAddTo        ActionType = "add_to"
	ActionForceIn      ActionType = "force_in"
	ActionAddTags      ActionType = "add_tags"
	ActionRemoveTags   ActionType = "remove_tags"
	ActionModifyRating ActionType = "modify_rating"
)

// Governed reports whether the action type participates in per-file
// governance state (placement and rating priorities).
func (t ActionType) Governed() bool {
	switch t {
	case ActionAddTo, ActionForceIn, ActionModifyRating:
		return true
	}
	return false
}

// Action is the closed set of things a rule can do to matched files.
type Action interface {
	Kind() ActionType
	isAction()
}

// ServiceKeyList accepts either a JSON array of keys or a bare string,
// which older documents used for single destinations.
type ServiceKeyList []string

func (l *ServiceKeyList) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*l = nil
		return nil
	}
	if strings.HasPrefix(trimmed, "\"") {
		var single string
		if err := json.Unmarshal(data, &single); err != nil {
			return err
		}
		if single == "" {
			*l = ServiceKeyList{}
			return nil
		}
		*l = ServiceKeyList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*l = ServiceKeyList(many)
	return nil
}

// Keys returns the non-blank entries.
func (l ServiceKeyList) Keys() []string {
	out := make([]string, 0, len(l))
	for _, key := range l {
		if strings.TrimSpace(key) != "" {
			out = append(out, key)
		}
	}
	return out
}

// AddToAction copies matched files into the destination services.
type AddToAction struct {
	DestinationServiceKeys ServiceKeyList
}

// ForceInAction makes placement exclusive to the destination services,
// evicting matched files from other local file domains.
type ForceInAction struct {
	DestinationServiceKeys ServiceKeyList
}

// AddTagsAction adds tags on one tag service.
type AddTagsAction struct {
	TagServiceKey string
	Tags          []string
}

// RemoveTagsAction removes tags on one tag service.
type RemoveTagsAction struct {
	TagServiceKey string
	Tags          []string
}

// ModifyRatingAction sets (or clears, when Value is null) a rating.
type ModifyRatingAction struct {
	RatingServiceKey string
	Value            Scalar
}

func (AddToAction) Kind() ActionType        { return ActionAddTo }
func (ForceInAction) Kind() ActionType      { return ActionForceIn }
func (AddTagsAction) Kind() ActionType      { return ActionAddTags }
func (RemoveTagsAction) Kind() ActionType   { return ActionRemoveTags }
func (ModifyRatingAction) Kind() ActionType { return ActionModifyRating }

func (AddToAction) isAction()        {}
func (ForceInAction) isAction()      {}
func (AddTagsAction) isAction()      {}
func (RemoveTagsAction) isAction()   {}
func (ModifyRatingAction) isAction() {}

// DecodeAction decodes one tagged action object.
func DecodeAction(data []byte) (Action, error) {
	var probe struct {
		Type ActionType `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}

	switch probe.Type {
	case ActionAddTo:
		var wire struct {
			Destinations ServiceKeyList `json:"destination_service_keys"`
		}
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, fmt.Errorf("add_to action: %w", err)
		}
		return AddToAction{DestinationServiceKeys: wire.Destinations}, nil
	case ActionForceIn:
		var wire struct {
			Destinations ServiceKeyList `json:"destination_service_keys"`
		}
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, fmt.Errorf("force_in action: %w", err)
		}
		return ForceInAction{DestinationServiceKeys: wire.Destinations}, nil
	case ActionAddTags:
		var wire struct {
			TagServiceKey string   `json:"tag_service_key"`
			Tags          []string `json:"tags_to_process"`
		}
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, fmt.Errorf("add_tags action: %w", err)
		}
		return AddTagsAction{TagServiceKey: wire.TagServiceKey, Tags: wire.Tags}, nil
	case ActionRemoveTags:
		var wire struct {
			TagServiceKey string   `json:"tag_service_key"`
			Tags          []string `json:"tags_to_process"`
		}
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, fmt.Errorf("remove_tags action: %w", err)
		}
		return RemoveTagsAction{TagServiceKey: wire.TagServiceKey, Tags: wire.Tags}, nil
	case ActionModifyRating:
		var wire struct {
			RatingServiceKey string `json:"rating_service_key"`
			Value            Scalar `json:"rating_value"`
		}
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, fmt.Errorf("modify_rating action: %w", err)
		}
		return ModifyRatingAction{RatingServiceKey: wire.RatingServiceKey, Value: wire.Value}, nil
	case "":
		return nil, fmt.Errorf("action has no type")
	default:
		return nil, fmt.Errorf("unknown action type %q", probe.Type)
	}
}

func (a AddToAction) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type         ActionType     `json:"type"`
		Destinations ServiceKeyList `json:"destination_service_keys"`
	}{ActionAddTo, a.DestinationServiceKeys})
}

func (a ForceInAction) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type         ActionType     `json:"type"`
		Destinations ServiceKeyList `json:"destination_service_keys"`
	}{ActionForceIn, a.DestinationServiceKeys})
}

func (a AddTagsAction) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type          ActionType `json:"type"`
		TagServiceKey string     `json:"tag_service_key"`
		Tags          []string   `json:"tags_to_process"`
	}{ActionAddTags, a.TagServiceKey, a.Tags})
}

func (a RemoveTagsAction) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type          ActionType `json:"type"`
		TagServiceKey string     `json:"tag_service_key"`
		Tags          []string   `json:"tags_to_process"`
	}{ActionRemoveTags, a.TagServiceKey, a.Tags})
}

func (a ModifyRatingAction) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type             ActionType `json:"type"`
		RatingServiceKey string     `json:"rating_service_key"`
		Value            Scalar     `json:"rating_value"`
	}{ActionModifyRating, a.RatingServiceKey, a.Value})
}
