package rules

import (
	"encoding/json"
	"fmt"
)

// ConditionType tags the condition variants in the document format.
type ConditionType string

const (
	ConditionTags        ConditionType = "tags"
	ConditionRating      ConditionType = "rating"
	ConditionFileService ConditionType = "file_service"
	ConditionFilesize    ConditionType = "filesize"
	ConditionBoolean     ConditionType = "boolean"
	ConditionFiletype    ConditionType = "filetype"
	ConditionURL         ConditionType = "url"
	ConditionLimit       ConditionType = "limit"
	ConditionOrGroup     ConditionType = "or_group"
	ConditionPasteSearch ConditionType = "paste_search"
)

// Condition is the closed set of search constraints a rule can carry.
// The unexported method keeps the set sealed so translation switches
// stay exhaustive.
type Condition interface {
	Kind() ConditionType
	isCondition()
}

// TagsCondition carries literal search terms passed through verbatim.
type TagsCondition struct {
	Operator string
	Tags     []string
}

// RatingCondition constrains one rating service's value.
type RatingCondition struct {
	ServiceKey string
	Operator   string
	Value      Scalar
}

// FileServiceCondition constrains membership in one file service. The
// document stores the service key in the value field.
type FileServiceCondition struct {
	Operator   string
	ServiceKey string
}

// FilesizeCondition compares file size against a threshold in a unit.
type FilesizeCondition struct {
	Operator string
	Value    Scalar
	Unit     string
}

// BooleanCondition is a named yes/no system flag. The document stores
// the flag name in the operator field.
type BooleanCondition struct {
	Flag  string
	Value bool
}

// FiletypeCondition matches or excludes a list of file types.
type FiletypeCondition struct {
	Operator string
	Types    []string
}

// URLCondition covers the url sub-shapes: specific url/domain/regex
// match, bare existence, and a url count comparison.
type URLCondition struct {
	Subtype      string
	SpecificType string
	Operator     string
	Value        Scalar
}

// LimitCondition caps the number of search results.
type LimitCondition struct {
	Value Scalar
}

// OrGroupCondition holds one level of alternatives. Nested groups and
// paste searches are rejected during translation, not decoding.
type OrGroupCondition struct {
	Conditions []Condition
}

// PasteSearchCondition is a free-form block of predicate lines.
type PasteSearchCondition struct {
	Text string
}

func (TagsCondition) Kind() ConditionType        { return ConditionTags }
func (RatingCondition) Kind() ConditionType      { return ConditionRating }
func (FileServiceCondition) Kind() ConditionType { return ConditionFileService }
func (FilesizeCondition) Kind() ConditionType    { return ConditionFilesize }
func (BooleanCondition) Kind() ConditionType     { return ConditionBoolean }
func (FiletypeCondition) Kind() ConditionType    { return ConditionFiletype }
func (URLCondition) Kind() ConditionType         { return ConditionURL }
func (LimitCondition) Kind() ConditionType       { return ConditionLimit }
func (OrGroupCondition) Kind() ConditionType     { return ConditionOrGroup }
func (PasteSearchCondition) Kind() ConditionType { return ConditionPasteSearch }

func (TagsCondition) isCondition()        {}
func (RatingCondition) isCondition()      {}
func (FileServiceCondition) isCondition() {}
func (FilesizeCondition) isCondition()    {}
func (BooleanCondition) isCondition()     {}
func (FiletypeCondition) isCondition()    {}
func (URLCondition) isCondition()         {}
func (LimitCondition) isCondition()       {}
func (OrGroupCondition) isCondition()     {}
func (PasteSearchCondition) isCondition() {}

// Conditions decodes a JSON array of tagged condition objects.
type Conditions []Condition

func (cs *Conditions) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	out := make(Conditions, 0, len(raws))
	for i, raw := range raws {
		cond, err := DecodeCondition(raw)
		if err != nil {
			return fmt.Errorf("condition %d: %w", i, err)
		}
		out = append(out, cond)
	}
	*cs = out
	return nil
}

// DecodeCondition decodes one tagged condition object.
func DecodeCondition(data []byte) (Condition, error) {
	var probe struct {
		Type ConditionType `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}

	switch probe.Type {
	case ConditionTags:
		var wire struct {
			Operator string   `json:"operator"`
			Tags     []string `json:"value"`
		}
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, fmt.Errorf("tags condition: %w", err)
		}
		return TagsCondition{Operator: wire.Operator, Tags: wire.Tags}, nil
	case ConditionRating:
		var wire struct {
			ServiceKey string `json:"service_key"`
			Operator   string `json:"operator"`
			Value      Scalar `json:"value"`
		}
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, fmt.Errorf("rating condition: %w", err)
		}
		return RatingCondition{ServiceKey: wire.ServiceKey, Operator: wire.Operator, Value: wire.Value}, nil
	case ConditionFileService:
		var wire struct {
			Operator   string `json:"operator"`
			ServiceKey string `json:"value"`
		}
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, fmt.Errorf("file_service condition: %w", err)
		}
		return FileServiceCondition{Operator: wire.Operator, ServiceKey: wire.ServiceKey}, nil
	case ConditionFilesize:
		var wire struct {
			Operator string `json:"operator"`
			Value    Scalar `json:"value"`
			Unit     string `json:"unit"`
		}
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, fmt.Errorf("filesize condition: %w", err)
		}
		return FilesizeCondition{Operator: wire.Operator, Value: wire.Value, Unit: wire.Unit}, nil
	case ConditionBoolean:
		var wire struct {
			Flag  string `json:"operator"`
			Value bool   `json:"value"`
		}
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, fmt.Errorf("boolean condition: %w", err)
		}
		return BooleanCondition{Flag: wire.Flag, Value: wire.Value}, nil
	case ConditionFiletype:
		var wire struct {
			Operator string   `json:"operator"`
			Types    []string `json:"value"`
		}
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, fmt.Errorf("filetype condition: %w", err)
		}
		return FiletypeCondition{Operator: wire.Operator, Types: wire.Types}, nil
	case ConditionURL:
		var wire struct {
			Subtype      string `json:"url_subtype"`
			SpecificType string `json:"specific_type"`
			Operator     string `json:"operator"`
			Value        Scalar `json:"value"`
		}
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, fmt.Errorf("url condition: %w", err)
		}
		return URLCondition{Subtype: wire.Subtype, SpecificType: wire.SpecificType, Operator: wire.Operator, Value: wire.Value}, nil
	case ConditionLimit:
		var wire struct {
			Value Scalar `json:"value"`
		}
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, fmt.Errorf("limit condition: %w", err)
		}
		return LimitCondition{Value: wire.Value}, nil
	case ConditionOrGroup:
		var wire struct {
			Conditions Conditions `json:"conditions"`
		}
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, fmt.Errorf("or_group condition: %w", err)
		}
		return OrGroupCondition{Conditions: wire.Conditions}, nil
	case ConditionPasteSearch:
		var wire struct {
			Text string `json:"value"`
		}
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, fmt.Errorf("paste_search condition: %w", err)
		}
		return PasteSearchCondition{Text: wire.Text}, nil
	case "":
		return nil, fmt.Errorf("condition has no type")
	default:
		return nil, fmt.Errorf("unknown condition type %q", probe.Type)
	}
}

func (c TagsCondition) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type     ConditionType `json:"type"`
		Operator string        `json:"operator"`
		Tags     []string      `json:"value"`
	}{ConditionTags, c.Operator, c.Tags})
}

func (c RatingCondition) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type       ConditionType `json:"type"`
		ServiceKey string        `json:"service_key"`
		Operator   string        `json:"operator"`
		Value      Scalar        `json:"value"`
	}{ConditionRating, c.ServiceKey, c.Operator, c.Value})
}

func (c FileServiceCondition) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type       ConditionType `json:"type"`
		Operator   string        `json:"operator"`
		ServiceKey string        `json:"value"`
	}{ConditionFileService, c.Operator, c.ServiceKey})
}

func (c FilesizeCondition) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type     ConditionType `json:"type"`
		Operator string        `json:"operator"`
		Value    Scalar        `json:"value"`
		Unit     string        `json:"unit"`
	}{ConditionFilesize, c.Operator, c.Value, c.Unit})
}

func (c BooleanCondition) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type  ConditionType `json:"type"`
		Flag  string        `json:"operator"`
		Value bool          `json:"value"`
	}{ConditionBoolean, c.Flag, c.Value})
}

func (c FiletypeCondition) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type     ConditionType `json:"type"`
		Operator string        `json:"operator"`
		Types    []string      `json:"value"`
	}{ConditionFiletype, c.Operator, c.Types})
}

func (c URLCondition) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type         ConditionType `json:"type"`
		Subtype      string        `json:"url_subtype"`
		SpecificType string        `json:"specific_type,omitempty"`
		Operator     string        `json:"operator,omitempty"`
		Value        Scalar        `json:"value"`
	}{ConditionURL, c.Subtype, c.SpecificType, c.Operator, c.Value})
}

func (c LimitCondition) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type  ConditionType `json:"type"`
		Value Scalar        `json:"value"`
	}{ConditionLimit, c.Value})
}

func (c OrGroupCondition) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type       ConditionType `json:"type"`
		Conditions []Condition   `json:"conditions"`
	}{ConditionOrGroup, c.Conditions})
}

func (c PasteSearchCondition) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type ConditionType `json:"type"`
		Text string        `json:"value"`
	}{ConditionPasteSearch, c.Text})
}
