package hydrus

import "context"

// Tag action codes for service_keys_to_actions_to_tags.
const (
	TagActionAdd    = "0"
	TagActionDelete = "1"
)

// AddTagsRequest is the /add_tags/add_tags payload. The boolean knobs
// are only emitted when set so older Hydrus versions keep working.
type AddTagsRequest struct {
	Hashes                            []string                       `json:"hashes"`
	ServiceKeysToActionsToTags        map[string]map[string][]string `json:"service_keys_to_actions_to_tags"`
	OverridePreviouslyDeletedMappings bool                           `json:"override_previously_deleted_mappings,omitempty"`
	CreateNewDeletedMappings          bool                           `json:"create_new_deleted_mappings,omitempty"`
}

// AddTags applies tag mappings for a batch of files.
func (c *Client) AddTags(ctx context.Context, req AddTagsRequest) error {
	return c.post(ctx, "/add_tags/add_tags", req, nil)
}

// SetRating sets or clears one file's rating on a rating service. A nil
// rating clears it, so the field is always serialized.
func (c *Client) SetRating(ctx context.Context, hash, serviceKey string, rating any) error {
	payload := map[string]any{
		"hash":               hash,
		"rating_service_key": serviceKey,
		"rating":             rating,
	}
	return c.post(ctx, "/edit_ratings/set_rating", payload, nil)
}
