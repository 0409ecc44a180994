package hydrus

import (
	"context"
	"encoding/json"
	"net/url"
	"sort"

	"butler/internal/services"
)

// FileMetadata is the per-file slice of /get_files/file_metadata butler
// consumes: the hash plus the file service membership object.
type FileMetadata struct {
	Hash         string `json:"hash"`
	FileServices struct {
		Current map[string]json.RawMessage `json:"current"`
		Deleted map[string]json.RawMessage `json:"deleted"`
	} `json:"file_services"`
}

// CurrentServiceKeys returns the keys of the services the file is
// currently in, sorted for stable output.
func (m FileMetadata) CurrentServiceKeys() []string {
	keys := make([]string, 0, len(m.FileServices.Current))
	for key := range m.FileServices.Current {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// SearchFiles runs one /get_files/search_files query and returns the
// matching hashes. Each tag may be a plain string or a nested list of
// strings (an OR group on the wire).
func (c *Client) SearchFiles(ctx context.Context, tags []any) ([]string, error) {
	encoded, err := json.Marshal(tags)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "hydrus", "search_files", "encode search tags", err)
	}
	params := url.Values{}
	params.Set("tags", string(encoded))
	params.Set("return_hashes", "true")
	params.Set("return_file_ids", "false")

	var payload struct {
		Hashes []string `json:"hashes"`
	}
	if err := c.get(ctx, "/get_files/search_files", params, &payload); err != nil {
		return nil, err
	}
	return payload.Hashes, nil
}

// FileMetadataByHashes fetches metadata for the given hashes including
// the file services object. Callers batch; this issues a single request.
func (c *Client) FileMetadataByHashes(ctx context.Context, hashes []string) ([]FileMetadata, error) {
	if len(hashes) == 0 {
		return nil, nil
	}
	encoded, err := json.Marshal(hashes)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "hydrus", "file_metadata", "encode hashes", err)
	}
	params := url.Values{}
	params.Set("hashes", string(encoded))
	params.Set("include_services_object", "true")

	var payload struct {
		Metadata []FileMetadata `json:"metadata"`
	}
	if err := c.get(ctx, "/get_files/file_metadata", params, &payload); err != nil {
		return nil, err
	}
	return payload.Metadata, nil
}

// MigrateFiles copies the files into the destination file domain.
func (c *Client) MigrateFiles(ctx context.Context, hashes []string, serviceKey string) error {
	if len(hashes) == 0 {
		return nil
	}
	payload := map[string]any{
		"hashes":           hashes,
		"file_service_key": serviceKey,
	}
	return c.post(ctx, "/add_files/migrate_files", payload, nil)
}

// MigrateFile copies a single file into the destination file domain.
func (c *Client) MigrateFile(ctx context.Context, hash, serviceKey string) error {
	payload := map[string]any{
		"hash":             hash,
		"file_service_key": serviceKey,
	}
	return c.post(ctx, "/add_files/migrate_files", payload, nil)
}

// DeleteFiles removes the files from one file domain.
func (c *Client) DeleteFiles(ctx context.Context, hashes []string, serviceKey string) error {
	if len(hashes) == 0 {
		return nil
	}
	payload := map[string]any{
		"hashes":           hashes,
		"file_service_key": serviceKey,
	}
	return c.post(ctx, "/add_files/delete_files", payload, nil)
}

// DeleteFile removes a single file from one file domain.
func (c *Client) DeleteFile(ctx context.Context, hash, serviceKey string) error {
	payload := map[string]any{
		"hash":             hash,
		"file_service_key": serviceKey,
	}
	return c.post(ctx, "/add_files/delete_files", payload, nil)
}
