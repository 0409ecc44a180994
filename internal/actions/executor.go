package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"butler/internal/config"
	"butler/internal/logging"
	"butler/internal/services/hydrus"
)

// Executor runs rule actions against the Hydrus client API. Batch
// sizes and per-call timeouts come from the [actions] config table.
type Executor struct {
	client *hydrus.Client
	cfg    *config.Config
	logger *slog.Logger
}

// NewExecutor constructs an action executor.
func NewExecutor(client *hydrus.Client, cfg *config.Config, logger *slog.Logger) *Executor {
	return &Executor{
		client: client,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "actions"),
	}
}

func (e *Executor) ruleLogger(exec *Execution) *slog.Logger {
	if exec == nil {
		return e.logger
	}
	return e.logger.With(
		logging.String(logging.FieldRuleName, exec.Rule.Name),
		logging.String(logging.FieldRunID, exec.ExecutionID),
	)
}

// EnsureServices populates the execution's service catalog snapshot,
// fetching it at most once per execution. An unreachable or empty
// catalog is an error; rules cannot run safely without one.
func (e *Executor) EnsureServices(ctx context.Context, exec *Execution) (*hydrus.Catalog, error) {
	if exec.Catalog != nil && exec.Catalog.Len() > 0 {
		return exec.Catalog, nil
	}

	var catalog *hydrus.Catalog
	err := callWithTimeout(ctx, secondsOr(e.cfg.Hydrus.TimeoutSeconds, 30*time.Second), func(callCtx context.Context) error {
		var fetchErr error
		catalog, fetchErr = e.client.GetServices(callCtx)
		return fetchErr
	})
	if err != nil {
		return nil, fmt.Errorf("fetch service catalog: %w", err)
	}
	if catalog.Len() == 0 {
		return nil, errors.New("fetch service catalog: no services returned")
	}

	e.ruleLogger(exec).Info("fetched service catalog", logging.Int("services", catalog.Len()))
	exec.Catalog = catalog
	return catalog, nil
}

// MetadataError records one metadata batch that failed entirely. Files
// in a failed batch drop out of any verification step that needed their
// metadata.
type MetadataError struct {
	Message string   `json:"message"`
	Hashes  []string `json:"hashes_in_batch"`
	Status  int      `json:"status_code"`
}

// FetchMetadata retrieves file metadata in batches. Failed batches are
// reported as structured errors rather than aborting the fetch.
func (e *Executor) FetchMetadata(ctx context.Context, exec *Execution, hashes []string) ([]hydrus.FileMetadata, []MetadataError) {
	if len(hashes) == 0 {
		return nil, nil
	}

	batchSize := e.cfg.Actions.MetadataBatchSize
	if batchSize < 1 {
		batchSize = 1
	}
	timeout := secondsOr(e.cfg.Hydrus.TimeoutSeconds, 60*time.Second)

	logger := e.ruleLogger(exec)
	logger.Info("fetching file metadata",
		logging.Int("files", len(hashes)),
		logging.Int("batch_size", batchSize),
	)

	var (
		metadata []hydrus.FileMetadata
		failures []MetadataError
	)
	for start := 0; start < len(hashes); start += batchSize {
		end := start + batchSize
		if end > len(hashes) {
			end = len(hashes)
		}
		batch := hashes[start:end]

		var fetched []hydrus.FileMetadata
		err := callWithTimeout(ctx, timeout, func(callCtx context.Context) error {
			var fetchErr error
			fetched, fetchErr = e.client.FileMetadataByHashes(callCtx, batch)
			return fetchErr
		})
		if err != nil {
			message, status := describeError(err)
			logger.Warn("metadata batch failed",
				logging.Int("batch_start", start),
				logging.Int("batch_len", len(batch)),
				logging.String("error", message),
			)
			failures = append(failures, MetadataError{
				Message: "metadata fetch failed for a batch: " + message,
				Hashes:  append([]string(nil), batch...),
				Status:  status,
			})
			continue
		}
		metadata = append(metadata, fetched...)
	}

	logger.Info("metadata fetch complete",
		logging.Int("retrieved", len(metadata)),
		logging.Int("requested", len(hashes)),
		logging.Int("failed_batches", len(failures)),
	)
	return metadata, failures
}

// DestinationFailure ties a failed migration to the destination service
// it targeted.
type DestinationFailure struct {
	ServiceKey string `json:"destination_service_key"`
	Message    string `json:"message"`
	Status     int    `json:"status_code"`
}

// AddToReport summarizes an add_to action across every destination.
// A file appears in FileErrors when any destination failed for it.
type AddToReport struct {
	Success    bool                            `json:"success"`
	Succeeded  int                             `json:"total_successful_migrations"`
	Failed     int                             `json:"total_failed_migrations"`
	FileErrors map[string][]DestinationFailure `json:"files_with_some_errors"`
}

// AddToServices copies files into each destination file domain with
// batched migrate calls. Overall success means no file failed anywhere.
func (e *Executor) AddToServices(ctx context.Context, exec *Execution, hashes []string, destinationKeys []string) AddToReport {
	report := AddToReport{Success: true, FileErrors: map[string][]DestinationFailure{}}
	if len(hashes) == 0 || len(destinationKeys) == 0 {
		return report
	}

	batchSize := e.cfg.Actions.MigrateBatchSize
	timeout := secondsOr(e.cfg.Actions.MigrateTimeoutSeconds, 180*time.Second)

	for _, destKey := range destinationKeys {
		result := e.batchedCallWithRetry(ctx, exec, hashes, batchSize, timeout,
			fmt.Sprintf("add files to service %q", destKey),
			func(callCtx context.Context, batch []string) error {
				return e.client.MigrateFiles(callCtx, batch, destKey)
			},
			func(callCtx context.Context, hash string) error {
				return e.client.MigrateFile(callCtx, hash, destKey)
			},
		)
		report.Succeeded += len(result.Succeeded)
		for _, failure := range result.Failed {
			report.Success = false
			report.Failed++
			report.FileErrors[failure.Item] = append(report.FileErrors[failure.Item], DestinationFailure{
				ServiceKey: destKey,
				Message:    failure.Message,
				Status:     failure.Status,
			})
		}
	}
	return report
}

// TagReport summarizes one batched tag mutation. Succeeded carries the
// per-file outcomes for event logging; the JSON form keeps counts and
// failures only.
type TagReport struct {
	Success   bool          `json:"success"`
	Message   string        `json:"message"`
	Processed int           `json:"files_processed_count"`
	Failures  []ItemFailure `json:"errors,omitempty"`
	Succeeded []string      `json:"-"`
}

// AddTags applies the rule's tags to every file on one tag service.
func (e *Executor) AddTags(ctx context.Context, exec *Execution, hashes []string, serviceKey string, tags []string) TagReport {
	return e.manageTags(ctx, exec, hashes, serviceKey, tags, hydrus.TagActionAdd)
}

// RemoveTags deletes the rule's tags from every file on one tag service.
func (e *Executor) RemoveTags(ctx context.Context, exec *Execution, hashes []string, serviceKey string, tags []string) TagReport {
	return e.manageTags(ctx, exec, hashes, serviceKey, tags, hydrus.TagActionDelete)
}

func (e *Executor) manageTags(ctx context.Context, exec *Execution, hashes []string, serviceKey string, tags []string, action string) TagReport {
	verb := "add"
	if action == hydrus.TagActionDelete {
		verb = "remove"
	}

	if len(hashes) == 0 {
		return TagReport{Success: true, Message: "no files for tag action"}
	}
	if strings.TrimSpace(serviceKey) == "" {
		return TagReport{Success: false, Message: "tag service key missing"}
	}
	if len(tags) == 0 {
		return TagReport{Success: true, Message: "no tags specified", Processed: len(hashes), Succeeded: hashes}
	}

	e.ruleLogger(exec).Info("managing tags",
		logging.String("mode", verb),
		logging.Int("files", len(hashes)),
		logging.String("tag_service_key", serviceKey),
		logging.Int("tags", len(tags)),
	)

	buildRequest := func(batch []string) hydrus.AddTagsRequest {
		req := hydrus.AddTagsRequest{
			Hashes:                     batch,
			ServiceKeysToActionsToTags: map[string]map[string][]string{serviceKey: {action: tags}},
		}
		if action == hydrus.TagActionAdd {
			req.OverridePreviouslyDeletedMappings = true
		} else {
			req.CreateNewDeletedMappings = true
		}
		return req
	}

	result := e.batchedCallWithRetry(ctx, exec, hashes,
		e.cfg.Actions.TagBatchSize,
		secondsOr(e.cfg.Actions.TagTimeoutSeconds, 120*time.Second),
		fmt.Sprintf("%s tags on service %q", verb, serviceKey),
		func(callCtx context.Context, batch []string) error {
			return e.client.AddTags(callCtx, buildRequest(batch))
		},
		func(callCtx context.Context, hash string) error {
			return e.client.AddTags(callCtx, buildRequest([]string{hash}))
		},
	)

	report := TagReport{
		Success:   len(result.Failed) == 0,
		Processed: len(result.Succeeded),
		Failures:  result.Failed,
		Succeeded: result.Succeeded,
	}
	if report.Success {
		report.Message = fmt.Sprintf("%s tags succeeded for %d files on %q", verb, len(result.Succeeded), serviceKey)
	} else {
		report.Message = fmt.Sprintf("%s tags failed for %d of %d files on %q", verb, len(result.Failed), len(hashes), serviceKey)
	}
	return report
}

// RatingReport is the outcome of one set-rating call.
type RatingReport struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Status  int    `json:"status_code,omitempty"`
}

// ModifyRating sets or clears one file's rating on a rating service.
// The value may be null, boolean, or numeric; null clears the rating.
func (e *Executor) ModifyRating(ctx context.Context, exec *Execution, hash, serviceKey string, value any) RatingReport {
	if hash == "" {
		return RatingReport{Success: false, Message: "file hash missing for rating"}
	}
	if strings.TrimSpace(serviceKey) == "" {
		return RatingReport{Success: false, Message: "rating service key missing"}
	}

	err := callWithTimeout(ctx, secondsOr(e.cfg.Actions.RatingTimeoutSeconds, 60*time.Second), func(callCtx context.Context) error {
		return e.client.SetRating(callCtx, hash, serviceKey, value)
	})
	if err != nil {
		message, status := describeError(err)
		e.ruleLogger(exec).Warn("set rating failed",
			logging.String("file_hash", shortItem(hash)),
			logging.String("rating_service_key", serviceKey),
			logging.String("error", message),
		)
		return RatingReport{Success: false, Message: "set rating failed: " + message, Status: status}
	}
	return RatingReport{Success: true, Message: fmt.Sprintf("rating set on %q", serviceKey)}
}
