package actions

import (
	"context"
	"errors"
	"time"

	"butler/internal/logging"
	"butler/internal/services/hydrus"
)

// ItemFailure records one item that still failed after its individual
// retry, with the API message and HTTP-equivalent status.
type ItemFailure struct {
	Item    string `json:"item"`
	Message string `json:"message"`
	Status  int    `json:"status_code"`
}

// BatchResult accumulates per-item outcomes of a batched call.
type BatchResult struct {
	Succeeded []string
	Failed    []ItemFailure
}

// batchedCallWithRetry partitions items into batches and issues one
// bulk call per batch. When a batch fails, every item in it is retried
// individually through single so one poisoned item only costs itself.
// Each call runs under its own timeout.
func (e *Executor) batchedCallWithRetry(
	ctx context.Context,
	exec *Execution,
	items []string,
	batchSize int,
	timeout time.Duration,
	description string,
	bulk func(context.Context, []string) error,
	single func(context.Context, string) error,
) BatchResult {
	result := BatchResult{}
	if len(items) == 0 {
		return result
	}
	if batchSize < 1 {
		batchSize = 1
	}

	logger := e.ruleLogger(exec)
	logger.Info("batch processing items",
		logging.String("description", description),
		logging.Int("items", len(items)),
		logging.Int("batch_size", batchSize),
	)

	for start := 0; start < len(items); start += batchSize {
		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}
		batch := items[start:end]

		err := callWithTimeout(ctx, timeout, func(callCtx context.Context) error {
			return bulk(callCtx, batch)
		})
		if err == nil {
			result.Succeeded = append(result.Succeeded, batch...)
			continue
		}
		message, status := describeError(err)
		logger.Warn("batch call failed, retrying items individually",
			logging.String("description", description),
			logging.Int("batch_start", start),
			logging.Int("batch_len", len(batch)),
			logging.String("error", message),
			logging.Int("status", status),
		)

		for _, item := range batch {
			err := callWithTimeout(ctx, timeout, func(callCtx context.Context) error {
				return single(callCtx, item)
			})
			if err == nil {
				result.Succeeded = append(result.Succeeded, item)
				continue
			}
			message, status := describeError(err)
			logger.Debug("item retry failed",
				logging.String("description", description),
				logging.String("item", shortItem(item)),
				logging.String("error", message),
				logging.Int("status", status),
			)
			result.Failed = append(result.Failed, ItemFailure{Item: item, Message: message, Status: status})
		}
	}

	logger.Info("batch complete",
		logging.String("description", description),
		logging.Int("succeeded", len(result.Succeeded)),
		logging.Int("failed", len(result.Failed)),
	)
	return result
}

func callWithTimeout(ctx context.Context, timeout time.Duration, call func(context.Context) error) error {
	if timeout <= 0 {
		return call(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return call(callCtx)
}

// describeError flattens an API error into the message and status the
// per-item reports carry.
func describeError(err error) (string, int) {
	if err == nil {
		return "", 0
	}
	var apiErr *hydrus.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message, apiErr.StatusCode
	}
	return err.Error(), 0
}

func shortItem(item string) string {
	if len(item) > 12 {
		return item[:12]
	}
	return item
}

func secondsOr(seconds int, fallback time.Duration) time.Duration {
	if seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}
