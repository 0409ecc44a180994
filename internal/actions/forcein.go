package actions

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"butler/internal/logging"
	"butler/internal/services/hydrus"
)

// PhaseFailure describes one failed step for a file during force_in.
type PhaseFailure struct {
	ServiceKey string `json:"service_key,omitempty"`
	Message    string `json:"message"`
	Status     int    `json:"status_code,omitempty"`
}

// FilePhaseErrors collects a file's failures under the first phase that
// dropped it from the pipeline.
type FilePhaseErrors struct {
	Phase  string         `json:"phase"`
	Errors []PhaseFailure `json:"errors"`
}

// PhaseCounts tracks how many files survived each force_in phase.
type PhaseCounts struct {
	Initial  int `json:"initial_candidates"`
	Copied   int `json:"copied_phase_success_count"`
	Verified int `json:"verified_phase_success_count"`
	Deleted  int `json:"deleted_phase_success_count"`
}

// ForceInReport is the outcome of one force_in action. Success requires
// every initial candidate to clear all three phases with no errors.
type ForceInReport struct {
	Success        bool                        `json:"success"`
	FullySucceeded []string                    `json:"files_fully_successful"`
	FileErrors     map[string]*FilePhaseErrors `json:"files_with_errors"`
	Counts         PhaseCounts                 `json:"summary_counts"`
	OverallErrors  []string                    `json:"overall_errors,omitempty"`
}

func recordPhaseFailure(fileErrors map[string]*FilePhaseErrors, hash, phase string, failure PhaseFailure) {
	entry, ok := fileErrors[hash]
	if !ok {
		entry = &FilePhaseErrors{Phase: phase}
		fileErrors[hash] = entry
	}
	entry.Errors = append(entry.Errors, failure)
}

// ForceInServices makes the destination services the only local file
// domains holding each file. It copies files into every destination,
// re-fetches metadata to verify placement, and only then deletes the
// files from the remaining local domains. A file that fails a phase is
// dropped from the later phases so a failed copy can never trigger a
// delete.
func (e *Executor) ForceInServices(ctx context.Context, exec *Execution, metadata []hydrus.FileMetadata, destinationKeys []string) ForceInReport {
	report := ForceInReport{
		Success:        true,
		FullySucceeded: []string{},
		FileErrors:     map[string]*FilePhaseErrors{},
	}
	report.Counts.Initial = len(metadata)
	if len(metadata) == 0 {
		return report
	}

	logger := e.ruleLogger(exec)

	if !validDestinationKeys(destinationKeys) {
		msg := fmt.Sprintf("force_in invoked with empty or blank destination keys %v, aborting before any file operation", destinationKeys)
		logger.Error("force_in destination keys invalid",
			logging.Any("destination_service_keys", destinationKeys),
		)
		report.Success = false
		report.OverallErrors = []string{msg}
		return report
	}

	allLocal := mapset.NewSet[string]()
	for _, svc := range exec.Catalog.LocalFileServices() {
		allLocal.Add(svc.ServiceKey)
	}

	survivors := mapset.NewSet[string]()
	for _, meta := range metadata {
		if meta.Hash != "" {
			survivors.Add(meta.Hash)
		}
	}

	logger.Info("force_in copy phase",
		logging.Int("files", survivors.Cardinality()),
		logging.Int("destinations", len(destinationKeys)),
	)

	migrateTimeout := secondsOr(e.cfg.Actions.MigrateTimeoutSeconds, 180*time.Second)
	for _, destKey := range destinationKeys {
		if survivors.IsEmpty() {
			break
		}
		result := e.batchedCallWithRetry(ctx, exec, sortedSlice(survivors),
			e.cfg.Actions.MigrateBatchSize, migrateTimeout,
			fmt.Sprintf("force_in copy to %q", destKey),
			func(callCtx context.Context, batch []string) error {
				return e.client.MigrateFiles(callCtx, batch, destKey)
			},
			func(callCtx context.Context, hash string) error {
				return e.client.MigrateFile(callCtx, hash, destKey)
			},
		)
		for _, failure := range result.Failed {
			survivors.Remove(failure.Item)
			recordPhaseFailure(report.FileErrors, failure.Item, "copy", PhaseFailure{
				ServiceKey: destKey,
				Message:    "copy failed: " + failure.Message,
				Status:     failure.Status,
			})
		}
	}
	report.Counts.Copied = survivors.Cardinality()
	if survivors.IsEmpty() {
		report.Success = false
		report.OverallErrors = append(report.OverallErrors, "no files were copied")
		return report
	}

	logger.Info("force_in verify phase", logging.Int("files", survivors.Cardinality()))
	freshMetadata, metadataErrors := e.FetchMetadata(ctx, exec, sortedSlice(survivors))
	for _, metaErr := range metadataErrors {
		for _, hash := range metaErr.Hashes {
			if !survivors.Contains(hash) {
				continue
			}
			survivors.Remove(hash)
			recordPhaseFailure(report.FileErrors, hash, "verify", PhaseFailure{
				Message: "metadata fetch failed: " + metaErr.Message,
				Status:  metaErr.Status,
			})
		}
	}

	destSet := mapset.NewSet(destinationKeys...)
	verified := mapset.NewSet[string]()
	metaByHash := make(map[string]hydrus.FileMetadata, len(freshMetadata))
	for _, meta := range freshMetadata {
		if meta.Hash == "" || !survivors.Contains(meta.Hash) {
			continue
		}
		currentSet := mapset.NewSet(meta.CurrentServiceKeys()...)
		if destSet.IsSubset(currentSet) {
			verified.Add(meta.Hash)
			metaByHash[meta.Hash] = meta
			continue
		}
		missing := sortedSlice(destSet.Difference(currentSet))
		recordPhaseFailure(report.FileErrors, meta.Hash, "verify", PhaseFailure{
			Message: "verification failed, file missing from: " + strings.Join(missing, ", "),
		})
	}
	report.Counts.Verified = verified.Cardinality()
	if verified.IsEmpty() {
		report.Success = false
		report.OverallErrors = append(report.OverallErrors, "no files passed placement verification")
		return report
	}

	logger.Info("force_in delete phase", logging.Int("files", verified.Cardinality()))
	deletionsByService := map[string][]string{}
	needsDeletion := mapset.NewSet[string]()
	for _, hash := range sortedSlice(verified) {
		meta, ok := metaByHash[hash]
		if !ok {
			verified.Remove(hash)
			recordPhaseFailure(report.FileErrors, hash, "delete_prep", PhaseFailure{
				Message: "fresh metadata missing for deletion planning",
			})
			continue
		}
		currentSet := mapset.NewSet(meta.CurrentServiceKeys()...)
		extras := currentSet.Intersect(allLocal).Difference(destSet)
		for _, serviceKey := range sortedSlice(extras) {
			deletionsByService[serviceKey] = append(deletionsByService[serviceKey], hash)
			needsDeletion.Add(hash)
		}
	}

	deletedOK := verified.Clone()
	deleteKeys := make([]string, 0, len(deletionsByService))
	for serviceKey := range deletionsByService {
		deleteKeys = append(deleteKeys, serviceKey)
	}
	sort.Strings(deleteKeys)

	deleteTimeout := secondsOr(e.cfg.Actions.DeleteTimeoutSeconds, 180*time.Second)
	for _, serviceKey := range deleteKeys {
		if deletedOK.IsEmpty() {
			break
		}
		var pending []string
		for _, hash := range deletionsByService[serviceKey] {
			if deletedOK.Contains(hash) {
				pending = append(pending, hash)
			}
		}
		if len(pending) == 0 {
			continue
		}
		result := e.batchedCallWithRetry(ctx, exec, pending,
			e.cfg.Actions.DeleteBatchSize, deleteTimeout,
			fmt.Sprintf("force_in delete from %q", serviceKey),
			func(callCtx context.Context, batch []string) error {
				return e.client.DeleteFiles(callCtx, batch, serviceKey)
			},
			func(callCtx context.Context, hash string) error {
				return e.client.DeleteFile(callCtx, hash, serviceKey)
			},
		)
		for _, failure := range result.Failed {
			deletedOK.Remove(failure.Item)
			recordPhaseFailure(report.FileErrors, failure.Item, "delete", PhaseFailure{
				ServiceKey: serviceKey,
				Message:    "delete failed: " + failure.Message,
				Status:     failure.Status,
			})
		}
	}

	for _, hash := range sortedSlice(verified) {
		if needsDeletion.Contains(hash) && !deletedOK.Contains(hash) {
			continue
		}
		report.FullySucceeded = append(report.FullySucceeded, hash)
	}
	report.Counts.Deleted = len(report.FullySucceeded)
	report.Success = len(report.FileErrors) == 0 && len(report.FullySucceeded) == report.Counts.Initial

	logger.Info("force_in complete",
		logging.Int("fully_successful", len(report.FullySucceeded)),
		logging.Int("files_with_errors", len(report.FileErrors)),
	)
	return report
}

func validDestinationKeys(keys []string) bool {
	if len(keys) == 0 {
		return false
	}
	for _, key := range keys {
		if strings.TrimSpace(key) == "" {
			return false
		}
	}
	return true
}

func sortedSlice(set mapset.Set[string]) []string {
	out := set.ToSlice()
	sort.Strings(out)
	return out
}
