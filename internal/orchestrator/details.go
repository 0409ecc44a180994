package orchestrator

import (
	"encoding/json"
	"log/slog"

	"butler/internal/actions"
	"butler/internal/logging"
	"butler/internal/translate"
)

// runDetails is the document stored in the run log details column and
// surfaced by the run inspection commands. Slices start non-nil so the
// stored JSON always carries arrays.
type runDetails struct {
	TranslationWarnings []translate.Warning     `json:"translation_warnings"`
	SkippedRecentView   int                     `json:"files_skipped_due_to_recent_view"`
	SkippedOverride     int                     `json:"files_skipped_due_to_override"`
	MetadataErrors      []actions.MetadataError `json:"metadata_errors"`
	ActionResults       []any                   `json:"action_processing_results"`
	CriticalError       string                  `json:"critical_error,omitempty"`
	CriticalErrorStack  string                  `json:"critical_error_stack,omitempty"`
}

func newRunDetails() *runDetails {
	return &runDetails{
		TranslationWarnings: []translate.Warning{},
		MetadataErrors:      []actions.MetadataError{},
		ActionResults:       []any{},
	}
}

func (d *runDetails) encode(logger *slog.Logger) string {
	data, err := json.Marshal(d)
	if err != nil {
		logger.Warn("could not encode run details", logging.Error(err))
		return "{}"
	}
	return string(data)
}
