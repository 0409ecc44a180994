// Package actions issues the Hydrus API calls that rules resolve to:
// file migrations, tag mutations, and rating edits. Calls run in
// batches and fall back to per-item retries so one bad file cannot
// sink a whole batch; every operation returns a structured report
// instead of propagating API errors.
package actions
