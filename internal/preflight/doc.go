// Package preflight provides readiness checks for the filesystem paths,
// database, rules document, and Hydrus API that butler depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll once at startup. A failed required check
//     aborts startup; a failed optional check (Hydrus connectivity) is
//     logged and startup continues.
//   - The CLI "butler status" command uses individual check functions
//     (CheckHydrusFromConfig, CheckDirectoryAccess) to display health.
package preflight
