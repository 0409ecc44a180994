package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"butler/internal/config"
	"butler/internal/rules"
	"butler/internal/services"
	"butler/internal/services/hydrus"
	"butler/internal/store"
)

// minFreeBytes is the least free space the log and database volume may
// have before startup is blocked.
const minFreeBytes = 256 << 20

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckDiskSpace verifies the filesystem holding path has room left for
// logs and the database.
func CheckDiskSpace(name, path string) Result {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	free := stat.Bavail * uint64(stat.Bsize)
	if free < minFreeBytes {
		return Result{Name: name, Detail: fmt.Sprintf("%s (%s free, need at least %s)", path, formatBytes(free), formatBytes(minFreeBytes))}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s free)", path, formatBytes(free))}
}

// CheckRulesDocument verifies the rules document parses. A document that
// does not exist yet passes; the daemon simply has no rules to run.
func CheckRulesDocument(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "path not configured"}
	}
	defs, err := rules.LoadDocument(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	if defs == nil {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (not created yet)", path)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d rules)", path, len(defs))}
}

// CheckDatabase verifies the database opens and its schema matches. Opening
// applies the session pragmas and creates the schema on first run, so a
// pass also proves the volume accepts writes.
func CheckDatabase(cfg *config.Config) Result {
	const name = "Database"

	st, err := store.Open(cfg)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", cfg.Storage.DatabasePath, err)}
	}
	defer st.Close()
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (schema ok)", st.Path())}
}

// CheckHydrus verifies that the Hydrus client API is reachable and the
// access key is accepted. It uses a 5-second timeout and a single attempt.
func CheckHydrus(ctx context.Context, apiURL, apiKey string) Result {
	const name = "Hydrus API"

	if strings.TrimSpace(apiURL) == "" {
		return Result{Name: name, Optional: true, Detail: "missing api url"}
	}
	if strings.TrimSpace(apiKey) == "" {
		return Result{Name: name, Optional: true, Detail: "missing api key"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := hydrus.New(apiURL, apiKey, &http.Client{Timeout: 5 * time.Second})
	catalog, err := client.GetServices(checkCtx)
	if err != nil {
		return Result{Name: name, Optional: true, Detail: summarizeHydrusError(err)}
	}
	return Result{Name: name, Passed: true, Optional: true, Detail: fmt.Sprintf("reachable (%d services)", catalog.Len())}
}

// summarizeHydrusError produces a human-readable summary for Hydrus
// connectivity failures.
func summarizeHydrusError(err error) string {
	switch {
	case errors.Is(err, services.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "connectivity check timed out (Hydrus API unresponsive)"
	case errors.Is(err, services.ErrConnection):
		return "connection failed (is the Hydrus client running with the API enabled?)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "connectivity check timed out (Hydrus API unreachable)"
	}
	var apiErr *hydrus.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return "auth failed (invalid api key)"
		}
	}
	return err.Error()
}

func formatBytes(value uint64) string {
	const (
		kiB = 1024
		miB = kiB * 1024
		giB = miB * 1024
	)
	switch {
	case value >= giB:
		return fmt.Sprintf("%.2f GiB", float64(value)/float64(giB))
	case value >= miB:
		return fmt.Sprintf("%.2f MiB", float64(value)/float64(miB))
	case value >= kiB:
		return fmt.Sprintf("%.2f KiB", float64(value)/float64(kiB))
	default:
		return fmt.Sprintf("%d B", value)
	}
}
