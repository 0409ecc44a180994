package preflight

import (
	"context"
	"strings"

	"butler/internal/config"
)

// CheckHydrusFromConfig evaluates Hydrus API status from config and connectivity.
// Status displays call this for a point-in-time snapshot.
func CheckHydrusFromConfig(cfg *config.Config) Result {
	const name = "Hydrus API"

	if cfg == nil {
		return Result{Name: name, Optional: true, Detail: "Unknown"}
	}
	if strings.TrimSpace(cfg.Hydrus.APIURL) == "" {
		return Result{Name: name, Optional: true, Detail: "Missing API URL"}
	}
	if strings.TrimSpace(cfg.Hydrus.APIKey) == "" {
		return Result{Name: name, Optional: true, Detail: "Missing API key"}
	}
	return CheckHydrus(context.Background(), cfg.Hydrus.APIURL, cfg.Hydrus.APIKey)
}
