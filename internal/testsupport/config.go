package testsupport

import (
	"path/filepath"
	"testing"

	"butler/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Hydrus.APIURL = "http://127.0.0.1:45869"
	cfgVal.Hydrus.APIKey = "test"
	cfgVal.Rules.Path = filepath.Join(base, "rules.json")
	cfgVal.Storage.DatabasePath = filepath.Join(base, "db", "butler.db")
	cfgVal.Logging.Dir = filepath.Join(base, "logs")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithHydrusURL points the test config at the given client API endpoint,
// usually an httptest server.
func WithHydrusURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Hydrus.APIURL = url
	}
}

// WithRulesPath overrides the rules file location on the test config.
func WithRulesPath(path string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Rules.Path = path
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Rules.Path)
}
