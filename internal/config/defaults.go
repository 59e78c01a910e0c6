package config

// Default configuration values.
const (
	DefaultBaseBranch = "origin/master"
	DefaultAPIURL     = "https://vercel.com/api"
	DefaultCacheDir   = "node_modules/.cache/turbo"

	// DefaultRemoteCacheTimeout is the remote cache request timeout in seconds.
	DefaultRemoteCacheTimeout = 60
)

// ConfigFileNames lists the pipeline document names in lookup order.
var ConfigFileNames = []string{"turbo.json", "turbo.yaml", "turbo.yml"}

// applyDefaults fills in default values for unset configuration fields.
func applyDefaults(cfg *TurboJSON) {
	if cfg.BaseBranch == "" {
		cfg.BaseBranch = DefaultBaseBranch
	}
	if cfg.Pipeline == nil {
		cfg.Pipeline = make(map[string]PipelineJSON)
	}
}
