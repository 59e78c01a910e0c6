// Package config provides loading and validation for turbo.json and for the
// per-user run settings that control remote caching.
package config

// TurboJSON represents the complete turbo.json pipeline document.
type TurboJSON struct {
	Schema             string                  `json:"$schema,omitempty"`
	BaseBranch         string                  `json:"baseBranch,omitempty"`
	GlobalDependencies []string                `json:"globalDependencies,omitempty"`
	Pipeline           map[string]PipelineJSON `json:"pipeline"`
	RemoteCache        *RemoteCacheJSON        `json:"remoteCache,omitempty"`
}

// PipelineJSON is one pipeline entry as written in turbo.json.
//
// A nil slice or pointer means the field was not set and is inherited from a
// less specific entry. An empty slice is an explicit empty list.
type PipelineJSON struct {
	DependsOn []string `json:"dependsOn,omitempty"`
	Outputs   []string `json:"outputs,omitempty"`
	Cache     *bool    `json:"cache,omitempty"`
}

// RemoteCacheJSON configures how turbo talks to the remote cache.
type RemoteCacheJSON struct {
	TeamID    string         `json:"teamId,omitempty"`
	Signature *SignatureJSON `json:"signature,omitempty"`
}

// SignatureJSON configures artifact signing for the remote cache.
type SignatureJSON struct {
	Enabled bool   `json:"enabled,omitempty"`
	Key     string `json:"key,omitempty"`
	KeyEnv  string `json:"keyEnv,omitempty"`
}

// ResolveKey returns the signing key. A direct key takes precedence over
// the environment variable named by KeyEnv.
func (s *SignatureJSON) ResolveKey(getenv func(string) string) string {
	if s == nil {
		return ""
	}
	if s.Key != "" {
		return s.Key
	}
	if s.KeyEnv != "" && getenv != nil {
		return getenv(s.KeyEnv)
	}
	return ""
}

// TeamID returns the remote cache team ID, or "" when none is configured.
func (c *TurboJSON) TeamID() string {
	if c.RemoteCache == nil {
		return ""
	}
	return c.RemoteCache.TeamID
}

// Signature returns the signature block, or nil when none is configured.
func (c *TurboJSON) Signature() *SignatureJSON {
	if c.RemoteCache == nil {
		return nil
	}
	return c.RemoteCache.Signature
}
