package hashing

import "strings"

// RunContext holds the per-run values every fingerprint depends on. It is
// built once before graph construction and never modified.
type RunContext struct {
	root         string
	global       *GlobalHashInputs
	globalDigest string
	env          map[string]string
}

// NewRunContext snapshots environ (KEY=value pairs, as from os.Environ) and
// computes the global inputs.
func NewRunContext(root string, globalDeps []string, environ []string) (*RunContext, error) {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		env[k] = v
	}

	rc := &RunContext{root: root, env: env}
	global, err := ComputeGlobalInputs(root, globalDeps, rc.Getenv)
	if err != nil {
		return nil, err
	}
	rc.global = global
	rc.globalDigest = global.Digest()
	return rc, nil
}

// Root returns the repository root.
func (rc *RunContext) Root() string { return rc.root }

// Global returns the global hash inputs.
func (rc *RunContext) Global() *GlobalHashInputs { return rc.global }

// GlobalDigest returns the digest of the global hash inputs.
func (rc *RunContext) GlobalDigest() string { return rc.globalDigest }

// Getenv returns the snapshotted value of an environment variable.
func (rc *RunContext) Getenv(name string) string {
	return rc.env[name]
}
