package hashing

import (
	"context"
	"fmt"

	"github.com/AlexRogalskiy/turborepo/internal/taskgraph"
)

// FingerprintInputs are the fields hashed into a task fingerprint.
type FingerprintInputs struct {
	GlobalDigest string
	PackageHash  string
	Command      string
	// Env holds NAME=value pairs sorted by name.
	Env []string
	// Predecessors holds dependency fingerprints in graph order.
	Predecessors []string
}

// Fingerprint hashes inputs. Equal inputs always produce equal fingerprints.
func Fingerprint(in FingerprintInputs) string {
	d := newDigest()
	d.str(FormatVersion)
	d.str(in.GlobalDigest)
	d.str(in.PackageHash)
	d.str(in.Command)
	d.count(len(in.Env))
	for _, kv := range in.Env {
		d.str(kv)
	}
	d.count(len(in.Predecessors))
	for _, fp := range in.Predecessors {
		d.str(fp)
	}
	return d.sum()
}

// Engine fingerprints task graph nodes.
type Engine struct {
	rc       *RunContext
	packages *PackageHasher
}

// NewEngine creates an engine for one run.
func NewEngine(rc *RunContext, packages *PackageHasher) *Engine {
	return &Engine{rc: rc, packages: packages}
}

// Inputs collects the fingerprint inputs of n. Every predecessor of n must
// already have its fingerprint set.
func (e *Engine) Inputs(ctx context.Context, g *taskgraph.Graph, n *taskgraph.Node) (FingerprintInputs, error) {
	pkgHash, err := e.packages.PackageHash(ctx, n.Package, n.Entry.Outputs)
	if err != nil {
		return FingerprintInputs{}, err
	}

	in := FingerprintInputs{
		GlobalDigest: e.rc.GlobalDigest(),
		PackageHash:  pkgHash,
		Command:      n.Command,
	}
	for _, name := range n.EnvVars {
		in.Env = append(in.Env, name+"="+e.rc.Getenv(name))
	}
	for _, id := range n.Deps {
		dep, ok := g.Get(id)
		if !ok {
			return FingerprintInputs{}, fmt.Errorf("%s: unknown dependency %s", n.ID, id)
		}
		fp := dep.Fingerprint()
		if fp == "" {
			return FingerprintInputs{}, fmt.Errorf("%s: dependency %s has no fingerprint", n.ID, id)
		}
		in.Predecessors = append(in.Predecessors, fp)
	}
	return in, nil
}

// Fingerprint computes and records the fingerprint of n.
func (e *Engine) Fingerprint(ctx context.Context, g *taskgraph.Graph, n *taskgraph.Node) (string, error) {
	if fp := n.Fingerprint(); fp != "" {
		return fp, nil
	}
	in, err := e.Inputs(ctx, g, n)
	if err != nil {
		return "", err
	}
	fp := Fingerprint(in)
	if err := n.SetFingerprint(fp); err != nil {
		return "", err
	}
	return fp, nil
}
