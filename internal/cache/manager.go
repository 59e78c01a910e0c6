package cache

import (
	"context"
	"errors"

	"github.com/hashicorp/go-hclog"

	"github.com/AlexRogalskiy/turborepo/internal/logging"
)

// Source identifies where a cache hit came from.
type Source string

const (
	SourceLocal  Source = "local"
	SourceRemote Source = "remote"
)

// Hit is a successful cache lookup.
type Hit struct {
	Entry  *Entry
	Source Source
}

// Options configures a Manager.
type Options struct {
	// Local is required unless RemoteOnly is set.
	Local *LocalStore
	// Remote is optional.
	Remote *RemoteStore
	// SkipReads ignores existing entries; results are still stored.
	SkipReads bool
	// SkipWrites never stores results.
	SkipWrites bool
	// RemoteOnly bypasses the local store.
	RemoteOnly bool
	Logger     hclog.Logger
	Observer   Observer
}

// Manager looks up and stores task results across the local and remote stores.
type Manager struct {
	opts     Options
	logger   hclog.Logger
	observer Observer
}

// NewManager creates a cache manager.
func NewManager(opts Options) *Manager {
	m := &Manager{opts: opts, logger: logging.OrNull(opts.Logger), observer: opts.Observer}
	if m.observer == nil {
		m.observer = nopObserver{}
	}
	return m
}

func (m *Manager) useLocal() bool {
	return m.opts.Local != nil && !m.opts.RemoteOnly
}

// RemoteEnabled reports whether the remote store is configured and active.
func (m *Manager) RemoteEnabled() bool {
	return m.opts.Remote != nil && m.opts.Remote.Enabled()
}

// Lookup returns the cached entry for fp, or nil on a miss. Tasks that are
// not cacheable always miss. A remote hit is written through to the local
// store. Lookup failures are logged and reported as misses.
func (m *Manager) Lookup(ctx context.Context, fp string, cacheable bool) *Hit {
	if !cacheable || m.opts.SkipReads {
		return nil
	}

	if m.useLocal() {
		data, err := m.opts.Local.Fetch(ctx, fp)
		if err != nil {
			m.logger.Warn("reading local cache", "hash", fp, "error", err)
		}
		if e := m.decode(fp, data); e != nil {
			m.observer.CacheLookup(SourceLocal, true)
			return &Hit{Entry: e, Source: SourceLocal}
		}
		m.observer.CacheLookup(SourceLocal, false)
	}

	if m.RemoteEnabled() {
		data, err := m.opts.Remote.Fetch(ctx, fp)
		if err != nil {
			m.logger.Debug("remote cache lookup failed", "hash", fp, "error", err)
		}
		if e := m.decode(fp, data); e != nil {
			m.observer.CacheLookup(SourceRemote, true)
			if m.useLocal() && !m.opts.SkipWrites {
				if err := m.opts.Local.Put(ctx, fp, data); err != nil {
					m.logger.Warn("writing remote artifact to local cache", "hash", fp, "error", err)
				}
			}
			return &Hit{Entry: e, Source: SourceRemote}
		}
		m.observer.CacheLookup(SourceRemote, false)
	}
	return nil
}

func (m *Manager) decode(fp string, data []byte) *Entry {
	if data == nil {
		return nil
	}
	e, err := Decode(data)
	if err != nil {
		m.logger.Warn("ignoring corrupt cache artifact", "hash", fp, "error", err)
		return nil
	}
	if e.Meta.LogOnly {
		return nil
	}
	return e
}

// LogKey is the local key of the log-only entry of fingerprint fp. It never
// collides with the key of a complete entry.
func LogKey(fp string) string {
	return fp + "-log"
}

// Store persists an entry. Entries of non-cacheable tasks are reduced to
// their log and kept local only, under LogKey(fp).
func (m *Manager) Store(ctx context.Context, fp string, e *Entry, cacheable bool) error {
	if m.opts.SkipWrites {
		return nil
	}

	stored := *e
	stored.Meta.Hash = fp
	if !cacheable {
		stored.Files = nil
		stored.Meta.LogOnly = true
	}
	data, err := Encode(&stored)
	if err != nil {
		return err
	}

	key := fp
	if !cacheable {
		key = LogKey(fp)
	}
	var errs []error
	if m.useLocal() {
		// Results finishing after an interrupt are still kept.
		if err := m.opts.Local.Put(context.WithoutCancel(ctx), key, data); err != nil {
			errs = append(errs, err)
		}
	}
	if cacheable && m.RemoteEnabled() {
		if err := m.opts.Remote.Put(ctx, fp, data, stored.Meta.Duration); err != nil {
			m.logger.Debug("remote cache upload failed", "hash", fp, "error", err)
		}
	}
	return errors.Join(errs...)
}
