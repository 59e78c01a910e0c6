package cache

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/hashicorp/go-hclog"

	"github.com/AlexRogalskiy/turborepo/internal/client"
	turboerrors "github.com/AlexRogalskiy/turborepo/internal/errors"
	"github.com/AlexRogalskiy/turborepo/internal/logging"
)

// DefaultMaxRemoteFailures is the number of failed remote requests after
// which the remote cache is disabled for the rest of the run.
const DefaultMaxRemoteFailures = 3

// Transport moves artifacts to and from the remote cache.
type Transport interface {
	PutArtifact(ctx context.Context, hash string, body []byte, duration time.Duration, tag string) error
	FetchArtifact(ctx context.Context, hash string) (*client.Artifact, error)
}

// RemoteOptions configures a RemoteStore.
type RemoteOptions struct {
	// Signer signs uploads and verifies downloads. Nil disables signing.
	Signer      *Signer
	MaxFailures int
	// MaxTries bounds attempts per request, including the first.
	MaxTries      uint
	RetryInterval time.Duration
	Logger        hclog.Logger
	Observer      Observer
}

// RemoteStore reads and writes artifacts through a Transport. Transport
// failures are retried with backoff; after MaxFailures failed requests the
// store disables itself.
type RemoteStore struct {
	transport     Transport
	signer        *Signer
	maxFailures   int
	maxTries      uint
	retryInterval time.Duration
	logger        hclog.Logger
	observer      Observer

	mu       sync.Mutex
	failures int
	disabled bool
}

// NewRemoteStore creates a remote store.
func NewRemoteStore(t Transport, opts RemoteOptions) *RemoteStore {
	r := &RemoteStore{
		transport:     t,
		signer:        opts.Signer,
		maxFailures:   opts.MaxFailures,
		maxTries:      opts.MaxTries,
		retryInterval: opts.RetryInterval,
		logger:        opts.Logger,
		observer:      opts.Observer,
	}
	if r.maxFailures <= 0 {
		r.maxFailures = DefaultMaxRemoteFailures
	}
	if r.maxTries == 0 {
		r.maxTries = 2
	}
	if r.retryInterval <= 0 {
		r.retryInterval = 200 * time.Millisecond
	}
	r.logger = logging.OrNull(r.logger)
	if r.observer == nil {
		r.observer = nopObserver{}
	}
	return r
}

// Enabled reports whether the store still accepts requests.
func (r *RemoteStore) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.disabled
}

// Fetch downloads and verifies the artifact for fp. Misses, disabled
// stores, and artifacts failing verification all return nil.
func (r *RemoteStore) Fetch(ctx context.Context, fp string) ([]byte, error) {
	if !r.Enabled() {
		return nil, nil
	}

	artifact, err := retry(ctx, r, func() (*client.Artifact, error) {
		return r.transport.FetchArtifact(ctx, fp)
	})
	if err != nil {
		r.recordFailure(err)
		return nil, err
	}
	if artifact == nil {
		return nil, nil
	}

	if r.signer != nil {
		if err := r.signer.Verify(fp, artifact.Body, artifact.Tag); err != nil {
			r.observer.IntegrityFailure()
			r.logger.Warn("ignoring remote artifact", "error", err)
			return nil, nil
		}
	}
	return artifact.Body, nil
}

// Put uploads the artifact for fp.
func (r *RemoteStore) Put(ctx context.Context, fp string, body []byte, duration time.Duration) error {
	if !r.Enabled() {
		return nil
	}
	tag := ""
	if r.signer != nil {
		tag = r.signer.Sign(fp, body)
	}
	_, err := retry(ctx, r, func() (struct{}, error) {
		return struct{}{}, r.transport.PutArtifact(ctx, fp, body, duration, tag)
	})
	if err != nil {
		r.recordFailure(err)
	}
	return err
}

func (r *RemoteStore) recordFailure(err error) {
	if !turboerrors.IsKind(err, turboerrors.KindTransport) {
		return
	}
	r.observer.RemoteError()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disabled {
		return
	}
	r.failures++
	r.logger.Debug("remote cache request failed", "failures", r.failures, "error", err)
	if r.failures >= r.maxFailures {
		r.disabled = true
		r.logger.Warn("remote cache disabled after repeated failures", "failures", r.failures, "error", err)
	}
}

// retry runs op until it succeeds, fails with a non-transport error, or
// exhausts the store's attempts.
func retry[T any](ctx context.Context, r *RemoteStore, op func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.retryInterval
	b.MaxInterval = 4 * r.retryInterval

	return backoff.Retry(ctx, func() (T, error) {
		res, err := op()
		if err != nil && !turboerrors.IsKind(err, turboerrors.KindTransport) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(r.maxTries))
}
