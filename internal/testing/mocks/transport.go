package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/AlexRogalskiy/turborepo/internal/client"
)

type storedArtifact struct {
	body     []byte
	tag      string
	duration time.Duration
}

// Transport is an in-memory remote cache implementing cache.Transport.
type Transport struct {
	mu        sync.Mutex
	artifacts map[string]storedArtifact
	err       error
	fetches   int
	puts      int
}

// NewTransport creates an empty remote.
func NewTransport() *Transport {
	return &Transport{artifacts: make(map[string]storedArtifact)}
}

// WithFailure makes every request fail with err.
func (t *Transport) WithFailure(err error) *Transport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.err = err
	return t
}

// PutArtifact implements cache.Transport.
func (t *Transport) PutArtifact(ctx context.Context, hash string, body []byte, duration time.Duration, tag string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.puts++
	if t.err != nil {
		return t.err
	}
	t.artifacts[hash] = storedArtifact{body: append([]byte(nil), body...), tag: tag, duration: duration}
	return nil
}

// FetchArtifact implements cache.Transport.
func (t *Transport) FetchArtifact(ctx context.Context, hash string) (*client.Artifact, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fetches++
	if t.err != nil {
		return nil, t.err
	}
	a, ok := t.artifacts[hash]
	if !ok {
		return nil, nil
	}
	return &client.Artifact{Body: append([]byte(nil), a.body...), Tag: a.tag, Duration: a.duration}, nil
}

// Tamper flips a byte of a stored artifact, keeping its tag.
func (t *Transport) Tamper(hash string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.artifacts[hash]
	if !ok || len(a.body) == 0 {
		return false
	}
	a.body[len(a.body)-1] ^= 0xff
	t.artifacts[hash] = a
	return true
}

// SetTag replaces the tag of a stored artifact.
func (t *Transport) SetTag(hash, tag string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	a := t.artifacts[hash]
	a.tag = tag
	t.artifacts[hash] = a
}

// Tag returns the tag a stored artifact was uploaded with.
func (t *Transport) Tag(hash string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.artifacts[hash].tag
}

// Has reports whether an artifact is stored.
func (t *Transport) Has(hash string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.artifacts[hash]
	return ok
}

// Fetches returns the number of fetch requests.
func (t *Transport) Fetches() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fetches
}

// Puts returns the number of upload requests.
func (t *Transport) Puts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.puts
}
