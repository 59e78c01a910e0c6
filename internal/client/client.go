// Package client talks to the remote cache HTTP API.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-retryablehttp"

	turboerrors "github.com/AlexRogalskiy/turborepo/internal/errors"
	"github.com/AlexRogalskiy/turborepo/internal/logging"
)

// Artifact headers.
const (
	HeaderArtifactTag      = "x-artifact-tag"
	HeaderArtifactDuration = "x-artifact-duration"
)

// DefaultRetryMax is the number of retries per request.
const DefaultRetryMax = 2

// Options configures an APIClient.
type Options struct {
	Token    string
	TeamID   string
	TeamSlug string
	// Timeout bounds each HTTP attempt. Zero disables the timeout.
	Timeout  time.Duration
	RetryMax int
	Version  string
	Logger   hclog.Logger
}

// Artifact is a cache artifact downloaded from the remote.
type Artifact struct {
	Body []byte
	// Tag is the x-artifact-tag header; empty when the artifact is unsigned.
	Tag string
	// Duration is the original task duration.
	Duration time.Duration
}

// APIClient is a client for the artifacts API.
type APIClient struct {
	baseURL   string
	token     string
	teamID    string
	teamSlug  string
	userAgent string
	http      *retryablehttp.Client
}

// New creates a client for the API at baseURL.
func New(baseURL string, opts Options) *APIClient {
	retryMax := opts.RetryMax
	if retryMax == 0 {
		retryMax = DefaultRetryMax
	}
	logger := logging.OrNull(opts.Logger)

	rc := retryablehttp.NewClient()
	rc.HTTPClient = &http.Client{Timeout: opts.Timeout}
	rc.RetryMax = retryMax
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = logger.Named("http")

	version := opts.Version
	if version == "" {
		version = "dev"
	}

	return &APIClient{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		token:     opts.Token,
		teamID:    opts.TeamID,
		teamSlug:  opts.TeamSlug,
		userAgent: "turbo " + version,
		http:      rc,
	}
}

// TeamID returns the team the client is scoped to.
func (c *APIClient) TeamID() string {
	return c.teamID
}

func (c *APIClient) artifactURL(hash string) string {
	q := url.Values{}
	if c.teamID != "" {
		q.Set("teamId", c.teamID)
	}
	if c.teamSlug != "" {
		q.Set("slug", c.teamSlug)
	}
	u := c.baseURL + "/v8/artifacts/" + url.PathEscape(hash)
	if encoded := q.Encode(); encoded != "" {
		u += "?" + encoded
	}
	return u
}

func (c *APIClient) newRequest(ctx context.Context, method, hash string, body []byte) (*retryablehttp.Request, error) {
	var reqBody interface{}
	if body != nil {
		reqBody = body
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.artifactURL(hash), reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", c.userAgent)
	return req, nil
}

// PutArtifact uploads an artifact. tag is sent as x-artifact-tag when non-empty.
func (c *APIClient) PutArtifact(ctx context.Context, hash string, body []byte, duration time.Duration, tag string) error {
	req, err := c.newRequest(ctx, http.MethodPut, hash, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set(HeaderArtifactDuration, strconv.FormatInt(duration.Milliseconds(), 10))
	if tag != "" {
		req.Header.Set(HeaderArtifactTag, tag)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return transportError("uploading", hash, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return transportError("uploading", hash, statusError(resp))
	}
	return nil
}

// FetchArtifact downloads an artifact. A missing artifact returns (nil, nil).
func (c *APIClient) FetchArtifact(ctx context.Context, hash string) (*Artifact, error) {
	req, err := c.newRequest(ctx, http.MethodGet, hash, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportError("fetching", hash, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, transportError("fetching", hash, statusError(resp))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError("reading", hash, err)
	}

	artifact := &Artifact{Body: body, Tag: resp.Header.Get(HeaderArtifactTag)}
	if ms, err := strconv.ParseInt(resp.Header.Get(HeaderArtifactDuration), 10, 64); err == nil {
		artifact.Duration = time.Duration(ms) * time.Millisecond
	}
	return artifact, nil
}

func statusError(resp *http.Response) error {
	return fmt.Errorf("unexpected status %s", resp.Status)
}

func transportError(action, hash string, cause error) error {
	return turboerrors.Transport(fmt.Sprintf("%s artifact %s: %v", action, hash, cause), cause)
}
