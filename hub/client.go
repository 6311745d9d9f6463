// Package hub talks to the model hub: listing repository files, downloading
// models, and uploading quantized artifacts. All transfers stream progress
// through api.ProgressResponse callbacks so callers can forward them.
package hub

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"path"
	"runtime"
	"time"

	"github.com/spongeengine/spongequant/api"
	"github.com/spongeengine/spongequant/envconfig"
	"github.com/spongeengine/spongequant/version"
)

const (
	// maxRetries bounds per-file transfer attempts. Retries resume from
	// whatever the previous attempt got onto disk.
	maxRetries = 6

	// numTransfers is how many files move in parallel per model.
	numTransfers = 4
)

// Patterns never worth transferring for quantization. These are
// alternative serialization formats of the same weights.
var defaultIgnores = []string{"*.msgpack", "*.h5", "*.ot", "*.onnx"}

type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

func NewClient(base *url.URL, token string, http *http.Client) *Client {
	return &Client{base: base, token: token, http: http}
}

// FromEnvironment returns a client for the configured hub endpoint. An
// empty token falls back to the token from the environment.
func FromEnvironment(token string) (*Client, error) {
	base, err := url.Parse(envconfig.HubEndpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid hub endpoint: %w", err)
	}

	return NewClient(base, cmp.Or(token, envconfig.HubToken), http.DefaultClient), nil
}

func (c *Client) newRequest(ctx context.Context, method string, requestURL *url.URL, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, requestURL.String(), body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", fmt.Sprintf("spongequant/%s (%s %s) Go/%s", version.Version, runtime.GOARCH, runtime.GOOS, runtime.Version()))
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	return req, nil
}

// checkResponse turns a non-2xx response into an error, draining the body
// for the hub's error message if it sent one.
func checkResponse(resp *http.Response) error {
	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var apiError struct {
		Error string `json:"error"`
	}

	if err := json.Unmarshal(body, &apiError); err == nil && apiError.Error != "" {
		return fmt.Errorf("hub: %s: %s", resp.Status, apiError.Error)
	}

	return fmt.Errorf("hub: %s", resp.Status)
}

// ModelInfo is the hub's description of a repository.
type ModelInfo struct {
	ID       string    `json:"id"`
	SHA      string    `json:"sha"`
	Siblings []Sibling `json:"siblings"`
}

// Sibling is one file belonging to a repository.
type Sibling struct {
	Name string `json:"rfilename"`
	Size int64  `json:"size"`
}

// ModelInfo fetches the file listing for ref, including blob sizes.
func (c *Client) ModelInfo(ctx context.Context, ref Ref) (*ModelInfo, error) {
	requestURL := c.base.JoinPath("api", "models", ref.Owner, ref.Name)
	values := requestURL.Query()
	values.Set("blobs", "true")
	requestURL.RawQuery = values.Encode()

	req, err := c.newRequest(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return nil, err
	}

	var info ModelInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, err
	}

	return &info, nil
}

// skipped reports whether name matches any of the glob patterns. Patterns
// are tried against both the full relative path and its base name.
func skipped(name string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, _ := path.Match(pattern, name); ok {
			return true
		}

		if ok, _ := path.Match(pattern, path.Base(name)); ok {
			return true
		}
	}

	return false
}

// jitter keeps parallel transfers from retrying in lockstep.
func jitter() time.Duration {
	return time.Duration(rand.Int63n(int64(time.Second)))
}

// backoff sleeps for try squared seconds plus jitter, or until ctx is done.
func backoff(ctx context.Context, try int) error {
	d := time.Duration(try*try)*time.Second + jitter()

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// progressWriter reports transfer progress for a single file, throttled so
// streaming callers are not flooded. Callers emit once more when done.
type progressWriter struct {
	status    string
	name      string
	total     int64
	completed int64
	emitted   time.Time
	fn        func(api.ProgressResponse)
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.completed += int64(len(p))
	if time.Since(w.emitted) >= 100*time.Millisecond {
		w.emit()
	}

	return len(p), nil
}

func (w *progressWriter) emit() {
	w.emitted = time.Now()
	w.fn(api.ProgressResponse{
		Status:    w.status,
		Digest:    w.name,
		Total:     w.total,
		Completed: w.completed,
	})
}
