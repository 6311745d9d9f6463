package hub

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spongeengine/spongequant/api"
)

func TestUpload(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# hi"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tiny-q4_k_m.gguf"), []byte("QUANTIZED"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tiny.bf16.gguf"), []byte("INTERMEDIATE"), 0o644))

	var mu sync.Mutex
	uploads := make(map[string]string)

	mux := http.NewServeMux()
	mux.HandleFunc("HEAD /{owner}/{name}/resolve/main/{file...}", func(w http.ResponseWriter, r *http.Request) {
		// the hub already has the README at the same size
		if r.PathValue("file") == "README.md" {
			w.Header().Set("Content-Length", strconv.Itoa(len("# hi")))
			return
		}

		w.WriteHeader(http.StatusNotFound)
	})

	mux.HandleFunc("PUT /api/{owner}/{name}/upload/main/{file...}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer testtoken", r.Header.Get("Authorization"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		mu.Lock()
		uploads[r.PathValue("file")] = string(body)
		mu.Unlock()
	})

	c := testClient(t, mux)

	var pmu sync.Mutex
	var statuses []string
	err := c.Upload(context.Background(), Ref{Owner: "acme", Name: "tiny-GGUF"}, dir, []string{"*.bf16.gguf"}, func(resp api.ProgressResponse) {
		pmu.Lock()
		defer pmu.Unlock()
		statuses = append(statuses, resp.Status)
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"tiny-q4_k_m.gguf": "QUANTIZED"}, uploads)
	assert.Contains(t, statuses, "using existing file README.md")
	assert.Contains(t, statuses, "uploading tiny-q4_k_m.gguf")
}

func TestUploadError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tiny-q4_k_m.gguf"), []byte("QUANTIZED"), 0o644))

	mux := http.NewServeMux()
	mux.HandleFunc("HEAD /{owner}/{name}/resolve/main/{file...}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	mux.HandleFunc("PUT /api/{owner}/{name}/upload/main/{file...}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
	})

	c := testClient(t, mux)

	err := c.Upload(context.Background(), Ref{Owner: "acme", Name: "tiny-GGUF"}, dir, nil, func(api.ProgressResponse) {})
	assert.ErrorContains(t, err, "tiny-q4_k_m.gguf")
}
