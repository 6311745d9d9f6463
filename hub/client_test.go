package hub

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, h http.Handler) *Client {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	base, err := url.Parse(srv.URL)
	require.NoError(t, err)

	return NewClient(base, "testtoken", srv.Client())
}

func TestParseRef(t *testing.T) {
	cases := []struct {
		in    string
		want  Ref
		valid bool
	}{
		{"acme/tiny-llama", Ref{Owner: "acme", Name: "tiny-llama"}, true},
		{"  acme/tiny-llama  ", Ref{Owner: "acme", Name: "tiny-llama"}, true},
		{"Org-1/Model_v0.2", Ref{Owner: "Org-1", Name: "Model_v0.2"}, true},
		{"tiny-llama", Ref{}, false},
		{"/tiny-llama", Ref{}, false},
		{"acme/", Ref{}, false},
		{"acme/tiny/llama", Ref{}, false},
		{"acme/tiny llama", Ref{}, false},
		{"", Ref{}, false},
	}

	for _, tt := range cases {
		ref, err := ParseRef(tt.in)
		if !tt.valid {
			assert.ErrorContains(t, err, "invalid model reference", tt.in)
			continue
		}

		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, ref)
		assert.Equal(t, tt.want.Owner+"/"+tt.want.Name, ref.String())
		assert.Equal(t, tt.want.Name, ref.Base())
	}
}

func TestSkipped(t *testing.T) {
	patterns := []string{"*.msgpack", "*.h5", "*.ot", "*.onnx"}

	assert.True(t, skipped("model.onnx", patterns))
	assert.True(t, skipped("flax_model.msgpack", patterns))
	assert.True(t, skipped("nested/dir/tf_model.h5", patterns))
	assert.False(t, skipped("model.safetensors", patterns))
	assert.False(t, skipped("config.json", patterns))
	assert.False(t, skipped("onnx.txt", patterns))
}

func TestModelInfo(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/models/{owner}/{name}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer testtoken", r.Header.Get("Authorization"))
		assert.Equal(t, "true", r.URL.Query().Get("blobs"))

		fmt.Fprintf(w, `{
			"id": "%s/%s",
			"sha": "0a1b2c",
			"siblings": [
				{"rfilename": "config.json", "size": 42},
				{"rfilename": "model.safetensors", "size": 1024}
			]
		}`, r.PathValue("owner"), r.PathValue("name"))
	})

	c := testClient(t, mux)

	info, err := c.ModelInfo(context.Background(), Ref{Owner: "acme", Name: "tiny"})
	require.NoError(t, err)

	assert.Equal(t, "acme/tiny", info.ID)
	assert.Equal(t, "0a1b2c", info.SHA)
	require.Len(t, info.Siblings, 2)
	assert.Equal(t, Sibling{Name: "config.json", Size: 42}, info.Siblings[0])
	assert.Equal(t, Sibling{Name: "model.safetensors", Size: 1024}, info.Siblings[1])
}

func TestModelInfoError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/models/{owner}/{name}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error": "model not found"}`)
	})

	c := testClient(t, mux)

	_, err := c.ModelInfo(context.Background(), Ref{Owner: "acme", Name: "missing"})
	assert.ErrorContains(t, err, "model not found")
}

func TestCreateRepo(t *testing.T) {
	var status int
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/repos/create", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		if status == http.StatusForbidden {
			fmt.Fprint(w, `{"error": "insufficient permissions"}`)
		}
	})

	c := testClient(t, mux)
	ref := Ref{Owner: "acme", Name: "tiny-GGUF"}

	status = http.StatusCreated
	assert.NoError(t, c.CreateRepo(context.Background(), ref, false))

	status = http.StatusConflict
	assert.NoError(t, c.CreateRepo(context.Background(), ref, false))

	status = http.StatusForbidden
	assert.ErrorContains(t, c.CreateRepo(context.Background(), ref, false), "insufficient permissions")
}
