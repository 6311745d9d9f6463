package server

import (
	"bufio"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spongeengine/spongequant/api"
	"github.com/spongeengine/spongequant/envconfig"
	"github.com/spongeengine/spongequant/quant"
	"github.com/spongeengine/spongequant/version"
)

func TestRoutes(t *testing.T) {
	type testCase struct {
		Name     string
		Method   string
		Path     string
		Setup    func(t *testing.T, req *http.Request)
		Expected func(t *testing.T, resp *http.Response)
	}

	testCases := []testCase{
		{
			Name:   "Version Handler",
			Method: http.MethodGet,
			Path:   "/api/version",
			Expected: func(t *testing.T, resp *http.Response) {
				assert.Equal(t, http.StatusOK, resp.StatusCode)

				body, err := io.ReadAll(resp.Body)
				require.NoError(t, err)
				assert.JSONEq(t, `{"version":"`+version.Version+`"}`, string(body))
			},
		},
		{
			Name:   "Heartbeat Handler",
			Method: http.MethodGet,
			Path:   "/",
			Expected: func(t *testing.T, resp *http.Response) {
				assert.Equal(t, http.StatusOK, resp.StatusCode)

				body, err := io.ReadAll(resp.Body)
				require.NoError(t, err)
				assert.Equal(t, "SpongeQuant is running", string(body))
			},
		},
		{
			Name:   "Heartbeat Handler Head",
			Method: http.MethodHead,
			Path:   "/",
			Expected: func(t *testing.T, resp *http.Response) {
				assert.Equal(t, http.StatusOK, resp.StatusCode)
			},
		},
		{
			Name:   "List Handler Empty",
			Method: http.MethodGet,
			Path:   "/api/list",
			Expected: func(t *testing.T, resp *http.Response) {
				assert.Equal(t, http.StatusOK, resp.StatusCode)

				var lr api.ListResponse
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&lr))
				assert.Empty(t, lr.Artifacts)
			},
		},
		{
			Name:   "Delete Handler Missing Body",
			Method: http.MethodDelete,
			Path:   "/api/delete",
			Expected: func(t *testing.T, resp *http.Response) {
				assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			},
		},
		{
			Name:   "Run Handler Unknown",
			Method: http.MethodGet,
			Path:   "/api/runs/no-such-run",
			Expected: func(t *testing.T, resp *http.Response) {
				assert.Equal(t, http.StatusNotFound, resp.StatusCode)
			},
		},
		{
			Name:   "Metrics Handler",
			Method: http.MethodGet,
			Path:   "/metrics",
			Expected: func(t *testing.T, resp *http.Response) {
				assert.Equal(t, http.StatusOK, resp.StatusCode)

				body, err := io.ReadAll(resp.Body)
				require.NoError(t, err)
				assert.Contains(t, string(body), "spongequant_http_requests_total")
				assert.Contains(t, string(body), "spongequant_run_active")
			},
		},
	}

	t.Setenv("SPONGEQUANT_QUANTIZED", t.TempDir())
	envconfig.LoadConfig()

	s := &Server{}
	router := s.GenerateRoutes()

	httpSrv := httptest.NewServer(router)
	t.Cleanup(httpSrv.Close)

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			u := httpSrv.URL + tc.Path
			req, err := http.NewRequest(tc.Method, u, nil)
			require.NoError(t, err)

			if tc.Setup != nil {
				tc.Setup(t, req)
			}

			resp, err := httpSrv.Client().Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			if tc.Expected != nil {
				tc.Expected(t, resp)
			}
		})
	}
}

func TestListHandler(t *testing.T) {
	quantized := t.TempDir()
	t.Setenv("SPONGEQUANT_QUANTIZED", quantized)
	envconfig.LoadConfig()

	for _, dir := range []string{"tiny-GGUF", "tiny-AWQ"} {
		require.NoError(t, os.MkdirAll(filepath.Join(quantized, dir), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(quantized, dir, "out.bin"), []byte("xxxx"), 0o644))
	}

	s := &Server{}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/list", nil)
	s.GenerateRoutes().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var lr api.ListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &lr))
	require.Len(t, lr.Artifacts, 2)

	assert.Equal(t, "tiny-AWQ", lr.Artifacts[0].Name)
	assert.Equal(t, "AWQ", lr.Artifacts[0].Method)
	assert.Equal(t, "tiny", lr.Artifacts[0].Model)
	assert.Equal(t, int64(4), lr.Artifacts[0].Size)
	assert.Equal(t, "tiny-GGUF", lr.Artifacts[1].Name)
}

func TestDeleteHandler(t *testing.T) {
	models := t.TempDir()
	quantized := t.TempDir()
	t.Setenv("SPONGEQUANT_MODELS", models)
	t.Setenv("SPONGEQUANT_QUANTIZED", quantized)
	envconfig.LoadConfig()

	for _, dir := range []string{"foo-GGUF", "foo-AWQ", "bar-GGUF"} {
		require.NoError(t, os.MkdirAll(filepath.Join(quantized, dir), 0o755))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(models, "foo"), 0o755))

	s := &Server{}
	router := s.GenerateRoutes()

	do := func(body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodDelete, "/api/delete", strings.NewReader(body))
		router.ServeHTTP(w, req)
		return w
	}

	// neither target selected
	w := do(`{"model":"foo"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// quantized outputs only; the downloaded copy stays
	w = do(`{"model":"acme/foo","quantized":true}`)
	require.Equal(t, http.StatusOK, w.Code)

	assert.NoDirExists(t, filepath.Join(quantized, "foo-GGUF"))
	assert.NoDirExists(t, filepath.Join(quantized, "foo-AWQ"))
	assert.DirExists(t, filepath.Join(quantized, "bar-GGUF"))
	assert.DirExists(t, filepath.Join(models, "foo"))

	// nothing left for foo under quantized_models
	w = do(`{"model":"foo","quantized":true}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(`{"model":"foo","original":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NoDirExists(t, filepath.Join(models, "foo"))
}

func TestQuantizeHandlerValidation(t *testing.T) {
	s := &Server{}
	router := s.GenerateRoutes()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/quantize", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQuantizeHandlerBusy(t *testing.T) {
	s := &Server{}
	s.running.Store(true)

	router := s.GenerateRoutes()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/quantize", strings.NewReader(`{"models":["acme/tiny"]}`))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "already in progress")
}

func TestQuantizeHandlerEmptyModelList(t *testing.T) {
	s := &Server{}

	httpSrv := httptest.NewServer(s.GenerateRoutes())
	t.Cleanup(httpSrv.Close)

	resp, err := httpSrv.Client().Post(httpSrv.URL+"/api/quantize", "application/json", strings.NewReader(`{"models":[]}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/x-ndjson", resp.Header.Get("Content-Type"))

	var sawStart, sawError bool
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var event struct {
			ID     string `json:"id"`
			Status string `json:"status"`
			Error  string `json:"error"`
		}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &event))

		if event.ID != "" {
			sawStart = true
		}
		if event.Error != "" {
			sawError = true
			assert.Equal(t, "model list is empty", event.Error)
		}
	}
	require.NoError(t, scanner.Err())

	assert.True(t, sawStart, "expected a run start event")
	assert.True(t, sawError, "expected a terminal error event")

	// the failed run is not left registered or running
	assert.False(t, s.running.Load())
	assert.Empty(t, s.runs)
}

func TestRunHandler(t *testing.T) {
	s := &Server{}

	transcript := quant.NewTranscript()
	transcript.Append("=== Starting SpongeQuant Quantization Process ===")
	transcript.Append("[INFO] Running GGUF quantization...")
	s.registerRun("run-1", transcript)

	router := s.GenerateRoutes()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/runs/run-1", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var rr api.RunResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rr))
	assert.Equal(t, "run-1", rr.ID)
	assert.Contains(t, rr.Transcript, "[INFO] Running GGUF quantization...")

	// transcripts are discarded once a run completes
	s.dropRun("run-1")

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/runs/run-1", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
