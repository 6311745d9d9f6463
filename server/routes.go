package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/spongeengine/spongequant/api"
	"github.com/spongeengine/spongequant/envconfig"
	"github.com/spongeengine/spongequant/hub"
	"github.com/spongeengine/spongequant/quant"
	"github.com/spongeengine/spongequant/version"
)

var mode string = gin.DebugMode

func init() {
	switch mode {
	case gin.DebugMode:
	case gin.ReleaseMode:
	case gin.TestMode:
	default:
		mode = gin.DebugMode
	}

	gin.SetMode(mode)
}

// Server owns the quantization pipeline. Only one run is active at a
// time: the external tools assume exclusive use of the accelerator, so a
// second quantize request is rejected rather than queued.
type Server struct {
	running atomic.Bool

	mu   sync.RWMutex
	runs map[string]*quant.Transcript
}

func (s *Server) registerRun(id string, t *quant.Transcript) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runs == nil {
		s.runs = make(map[string]*quant.Transcript)
	}

	s.runs[id] = t
}

// dropRun discards a finished run's transcript. Transcripts only live as
// long as their run; the stream is the durable record.
func (s *Server) dropRun(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, id)
}

func (s *Server) lookupRun(id string) (*quant.Transcript, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.runs[id]
	return t, ok
}

func (s *Server) QuantizeHandler(c *gin.Context) {
	var req api.QuantizeRequest
	if err := c.ShouldBindJSON(&req); errors.Is(err, io.EOF) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing request body"})
		return
	} else if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !s.running.CompareAndSwap(false, true) {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "a quantization run is already in progress"})
		return
	}

	runID := uuid.NewString()
	transcript := quant.NewTranscript()
	s.registerRun(runID, transcript)
	runActive.Set(1)

	ctx := c.Request.Context()
	ch := make(chan any)
	go func() {
		// the channel closes last so a finished stream implies the
		// run has been deregistered
		defer close(ch)
		defer s.dropRun(runID)
		defer runActive.Set(0)
		defer s.running.Store(false)

		// a disconnected client stops draining ch; give up on the
		// send instead of blocking the run goroutine forever
		fn := func(resp api.ProgressResponse) {
			select {
			case ch <- resp:
			case <-ctx.Done():
			}
		}

		fn(api.ProgressResponse{ID: runID, Status: "starting run " + runID})

		hubClient, err := hub.FromEnvironment(req.Token)
		if err != nil {
			ch <- gin.H{"error": err.Error()}
			runsTotal.WithLabelValues("failed").Inc()
			return
		}

		pipeline := quant.NewPipeline(quant.DefaultTools(), hubClient)

		results, err := pipeline.Execute(ctx, &req, transcript, fn)
		for _, res := range results {
			outcome := "ok"
			if res.Err != nil {
				outcome = "failed"
			}

			stepsTotal.WithLabelValues(res.Method.String(), outcome).Inc()
		}

		switch {
		case errors.Is(err, quant.ErrNoModels):
			ch <- gin.H{"error": err.Error(), "status": http.StatusBadRequest}
			runsTotal.WithLabelValues("failed").Inc()
			return
		case err != nil:
			slog.Info("quantization run interrupted", "run", runID, "error", err)
			runsTotal.WithLabelValues("canceled").Inc()
			return
		}

		var failed int
		for _, res := range results {
			if res.Err != nil {
				failed++
			}
		}

		if failed > 0 {
			fn(api.ProgressResponse{Status: fmt.Sprintf("completed with %d failed steps", failed)})
			runsTotal.WithLabelValues("failed").Inc()
			return
		}

		fn(api.ProgressResponse{Status: "success"})
		runsTotal.WithLabelValues("completed").Inc()
	}()

	streamResponse(c, ch)
}

// RunHandler reports the accumulated transcript of an active run. Runs
// are dropped the moment they finish, so a finished or unknown run is a
// 404 either way.
func (s *Server) RunHandler(c *gin.Context) {
	id := c.Param("id")

	transcript, ok := s.lookupRun(id)
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("run %q not found", id)})
		return
	}

	c.JSON(http.StatusOK, api.RunResponse{ID: id, Transcript: transcript.String()})
}

func (s *Server) ListHandler(c *gin.Context) {
	artifacts, err := quant.ListArtifacts(envconfig.QuantizedDir)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, api.ListResponse{Artifacts: artifacts})
}

func (s *Server) DeleteHandler(c *gin.Context) {
	var req api.DeleteRequest
	if err := c.ShouldBindJSON(&req); errors.Is(err, io.EOF) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing request body"})
		return
	} else if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Model == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "model is required"})
		return
	}

	if !req.Original && !req.Quantized {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "nothing to delete: set original, quantized or both"})
		return
	}

	// accept a full owner/name reference in place of the base name
	base := req.Model
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}

	removed, err := quant.RemoveArtifacts(envconfig.ModelsDir, envconfig.QuantizedDir, base, req.Original, req.Quantized)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if len(removed) == 0 {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("no artifacts found for %q", base)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func (s *Server) GenerateRoutes() http.Handler {
	config := cors.DefaultConfig()
	config.AllowWildcard = true
	config.AllowBrowserExtensions = true
	config.AllowOrigins = envconfig.AllowOrigins

	r := gin.Default()
	r.Use(
		cors.New(config),
		metricsMiddleware(),
	)

	r.POST("/api/quantize", s.QuantizeHandler)
	r.DELETE("/api/delete", s.DeleteHandler)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	for _, method := range []string{http.MethodGet, http.MethodHead} {
		r.Handle(method, "/", func(c *gin.Context) {
			c.String(http.StatusOK, "SpongeQuant is running")
		})
		r.Handle(method, "/api/list", s.ListHandler)
		r.Handle(method, "/api/runs/:id", s.RunHandler)
		r.Handle(method, "/api/version", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"version": version.Version})
		})
	}

	return r
}

func Serve(ln net.Listener) error {
	level := slog.LevelInfo
	if envconfig.Debug {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			if attr.Key == slog.SourceKey {
				source := attr.Value.Any().(*slog.Source)
				source.File = filepath.Base(source.File)
			}

			return attr
		},
	})

	slog.SetDefault(slog.New(handler))

	values := envconfig.Values()
	keys := maps.Keys(values)
	slices.Sort(keys)

	args := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		args = append(args, k, values[k])
	}
	slog.Info("server config", args...)

	s := &Server{}
	r := s.GenerateRoutes()

	slog.Info(fmt.Sprintf("Listening on %s (version %s)", ln.Addr(), version.Version))
	srvr := &http.Server{
		Handler: r,
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		srvr.Close()
	}()

	if err := srvr.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func streamResponse(c *gin.Context, ch chan any) {
	c.Header("Content-Type", "application/x-ndjson")
	c.Stream(func(w io.Writer) bool {
		val, ok := <-ch
		if !ok {
			return false
		}

		bts, err := json.Marshal(val)
		if err != nil {
			slog.Info(fmt.Sprintf("streamResponse: json.Marshal failed with %s", err))
			return false
		}

		// Delineate chunks with new-line delimiter
		bts = append(bts, '\n')
		if _, err := w.Write(bts); err != nil {
			slog.Info(fmt.Sprintf("streamResponse: w.Write failed with %s", err))
			return false
		}

		return true
	})
}
