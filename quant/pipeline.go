package quant

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spongeengine/spongequant/api"
	"github.com/spongeengine/spongequant/envconfig"
	"github.com/spongeengine/spongequant/hub"
)

// ErrNoModels is the only error that fails a whole batch up front. Every
// other failure is confined to the model or method it happened in.
var ErrNoModels = errors.New("model list is empty")

// errStepFailed marks a method that ran to the end but logged errors.
var errStepFailed = errors.New("completed with errors")

// stream carries a run's two output channels: transcript lines mirroring
// what the run and its tools printed, and application progress events
// such as transfer updates. Lines always land in the transcript as well.
type stream struct {
	transcript *Transcript
	fn         func(api.ProgressResponse)

	// stamped onto every event for consumers that multiplex runs
	model  string
	method string
}

func (s *stream) line(text string) {
	s.transcript.Append(text)
	s.fn(api.ProgressResponse{Output: text, Model: s.model, Method: s.method})
}

func (s *stream) linef(format string, args ...any) {
	s.line(fmt.Sprintf(format, args...))
}

// progress forwards a transfer event, stamping the run context onto it.
func (s *stream) progress(resp api.ProgressResponse) {
	resp.Model = s.model
	resp.Method = s.method
	s.fn(resp)
}

// StepResult records how one method finished for one model. Failures do
// not stop the run; they are returned so callers can count them.
type StepResult struct {
	Model  string
	Method Method
	Err    error
}

// job carries one model through the pipeline.
type job struct {
	ref      hub.Ref
	username string
	modelDir string
}

// Pipeline executes one quantization run end to end. Construct a new one
// per run; it is not reused.
type Pipeline struct {
	// ModelsDir holds downloaded models, one directory per model.
	ModelsDir string

	// QuantizedDir holds quantization output, one directory per
	// model and method.
	QuantizedDir string

	tools   Tools
	hub     *hub.Client
	runner  Runner
	imatrix *api.ImatrixOptions
}

func NewPipeline(tools Tools, hubClient *hub.Client) *Pipeline {
	return &Pipeline{
		ModelsDir:    envconfig.ModelsDir,
		QuantizedDir: envconfig.QuantizedDir,
		tools:        tools,
		hub:          hubClient,
	}
}

// Execute runs the batch described by req, appending everything the run
// prints to transcript and streaming events through fn. Method failures
// are confined to their step and collected in the results; the returned
// error is reserved for an empty batch and cancellation.
func (p *Pipeline) Execute(ctx context.Context, req *api.QuantizeRequest, transcript *Transcript, fn func(api.ProgressResponse)) ([]StepResult, error) {
	if fn == nil {
		fn = func(api.ProgressResponse) {}
	}

	var models []string
	for _, model := range req.Models {
		if model = strings.TrimSpace(model); model != "" {
			models = append(models, model)
		}
	}

	if len(models) == 0 {
		return nil, ErrNoModels
	}

	// methods run in canonical order, whatever order the request used
	selected := make(map[Method]string)
	var unknown []string
	for _, m := range req.Methods {
		method, err := ParseMethod(m.Name)
		if err != nil {
			unknown = append(unknown, m.Name)
			continue
		}

		selected[method] = m.Params
	}

	if req.Imatrix != nil {
		opts := req.Imatrix.WithDefaults()
		p.imatrix = &opts
	}

	p.runner.Env = []string{"PYTORCH_CUDA_ALLOC_CONF=" + p.tools.AllocConf}
	if req.Token != "" {
		p.runner.Env = append(p.runner.Env, "HF_TOKEN="+req.Token)
	}

	// probe each selected toolchain once so a missing tool is reported
	// up front instead of partway through the batch
	probeErr := make(map[Method]error)
	for _, m := range Methods() {
		if _, ok := selected[m]; !ok {
			continue
		}

		probeErr[m] = p.tools.Probe(m)
		if m == GGUF && probeErr[m] == nil && p.imatrix != nil {
			probeErr[m] = p.tools.ProbeImatrix()
		}
	}

	s := &stream{transcript: transcript, fn: fn}
	s.line("=== Starting SpongeQuant Quantization Process ===")

	var results []StepResult
	for _, modelID := range models {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}

		s.model = modelID
		s.method = ""
		s.linef("\n=== Processing model: %s ===", modelID)

		ref, err := hub.ParseRef(modelID)
		if err != nil {
			s.linef("[ERROR] %v", err)
			continue
		}

		job := job{
			ref:      ref,
			username: req.Username,
			modelDir: filepath.Join(p.ModelsDir, ref.Base()),
		}

		p.download(ctx, s, job)
		if ctx.Err() != nil {
			return results, ctx.Err()
		}

		if len(selected) == 0 && len(unknown) == 0 {
			s.line("[ERROR] No quantization method selected for model. Please select at least one method.")
			continue
		}

		for _, m := range Methods() {
			params, ok := selected[m]
			if !ok {
				continue
			}

			s.method = m.String()
			s.linef("[INFO] Running %s quantization...", m)

			if err := probeErr[m]; err != nil {
				s.linef("[ERROR] %s toolchain unavailable: %v", m, err)
				results = append(results, StepResult{Model: modelID, Method: m, Err: err})
				s.method = ""
				continue
			}

			var stepErr error
			switch m {
			case GGUF:
				stepErr = p.quantizeGGUF(ctx, s, job, params)
			case GPTQ:
				stepErr = p.quantizeGPTQ(ctx, s, job, params)
			case ExLlamaV2:
				stepErr = p.quantizeEXL2(ctx, s, job, params)
			case AWQ:
				stepErr = p.quantizeAWQ(ctx, s, job, params)
			case HQQ:
				stepErr = p.quantizeHQQ(ctx, s, job, params)
			}

			if ctx.Err() != nil {
				results = append(results, StepResult{Model: modelID, Method: m, Err: ctx.Err()})
				return results, ctx.Err()
			}

			results = append(results, StepResult{Model: modelID, Method: m, Err: stepErr})
			s.method = ""
		}

		for _, name := range unknown {
			s.linef("[ERROR] Unknown quantization method: %s", name)
		}

		p.cleanup(s, ref.Base(), req.DeleteOriginal, req.DeleteQuantized)
	}

	s.model = ""
	s.line("\n=== Quantization Process Completed ===")
	return results, nil
}

// download fetches the model unless a complete copy already exists. The
// completion check is deliberately pessimistic: any doubt about the local
// state and the model is downloaded again, resuming what is resumable.
func (p *Pipeline) download(ctx context.Context, s *stream, job job) error {
	s.line("=== Downloading Model ===")
	s.linef("[INFO] Model ID: %s", job.ref)
	s.linef("[INFO] Target directory: %s", job.modelDir)

	if _, err := os.Stat(job.modelDir); err == nil {
		if p.hub.FullyDownloaded(ctx, job.ref, job.modelDir) {
			s.linef("[INFO] Model %s is already fully downloaded at %s. Skipping download.", job.ref, job.modelDir)
			return nil
		}

		s.line("[WARN] Model directory exists but files appear incomplete. Re-downloading...")
	} else {
		s.line("[INFO] Model directory does not exist. Starting download...")
	}

	s.linef("[INFO] Downloading model %s...", job.ref)
	if err := p.hub.Download(ctx, job.ref, job.modelDir, s.progress); err != nil {
		s.linef("[ERROR] Error downloading model: %v", err)
		return err
	}

	PatchModelConfig(job.modelDir, s)
	s.linef("[INFO] Model downloaded and patched at: %s", job.modelDir)
	return nil
}

// cleanup deletes per-model state after its methods have run. Only
// directories belonging to this model are touched.
func (p *Pipeline) cleanup(s *stream, base string, original, quantized bool) {
	if original {
		path := filepath.Join(p.ModelsDir, base)
		if _, err := os.Stat(path); err == nil {
			if err := os.RemoveAll(path); err != nil {
				s.linef("[ERROR] Could not delete original model folder %s: %v", path, err)
			} else {
				s.linef("[INFO] Deleted original model folder: %s", path)
			}
		}
	}

	if quantized {
		entries, err := os.ReadDir(p.QuantizedDir)
		if err != nil {
			return
		}

		for _, entry := range entries {
			if !strings.HasPrefix(entry.Name(), base+"-") {
				continue
			}

			path := filepath.Join(p.QuantizedDir, entry.Name())
			if err := os.RemoveAll(path); err != nil {
				s.linef("[ERROR] Could not delete quantized folder %s: %v", path, err)
			} else {
				s.linef("[INFO] Deleted quantized model folder: %s", path)
			}
		}
	}
}

// publish uploads a finished artifact directory to the hub under
// {username}/{model}-{tag}, writing the model card first. A card failure
// is reported but does not stop the upload. Without a username the run is
// local only and nothing is uploaded.
func (p *Pipeline) publish(ctx context.Context, s *stream, job job, tag, saveDir string) error {
	if job.username == "" {
		s.line("[INFO] No hub username provided. Skipping upload.")
		return nil
	}

	dest := hub.Ref{Owner: job.username, Name: job.ref.Base() + "-" + FormatTag(tag)}
	s.linef("[INFO] Preparing to upload quantized model to repo: %s", dest)

	card, err := ModelCard(job.ref.String(), tag)
	if err == nil {
		cardPath := filepath.Join(saveDir, "README.md")
		err = os.WriteFile(cardPath, []byte(card), 0o644)
		if err == nil {
			s.linef("[INFO] Created custom model card for %s at %s", dest, cardPath)
		}
	}
	if err != nil {
		s.linef("[ERROR] Error creating custom model card: %v", err)
	}

	if err := p.hub.CreateRepo(ctx, dest, false); err != nil {
		s.linef("[ERROR] Error uploading model: %v", err)
		return err
	}

	s.linef("[INFO] Repo %s is ready. Uploading folder %s...", dest, saveDir)

	if err := p.hub.Upload(ctx, dest, saveDir, []string{"*.bf16.gguf"}, s.progress); err != nil {
		s.linef("[ERROR] Error uploading model: %v", err)
		return err
	}

	s.linef("[INFO] Uploaded quantized model to %s", dest)
	return nil
}
