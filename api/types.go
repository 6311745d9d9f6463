package api

import (
	"cmp"
	"time"

	"github.com/mitchellh/mapstructure"
)

// QuantizeRequest describes one batch of models to quantize. Each selected
// method carries its raw parameter string; missing or short parameter strings
// fall back to the method defaults server-side.
type QuantizeRequest struct {
	// Models to process, each a hub reference of the form "owner/name".
	Models []string `json:"models"`

	// Username is the hub account quantized models are published under.
	// Publishing is skipped when empty.
	Username string `json:"username,omitempty"`

	// Token overrides the server's hub token for this request.
	Token string `json:"token,omitempty"`

	Methods []MethodRequest `json:"methods"`

	// Imatrix enables importance matrix computation for GGUF when set.
	Imatrix *ImatrixOptions `json:"imatrix,omitempty"`

	DeleteOriginal  bool `json:"delete_original,omitempty"`
	DeleteQuantized bool `json:"delete_quantized,omitempty"`
}

// MethodRequest selects a quantization method. Params is the raw
// comma-separated parameter string, e.g. "4,128,0.1" for gptq or
// "Q4_K_M,Q5_K_M" for gguf.
type MethodRequest struct {
	Name   string `json:"name"`
	Params string `json:"params,omitempty"`
}

// ImatrixOptions are the llama-imatrix knobs. Zero values are replaced with
// the defaults from DefaultImatrixOptions.
type ImatrixOptions struct {
	File            string   `json:"file,omitempty"`
	Calibration     string   `json:"calibration,omitempty"`
	Recompute       bool     `json:"recompute,omitempty"`
	Verbosity       int      `json:"verbosity,omitempty"`
	Chunk           int      `json:"chunk,omitempty"`
	OutputFrequency int      `json:"output_frequency,omitempty"`
	SaveFrequency   int      `json:"save_frequency,omitempty"`
	NGL             int      `json:"ngl,omitempty"`
	ProcessOutput   bool     `json:"process_output,omitempty"`
	NoPPL           bool     `json:"no_ppl,omitempty"`
	InFiles         []string `json:"in_files,omitempty"`
}

// FromMap fills o from a loosely-typed map, coercing strings and numbers to
// the field types. Unknown keys are an error.
func (o *ImatrixOptions) FromMap(m map[string]any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		TagName:          "json",
		Result:           o,
	})
	if err != nil {
		return err
	}

	return dec.Decode(m)
}

func DefaultImatrixOptions() ImatrixOptions {
	return ImatrixOptions{
		File:            "gguf/imatrix.dat",
		Calibration:     "gguf/calibration_datav3.txt",
		Verbosity:       1,
		Chunk:           64,
		OutputFrequency: 10,
		SaveFrequency:   0,
		NGL:             80,
	}
}

// WithDefaults returns a copy of o with zero-valued fields replaced by the
// defaults. SaveFrequency defaults to zero, so it passes through as is.
func (o ImatrixOptions) WithDefaults() ImatrixOptions {
	defaults := DefaultImatrixOptions()
	o.File = cmp.Or(o.File, defaults.File)
	o.Calibration = cmp.Or(o.Calibration, defaults.Calibration)
	o.Verbosity = cmp.Or(o.Verbosity, defaults.Verbosity)
	o.Chunk = cmp.Or(o.Chunk, defaults.Chunk)
	o.OutputFrequency = cmp.Or(o.OutputFrequency, defaults.OutputFrequency)
	o.NGL = cmp.Or(o.NGL, defaults.NGL)
	return o
}

// ProgressResponse is one event on the quantization stream. Exactly one of
// Status, Output or a Digest/Total/Completed triple is populated: Status
// lines are pipeline events, Output lines are raw quantization tool output,
// and digest events report transfer progress. ID is only set on the first
// event of a run and names the run for GET /api/runs/:id.
type ProgressResponse struct {
	ID        string `json:"id,omitempty"`
	Status    string `json:"status,omitempty"`
	Output    string `json:"output,omitempty"`
	Model     string `json:"model,omitempty"`
	Method    string `json:"method,omitempty"`
	Digest    string `json:"digest,omitempty"`
	Total     int64  `json:"total,omitempty"`
	Completed int64  `json:"completed,omitempty"`
}

type QuantArtifact struct {
	// Name is the artifact directory name, e.g. "TinyLlama-1.1B-GGUF".
	Name       string    `json:"name"`
	Model      string    `json:"model"`
	Method     string    `json:"method"`
	Size       int64     `json:"size"`
	Files      int       `json:"files"`
	ModifiedAt time.Time `json:"modified_at"`
}

type ListResponse struct {
	Artifacts []QuantArtifact `json:"artifacts"`
}

type DeleteRequest struct {
	Model     string `json:"model"`
	Original  bool   `json:"original,omitempty"`
	Quantized bool   `json:"quantized,omitempty"`
}

// RunResponse is the transcript of an in-flight quantization run.
type RunResponse struct {
	ID         string `json:"id"`
	Transcript string `json:"transcript"`
}
