package quant

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spongeengine/spongequant/gguf"
)

// quantizeGGUF converts the model to a bf16 GGUF, optionally computes an
// importance matrix, then produces one file per requested quantization
// type. Outputs that already exist are kept; the bf16 intermediate is
// excluded from publishing.
func (p *Pipeline) quantizeGGUF(ctx context.Context, s *stream, job job, params string) error {
	base := job.ref.Base()
	saveDir := filepath.Join(p.QuantizedDir, base+"-GGUF")

	s.linef("=== GGUF Quantization for %s ===", base)

	if err := os.MkdirAll(saveDir, 0o755); err != nil {
		s.linef("[ERROR] Could not create output folder %s: %v", saveDir, err)
		return err
	}

	outFile := filepath.Join(saveDir, strings.ToLower(base)+".bf16.gguf")
	s.linef("[INFO] Expected output file: %s", outFile)

	var failed bool
	if _, err := os.Stat(outFile); err != nil {
		args := []string{p.tools.ConvertScript(), job.modelDir, "--outtype", "bf16", "--outfile", outFile}
		s.linef("[INFO] Running conversion command:\n  %s", displayCommand(p.tools.Python, args))
		if p.runner.Run(ctx, s, p.tools.Python, args...) != 0 {
			failed = true
		}
	} else {
		s.linef("[INFO] File %s already exists. Skipping conversion.", outFile)
	}

	useImatrix := p.imatrix != nil
	if useImatrix {
		if _, err := os.Stat(p.imatrix.File); p.imatrix.Recompute || err != nil {
			if p.computeImatrix(ctx, s, outFile) != 0 {
				failed = true
			}
		}
	}

	types, warning := ParseGGUFTypes(params)
	if warning != "" {
		s.line(warning)
	}

	for _, tok := range types {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if gguf.RequiresImatrix(tok) && !useImatrix {
			s.linef("[WARN] Skipping %s quantization because imatrix is not enabled.", tok)
			continue
		}

		var quantFile string
		var args []string
		if useImatrix {
			quantFile = filepath.Join(saveDir, strings.ToLower(base)+"-i1-"+tok+".gguf")
			args = []string{"--imatrix", p.imatrix.File, outFile, quantFile, tok}
		} else {
			quantFile = filepath.Join(saveDir, strings.ToLower(base)+"-"+tok+".gguf")
			args = []string{outFile, quantFile, tok}
		}

		if _, err := os.Stat(quantFile); err == nil {
			s.linef("[INFO] File %s already exists. Skipping quantization.", quantFile)
			continue
		}

		s.linef("[INFO] Quantizing with method '%s':\n  %s", tok, displayCommand(p.tools.QuantizeBin(), args))
		if p.runner.Run(ctx, s, p.tools.QuantizeBin(), args...) != 0 {
			failed = true
		}
	}

	tag := "GGUF"
	if useImatrix {
		tag = "i1-GGUF"
	}

	s.line("[INFO] Uploading GGUF quantized model...")
	if err := p.publish(ctx, s, job, tag, saveDir); err != nil {
		failed = true
	}

	if failed {
		return errStepFailed
	}
	return nil
}

// computeImatrix runs llama-imatrix to produce the importance matrix for
// outFile from the configured calibration data.
func (p *Pipeline) computeImatrix(ctx context.Context, s *stream, modelFile string) int {
	opts := p.imatrix
	s.linef("[INFO] Computing imatrix file for model %s using calibration data from %s", modelFile, opts.Calibration)

	if dir := filepath.Dir(opts.File); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			s.linef("[ERROR] Could not create imatrix folder %s: %v", dir, err)
			return -1
		}
	}

	args := []string{
		"-m", modelFile,
		"-f", opts.Calibration,
		"-o", opts.File,
		"--chunk", strconv.Itoa(opts.Chunk),
		"-ngl", strconv.Itoa(opts.NGL),
		"--output-frequency", strconv.Itoa(opts.OutputFrequency),
		"--save-frequency", strconv.Itoa(opts.SaveFrequency),
		"--verbosity", strconv.Itoa(opts.Verbosity),
	}

	if opts.ProcessOutput {
		args = append(args, "--process-output")
	}
	if opts.NoPPL {
		args = append(args, "--no-ppl")
	}
	for _, f := range opts.InFiles {
		args = append(args, "--in-file", f)
	}

	s.linef("[INFO] Running imatrix command:\n  %s", displayCommand(p.tools.ImatrixBin(), args))
	return p.runner.Run(ctx, s, p.tools.ImatrixBin(), args...)
}
