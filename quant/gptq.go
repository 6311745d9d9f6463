package quant

import (
	"context"
	"path/filepath"
	"strconv"
)

func (p *Pipeline) quantizeGPTQ(ctx context.Context, s *stream, job job, params string) error {
	s.line("=== GPTQ Quantization ===")

	resolved, warning := ParseGPTQParams(params)
	if warning != "" {
		s.line(warning)
	}
	s.linef("[INFO] Using GPTQ parameters: bits=%d, group_size=%d, damp_percent=%v", resolved.Bits, resolved.GroupSize, resolved.DampPercent)

	// the loader reads rope_scaling straight from disk
	PatchModelConfig(job.modelDir, s)

	saveDir := filepath.Join(p.QuantizedDir, job.ref.Base()+"-GPTQ")
	args := []string{
		p.tools.GPTQScript(),
		"--model-dir", job.modelDir,
		"--save-dir", saveDir,
		"--bits", strconv.Itoa(resolved.Bits),
		"--group-size", strconv.Itoa(resolved.GroupSize),
		"--damp-percent", strconv.FormatFloat(resolved.DampPercent, 'g', -1, 64),
	}

	if p.runner.Run(ctx, s, p.tools.Python, args...) != 0 {
		return errStepFailed
	}

	s.line("[INFO] GPTQ quantization completed.")

	if err := p.publish(ctx, s, job, "GPTQ", saveDir); err != nil {
		return errStepFailed
	}
	return nil
}
