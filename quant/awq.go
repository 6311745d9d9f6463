package quant

import (
	"context"
	"path/filepath"
	"strconv"
)

func (p *Pipeline) quantizeAWQ(ctx context.Context, s *stream, job job, params string) error {
	s.line("=== AWQ Quantization ===")

	resolved, warning := ParseAWQParams(params)
	if warning != "" {
		s.line(warning)
	}
	s.linef("[INFO] Using AWQ parameters: bits=%d, group_size=%d, version=%s, zero_point=%v",
		resolved.Bits, resolved.GroupSize, resolved.Version, resolved.ZeroPoint)

	// AWQ is the loader the rope_scaling patch exists for
	PatchModelConfig(job.modelDir, s)

	saveDir := filepath.Join(p.QuantizedDir, job.ref.Base()+"-AWQ")
	args := []string{
		p.tools.AWQScript(),
		"--model-dir", job.modelDir,
		"--save-dir", saveDir,
		"--bits", strconv.Itoa(resolved.Bits),
		"--group-size", strconv.Itoa(resolved.GroupSize),
		"--version", resolved.Version,
		"--zero-point", strconv.FormatBool(resolved.ZeroPoint),
	}

	if p.runner.Run(ctx, s, p.tools.Python, args...) != 0 {
		return errStepFailed
	}

	s.linef("[INFO] AWQ quantization completed. Saved to %s", saveDir)

	if err := p.publish(ctx, s, job, "AWQ", saveDir); err != nil {
		return errStepFailed
	}
	return nil
}
