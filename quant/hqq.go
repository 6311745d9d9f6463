package quant

import (
	"context"
	"path/filepath"
	"strconv"
)

func (p *Pipeline) quantizeHQQ(ctx context.Context, s *stream, job job, params string) error {
	s.line("=== HQQ Quantization ===")

	resolved, warning := ParseHQQParams(params)
	if warning != "" {
		s.line(warning)
	}
	s.linef("[INFO] Using HQQ parameters: bits=%d, group_size=%d", resolved.Bits, resolved.GroupSize)

	// HQQ loads the model by its hub id rather than from the local copy
	saveDir := filepath.Join(p.QuantizedDir, job.ref.Base()+"-HQQ")
	args := []string{
		p.tools.HQQScript(),
		"--model-id", job.ref.String(),
		"--save-dir", saveDir,
		"--bits", strconv.Itoa(resolved.Bits),
		"--group-size", strconv.Itoa(resolved.GroupSize),
	}

	if p.runner.Run(ctx, s, p.tools.Python, args...) != 0 {
		return errStepFailed
	}

	s.line("[INFO] HQQ quantization completed.")

	if err := p.publish(ctx, s, job, "HQQ", saveDir); err != nil {
		return errStepFailed
	}
	return nil
}
