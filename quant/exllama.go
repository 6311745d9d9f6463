package quant

import (
	"context"
	"path/filepath"
	"strconv"
)

func (p *Pipeline) quantizeEXL2(ctx context.Context, s *stream, job job, params string) error {
	s.line("=== ExLlamaV2 Quantization ===")

	resolved, warning := ParseEXL2Params(params)
	if warning != "" {
		s.line(warning)
	}
	s.linef("[INFO] Using ExLlamaV2 parameters: bpw=%v", resolved.BitsPerWeight)

	saveDir := filepath.Join(p.QuantizedDir, job.ref.Base()+"-EXL2")
	args := []string{
		p.tools.EXL2Script(),
		"-i", job.modelDir,
		"-o", saveDir,
		"-b", strconv.FormatFloat(resolved.BitsPerWeight, 'g', -1, 64),
	}

	s.linef("[INFO] Running ExLlamaV2 command:\n  %s", displayCommand(p.tools.Python, args))
	if p.runner.Run(ctx, s, p.tools.Python, args...) != 0 {
		return errStepFailed
	}

	s.line("[INFO] ExLlamaV2 quantization completed.")

	if err := p.publish(ctx, s, job, "exl2", saveDir); err != nil {
		return errStepFailed
	}
	return nil
}
