// Package quant drives the quantization toolchains end to end: resolving
// parameters, running the external tools, computing importance matrices,
// and publishing the results to the hub. Everything a run prints is
// collected in a Transcript and streamed to the caller as it happens.
package quant

import (
	"fmt"
	"strings"
)

// Method is one supported quantization toolchain.
type Method int

const (
	GGUF Method = iota
	GPTQ
	ExLlamaV2
	AWQ
	HQQ
)

// Methods returns every method in execution order. A run always applies
// selected methods in this order, whatever order they were requested in.
func Methods() []Method {
	return []Method{GGUF, GPTQ, ExLlamaV2, AWQ, HQQ}
}

func (m Method) String() string {
	switch m {
	case GGUF:
		return "GGUF"
	case GPTQ:
		return "GPTQ"
	case ExLlamaV2:
		return "ExLlamaV2"
	case AWQ:
		return "AWQ"
	case HQQ:
		return "HQQ"
	}
	return "unknown"
}

// DirSuffix is the suffix of the local output directory for this method,
// as in quantized_models/{model}-{suffix}.
func (m Method) DirSuffix() string {
	if m == ExLlamaV2 {
		return "EXL2"
	}
	return m.String()
}

// ParseMethod resolves a method name. Canonical names and the common
// short forms are accepted, case insensitively.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gguf":
		return GGUF, nil
	case "gptq":
		return GPTQ, nil
	case "exllamav2", "exl2":
		return ExLlamaV2, nil
	case "awq":
		return AWQ, nil
	case "hqq":
		return HQQ, nil
	}
	return 0, fmt.Errorf("unknown quantization method: %s", s)
}
