package quant

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Method parameter defaults. A request that leaves parameters empty, or
// supplies a tuple that cannot be resolved, gets the full default set and
// a warning; partial substitution is never attempted.
const (
	DefaultGPTQBits        = 4
	DefaultGPTQGroupSize   = 128
	DefaultGPTQDampPercent = 0.1

	DefaultEXL2BitsPerWeight = 4.5

	DefaultAWQBits      = 4
	DefaultAWQGroupSize = 128
	DefaultAWQVersion   = "GEMM"
	DefaultAWQZeroPoint = true

	DefaultHQQBits      = 2
	DefaultHQQGroupSize = 128
)

// DefaultGGUFTypes is the default set of quantization types for a GGUF
// run, smallest first. The IQ types only apply when an importance matrix
// is enabled.
var DefaultGGUFTypes = []string{
	"IQ2_XXS", "IQ2_XS", "IQ2_S", "IQ2_M",
	"IQ3_XXS", "IQ3_S", "IQ3_M", "IQ3_XS",
	"IQ4_XS", "IQ4_NL",
	"Q2_K", "Q3_K_S", "Q3_K_M", "Q3_K_L",
	"Q4_K_S", "Q4_K_M", "Q5_K_S", "Q5_K_M", "Q6_K",
}

type GPTQParams struct {
	Bits        int
	GroupSize   int
	DampPercent float64
}

type EXL2Params struct {
	BitsPerWeight float64
}

type AWQParams struct {
	Bits      int
	GroupSize int
	Version   string
	ZeroPoint bool
}

type HQQParams struct {
	Bits      int
	GroupSize int
}

func defaultGPTQParams() GPTQParams {
	return GPTQParams{Bits: DefaultGPTQBits, GroupSize: DefaultGPTQGroupSize, DampPercent: DefaultGPTQDampPercent}
}

func defaultAWQParams() AWQParams {
	return AWQParams{Bits: DefaultAWQBits, GroupSize: DefaultAWQGroupSize, Version: DefaultAWQVersion, ZeroPoint: DefaultAWQZeroPoint}
}

func defaultHQQParams() HQQParams {
	return HQQParams{Bits: DefaultHQQBits, GroupSize: DefaultHQQGroupSize}
}

// splitParams splits a comma separated parameter tuple, dropping empty
// elements.
func splitParams(s string) []string {
	var parts []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

func paramWarning(method Method, reason, defaults string) string {
	return fmt.Sprintf("[WARN] %s %s parameters provided. Using defaults: %s", reason, method, defaults)
}

// ParseGGUFTypes resolves the comma separated list of quantization types
// for a GGUF run. The returned warning is empty unless the defaults were
// substituted.
func ParseGGUFTypes(s string) ([]string, string) {
	var types []string
	for _, tok := range splitParams(s) {
		types = append(types, strings.ToUpper(tok))
	}

	if len(types) == 0 {
		return slices.Clone(DefaultGGUFTypes), paramWarning(GGUF, "No", strings.Join(DefaultGGUFTypes, ", "))
	}

	return types, ""
}

// ParseGPTQParams resolves "bits, group_size, damp_percent".
func ParseGPTQParams(s string) (GPTQParams, string) {
	defaults := fmt.Sprintf("%d, %d, %v", DefaultGPTQBits, DefaultGPTQGroupSize, DefaultGPTQDampPercent)

	parts := splitParams(s)
	if len(parts) == 0 {
		return defaultGPTQParams(), paramWarning(GPTQ, "No", defaults)
	}

	if len(parts) < 3 {
		return defaultGPTQParams(), paramWarning(GPTQ, "Insufficient", defaults)
	}

	bits, err1 := strconv.Atoi(parts[0])
	groupSize, err2 := strconv.Atoi(parts[1])
	dampPercent, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return defaultGPTQParams(), paramWarning(GPTQ, "Invalid", defaults)
	}

	return GPTQParams{Bits: bits, GroupSize: groupSize, DampPercent: dampPercent}, ""
}

// ParseEXL2Params resolves the target bits per weight.
func ParseEXL2Params(s string) (EXL2Params, string) {
	defaults := fmt.Sprintf("%v", DefaultEXL2BitsPerWeight)

	parts := splitParams(s)
	if len(parts) == 0 {
		return EXL2Params{BitsPerWeight: DefaultEXL2BitsPerWeight}, paramWarning(ExLlamaV2, "No", defaults)
	}

	bpw, err := strconv.ParseFloat(parts[0], 64)
	if err != nil || len(parts) > 1 {
		return EXL2Params{BitsPerWeight: DefaultEXL2BitsPerWeight}, paramWarning(ExLlamaV2, "Invalid", defaults)
	}

	return EXL2Params{BitsPerWeight: bpw}, ""
}

// ParseAWQParams resolves "bits, group_size, version, zero_point".
func ParseAWQParams(s string) (AWQParams, string) {
	defaults := fmt.Sprintf("%d, %d, %s, %v", DefaultAWQBits, DefaultAWQGroupSize, DefaultAWQVersion, DefaultAWQZeroPoint)

	parts := splitParams(s)
	if len(parts) == 0 {
		return defaultAWQParams(), paramWarning(AWQ, "No", defaults)
	}

	if len(parts) < 4 {
		return defaultAWQParams(), paramWarning(AWQ, "Insufficient", defaults)
	}

	bits, err1 := strconv.Atoi(parts[0])
	groupSize, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return defaultAWQParams(), paramWarning(AWQ, "Invalid", defaults)
	}

	return AWQParams{
		Bits:      bits,
		GroupSize: groupSize,
		Version:   parts[2],
		ZeroPoint: parseFlag(parts[3]),
	}, ""
}

// ParseHQQParams resolves "bits, group_size".
func ParseHQQParams(s string) (HQQParams, string) {
	defaults := fmt.Sprintf("%d, %d", DefaultHQQBits, DefaultHQQGroupSize)

	parts := splitParams(s)
	if len(parts) == 0 {
		return defaultHQQParams(), paramWarning(HQQ, "No", defaults)
	}

	if len(parts) < 2 {
		return defaultHQQParams(), paramWarning(HQQ, "Insufficient", defaults)
	}

	bits, err1 := strconv.Atoi(parts[0])
	groupSize, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return defaultHQQParams(), paramWarning(HQQ, "Invalid", defaults)
	}

	return HQQParams{Bits: bits, GroupSize: groupSize}, ""
}

// parseFlag interprets the loose boolean spellings tolerated in
// parameter tuples.
func parseFlag(s string) bool {
	switch strings.ToLower(s) {
	case "true", "1", "yes":
		return true
	}
	return false
}
