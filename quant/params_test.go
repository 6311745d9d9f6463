package quant

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseGGUFTypes(t *testing.T) {
	types, warning := ParseGGUFTypes("q4_k_m, Q5_K_M")
	assert.Equal(t, []string{"Q4_K_M", "Q5_K_M"}, types)
	assert.Empty(t, warning)

	types, warning = ParseGGUFTypes("")
	assert.Equal(t, DefaultGGUFTypes, types)
	assert.Equal(t, "[WARN] No GGUF parameters provided. Using defaults: "+strings.Join(DefaultGGUFTypes, ", "), warning)

	// delimiters with nothing between them still mean no types
	types, warning = ParseGGUFTypes(" , ,")
	assert.Equal(t, DefaultGGUFTypes, types)
	assert.Contains(t, warning, "No GGUF parameters provided")

	// the default set must not be mutable through the result
	types, _ = ParseGGUFTypes("")
	types[0] = "mutated"
	assert.Equal(t, "IQ2_XXS", DefaultGGUFTypes[0])
}

func TestParseGPTQParams(t *testing.T) {
	cases := []struct {
		name    string
		params  string
		want    GPTQParams
		warning string
	}{
		{"full tuple", "8, 32, 0.05", GPTQParams{Bits: 8, GroupSize: 32, DampPercent: 0.05}, ""},
		{"no spaces", "3,64,0.2", GPTQParams{Bits: 3, GroupSize: 64, DampPercent: 0.2}, ""},
		{"empty", "", defaultGPTQParams(), "[WARN] No GPTQ parameters provided. Using defaults: 4, 128, 0.1"},
		{"insufficient", "8, 64", defaultGPTQParams(), "[WARN] Insufficient GPTQ parameters provided. Using defaults: 4, 128, 0.1"},
		{"invalid", "eight, 64, 0.1", defaultGPTQParams(), "[WARN] Invalid GPTQ parameters provided. Using defaults: 4, 128, 0.1"},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			got, warning := ParseGPTQParams(tt.params)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.warning, warning)
		})
	}
}

func TestParseEXL2Params(t *testing.T) {
	cases := []struct {
		name    string
		params  string
		want    EXL2Params
		warning string
	}{
		{"bpw", "6.0", EXL2Params{BitsPerWeight: 6.0}, ""},
		{"integer bpw", "3", EXL2Params{BitsPerWeight: 3}, ""},
		{"empty", "", EXL2Params{BitsPerWeight: 4.5}, "[WARN] No ExLlamaV2 parameters provided. Using defaults: 4.5"},
		{"not a number", "four", EXL2Params{BitsPerWeight: 4.5}, "[WARN] Invalid ExLlamaV2 parameters provided. Using defaults: 4.5"},
		{"too many values", "4.5, 6", EXL2Params{BitsPerWeight: 4.5}, "[WARN] Invalid ExLlamaV2 parameters provided. Using defaults: 4.5"},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			got, warning := ParseEXL2Params(tt.params)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.warning, warning)
		})
	}
}

func TestParseAWQParams(t *testing.T) {
	cases := []struct {
		name    string
		params  string
		want    AWQParams
		warning string
	}{
		{"full tuple", "8, 64, GEMV, false", AWQParams{Bits: 8, GroupSize: 64, Version: "GEMV", ZeroPoint: false}, ""},
		{"zero point spellings", "4, 128, GEMM, yes", AWQParams{Bits: 4, GroupSize: 128, Version: "GEMM", ZeroPoint: true}, ""},
		{"empty", "", defaultAWQParams(), "[WARN] No AWQ parameters provided. Using defaults: 4, 128, GEMM, true"},
		{"insufficient", "4, 128, GEMM", defaultAWQParams(), "[WARN] Insufficient AWQ parameters provided. Using defaults: 4, 128, GEMM, true"},
		{"invalid", "a, b, GEMM, true", defaultAWQParams(), "[WARN] Invalid AWQ parameters provided. Using defaults: 4, 128, GEMM, true"},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			got, warning := ParseAWQParams(tt.params)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.warning, warning)
		})
	}
}

func TestParseHQQParams(t *testing.T) {
	cases := []struct {
		name    string
		params  string
		want    HQQParams
		warning string
	}{
		{"full tuple", "4, 64", HQQParams{Bits: 4, GroupSize: 64}, ""},
		{"empty", "", defaultHQQParams(), "[WARN] No HQQ parameters provided. Using defaults: 2, 128"},
		{"insufficient", "4", defaultHQQParams(), "[WARN] Insufficient HQQ parameters provided. Using defaults: 2, 128"},
		{"invalid", "a, b", defaultHQQParams(), "[WARN] Invalid HQQ parameters provided. Using defaults: 2, 128"},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			got, warning := ParseHQQParams(tt.params)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.warning, warning)
		})
	}
}

func TestParseFlag(t *testing.T) {
	for _, s := range []string{"true", "TRUE", "1", "yes", "Yes"} {
		assert.True(t, parseFlag(s), s)
	}

	for _, s := range []string{"false", "0", "no", "", "2"} {
		assert.False(t, parseFlag(s), s)
	}
}
