package quant

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spongeengine/spongequant/envconfig"
)

// Tools locates the external toolchains a run depends on. The zero value
// is not usable; construct with DefaultTools or fill every field.
type Tools struct {
	// Python is the interpreter used for conversion and driver scripts.
	Python string

	// LlamaCppDir is a llama.cpp checkout built with cmake: conversion
	// scripts at its root and binaries under build/bin.
	LlamaCppDir string

	// RunnersDir holds the driver scripts for the GPU toolchains.
	RunnersDir string

	// AllocConf is the PYTORCH_CUDA_ALLOC_CONF value exported to every
	// command. Expandable segments keep fragmentation manageable when a
	// driver loads the full model.
	AllocConf string
}

func DefaultTools() Tools {
	return Tools{
		Python:      envconfig.Python,
		LlamaCppDir: envconfig.LlamaCppDir,
		RunnersDir:  envconfig.RunnersDir,
		AllocConf:   envconfig.AllocConf,
	}
}

func (t Tools) ConvertScript() string {
	return filepath.Join(t.LlamaCppDir, "convert_hf_to_gguf.py")
}

func (t Tools) QuantizeBin() string {
	return filepath.Join(t.LlamaCppDir, "build", "bin", "llama-quantize")
}

func (t Tools) ImatrixBin() string {
	return filepath.Join(t.LlamaCppDir, "build", "bin", "llama-imatrix")
}

func (t Tools) GPTQScript() string {
	return filepath.Join(t.RunnersDir, "gptq_quantize.py")
}

func (t Tools) AWQScript() string {
	return filepath.Join(t.RunnersDir, "awq_quantize.py")
}

func (t Tools) HQQScript() string {
	return filepath.Join(t.RunnersDir, "hqq_quantize.py")
}

func (t Tools) EXL2Script() string {
	return filepath.Join(t.RunnersDir, "exllamav2", "convert.py")
}

// Probe verifies that everything m needs is present. It is checked once
// per run so a missing toolchain is reported up front instead of failing
// partway through a batch.
func (t Tools) Probe(m Method) error {
	switch m {
	case GGUF:
		return firstErr(
			t.probePython(),
			probeFile(t.ConvertScript()),
			probeExec(t.QuantizeBin()),
		)
	case GPTQ:
		return firstErr(t.probePython(), probeFile(t.GPTQScript()))
	case ExLlamaV2:
		return firstErr(t.probePython(), probeFile(t.EXL2Script()))
	case AWQ:
		return firstErr(t.probePython(), probeFile(t.AWQScript()))
	case HQQ:
		return firstErr(t.probePython(), probeFile(t.HQQScript()))
	}
	return fmt.Errorf("unknown quantization method: %d", m)
}

// ProbeImatrix verifies the importance matrix tool is present.
func (t Tools) ProbeImatrix() error {
	return probeExec(t.ImatrixBin())
}

func (t Tools) probePython() error {
	if _, err := exec.LookPath(t.Python); err != nil {
		return fmt.Errorf("python interpreter %s not found", t.Python)
	}
	return nil
}

func probeFile(path string) error {
	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() {
		return fmt.Errorf("%s not found", path)
	}
	return nil
}

func probeExec(path string) error {
	if _, err := exec.LookPath(path); err != nil {
		return fmt.Errorf("%s not found", path)
	}
	return nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
