package cmd

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"

	"github.com/spongeengine/spongequant/api"
	"github.com/spongeengine/spongequant/envconfig"
)

func quantizeCommand(t *testing.T) *cobra.Command {
	t.Helper()

	cmd, _, err := NewCLI().Find([]string{"quantize"})
	if err != nil {
		t.Fatal(err)
	}

	return cmd
}

func setFlags(t *testing.T, cmd *cobra.Command, flags map[string]string) {
	t.Helper()

	for name, value := range flags {
		if err := cmd.Flags().Set(name, value); err != nil {
			t.Fatalf("set --%s=%s: %v", name, value, err)
		}
	}
}

func TestBuildQuantizeRequest(t *testing.T) {
	t.Run("positional models", func(t *testing.T) {
		cmd := quantizeCommand(t)
		setFlags(t, cmd, map[string]string{"gguf": ""})

		req, err := buildQuantizeRequest(cmd, []string{"org/modelA", "org/modelB"})
		if err != nil {
			t.Fatal(err)
		}

		want := &api.QuantizeRequest{
			Models:  []string{"org/modelA", "org/modelB"},
			Methods: []api.MethodRequest{{Name: "gguf"}},
		}
		if diff := cmp.Diff(want, req); diff != "" {
			t.Errorf("unexpected request (-want +got):\n%s", diff)
		}
	})

	t.Run("model list file", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "models.txt")
		if err := os.WriteFile(file, []byte("org/modelB\n\n  org/modelC  \n"), 0o644); err != nil {
			t.Fatal(err)
		}

		cmd := quantizeCommand(t)
		setFlags(t, cmd, map[string]string{"file": file, "gptq": "4, 128, 0.1"})

		req, err := buildQuantizeRequest(cmd, []string{"org/modelA"})
		if err != nil {
			t.Fatal(err)
		}

		if diff := cmp.Diff([]string{"org/modelA", "org/modelB", "org/modelC"}, req.Models); diff != "" {
			t.Errorf("unexpected models (-want +got):\n%s", diff)
		}

		if diff := cmp.Diff([]api.MethodRequest{{Name: "gptq", Params: "4, 128, 0.1"}}, req.Methods); diff != "" {
			t.Errorf("unexpected methods (-want +got):\n%s", diff)
		}
	})

	t.Run("multiple methods", func(t *testing.T) {
		cmd := quantizeCommand(t)
		setFlags(t, cmd, map[string]string{"hqq": "2, 64", "gguf": "Q4_K_M", "exl2": ""})

		req, err := buildQuantizeRequest(cmd, []string{"org/modelA"})
		if err != nil {
			t.Fatal(err)
		}

		want := []api.MethodRequest{
			{Name: "gguf", Params: "Q4_K_M"},
			{Name: "exl2"},
			{Name: "hqq", Params: "2, 64"},
		}
		if diff := cmp.Diff(want, req.Methods); diff != "" {
			t.Errorf("unexpected methods (-want +got):\n%s", diff)
		}
	})

	t.Run("no models", func(t *testing.T) {
		cmd := quantizeCommand(t)
		setFlags(t, cmd, map[string]string{"gguf": ""})

		if _, err := buildQuantizeRequest(cmd, nil); err == nil {
			t.Fatal("expected an error for an empty model list")
		}
	})

	t.Run("no methods", func(t *testing.T) {
		cmd := quantizeCommand(t)

		if _, err := buildQuantizeRequest(cmd, []string{"org/modelA"}); err == nil {
			t.Fatal("expected an error when no method flag is set")
		}
	})

	t.Run("imatrix defaults", func(t *testing.T) {
		cmd := quantizeCommand(t)
		setFlags(t, cmd, map[string]string{"gguf": "IQ2_M", "imatrix": "true"})

		req, err := buildQuantizeRequest(cmd, []string{"org/modelA"})
		if err != nil {
			t.Fatal(err)
		}

		want := api.DefaultImatrixOptions()
		if diff := cmp.Diff(&want, req.Imatrix); diff != "" {
			t.Errorf("unexpected imatrix options (-want +got):\n%s", diff)
		}
	})

	t.Run("imatrix options", func(t *testing.T) {
		cmd := quantizeCommand(t)
		setFlags(t, cmd, map[string]string{
			"gguf":              "",
			"imatrix":           "true",
			"imatrix-file":      "gguf/other.dat",
			"calibration":       "gguf/wiki.txt",
			"recompute-imatrix": "true",
		})
		setFlags(t, cmd, map[string]string{"imatrix-opt": "chunk=128"})
		setFlags(t, cmd, map[string]string{"imatrix-opt": "ngl=40"})

		req, err := buildQuantizeRequest(cmd, []string{"org/modelA"})
		if err != nil {
			t.Fatal(err)
		}

		want := api.DefaultImatrixOptions()
		want.File = "gguf/other.dat"
		want.Calibration = "gguf/wiki.txt"
		want.Recompute = true
		want.Chunk = 128
		want.NGL = 40
		if diff := cmp.Diff(&want, req.Imatrix); diff != "" {
			t.Errorf("unexpected imatrix options (-want +got):\n%s", diff)
		}
	})

	t.Run("invalid imatrix option", func(t *testing.T) {
		for _, opt := range []string{"chunk", "bogus=1"} {
			cmd := quantizeCommand(t)
			setFlags(t, cmd, map[string]string{"gguf": "", "imatrix": "true", "imatrix-opt": opt})

			if _, err := buildQuantizeRequest(cmd, []string{"org/modelA"}); err == nil {
				t.Errorf("expected an error for --imatrix-opt %s", opt)
			}
		}
	})

	t.Run("publish and cleanup flags", func(t *testing.T) {
		cmd := quantizeCommand(t)
		setFlags(t, cmd, map[string]string{
			"awq":              "",
			"username":         "acme",
			"token":            "hf_secret",
			"delete-original":  "true",
			"delete-quantized": "true",
		})

		req, err := buildQuantizeRequest(cmd, []string{"org/modelA"})
		if err != nil {
			t.Fatal(err)
		}

		if req.Username != "acme" || req.Token != "hf_secret" {
			t.Errorf("publish fields = %q/%q, want acme/hf_secret", req.Username, req.Token)
		}

		if !req.DeleteOriginal || !req.DeleteQuantized {
			t.Errorf("cleanup flags = %v/%v, want true/true", req.DeleteOriginal, req.DeleteQuantized)
		}
	})
}

func TestQuantizeDisplay(t *testing.T) {
	var out bytes.Buffer
	d := newQuantizeDisplay(&out, io.Discard)
	defer d.stop()

	for range 2 {
		if err := d.update(api.ProgressResponse{Status: "downloading org/modelA"}); err != nil {
			t.Fatal(err)
		}
	}

	if d.spinner == nil {
		t.Fatal("expected a spinner after a status event")
	}

	if d.status != "downloading org/modelA" {
		t.Errorf("status = %q, want %q", d.status, "downloading org/modelA")
	}

	for _, completed := range []int64{10, 50} {
		resp := api.ProgressResponse{
			Status:    "model.safetensors",
			Digest:    "models/modelA/model.safetensors",
			Total:     100,
			Completed: completed,
		}
		if err := d.update(resp); err != nil {
			t.Fatal(err)
		}
	}

	if d.spinner != nil {
		t.Error("expected the spinner to stop when a transfer starts")
	}

	if len(d.bars) != 1 {
		t.Errorf("bars = %d, want 1", len(d.bars))
	}

	if err := d.update(api.ProgressResponse{Output: "[INFO] Converting model to GGUF."}); err != nil {
		t.Fatal(err)
	}

	if d.p != nil {
		t.Error("expected tool output to clear the progress display")
	}

	if got, want := out.String(), "[INFO] Converting model to GGUF.\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}

	if err := d.update(api.ProgressResponse{Status: "quantizing"}); err != nil {
		t.Fatal(err)
	}

	if d.p == nil || d.spinner == nil {
		t.Error("expected a fresh display after tool output")
	}
}

func TestAppendEnvDocs(t *testing.T) {
	cmd := &cobra.Command{Use: "spongequant"}
	appendEnvDocs(cmd, []envconfig.EnvVar{envconfig.AsMap()["SPONGEQUANT_HOST"]})

	usage := cmd.UsageString()
	for _, want := range []string{"Environment Variables:", "SPONGEQUANT_HOST"} {
		if !strings.Contains(usage, want) {
			t.Errorf("usage is missing %q:\n%s", want, usage)
		}
	}
}

func TestNewCLI(t *testing.T) {
	cli := NewCLI()

	for _, name := range []string{"serve", "quantize", "quant", "list", "ls", "rm", "show", "version"} {
		cmd, _, err := cli.Find([]string{name})
		if err != nil {
			t.Errorf("find %q: %v", name, err)
			continue
		}

		if cmd == cli {
			t.Errorf("%q resolved to the root command", name)
		}
	}
}
