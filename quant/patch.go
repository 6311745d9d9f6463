package quant

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Keys that confuse the GPU loaders when they appear alongside a patched
// rope_scaling block.
var patchedConfigKeys = []string{
	"low_freq_factor",
	"high_freq_factor",
	"original_max_position_embeddings",
	"rope_type",
}

// PatchModelConfig rewrites config.json in the model directory so the
// rope_scaling field carries only the type and factor keys the GPTQ and
// AWQ loaders understand. It runs after download and again before each
// loader; patching an already patched config is a no-op.
func PatchModelConfig(dir string, s *stream) {
	path := filepath.Join(dir, "config.json")

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		s.linef("[WARN] No config.json found in %s", dir)
		return
	} else if err != nil {
		s.linef("[ERROR] Failed to patch config file: %v", err)
		return
	}

	var config map[string]any
	if err := json.Unmarshal(raw, &config); err != nil {
		s.linef("[ERROR] Failed to patch config file: %v", err)
		return
	}

	if ropeScaling, ok := config["rope_scaling"].(map[string]any); ok {
		factor := 1.0
		if f, ok := ropeScaling["factor"].(float64); ok {
			factor = f
		}

		config["rope_scaling"] = map[string]any{"type": "linear", "factor": factor}
	}

	for _, key := range patchedConfigKeys {
		delete(config, key)
	}

	patched, err := json.Marshal(config)
	if err != nil {
		s.linef("[ERROR] Failed to patch config file: %v", err)
		return
	}

	if err := os.WriteFile(path, patched, 0o644); err != nil {
		s.linef("[ERROR] Failed to patch config file: %v", err)
		return
	}

	s.linef("[INFO] Patched config in %s", path)
}
