package envconfig

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

var (
	// Set via SPONGEQUANT_DEBUG in the environment
	Debug bool
	// Set via SPONGEQUANT_ORIGINS in the environment
	AllowOrigins []string
	// Set via SPONGEQUANT_MODELS in the environment
	ModelsDir string
	// Set via SPONGEQUANT_QUANTIZED in the environment
	QuantizedDir string
	// Set via SPONGEQUANT_LLAMA_CPP in the environment
	LlamaCppDir string
	// Set via SPONGEQUANT_PYTHON in the environment
	Python string
	// Set via SPONGEQUANT_RUNNERS in the environment
	RunnersDir string
	// Set via SPONGEQUANT_ALLOC_CONF in the environment
	AllocConf string
	// Set via HF_TOKEN or SPONGEQUANT_HF_TOKEN in the environment
	HubToken string
	// Set via HF_ENDPOINT in the environment
	HubEndpoint string
)

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"SPONGEQUANT_HOST":       {"SPONGEQUANT_HOST", "", "IP Address for the spongequant server (default 127.0.0.1:11480)"},
		"SPONGEQUANT_DEBUG":      {"SPONGEQUANT_DEBUG", Debug, "Show additional debug information (e.g. SPONGEQUANT_DEBUG=1)"},
		"SPONGEQUANT_ORIGINS":    {"SPONGEQUANT_ORIGINS", AllowOrigins, "A comma separated list of allowed origins"},
		"SPONGEQUANT_MODELS":     {"SPONGEQUANT_MODELS", ModelsDir, "The path to the downloaded models directory (default \"models\")"},
		"SPONGEQUANT_QUANTIZED":  {"SPONGEQUANT_QUANTIZED", QuantizedDir, "The path to the quantized models directory (default \"quantized_models\")"},
		"SPONGEQUANT_LLAMA_CPP":  {"SPONGEQUANT_LLAMA_CPP", LlamaCppDir, "The path to the llama.cpp checkout with built binaries (default \"llama_cpp\")"},
		"SPONGEQUANT_PYTHON":     {"SPONGEQUANT_PYTHON", Python, "The python interpreter used for quantization tool scripts (default \"python3\")"},
		"SPONGEQUANT_RUNNERS":    {"SPONGEQUANT_RUNNERS", RunnersDir, "The path to the quantization runner scripts (default \"runners\")"},
		"SPONGEQUANT_ALLOC_CONF": {"SPONGEQUANT_ALLOC_CONF", AllocConf, "PYTORCH_CUDA_ALLOC_CONF passed to quantization tools"},
		"HF_TOKEN":               {"HF_TOKEN", "", "Hugging Face Hub access token used when none is supplied with a request"},
		"HF_ENDPOINT":            {"HF_ENDPOINT", HubEndpoint, "Hugging Face Hub endpoint (default \"https://huggingface.co\")"},
	}
}

func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}

var defaultAllowOrigins = []string{
	"localhost",
	"127.0.0.1",
	"0.0.0.0",
}

// Clean quotes and spaces from the value
func clean(key string) string {
	return strings.Trim(os.Getenv(key), "\"' ")
}

func init() {
	LoadConfig()
}

func LoadConfig() {
	Debug = false
	if debug := clean("SPONGEQUANT_DEBUG"); debug != "" {
		d, err := strconv.ParseBool(debug)
		if err == nil {
			Debug = d
		} else {
			Debug = true
		}
	}

	AllowOrigins = nil
	if origins := clean("SPONGEQUANT_ORIGINS"); origins != "" {
		AllowOrigins = strings.Split(origins, ",")
	}
	for _, allowOrigin := range defaultAllowOrigins {
		AllowOrigins = append(AllowOrigins,
			fmt.Sprintf("http://%s", allowOrigin),
			fmt.Sprintf("https://%s", allowOrigin),
			fmt.Sprintf("http://%s:*", allowOrigin),
			fmt.Sprintf("https://%s:*", allowOrigin),
		)
	}

	ModelsDir = "models"
	if dir := clean("SPONGEQUANT_MODELS"); dir != "" {
		ModelsDir = dir
	}

	QuantizedDir = "quantized_models"
	if dir := clean("SPONGEQUANT_QUANTIZED"); dir != "" {
		QuantizedDir = dir
	}

	LlamaCppDir = "llama_cpp"
	if dir := clean("SPONGEQUANT_LLAMA_CPP"); dir != "" {
		LlamaCppDir = dir
	}

	Python = "python3"
	if py := clean("SPONGEQUANT_PYTHON"); py != "" {
		Python = py
	}

	RunnersDir = "runners"
	if dir := clean("SPONGEQUANT_RUNNERS"); dir != "" {
		RunnersDir = dir
	}

	AllocConf = "expandable_segments:True"
	if conf := clean("SPONGEQUANT_ALLOC_CONF"); conf != "" {
		AllocConf = conf
	}

	HubToken = clean("HF_TOKEN")
	if token := clean("SPONGEQUANT_HF_TOKEN"); token != "" {
		HubToken = token
	}

	HubEndpoint = "https://huggingface.co"
	if endpoint := clean("HF_ENDPOINT"); endpoint != "" {
		HubEndpoint = strings.TrimSuffix(endpoint, "/")
	}
}
