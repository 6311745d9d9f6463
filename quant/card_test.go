package quant

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestFormatTag(t *testing.T) {
	cases := map[string]string{
		"GGUF":    "GGUF",
		"gguf":    "GGUF",
		"exl2":    "EXL2",
		"awq":     "AWQ",
		"i1-GGUF": "i1-GGUF",
		"i1-gguf": "i1-GGUF",
		"I1-gguf": "i1-GGUF",
	}

	for in, want := range cases {
		assert.Equal(t, want, FormatTag(in), in)
	}
}

func TestModelCard(t *testing.T) {
	card, err := ModelCard("org/modelA", "i1-gguf")
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(card, "---\n"))
	parts := strings.SplitN(card, "---\n", 3)
	require.Len(t, parts, 3)

	var meta cardMetadata
	require.NoError(t, yaml.Unmarshal([]byte(parts[1]), &meta))
	assert.Equal(t, "org/modelA", meta.BaseModel)
	assert.Equal(t, []string{"en"}, meta.Language)
	assert.Equal(t, "mit", meta.License)
	assert.Equal(t, "SpongeQuant", meta.QuantizedBy)
	assert.Equal(t, []string{"SpongeQuant", "i1-GGUF"}, meta.Tags)

	body := parts[2]
	assert.Contains(t, body, "Quantized to `i1-GGUF`")
	assert.Contains(t, body, cardAssetURL)
	assert.Contains(t, body, "<figure>")
	assert.Contains(t, body, `type="audio/mp3"`)
}

func TestCardFigures(t *testing.T) {
	assert.Len(t, cardImages, 122)
	assert.Len(t, cardAudios, 31)

	for _, f := range append(append([]figure{}, cardImages...), cardAudios...) {
		assert.NotEmpty(t, f.File)
		assert.NotEmpty(t, f.Caption)
	}
}
