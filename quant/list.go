package quant

import (
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spongeengine/spongequant/api"
)

// ListArtifacts describes every quantization output directory under
// quantizedDir. A directory that is missing entirely is an empty listing,
// not an error.
func ListArtifacts(quantizedDir string) ([]api.QuantArtifact, error) {
	entries, err := os.ReadDir(quantizedDir)
	if os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	var artifacts []api.QuantArtifact
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		name := entry.Name()
		model, method := splitArtifactName(name)

		var size int64
		var files int
		err := filepath.WalkDir(filepath.Join(quantizedDir, name), func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}

			fi, err := d.Info()
			if err != nil {
				return err
			}

			size += fi.Size()
			files++
			return nil
		})
		if err != nil {
			return nil, err
		}

		fi, err := entry.Info()
		if err != nil {
			return nil, err
		}

		artifacts = append(artifacts, api.QuantArtifact{
			Name:       name,
			Model:      model,
			Method:     method,
			Size:       size,
			Files:      files,
			ModifiedAt: fi.ModTime(),
		})
	}

	slices.SortFunc(artifacts, func(a, b api.QuantArtifact) int {
		return strings.Compare(a.Name, b.Name)
	})

	return artifacts, nil
}

// splitArtifactName breaks a directory name like tiny-llama-GPTQ into the
// model and the method that produced it.
func splitArtifactName(name string) (model, method string) {
	for _, m := range Methods() {
		suffix := "-" + m.DirSuffix()
		if strings.HasSuffix(name, suffix) {
			return strings.TrimSuffix(name, suffix), m.String()
		}
	}
	return name, ""
}

// RemoveArtifacts deletes local state for one model: its downloaded copy
// when original is set and its quantization outputs when quantized is
// set. It returns the paths it removed.
func RemoveArtifacts(modelsDir, quantizedDir, base string, original, quantized bool) ([]string, error) {
	var removed []string

	if original {
		path := filepath.Join(modelsDir, base)
		if _, err := os.Stat(path); err == nil {
			if err := os.RemoveAll(path); err != nil {
				return removed, err
			}
			removed = append(removed, path)
		}
	}

	if quantized {
		entries, err := os.ReadDir(quantizedDir)
		if err != nil && !os.IsNotExist(err) {
			return removed, err
		}

		for _, entry := range entries {
			if !strings.HasPrefix(entry.Name(), base+"-") {
				continue
			}

			path := filepath.Join(quantizedDir, entry.Name())
			if err := os.RemoveAll(path); err != nil {
				return removed, err
			}
			removed = append(removed, path)
		}
	}

	return removed, nil
}
