package facts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Batch is the on-disk form of an extraction run.
type Batch struct {
	Files []FileFacts `json:"files" yaml:"files"`
}

// LoadBatch reads a JSON or YAML batch file. The format is chosen by
// extension; unknown extensions are sniffed.
func LoadBatch(path string) ([]FileFacts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	format := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	switch format {
	case "yaml", "yml":
		return DecodeYAML(data)
	case "json":
		return DecodeJSON(data)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return DecodeJSON(data)
	}
	return DecodeYAML(data)
}

// DecodeJSON accepts either a Batch object or a bare array of FileFacts.
func DecodeJSON(data []byte) ([]FileFacts, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var files []FileFacts
		if err := json.Unmarshal(trimmed, &files); err != nil {
			return nil, fmt.Errorf("decode facts array: %w", err)
		}
		return files, nil
	}
	var batch Batch
	if err := json.Unmarshal(trimmed, &batch); err != nil {
		return nil, fmt.Errorf("decode facts batch: %w", err)
	}
	return batch.Files, nil
}

// DecodeYAML accepts either a Batch mapping or a bare sequence of FileFacts.
func DecodeYAML(data []byte) ([]FileFacts, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("decode facts yaml: %w", err)
	}
	if len(node.Content) == 0 {
		return nil, nil
	}
	root := node.Content[0]
	if root.Kind == yaml.SequenceNode {
		var files []FileFacts
		if err := root.Decode(&files); err != nil {
			return nil, fmt.Errorf("decode facts sequence: %w", err)
		}
		return files, nil
	}
	var batch Batch
	if err := root.Decode(&batch); err != nil {
		return nil, fmt.Errorf("decode facts batch: %w", err)
	}
	return batch.Files, nil
}
