package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/rabbit-cli/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// loadTaskFile reads a task input from a JSON or YAML file. YAML is decoded
// generically and re-encoded as JSON so both formats share one decoder and
// malformed url lists survive to validation.
func loadTaskFile(path string) (schemas.TaskInput, error) {
	var in schemas.TaskInput

	raw, err := os.ReadFile(path)
	if err != nil {
		return in, fmt.Errorf("failed to read task file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc map[string]any
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return in, fmt.Errorf("failed to parse YAML task file %s: %w", path, err)
		}
		if raw, err = json.Marshal(doc); err != nil {
			return in, fmt.Errorf("failed to convert YAML task file %s: %w", path, err)
		}
	}

	if err := json.Unmarshal(raw, &in); err != nil {
		return in, fmt.Errorf("failed to parse task file %s: %w", path, err)
	}
	return in, nil
}

// writeJSON prints v as indented JSON.
func writeJSON(w interface{ Write([]byte) (int, error) }, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}
