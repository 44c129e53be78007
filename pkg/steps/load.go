package steps

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Parse decodes a step file: a YAML (or JSON) list of single-key step
// mappings. Every step is validated before it is returned.
func Parse(data []byte) ([]Step, error) {
	var seq []Step
	if err := yaml.Unmarshal(data, &seq); err != nil {
		return nil, fmt.Errorf("decoding steps: %w", err)
	}
	if err := validateAll(seq); err != nil {
		return nil, fmt.Errorf("invalid steps: %w", err)
	}
	return seq, nil
}

// LoadFile reads and parses a step file.
func LoadFile(path string) ([]Step, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	seq, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return seq, nil
}
