package emotion

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed labels.yaml
var defaultLabels []byte

// LabelMap maps a detailed classifier label to its general bucket.
type LabelMap map[string]string

const unknownGeneral = "unknown"

// General returns the bucket for a detailed label, "unknown" if unmapped.
func (m LabelMap) General(detailed string) string {
	if g, ok := m[detailed]; ok {
		return g
	}
	return unknownGeneral
}

func DefaultLabelMap() LabelMap {
	m, err := parseLabelMap(defaultLabels)
	if err != nil {
		panic(fmt.Sprintf("embedded label map: %v", err))
	}
	return m
}

// LoadLabelMap reads a YAML label map from path, or returns the embedded
// default when path is empty.
func LoadLabelMap(path string) (LabelMap, error) {
	if path == "" {
		return DefaultLabelMap(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("label map %s: %w", path, err)
	}
	m, err := parseLabelMap(b)
	if err != nil {
		return nil, fmt.Errorf("label map %s: %w", path, err)
	}
	return m, nil
}

func parseLabelMap(b []byte) (LabelMap, error) {
	var m LabelMap
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, fmt.Errorf("no labels")
	}
	return m, nil
}
