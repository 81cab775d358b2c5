package parsers

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// YAMLParser parses observations from YAML using the same field names as
// the JSON format.
type YAMLParser struct{}

// Parse reads YAML from the reader and returns parsed observations.
func (p *YAMLParser) Parse(r io.Reader) ([]ChapterObservations, error) {
	var doc any
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	// Round-trip through JSON so both formats share one schema.
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("converting YAML: %w", err)
	}
	return decodeObservations(data)
}
