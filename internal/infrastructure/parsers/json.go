package parsers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// JSONParser parses observations from JSON. The document is either a list
// of {"chapter": n, "characters": [...]} blocks or a single such block.
type JSONParser struct{}

// Parse reads JSON from the reader and returns parsed observations.
func (p *JSONParser) Parse(r io.Reader) ([]ChapterObservations, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading JSON: %w", err)
	}
	return decodeObservations(data)
}

func decodeObservations(data []byte) ([]ChapterObservations, error) {
	data = bytes.TrimSpace(data)

	var observations []ChapterObservations
	if bytes.HasPrefix(data, []byte("{")) {
		var single ChapterObservations
		if err := json.Unmarshal(data, &single); err != nil {
			return nil, fmt.Errorf("parsing JSON: %w", err)
		}
		observations = []ChapterObservations{single}
	} else if err := json.Unmarshal(data, &observations); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}

	if err := validate(observations); err != nil {
		return nil, err
	}
	return observations, nil
}
