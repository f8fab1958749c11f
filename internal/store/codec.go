package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format is a document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the encoding from a file extension; JSON is the
// default.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// DecodeDocument parses data strictly: unknown keys are rejected so typos in
// stage or field names fail the load instead of being ignored.
func DecodeDocument(data []byte, format Format) (*Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, malformedf("", "document is empty")
	}

	var doc Document
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
			return nil, malformedf("", "decode yaml: %w", err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return nil, malformedf("", "decode json: %w", err)
		}
	}
	return &doc, nil
}

// EncodeDocument renders doc in the given format.
func EncodeDocument(doc *Document, format Format) ([]byte, error) {
	if format == FormatYAML {
		return yaml.Marshal(doc)
	}
	return json.MarshalIndent(doc, "", "  ")
}

func cloneDocument(doc *Document) (*Document, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var out Document
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
