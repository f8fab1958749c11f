package store

import (
	"context"
	"errors"
	"os"
)

// FileSource reads a JSON or YAML document from the local filesystem.
type FileSource struct {
	path   string
	format Format
}

// NewFileSource creates a source for path; the format follows the extension.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path, format: FormatFromPath(path)}
}

// Path returns the file path, used by the file watcher.
func (f *FileSource) Path() string { return f.path }

// Load reads and decodes the file.
func (f *FileSource) Load(ctx context.Context) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, ioError(f.String(), err)
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, ioError(f.String(), err)
	}
	doc, err := DecodeDocument(data, f.format)
	if err != nil {
		var ce *ConfigError
		if errors.As(err, &ce) {
			ce.Source = f.String()
		}
		return nil, err
	}
	return doc, nil
}

func (f *FileSource) String() string { return "file:" + f.path }

// Close is a no-op; the file is opened per load.
func (f *FileSource) Close() error { return nil }
