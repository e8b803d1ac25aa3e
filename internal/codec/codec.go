// Package codec reads and writes configuration files as ordered trees.
package codec

import (
	"fmt"
	"slices"
	"strings"
)

// Format identifies a supported configuration file format
type Format string

const (
	FormatYAML       Format = "yaml"
	FormatJSON       Format = "json"
	FormatProperties Format = "properties"
)

// Codec decodes files of one format into trees and encodes trees back into
// that format's text representation.
type Codec interface {
	// Format returns the format handled by the codec
	Format() Format
	// Accepts reports whether a file extension (without the dot) belongs to the format
	Accepts(ext string) bool
	// Decode parses a file. A file without content yields a nil tree.
	Decode(data []byte) (*Tree, error)
	// Encode serializes a tree. An empty tree yields an empty string.
	// Whole-number floats keep a ".0" fraction so they decode as floats.
	Encode(t *Tree) (string, error)
}

// DecodeError reports a malformed source file
type DecodeError struct {
	Format Format
	Path   string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("malformed %s content: %v", e.Format, e.Err)
	}
	return fmt.Sprintf("malformed %s file %s: %v", e.Format, e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ForFormat returns the codec for the given format
func ForFormat(format Format) (Codec, error) {
	switch Format(strings.ToLower(string(format))) {
	case FormatYAML:
		return YAML{}, nil
	case FormatJSON:
		return JSON{}, nil
	case FormatProperties:
		return Properties{}, nil
	default:
		return nil, fmt.Errorf("unsupported file format: %q (must be yaml, json, or properties)", format)
	}
}

func acceptsExtension(ext string, accepted ...string) bool {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	return slices.Contains(accepted, ext)
}
