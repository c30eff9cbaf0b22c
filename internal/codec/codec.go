// Package codec reads and writes config context payloads and documents as
// JSON or YAML.
//
// A context document describes one record. Two shapes are accepted:
//
//	name: ntp-servers
//	weight: 1000
//	groups:
//	  roles: [leaf, spine]
//	data:
//	  ntp: {servers: [10.0.0.1]}
//
// or, with the record attributes tucked away under _metadata:
//
//	_metadata:
//	  name: ntp-servers
//	  weight: 1000
//	ntp: {servers: [10.0.0.1]}
package codec

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"configctx/internal/domain"
)

// Supported formats
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Importer reads context data and documents
type Importer interface {
	ParseData(r io.Reader) (domain.Value, error)
	ParseDocument(r io.Reader) (*domain.ContextRecord, error)
	Format() string
}

// Exporter writes rendered contexts
type Exporter interface {
	Export(v domain.Value, w io.Writer) error
	ContentType() string
	Format() string
}

// Codec is both
type Codec interface {
	Importer
	Exporter
}

// ForFormat returns the codec for a format name. An empty name means JSON.
func ForFormat(format string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatJSON:
		return NewJSONCodec(), nil
	case FormatYAML, "yml":
		return NewYAMLCodec(), nil
	}
	return nil, fmt.Errorf("%w: unsupported format %q", domain.ErrValidation, format)
}

// ForPath picks a codec from a file extension
func ForPath(path string) (Codec, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return NewJSONCodec(), true
	case ".yaml", ".yml":
		return NewYAMLCodec(), true
	}
	return nil, false
}

// ParseData parses a context payload in the given format. The top level must be a mapping.
func ParseData(format string, r io.Reader) (domain.Value, error) {
	c, err := ForFormat(format)
	if err != nil {
		return domain.Value{}, err
	}
	return c.ParseData(r)
}

func requireMapping(v domain.Value) (domain.Value, error) {
	if !v.IsMapping() {
		return domain.Value{}, fmt.Errorf("%w: top level is %s, not a mapping", domain.ErrInvalidContextData, v.Kind())
	}
	return v, nil
}
