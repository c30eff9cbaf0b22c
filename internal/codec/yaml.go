package codec

import (
	"errors"
	"fmt"
	"io"

	"configctx/internal/domain"

	"gopkg.in/yaml.v3"
)

// YAMLCodec handles YAML import/export
type YAMLCodec struct{}

// NewYAMLCodec creates a new YAML codec
func NewYAMLCodec() *YAMLCodec {
	return &YAMLCodec{}
}

// Format returns the codec format identifier
func (c *YAMLCodec) Format() string {
	return FormatYAML
}

// ContentType returns the MIME type of exported data
func (c *YAMLCodec) ContentType() string {
	return "application/yaml"
}

// ParseData reads a YAML mapping. An empty document is an empty mapping.
func (c *YAMLCodec) ParseData(r io.Reader) (domain.Value, error) {
	v, err := c.decode(r)
	if err != nil {
		return domain.Value{}, err
	}
	if v.IsNull() {
		return domain.NewMapping(), nil
	}
	return requireMapping(v)
}

// ParseDocument reads a single context document
func (c *YAMLCodec) ParseDocument(r io.Reader) (*domain.ContextRecord, error) {
	v, err := c.decode(r)
	if err != nil {
		return nil, err
	}
	return recordFromValue(v)
}

func (c *YAMLCodec) decode(r io.Reader) (domain.Value, error) {
	var v domain.Value
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.NullValue(), nil
		}
		return domain.Value{}, fmt.Errorf("%w: failed to parse YAML: %v", domain.ErrInvalidContextData, err)
	}
	return v, nil
}

// Export writes v as YAML with two-space indentation
func (c *YAMLCodec) Export(v domain.Value, w io.Writer) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)

	if err := encoder.Encode(v.ToAny()); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}

	return encoder.Close()
}
