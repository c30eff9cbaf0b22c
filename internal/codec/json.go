package codec

import (
	"errors"
	"fmt"
	"io"

	"configctx/internal/domain"

	"github.com/goccy/go-json"
)

// JSONCodec handles JSON import/export
type JSONCodec struct{}

// NewJSONCodec creates a new JSON codec
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// Format returns the codec format identifier
func (c *JSONCodec) Format() string {
	return FormatJSON
}

// ContentType returns the MIME type of exported data
func (c *JSONCodec) ContentType() string {
	return "application/json"
}

// ParseData reads a JSON object
func (c *JSONCodec) ParseData(r io.Reader) (domain.Value, error) {
	v, err := c.decode(r)
	if err != nil {
		return domain.Value{}, err
	}
	return requireMapping(v)
}

// ParseDocument reads a single context document
func (c *JSONCodec) ParseDocument(r io.Reader) (*domain.ContextRecord, error) {
	v, err := c.decode(r)
	if err != nil {
		return nil, err
	}
	return recordFromValue(v)
}

func (c *JSONCodec) decode(r io.Reader) (domain.Value, error) {
	var v domain.Value
	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&v); err != nil {
		return domain.Value{}, fmt.Errorf("%w: failed to parse JSON: %v", domain.ErrInvalidContextData, err)
	}

	// A payload is exactly one value
	var extra json.RawMessage
	if err := decoder.Decode(&extra); !errors.Is(err, io.EOF) {
		return domain.Value{}, fmt.Errorf("%w: unexpected data after JSON value", domain.ErrInvalidContextData)
	}
	return v, nil
}

// Export writes v as indented JSON with sorted keys
func (c *JSONCodec) Export(v domain.Value, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(v.ToAny()); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}
