// Package persist provides codec-based serialization and atomic file
// persistence for archive payloads and migration records.
package persist

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"
)

// File extensions for supported codecs.
const (
	jsonExtension = ".json"
	yamlExtension = ".yaml"
	cborExtension = ".cbor"
)

// Default indentation for pretty-printed JSON.
const defaultIndent = "  "

// yamlIndent is the number of spaces per YAML nesting level.
const yamlIndent = 2

// Codec defines how a value is serialized and deserialized.
type Codec interface {
	// Encode writes v to the writer.
	Encode(w io.Writer, v any) error
	// Decode reads the next value from the reader into v.
	Decode(r io.Reader, v any) error
	// Extension returns the file extension for this codec (e.g., ".json", ".cbor").
	Extension() string
}

// JSONCodec implements Codec using JSON encoding with optional indentation.
// Dates are written as RFC 3339 strings by time.Time's own marshaler.
type JSONCodec struct {
	// Indent specifies the indentation string. Empty string means compact JSON.
	Indent string
	// Strict rejects unknown fields on decode.
	Strict bool
}

// NewJSONCodec creates a JSON codec with pretty-printing (2-space indent).
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{Indent: defaultIndent}
}

// Encode implements Codec.Encode using JSON encoding.
func (c *JSONCodec) Encode(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)

	if c.Indent != "" {
		encoder.SetIndent("", c.Indent)
	}

	err := encoder.Encode(v)
	if err != nil {
		return fmt.Errorf("json encode: %w", err)
	}

	return nil
}

// Decode implements Codec.Decode using JSON decoding.
func (c *JSONCodec) Decode(r io.Reader, v any) error {
	decoder := json.NewDecoder(r)
	if c.Strict {
		decoder.DisallowUnknownFields()
	}

	err := decoder.Decode(v)
	if err != nil {
		return fmt.Errorf("json decode: %w", err)
	}

	return nil
}

// Extension implements Codec.Extension for JSON files.
func (c *JSONCodec) Extension() string {
	return jsonExtension
}

// YAMLCodec implements Codec using gopkg.in/yaml.v3.
type YAMLCodec struct{}

// NewYAMLCodec creates a YAML codec.
func NewYAMLCodec() *YAMLCodec {
	return &YAMLCodec{}
}

// Encode implements Codec.Encode using YAML encoding.
func (c *YAMLCodec) Encode(w io.Writer, v any) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(yamlIndent)

	err := encoder.Encode(v)
	if err != nil {
		return fmt.Errorf("yaml encode: %w", err)
	}

	closeErr := encoder.Close()
	if closeErr != nil {
		return fmt.Errorf("yaml encode: %w", closeErr)
	}

	return nil
}

// Decode implements Codec.Decode using YAML decoding.
func (c *YAMLCodec) Decode(r io.Reader, v any) error {
	err := yaml.NewDecoder(r).Decode(v)
	if err != nil {
		return fmt.Errorf("yaml decode: %w", err)
	}

	return nil
}

// Extension implements Codec.Extension for YAML files.
func (c *YAMLCodec) Extension() string {
	return yamlExtension
}

// CBORCodec implements Codec using deterministic CBOR (RFC 8949 §4.2).
// The same value always encodes to the same bytes, which keeps content
// digests over encoded records stable.
type CBORCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// NewCBORCodec creates a CBOR codec with core deterministic encoding and
// RFC 3339 timestamps.
func NewCBORCodec() (*CBORCodec, error) {
	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano

	enc, err := encOptions.EncMode()
	if err != nil {
		return nil, fmt.Errorf("cbor encoder: %w", err)
	}

	dec, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("cbor decoder: %w", err)
	}

	return &CBORCodec{enc: enc, dec: dec}, nil
}

// Encode implements Codec.Encode using CBOR encoding.
func (c *CBORCodec) Encode(w io.Writer, v any) error {
	err := c.enc.NewEncoder(w).Encode(v)
	if err != nil {
		return fmt.Errorf("cbor encode: %w", err)
	}

	return nil
}

// Decode implements Codec.Decode using CBOR decoding.
func (c *CBORCodec) Decode(r io.Reader, v any) error {
	err := c.dec.NewDecoder(r).Decode(v)
	if err != nil {
		return fmt.Errorf("cbor decode: %w", err)
	}

	return nil
}

// Extension implements Codec.Extension for CBOR files.
func (c *CBORCodec) Extension() string {
	return cborExtension
}
