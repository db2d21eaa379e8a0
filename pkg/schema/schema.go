// Package schema validates producer input against the embedded MetaReport
// JSON schema before it reaches the archive.
package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/Sumatoshi-tech/covarchive/pkg/coverage"
	"github.com/Sumatoshi-tech/covarchive/pkg/persist"
)

// ErrInvalidReport is returned when input does not conform to the schema.
var ErrInvalidReport = errors.New("invalid coverage report")

//go:generate go run ../../tools/schemagen -o meta-report.schema.json

// MetaReportSchema is the JSON schema of an archived MetaReport, generated
// from the coverage model types.
//
//go:embed meta-report.schema.json
var MetaReportSchema []byte

// Violation is one schema violation.
type Violation struct {
	Field       string
	Description string
}

func (v Violation) String() string {
	return v.Field + ": " + v.Description
}

// ValidationError lists every violation found in one document.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.String())
	}

	return fmt.Sprintf("%s: %s", ErrInvalidReport, strings.Join(parts, "; "))
}

// Is makes errors.Is(err, ErrInvalidReport) hold.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidReport
}

var compiled = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(MetaReportSchema))
})

// ValidateMeta checks data against the MetaReport schema. Malformed JSON and
// schema violations both wrap ErrInvalidReport; violations are reported as
// *ValidationError.
func ValidateMeta(data []byte) error {
	s, err := compiled()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	var doc any

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	decodeErr := dec.Decode(&doc)
	if decodeErr != nil {
		return fmt.Errorf("%w: %w", ErrInvalidReport, decodeErr)
	}

	result, err := s.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidReport, err)
	}

	if result.Valid() {
		return nil
	}

	verr := &ValidationError{}
	for _, re := range result.Errors() {
		verr.Violations = append(verr.Violations, Violation{Field: re.Field(), Description: re.Description()})
	}

	return verr
}

// DecodeMeta validates data and decodes it into a MetaReport. Fields the
// model does not know are ignored.
func DecodeMeta(data []byte) (coverage.MetaReport, error) {
	return decodeMeta(data, persist.NewJSONCodec())
}

// DecodeMetaStrict is DecodeMeta that also rejects fields the model does
// not know, such as a misspelled counter.
func DecodeMetaStrict(data []byte) (coverage.MetaReport, error) {
	return decodeMeta(data, &persist.JSONCodec{Strict: true})
}

func decodeMeta(data []byte, jsonCodec *persist.JSONCodec) (coverage.MetaReport, error) {
	var meta coverage.MetaReport

	validateErr := ValidateMeta(data)
	if validateErr != nil {
		return meta, validateErr
	}

	err := persist.Unmarshal(jsonCodec, data, &meta)
	if err != nil {
		return coverage.MetaReport{}, fmt.Errorf("%w: %w", ErrInvalidReport, err)
	}

	return meta, nil
}
