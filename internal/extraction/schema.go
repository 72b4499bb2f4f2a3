package extraction

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	//go:embed schema/load_batch.schema.json
	loadSchemaJSON string
	//go:embed schema/vehicle_batch.schema.json
	vehicleSchemaJSON string
)

// responseSchema is one embedded batch schema, compiled on first use.
type responseSchema struct {
	name     string
	resource string
	source   string

	once     sync.Once
	compiled *jsonschema.Schema
	err      error
}

var (
	loadSchema    = &responseSchema{name: "freight_info", resource: "load_batch.schema.json", source: loadSchemaJSON}
	vehicleSchema = &responseSchema{name: "driver_info", resource: "vehicle_batch.schema.json", source: vehicleSchemaJSON}
)

func (s *responseSchema) Raw() json.RawMessage {
	return json.RawMessage(s.source)
}

func (s *responseSchema) load() (*jsonschema.Schema, error) {
	s.once.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020

		if err := compiler.AddResource(s.resource, strings.NewReader(s.source)); err != nil {
			s.err = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiled, err := compiler.Compile(s.resource)
		if err != nil {
			s.err = fmt.Errorf("compile schema: %w", err)
			return
		}
		s.compiled = compiled
	})
	if s.err != nil {
		return nil, s.err
	}
	if s.compiled == nil {
		return nil, fmt.Errorf("schema %s not initialized", s.name)
	}
	return s.compiled, nil
}

// Decode validates raw against the schema and unmarshals it into out.
func (s *responseSchema) Decode(raw []byte, out any) error {
	value, err := decodeStrictJSON(raw)
	if err != nil {
		return fmt.Errorf("decode %s JSON: %w", s.name, err)
	}
	compiled, err := s.load()
	if err != nil {
		return fmt.Errorf("load schema: %w", err)
	}
	if err := compiled.Validate(value); err != nil {
		return fmt.Errorf("%s schema validation failed: %w", s.name, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("unmarshal %s: %w", s.name, err)
	}
	return nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("payload contains trailing content")
	}
	return value, nil
}
