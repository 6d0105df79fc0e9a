package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/vlm-ocr/internal/common"
)

// SchemaValidator checks cleaned JSON output against a JSON Schema.
type SchemaValidator struct {
	schema *jsonschema.Schema
	path   string
	logger *slog.Logger
}

// LoadSchema compiles the JSON Schema stored at path.
func LoadSchema(path string, logger *slog.Logger) (*SchemaValidator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	s, err := CompileSchema(b)
	if err != nil {
		return nil, err
	}
	s.path = path
	s.logger = logger
	logger.Info("output schema loaded", "path", path)
	return s, nil
}

// CompileSchema compiles a JSON Schema document held in memory.
func CompileSchema(doc []byte) (*SchemaValidator, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(doc)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &SchemaValidator{schema: schema, logger: slog.Default()}, nil
}

// Validate returns a common.ErrOutputSchema when data is not JSON or does not match.
func (s *SchemaValidator) Validate(data string) error {
	var v any
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return common.NewOutputSchemaError(fmt.Errorf("unmarshal output: %w", err))
	}
	if err := s.schema.Validate(v); err != nil {
		s.logger.Warn("output failed schema validation", "schema", s.path, "error", err)
		return common.NewOutputSchemaError(err)
	}
	return nil
}
