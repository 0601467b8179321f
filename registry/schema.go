package registry

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// validateSchema confirms schemaJSON compiles as a JSON Schema document. An
// empty string (no schema declared) is always valid.
func validateSchema(resourceName, schemaJSON string) error {
	if schemaJSON == "" {
		return nil
	}
	var doc any
	if err := json.Unmarshal([]byte(schemaJSON), &doc); err != nil {
		return fmt.Errorf("unmarshal schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(resourceName, doc); err != nil {
		return fmt.Errorf("add schema resource: %w", err)
	}
	if _, err := c.Compile(resourceName); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	return nil
}
