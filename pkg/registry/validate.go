package registry

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// ValidateConfig checks an adapter configuration against a JSON schema. A
// nil or empty schema accepts any configuration.
func ValidateConfig(schema map[string]any, config map[string]any) error {
	if len(schema) == 0 {
		return nil
	}

	if config == nil {
		config = map[string]any{}
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	configLoader := gojsonschema.NewGoLoader(config)

	result, err := gojsonschema.Validate(schemaLoader, configLoader)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidAdapterConfig, err)
	}

	if !result.Valid() {
		issues := ""
		for _, issue := range result.Errors() {
			if issues != "" {
				issues += "; "
			}

			issues += issue.String()
		}

		return fmt.Errorf("%w: %s", ErrInvalidAdapterConfig, issues)
	}

	return nil
}
