package config

import (
	_ "embed"
	"fmt"
	"io"
	"os"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON []byte

// Schema returns the embedded JSON schema for configuration files.
func Schema() []byte {
	return schemaJSON
}

// SchemaIssue is one schema violation in a configuration file.
type SchemaIssue struct {
	Field       string
	Description string
}

// ValidateFile checks a YAML configuration file against the embedded schema.
// A nil issue list with a nil error means the file conforms.
func ValidateFile(path string) ([]SchemaIssue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	return ValidateYAML(data)
}

// ValidateYAML checks YAML configuration bytes against the embedded schema.
func ValidateYAML(data []byte) ([]SchemaIssue, error) {
	var doc any

	err := yaml.Unmarshal(data, &doc)
	if err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	if doc == nil {
		doc = map[string]any{}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schemaJSON), gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	if result.Valid() {
		return nil, nil
	}

	issues := make([]SchemaIssue, 0, len(result.Errors()))
	for _, resultErr := range result.Errors() {
		issues = append(issues, SchemaIssue{
			Field:       resultErr.Field(),
			Description: resultErr.Description(),
		})
	}

	return issues, nil
}

// WriteYAML renders the configuration as YAML.
func WriteYAML(w io.Writer, config *Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	err := enc.Encode(yamlView(config))
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	err = enc.Close()
	if err != nil {
		return fmt.Errorf("flush config: %w", err)
	}

	return nil
}

// yamlView copies config with durations rendered as strings so the output
// round-trips through LoadConfig and the schema.
func yamlView(config *Config) map[string]any {
	origins := config.Server.CORSOrigins
	if origins == nil {
		origins = []string{}
	}

	return map[string]any{
		"stack": config.Stack,
		"server": map[string]any{
			"enabled":       config.Server.Enabled,
			"host":          config.Server.Host,
			"port":          config.Server.Port,
			"read_timeout":  config.Server.ReadTimeout.String(),
			"write_timeout": config.Server.WriteTimeout.String(),
			"idle_timeout":  config.Server.IdleTimeout.String(),
			"cors_origins":  origins,
		},
		"fuse":      config.FUSE,
		"logging":   config.Logging,
		"telemetry": config.Telemetry,
	}
}
