// CUE schema validation code
package config

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"
)

//go:embed schema.cue
var schemaSource string

// Schema returns the embedded CUE schema source.
func Schema() string { return schemaSource }

// ValidateWithCue validates YAML config bytes against the embedded #Node
// definition. Unknown keys are rejected because definitions are closed.
func ValidateWithCue(name string, yamlBytes []byte) error {
	ctx := cuecontext.New()

	schemaVal := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schemaVal.Err(); err != nil {
		return fmt.Errorf("cannot compile CUE schema: %w", err)
	}

	file, err := yaml.Extract(name, yamlBytes)
	if err != nil {
		return fmt.Errorf("cannot parse YAML config: %w", err)
	}
	configVal := ctx.BuildFile(file)
	if err := configVal.Err(); err != nil {
		return fmt.Errorf("cannot build YAML config: %w", err)
	}

	final := schemaVal.LookupPath(cue.ParsePath("#Node")).Unify(configVal)
	if err := final.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}
