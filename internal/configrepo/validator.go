package configrepo

import (
	"encoding/json"
	"strings"

	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"gridctl/internal/coreerr"
)

//go:embed schema/module-v1.json
var moduleSchemaJSON string

// validator wraps the compiled module.json schema.
type validator struct {
	schema *jsonschema.Schema
}

func newValidator() (*validator, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("module-v1.json", strings.NewReader(moduleSchemaJSON)); err != nil {
		return nil, coreerr.Wrap(coreerr.Config, "configrepo.newValidator", "add schema resource", err)
	}
	schema, err := compiler.Compile("module-v1.json")
	if err != nil {
		return nil, coreerr.Wrap(coreerr.Config, "configrepo.newValidator", "compile schema", err)
	}
	return &validator{schema: schema}, nil
}

func (v *validator) Validate(data []byte) error {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return coreerr.Wrap(coreerr.Config, "configrepo.Validate", "invalid JSON", err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return coreerr.Wrap(coreerr.Config, "configrepo.Validate", "schema validation failed", err)
	}
	return nil
}
