package config

import (
	// imports embed to load the config schema
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v2"
)

//go:embed sync.schema.json
var syncSchema string

// ValidateSchema validates the config file against the JSON Schema.
// If validation fails for any reason, fail softly to avoid disturbing execution as this is not critical.
func ValidateSchema(cfgFile string) {
	issues := schemaIssues(cfgFile)
	if len(issues) == 0 {
		return
	}
	renderSchemaValidationIssues(cfgFile, issues)
}

func schemaIssues(cfgFile string) []*jsonschema.ValidationError {
	yamlText, err := os.ReadFile(cfgFile)
	if err != nil {
		return nil
	}

	var m interface{}
	if err := yaml.Unmarshal(yamlText, &m); err != nil {
		return nil
	}
	m, err = toStringKeys(m)
	if err != nil {
		return nil
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("sync.schema.json", strings.NewReader(syncSchema)); err != nil {
		return nil
	}
	schema, err := compiler.Compile("sync.schema.json")
	if err != nil {
		return nil
	}
	err = schema.Validate(m)
	if err == nil {
		return nil
	}
	return findRootCauses(err.(*jsonschema.ValidationError))
}

func renderSchemaValidationIssues(cfgFile string, errors []*jsonschema.ValidationError) {
	errStr := "error"
	if len(errors) > 1 {
		errStr = "errors"
	}
	fmt.Println()
	color.Red("There is %d validation %s found in %s:\n", len(errors), errStr, cfgFile)
	for _, d := range errors {
		if d.InstanceLocation != "" {
			color.Red("- %s in %s\n", d.Message, d.InstanceLocation)
		} else {
			color.Red("- %s\n", d.Message)
		}
	}
	println()
}

func findRootCauses(validationError *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if validationError == nil {
		return []*jsonschema.ValidationError{}
	}

	if len(validationError.Causes) == 0 {
		return []*jsonschema.ValidationError{validationError}
	}

	var causes []*jsonschema.ValidationError
	for _, cause := range validationError.Causes {
		causes = append(causes, findRootCauses(cause)...)
	}
	return causes
}

func toStringKeys(val interface{}) (interface{}, error) {
	var err error
	switch val := val.(type) {
	case map[interface{}]interface{}:
		m := make(map[string]interface{})
		for k, v := range val {
			k, ok := k.(string)
			if !ok {
				return nil, errors.New("found non-string key")
			}
			m[k], err = toStringKeys(v)
			if err != nil {
				return nil, err
			}
		}
		return m, nil
	case []interface{}:
		var l = make([]interface{}, len(val))
		for i, v := range val {
			l[i], err = toStringKeys(v)
			if err != nil {
				return nil, err
			}
		}
		return l, nil
	default:
		return val, nil
	}
}
