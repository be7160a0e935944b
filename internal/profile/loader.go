package profile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// profileSchema validates operator-supplied profile files before they
// reach the registry. Malformed files are a startup error, not a warning.
const profileSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["name"],
    "additionalProperties": false,
    "properties": {
      "name": {"type": "string", "minLength": 1},
      "stage1": {"type": "boolean"},
      "stage2": {"type": "boolean"},
      "entity_types": {
        "type": "array",
        "items": {"type": "string", "minLength": 1}
      }
    }
  }
}`

type profileFileEntry struct {
	Name        string   `json:"name"`
	Stage1      bool     `json:"stage1"`
	Stage2      bool     `json:"stage2"`
	EntityTypes []string `json:"entity_types"`
}

// LoadFile reads operator-defined profiles from a JSON file, validating
// the document against the profile schema first.
func LoadFile(path string) ([]Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile config: %w", err)
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse profile config: %w", err)
	}

	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(profileSchema))
	if err != nil {
		return nil, fmt.Errorf("parse profile schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("profiles.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("compile profile schema: %w", err)
	}
	schema, err := compiler.Compile("profiles.json")
	if err != nil {
		return nil, fmt.Errorf("compile profile schema: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("validate profile config: %w", err)
	}

	var entries []profileFileEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode profile config: %w", err)
	}

	profiles := make([]Profile, 0, len(entries))
	for _, e := range entries {
		profiles = append(profiles, Profile{
			Name:        e.Name,
			Stage1:      e.Stage1,
			Stage2:      e.Stage2,
			EntityTypes: e.EntityTypes,
		})
	}
	return profiles, nil
}
