package profile

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profiles.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFile_Valid(t *testing.T) {
	path := writeTemp(t, `[
		{"name": "internal_audit", "stage1": true, "stage2": true, "entity_types": ["NAME", "ADDRESS"]},
		{"name": "minimal", "stage1": true}
	]`)

	profiles, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	want := []Profile{
		{Name: "internal_audit", Stage1: true, Stage2: true, EntityTypes: []string{"NAME", "ADDRESS"}},
		{Name: "minimal", Stage1: true},
	}
	if !reflect.DeepEqual(profiles, want) {
		t.Errorf("profiles = %+v", profiles)
	}
}

func TestLoadFile_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", `{{{`},
		{"not an array", `{"name": "x"}`},
		{"missing name", `[{"stage1": true}]`},
		{"empty name", `[{"name": ""}]`},
		{"unknown field", `[{"name": "x", "stages": 2}]`},
		{"bad entity types", `[{"name": "x", "entity_types": [1]}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadFile(writeTemp(t, tt.content)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadFile_MissingFile(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error")
	}
}
