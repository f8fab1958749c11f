package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestNewSource(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		location string
		want     string
	}{
		{"memory", "memory"},
		{"./features.yaml", "file:./features.yaml"},
		{"file:///etc/decider/features.json", "file:/etc/decider/features.json"},
	}
	for _, tt := range tests {
		t.Run(tt.location, func(t *testing.T) {
			src, err := NewSource(ctx, tt.location)
			if err != nil {
				t.Fatalf("NewSource(%q) failed: %v", tt.location, err)
			}
			defer src.Close()
			if src.String() != tt.want {
				t.Errorf("String() = %q, want %q", src.String(), tt.want)
			}
		})
	}
}

func TestNewSource_Unsupported(t *testing.T) {
	ctx := context.Background()
	if _, err := NewSource(ctx, ""); err == nil {
		t.Error("Expected error for empty location")
	}
	_, err := NewSource(ctx, "s3://bucket/features.json")
	if err == nil {
		t.Fatal("Expected error for unsupported scheme")
	}
	expectedMsg := "unsupported config source: s3://bucket/features.json"
	if err.Error() != expectedMsg {
		t.Errorf("Expected error message '%s', got '%s'", expectedMsg, err.Error())
	}
}

func TestFileSource_Formats(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "features.json")
	yamlPath := filepath.Join(dir, "features.yml")

	if err := os.WriteFile(jsonPath, []byte(`{"features":[{"id":1,"name":"a","version":1,"fractional_availability":0.5,"variants":[{"name":"on","weight":1}]}]}`), 0o600); err != nil {
		t.Fatal(err)
	}
	yamlDoc := `
hash_version: 2
features:
  - id: 2
    name: b
    version: 3
    value: {color: blue, sizes: [1, 2]}
mutex_groups:
  - id: g1
    members:
      - {feature: b, fraction: 0.5}
`
	if err := os.WriteFile(yamlPath, []byte(yamlDoc), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	jdoc, err := NewFileSource(jsonPath).Load(ctx)
	if err != nil {
		t.Fatalf("json Load: %v", err)
	}
	if f := jdoc.Features[0]; f.Name != "a" || *f.FractionalAvailability != 0.5 || f.Variants[0].Weight != 1 {
		t.Errorf("unexpected json feature: %+v", f)
	}

	ydoc, err := NewFileSource(yamlPath).Load(ctx)
	if err != nil {
		t.Fatalf("yaml Load: %v", err)
	}
	if ydoc.HashVersion != 2 || ydoc.Features[0].Version != 3 || len(ydoc.MutexGroups) != 1 {
		t.Errorf("unexpected yaml document: %+v", ydoc)
	}
	if _, ok := ydoc.Features[0].Value.(map[string]any); !ok {
		t.Errorf("expected map value, got %T", ydoc.Features[0].Value)
	}
}

func TestFileSource_Errors(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	_, err := NewFileSource(filepath.Join(dir, "missing.json")).Load(ctx)
	if kind, ok := KindOf(err); !ok || kind != IOError {
		t.Errorf("missing file: expected IOError, got %v", err)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"features":[{"name":"a","version":1,"fractional_availibility":0.5}]}`), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err = NewFileSource(bad).Load(ctx)
	if kind, ok := KindOf(err); !ok || kind != MalformedEntry {
		t.Errorf("unknown key: expected MalformedEntry, got %v", err)
	}

	empty := filepath.Join(dir, "empty.yaml")
	if err := os.WriteFile(empty, []byte("  \n"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err = NewFileSource(empty).Load(ctx)
	if kind, ok := KindOf(err); !ok || kind != MalformedEntry {
		t.Errorf("empty file: expected MalformedEntry, got %v", err)
	}
}

func TestParseDecisionMakers(t *testing.T) {
	got, err := ParseDecisionMakers("")
	if err != nil || len(got) != 7 || got[0] != StageDarkMode || got[6] != StageValue {
		t.Fatalf("default list = %v, %v", got, err)
	}

	got, err = ParseDecisionMakers("targeting, value")
	if err != nil || len(got) != 2 || got[1] != StageValue {
		t.Fatalf("custom list = %v, %v", got, err)
	}

	if _, err := ParseDecisionMakers("targeting bogus"); err == nil {
		t.Error("expected error for unknown stage")
	}
	if _, err := ParseDecisionMakers("value value"); err == nil {
		t.Error("expected error for repeated stage")
	}
}
