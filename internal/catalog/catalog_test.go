package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stops.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write catalog: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeCatalog(t, `[
		{"code": "83139", "name": "Opp Blk 141", "latitude": 1.318, "longitude": 103.905},
		{"code": "83059", "name": "Blk 87", "latitude": 1.317, "longitude": 103.903}
	]`)

	stops, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(stops) != 2 {
		t.Fatalf("expected 2 stops, got %d", len(stops))
	}
	if stops[0].Code != "83139" || stops[0].Name != "Opp Blk 141" {
		t.Errorf("unexpected first stop: %+v", stops[0])
	}
}

func TestLoadSkipsEntriesWithoutCode(t *testing.T) {
	path := writeCatalog(t, `[
		{"code": "", "name": "nameless"},
		{"code": "83139", "name": "Opp Blk 141"}
	]`)

	stops, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(stops) != 1 {
		t.Fatalf("expected 1 stop, got %d", len(stops))
	}
	if stops[0].Code != "83139" {
		t.Errorf("wrong stop kept: %+v", stops[0])
	}
}

func TestLoadRejectsEmptyCatalog(t *testing.T) {
	path := writeCatalog(t, `[{"code": "", "name": "nameless"}]`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for catalog with no usable stops")
	}
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	path := writeCatalog(t, `{"not": "an array"`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed catalog")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/does/not/exist.json"); err == nil {
		t.Fatal("expected error for missing catalog file")
	}
}
