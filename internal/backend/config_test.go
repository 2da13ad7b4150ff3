package backend

import (
	"os"
	"path/filepath"
	"testing"
)

func writeDocStoreConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}
	return configPath
}

func TestLoadDocStoreConfig_Success(t *testing.T) {
	configContent := `port: 9000
database:
  type: sqlite
  connectionString: "files.db"
publicUrl: "https://docs.example.org/"`

	config, err := LoadDocStoreConfig(writeDocStoreConfig(t, configContent))
	if err != nil {
		t.Fatalf("LoadDocStoreConfig failed: %v", err)
	}

	if config.Port != 9000 {
		t.Errorf("Expected port to be 9000, got %d", config.Port)
	}
	if config.Database.ConnectionString != "files.db" {
		t.Errorf("Expected connectionString to be 'files.db', got '%s'", config.Database.ConnectionString)
	}
	if config.PublicURL != "https://docs.example.org" {
		t.Errorf("Expected trailing slash to be trimmed, got '%s'", config.PublicURL)
	}
}

func TestLoadDocStoreConfig_Defaults(t *testing.T) {
	config, err := LoadDocStoreConfig(writeDocStoreConfig(t, "{}"))
	if err != nil {
		t.Fatalf("LoadDocStoreConfig failed: %v", err)
	}

	if config.Port != 8081 || config.Database.Type != "sqlite" || config.Database.ConnectionString != "docstore.db" {
		t.Errorf("unexpected defaults: %+v", config)
	}
	if config.PublicURL != "http://localhost:8081" {
		t.Errorf("unexpected public url %q", config.PublicURL)
	}
}

func TestLoadDocStoreConfig_Invalid(t *testing.T) {
	testCases := map[string]string{
		"port out of range":  "port: 70000",
		"unsupported driver": "database:\n  type: postgres\n  connectionString: x",
		"malformed yaml":     "port: [",
	}
	for name, content := range testCases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadDocStoreConfig(writeDocStoreConfig(t, content)); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestLoadDocStoreConfig_FileNotFound(t *testing.T) {
	config, err := LoadDocStoreConfig("/path/that/does/not/exist/config.yaml")
	if err == nil {
		t.Fatal("Expected error for non-existent file, got nil")
	}
	if config != nil {
		t.Error("Expected config to be nil when error occurs")
	}
}
