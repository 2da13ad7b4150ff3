package backend

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator"
	"gopkg.in/yaml.v3"
)

type Database struct {
	Type             string `yaml:"type" validate:"eq=sqlite"`
	ConnectionString string `yaml:"connectionString" validate:"required"`
}

// DocStoreConfig configures the standalone document store server.
type DocStoreConfig struct {
	Port     int      `yaml:"port" validate:"min=1,max=65535"`
	Database Database `yaml:"database"`
	// PublicURL is the base used in download links. Defaults to http://localhost:<port>.
	PublicURL string `yaml:"publicUrl"`
}

// LoadDocStoreConfig loads configuration from the specified YAML file
func LoadDocStoreConfig(configPath string) (*DocStoreConfig, error) {
	// Read the config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	// Parse YAML
	var config DocStoreConfig
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	if config.Port == 0 {
		config.Port = 8081
	}
	if config.Database.Type == "" {
		config.Database.Type = "sqlite"
	}
	if config.Database.ConnectionString == "" {
		config.Database.ConnectionString = "docstore.db"
	}
	if config.PublicURL == "" {
		config.PublicURL = fmt.Sprintf("http://localhost:%d", config.Port)
	}
	config.PublicURL = strings.TrimRight(config.PublicURL, "/")

	if err := validator.New().Struct(&config); err != nil {
		return nil, fmt.Errorf("invalid document store configuration: %w", err)
	}
	return &config, nil
}
