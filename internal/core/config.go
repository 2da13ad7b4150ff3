package core

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator"
	"github.com/jo-hoe/sicoem/internal/backend/commandstructure"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// CommandConfig represents a generic command configuration
type CommandConfig struct {
	Name   string         `yaml:"name"`
	Params map[string]any `yaml:",inline"`
}

type Database struct {
	Type             string `yaml:"type" validate:"eq=sqlite"`
	ConnectionString string `yaml:"connectionString" validate:"required"`
}

type DriveConfig struct {
	// URL of the document store endpoint; empty disables remote upload.
	URL            string `yaml:"url"`
	TimeoutSeconds int    `yaml:"timeoutSeconds" validate:"min=1"`
}

type RedisConfig struct {
	Addr string `yaml:"addr"`
	Key  string `yaml:"key"`
}

type QueueConfig struct {
	Backend string      `yaml:"backend" validate:"oneof=sqlite redis"`
	Redis   RedisConfig `yaml:"redis"`
}

type ConnectivityConfig struct {
	ProbeURL             string `yaml:"probeUrl"`
	ProbeIntervalSeconds int    `yaml:"probeIntervalSeconds" validate:"min=1"`
	StartOnline          *bool  `yaml:"startOnline"`
}

type EquipmentConfig struct {
	SheetURL     string `yaml:"sheetUrl"`
	Organization string `yaml:"organization"`
	CacheSeconds int    `yaml:"cacheSeconds" validate:"min=1"`
	RedisAddr    string `yaml:"redisAddr"`
}

type ServiceConfig struct {
	Port              int                `yaml:"port" validate:"min=1,max=65535"`
	Database          Database           `yaml:"database"`
	Commands          []CommandConfig    `yaml:"commands"`
	Timezone          string             `yaml:"timezone"`
	DefaultTechnician string             `yaml:"defaultTechnician"`
	Drive             DriveConfig        `yaml:"drive"`
	Queue             QueueConfig        `yaml:"queue"`
	Connectivity      ConnectivityConfig `yaml:"connectivity"`
	Equipment         EquipmentConfig    `yaml:"equipment"`
	QRSize            int                `yaml:"qrSize" validate:"min=21,max=2048"`
}

// LoadConfig loads configuration from the specified YAML file. A .env file next to it
// is loaded first so SICOEM_* variables can override selected keys.
func LoadConfig(configPath string) (*ServiceConfig, error) {
	// Read the config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file %s: %w", envPath, err)
	}

	// Parse YAML
	var config ServiceConfig
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	config.applyDefaults()
	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *ServiceConfig) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	if c.Database.ConnectionString == "" {
		c.Database.ConnectionString = "sicoem.db"
	}
	if len(c.Commands) == 0 {
		c.Commands = []CommandConfig{{Name: "DocumentEnhanceCommand"}}
	}
	if c.Timezone == "" {
		c.Timezone = "America/Lima"
	}
	if c.DefaultTechnician == "" {
		c.DefaultTechnician = "Técnico"
	}
	if c.Drive.TimeoutSeconds == 0 {
		c.Drive.TimeoutSeconds = 30
	}
	if c.Queue.Backend == "" {
		c.Queue.Backend = "sqlite"
	}
	if c.Connectivity.ProbeIntervalSeconds == 0 {
		c.Connectivity.ProbeIntervalSeconds = 30
	}
	if c.Connectivity.StartOnline == nil {
		online := true
		c.Connectivity.StartOnline = &online
	}
	if c.Equipment.CacheSeconds == 0 {
		c.Equipment.CacheSeconds = 300
	}
	if c.QRSize == 0 {
		c.QRSize = 256
	}
}

func (c *ServiceConfig) applyEnv() error {
	if port := os.Getenv("SICOEM_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid SICOEM_PORT %q: %w", port, err)
		}
		c.Port = p
	}
	if url := os.Getenv("SICOEM_DRIVE_URL"); url != "" {
		c.Drive.URL = url
	}
	if addr := os.Getenv("SICOEM_REDIS_ADDR"); addr != "" {
		c.Queue.Redis.Addr = addr
		c.Equipment.RedisAddr = addr
	}
	if db := os.Getenv("SICOEM_DB"); db != "" {
		c.Database.ConnectionString = db
	}
	return nil
}

// Validate checks field constraints, the capture pipeline and the timezone.
func (c *ServiceConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Queue.Backend == "redis" && c.Queue.Redis.Addr == "" {
		return fmt.Errorf("invalid configuration: queue backend redis requires queue.redis.addr")
	}
	if err := validateCommands(c.Commands); err != nil {
		return fmt.Errorf("invalid command configuration: %w", err)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// Location returns the zone used to format capture dates.
func (c *ServiceConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		slog.Warn("Config: falling back to UTC", "timezone", c.Timezone, "error", err)
		return time.UTC
	}
	return loc
}

// CommandConfigs converts the pipeline section for the command invoker.
func (c *ServiceConfig) CommandConfigs() []commandstructure.CommandConfig {
	configs := make([]commandstructure.CommandConfig, 0, len(c.Commands))
	for _, cmd := range c.Commands {
		configs = append(configs, commandstructure.CommandConfig{Name: cmd.Name, Params: cmd.Params})
	}
	return configs
}

// validateCommands ensures all command configurations have required fields
func validateCommands(commands []CommandConfig) error {
	seenNames := make(map[string]bool)

	for i, cmd := range commands {
		// Validate name is not empty
		if cmd.Name == "" {
			return fmt.Errorf("command at index %d has empty name", i)
		}

		// Validate name is unique
		if seenNames[cmd.Name] {
			return fmt.Errorf("duplicate command name: %s", cmd.Name)
		}
		seenNames[cmd.Name] = true

		if !commandstructure.DefaultRegistry.IsRegistered(cmd.Name) {
			return fmt.Errorf("unknown command: %s (available: %s)", cmd.Name,
				strings.Join(commandstructure.DefaultRegistry.GetRegisteredNames(), ", "))
		}
	}

	return nil
}
