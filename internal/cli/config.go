package cli

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
	"gopkg.in/yaml.v3"

	"github.com/mverte/equipcore/internal/migrate"
)

//go:embed config.cue
var configSchema string

// Config is the application configuration, loaded from a YAML file and
// validated against the embedded CUE schema before anything touches the
// database.
type Config struct {
	DatabasePath string `yaml:"database_path"`
	BackupDir    string `yaml:"backup_dir"`
	JournalPath  string `yaml:"journal_path"`
	MaxBackups   int    `yaml:"max_backups"`
	DocumentsDir string `yaml:"documents_dir"`
}

// LoadConfig reads, validates, and decodes the config file at path.
// Omitted optional fields get defaults derived from database_path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := validateConfig(path, data); err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// validateConfig unifies the YAML document with the #Config schema.
func validateConfig(path string, data []byte) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(configSchema)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	schema = schema.LookupPath(cue.ParsePath("#Config"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("lookup config schema: %w", err)
	}

	file, err := cueyaml.Extract(path, data)
	if err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}
	value := ctx.BuildFile(file)
	if err := value.Err(); err != nil {
		return fmt.Errorf("build config value: %w", err)
	}

	unified := schema.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// applyDefaults fills omitted optional fields. Backups and the journal
// live beside the database unless configured elsewhere.
func (c *Config) applyDefaults() {
	dbDir := filepath.Dir(c.DatabasePath)
	if c.BackupDir == "" {
		c.BackupDir = filepath.Join(dbDir, "backups")
	}
	if c.JournalPath == "" {
		c.JournalPath = filepath.Join(dbDir, "migrations.log")
	}
	if c.MaxBackups == 0 {
		c.MaxBackups = migrate.DefaultMaxBackups
	}
}
