package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/lherron/orgsync/internal/domain"
)

// Endpoint describes one side of the migration.
type Endpoint struct {
	URL       string `yaml:"url"`        // e.g. https://dev.azure.com/contoso
	Project   string `yaml:"project"`    // project name
	PAT       string `yaml:"pat"`        // personal access token
	ProcessID string `yaml:"process_id"` // process type id, needed for state mapping
}

// Organization returns the organization name encoded in the endpoint URL.
// Both https://dev.azure.com/<org> and https://<org>.visualstudio.com are understood.
func (e Endpoint) Organization() string {
	u, err := url.Parse(strings.TrimSpace(e.URL))
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.ToLower(u.Host)
	if org, ok := strings.CutSuffix(host, ".visualstudio.com"); ok {
		return org
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) > 0 && segments[0] != "" {
		return segments[0]
	}
	return ""
}

// Config represents the application configuration
type Config struct {
	Source Endpoint `yaml:"source"`
	Target Endpoint `yaml:"target"`

	APIVersion    string `yaml:"api_version"`
	TrackingField string `yaml:"tracking_field"`
	HTTPTimeout   int    `yaml:"http_timeout_seconds"`

	JournalPath              string `yaml:"journal_path"`
	StagingDir               string `yaml:"staging_dir"`
	AttachmentsMaxMB         int    `yaml:"attachments_max_mb"`
	MigrateInlineAttachments bool   `yaml:"migrate_inline_attachments"`

	MaxParentDepth int               `yaml:"max_parent_depth"`
	WIQLFilter     string            `yaml:"wiql_filter"`
	TypeMap        map[string]string `yaml:"type_map"`
	CopyFields     []string          `yaml:"copy_fields"`
	RemapPaths     bool              `yaml:"remap_paths"`

	LogLevel string `yaml:"log_level"`
	Output   string `yaml:"output"`
}

// Load loads configuration from multiple sources with precedence:
// 1. Environment variables
// 2. ./.env.local (dotenv) - walks up parent directories to find it
// 3. configPath, or ~/.config/orgsync/config.yaml when empty (YAML)
func Load(configPath string) (*Config, error) {
	cfg := &Config{
		APIVersion:               "7.0",
		TrackingField:            domain.DefaultTrackingField,
		HTTPTimeout:              60,
		AttachmentsMaxMB:         60,
		MigrateInlineAttachments: true,
		MaxParentDepth:           32,
		RemapPaths:               true,
		LogLevel:                 "info",
		Output:                   "table",
	}

	// Load .env.local if it exists (walking up parent directories)
	if envPath := findEnvLocal(); envPath != "" {
		_ = godotenv.Load(envPath)
	}

	if err := loadYAMLConfig(cfg, configPath); err != nil {
		// The default location is optional; an explicit path is not
		if configPath != "" || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	applyEndpointEnv(&cfg.Source, "ORGSYNC_SOURCE")
	applyEndpointEnv(&cfg.Target, "ORGSYNC_TARGET")

	if v := os.Getenv("ORGSYNC_API_VERSION"); v != "" {
		cfg.APIVersion = v
	}
	if v := os.Getenv("ORGSYNC_TRACKING_FIELD"); v != "" {
		cfg.TrackingField = v
	}
	if v := os.Getenv("ORGSYNC_JOURNAL_PATH"); v != "" {
		cfg.JournalPath = v
	}
	if v := os.Getenv("ORGSYNC_STAGING_DIR"); v != "" {
		cfg.StagingDir = v
	}
	if v := os.Getenv("ORGSYNC_WIQL_FILTER"); v != "" {
		cfg.WIQLFilter = v
	}
	if v := os.Getenv("ORGSYNC_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("ORGSYNC_OUTPUT"); v != "" {
		cfg.Output = v
	}

	var err error
	if cfg.AttachmentsMaxMB, err = envInt("ORGSYNC_ATTACHMENTS_MAX_MB", cfg.AttachmentsMaxMB); err != nil {
		return nil, err
	}
	if cfg.MaxParentDepth, err = envInt("ORGSYNC_MAX_PARENT_DEPTH", cfg.MaxParentDepth); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = envInt("ORGSYNC_HTTP_TIMEOUT_SECONDS", cfg.HTTPTimeout); err != nil {
		return nil, err
	}
	if cfg.MigrateInlineAttachments, err = envBool("ORGSYNC_INLINE_ATTACHMENTS", cfg.MigrateInlineAttachments); err != nil {
		return nil, err
	}
	if cfg.RemapPaths, err = envBool("ORGSYNC_REMAP_PATHS", cfg.RemapPaths); err != nil {
		return nil, err
	}

	// Set defaults if not configured
	if cfg.JournalPath == "" {
		// Check for project-local journal first
		if _, err := os.Stat(".orgsync"); err == nil {
			cfg.JournalPath = filepath.Join(".orgsync", "journal.db")
		} else {
			dataDir, err := userDataDir()
			if err != nil {
				return nil, err
			}
			cfg.JournalPath = filepath.Join(dataDir, "journal.db")
		}
	}

	if cfg.StagingDir == "" {
		cfg.StagingDir = filepath.Join(os.TempDir(), "orgsync-staging")
	}

	return cfg, nil
}

// Validate reports settings that must be present before talking to either side.
func (c *Config) Validate() error {
	var problems []string
	for _, side := range []struct {
		name string
		ep   Endpoint
	}{{"source", c.Source}, {"target", c.Target}} {
		if side.ep.URL == "" {
			problems = append(problems, side.name+".url is required")
		} else if side.ep.Organization() == "" {
			problems = append(problems, fmt.Sprintf("%s.url %q does not name an organization", side.name, side.ep.URL))
		}
		if side.ep.Project == "" {
			problems = append(problems, side.name+".project is required")
		}
		if side.ep.PAT == "" {
			problems = append(problems, side.name+".pat is required")
		}
	}
	if c.TrackingField == "" {
		problems = append(problems, "tracking_field is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// HasProcesses reports whether both process ids are configured.
func (c *Config) HasProcesses() bool {
	return c.Source.ProcessID != "" && c.Target.ProcessID != ""
}

// TargetType returns the target work item type for a source type.
func (c *Config) TargetType(sourceType string) string {
	if t, ok := c.TypeMap[sourceType]; ok && t != "" {
		return t
	}
	return sourceType
}

func applyEndpointEnv(ep *Endpoint, prefix string) {
	if v := os.Getenv(prefix + "_URL"); v != "" {
		ep.URL = v
	}
	if v := os.Getenv(prefix + "_PROJECT"); v != "" {
		ep.Project = v
	}
	if v := getEnvOrFile(prefix+"_PAT", prefix+"_PAT_FILE"); v != "" {
		ep.PAT = v
	}
	if v := os.Getenv(prefix + "_PROCESS_ID"); v != "" {
		ep.ProcessID = v
	}
}

// loadYAMLConfig loads configuration from path, or ~/.config/orgsync/config.yaml
func loadYAMLConfig(cfg *Config, path string) error {
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		path = filepath.Join(homeDir, ".config", "orgsync", "config.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func userDataDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "orgsync"), nil
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

// getEnvOrFile gets an environment variable value, or reads it from a file
// if the _FILE variant is set
func getEnvOrFile(envVar, fileVar string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}

	if filePath := os.Getenv(fileVar); filePath != "" {
		data, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(data))
		}
	}

	return ""
}

// findEnvLocal searches for .env.local starting from cwd and walking up
// parent directories. Stops at the user's home directory.
// Returns the path to .env.local if found, empty string otherwise.
func findEnvLocal() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// If we can't get home dir, just check cwd
		if _, err := os.Stat(".env.local"); err == nil {
			return ".env.local"
		}
		return ""
	}

	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	homeDir = filepath.Clean(homeDir)
	dir := filepath.Clean(cwd)

	for {
		envPath := filepath.Join(dir, ".env.local")
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}

		if dir == homeDir {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}

		dir = parent
	}

	return ""
}
