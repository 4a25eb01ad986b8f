package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Tiliavir/billy/internal/model"
	"github.com/Tiliavir/billy/internal/timecalc"
)

var (
	// ErrMissingConfig is returned when config.json does not exist yet.
	ErrMissingConfig = errors.New("config file missing")
	// ErrMissingCredentials is returned when credentials.json does not exist
	// or lacks a required value.
	ErrMissingCredentials = errors.New("credentials missing")
	// ErrProjectNotFound is returned for an alias that is not configured.
	ErrProjectNotFound = errors.New("project alias not found in config")
)

const (
	// DirEnv overrides the configuration directory.
	DirEnv = "BILLY_CONFIG_DIR"
	// TokenEnv overrides the time-tracking API token from credentials.json.
	TokenEnv = "TOGGL_API_TOKEN"

	configFile       = "config.json"
	credentialsFile  = "credentials.json"
	clientSecretFile = "google_client_secret.json"

	// DefaultDateColumn holds the ISO date of every spreadsheet row.
	DefaultDateColumn = "A"
	// DefaultInvoicedColumn marks rows that were already billed.
	DefaultInvoicedColumn = "I"
)

// Config is the root configuration for billy, stored in ~/.config/billy/config.json.
// The file supports single-line // comments for documentation purposes.
type Config struct {
	Projects []ProjectConfig `json:"projects"`
	// Timezone is the IANA timezone used to assign entries to calendar days. Empty = UTC.
	Timezone  string      `json:"timezone"`
	CachePath string      `json:"cache_path"`
	LogPath   string      `json:"log_path"`
	Sheet     SheetConfig `json:"sheet"`

	// Credentials are loaded from credentials.json, never from config.json.
	Credentials Credentials `json:"-"`
	// Dir is the directory the configuration was loaded from.
	Dir string `json:"-"`

	location *time.Location
}

// ProjectConfig maps a time-tracking project id to its spreadsheet tab alias.
type ProjectConfig struct {
	ID    int64  `json:"id"`
	Alias string `json:"alias"`
	// Start is the earliest billable date (YYYY-MM-DD).
	Start string `json:"start"`
}

// SheetConfig describes the layout of every destination tab.
type SheetConfig struct {
	DateColumn     string `json:"date_column"`
	InvoicedColumn string `json:"invoiced_column"`
}

// Credentials holds the secrets kept apart from the main config.
type Credentials struct {
	TogglAPIToken string `json:"toggl_api_token"`
	GSheetURL     string `json:"gsheet_url"`
}

// configTemplate is the annotated config written on first run.
// Lines whose trimmed content starts with // are stripped before JSON parsing,
// allowing human-readable documentation inside the file.
const configTemplate = `// billy configuration
//
// Projects map a Toggl project id to the name of a tab in the billing
// spreadsheet. "start" is the earliest billable date of the project.
{
  "projects": [
    // { "id": 1234, "alias": "acme", "start": "2021-01-01" }
  ],

  // IANA timezone used to assign entries to calendar days, e.g. "Europe/Berlin".
  // Leave empty to use UTC.
  "timezone": "",

  // Local entry cache and log file. Empty = inside this directory.
  "cache_path": "",
  "log_path": "",

  // Spreadsheet layout: the column holding the row date and the column whose
  // non-empty cells mark rows as invoiced.
  "sheet": {
    "date_column": "A",
    "invoiced_column": "I"
  }
}
`

// Dir returns the configuration directory: $BILLY_CONFIG_DIR or ~/.config/billy.
func Dir() (string, error) {
	if dir := os.Getenv(DirEnv); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "billy"), nil
}

// stripLineComments removes lines whose leading non-whitespace content starts
// with //. Only full-line comments are handled; inline comments are not stripped.
func stripLineComments(data []byte) []byte {
	var out []byte
	for _, line := range bytes.Split(data, []byte("\n")) {
		if bytes.HasPrefix(bytes.TrimLeft(line, " \t"), []byte("//")) {
			continue
		}
		out = append(out, line...)
		out = append(out, '\n')
	}
	return out
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(stripLineComments(data), v); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// Load reads config.json and credentials.json from dir. A missing config.json
// is replaced by the annotated template and reported as ErrMissingConfig.
func Load(dir string) (*Config, error) {
	cfgPath := filepath.Join(dir, configFile)
	cfg := &Config{Dir: dir}
	err := readJSON(cfgPath, cfg)
	if errors.Is(err, os.ErrNotExist) {
		if writeErr := writeDefault(cfgPath); writeErr != nil {
			return nil, fmt.Errorf("%w: please create %s: %v", ErrMissingConfig, cfgPath, writeErr)
		}
		return nil, fmt.Errorf("%w: a template was written to %s, add your projects", ErrMissingConfig, cfgPath)
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	credPath := filepath.Join(dir, credentialsFile)
	err = readJSON(credPath, &cfg.Credentials)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: please create credentials file at %s", ErrMissingCredentials, credPath)
	}
	if err != nil {
		return nil, fmt.Errorf("reading credentials file: %w", err)
	}
	if tok := os.Getenv(TokenEnv); tok != "" {
		cfg.Credentials.TogglAPIToken = tok
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills zero-value fields and validates what cannot be defaulted.
func (c *Config) applyDefaults() error {
	if c.CachePath == "" {
		c.CachePath = filepath.Join(c.Dir, "cache.db")
	}
	if c.LogPath == "" {
		c.LogPath = filepath.Join(c.Dir, "billy.log")
	}
	if c.Sheet.DateColumn == "" {
		c.Sheet.DateColumn = DefaultDateColumn
	}
	if c.Sheet.InvoicedColumn == "" {
		c.Sheet.InvoicedColumn = DefaultInvoicedColumn
	}

	c.location = time.UTC
	if c.Timezone != "" {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
		}
		c.location = loc
	}

	seen := map[string]bool{}
	for _, p := range c.Projects {
		if p.Alias == "" {
			return fmt.Errorf("project %d has no alias", p.ID)
		}
		if seen[p.Alias] {
			return fmt.Errorf("project alias %q configured twice", p.Alias)
		}
		seen[p.Alias] = true
		if _, err := timecalc.ParseDate(p.Start); err != nil {
			return fmt.Errorf("project %q: %w", p.Alias, err)
		}
	}
	return nil
}

// Location returns the timezone used for calendar dates.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

func (c *Config) toModel(p ProjectConfig) model.Project {
	// Validated in applyDefaults.
	d, _ := timecalc.ParseDate(p.Start)
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, c.Location())
	return model.Project{ID: p.ID, Alias: p.Alias, StartDate: start}
}

// Project resolves a configured alias.
func (c *Config) Project(alias string) (model.Project, error) {
	for _, p := range c.Projects {
		if p.Alias == alias {
			return c.toModel(p), nil
		}
	}
	return model.Project{}, fmt.Errorf("%w: %q", ErrProjectNotFound, alias)
}

// ProjectByID maps a source project id to its configured project.
func (c *Config) ProjectByID(id int64) (model.Project, bool) {
	for _, p := range c.Projects {
		if p.ID == id {
			return c.toModel(p), true
		}
	}
	return model.Project{}, false
}

// ClientSecretPath is the Google OAuth client secret file.
func (c *Config) ClientSecretPath() string {
	return filepath.Join(c.Dir, clientSecretFile)
}

// TokenPath is where the spreadsheet OAuth token is persisted.
func (c *Config) TokenPath() string {
	return filepath.Join(c.Dir, "auth", "gsheet_token.json")
}

// SpreadsheetID extracts the spreadsheet id from the configured URL.
// A bare id is returned unchanged.
func (c *Config) SpreadsheetID() (string, error) {
	raw := strings.TrimSpace(c.Credentials.GSheetURL)
	if raw == "" {
		return "", fmt.Errorf("%w: gsheet_url is empty", ErrMissingCredentials)
	}
	const marker = "/spreadsheets/d/"
	i := strings.Index(raw, marker)
	if i < 0 {
		if strings.Contains(raw, "/") {
			return "", fmt.Errorf("cannot find spreadsheet id in %q", raw)
		}
		return raw, nil
	}
	id := raw[i+len(marker):]
	if j := strings.IndexAny(id, "/?#"); j >= 0 {
		id = id[:j]
	}
	if id == "" {
		return "", fmt.Errorf("cannot find spreadsheet id in %q", raw)
	}
	return id, nil
}

// writeDefault creates the config directory and writes the annotated default
// config template.
func writeDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(configTemplate), 0o600); err != nil {
		return fmt.Errorf("writing default config: %w", err)
	}
	return nil
}
