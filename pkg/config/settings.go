package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Settings is the persisted application settings document: a two-level
// nested mapping merged over defaults. Clerks change these at runtime, so
// every Set is written through to disk synchronously.
type Settings struct {
	mu     sync.RWMutex
	v      *viper.Viper
	path   string
	logger *zap.Logger
}

// NewSettings opens the settings document at path, creating it from defaults
// when missing or empty. A malformed document is deleted and rewritten from
// defaults with a warning.
func NewSettings(path string, logger *zap.Logger) (*Settings, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	settingsDefaults(v)

	s := &Settings{v: v, path: path, logger: logger}

	info, statErr := os.Stat(path)
	if statErr != nil || info.Size() == 0 {
		if err := s.persist(); err != nil {
			return nil, fmt.Errorf("initialise settings: %w", err)
		}
		return s, nil
	}

	if err := v.ReadInConfig(); err != nil {
		logger.Sugar().Warnw("settings document malformed, rewriting defaults", "path", path, "error", err)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("remove corrupted settings: %w", err)
		}
		if err := s.persist(); err != nil {
			return nil, fmt.Errorf("rewrite settings: %w", err)
		}
	}
	return s, nil
}

func settingsDefaults(v *viper.Viper) {
	v.SetDefault("app.check_cupos", true)
	v.SetDefault("app.require_seguro_escolar", false)
	v.SetDefault("app.auto_backup", true)
	v.SetDefault("app.backup_interval_days", 7)
	v.SetDefault("app.debug", false)
	v.SetDefault("app.auto_refresh", true)

	v.SetDefault("google_sheets.enabled", false)
	v.SetDefault("google_sheets.spreadsheet_id", "")
	v.SetDefault("google_sheets.sheet_name", "")
	v.SetDefault("google_sheets.credentials_path", "credenciales.json")
	v.SetDefault("google_sheets.auto_sync", true)
	v.SetDefault("google_sheets.has_header_row", true)
	v.SetDefault("google_sheets.sync_mode", "incremental")
	v.SetDefault("google_sheets.sync_window_hours", 24)

	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.user", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "")

	v.SetDefault("pdf.output_dir", "./constancias")
	v.SetDefault("pdf.institution_name", "Escuela de Música")

	v.SetDefault("ui.theme", "claro")
	v.SetDefault("ui.font_size", 10)
}

// Get returns the value at a dotted path, or fallback when the path is not
// set anywhere (document, override or default).
func (s *Settings) Get(path string, fallback interface{}) interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.v.IsSet(path) {
		return fallback
	}
	return s.v.Get(path)
}

// GetBool reads a boolean setting.
func (s *Settings) GetBool(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v.GetBool(path)
}

// GetString reads a string setting.
func (s *Settings) GetString(path string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v.GetString(path)
}

// GetInt reads an integer setting.
func (s *Settings) GetInt(path string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v.GetInt(path)
}

// Set writes a value at a dotted path and persists the document.
func (s *Settings) Set(path string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v.Set(path, value)
	return s.persistLocked()
}

// Section returns a whole top-level section as a map. Unknown sections
// return an empty map.
func (s *Settings) Section(name string) map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.v.GetStringMap(name)
	if out == nil {
		out = map[string]interface{}{}
	}
	return out
}

// SetSection merges the given keys into a section and persists.
func (s *Settings) SetSection(name string, values map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, value := range values {
		s.v.Set(name+"."+key, value)
	}
	return s.persistLocked()
}

func (s *Settings) persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

func (s *Settings) persistLocked() error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create settings directory: %w", err)
		}
	}
	if err := s.v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}
