package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config is the process-level configuration read from the environment.
// Application settings that clerks can change at runtime live in the
// Settings store instead.
type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Data    DataConfig
	Log     LogConfig
	CORS    CORSConfig
	Exports ExportsConfig
	Sync    SyncWorkerConfig
}

// DataConfig locates the on-disk documents the core works with.
type DataConfig struct {
	Dir          string
	RecordsFile  string
	BackupFile   string
	BackupStamp  string
	CatalogFile  string
	SettingsFile string
}

type LogConfig struct {
	Level  string
	Format string
}

type CORSConfig struct {
	AllowedOrigins []string
}

// ExportsConfig controls generated certificate and listing files.
type ExportsConfig struct {
	StorageDir    string
	RetentionDays int
}

// SyncWorkerConfig tunes the background sync queue and the sync guard.
type SyncWorkerConfig struct {
	Workers          int
	BufferSize       int
	MinInterval      time.Duration
	QuotaMinInterval time.Duration
}

// Load reads configuration from the environment (and a .env file when
// present), merged over defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Data = DataConfig{
		Dir:          v.GetString("DATA_DIR"),
		RecordsFile:  v.GetString("RECORDS_FILE"),
		BackupFile:   v.GetString("BACKUP_FILE"),
		BackupStamp:  v.GetString("BACKUP_STAMP_FILE"),
		CatalogFile:  v.GetString("CATALOG_FILE"),
		SettingsFile: v.GetString("SETTINGS_FILE"),
	}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Exports = ExportsConfig{
		StorageDir:    v.GetString("EXPORTS_DIR"),
		RetentionDays: v.GetInt("EXPORTS_RETENTION_DAYS"),
	}

	cfg.Sync = SyncWorkerConfig{
		Workers:          v.GetInt("SYNC_WORKERS"),
		BufferSize:       v.GetInt("SYNC_BUFFER_SIZE"),
		MinInterval:      parseDuration(v.GetString("SYNC_MIN_INTERVAL"), time.Minute),
		QuotaMinInterval: parseDuration(v.GetString("SYNC_QUOTA_MIN_INTERVAL"), 5*time.Minute),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DATA_DIR", "./data")
	v.SetDefault("RECORDS_FILE", "inscripciones.csv")
	v.SetDefault("BACKUP_FILE", "inscripciones_respaldo.csv")
	v.SetDefault("BACKUP_STAMP_FILE", "ultima_sincronizacion.txt")
	v.SetDefault("CATALOG_FILE", "catalogo_cursos.json")
	v.SetDefault("SETTINGS_FILE", "config.yaml")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("ALLOWED_ORIGINS", "")

	v.SetDefault("EXPORTS_DIR", "./exports")
	v.SetDefault("EXPORTS_RETENTION_DAYS", 30)

	v.SetDefault("SYNC_WORKERS", 1)
	v.SetDefault("SYNC_BUFFER_SIZE", 16)
	v.SetDefault("SYNC_MIN_INTERVAL", "60s")
	v.SetDefault("SYNC_QUOTA_MIN_INTERVAL", "300s")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
