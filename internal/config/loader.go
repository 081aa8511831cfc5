package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rpattn/invoiceflow/internal/db"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. INVOICEFLOW_DATABASE_HOST.
const EnvPrefix = "INVOICEFLOW"

// Config is the full runtime configuration shared by the server and the CLI.
type Config struct {
	Database db.Config     `mapstructure:"database"`
	Server   ServerConfig  `mapstructure:"server"`
	Upload   UploadConfig  `mapstructure:"upload"`
	Storage  StorageConfig `mapstructure:"storage"`
	LLM      LLMConfig     `mapstructure:"llm"`
	Redis    RedisConfig   `mapstructure:"redis"`
	Log      LogConfig     `mapstructure:"log"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	APIPrefix       string        `mapstructure:"api_prefix"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// UploadConfig bounds accepted files.
type UploadConfig struct {
	MaxFileSize  int64    `mapstructure:"max_file_size" validate:"gt=0"`
	AllowedTypes []string `mapstructure:"allowed_types" validate:"min=1"`
	SampleRows   int      `mapstructure:"sample_rows" validate:"gte=0"`
}

// StorageConfig selects where uploaded files are kept.
type StorageConfig struct {
	Backend string      `mapstructure:"backend" validate:"oneof=local gcs s3"`
	Local   LocalConfig `mapstructure:"local"`
	GCS     GCSConfig   `mapstructure:"gcs"`
	S3      S3Config    `mapstructure:"s3"`
}

// LocalConfig stores files on disk.
type LocalConfig struct {
	Dir string `mapstructure:"dir"`
}

// GCSConfig stores files in a Google Cloud Storage bucket.
type GCSConfig struct {
	Bucket          string `mapstructure:"bucket"`
	CredentialsJSON string `mapstructure:"credentials_json"`
	Prefix          string `mapstructure:"prefix"`
}

// S3Config stores files in an S3 compatible bucket. Endpoint allows Supabase or
// MinIO style providers.
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
	Prefix          string `mapstructure:"prefix"`
}

// LLMConfig configures the Gemini generateContent client.
type LLMConfig struct {
	APIKey          string        `mapstructure:"api_key"`
	Model           string        `mapstructure:"model" validate:"required"`
	BaseURL         string        `mapstructure:"base_url" validate:"required,url"`
	Temperature     float64       `mapstructure:"temperature" validate:"gte=0,lte=2"`
	MaxOutputTokens int           `mapstructure:"max_output_tokens" validate:"gt=0"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// RedisConfig configures the proposal cache. An empty Addr disables caching.
type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	ProposalTTL time.Duration `mapstructure:"proposal_ttl"`
}

// LogConfig configures logrus.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=json text"`
	File   string `mapstructure:"file"`
}

// Load reads config.yaml from configPath (when present), then .env, then
// INVOICEFLOW_* environment variables, on top of built-in defaults.
func Load(configPath string) (Config, error) {
	if err := loadDotEnv(configPath); err != nil {
		return Config{}, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}

	// Comma separated env overrides arrive as a single element.
	cfg.Upload.AllowedTypes = splitList(cfg.Upload.AllowedTypes)
	cfg.Server.AllowedOrigins = splitList(cfg.Server.AllowedOrigins)

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// UsedFile reports which config file Load would read from configPath, or "".
func UsedFile(configPath string) string {
	candidate := filepath.Join(configPath, "config.yaml")
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return ""
}

func loadDotEnv(configPath string) error {
	path := filepath.Join(configPath, ".env")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	dbDefaults := db.DefaultConfig()
	v.SetDefault("database.host", dbDefaults.Host)
	v.SetDefault("database.port", dbDefaults.Port)
	v.SetDefault("database.user", dbDefaults.User)
	v.SetDefault("database.password", dbDefaults.Password)
	v.SetDefault("database.dbname", dbDefaults.DBName)
	v.SetDefault("database.sslmode", dbDefaults.SSLMode)
	v.SetDefault("database.max_conns", dbDefaults.MaxConns)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.api_prefix", "/file-parser/api")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("upload.max_file_size", 10*1024*1024)
	v.SetDefault("upload.allowed_types", []string{"csv", "tsv", "xlsx", "pdf", "docx"})
	v.SetDefault("upload.sample_rows", 20)

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local.dir", "uploads")
	v.SetDefault("storage.gcs.bucket", "")
	v.SetDefault("storage.gcs.credentials_json", "")
	v.SetDefault("storage.gcs.prefix", "")
	v.SetDefault("storage.s3.bucket", "uploaded-files")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.access_key_id", "")
	v.SetDefault("storage.s3.secret_access_key", "")
	v.SetDefault("storage.s3.use_path_style", false)
	v.SetDefault("storage.s3.prefix", "")

	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gemini-2.0-flash-exp")
	v.SetDefault("llm.base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.max_output_tokens", 2000)
	v.SetDefault("llm.timeout", 60*time.Second)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.proposal_ttl", 24*time.Hour)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
}

func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
