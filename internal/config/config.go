// Package config loads the service configuration from defaults, an optional
// YAML file and DOCFLOW_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "DOCFLOW"

type StorageConfig struct {
	Backend   string `mapstructure:"backend"` // gcs | minio | s3 | memory
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	PathStyle bool   `mapstructure:"path_style"`
}

type DatabaseConfig struct {
	Backend     string `mapstructure:"backend"` // postgres | sqlite | firestore
	DSN         string `mapstructure:"dsn"`
	Collection  string `mapstructure:"collection"`
	FirestoreDB string `mapstructure:"firestore_db"` // empty selects the default database
	Debug       bool   `mapstructure:"debug"`
}

type QueueConfig struct {
	Backend      string        `mapstructure:"backend"` // redis | workflows
	RedisURL     string        `mapstructure:"redis_url"`
	Key          string        `mapstructure:"key"`
	ConsumerID   string        `mapstructure:"consumer_id"`
	BlockTimeout time.Duration `mapstructure:"block_timeout"`
	Location     string        `mapstructure:"location"`
	Workflow     string        `mapstructure:"workflow"`
}

type ClassifierConfig struct {
	Backend   string   `mapstructure:"backend"` // prototype | vertex | ocr
	ModelPath string   `mapstructure:"model_path"`
	Region    string   `mapstructure:"region"`
	Model     string   `mapstructure:"model"`
	Languages []string `mapstructure:"languages"`
}

type WorkerConfig struct {
	PageConcurrency int `mapstructure:"page_concurrency"`
	MaxWidth        int `mapstructure:"max_width"`
}

type IngestionConfig struct {
	Addr              string `mapstructure:"addr"`
	BaseURL           string `mapstructure:"base_url"`
	MaxFileBytes      int64  `mapstructure:"max_file_bytes"`
	UploadConcurrency int    `mapstructure:"upload_concurrency"`
}

type PreprocessingConfig struct {
	Addr    string `mapstructure:"addr"`
	BaseURL string `mapstructure:"base_url"`
}

type CallbackConfig struct {
	Timeout  time.Duration `mapstructure:"timeout"`
	Attempts int           `mapstructure:"attempts"`
}

// Config is built once at startup and never mutated afterwards.
type Config struct {
	ProjectID     string              `mapstructure:"project_id"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Queue         QueueConfig         `mapstructure:"queue"`
	Classifier    ClassifierConfig    `mapstructure:"classifier"`
	Worker        WorkerConfig        `mapstructure:"worker"`
	Ingestion     IngestionConfig     `mapstructure:"ingestion"`
	Preprocessing PreprocessingConfig `mapstructure:"preprocessing"`
	Callback      CallbackConfig      `mapstructure:"callback"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("project_id", "")

	v.SetDefault("storage.backend", "minio")
	v.SetDefault("storage.bucket", "documents")
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.access_key", "minioadmin")
	v.SetDefault("storage.secret_key", "minioadmin")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.path_style", true)

	v.SetDefault("database.backend", "postgres")
	v.SetDefault("database.dsn", "host=localhost user=postgres password=postgres dbname=docflow port=5432 sslmode=disable")
	v.SetDefault("database.collection", "file_records")
	v.SetDefault("database.firestore_db", "")
	v.SetDefault("database.debug", false)

	v.SetDefault("queue.backend", "redis")
	v.SetDefault("queue.redis_url", "redis://localhost:6379/0")
	v.SetDefault("queue.key", "docflow:batches")
	v.SetDefault("queue.consumer_id", "worker-1")
	v.SetDefault("queue.block_timeout", 5*time.Second)
	v.SetDefault("queue.location", "us-central1")
	v.SetDefault("queue.workflow", "document-restore")

	v.SetDefault("classifier.backend", "prototype")
	v.SetDefault("classifier.model_path", "")
	v.SetDefault("classifier.region", "us-central1")
	v.SetDefault("classifier.model", "gemini-1.5-flash")
	v.SetDefault("classifier.languages", []string{"eng"})

	v.SetDefault("worker.page_concurrency", 2)
	v.SetDefault("worker.max_width", 1800)

	v.SetDefault("ingestion.addr", ":8000")
	v.SetDefault("ingestion.base_url", "http://localhost:8000")
	v.SetDefault("ingestion.max_file_bytes", 10<<20)
	v.SetDefault("ingestion.upload_concurrency", 4)

	v.SetDefault("preprocessing.addr", ":8001")
	v.SetDefault("preprocessing.base_url", "http://localhost:8001")

	v.SetDefault("callback.timeout", 30*time.Second)
	v.SetDefault("callback.attempts", 4)
}

// Load reads configuration. cfgFile is optional; without it a config.yaml in
// the working directory or ./.docflow is used when present.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath(".docflow")
		v.SetConfigType("yaml")
		v.SetConfigName("config")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		slog.Debug("No config file found, using defaults and environment.")
	} else {
		slog.Info("Using config file.", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks backend names and limits.
func (c *Config) Validate() error {
	var errs []error
	check := func(field, value string, allowed ...string) {
		for _, a := range allowed {
			if value == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s: unknown value %q (want one of %s)", field, value, strings.Join(allowed, ", ")))
	}
	check("storage.backend", c.Storage.Backend, "gcs", "minio", "s3", "memory")
	check("database.backend", c.Database.Backend, "postgres", "sqlite", "firestore")
	check("queue.backend", c.Queue.Backend, "redis", "workflows")
	check("classifier.backend", c.Classifier.Backend, "prototype", "vertex", "ocr")

	if c.Storage.Bucket == "" {
		errs = append(errs, errors.New("storage.bucket must be set"))
	}
	if c.Worker.PageConcurrency < 1 {
		errs = append(errs, errors.New("worker.page_concurrency must be at least 1"))
	}
	if c.Ingestion.MaxFileBytes <= 0 {
		errs = append(errs, errors.New("ingestion.max_file_bytes must be positive"))
	}
	if c.Ingestion.UploadConcurrency < 1 {
		errs = append(errs, errors.New("ingestion.upload_concurrency must be at least 1"))
	}
	if c.Callback.Attempts < 1 {
		errs = append(errs, errors.New("callback.attempts must be at least 1"))
	}
	needsProject := c.Storage.Backend == "gcs" || c.Database.Backend == "firestore" ||
		c.Queue.Backend == "workflows" || c.Classifier.Backend == "vertex"
	if needsProject && c.ProjectID == "" {
		errs = append(errs, errors.New("project_id must be set for Google Cloud backends"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
