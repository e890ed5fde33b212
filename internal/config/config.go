package config

import (
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	OpenSearch OpenSearchConfig `mapstructure:"opensearch"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	Ingest     IngestConfig     `mapstructure:"ingest"`
	Sources    SourcesConfig    `mapstructure:"sources"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type ServerConfig struct {
	Port        int      `mapstructure:"port"`
	Mode        string   `mapstructure:"mode"`
	CORSOrigins []string `mapstructure:"cors_origins"` // empty allows any origin
}

type DatabaseConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Driver  string `mapstructure:"driver"` // sqlite, postgres
	Path    string `mapstructure:"path"`
	DSN     string `mapstructure:"dsn"`
}

type OpenSearchConfig struct {
	Host       string        `mapstructure:"host"`
	Port       int           `mapstructure:"port"`
	Scheme     string        `mapstructure:"scheme"`
	User       string        `mapstructure:"user"`
	Password   string        `mapstructure:"password"`
	Index      string        `mapstructure:"index"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryWait  time.Duration `mapstructure:"retry_wait"`
}

// URL returns the engine base URL, e.g. http://localhost:9200.
func (c OpenSearchConfig) URL() string {
	scheme := c.Scheme
	if scheme == "" {
		scheme = "http"
	}
	return scheme + "://" + c.Host + ":" + strconv.Itoa(c.Port)
}

// ArchiveConfig configures the S3-compatible raw payload archive.
type ArchiveConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Type      string `mapstructure:"type"` // s3, r2, minio
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	PublicURL string `mapstructure:"public_url"`
}

type IngestConfig struct {
	Workers          int           `mapstructure:"workers"`
	DailyTimezone    string        `mapstructure:"daily_timezone"`
	IndexMaxAttempts int           `mapstructure:"index_max_attempts"`
	IndexBackoff     time.Duration `mapstructure:"index_backoff"`
	BackfillStart    string        `mapstructure:"backfill_start"`
	BackfillEnd      string        `mapstructure:"backfill_end"`
	DailyDate        string        `mapstructure:"daily_date"`
}

// Location resolves DailyTimezone; empty means UTC.
func (c IngestConfig) Location() (*time.Location, error) {
	if c.DailyTimezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.DailyTimezone)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid ingest.daily_timezone %q", c.DailyTimezone)
	}
	return loc, nil
}

type SourcesConfig struct {
	Bundestag BundestagConfig `mapstructure:"bundestag"`
	Europarl  EuroparlConfig  `mapstructure:"europarl"`
	Staging   StagingConfig   `mapstructure:"staging"`
}

// StagingConfig points at directories of pre-fetched records, one
// <path>/<tag>/manifest.jsonl per replayable source.
type StagingConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type BundestagConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	BaseURL      string        `mapstructure:"base_url"`
	APIKey       string        `mapstructure:"api_key"`
	Timeout      time.Duration `mapstructure:"timeout"`
	RetryCount   int           `mapstructure:"retry_count"`
	RetryWait    time.Duration `mapstructure:"retry_wait"`
	RetryMaxWait time.Duration `mapstructure:"retry_max_wait"`
}

type EuroparlConfig struct {
	Enabled                bool          `mapstructure:"enabled"`
	BaseURL                string        `mapstructure:"base_url"`
	Term                   int           `mapstructure:"term"`
	DocumentTypes          []string      `mapstructure:"document_types"`
	Languages              []string      `mapstructure:"languages"`
	StartIndex             int           `mapstructure:"start_index"`
	MaxPerSequence         int           `mapstructure:"max_per_sequence"`
	MaxConsecutiveFailures int           `mapstructure:"max_consecutive_failures"`
	BatchSize              int           `mapstructure:"batch_size"`
	RequestDelay           time.Duration `mapstructure:"request_delay"`
	RequestJitter          time.Duration `mapstructure:"request_jitter"`
	Timeout                time.Duration `mapstructure:"timeout"`
	RetryCount             int           `mapstructure:"retry_count"`
	RetryWait              time.Duration `mapstructure:"retry_wait"`
}

// Load reads configuration from configPath (or ./configs/config.yaml), the
// environment, and an optional .env file.
func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "failed to read config file")
		}
	}

	bindEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		secondsToDurationHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")

	v.SetDefault("database.enabled", true)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/runs.db")

	v.SetDefault("opensearch.host", "localhost")
	v.SetDefault("opensearch.port", 9200)
	v.SetDefault("opensearch.scheme", "http")
	v.SetDefault("opensearch.index", "protocols-v1")
	v.SetDefault("opensearch.timeout", 30*time.Second)
	v.SetDefault("opensearch.max_retries", 3)
	v.SetDefault("opensearch.retry_wait", 500*time.Millisecond)

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.bucket", "protocols-raw")
	v.SetDefault("archive.use_ssl", true)

	v.SetDefault("ingest.workers", 4)
	v.SetDefault("ingest.daily_timezone", "UTC")
	v.SetDefault("ingest.index_max_attempts", 5)
	v.SetDefault("ingest.index_backoff", 500*time.Millisecond)

	v.SetDefault("sources.bundestag.enabled", true)
	v.SetDefault("sources.bundestag.base_url", "https://search.dip.bundestag.de/api/v1")
	v.SetDefault("sources.bundestag.timeout", 30*time.Second)
	v.SetDefault("sources.bundestag.retry_count", 3)
	v.SetDefault("sources.bundestag.retry_wait", time.Second)
	v.SetDefault("sources.bundestag.retry_max_wait", 10*time.Second)

	v.SetDefault("sources.europarl.enabled", true)
	v.SetDefault("sources.europarl.base_url", "https://www.europarl.europa.eu")
	v.SetDefault("sources.europarl.term", 10)
	v.SetDefault("sources.europarl.document_types", []string{"TA", "A"})
	v.SetDefault("sources.europarl.languages", []string{"EN"})
	v.SetDefault("sources.europarl.start_index", 1)
	v.SetDefault("sources.europarl.max_consecutive_failures", 5)
	v.SetDefault("sources.europarl.batch_size", 20)
	v.SetDefault("sources.europarl.request_delay", 500*time.Millisecond)
	v.SetDefault("sources.europarl.request_jitter", 250*time.Millisecond)
	v.SetDefault("sources.europarl.timeout", 20*time.Second)
	v.SetDefault("sources.europarl.retry_count", 2)
	v.SetDefault("sources.europarl.retry_wait", time.Second)

	v.SetDefault("sources.staging.enabled", false)
	v.SetDefault("sources.staging.path", "./data/staging")
}

// bindEnv binds the deployment's historical variable names.
func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("log.level", "LOG_LEVEL")
	_ = v.BindEnv("log.format", "LOG_FORMAT")
	_ = v.BindEnv("opensearch.host", "OPENSEARCH_HOST")
	_ = v.BindEnv("opensearch.port", "OPENSEARCH_PORT")
	_ = v.BindEnv("opensearch.user", "OPENSEARCH_USER")
	_ = v.BindEnv("opensearch.password", "OPENSEARCH_PASSWORD")
	_ = v.BindEnv("opensearch.index", "OPENSEARCH_INDEX")
	_ = v.BindEnv("database.dsn", "DATABASE_URL")
	_ = v.BindEnv("archive.access_key", "ARCHIVE_ACCESS_KEY")
	_ = v.BindEnv("archive.secret_key", "ARCHIVE_SECRET_KEY")
	_ = v.BindEnv("ingest.backfill_start", "BACKFILL_START")
	_ = v.BindEnv("ingest.backfill_end", "BACKFILL_END")
	_ = v.BindEnv("ingest.daily_date", "DAILY_DATE")
	_ = v.BindEnv("sources.bundestag.base_url", "DIP_BASE_URL")
	_ = v.BindEnv("sources.bundestag.api_key", "DIP_API_KEY")
	_ = v.BindEnv("sources.europarl.term", "EU_TERM")
	_ = v.BindEnv("sources.europarl.request_delay", "EU_REQUEST_DELAY_BASE")
	_ = v.BindEnv("sources.europarl.request_jitter", "EU_REQUEST_DELAY_JITTER")
	_ = v.BindEnv("sources.europarl.timeout", "EU_HTTP_TIMEOUT")
}

var durationType = reflect.TypeOf(time.Duration(0))

// secondsToDurationHook decodes bare numbers ("2.0", 120) into durations as
// seconds. Strings with a unit ("500ms") fall through to the next hook.
func secondsToDurationHook() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data interface{}) (interface{}, error) {
		if to != durationType || from == durationType {
			return data, nil
		}
		var secs float64
		switch from.Kind() {
		case reflect.String:
			f, err := strconv.ParseFloat(strings.TrimSpace(data.(string)), 64)
			if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
				return data, nil
			}
			secs = f
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			secs = float64(reflect.ValueOf(data).Int())
		case reflect.Float32, reflect.Float64:
			secs = reflect.ValueOf(data).Float()
		default:
			return data, nil
		}
		if secs < 0 {
			return nil, errors.Newf("negative duration %v", data)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
}

// Validate checks values viper cannot type-check.
func (c *Config) Validate() error {
	if _, err := c.Ingest.Location(); err != nil {
		return err
	}
	if c.Ingest.Workers < 1 {
		return errors.Newf("ingest.workers must be >= 1, got %d", c.Ingest.Workers)
	}
	if c.Ingest.IndexMaxAttempts < 1 {
		return errors.Newf("ingest.index_max_attempts must be >= 1, got %d", c.Ingest.IndexMaxAttempts)
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return errors.Newf("unsupported database.driver %q", c.Database.Driver)
	}
	if c.OpenSearch.Index == "" {
		return errors.New("opensearch.index must not be empty")
	}
	if c.Sources.Europarl.Enabled && c.Sources.Europarl.Term <= 0 {
		return errors.Newf("sources.europarl.term must be positive, got %d", c.Sources.Europarl.Term)
	}
	return nil
}
