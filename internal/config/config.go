// Package config loads service settings from flags, the environment
// (prefix RECEIPTS_) and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/dvloznov/receipt-ledger/internal/currency"
)

// EnvPrefix is prepended to every flag name to form its environment variable,
// so --gemini-key is also read from RECEIPTS_GEMINI_KEY.
const EnvPrefix = "RECEIPTS"

// Storage and index backends.
const (
	StorageGCS  = "gcs"
	StorageBolt = "bolt"

	IndexBigQuery = "bigquery"
	IndexMemory   = "memory"
)

// Config holds all runtime settings.
type Config struct {
	Port      int
	LogLevel  string
	LogFormat string

	ProjectID string
	Location  string

	StorageBackend string
	Bucket         string
	Prefix         string
	BoltPath       string

	IndexBackend string
	Dataset      string

	OCREndpoint    string
	OCRKey         string
	OCRModel       string
	OCRAPIVersion  string
	OCRMaxAttempts int
	OCRPollDelay   time.Duration

	GeminiKey           string
	TextModel           string
	EmbeddingModel      string
	EmbeddingDimensions int

	Language  string
	RatesFile string

	NotionToken      string
	NotionDatabaseID string
}

// Loader binds Config fields to a flag set. Commands register their own
// flags on FlagSet() before calling Parse.
type Loader struct {
	fs    *ff.FlagSet
	cfg   *Config
	apply []func() error
}

// NewLoader registers every setting on a new flag set named name.
func NewLoader(name string) *Loader {
	l := &Loader{fs: ff.NewFlagSet(name), cfg: &Config{}}
	c := l.cfg

	l.int(&c.Port, "port", 8080, "HTTP server port")
	l.str(&c.LogLevel, "log-level", "info", "Log level: debug, info, warn or error")
	l.str(&c.LogFormat, "log-format", "console", "Log format: console or json")

	l.str(&c.ProjectID, "project", "", "Google Cloud project id")
	l.str(&c.Location, "location", "us-central1", "Vertex AI location, used when no Gemini key is set")

	l.str(&c.StorageBackend, "storage", StorageBolt, "Backup storage backend: gcs or bolt")
	l.str(&c.Bucket, "bucket", "", "GCS bucket for backup artifacts")
	l.str(&c.Prefix, "prefix", "receipts/", "Object name prefix inside the bucket")
	l.str(&c.BoltPath, "bolt-path", "receipts.db", "bbolt file for backup artifacts")

	l.str(&c.IndexBackend, "index", IndexMemory, "Search index backend: bigquery or memory")
	l.str(&c.Dataset, "dataset", "receipts", "BigQuery dataset for the search index")

	l.str(&c.OCREndpoint, "ocr-endpoint", "", "Document intelligence endpoint URL")
	l.str(&c.OCRKey, "ocr-key", "", "Document intelligence API key")
	l.str(&c.OCRModel, "ocr-model", "prebuilt-receipt", "Document intelligence model id")
	l.str(&c.OCRAPIVersion, "ocr-api-version", "2023-07-31", "Document intelligence API version")
	l.int(&c.OCRMaxAttempts, "ocr-max-attempts", 10, "Maximum OCR status polls")
	l.duration(&c.OCRPollDelay, "ocr-poll-delay", "1s", "Delay between OCR status polls")

	l.str(&c.GeminiKey, "gemini-key", "", "Gemini API key")
	l.str(&c.TextModel, "text-model", "gemini-2.5-flash", "Text generation model")
	l.str(&c.EmbeddingModel, "embedding-model", "text-embedding-004", "Embedding model")
	l.int(&c.EmbeddingDimensions, "embedding-dimensions", 0, "Embedding size; 0 keeps the model default")

	l.str(&c.Language, "language", "Korean", "Language item names are translated to")
	l.str(&c.RatesFile, "rates-file", "", "Optional YAML file overriding exchange rates")

	l.str(&c.NotionToken, "notion-token", "", "Notion integration token")
	l.str(&c.NotionDatabaseID, "notion-database", "", "Notion database id for the receipt mirror")

	return l
}

func (l *Loader) str(dst *string, long, def, usage string) {
	v := l.fs.StringLong(long, def, usage)
	l.apply = append(l.apply, func() error { *dst = strings.TrimSpace(*v); return nil })
}

func (l *Loader) int(dst *int, long string, def int, usage string) {
	v := l.fs.IntLong(long, def, usage)
	l.apply = append(l.apply, func() error { *dst = *v; return nil })
}

func (l *Loader) duration(dst *time.Duration, long, def, usage string) {
	v := l.fs.StringLong(long, def, usage)
	l.apply = append(l.apply, func() error {
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("--%s: %w", long, err)
		}
		*dst = d
		return nil
	})
}

// FlagSet returns the underlying flag set.
func (l *Loader) FlagSet() *ff.FlagSet {
	return l.fs
}

// Usage renders flag help.
func (l *Loader) Usage() string {
	return fmt.Sprint(ffhelp.Flags(l.fs))
}

// Parse loads the first .env file found, then parses args and the
// environment. Variables already set in the environment win over .env.
func (l *Loader) Parse(args []string) (*Config, error) {
	LoadDotEnv(".env", "../.env")

	if err := ff.Parse(l.fs, args, ff.WithEnvVarPrefix(EnvPrefix)); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	for _, f := range l.apply {
		if err := f(); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}
	if err := l.cfg.Validate(); err != nil {
		return nil, err
	}
	return l.cfg, nil
}

// LoadDotEnv loads the first readable file among paths and reports
// whether one was found. The file is optional.
func LoadDotEnv(paths ...string) bool {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err == nil {
			return true
		}
	}
	return false
}

// Validate checks backend choices and the settings each backend needs.
func (c *Config) Validate() error {
	var errs []error
	switch c.StorageBackend {
	case StorageBolt:
		if c.BoltPath == "" {
			errs = append(errs, errors.New("bolt storage needs --bolt-path"))
		}
	case StorageGCS:
		if c.Bucket == "" {
			errs = append(errs, errors.New("gcs storage needs --bucket"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.StorageBackend))
	}

	switch c.IndexBackend {
	case IndexMemory:
	case IndexBigQuery:
		if c.ProjectID == "" || c.Dataset == "" {
			errs = append(errs, errors.New("bigquery index needs --project and --dataset"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown index backend %q", c.IndexBackend))
	}

	if c.OCRMaxAttempts < 1 {
		errs = append(errs, errors.New("--ocr-max-attempts must be at least 1"))
	}
	if c.OCRPollDelay < 0 {
		errs = append(errs, errors.New("--ocr-poll-delay must not be negative"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Rates returns the exchange-rate table, merged with RatesFile when set.
func (c *Config) Rates() (*currency.Table, error) {
	if c.RatesFile == "" {
		return currency.Default(), nil
	}
	t, err := currency.LoadYAML(c.RatesFile)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return t, nil
}
