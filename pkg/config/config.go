// Package config provides configuration loading and validation for covarchive.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"
	"github.com/tidwall/jsonc"

	"github.com/Sumatoshi-tech/covarchive/pkg/codec"
	"github.com/Sumatoshi-tech/covarchive/pkg/compare"
	"github.com/Sumatoshi-tech/covarchive/pkg/filter"
)

// Sentinel validation errors.
var (
	ErrInvalidCodec       = errors.New("invalid archive codec")
	ErrInvalidSize        = errors.New("invalid max decompressed size")
	ErrInvalidTimezone    = errors.New("invalid archive timezone")
	ErrInvalidRanking     = errors.New("invalid compare ranking")
	ErrInvalidLogLevel    = errors.New("invalid log level")
	ErrInvalidLogFormat   = errors.New("invalid log format")
	ErrInvalidSampleRatio = errors.New("trace sample ratio must be within [0, 1]")
	ErrEmptyArchiveDir    = errors.New("archive directory must be set")
)

// EnvPrefix prefixes every environment override, e.g. COVARCHIVE_ARCHIVE_DIR.
const EnvPrefix = "COVARCHIVE"

// Config holds all configuration for covarchive.
type Config struct {
	Archive       ArchiveConfig       `mapstructure:"archive"`
	Filter        filter.Rules        `mapstructure:"filter"`
	Compare       CompareConfig       `mapstructure:"compare"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// ArchiveConfig holds archive store configuration.
type ArchiveConfig struct {
	Dir   string `mapstructure:"dir"`
	Codec string `mapstructure:"codec"`
	// Level is the compression level; 0 selects the codec default.
	Level               int    `mapstructure:"level"`
	MaxDecompressedSize string `mapstructure:"max_decompressed_size"`
	// Timezone defines calendar days. Empty or "Local" uses the system zone.
	Timezone string `mapstructure:"timezone"`
}

// CompareConfig holds comparison configuration.
type CompareConfig struct {
	Ranking string `mapstructure:"ranking"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ObservabilityConfig holds tracing and metrics export configuration.
type ObservabilityConfig struct {
	Environment     string  `mapstructure:"environment"`
	OTLPEndpoint    string  `mapstructure:"otlp_endpoint"`
	OTLPInsecure    bool    `mapstructure:"otlp_insecure"`
	OTLPHeaders     string  `mapstructure:"otlp_headers"`
	SampleRatio     float64 `mapstructure:"sample_ratio"`
	MetricsTextfile string  `mapstructure:"metrics_textfile"`
}

// LoadConfig loads configuration from file and environment variables.
// With an empty configPath the usual locations are searched and a missing
// file is not an error. Files ending in .jsonc may carry comments and
// trailing commas.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	viperCfg.SetEnvPrefix(EnvPrefix)
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	readErr := readConfig(viperCfg, configPath)
	if readErr != nil {
		return nil, readErr
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	validateErr := validateConfig(&config)
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &config, nil
}

func readConfig(viperCfg *viper.Viper, configPath string) error {
	if strings.EqualFold(filepath.Ext(configPath), ".jsonc") {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}

		viperCfg.SetConfigType("json")

		readErr := viperCfg.ReadConfig(bytes.NewReader(jsonc.ToJSON(data)))
		if readErr != nil {
			return fmt.Errorf("failed to parse config file: %w", readErr)
		}

		return nil
	}

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(".covarchive")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("./config")
		viperCfg.AddConfigPath("/etc/covarchive")
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	return nil
}

// setDefaults sets default configuration values.
func setDefaults(viperCfg *viper.Viper) {
	// Archive defaults.
	viperCfg.SetDefault("archive.dir", DefaultArchiveDir)
	viperCfg.SetDefault("archive.codec", DefaultArchiveCodec)
	viperCfg.SetDefault("archive.level", 0)
	viperCfg.SetDefault("archive.max_decompressed_size", DefaultMaxDecompressedSize)
	viperCfg.SetDefault("archive.timezone", "")

	// Filter defaults: no rules. Registered so env overrides are seen.
	for _, key := range []string{
		"include_targets", "include_files", "include_functions",
		"exclude_targets", "exclude_files", "exclude_functions", "concentrate",
	} {
		viperCfg.SetDefault("filter."+key, []string{})
	}

	// Compare defaults.
	viperCfg.SetDefault("compare.ranking", DefaultCompareRanking)

	// Logging defaults.
	viperCfg.SetDefault("logging.level", DefaultLogLevel)
	viperCfg.SetDefault("logging.format", DefaultLogFormat)

	// Observability defaults.
	viperCfg.SetDefault("observability.environment", "")
	viperCfg.SetDefault("observability.otlp_endpoint", "")
	viperCfg.SetDefault("observability.otlp_insecure", false)
	viperCfg.SetDefault("observability.otlp_headers", "")
	viperCfg.SetDefault("observability.sample_ratio", DefaultSampleRatio)
	viperCfg.SetDefault("observability.metrics_textfile", "")
}

// validateConfig validates the configuration.
func validateConfig(config *Config) error {
	if strings.TrimSpace(config.Archive.Dir) == "" {
		return ErrEmptyArchiveDir
	}

	_, codecErr := config.Archive.CodecKind()
	if codecErr != nil {
		return codecErr
	}

	_, sizeErr := config.Archive.MaxDecompressedBytes()
	if sizeErr != nil {
		return sizeErr
	}

	_, tzErr := config.Archive.Location()
	if tzErr != nil {
		return tzErr
	}

	_, rankErr := config.Compare.RankingMode()
	if rankErr != nil {
		return rankErr
	}

	_, levelErr := config.Logging.SlogLevel()
	if levelErr != nil {
		return levelErr
	}

	switch strings.ToLower(config.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, config.Logging.Format)
	}

	if config.Observability.SampleRatio < 0 || config.Observability.SampleRatio > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidSampleRatio, config.Observability.SampleRatio)
	}

	return nil
}

// CodecKind parses the configured codec. "none" is rejected: historical
// entries must be compressed.
func (a ArchiveConfig) CodecKind() (codec.Kind, error) {
	kind, err := codec.ParseKind(a.Codec)
	if err != nil || !kind.Compressed() {
		return codec.Zlib, fmt.Errorf("%w: %q", ErrInvalidCodec, a.Codec)
	}

	return kind, nil
}

// MaxDecompressedBytes parses the decompression cap, e.g. "512MiB".
// An empty value yields 0, meaning the codec default.
func (a ArchiveConfig) MaxDecompressedBytes() (int64, error) {
	if strings.TrimSpace(a.MaxDecompressedSize) == "" {
		return 0, nil
	}

	size, err := humanize.ParseBytes(a.MaxDecompressedSize)
	if err != nil || size == 0 || size > maxDecompressedCeiling {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, a.MaxDecompressedSize)
	}

	return int64(size), nil
}

// Location resolves the configured time zone.
func (a ArchiveConfig) Location() (*time.Location, error) {
	switch a.Timezone {
	case "", "Local", "local":
		return time.Local, nil
	}

	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTimezone, err)
	}

	return loc, nil
}

// RankingMode parses the configured ranking.
func (c CompareConfig) RankingMode() (compare.Ranking, error) {
	r, err := compare.ParseRanking(c.Ranking)
	if err != nil {
		return compare.RankLines, fmt.Errorf("%w: %w", ErrInvalidRanking, err)
	}

	return r, nil
}

// SlogLevel parses the configured level name.
func (l LoggingConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level

	err := level.UnmarshalText([]byte(l.Level))
	if err != nil {
		return slog.LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLogLevel, l.Level)
	}

	return level, nil
}

// JSON reports whether logs are written as JSON.
func (l LoggingConfig) JSON() bool {
	return strings.EqualFold(l.Format, "json")
}
