package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported SQL drivers.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

const (
	defaultConfigPath     = "./config.yaml"
	defaultLogLevel       = "DEBUG"
	defaultLogFile        = "predictions.log"
	defaultLogBackups     = 10
	defaultRequestTimeout = 30 * time.Second
	defaultServiceName    = "predictions"
	defaultMetricsJob     = "predictions"
	defaultSSLMode        = "disable"
)

// FieldMapping copies one field of the API prediction into one table column.
type FieldMapping struct {
	Source      string
	Destination string
}

// SQLConfig holds the destination database settings.
type SQLConfig struct {
	Driver   string
	Server   string
	Port     int
	Database string
	Username string
	Password string
	Table    string
	SSLMode  string
}

// TelemetryConfig enables OTLP tracing when OTLPEndpoint is set.
type TelemetryConfig struct {
	OTLPEndpoint string
	ServiceName  string
}

// MetricsConfig enables a Pushgateway push at the end of a run when PushgatewayURL is set.
type MetricsConfig struct {
	PushgatewayURL string
	Job            string
}

// Config is the resolved run configuration. It is built once and passed by value.
type Config struct {
	APIEndpoint    string
	APIToken       string
	FieldMappings  []FieldMapping
	TimestampField string
	AdjustTime     bool
	SQL            SQLConfig

	LogLevel       string
	LogFile        string
	LogBackups     int
	RequestTimeout time.Duration
	Telemetry      TelemetryConfig
	Metrics        MetricsConfig
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = defaultConfigPath
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// Load reads the YAML document at path and builds a Config from it.
// A relative log_file is resolved against the directory holding the document.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, NewConfigurationError(err, "read config file: %v", err)
	}

	var settings map[string]any
	if errUnmarshal := yaml.Unmarshal(data, &settings); errUnmarshal != nil {
		return Config{}, NewConfigurationError(errUnmarshal, "parse config file: %v", errUnmarshal)
	}
	if settings == nil {
		settings = map[string]any{}
	}

	cfg, err := FromSettings(settings)
	if err != nil {
		return Config{}, err
	}
	if !filepath.IsAbs(cfg.LogFile) {
		cfg.LogFile = filepath.Join(filepath.Dir(path), cfg.LogFile)
	}
	return cfg, nil
}

// FromSettings builds a Config from a decoded settings document.
func FromSettings(settings map[string]any) (Config, error) {
	r := reader{}
	cfg := Config{
		APIEndpoint:    r.requiredString(settings, "api_endpoint"),
		APIToken:       r.requiredString(settings, "api_token"),
		FieldMappings:  r.fieldMappings(settings, "response_to_field"),
		TimestampField: r.requiredString(settings, "database_timestamp_field"),
		AdjustTime:     r.requiredBool(settings, "adjust_UTC_to_Local_time"),
	}

	sqlSection := r.requiredSection(settings, "sql")
	if sqlSection != nil {
		cfg.SQL = SQLConfig{
			Driver:   strings.ToLower(r.optionalString(sqlSection, "sql.driver", DriverPostgres)),
			Server:   r.requiredBlankable(sqlSection, "sql.server"),
			Port:     r.optionalInt(sqlSection, "sql.port", 0),
			Database: r.requiredString(sqlSection, "sql.database"),
			Username: r.requiredBlankable(sqlSection, "sql.username"),
			Password: r.requiredBlankable(sqlSection, "sql.password"),
			Table:    r.requiredString(sqlSection, "sql.table"),
			SSLMode:  r.optionalString(sqlSection, "sql.sslmode", defaultSSLMode),
		}
	}

	cfg.LogLevel = r.optionalString(settings, "log_level", defaultLogLevel)
	cfg.LogFile = r.optionalString(settings, "log_file", defaultLogFile)
	cfg.LogBackups = r.optionalInt(settings, "log_backup_count", defaultLogBackups)
	cfg.RequestTimeout = r.optionalDuration(settings, "request_timeout", defaultRequestTimeout)

	telemetry := r.optionalSection(settings, "telemetry")
	cfg.Telemetry = TelemetryConfig{
		OTLPEndpoint: r.optionalString(telemetry, "telemetry.otlp_endpoint", ""),
		ServiceName:  r.optionalString(telemetry, "telemetry.service_name", defaultServiceName),
	}
	metrics := r.optionalSection(settings, "metrics")
	cfg.Metrics = MetricsConfig{
		PushgatewayURL: r.optionalString(metrics, "metrics.pushgateway_url", ""),
		Job:            r.optionalString(metrics, "metrics.job", defaultMetricsJob),
	}

	if r.err != nil {
		return Config{}, r.err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.SQL.Driver {
	case DriverPostgres, DriverMySQL, DriverSQLite:
	default:
		return NewConfigurationError(nil, "unsupported sql.driver %q (want %s, %s or %s)", c.SQL.Driver, DriverPostgres, DriverMySQL, DriverSQLite)
	}
	if len(c.FieldMappings) == 0 {
		return NewConfigurationError(nil, "response_to_field must list at least one mapping")
	}
	if c.LogBackups < 0 {
		return NewConfigurationError(nil, "log_backup_count must not be negative")
	}
	if c.RequestTimeout < 0 {
		return NewConfigurationError(nil, "request_timeout must not be negative")
	}
	return nil
}

// DuplicateDestinations reports destination columns named by more than one mapping.
// Later mappings overwrite earlier ones, which is allowed but usually an authoring mistake.
func (c Config) DuplicateDestinations() []string {
	seen := make(map[string]int, len(c.FieldMappings))
	var dups []string
	for _, m := range c.FieldMappings {
		seen[m.Destination]++
		if seen[m.Destination] == 2 {
			dups = append(dups, m.Destination)
		}
	}
	return dups
}

// reader collects the first error met while walking a settings document.
type reader struct {
	err error
}

func (r *reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *reader) lookup(section map[string]any, path string) (any, bool) {
	key := path
	if idx := strings.LastIndex(path, "."); idx >= 0 {
		key = path[idx+1:]
	}
	value, ok := section[key]
	if !ok {
		r.fail(NewConfigurationError(&MissingKeyError{Key: path}, "missing required key %q", path))
		return nil, false
	}
	return value, true
}

func (r *reader) requiredString(section map[string]any, path string) string {
	value, ok := r.lookup(section, path)
	if !ok {
		return ""
	}
	s, ok := scalarString(value)
	if !ok {
		r.fail(NewConfigurationError(nil, "key %q must be a string, got %T", path, value))
		return ""
	}
	return s
}

// requiredBlankable is requiredString for keys that may be present with no value,
// e.g. an empty password for trust-auth postgres or for sqlite.
func (r *reader) requiredBlankable(section map[string]any, path string) string {
	value, ok := r.lookup(section, path)
	if !ok || value == nil {
		return ""
	}
	s, ok := scalarString(value)
	if !ok {
		r.fail(NewConfigurationError(nil, "key %q must be a string, got %T", path, value))
		return ""
	}
	return s
}

func (r *reader) requiredBool(section map[string]any, path string) bool {
	value, ok := r.lookup(section, path)
	if !ok {
		return false
	}
	b, ok := value.(bool)
	if !ok {
		r.fail(NewConfigurationError(nil, "key %q must be a boolean, got %T", path, value))
		return false
	}
	return b
}

func (r *reader) requiredSection(section map[string]any, path string) map[string]any {
	value, ok := r.lookup(section, path)
	if !ok {
		return nil
	}
	m, ok := value.(map[string]any)
	if !ok {
		r.fail(NewConfigurationError(nil, "key %q must be a mapping, got %T", path, value))
		return nil
	}
	return m
}

func (r *reader) optionalSection(section map[string]any, path string) map[string]any {
	value, ok := section[path]
	if !ok || value == nil {
		return nil
	}
	m, ok := value.(map[string]any)
	if !ok {
		r.fail(NewConfigurationError(nil, "key %q must be a mapping, got %T", path, value))
		return nil
	}
	return m
}

func (r *reader) optionalString(section map[string]any, path, fallback string) string {
	key := path[strings.LastIndex(path, ".")+1:]
	value, ok := section[key]
	if !ok || value == nil {
		return fallback
	}
	s, ok := scalarString(value)
	if !ok {
		r.fail(NewConfigurationError(nil, "key %q must be a string, got %T", path, value))
		return fallback
	}
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func (r *reader) optionalInt(section map[string]any, path string, fallback int) int {
	key := path[strings.LastIndex(path, ".")+1:]
	value, ok := section[key]
	if !ok || value == nil {
		return fallback
	}
	n, ok := value.(int)
	if !ok {
		r.fail(NewConfigurationError(nil, "key %q must be an integer, got %T", path, value))
		return fallback
	}
	return n
}

func (r *reader) optionalDuration(section map[string]any, path string, fallback time.Duration) time.Duration {
	raw := r.optionalString(section, path, "")
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		r.fail(NewConfigurationError(err, "key %q: invalid duration %q", path, raw))
		return fallback
	}
	return d
}

func (r *reader) fieldMappings(section map[string]any, path string) []FieldMapping {
	value, ok := r.lookup(section, path)
	if !ok {
		return nil
	}
	entries, ok := value.([]any)
	if !ok {
		r.fail(NewConfigurationError(nil, "key %q must be a sequence of mappings, got %T", path, value))
		return nil
	}

	mappings := make([]FieldMapping, 0, len(entries))
	for i, entry := range entries {
		pairs, ok := entry.(map[string]any)
		if !ok {
			r.fail(NewConfigurationError(nil, "%s[%d] must be a mapping of source field to column, got %T", path, i, entry))
			return nil
		}
		sources := make([]string, 0, len(pairs))
		for source := range pairs {
			sources = append(sources, source)
		}
		sort.Strings(sources)
		for _, source := range sources {
			destination, ok := scalarString(pairs[source])
			if !ok || strings.TrimSpace(destination) == "" {
				r.fail(NewConfigurationError(nil, "%s[%d].%s must name a column", path, i, source))
				return nil
			}
			mappings = append(mappings, FieldMapping{Source: source, Destination: destination})
		}
	}
	return mappings
}

// scalarString accepts YAML scalars that decode as strings or numbers, e.g. a numeric password.
func scalarString(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case int, int64, float64:
		return fmt.Sprint(v), true
	default:
		return "", false
	}
}

// MissingKeyError reports a required settings key that is absent.
type MissingKeyError struct {
	Key string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("missing key %q", e.Key)
}

// ConfigurationError marks any failure to produce a usable Config.
type ConfigurationError struct {
	Message string
	Err     error
}

func (e ConfigurationError) Error() string {
	return e.Message
}

func (e ConfigurationError) Unwrap() error {
	return e.Err
}

// NewConfigurationError wraps err with a formatted message.
func NewConfigurationError(err error, format string, args ...any) error {
	return ConfigurationError{Message: fmt.Sprintf(format, args...), Err: err}
}

// IsConfigurationError reports whether err is a ConfigurationError.
func IsConfigurationError(target error) bool {
	var e ConfigurationError
	return errors.As(target, &e)
}

// IsMissingKey reports whether err was caused by an absent key.
func IsMissingKey(target error) bool {
	var e *MissingKeyError
	return errors.As(target, &e)
}
