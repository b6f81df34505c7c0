// Package config loads cookieproxy configuration from YAML or TOML files.
//
// ${VAR} references are expanded from the environment before parsing,
// unset variables become empty strings. Missing fields take the values of
// Default. The result is validated against an embedded CUE schema.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

var (
	// ErrUnsupportedFormat is returned for a file that is neither YAML nor TOML.
	ErrUnsupportedFormat = errors.New("unsupported config format")
	// ErrUnknownKeys is returned when a TOML file has keys the config lacks.
	ErrUnknownKeys = errors.New("unknown config keys")
)

// Config is the complete cookieproxy configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database" toml:"database" json:"database"`
	Threads  ThreadsConfig  `yaml:"threads" toml:"threads" json:"threads"`
	Proxy    ProxyConfig    `yaml:"proxy" toml:"proxy" json:"proxy"`
	Log      LogConfig      `yaml:"log" toml:"log" json:"log"`
}

// DatabaseConfig locates the cookie database.
type DatabaseConfig struct {
	Path           string `yaml:"path" toml:"path" json:"path"`
	Driver         string `yaml:"driver" toml:"driver" json:"driver"`
	SessionCookies string `yaml:"session_cookies" toml:"session_cookies" json:"session_cookies"`
}

// ThreadsConfig names the client and store threads.
type ThreadsConfig struct {
	Client string `yaml:"client" toml:"client" json:"client"`
	Store  string `yaml:"store" toml:"store" json:"store"`
}

// ProxyConfig selects the proxy variant handed to clients.
type ProxyConfig struct {
	Variant string `yaml:"variant" toml:"variant" json:"variant"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level" json:"level"`
	Format string `yaml:"format" toml:"format" json:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:         "sqlite3",
			SessionCookies: "ephemeral",
		},
		Threads: ThreadsConfig{
			Client: "client",
			Store:  "store",
		},
		Proxy: ProxyConfig{Variant: "weak"},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the configuration file at path. An empty path yields Default.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(filepath.Ext(path), data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data in the format named by ext (".yaml", ".yml" or
// ".toml"), applies defaults and validates the result.
func Parse(ext string, data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))
	cfg := Default()

	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}

	case ".toml":
		md, err := toml.Decode(expanded, cfg)
		if err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("%w: %s", ErrUnknownKeys, strings.Join(keys, ", "))
		}

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// ValidationError reports a config value rejected by the schema.
type ValidationError struct {
	Message string
	Pos     token.Pos
}

func (e *ValidationError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%d:%d: %s", e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return e.Message
}

// Validate checks c against the embedded schema.
func (c *Config) Validate() error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compiling config schema: %w", err)
	}

	v := schema.LookupPath(cue.ParsePath("#Config")).Unify(ctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return formatCUEError(err)
	}

	if c.Threads.Client == c.Threads.Store {
		return &ValidationError{
			Message: fmt.Sprintf("threads.store: must differ from threads.client (both %q)", c.Threads.Store),
		}
	}
	return nil
}

// formatCUEError keeps the first of possibly many CUE errors.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	format, args := first.Msg()
	msg := fmt.Sprintf(format, args...)
	if path := first.Path(); len(path) > 0 {
		msg = strings.Join(path, ".") + ": " + msg
	}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		return &ValidationError{Message: msg, Pos: positions[0]}
	}
	return &ValidationError{Message: msg}
}

// SlogLevel returns the configured level as a slog.Level.
func (l LogConfig) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
