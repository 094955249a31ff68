package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/paulschiretz/pgl-treebackup/pkg/plog"
	"github.com/paulschiretz/pgl-treebackup/pkg/util"
)

// ConfigFileName is the name of the configuration file next to the executable.
const ConfigFileName = "config.json"

// EnvPrefix is the prefix of environment variables overriding file values.
const EnvPrefix = "PGL_TREEBACKUP_"

// LogLevelFlag is the name of the command line flag overriding logLevel.
const LogLevelFlag = "log-level"

var (
	// ErrNotFound is returned by Load when the configuration file does not exist.
	// It wraps fs.ErrNotExist.
	ErrNotFound = fmt.Errorf("configuration file not found: %w", fs.ErrNotExist)
	// ErrFormat is returned by Load when the file is not valid JSON or does not
	// have the expected shape.
	ErrFormat = errors.New("malformed configuration file")
)

// Config is the persisted description of a backup run.
type Config struct {
	Sources     []string `json:"copyFrom"`
	Destination string   `json:"copyTo"`
	LogLevel    string   `json:"logLevel" validate:"oneof=Error Info Debug"`
}

// NewDefault returns an empty Config with the default log level.
func NewDefault() Config {
	return Config{
		Sources:  []string{},
		LogLevel: plog.LevelInfo.String(),
	}
}

// NewTemplate returns the Config written when no configuration file exists yet.
func NewTemplate() Config {
	return Config{
		Sources:     []string{"", ""},
		Destination: "",
		LogLevel:    plog.LevelDebug.String(),
	}
}

// Level returns the parsed log level. Configs returned by Load always parse.
func (c Config) Level() plog.Level {
	level, err := plog.ParseLevel(c.LogLevel)
	if err != nil {
		return plog.LevelInfo
	}
	return level
}

// DefaultPath returns the location of ConfigFileName next to the running executable,
// falling back to the working directory if the executable cannot be located.
func DefaultPath() string {
	exe, err := os.Executable()
	if err != nil {
		return ConfigFileName
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Join(filepath.Dir(exe), ConfigFileName)
}

// NormalizeSeparators rewrites Windows separators in raw configuration text to
// forward slashes. When the text contains escaped backslashes ("\\") only those
// are rewritten; otherwise every single backslash is.
func NormalizeSeparators(raw string) string {
	if strings.Contains(raw, `\\`) {
		return strings.ReplaceAll(raw, `\\`, "/")
	}
	return strings.ReplaceAll(raw, `\`, "/")
}

// normalizingProvider wraps a koanf file provider and rewrites path separators
// before the bytes reach the JSON parser.
type normalizingProvider struct {
	inner *file.File
}

func (p normalizingProvider) ReadBytes() ([]byte, error) {
	b, err := p.inner.ReadBytes()
	if err != nil {
		return nil, err
	}
	return []byte(NormalizeSeparators(string(b))), nil
}

func (p normalizingProvider) Read() (map[string]interface{}, error) {
	return nil, errors.New("normalizing provider does not support Read()")
}

// Load reads the configuration at path, applies PGL_TREEBACKUP_* environment
// overrides and any changed flags from flags (which may be nil), and validates
// the result.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(normalizingProvider{inner: file.Provider(path)}, kjson.Parser()); err != nil {
		var pathErr *fs.PathError
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return Config{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		case errors.As(err, &pathErr):
			return Config{}, fmt.Errorf("error reading config file %s: %w", path, err)
		default:
			return Config{}, fmt.Errorf("%w %s: %w", ErrFormat, path, err)
		}
	}

	// Environment values are single strings, so no JSON escaping applies.
	envProvider := env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, interface{}) {
		switch strings.TrimPrefix(key, EnvPrefix) {
		case "LOG_LEVEL":
			return "logLevel", value
		case "COPY_TO":
			return "copyTo", strings.ReplaceAll(value, `\`, "/")
		default:
			return "", nil
		}
	})
	if err := k.Load(envProvider, nil); err != nil {
		return Config{}, fmt.Errorf("error reading environment overrides: %w", err)
	}

	if flags != nil {
		flagProvider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed || f.Name != LogLevelFlag {
				return "", nil
			}
			return "logLevel", f.Value.String()
		})
		if err := k.Load(flagProvider, nil); err != nil {
			return Config{}, fmt.Errorf("error reading flag overrides: %w", err)
		}
	}

	cfg := NewDefault()
	err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "json",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			WeaklyTypedInput: false,
		},
	})
	if err != nil {
		return Config{}, fmt.Errorf("%w %s: %w", ErrFormat, path, err)
	}
	if cfg.Sources == nil {
		cfg.Sources = []string{}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%w %s: %w", ErrFormat, path, err)
	}
	return cfg, nil
}

// Validate canonicalises the log level spelling and checks the shape of the
// Config. Path syntax is checked by the backup run, which reports every
// offending path.
func (c *Config) Validate() error {
	if level, err := plog.ParseLevel(c.LogLevel); err == nil {
		c.LogLevel = level.String()
	}
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid logLevel %q (want one of %s)", fmt.Sprint(verrs[0].Value()), verrs[0].Param())
		}
		return err
	}
	return nil
}

// Save writes the Config as indented JSON to path, overwriting any existing file.
func (c Config) Save(path string) error {
	jsonData, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config to JSON: %w", err)
	}
	if err := os.WriteFile(path, append(jsonData, '\n'), util.UserWritableFilePerms); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveTemplate writes the NewTemplate configuration to path.
func SaveTemplate(path string) error {
	return NewTemplate().Save(path)
}

// LogSummary logs the effective configuration at Debug level.
func (c Config) LogSummary(log *plog.Logger) {
	log.Debug("Configuration loaded", "copyTo", c.Destination, "logLevel", c.LogLevel, "sources", len(c.Sources))
	for _, src := range c.Sources {
		log.Indent(1).Debug("copyFrom", "path", src)
	}
}
