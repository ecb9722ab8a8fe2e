package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-ozzo/ozzo-validation/v4/is"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/mitchellh/mapstructure"

	"github.com/spf13/viper"
)

const (
	defaultExtension = "yaml"
	defaultTagName   = "yaml"

	// DefaultFileName is the config file we look for in the working
	// directory when no explicit path is given.
	DefaultFileName = "bqinspect"

	// DefaultEnvPrefix namespaces the environment variables that
	// override config file values, e.g. BQINSPECT_LOG_LEVEL.
	DefaultEnvPrefix = "BQINSPECT"

	// DefaultPreviewRows caps the number of rows returned by a query
	// unless the config says otherwise.
	DefaultPreviewRows = 5

	defaultLogLevel = "info"
)

type Binder interface {
	Bind(v *viper.Viper) error
}

type Loader interface {
	Load(name, path, envPrefix string, binder Binder) (Config, error)
}

type Config struct {
	BigQuery    BigQuery    `yaml:"big_query"`
	Credentials Credentials `yaml:"credentials"`

	Project     string `yaml:"project"`
	PreviewRows int    `yaml:"preview_rows"`
	LogLevel    string `yaml:"log_level"`
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.PreviewRows, validation.Required, validation.Min(1)),
		validation.Field(&c.LogLevel, validation.Required, validation.In("trace", "debug", "info", "warn", "error")),
		validation.Field(&c.BigQuery),
	)
}

type BigQuery struct {
	// EndpointOverride points the client at a local emulator instead
	// of the real BigQuery API.
	EndpointOverride string `yaml:"endpoint"`
	DisableAuth      bool   `yaml:"disable_auth"`
}

func (b BigQuery) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.EndpointOverride, is.URL),
	)
}

type Credentials struct {
	File string `yaml:"file"`
}

type FileParts struct {
	FileName string
	Path     string
}

func ProcessConfigPath(configFile string) (FileParts, error) {
	absolutePath, err := filepath.Abs(configFile)
	if err != nil {
		return FileParts{}, fmt.Errorf("convert to absolute path: %w", err)
	}

	// Extract file name and extension
	fileName := filepath.Base(absolutePath)
	path := filepath.Dir(absolutePath)
	extension := filepath.Ext(fileName)

	// Case-sensitive on purpose: viper searches for <name>.yaml, so a
	// .YAML file would pass here only to fail the lookup later with a
	// misleading not-found error.
	if extension != "."+defaultExtension {
		return FileParts{}, fmt.Errorf("config file must have extension %s, got: %s", defaultExtension, extension)
	}

	return FileParts{
		FileName: fileName[:len(fileName)-len(extension)],
		Path:     path,
	}, nil
}

// NewFileSystemLoader returns a loader that fails when the config file
// does not exist. Use it when the file path was given explicitly.
func NewFileSystemLoader() *FileSystemLoader {
	return &FileSystemLoader{required: true}
}

// NewOptionalFileSystemLoader returns a loader that falls back to
// defaults and environment variables when the config file is absent.
func NewOptionalFileSystemLoader() *FileSystemLoader {
	return &FileSystemLoader{}
}

type FileSystemLoader struct {
	required bool
}

func (fs *FileSystemLoader) Load(name, path, envPrefix string, b Binder) (Config, error) {
	v := viper.New()

	v.AddConfigPath(path)
	v.SetConfigName(name)
	v.SetConfigType(defaultExtension)

	// Registering a default for every key also makes the key visible
	// to Unmarshal when the value only arrives via the environment.
	v.SetDefault("project", "")
	v.SetDefault("preview_rows", DefaultPreviewRows)
	v.SetDefault("log_level", defaultLogLevel)
	v.SetDefault("big_query.endpoint", "")
	v.SetDefault("big_query.disable_auth", false)
	v.SetDefault("credentials.file", "")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // So that env vars are translated properly
	v.AutomaticEnv()

	if b != nil {
		err := b.Bind(v)
		if err != nil {
			return Config{}, err
		}
	}

	v.SetEnvPrefix(envPrefix)

	err := v.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError

		if fs.required || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var config Config

	err = v.Unmarshal(&config, func(cfg *mapstructure.DecoderConfig) {
		cfg.TagName = defaultTagName // We use yaml tags in the config structs so we can marshal to yaml
	})
	if err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	return config, nil
}

type EnvBinder struct {
	binders map[string]string
}

func (e *EnvBinder) Bind(v *viper.Viper) error {
	for envVar, key := range e.binders {
		err := v.BindEnv(key, envVar)
		if err != nil {
			return fmt.Errorf("bind env var %s to key %s: %w", envVar, key, err)
		}
	}

	return nil
}

func NewEnvBinder(binders map[string]string) *EnvBinder {
	return &EnvBinder{
		binders: binders,
	}
}

func NewDefaultEnvBinder() *EnvBinder {
	return NewEnvBinder(map[string]string{
		"GOOGLE_APPLICATION_CREDENTIALS": "credentials.file",
	})
}
