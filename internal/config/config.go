// Package config loads probe-station settings from built-in defaults, an
// optional YAML file and PROBE_* environment variables, in that order of
// precedence.
package config

import (
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/mipt-srf/probe-station/internal/consts"
)

const EnvPrefix = "PROBE"

type Config struct {
	Analysis AnalysisConfig `yaml:"analysis" envconfig:"ANALYSIS"`
	Fit      FitConfig      `yaml:"fit" envconfig:"FIT"`
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
	Export   ExportConfig   `yaml:"export" envconfig:"EXPORT"`
}

// AnalysisConfig holds the parameters handed to the mode handlers.
type AnalysisConfig struct {
	PadSizeUm   float64 `yaml:"pad_size_um" envconfig:"PAD_SIZE_UM" validate:"gt=0"`
	Tolerance   float64 `yaml:"tolerance" envconfig:"TOLERANCE" validate:"gt=0"`
	Capacitance string  `yaml:"capacitance" envconfig:"CAPACITANCE" validate:"oneof=auto series parallel"`
	PUNDWindow  int     `yaml:"pund_window" envconfig:"PUND_WINDOW" validate:"min=1"`

	// Leakage tails used by the PQ-PUND exponential fit, in volts.
	LeakageFromPositive float64 `yaml:"leakage_from_positive" envconfig:"LEAKAGE_FROM_POSITIVE"`
	LeakageFromNegative float64 `yaml:"leakage_from_negative" envconfig:"LEAKAGE_FROM_NEGATIVE" validate:"ltfield=LeakageFromPositive"`

	ReadVoltage   float64 `yaml:"read_voltage" envconfig:"READ_VOLTAGE"`
	WindowCurrent float64 `yaml:"window_current" envconfig:"WINDOW_CURRENT" validate:"gte=0"`

	// CV geometry; zero thickness leaves permittivity uncomputed and zero
	// area falls back to the square pad.
	AreaM2      float64 `yaml:"area_m2" envconfig:"AREA_M2" validate:"gte=0"`
	ThicknessNm float64 `yaml:"thickness_nm" envconfig:"THICKNESS_NM" validate:"gte=0"`
}

type FitConfig struct {
	MaxIter int     `yaml:"max_iter" envconfig:"MAX_ITER" validate:"min=1"`
	Ftol    float64 `yaml:"ftol" envconfig:"FTOL" validate:"gt=0"`
	Xtol    float64 `yaml:"xtol" envconfig:"XTOL" validate:"gt=0"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn warning error"`
	Format   string `yaml:"format" envconfig:"FORMAT" validate:"oneof=json text"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" validate:"required_unless=Output console"`
}

type ExportConfig struct {
	Format string `yaml:"format" envconfig:"FORMAT" validate:"oneof=xlsx parquet"`
	Dir    string `yaml:"dir" envconfig:"DIR"`
}

func Default() Config {
	return Config{
		Analysis: AnalysisConfig{
			PadSizeUm:           consts.DEFAULT_PAD_SIZE_UM,
			Tolerance:           consts.DEFAULT_TOLERANCE,
			Capacitance:         "auto",
			PUNDWindow:          1,
			LeakageFromPositive: 4,
			LeakageFromNegative: -4,
			ReadVoltage:         0.5,
			WindowCurrent:       1e-9,
		},
		Fit: FitConfig{
			MaxIter: 500,
			Ftol:    1.49012e-8,
			Xtol:    1.49012e-8,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "text",
			Output:   "console",
			FilePath: "logs/probe.log",
		},
		Export: ExportConfig{
			Format: "xlsx",
		},
	}
}

// Load builds the configuration. An empty path skips the YAML file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return nil, errors.Wrap(err, "load config file")
		}
	}

	// env variables without a value leave the field untouched
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, errors.Wrap(err, "load config from env")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.UnmarshalStrict(data, cfg)
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "config validation failed")
	}
	return nil
}

// Save writes c as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}
	return errors.Wrap(os.WriteFile(path, data, 0o644), "write config")
}
