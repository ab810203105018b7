// Package config loads the monitor settings from a config.properties file,
// an optional .env file and MVIZ_* environment variables, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator"
	"github.com/joho/godotenv"
)

// DefaultPath is the properties file looked up when none is given.
const DefaultPath = "config.properties"

// EnvPrefix prefixes environment overrides: moteImageWidth is overridden by
// MVIZ_MOTE_IMAGE_WIDTH.
const EnvPrefix = "MVIZ_"

// ErrInvalidConfig wraps every parse and validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds every setting of the monitor daemon.
type Config struct {
	RootMote int `validate:"min=0"`

	Width      int `validate:"gt=0"`
	Height     int `validate:"gt=0"`
	MoteWidth  int `validate:"gt=0"`
	MoteHeight int `validate:"gt=0"`
	HostWidth  int `validate:"gt=0"`
	HostHeight int `validate:"gt=0"`

	PlacementMaxAttempts int `validate:"gt=0"`

	UploadOrigin       int    `validate:"min=0"`
	ParseRequestURL    string `validate:"omitempty,url"`
	ParseGetURL        string `validate:"omitempty,url"`
	ParseApplicationID string
	ParseRESTAPIKey    string
	MeasuresRows       int `validate:"gt=0"`

	SerialPort     string
	BaudRate       int `validate:"gte=0"`
	FixturesFile   string
	ReplayInterval time.Duration `validate:"gte=0"`

	DBPath          string
	HTTPAddr        string        `validate:"required"`
	GRPCAddr        string        `validate:"required"`
	RefreshInterval time.Duration `validate:"gt=0"`
}

// Default returns the settings used for keys absent from every source.
func Default() Config {
	return Config{
		RootMote:             0,
		Width:                600,
		Height:               600,
		MoteWidth:            40,
		MoteHeight:           40,
		HostWidth:            60,
		HostHeight:           60,
		PlacementMaxAttempts: 1000,
		UploadOrigin:         1,
		MeasuresRows:         3,
		ReplayInterval:       500 * time.Millisecond,
		DBPath:               "class-monitor.db",
		HTTPAddr:             ":8080",
		GRPCAddr:             ":9090",
		RefreshInterval:      time.Second,
	}
}

// UploadEnabled reports whether readings should be relayed.
func (c Config) UploadEnabled() bool {
	return c.ParseRequestURL != ""
}

// MeasuresEnabled reports whether the measures table can be queried.
func (c Config) MeasuresEnabled() bool {
	return c.ParseGetURL != ""
}

// Load reads path (DefaultPath when empty), then .env, then the process
// environment. A missing properties file is only an error when path was
// given explicitly.
func Load(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	props, err := godotenv.Read(path)
	if err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read %s: %w", path, err)
		}
		props = map[string]string{}
	}

	// .env is optional; its values land in the process environment.
	_ = godotenv.Load()

	for key := range fields {
		if v, ok := os.LookupEnv(EnvName(key)); ok {
			props[key] = v
		}
	}
	return FromProperties(props)
}

// FromProperties builds a Config from key=value pairs on top of Default.
// Unknown keys are ignored.
func FromProperties(props map[string]string) (Config, error) {
	cfg := Default()
	var errs []error
	for key, raw := range props {
		set, ok := fields[key]
		if !ok {
			continue
		}
		if err := set(&cfg, strings.TrimSpace(raw)); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks field constraints and that an input source is set.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.SerialPort == "" && c.FixturesFile == "" {
		return fmt.Errorf("%w: one of serialPort or fixturesFile is required", ErrInvalidConfig)
	}
	if c.MoteWidth > c.Width || c.MoteHeight > c.Height {
		return fmt.Errorf("%w: mote image %dx%d larger than canvas %dx%d",
			ErrInvalidConfig, c.MoteWidth, c.MoteHeight, c.Width, c.Height)
	}
	return nil
}

// EnvName returns the environment variable overriding a properties key.
func EnvName(key string) string {
	runes := []rune(key)
	var b strings.Builder
	b.WriteString(EnvPrefix)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

type setter func(*Config, string) error

var fields = map[string]setter{
	"rootMote":             intField(func(c *Config) *int { return &c.RootMote }),
	"width":                intField(func(c *Config) *int { return &c.Width }),
	"height":               intField(func(c *Config) *int { return &c.Height }),
	"moteImageWidth":       intField(func(c *Config) *int { return &c.MoteWidth }),
	"moteImageHeight":      intField(func(c *Config) *int { return &c.MoteHeight }),
	"hostImageWidth":       intField(func(c *Config) *int { return &c.HostWidth }),
	"hostImageHeight":      intField(func(c *Config) *int { return &c.HostHeight }),
	"placementMaxAttempts": intField(func(c *Config) *int { return &c.PlacementMaxAttempts }),
	"uploadOrigin":         intField(func(c *Config) *int { return &c.UploadOrigin }),
	"parseRequestURL":      stringField(func(c *Config) *string { return &c.ParseRequestURL }),
	"parseGetUrl":          stringField(func(c *Config) *string { return &c.ParseGetURL }),
	"parseApplicationId":   stringField(func(c *Config) *string { return &c.ParseApplicationID }),
	"parseRESTApiKey":      stringField(func(c *Config) *string { return &c.ParseRESTAPIKey }),
	"measuresRows":         intField(func(c *Config) *int { return &c.MeasuresRows }),
	"serialPort":           stringField(func(c *Config) *string { return &c.SerialPort }),
	"baudRate":             intField(func(c *Config) *int { return &c.BaudRate }),
	"fixturesFile":         stringField(func(c *Config) *string { return &c.FixturesFile }),
	"replayInterval":       durationField(func(c *Config) *time.Duration { return &c.ReplayInterval }),
	"dbPath":               stringField(func(c *Config) *string { return &c.DBPath }),
	"httpAddr":             stringField(func(c *Config) *string { return &c.HTTPAddr }),
	"grpcAddr":             stringField(func(c *Config) *string { return &c.GRPCAddr }),
	"refreshInterval":      durationField(func(c *Config) *time.Duration { return &c.RefreshInterval }),
}

func intField(ptr func(*Config) *int) setter {
	return func(c *Config, raw string) error {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("not an integer: %q", raw)
		}
		*ptr(c) = v
		return nil
	}
}

func stringField(ptr func(*Config) *string) setter {
	return func(c *Config, raw string) error {
		*ptr(c) = raw
		return nil
	}
}

// durationField accepts Go durations ("250ms") or bare milliseconds.
func durationField(ptr func(*Config) *time.Duration) setter {
	return func(c *Config, raw string) error {
		if ms, err := strconv.Atoi(raw); err == nil {
			*ptr(c) = time.Duration(ms) * time.Millisecond
			return nil
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("not a duration: %q", raw)
		}
		*ptr(c) = d
		return nil
	}
}
