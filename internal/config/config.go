package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/couchcryptid/h5geotiff/internal/domain"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all command settings, populated from environment variables
// and an optional grid profile file. Command-line flags override both.
type Config struct {
	LogLevel        string
	LogFormat       string
	ProfilePath     string
	MetricsTextfile string

	Profile domain.GridProfile
}

// profileFile is the TOML layout of a grid profile. Unset keys keep the
// environment or built-in value.
type profileFile struct {
	PixelSize *float64 `toml:"pixel_size"`
	Tolerance *float64 `toml:"tolerance"`
	CRSWKT    *string  `toml:"crs_wkt"`
	DataType  *string  `toml:"data_type"`
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	pixelSize, err := parseFloatEnv("H5GEOTIFF_PIXEL_SIZE", domain.DefaultPixelSize)
	if err != nil {
		return nil, err
	}
	tolerance, err := parseFloatEnv("H5GEOTIFF_TOLERANCE", domain.DefaultTolerance)
	if err != nil {
		return nil, err
	}

	profile := domain.DefaultGridProfile()
	profile.PixelSize = pixelSize
	profile.Tolerance = tolerance

	cfg := &Config{
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "text"),
		ProfilePath:     sharedcfg.EnvOrDefault("H5GEOTIFF_PROFILE", ""),
		MetricsTextfile: sharedcfg.EnvOrDefault("METRICS_TEXTFILE", ""),
		Profile:         profile,
	}

	if cfg.ProfilePath != "" {
		if err := cfg.ApplyProfileFile(cfg.ProfilePath); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyProfileFile overlays the keys present in the TOML file at path onto
// cfg.Profile.
func (c *Config) ApplyProfileFile(path string) error {
	var pf profileFile
	md, err := toml.DecodeFile(path, &pf)
	if err != nil {
		return fmt.Errorf("%w: profile %s: %w", domain.ErrConfiguration, path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("%w: profile %s: unknown keys %s", domain.ErrConfiguration, path, strings.Join(keys, ", "))
	}

	if pf.PixelSize != nil {
		c.Profile.PixelSize = *pf.PixelSize
	}
	if pf.Tolerance != nil {
		c.Profile.Tolerance = *pf.Tolerance
	}
	if pf.CRSWKT != nil {
		c.Profile.CRS = *pf.CRSWKT
	}
	if pf.DataType != nil {
		dt, err := domain.ParseDataType(*pf.DataType)
		if err != nil {
			return fmt.Errorf("profile %s: %w", path, err)
		}
		c.Profile.DataType = dt
	}
	c.ProfilePath = path
	return nil
}

// Overrides are command-line settings layered over the loaded configuration.
// Empty strings and a nil Tolerance keep the loaded value.
type Overrides struct {
	ProfilePath     string
	LogLevel        string
	LogFormat       string
	MetricsTextfile string
	Tolerance       *float64
}

// Apply layers o onto c and validates the result. A profile file is applied
// first so that an explicit tolerance wins over the one it sets.
func (c *Config) Apply(o Overrides) error {
	if o.ProfilePath != "" {
		if err := c.ApplyProfileFile(o.ProfilePath); err != nil {
			return err
		}
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
	if o.LogFormat != "" {
		c.LogFormat = o.LogFormat
	}
	if o.MetricsTextfile != "" {
		c.MetricsTextfile = o.MetricsTextfile
	}
	if o.Tolerance != nil {
		c.Profile.Tolerance = *o.Tolerance
	}
	return c.Validate()
}

// Validate reports the first unusable setting.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("%w: LOG_FORMAT must be json or text, got %q", domain.ErrConfiguration, c.LogFormat)
	}
	return c.Profile.Validate()
}

func parseFloatEnv(key string, def float64) (float64, error) {
	s := sharedcfg.EnvOrDefault(key, strconv.FormatFloat(def, 'f', -1, 64))
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: invalid %s %q", domain.ErrConfiguration, key, s)
	}
	return v, nil
}
