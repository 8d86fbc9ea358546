// Package config loads and stores the castvideos settings file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// DefaultMediaListURL is the CastVideos sample catalog.
const DefaultMediaListURL = "https://commondatastorage.googleapis.com/gtv-videos-bucket/CastVideos/f.json"

const envPrefix = "CASTVIDEOS_"

type Config struct {
	MediaListURL     string  `json:"media_list_url" default:"https://commondatastorage.googleapis.com/gtv-videos-bucket/CastVideos/f.json" validate:"required,url"`
	PreloadTime      float64 `json:"preload_time" default:"20" validate:"gte=0,lte=600"`
	DiscoveryTimeout int     `json:"discovery_timeout" default:"2" validate:"gte=1,lte=60"`
	FFprobePath      string  `json:"ffprobe_path" default:"ffprobe"`
	LogLevel         string  `json:"log_level" default:"info" validate:"oneof=trace debug info warn error disabled"`
	LogOutput        string  `json:"log_output" default:"file" validate:"oneof=stderr file"`
	LogFile          string  `json:"log_file"`
	LastDevice       string  `json:"last_device"`
	ShowRemaining    bool    `json:"show_remaining_time"`
	SeekStep         int     `json:"seek_step" default:"10" validate:"gte=1,lte=600"`

	path string
	// stored holds the settings as read from the file, keyed by JSON name.
	// Keys in fromEnv are written back from it instead of the live value.
	stored  map[string]any
	fromEnv map[string]bool
}

var validate = validator.New()

// SeekStepDuration returns the seek step as a duration.
func (c *Config) SeekStepDuration() time.Duration {
	return time.Duration(c.SeekStep) * time.Second
}

// Path is the file the configuration was loaded from.
func (c *Config) Path() string { return c.path }

// Validate checks the field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "invalid settings")
	}
	return nil
}

// GetAppConfig loads the settings from the user config directory, creating
// the file with defaults on first run. CASTVIDEOS_* environment variables,
// optionally read from a .env file in the working directory, override the
// stored values.
func GetAppConfig() (*Config, error) {
	path, err := appPath()
	if err != nil {
		return nil, fmt.Errorf("GetAppConfig: failed to access config path due to error %w", err)
	}
	return Load(path)
}

// Load is GetAppConfig for an explicit file.
func Load(path string) (*Config, error) {
	// A missing .env is the common case.
	_ = godotenv.Load()

	conf := &Config{path: path, fromEnv: make(map[string]bool)}
	if err := defaults.Set(conf); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	b, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		if err := conf.SaveAppConfig(); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("Load: failed to open config due to error %w", err)
	default:
		if err := json.Unmarshal(b, conf); err != nil {
			return nil, fmt.Errorf("Load: failed to decode config due to error %w", err)
		}
	}

	if conf.stored, err = conf.fields(); err != nil {
		return nil, err
	}

	if err := conf.overrideFromEnv(); err != nil {
		return nil, err
	}

	if err := conf.Validate(); err != nil {
		return nil, err
	}

	return conf, nil
}

func (c *Config) overrideFromEnv() error {
	if v, ok := c.lookupEnv("MEDIA_LIST_URL"); ok {
		c.MediaListURL = v
	}
	if v, ok := c.lookupEnv("FFPROBE_PATH"); ok {
		c.FFprobePath = v
	}
	if v, ok := c.lookupEnv("LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if v, ok := c.lookupEnv("LOG_OUTPUT"); ok {
		c.LogOutput = v
	}
	if v, ok := c.lookupEnv("LOG_FILE"); ok {
		c.LogFile = v
	}
	if v, ok := c.lookupEnv("LAST_DEVICE"); ok {
		c.LastDevice = v
	}

	if v, ok := c.lookupEnv("PRELOAD_TIME"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errors.Wrap(err, envPrefix+"PRELOAD_TIME")
		}
		c.PreloadTime = f
	}
	if v, ok := c.lookupEnv("DISCOVERY_TIMEOUT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, envPrefix+"DISCOVERY_TIMEOUT")
		}
		c.DiscoveryTimeout = n
	}
	if v, ok := c.lookupEnv("SEEK_STEP"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, envPrefix+"SEEK_STEP")
		}
		c.SeekStep = n
	}
	if v, ok := c.lookupEnv("SHOW_REMAINING_TIME"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrap(err, envPrefix+"SHOW_REMAINING_TIME")
		}
		c.ShowRemaining = b
	}

	return nil
}

// lookupEnv reads CASTVIDEOS_<name> and remembers that the field it
// overrides must not be saved.
func (c *Config) lookupEnv(name string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + name)
	if !ok || v == "" {
		return "", false
	}
	c.fromEnv[strings.ToLower(name)] = true
	return v, true
}

// fields returns the settings keyed by their JSON names.
func (c *Config) fields() (map[string]any, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, "encode settings")
	}

	m := make(map[string]any)
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, errors.Wrap(err, "encode settings")
	}
	return m, nil
}

func appPath() (string, error) {
	oscfg, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("appPath: failed to get config file due to error %w", err)
	}

	return filepath.Join(oscfg, "castvideos", "settings.json"), nil
}

// DefaultLogFile is the log file used when LogFile is empty.
func (c *Config) DefaultLogFile() string {
	if c.LogFile != "" {
		return c.LogFile
	}
	return filepath.Join(filepath.Dir(c.path), "castvideos.log")
}

// SaveAppConfig writes the settings back to the file they came from.
// Values taken from the environment are not persisted, the file keeps what
// it had for them.
func (c *Config) SaveAppConfig() error {
	m, err := c.fields()
	if err != nil {
		return err
	}
	for k := range c.fromEnv {
		if v, ok := c.stored[k]; ok {
			m[k] = v
		}
	}

	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("SaveAppConfig: failed to marshal json due to error %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("SaveAppConfig: failed to create config dir due to error %w", err)
	}

	if err := os.WriteFile(c.path, b, 0o644); err != nil {
		return fmt.Errorf("SaveAppConfig: failed save config due to error %w", err)
	}

	return nil
}
