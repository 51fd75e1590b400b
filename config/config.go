// Package config loads rucio.cfg files and exposes their effective values:
// environment overrides first, then the file with $VAR references expanded.
// The file is read once; nothing here watches or rewrites it.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"
)

// DefaultPath is the last place Locate looks for a configuration file.
const DefaultPath = "/opt/rucio/etc/rucio.cfg"

var (
	// ErrConfigNotFound is returned when no configuration file exists in any
	// of the standard locations. Callers may still proceed on environment
	// variables alone via Empty.
	ErrConfigNotFound = errors.New("no rucio.cfg found")

	// ErrKeyAbsent is wrapped by every getter when neither the environment
	// nor the file sets the requested key.
	ErrKeyAbsent = errors.New("configuration key not set")
)

// Config is a parsed configuration. The zero value is not usable; construct
// one with Load, LoadDefault, Parse or Empty.
type Config struct {
	path string
	file *ini.File
}

// Locate returns the first configuration file found in the standard
// locations: the exact path in $RUCIO_CONFIG, then $RUCIO_HOME/etc/rucio.cfg,
// then DefaultPath. A set but dangling $RUCIO_CONFIG is an error rather than
// a fallthrough, so a typo cannot silently select another deployment's file.
func Locate() (string, error) {
	if path := os.Getenv("RUCIO_CONFIG"); path != "" {
		if fileExists(path) {
			return path, nil
		}
		return "", fmt.Errorf("RUCIO_CONFIG points at %s: %w", path, ErrConfigNotFound)
	}
	if home := os.Getenv("RUCIO_HOME"); home != "" {
		if path := filepath.Join(home, "etc", "rucio.cfg"); fileExists(path) {
			return path, nil
		}
	}
	if fileExists(DefaultPath) {
		return DefaultPath, nil
	}
	return "", ErrConfigNotFound
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// LoadDefault loads the configuration from the first standard location that
// has one.
func LoadDefault() (*Config, error) {
	path, err := Locate()
	if err != nil {
		return nil, err
	}
	return Load(path)
}

// Load reads and parses the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read configuration: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	c.path = path
	return c, nil
}

// Parse parses configuration text.
func Parse(data []byte) (*Config, error) {
	file, err := ini.LoadSources(ini.LoadOptions{}, data)
	if err != nil {
		return nil, err
	}
	file.ValueMapper = os.ExpandEnv
	return &Config{file: file}, nil
}

// Empty returns a configuration with no file behind it. Getters still see
// environment overrides, which is how the client runs without a rucio.cfg.
func Empty() *Config {
	file := ini.Empty()
	file.ValueMapper = os.ExpandEnv
	return &Config{file: file}
}

// Path returns the file the configuration was loaded from, or an empty string
// when it was parsed from bytes or created by Empty.
func (c *Config) Path() string {
	return c.path
}

// envName maps a section and key to the override variable consulted before
// the file: ("client", "rucio_host") -> RUCIO_CLIENT_RUCIO_HOST.
func envName(section, key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'A' && r <= 'Z' || r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, strings.ToUpper("RUCIO_"+section+"_"+key))
}

// lookup returns the effective value: environment override first, then the
// file with $VAR expansion applied.
func (c *Config) lookup(section, key string) (string, bool) {
	if value, ok := os.LookupEnv(envName(section, key)); ok {
		return value, true
	}
	sec, err := c.file.GetSection(section)
	if err != nil || !sec.HasKey(key) {
		return "", false
	}
	return sec.Key(key).String(), true
}

// Has reports whether the key is set in the environment or the file.
func (c *Config) Has(section, key string) bool {
	_, ok := c.lookup(section, key)
	return ok
}

// String returns the effective value of section.key.
func (c *Config) String(section, key string) (string, error) {
	value, ok := c.lookup(section, key)
	if !ok {
		return "", fmt.Errorf("%s.%s: %w", section, key, ErrKeyAbsent)
	}
	return value, nil
}

// Int returns section.key as an integer.
func (c *Config) Int(section, key string) (int, error) {
	value, err := c.String(section, key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%s.%s: %q is not an integer", section, key, value)
	}
	return n, nil
}

// Bool returns section.key as a boolean. It accepts the spellings the
// original configuration format does: 1/yes/true/on and 0/no/false/off,
// case-insensitive.
func (c *Config) Bool(section, key string) (bool, error) {
	value, err := c.String(section, key)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "yes", "true", "on":
		return true, nil
	case "0", "no", "false", "off":
		return false, nil
	}
	return false, fmt.Errorf("%s.%s: %q is not a boolean", section, key, value)
}

// Float64 returns section.key as a float.
func (c *Config) Float64(section, key string) (float64, error) {
	value, err := c.String(section, key)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, fmt.Errorf("%s.%s: %q is not a number", section, key, value)
	}
	return f, nil
}

// Duration returns section.key as a duration. A bare integer means seconds,
// matching how the original format writes timeouts; anything else must be a
// Go duration string such as "90m".
func (c *Config) Duration(section, key string) (time.Duration, error) {
	value, err := c.String(section, key)
	if err != nil {
		return 0, err
	}
	trimmed := strings.TrimSpace(value)
	if seconds, err := strconv.Atoi(trimmed); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	d, err := time.ParseDuration(trimmed)
	if err != nil {
		return 0, fmt.Errorf("%s.%s: %q is neither seconds nor a duration", section, key, value)
	}
	return d, nil
}

// Sections returns the section names present in the file, in file order.
func (c *Config) Sections() []string {
	var names []string
	for _, sec := range c.file.Sections() {
		if sec.Name() == ini.DefaultSection {
			continue
		}
		names = append(names, sec.Name())
	}
	return names
}

// Keys returns the keys the file sets in a section, in file order.
// Environment overrides change values, not the key set.
func (c *Config) Keys(section string) []string {
	sec, err := c.file.GetSection(section)
	if err != nil {
		return nil
	}
	return sec.KeyStrings()
}
