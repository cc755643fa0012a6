// Package config defines yfsd's flag/env/config-file surface, modeled
// on gcsfuse's cfg package: a plain struct unmarshaled by viper, with
// pflag/cobra flags bound to the same keys.
package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds every tunable yfsd's server binary accepts.
type Config struct {
	Device  DeviceConfig  `yaml:"device"`
	Cache   CacheConfig   `yaml:"cache"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

// DeviceConfig names the backing block device image.
type DeviceConfig struct {
	ImagePath string `yaml:"image-path"`
}

// CacheConfig sizes the write-back block/inode caches.
type CacheConfig struct {
	BlockCacheSize int `yaml:"block-cache-size"`
	InodeCacheSize int `yaml:"inode-cache-size"`
}

// MetricsConfig controls the Prometheus HTTP exporter.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LogConfig controls logrus's level and format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// BindFlags registers every Config field as a pflag and binds it into
// viper under the matching dotted key, the same pairing gcsfuse's
// cfg.BindFlags performs for each of its own fields.
func BindFlags(flagSet *pflag.FlagSet) error {
	bind := func(key string, bindErr *error) {
		if *bindErr != nil {
			return
		}
		*bindErr = viper.BindPFlag(key, flagSet.Lookup(key))
	}

	flagSet.String("device.image-path", "yfs.img", "Path to the backing block-device image file.")
	flagSet.Int("cache.block-cache-size", 256, "Number of blocks held in the write-back block cache.")
	flagSet.Int("cache.inode-cache-size", 256, "Number of inodes held in the write-back inode cache.")
	flagSet.Bool("metrics.enabled", false, "Serve Prometheus metrics over HTTP.")
	flagSet.String("metrics.addr", ":9100", "Listen address for the Prometheus metrics endpoint.")
	flagSet.String("log.level", "info", "Logging level: trace, debug, info, warn, error.")
	flagSet.String("log.format", "text", "Log format: text or json.")

	var err error
	for _, key := range []string{
		"device.image-path",
		"cache.block-cache-size",
		"cache.inode-cache-size",
		"metrics.enabled",
		"metrics.addr",
		"log.level",
		"log.format",
	} {
		bind(key, &err)
	}
	if err != nil {
		return fmt.Errorf("config: bind flags: %w", err)
	}
	return nil
}

// Unmarshal decodes v's bound flags/config-file/env values into out,
// keying off the struct's yaml tags rather than mapstructure's default
// field-name matching — the same TagName override gcsfuse's
// cmd/legacy_param_converter.go applies for its own yaml-tagged Config.
func Unmarshal(v *viper.Viper, out *Config) error {
	decoderConfig := &mapstructure.DecoderConfig{
		Result:  out,
		TagName: "yaml",
	}
	decoder, err := mapstructure.NewDecoder(decoderConfig)
	if err != nil {
		return fmt.Errorf("config: new decoder: %w", err)
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return fmt.Errorf("config: decode: %w", err)
	}
	return nil
}

// Validate rejects a Config with an unusable combination of values.
func (c Config) Validate() error {
	if c.Device.ImagePath == "" {
		return fmt.Errorf("config: device.image-path must not be empty")
	}
	if c.Cache.BlockCacheSize <= 0 {
		return fmt.Errorf("config: cache.block-cache-size must be positive")
	}
	if c.Cache.InodeCacheSize <= 0 {
		return fmt.Errorf("config: cache.inode-cache-size must be positive")
	}
	return nil
}
