// Package config loads the maxgauge settings from a TOML file and the
// MAXGAUGE_* environment.
package config

import (
	"math"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"maxgauge/internal/max17048"
)

type Config struct {
	BusName string
	Address uint16

	// Temperature is nil when no ambient temperature is configured; the
	// default RCOMP is applied then.
	Temperature *float32
	Clamp       bool

	Port     int
	LogLevel log.Level
}

// Load reads path (if non-empty) on top of the defaults and validates the
// result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("bus.name", "")
	v.SetDefault("gauge.address", max17048.DefaultAddr)
	v.SetDefault("gauge.clamp", false)
	v.SetDefault("server.port", 3000)
	v.SetDefault("log.level", "info")

	v.SetEnvPrefix("maxgauge")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}

	addr, err := cast.ToIntE(v.Get("gauge.address"))
	if err != nil {
		return nil, errors.Wrap(err, "gauge.address")
	}
	// 0x00-0x07 and 0x78-0x7F are reserved by the I²C specification.
	if addr < 0x08 || addr > 0x77 {
		return nil, errors.Errorf("gauge.address %#x is not a usable 7-bit address", addr)
	}
	port, err := cast.ToIntE(v.Get("server.port"))
	if err != nil {
		return nil, errors.Wrap(err, "server.port")
	}
	if port < 1 || port > 65535 {
		return nil, errors.Errorf("server.port %d out of range", port)
	}
	clamp, err := cast.ToBoolE(v.Get("gauge.clamp"))
	if err != nil {
		return nil, errors.Wrap(err, "gauge.clamp")
	}
	level, err := log.ParseLevel(v.GetString("log.level"))
	if err != nil {
		return nil, errors.Wrap(err, "log.level")
	}

	cfg := &Config{
		BusName:  v.GetString("bus.name"),
		Address:  uint16(addr),
		Clamp:    clamp,
		Port:     port,
		LogLevel: level,
	}
	if v.IsSet("gauge.temperature") {
		t, err := cast.ToFloat64E(v.Get("gauge.temperature"))
		if err != nil {
			return nil, errors.Wrap(err, "gauge.temperature")
		}
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil, errors.Errorf("gauge.temperature %v is not a finite temperature", t)
		}
		cfg.SetTemperature(float32(t))
	}
	return cfg, nil
}

// SetTemperature overrides the configured ambient temperature.
func (c *Config) SetTemperature(t float32) {
	c.Temperature = &t
}
