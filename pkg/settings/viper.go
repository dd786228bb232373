package settings

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	AppName   = "loom"
	EnvPrefix = "LOOM"
)

// SetDefaults registers the defaults of NewSettings under their viper keys.
func SetDefaults(v *viper.Viper) {
	d := NewSettings()
	v.SetDefault("gateway.type", string(d.Gateway.Type))
	v.SetDefault("gateway.model", d.Gateway.Model)
	v.SetDefault("gateway.api-key", "")
	v.SetDefault("gateway.base-url", "")
	v.SetDefault("gateway.stream", d.Gateway.Stream)
	v.SetDefault("gateway.system-prompt", "")
	v.SetDefault("gateway.timeout", d.Gateway.Timeout)
	v.SetDefault("gateway.lorem-delay", d.Gateway.LoremDelay)
	v.SetDefault("gateway.allow-local-networks", d.Gateway.AllowLocalNetworks)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.cors-origins", d.Server.CORSOrigins)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", "")
}

// NewViper prepares a viper instance: .env is loaded into the environment,
// LOOM_* variables override the config file, OPENAI_API_KEY is honored for the
// api key. configFile overrides the search path.
func NewViper(configFile string) (*viper.Viper, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("could not load .env")
	}

	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("gateway.api-key", EnvPrefix+"_GATEWAY_API_KEY", "OPENAI_API_KEY"); err != nil {
		return nil, errors.Wrap(err, "could not bind api key env")
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if xdg, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(xdg, AppName))
		}
		v.AddConfigPath("$HOME/." + AppName)
		v.AddConfigPath(".")
	}

	err := v.ReadInConfig()
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		log.Debug().Msg("no config file found, using defaults")
	} else if err != nil {
		return nil, errors.Wrap(err, "could not read config")
	}
	if used := v.ConfigFileUsed(); used != "" {
		log.Debug().Str("config", used).Msg("Loaded configuration")
	}

	return v, nil
}

// FromViper decodes and validates the settings held by v.
func FromViper(v *viper.Viper) (*Settings, error) {
	ret := NewSettings()
	if err := v.Unmarshal(ret); err != nil {
		return nil, errors.Wrap(err, "could not decode settings")
	}
	if err := ret.Validate(); err != nil {
		return nil, err
	}
	return ret, nil
}
