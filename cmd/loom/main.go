package main

import (
	"os"

	"github.com/go-go-golems/loom/pkg/settings"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// loaded is filled by the root command before any subcommand runs.
var loaded *settings.Settings

var rootCmd = &cobra.Command{
	Use:           "loom",
	Short:         "loom is a branching chat client for LLMs",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configFile, _ := cmd.Flags().GetString("config")
		v, err := settings.NewViper(configFile)
		if err != nil {
			return err
		}
		if err := bindFlags(v, cmd); err != nil {
			return err
		}

		s, err := settings.FromViper(v)
		if err != nil {
			return err
		}
		withCaller, _ := cmd.Flags().GetBool("with-caller")
		if err := initLogger(s.Log, withCaller); err != nil {
			return err
		}
		log.Debug().Str("config", v.ConfigFileUsed()).Interface("settings", s.Redacted()).Msg("Loaded configuration")

		loaded = s
		return nil
	},
}

// flagKeys maps persistent flags to their settings keys.
var flagKeys = map[string]string{
	"log-level":     "log.level",
	"log-format":    "log.format",
	"log-file":      "log.file",
	"gateway":       "gateway.type",
	"model":         "gateway.model",
	"base-url":      "gateway.base-url",
	"api-key":       "gateway.api-key",
	"system-prompt": "gateway.system-prompt",
	"stream":        "gateway.stream",
	"timeout":       "gateway.timeout",
	"lorem-delay":   "gateway.lorem-delay",
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	for flag, key := range flagKeys {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return errors.Wrapf(err, "could not bind --%s", flag)
		}
	}
	return nil
}

func init() {
	d := settings.NewSettings()
	pf := rootCmd.PersistentFlags()

	pf.String("config", "", "Path to config file (default ~/.config/loom/config.yaml)")

	pf.Bool("with-caller", false, "Log caller")
	pf.String("log-level", d.Log.Level, "Log level (trace, debug, info, warn, error, fatal)")
	pf.String("log-format", d.Log.Format, "Log format (json, text)")
	pf.String("log-file", "", "Log file (default: stderr)")

	pf.String("gateway", string(d.Gateway.Type), "Completion gateway (openai, sse, lorem)")
	pf.String("model", d.Gateway.Model, "Model for the openai gateway")
	pf.String("base-url", "", "Base URL of the openai or sse gateway")
	pf.String("api-key", "", "API key for the openai gateway")
	pf.String("system-prompt", "", "System prompt sent before the conversation")
	pf.Bool("stream", d.Gateway.Stream, "Stream replies instead of waiting for complete ones")
	pf.Duration("timeout", d.Gateway.Timeout, "Request timeout of the sse gateway")
	pf.Duration("lorem-delay", d.Gateway.LoremDelay, "Delay between lorem gateway fragments")

	rootCmd.AddCommand(newChatCommand(), newServeCommand(), newRunCommand(), newConfigCommand())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("loom failed")
		os.Exit(1)
	}
}
