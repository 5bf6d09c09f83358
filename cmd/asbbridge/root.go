package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

// defaultConfigPath is used when neither --config nor ASB_CONFIG is set.
const defaultConfigPath = "configs/config.yaml"

// configEnv names the environment variable holding the config file path.
const configEnv = "ASB_CONFIG"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "asbbridge",
	Short: "aSysBus serial to MQTT bridge",
	Long: `asbbridge connects an aSysBus gateway on a serial port to an MQTT broker.

Actuator state frames from the bus are published as retained topics, and
messages on <prefix>/<group>/set/{switch,level} are sent to the bus.

Use 'asbbridge run' to start the bridge.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Config file (YAML, or TOML with a .toml extension). Default: $"+configEnv+" or "+defaultConfigPath)

	rootCmd.Version = version
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// resolveConfigPath returns the --config flag, then ASB_CONFIG, then the
// default path.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if path := os.Getenv(configEnv); path != "" {
		return path
	}
	return defaultConfigPath
}
