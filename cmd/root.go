package cmd

import (
	"github.com/bnema/drmkit/internal/config"
	"github.com/bnema/drmkit/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	configPath string
	devicePath string
	logLevel   string

	rootCmd = &cobra.Command{
		Use:   "drmkit",
		Short: "drmkit - inspect and drive DRM/KMS devices",
		Long: `drmkit inspects the kernel mode-setting resources of a DRM device:
connectors, encoders, controllers, planes, framebuffers and their properties.
It can also light up a connector with a solid colour through an atomic commit.`,
		SilenceUsage:      true,
		PersistentPreRunE: loadConfig,
	}
)

// Execute runs the root command
func Execute() error {
	rootCmd.Version = Version
	return rootCmd.Execute()
}

func init() {
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s\n" .Version}}`)

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ~/.config/drmkit/drmkit.toml)")
	rootCmd.PersistentFlags().StringVarP(&devicePath, "device", "d", "", "DRM device to open")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
}

// loadConfig reads the config file, lets flags override it and applies the log level
func loadConfig(cmd *cobra.Command, args []string) error {
	config.SetConfigPath(configPath)

	// Bind flags to viper so they win over the file and the environment
	flags := cmd.Root().PersistentFlags()
	if err := viper.BindPFlag("device.path", flags.Lookup("device")); err != nil {
		return err
	}
	if err := viper.BindPFlag("logging.log_level", flags.Lookup("log-level")); err != nil {
		return err
	}
	if err := config.Init(); err != nil {
		return err
	}

	if level := config.Get().Logging.LogLevel; level != "" {
		logger.SetLevel(level)
	}
	return nil
}
