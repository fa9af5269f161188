package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/bnema/drmkit/internal/config"
	"github.com/bnema/drmkit/internal/ui"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage drmkit configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()

		var out strings.Builder
		out.WriteString(ui.FormatAppHeader("CONFIG", config.GetConfigPath()))
		out.WriteString("\n\n")

		out.WriteString(ui.HeaderStyle.Render("[device]"))
		out.WriteString("\n")
		out.WriteString(ui.FormatKeyValue("Path", cfg.Device.Path) + "\n")
		out.WriteString(ui.FormatKeyValue("Master", fmt.Sprint(cfg.Device.AcquireMaster)) + "\n")
		out.WriteString(ui.FormatKeyValue("Atomic", fmt.Sprint(cfg.Device.Atomic)) + "\n")
		out.WriteString(ui.FormatKeyValue("Planes", fmt.Sprint(cfg.Device.UniversalPlanes)) + "\n")

		level := cfg.Logging.LogLevel
		if level == "" {
			level = "(LOG_LEVEL)"
		}
		out.WriteString("\n")
		out.WriteString(ui.HeaderStyle.Render("[logging]"))
		out.WriteString("\n")
		out.WriteString(ui.FormatKeyValue("Level", level) + "\n")

		_, err := fmt.Fprint(cmd.OutOrStdout(), out.String())
		return err
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration file with defaults",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		// Check if config already exists
		configPath := config.GetConfigPath()
		if _, err := os.Stat(configPath); err == nil {
			force, _ := cmd.Flags().GetBool("force")
			if !force {
				fmt.Fprintf(out, "Configuration file already exists at: %s\n", configPath)
				fmt.Fprintln(out, "Use --force to overwrite")
				return nil
			}
		}

		if err := config.Save(); err != nil {
			return err
		}

		fmt.Fprintf(out, "Configuration initialized at: %s\n", configPath)
		return nil
	},
}

var configDeviceCmd = &cobra.Command{
	Use:   "device <path>",
	Short: "Save the DRM device drmkit opens by default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dev := config.Get().Device
		dev.Path = args[0]
		for name, dst := range map[string]*bool{
			"master":           &dev.AcquireMaster,
			"atomic":           &dev.Atomic,
			"universal-planes": &dev.UniversalPlanes,
		} {
			if cmd.Flags().Changed(name) {
				*dst, _ = cmd.Flags().GetBool(name)
			}
		}

		if err := config.UpdateDevice(dev); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Default device set to %s in %s\n", dev.Path, config.GetConfigPath())
		return nil
	},
}

func init() {
	configDeviceCmd.Flags().Bool("master", false, "Become DRM master when opening the device")
	configDeviceCmd.Flags().Bool("atomic", false, "Enable the atomic client cap")
	configDeviceCmd.Flags().Bool("universal-planes", false, "Enable the universal planes client cap")
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing config file")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configDeviceCmd)
	rootCmd.AddCommand(configCmd)
}
