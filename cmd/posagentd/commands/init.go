package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/posagent/posagentd/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample posagentd configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/posagent/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  posagentd init

  # Initialize with custom path
  posagentd init --config /etc/posagent/config.yaml

  # Force overwrite existing config
  posagentd init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := GetConfigFile()
	if configPath == "" {
		path, err := config.InitConfig(initForce)
		if err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}
		configPath = path
	} else {
		if !initForce {
			if _, err := os.Stat(configPath); err == nil {
				return fmt.Errorf("failed to initialize config: file already exists at %s (use --force to overwrite)", configPath)
			}
		}
		if err := config.SaveConfig(config.GetDefaultConfig(), configPath); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to set upstream.line_url and upstream.summary_url")
	fmt.Println("  2. Start the agent with: posagentd start")
	fmt.Printf("  3. Or specify custom config: posagentd start --config %s\n", configPath)

	return nil
}
