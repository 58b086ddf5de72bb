// Command dronelink runs one side of the drone/joystick link, or a web
// control surface that picks the side at runtime.
package main

import (
	"errors"
	"fmt"
	"os"

	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/cobra"

	"DroneLink-Apps/internal/config"
)

var log = logging.Logger("dronelink-cmd")

var rootCmd = &cobra.Command{
	Use:   "dronelink",
	Short: "Drone/joystick demo over libp2p pubsub",
	Long: `dronelink exchanges gyro readings and directional commands between a
drone and a joystick over GossipSub. Peers on the local network find each
other through multicast DNS.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	RunE:  runInit,
}

var (
	configPath string
	debug      bool
	force      bool

	cfg *config.Config
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(droneCmd)
	rootCmd.AddCommand(joystickCmd)
	rootCmd.AddCommand(localCmd)
	rootCmd.AddCommand(webCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	level, err := logging.LevelFromString(cfg.Log.Level)
	if err != nil {
		level = logging.LevelInfo
	}
	if debug {
		level = logging.LevelDebug
	}
	logging.SetAllLoggers(level)
	return nil
}

func runInit(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := config.Save(path, config.Default()); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	fmt.Printf("Wrote default configuration to %s\n", path)
	return nil
}
