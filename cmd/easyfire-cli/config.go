package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/muurk/easyfire/internal/config"
	"github.com/muurk/easyfire/internal/transport"
)

// Config and transport flags
var (
	configPath   string
	mode         string
	address      string
	device       string
	baud         int
	lengthOffset int
	forceInit    bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the config file (default: OS config dir)")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configPortsCmd)
	rootCmd.AddCommand(configCmd)

	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing config file")
}

// addTransportFlags adds the flags that override the transport section
func addTransportFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&mode, "mode", "", "Transport mode (tcp, serial)")
	f.StringVar(&address, "address", "", "Adapter address for tcp mode (host:port)")
	f.StringVar(&device, "device", "", "Serial device for serial mode")
	f.IntVar(&baud, "baud", 0, "Baud rate for serial mode")
	f.IntVar(&lengthOffset, "length-offset", 0, "Added to the Sense length byte to get the payload size")
}

// loadConfig loads the config file and applies the transport flags set on cmd
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	f := cmd.Flags()
	if f.Changed("mode") {
		cfg.Transport.Mode = mode
	}
	if f.Changed("address") {
		cfg.Transport.Address = address
	}
	if f.Changed("device") {
		cfg.Transport.Device = device
	}
	if f.Changed("baud") {
		cfg.Transport.Baud = baud
	}
	if f.Changed("length-offset") {
		cfg.Protocol.SenseLengthOffset = lengthOffset
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
	Long: `Show, create and locate the configuration file shared by
easyfire-server and easyfire-cli.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the effective configuration as YAML.

Values missing from the config file are shown with their defaults. Without
a config file the defaults are printed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		fmt.Print(string(data))
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the defaults",
	Example: `  # Create the default config file
  easyfire-cli config init

  # Write to a custom location
  easyfire-cli config init --config ./easyfire.yaml --force`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.ResolvePath(configPath)
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err == nil && !forceInit {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to check %s: %w", path, err)
		}

		if err := config.Default().Save(path); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.ResolvePath(configPath)
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

var configPortsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports usable with --mode serial",
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := transport.ListPorts()
		if err != nil {
			return err
		}
		if len(ports) == 0 {
			fmt.Println("No serial ports found")
			return nil
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return nil
	},
}
