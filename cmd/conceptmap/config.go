package main

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/ha1tch/conceptmap/pkg/config"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or create the configuration file",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "path",
			Short: "Print the config file path",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Println(configFile())
			},
		},
		&cobra.Command{
			Use:   "init",
			Short: "Write a config file with the defaults if none exists",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				path := configFile()
				if _, err := os.Stat(path); err == nil {
					printWarn("%s already exists", path)
					return nil
				}
				if err := config.EnsureExists(path); err != nil {
					return err
				}
				printDone("wrote %s", path)
				return nil
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration, flags and environment applied",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := setup(false)
				if err != nil {
					return err
				}
				defer a.Close()

				cfg := *a.cfg
				if cfg.Backend.Token != "" {
					cfg.Backend.Token = "********"
				}
				Subtle.Printf("# %s\n", configFile())
				return toml.NewEncoder(os.Stdout).Encode(cfg)
			},
		},
	)

	return cmd
}

func configFile() string {
	if configPath != "" {
		return configPath
	}
	return config.Path()
}
