package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/banprobe-project/banprobe/internal/config"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create or check the configuration file",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Answer a few questions and write the configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.ResolveDir(configDir))
			if err != nil {
				return err
			}
			return config.RunSetupWizard(cfg, os.Stdin, cmd.OutOrStdout())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Check the configuration file for errors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.ResolveDir(configDir))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			result := config.Validate(cfg)
			if addr := cfg.GetAPI().Addr(); !config.IsPortAvailable(addr) {
				fmt.Fprintf(out, "warning: %s is in use, serve will not be able to listen\n", addr)
			}
			for _, w := range result.Warnings {
				fmt.Fprintf(out, "warning: %s\n", w.Error())
			}
			for _, e := range result.Errors {
				fmt.Fprintf(out, "error: %s\n", e.Error())
			}
			if !result.IsValid() {
				return errExit
			}
			fmt.Fprintf(out, "%s is valid\n", cfg.Path())
			return nil
		},
	})

	return cmd
}
