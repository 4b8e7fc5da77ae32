package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/accessgate/accessgate/internal/config"
)

func init() { //nolint: gochecknoinits
	dumpCmd.Flags().StringVarP(&dumpFormat, "format", "f", "toml", "Output format: toml or json")

	configCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(configCmd)
}

var (
	dumpFormat string

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}

	dumpCmd = &cobra.Command{
		Use:   "dump",
		Short: "Print the configuration after defaults and overrides",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := config.ReadConfig(configPath)
			if err != nil {
				return err
			}

			var out string

			switch dumpFormat {
			case "toml":
				out, err = config.DumpConfig(&c)
			case "json":
				out, err = config.DumpConfigJSON(&c)
			default:
				return fmt.Errorf("unknown format %q", dumpFormat)
			}

			if err != nil {
				return err
			}

			_, err = fmt.Fprint(cmd.OutOrStdout(), out)

			return err
		},
	}
)
