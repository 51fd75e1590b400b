package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get SECTION KEY",
	Short: "Print one effective configuration value",
	Long: `Get prints the effective value of a single key: the
RUCIO_<SECTION>_<KEY> environment variable when set, otherwise the
expanded value from the configuration file.`,
	Args: exactArgs(2),
	RunE: runGet,
}

func runGet(cmd *cobra.Command, args []string) error {
	c, err := loadConfig()
	if err != nil {
		return err
	}
	value, err := c.String(args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), value)
	return nil
}
