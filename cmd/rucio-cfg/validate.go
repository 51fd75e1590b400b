package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thysk/rucio/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load a rucio.cfg and validate the client settings",
	Long: `Validate loads the configuration the way the client does, applying
RUCIO_* environment overrides and value expansion, and checks the
[client] and [policy] sections: endpoint URLs, the authentication type,
the retry count and the LFN-to-PFN algorithm. All findings are reported
in a single pass.`,
	Args: exactArgs(0),
	RunE: runValidate,
}

// loadConfig loads the file named by --config, falling back to the
// client's discovery order.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	return config.LoadDefault()
}

func runValidate(cmd *cobra.Command, args []string) error {
	c, err := loadConfig()
	if err != nil {
		return err
	}
	settings, err := c.Settings()
	if err != nil {
		return fmt.Errorf("%s:\n%w", c.Path(), err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: OK (auth %s against %s)\n", c.Path(), settings.AuthType, settings.RucioHost)
	return nil
}
