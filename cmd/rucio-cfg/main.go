package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	verbose    bool
	configPath string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "rucio-cfg",
	Short: "Manage rucio.cfg client configuration files",
	Long: `rucio-cfg generates, checks and serves the rucio.cfg configuration
read by the Rucio client tools.

The configuration is a static INI file installed once per deployment.
Clients read it at startup and never write to it, so the tool focuses
on producing a correct file and telling you when one is not.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logrus.SetOutput(os.Stderr)
		if verbose {
			logrus.SetLevel(logrus.DebugLevel)
		}
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// usageError marks errors caused by the invocation rather than the
// configuration, so main can exit with status 2 instead of 1.
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return &usageError{fmt.Errorf("accepts %d arg(s), received %d", n, len(args))}
		}
		return nil
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to rucio.cfg (default: $RUCIO_CONFIG, then $RUCIO_HOME/etc/rucio.cfg)")
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &usageError{err}
	})

	// Disable completion command
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// Add subcommands
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(lintCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var usage *usageError
		if errors.As(err, &usage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
