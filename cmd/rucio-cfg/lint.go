package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Thysk/rucio/cfg"
)

var lintCmd = &cobra.Command{
	Use:   "lint FILE",
	Short: "Check a rucio.cfg for structural problems",
	Long: `Lint scans a rucio.cfg line by line and reports malformed lines,
duplicate sections and keys, and client endpoints that are not https.
The file is checked as written; values are not expanded.`,
	Args: exactArgs(1),
	RunE: runLint,
}

func runLint(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	issues := cfg.Check(raw)
	for _, issue := range issues {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], issue)
	}
	if n := len(issues); n > 0 {
		return fmt.Errorf("%s: %d problem(s) found", args[0], n)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: OK\n", args[0])
	return nil
}
