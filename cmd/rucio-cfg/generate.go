package main

import (
	"fmt"
	"os"

	"github.com/google/renameio/v2"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Thysk/rucio/cfg"
)

var (
	generateOutput string
	generateForce  bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write the rucio.cfg template",
	Long: `Generate emits the canonical rucio.cfg template. Without -o the
template goes to stdout; with -o it is written atomically, so a crash
cannot leave a half-written configuration behind.`,
	Args: exactArgs(0),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVarP(&generateOutput, "output", "o", "", "write the template to this path instead of stdout")
	generateCmd.Flags().BoolVar(&generateForce, "force", false, "overwrite an existing file")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	template := cfg.ClientTemplate()

	if generateOutput == "" {
		_, err := template.WriteTo(cmd.OutOrStdout())
		return err
	}

	// An installed rucio.cfg is hand-tuned per deployment. Refuse to
	// clobber one unless asked.
	if !generateForce {
		if _, err := os.Stat(generateOutput); err == nil {
			return fmt.Errorf("%s already exists, use --force to overwrite", generateOutput)
		}
	}

	if err := renameio.WriteFile(generateOutput, template.Render(), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", generateOutput, err)
	}
	logrus.WithField("path", generateOutput).Debug("template written")
	return nil
}
