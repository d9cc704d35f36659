package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lattice-substrate/canon-fingerprint/vectors"
)

func newCheckSuiteCommand(root *rootOptions) *cobra.Command {
	var suitePath string
	cmd := &cobra.Command{
		Use:   "check-suite --suite FILE",
		Short: "Validate a vector suite without running any implementation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := root.logger(cmd.ErrOrStderr())
			suite, err := vectors.LoadFile(suitePath, nil)
			if err != nil {
				return err
			}
			for _, w := range suite.Warnings() {
				log.Warn("suite advisory", "vector", w.Name, "index", w.Index, "path", w.Path, "message", w.Message)
			}

			var b strings.Builder
			fmt.Fprintf(&b, "ok: %d vectors\n", suite.Len())
			fmt.Fprintf(&b, "digest: %s\n", suite.Digest())
			fmt.Fprintf(&b, "implementations: %s\n", strings.Join(suite.Implementations(), ", "))
			for _, w := range suite.Warnings() {
				fmt.Fprintf(&b, "WARN %s\n", w)
			}
			return writeOutput(cmd.OutOrStdout(), []byte(b.String()))
		},
	}
	cmd.Flags().StringVar(&suitePath, "suite", "", "vector suite file (required)")
	_ = cmd.MarkFlagRequired("suite")
	return cmd
}
