package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lattice-substrate/canon-fingerprint/cfperr"
	"github.com/lattice-substrate/canon-fingerprint/ledger"
)

func newHistoryCommand() *cobra.Command {
	var (
		ledgerPath string
		limit      int
	)
	cmd := &cobra.Command{
		Use:   "history --ledger FILE",
		Short: "List recorded conformance runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(ledgerPath); err != nil {
				return cfperr.Wrap(cfperr.CLIUsage, -1, fmt.Sprintf("ledger %q", ledgerPath), err)
			}
			store, err := ledger.Open(cmd.Context(), ledgerPath)
			if err != nil {
				return err
			}
			defer func() {
				_ = store.Close()
			}()

			runs, err := store.Runs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			var b strings.Builder
			for _, r := range runs {
				verdict := "PASS"
				if !r.Passed {
					verdict = "FAIL"
				}
				fmt.Fprintf(&b, "%s %s %s pairs=%d failed=%d skipped=%d mode=%s hash=%s suite=%s",
					r.StartedAt.Format(time.RFC3339), r.ID, verdict, r.Pairs, r.Failed, r.Skipped, r.Mode, r.Hash, shortDigest(r.SuiteDigest))
				if r.SuitePath != "" {
					fmt.Fprintf(&b, " %s", r.SuitePath)
				}
				b.WriteByte('\n')
			}
			return writeOutput(cmd.OutOrStdout(), []byte(b.String()))
		},
	}
	cmd.Flags().StringVar(&ledgerPath, "ledger", "", "SQLite ledger file (required)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list (0 for all)")
	_ = cmd.MarkFlagRequired("ledger")
	return cmd
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
