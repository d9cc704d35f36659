package main

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/lattice-substrate/canon-fingerprint/cfperr"
	"github.com/lattice-substrate/canon-fingerprint/conformance"
	"github.com/lattice-substrate/canon-fingerprint/ledger"
	"github.com/lattice-substrate/canon-fingerprint/runconfig"
	"github.com/lattice-substrate/canon-fingerprint/vectors"
)

type runOptions struct {
	*rootOptions
	suite   string
	config  string
	subset  []string
	workers int
	timeout time.Duration
	hash    string
	format  string
	ledger  string
}

func newRunCommand(root *rootOptions) *cobra.Command {
	opts := &runOptions{rootOptions: root}
	cmd := &cobra.Command{
		Use:   "run --suite FILE",
		Short: "Check every configured implementation against a vector suite",
		Long: `Load a vector suite, compute each expected fingerprint with the configured
implementations and compare. Prints one line per compared pair and a summary.

Exit status is 0 when every compared pair matched, 1 when any pair failed,
2 for usage, suite or configuration errors and 10 for internal errors.

Example:
  cfp-conform run --suite vectors.json
  cfp-conform run --suite vectors.json --config conformance.yaml --ledger runs.sqlite
  cfp-conform run --suite vectors.json --subset ts --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConformance(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.suite, "suite", "", "vector suite file (required)")
	cmd.Flags().StringVar(&opts.config, "config", "", "runner configuration YAML")
	cmd.Flags().StringSliceVar(&opts.subset, "subset", nil, "run in subset mode with these active implementations")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "parallel workers (default GOMAXPROCS)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "bound on each compute call (default 30s)")
	cmd.Flags().StringVar(&opts.hash, "hash", "", "digest algorithm (sha256|blake3)")
	cmd.Flags().StringVar(&opts.format, "format", "text", "report format (text|json)")
	cmd.Flags().StringVar(&opts.ledger, "ledger", "", "record the run in this SQLite ledger and report regressions")
	_ = cmd.MarkFlagRequired("suite")
	return cmd
}

func runConformance(cmd *cobra.Command, opts *runOptions) error {
	if opts.format != "text" && opts.format != "json" {
		return cfperr.Newf(cfperr.CLIUsage, "invalid format %q: must be text or json", opts.format)
	}
	log := opts.logger(cmd.ErrOrStderr())

	cfg, err := loadRunConfig(cmd, opts)
	if err != nil {
		return err
	}
	alg, err := cfg.Algorithm()
	if err != nil {
		return err
	}

	suite, err := vectors.LoadFile(opts.suite, nil)
	if err != nil {
		return err
	}
	log.Debug("suite loaded", "path", opts.suite, "vectors", suite.Len(), "digest", suite.Digest())

	reg, rc, err := cfg.Build(log)
	if err != nil {
		return err
	}

	started := time.Now()
	report, err := conformance.Run(cmd.Context(), suite, reg, rc)
	if err != nil {
		return err
	}

	var regressions []ledger.Regression
	if opts.ledger != "" {
		regressions, err = recordRun(cmd, opts.ledger, ledger.RunMeta{SuitePath: opts.suite, Hash: alg, StartedAt: started}, report, log)
		if err != nil {
			return err
		}
	}

	if err := writeReport(cmd.OutOrStdout(), opts.format, report, regressions); err != nil {
		return cfperr.Wrap(cfperr.InternalIO, -1, "writing report", err)
	}
	if !report.Passed {
		_, failed := report.Counts()
		return cfperr.Newf(cfperr.FingerprintMismatch, "%d of %d compared pairs failed", failed, len(report.Results))
	}
	return nil
}

// loadRunConfig reads --config (or the default) and applies flag overrides.
func loadRunConfig(cmd *cobra.Command, opts *runOptions) (*runconfig.Config, error) {
	cfg := runconfig.Default()
	if opts.config != "" {
		loaded, err := runconfig.Load(opts.config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("subset") {
		cfg.Mode = string(conformance.ModeSubset)
		cfg.Active = opts.subset
	}
	if flags.Changed("workers") {
		cfg.Workers = opts.workers
	}
	if flags.Changed("timeout") {
		cfg.Timeout = opts.timeout.String()
	}
	if flags.Changed("hash") {
		cfg.Hash = opts.hash
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func recordRun(cmd *cobra.Command, path string, meta ledger.RunMeta, report *conformance.Report, log *slog.Logger) ([]ledger.Regression, error) {
	store, err := ledger.Open(cmd.Context(), path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Error("error closing ledger", "error", closeErr)
		}
	}()

	regressions, err := store.Regressions(cmd.Context(), report.SuiteDigest, meta.Hash, report)
	if err != nil {
		return nil, err
	}
	for _, r := range regressions {
		log.Warn("regression", "vector", r.Vector, "implementation", r.Implementation, "reason", r.Reason, "previous_run", r.PreviousRunID)
	}

	runID, err := store.Record(cmd.Context(), meta, report)
	if err != nil {
		return nil, err
	}
	log.Info("run recorded", "run_id", runID, "ledger", path)
	return regressions, nil
}

type jsonRunOutput struct {
	*conformance.Report
	Regressions []ledger.Regression `json:"regressions,omitempty"`
}

func writeReport(w io.Writer, format string, report *conformance.Report, regressions []ledger.Regression) error {
	if format == "json" {
		return writeJSON(w, jsonRunOutput{Report: report, Regressions: regressions})
	}
	if err := report.WriteText(w); err != nil {
		return err
	}
	for _, r := range regressions {
		if _, err := fmt.Fprintf(w, "REGRESSION %s [%s] %s (matched in run %s)\n", r.Vector, r.Implementation, r.Reason, r.PreviousRunID); err != nil {
			return err
		}
	}
	return nil
}
