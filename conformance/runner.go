package conformance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lattice-substrate/canon-fingerprint/cfperr"
	"github.com/lattice-substrate/canon-fingerprint/cfphash"
	"github.com/lattice-substrate/canon-fingerprint/vectors"
)

// Run checks every registered implementation against the suite.
//
// Preflight runs before any compute call: in strict mode every implementation
// with a concrete expectation must be registered, in subset mode every active
// implementation must be. Either failure is an *UnavailableError. Vectors are
// then evaluated concurrently by cfg.Workers workers, each compute call bounded
// by cfg.Timeout. A compute failure that is structural (the value cannot be
// canonicalized) aborts the run with an *AbortError; anything else becomes a
// failed result and the run continues.
func Run(ctx context.Context, suite *vectors.Suite, reg *Registry, cfg Config) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := cfg.logger()

	plan, err := preflight(suite, reg, cfg)
	if err != nil {
		return nil, err
	}

	report := &Report{
		SuiteDigest:     suite.Digest(),
		Mode:            cfg.mode(),
		Vectors:         suite.Len(),
		Implementations: plan.compared,
		Results:         []Result{},
		Skipped:         plan.skipped,
	}
	for _, w := range suite.Warnings() {
		report.Warnings = append(report.Warnings, w.String())
	}

	log.Info("conformance run starting",
		"vectors", suite.Len(),
		"mode", report.Mode,
		"implementations", plan.compared,
		"workers", cfg.workers(),
		"timeout", cfg.timeout())

	// One slot per vector keeps report order independent of scheduling.
	slots := make([][]Result, suite.Len())
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.workers())
	for i := 0; i < suite.Len(); i++ {
		vec := suite.Vector(i)
		g.Go(func() error {
			res, err := evaluate(gctx, vec, reg, plan.compared, cfg.timeout(), log)
			if err != nil {
				return err
			}
			slots[vec.Index] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report.Passed = true
	for _, res := range slots {
		for _, r := range res {
			report.Results = append(report.Results, r)
			if !r.Passed {
				report.Passed = false
			}
		}
	}

	if len(report.Results) == 0 {
		report.Warnings = append(report.Warnings, "no pairs compared: every expectation was pending or inactive")
		log.Warn("conformance run compared no pairs", "skipped", len(report.Skipped))
	}

	passed, failed := report.Counts()
	log.Info("conformance run finished",
		"passed", passed,
		"failed", failed,
		"skipped", len(report.Skipped),
		"ok", report.Passed)
	return report, nil
}

type runPlan struct {
	compared []string // sorted names actually compared
	skipped  []Skip
}

func preflight(suite *vectors.Suite, reg *Registry, cfg Config) (runPlan, error) {
	plan := runPlan{compared: []string{}, skipped: []Skip{}}
	active := map[string]bool{}

	switch cfg.mode() {
	case ModeSubset:
		for _, name := range cfg.Active {
			if _, ok := reg.Lookup(name); !ok {
				return runPlan{}, &UnavailableError{Implementation: name, Index: -1}
			}
			active[name] = true
		}
	default:
		for _, vec := range suite.Vectors() {
			for _, name := range vec.ExpectedImplementations() {
				if _, ok := reg.Lookup(name); !ok {
					return runPlan{}, &UnavailableError{Implementation: name, Index: vec.Index, Vector: vec.Name}
				}
				active[name] = true
			}
		}
	}

	used := map[string]bool{}
	for _, vec := range suite.Vectors() {
		for _, name := range vec.ExpectedImplementations() {
			if active[name] {
				used[name] = true
				continue
			}
			plan.skipped = append(plan.skipped, Skip{Index: vec.Index, Vector: vec.Name, Implementation: name, Reason: SkipInactive})
		}
		for _, name := range vec.Pending {
			plan.skipped = append(plan.skipped, Skip{Index: vec.Index, Vector: vec.Name, Implementation: name, Reason: SkipPending})
		}
	}
	for _, name := range reg.Names() {
		if used[name] {
			plan.compared = append(plan.compared, name)
		}
	}
	return plan, nil
}

func evaluate(ctx context.Context, vec vectors.Vector, reg *Registry, compared []string, timeout time.Duration, log *slog.Logger) ([]Result, error) {
	var out []Result
	for _, name := range compared {
		expected, ok := vec.Expected[name]
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		impl, _ := reg.Lookup(name)

		start := time.Now()
		actual, err := computeBounded(ctx, impl, vec, timeout)
		elapsed := time.Since(start)

		res := Result{Index: vec.Index, Vector: vec.Name, Implementation: name, Expected: expected}
		switch {
		case err != nil && ctx.Err() != nil:
			// The run itself is shutting down; this pair has no outcome.
			return nil, ctx.Err()
		case err != nil && isStructural(err):
			return nil, &AbortError{Index: vec.Index, Vector: vec.Name, Implementation: name, Err: err}
		case err != nil && isTimeout(err):
			res.Reason = ReasonTimeout
			res.Detail = err.Error()
		case err != nil:
			res.Reason = ReasonComputeError
			res.Detail = err.Error()
		case !cfphash.Valid(actual):
			res.Reason = ReasonComputeError
			res.Actual = actual
			res.Detail = "implementation returned a malformed fingerprint"
		case actual == expected:
			res.Passed = true
			res.Reason = ReasonMatch
			res.Actual = actual
		default:
			res.Reason = ReasonMismatch
			res.Actual = actual
		}

		if res.Passed {
			log.Debug("pair matched", "vector", vec.Name, "implementation", name, "elapsed", elapsed)
		} else {
			log.Warn("pair failed",
				"vector", vec.Name,
				"implementation", name,
				"reason", res.Reason,
				"expected", expected,
				"actual", res.Actual,
				"elapsed", elapsed)
		}
		out = append(out, res)
	}
	return out, nil
}

type computeResult struct {
	fp  string
	err error
}

// computeBounded enforces the timeout even against implementations that
// ignore their context. A stuck call is abandoned, not waited for.
func computeBounded(ctx context.Context, impl Implementation, vec vectors.Vector, timeout time.Duration) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan computeResult, 1)
	go func() {
		fp, err := impl.Compute(callCtx, &vec.Input)
		done <- computeResult{fp: fp, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return "", timeoutError(timeout, r.err)
		}
		return r.fp, r.err
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", timeoutError(timeout, callCtx.Err())
	}
}

func timeoutError(timeout time.Duration, cause error) error {
	if cfperr.Is(cause, cfperr.ExternalTimeout) {
		return cause
	}
	return cfperr.Wrap(cfperr.ExternalTimeout, -1, fmt.Sprintf("compute exceeded %s", timeout), cause)
}

func isStructural(err error) bool {
	class, ok := cfperr.ClassOf(err)
	return ok && class.Structural()
}

func isTimeout(err error) bool {
	return cfperr.Is(err, cfperr.ExternalTimeout) || errors.Is(err, context.DeadlineExceeded)
}
