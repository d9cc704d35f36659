package conformance

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Reason explains the outcome of one vector/implementation pair.
type Reason string

const (
	ReasonMatch        Reason = "match"
	ReasonMismatch     Reason = "mismatch"
	ReasonTimeout      Reason = "timeout"
	ReasonComputeError Reason = "compute_error"
)

// SkipReason explains why an expectation was not compared.
type SkipReason string

const (
	// SkipInactive marks an expectation for an implementation outside the
	// subset-mode active list.
	SkipInactive SkipReason = "inactive"
	// SkipPending marks a null expectation.
	SkipPending SkipReason = "pending"
)

// Result is the outcome of comparing one implementation on one vector.
type Result struct {
	Index          int    `json:"index"`
	Vector         string `json:"vector"`
	Implementation string `json:"implementation"`
	Passed         bool   `json:"passed"`
	Reason         Reason `json:"reason"`
	Expected       string `json:"expected"`
	Actual         string `json:"actual,omitempty"`
	Detail         string `json:"detail,omitempty"`
}

// Skip is an expectation the run did not compare.
type Skip struct {
	Index          int        `json:"index"`
	Vector         string     `json:"vector"`
	Implementation string     `json:"implementation"`
	Reason         SkipReason `json:"reason"`
}

// Report is the outcome of a run. Results are ordered by suite position and
// then by implementation name, whatever order the workers finished in.
type Report struct {
	SuiteDigest     string   `json:"suite_digest"`
	Mode            Mode     `json:"mode"`
	Vectors         int      `json:"vectors"`
	Implementations []string `json:"implementations"`
	Results         []Result `json:"results"`
	Skipped         []Skip   `json:"skipped"`
	Warnings        []string `json:"warnings,omitempty"`
	Passed          bool     `json:"passed"`
}

// Failures returns the failing results in report order.
func (r *Report) Failures() []Result {
	var out []Result
	for _, res := range r.Results {
		if !res.Passed {
			out = append(out, res)
		}
	}
	return out
}

// Counts returns the number of passing and failing results.
func (r *Report) Counts() (passed, failed int) {
	for _, res := range r.Results {
		if res.Passed {
			passed++
		} else {
			failed++
		}
	}
	return passed, failed
}

// WriteText writes one line per compared pair, one per skipped expectation,
// the warnings, and a summary line.
func (r *Report) WriteText(w io.Writer) error {
	var b strings.Builder
	for _, res := range r.Results {
		if res.Passed {
			fmt.Fprintf(&b, "PASS %s [%s]\n", res.Vector, res.Implementation)
			continue
		}
		fmt.Fprintf(&b, "FAIL %s [%s] %s", res.Vector, res.Implementation, res.Reason)
		if res.Expected != "" {
			fmt.Fprintf(&b, " expected=%s", res.Expected)
		}
		if res.Actual != "" {
			fmt.Fprintf(&b, " actual=%s", res.Actual)
		}
		if res.Detail != "" {
			fmt.Fprintf(&b, " detail=%q", res.Detail)
		}
		b.WriteByte('\n')
	}
	for _, s := range r.Skipped {
		fmt.Fprintf(&b, "SKIP %s [%s] %s\n", s.Vector, s.Implementation, s.Reason)
	}
	for _, warning := range r.Warnings {
		fmt.Fprintf(&b, "WARN %s\n", warning)
	}

	passed, failed := r.Counts()
	verdict := "PASS"
	if !r.Passed {
		verdict = "FAIL"
	}
	fmt.Fprintf(&b, "%s: %d vectors, %d pairs matched, %d failed, %d skipped (mode %s)\n",
		verdict, r.Vectors, passed, failed, len(r.Skipped), r.Mode)

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
