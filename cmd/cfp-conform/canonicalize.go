package main

import (
	"bytes"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lattice-substrate/canon-fingerprint/cfp"
	"github.com/lattice-substrate/canon-fingerprint/cfperr"
	"github.com/lattice-substrate/canon-fingerprint/cfpfile"
	"github.com/lattice-substrate/canon-fingerprint/cfphash"
	"github.com/lattice-substrate/canon-fingerprint/cfptoken"
)

func newCanonicalizeCommand() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "canonicalize [file|-]",
		Short: "Write the canonical form of a JSON value to stdout",
		Long: `Write the canonical form of a JSON value to stdout.

With --output the canonical form is written atomically to a snapshot file
instead: the canonical bytes followed by a single LF.`,
		Args: exactInputArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			canonical, _, err := canonicalInput(cmd, args)
			if err != nil {
				return err
			}
			if output != "" {
				return cfpfile.WriteAtomic(output, cfpfile.Encode(canonical))
			}
			return writeOutput(cmd.OutOrStdout(), canonical)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write a snapshot file instead of stdout")
	return cmd
}

func newVerifyCommand() *cobra.Command {
	var quiet, snapshot bool
	cmd := &cobra.Command{
		Use:   "verify [file|-]",
		Short: "Check that input is already in canonical form",
		Args:  exactInputArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if snapshot {
				input, err := readInput(args, cmd.InOrStdin(), cfptoken.DefaultMaxInputSize+1)
				if err != nil {
					return err
				}
				if _, err := cfpfile.Verify(input); err != nil {
					return err
				}
			} else {
				canonical, input, err := canonicalInput(cmd, args)
				if err != nil {
					return err
				}
				if !bytes.Equal(input, canonical) {
					return cfperr.Newf(cfperr.NotCanonical, "input is not canonical")
				}
			}
			if !quiet {
				return writeOutput(cmd.ErrOrStderr(), []byte("ok\n"))
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress the ok message")
	cmd.Flags().BoolVar(&snapshot, "snapshot", false, "input is a snapshot file (canonical form plus one LF)")
	return cmd
}

func newFingerprintCommand() *cobra.Command {
	var (
		hash   string
		repeat int
	)
	cmd := &cobra.Command{
		Use:   "fingerprint [file|-]",
		Short: "Write the fingerprint of a JSON value to stdout",
		Args:  exactInputArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			alg, err := cfphash.ParseAlgorithm(hash)
			if err != nil {
				return err
			}
			input, err := readInput(args, cmd.InOrStdin(), cfptoken.DefaultMaxInputSize)
			if err != nil {
				return err
			}
			v, err := cfptoken.Parse(input)
			if err != nil {
				return err
			}
			fp, err := cfphash.VerifyDeterminism(repeat, alg, v)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), []byte(fmt.Sprintln(fp)))
		},
	}
	cmd.Flags().StringVar(&hash, "hash", string(cfphash.Default), "digest algorithm (sha256|blake3)")
	cmd.Flags().IntVar(&repeat, "repeat", 1, "compute the fingerprint this many times and fail if any run differs")
	return cmd
}

// canonicalInput reads, strictly parses and canonicalizes the command input.
// It returns the canonical bytes and the raw input.
func canonicalInput(cmd *cobra.Command, args []string) ([]byte, []byte, error) {
	input, err := readInput(args, cmd.InOrStdin(), cfptoken.DefaultMaxInputSize)
	if err != nil {
		return nil, nil, err
	}
	v, err := cfptoken.Parse(input)
	if err != nil {
		return nil, nil, err
	}
	canonical, err := cfp.Canonicalize(v)
	if err != nil {
		return nil, nil, err
	}
	return canonical, input, nil
}
