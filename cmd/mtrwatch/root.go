package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Exit statuses are stable so orchestration tooling can branch on them.
const (
	exitSettings = 2 // settings failed to load or validate
	exitLockHeld = 3 // coordination lock already held elsewhere
	exitNoTarget = 4 // no monitor entrypoint resolvable
)

// exitError carries a distinct process exit status up through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitWith(code int, err error) error {
	return &exitError{code: code, err: err}
}

var rootCmd = &cobra.Command{
	Use:   "mtrwatch",
	Short: "Network path monitoring daemon",
	Long:  "mtrwatch probes network paths with mtr, records per-hop history, and classifies route and loss changes.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(watchCmd)
}
