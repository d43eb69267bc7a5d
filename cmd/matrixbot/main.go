// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Command matrixbot runs a Matrix bot and inspects its state.
//
//	matrixbot run   --config matrixbot.yaml
//	matrixbot state --config matrixbot.yaml [show | set STATE]
//	matrixbot decode [--content TYPE] FILE...
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/matrixbot/lib/config"
	"github.com/bureau-foundation/matrixbot/lib/version"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		var usage *usageError
		if errors.As(err, &usage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// usageError marks invalid invocations, which exit with status 2.
type usageError struct {
	message string
}

func (e *usageError) Error() string { return e.message }

func usagef(format string, args ...any) error {
	return &usageError{message: fmt.Sprintf(format, args...)}
}

func run(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		printUsage(stdout)
		return usagef("a command is required")
	}

	switch args[0] {
	case "--version", "version":
		version.Print(stdout, "matrixbot")
		return nil
	case "-h", "--help", "help":
		printUsage(stdout)
		return nil
	case "run":
		return runCommand(args[1:])
	case "state":
		return stateCommand(args[1:], stdout)
	case "decode":
		return decodeCommand(args[1:], stdout)
	}
	printUsage(stdout)
	return usagef("unknown command %q", args[0])
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `matrixbot: a Matrix bot driven by a persisted lifecycle.

Usage:
  matrixbot run    [--config FILE]
  matrixbot state  [--config FILE] [show | set NEW|REGISTERED|JOINED|DELETED]
  matrixbot decode [--content TYPE] FILE...
  matrixbot --version

The config file comes from --config or $`+config.EnvVar+`.
decode reads JSON or JSON-with-comments; "-" reads stdin.
`)
}

// newFlagSet returns a flag set for a subcommand. Help output goes to
// stderr so it never mixes with command output.
func newFlagSet(name string) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("matrixbot "+name, pflag.ContinueOnError)
	flagSet.SetOutput(os.Stderr)
	return flagSet
}

// parseFlags parses args, mapping parse failures to usage errors.
// It reports false when --help was requested and the command should
// return without doing anything.
func parseFlags(flagSet *pflag.FlagSet, args []string) (bool, error) {
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return false, nil
		}
		return false, usagef("%v", err)
	}
	return true, nil
}

// loadConfig loads and validates the config named by --config, or by
// MATRIXBOT_CONFIG when the flag is empty.
func loadConfig(path string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
