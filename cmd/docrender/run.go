package main

import (
	"context"
	"errors"
	"fmt"

	flag "github.com/spf13/pflag"
)

// runMain dispatches a subcommand and returns the process exit code.
func runMain(args []string, env *Environment) int {
	if len(args) < 2 {
		printUsage(env.Stderr)
		return ExitUsage
	}

	warnUnknownEnvVars(env.Stderr)

	cmd, rest := args[1], args[2:]
	var err error
	switch cmd {
	case "serve":
		ctx, stop := notifyContext(context.Background())
		defer stop()
		err = runServe(ctx, rest, env)
	case "gc":
		err = runGC(rest, env)
	case "doctor":
		return runDoctorCmd(rest, env)
	case "version", "--version":
		fmt.Fprintf(env.Stdout, "docrender %s\n", Version)
		return ExitSuccess
	case "help", "-h", "--help":
		runHelp(rest, env)
		return ExitSuccess
	default:
		fmt.Fprintf(env.Stderr, "Unknown command: %s\n", cmd)
		printUsage(env.Stderr)
		return ExitUsage
	}

	if errors.Is(err, flag.ErrHelp) {
		runHelp([]string{cmd}, env)
		return ExitSuccess
	}
	if err != nil {
		fmt.Fprintf(env.Stderr, "error: %v%s\n", err, errorHint(err))
		return exitCodeFor(err)
	}
	return ExitSuccess
}
