package main

import (
	"fmt"
	"io"
	"sort"
)

// printUsage prints the main usage message.
func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: docrender <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve      Run the render HTTP service")
	fmt.Fprintln(w, "  gc         Remove expired page images once")
	fmt.Fprintln(w, "  doctor     Check Chrome, Poppler, and directories")
	fmt.Fprintln(w, "  version    Show version information")
	fmt.Fprintln(w, "  help       Show help for a command")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'docrender help <command>' for details on a specific command.")
}

func printCommonFlags(w io.Writer) {
	fmt.Fprintln(w, "Common:")
	fmt.Fprintln(w, "  -c, --config <name>       Config file name or path")
	fmt.Fprintln(w, "      --log-level <s>       Log level: debug, info, warn, error")
	fmt.Fprintln(w, "      --log-format <s>      Log format: json, console")
}

// printServeUsage prints usage for the serve command.
func printServeUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: docrender serve [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run the HTTP API until SIGINT or SIGTERM.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Server:")
	fmt.Fprintln(w, "  -a, --addr <addr>         Listen address (default :8080)")
	fmt.Fprintln(w, "      --public-url <url>    Base URL of returned image links")
	fmt.Fprintln(w, "  -w, --workers <n>         Browser pool size (0 = auto)")
	fmt.Fprintln(w, "      --migrate             Apply database migrations on startup")
	fmt.Fprintln(w, "      --no-gc               Disable scheduled artifact sweeps")
	fmt.Fprintln(w)
	printCommonFlags(w)
	fmt.Fprintln(w)
	printEnvVars(w)
}

// printGCUsage prints usage for the gc command.
func printGCUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: docrender gc [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Remove page images older than the maximum age, then exit.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Sweep:")
	fmt.Fprintln(w, "  -d, --dir <path>          Artifact directory")
	fmt.Fprintln(w, "      --max-age <d>         Age threshold, e.g. 24h (0 = all)")
	fmt.Fprintln(w)
	printCommonFlags(w)
}

// printDoctorUsage prints usage for the doctor command.
func printDoctorUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: docrender doctor [--json] [-c <config>]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Check that Chrome, pdfinfo, pdftoppm, and the configured")
	fmt.Fprintln(w, "directories are usable. Exits 1 when errors are found.")
}

func printEnvVars(w io.Writer) {
	names := make([]string, 0, len(knownEnvVars))
	for name := range knownEnvVars {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w, "Environment:")
	for _, name := range names {
		fmt.Fprintf(w, "  %s\n", name)
	}
}

// runHelp prints help for a specific command.
func runHelp(args []string, env *Environment) {
	if len(args) == 0 {
		printUsage(env.Stdout)
		return
	}

	switch args[0] {
	case "serve":
		printServeUsage(env.Stdout)
	case "gc":
		printGCUsage(env.Stdout)
	case "doctor":
		printDoctorUsage(env.Stdout)
	case "version":
		fmt.Fprintln(env.Stdout, "Usage: docrender version")
		fmt.Fprintln(env.Stdout)
		fmt.Fprintln(env.Stdout, "Show version information.")
	case "help":
		fmt.Fprintln(env.Stdout, "Usage: docrender help [command]")
		fmt.Fprintln(env.Stdout)
		fmt.Fprintln(env.Stdout, "Show help for a command.")
	default:
		fmt.Fprintf(env.Stderr, "Unknown command: %s\n", args[0])
		printUsage(env.Stderr)
	}
}
