package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fmueller/voxchunk/internal/cli"
	"github.com/spf13/cobra"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	// Ctrl-C cancels the command context; in-flight chunk uploads are
	// aborted cooperatively instead of being killed mid-request.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := cli.NewRootCmd()
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if shouldPrintUsageHint(err) {
			fmt.Fprintf(os.Stderr, "Run '%s --help' for usage.\n", helpHintTarget(cmd, args))
		}
		return 1
	}
	return 0
}

// Cobra reports bad invocations only through error strings, so the hint
// decision has to pattern-match them.
var usageErrorMarkers = []string{
	"unknown command",
	"unknown flag",
	"unknown shorthand flag",
	"accepts ",
	"requires at least",
	"requires at most",
	"requires between",
	"required flag",
	"missing required",
}

// shouldPrintUsageHint distinguishes malformed invocations, which deserve
// a --help pointer, from runtime failures, which do not.
func shouldPrintUsageHint(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(err.Error())
	for _, marker := range usageErrorMarkers {
		if strings.Contains(message, marker) {
			return true
		}
	}
	return false
}

// helpHintTarget resolves the deepest subcommand the arguments reached,
// so the hint names `voxchunk transcribe --help` rather than the root.
func helpHintTarget(root *cobra.Command, args []string) string {
	if root == nil {
		return "voxchunk"
	}
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		if found, _, err := root.Find(args); err == nil && found != nil {
			return found.CommandPath()
		}
	}
	return root.CommandPath()
}
