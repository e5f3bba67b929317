// Command shiftauthctl runs operational tasks against a shiftauth
// deployment: schema migrations, expired-record purges and a local load
// test.
//
//	shiftauthctl migrate up|down [steps]|version
//	shiftauthctl gc
//	shiftauthctl loadtest [flags]
//	shiftauthctl benchgate -baseline old.txt -candidate new.txt
//
// Settings come from SHIFTAUTH_* environment variables; a .env file in the
// working directory is loaded first when present.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/shiftboard/shiftauth/observability"
)

const usage = `usage: shiftauthctl <command> [args]

commands:
  migrate up            apply every pending migration
  migrate down [steps]  roll back steps migrations (default 1)
  migrate version       print the current schema version
  gc [-retention d]      purge expired tokens older than the retention grace
  loadtest [flags]      signin/refresh/validate load against miniredis and sqlite
  benchgate [flags]     fail when benchmarks regress against a baseline run
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	_ = godotenv.Load()

	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	logger, err := observability.NewLogger(stderr, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	if err := observability.InitSentry(os.Getenv("SENTRY_DSN"), os.Getenv("SENTRY_ENVIRONMENT")); err != nil {
		logger.Warn("sentry init failed", "error", err)
	}
	defer observability.FlushSentry()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch args[0] {
	case "migrate":
		err = runMigrate(args[1:], stdout)
	case "gc":
		err = runGC(ctx, args[1:], logger, stdout)
	case "loadtest":
		err = runLoadtest(ctx, args[1:], stdout)
	case "benchgate":
		err = runBenchgate(args[1:], stdout)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}
	if err != nil {
		logger.Error("shiftauthctl failed", "command", args[0], "error", err)
		return 1
	}
	return 0
}

// discardLogger is used where service logs would drown command output.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
