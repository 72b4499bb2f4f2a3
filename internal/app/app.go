package app

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage(os.Stderr)
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage(os.Stderr)
		return 0
	case "health":
		return runHealth(args[1:])
	case "crawl":
		return runCrawl(args[1:])
	case "lifecycle":
		return runLifecycle(args[1:])
	case "resolve":
		return runResolve(args[1:])
	case "run":
		return runAll(args[1:])
	case "serve":
		return runServe(args[1:])
	case "daemon":
		return runDaemon(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage(os.Stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "cargoscoop CLI")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  cargoscoop <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  health     Verify database and cache connectivity")
	fmt.Fprintln(w, "  crawl      Crawl channels (--once for a single cycle)")
	fmt.Fprintln(w, "  lifecycle  Run a lifecycle job: recheck, hourly or daily")
	fmt.Fprintln(w, "  resolve    Resolve a place, route or goods text against the catalog")
	fmt.Fprintln(w, "  run        Crawl, run lifecycle jobs and serve the API in one process")
	fmt.Fprintln(w, "  serve      Start the Echo API server")
	fmt.Fprintln(w, "  daemon     Manage the systemd service (install|uninstall|start|stop|restart|status)")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Use \"cargoscoop <command> -h\" for command-specific flags.")
}
