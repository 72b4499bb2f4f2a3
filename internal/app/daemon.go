package app

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const (
	daemonUnitName = "cargoscoop-run.service"
	systemdUnitDir = "/etc/systemd/system"
	defaultBinary  = "/usr/local/bin/cargoscoop"
)

type unitOptions struct {
	User       string
	WorkDir    string
	Binary     string
	EnvFile    string
	Host       string
	Port       int
	WithoutAPI bool
}

func runDaemon(args []string) int {
	if len(args) == 0 {
		printDaemonUsage(os.Stderr)
		return 2
	}

	action := strings.ToLower(strings.TrimSpace(args[0]))
	switch action {
	case "help", "-h", "--help":
		printDaemonUsage(os.Stderr)
		return 0
	case "install":
		return runDaemonInstall(args[1:])
	case "uninstall":
		return runDaemonUninstall(args[1:])
	case "start", "stop", "restart":
		return runDaemonServiceAction(action, args[1:], true)
	case "status":
		return runDaemonServiceAction(action, args[1:], false)
	default:
		fmt.Fprintf(os.Stderr, "unknown daemon action: %s\n\n", args[0])
		printDaemonUsage(os.Stderr)
		return 2
	}
}

func printDaemonUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  cargoscoop daemon <install|uninstall|start|stop|restart|status> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "Manages %s, which runs \"cargoscoop run\" under systemd.\n", daemonUnitName)
}

func runDaemonInstall(args []string) int {
	fs := flag.NewFlagSet("daemon install", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	defaultUser := strings.TrimSpace(os.Getenv("USER"))
	if defaultUser == "" {
		defaultUser = "root"
	}
	cwd, _ := os.Getwd()

	var opts unitOptions
	fs.StringVar(&opts.User, "user", defaultUser, "Run the service as this Linux user")
	fs.StringVar(&opts.WorkDir, "workdir", cwd, "Working directory of the service")
	fs.StringVar(&opts.Binary, "binary", defaultBinary, "Path to the cargoscoop binary")
	fs.StringVar(&opts.EnvFile, "env-file", "", "Environment file loaded by systemd (default <workdir>/.env)")
	fs.StringVar(&opts.Host, "host", "0.0.0.0", "Host interface the API binds")
	fs.IntVar(&opts.Port, "port", 8080, "API port")
	fs.BoolVar(&opts.WithoutAPI, "no-api", false, "Run only the crawler and lifecycle jobs")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "daemon install does not accept positional args")
		return 2
	}
	if err := validatePort(opts.Port, "--port"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if strings.TrimSpace(opts.User) == "" {
		fmt.Fprintln(os.Stderr, "--user must not be empty")
		return 2
	}
	workDir, err := filepath.Abs(strings.TrimSpace(opts.WorkDir))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve --workdir: %v\n", err)
		return 2
	}
	opts.WorkDir = workDir
	if strings.TrimSpace(opts.EnvFile) == "" {
		opts.EnvFile = filepath.Join(workDir, ".env")
	}
	if err := requireRoot("install"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if err := writeUnitFile(daemonUnitName, buildRunUnitFile(opts)); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", daemonUnitName, err)
		return 1
	}
	if err := runSystemctl("daemon-reload"); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to reload systemd units: %v\n", err)
		return 1
	}
	if err := runSystemctl("enable", daemonUnitName); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to enable %s: %v\n", daemonUnitName, err)
		return 1
	}

	fmt.Printf("Installed %s\n", daemonUnitName)
	fmt.Println("The service is enabled on boot. Run `cargoscoop daemon start` to start it now.")
	return 0
}

func runDaemonUninstall(args []string) int {
	fs := flag.NewFlagSet("daemon uninstall", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "daemon uninstall does not accept positional args")
		return 2
	}
	if err := requireRoot("uninstall"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if err := runSystemctl("stop", daemonUnitName); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to stop %s: %v\n", daemonUnitName, err)
	}
	if err := runSystemctl("disable", daemonUnitName); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to disable %s: %v\n", daemonUnitName, err)
	}

	unitPath := filepath.Join(systemdUnitDir, daemonUnitName)
	if err := os.Remove(unitPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to remove %s: %v\n", unitPath, err)
		return 1
	}
	if err := runSystemctl("daemon-reload"); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to reload systemd units: %v\n", err)
		return 1
	}

	fmt.Printf("Removed %s\n", daemonUnitName)
	return 0
}

func runDaemonServiceAction(action string, args []string, requireRootPrivileges bool) int {
	fs := flag.NewFlagSet("daemon "+action, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintf(os.Stderr, "daemon %s does not accept positional args\n", action)
		return 2
	}
	if requireRootPrivileges {
		if err := requireRoot(action); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}

	systemctlArgs := []string{action}
	if action == "status" {
		systemctlArgs = append(systemctlArgs, "--no-pager")
	}
	systemctlArgs = append(systemctlArgs, daemonUnitName)

	if err := runSystemctl(systemctlArgs...); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to %s %s: %v\n", action, daemonUnitName, err)
		return 1
	}
	return 0
}

func validatePort(port int, flagName string) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s must be between 1 and 65535", flagName)
	}
	return nil
}

func requireRoot(action string) error {
	if os.Geteuid() == 0 {
		return nil
	}
	return fmt.Errorf("daemon %s requires root privileges; run with sudo: sudo cargoscoop daemon %s", action, action)
}

// buildRunUnitFile renders the unit. The leading "-" keeps systemd from
// failing when the environment file is absent.
func buildRunUnitFile(opts unitOptions) string {
	execStart := fmt.Sprintf("ExecStart=%s run --host %s --port %d", opts.Binary, opts.Host, opts.Port)
	if opts.WithoutAPI {
		execStart = fmt.Sprintf("ExecStart=%s run --no-api", opts.Binary)
	}
	lines := []string{
		"[Unit]",
		"Description=cargoscoop freight ad ingestion",
		"After=network-online.target postgresql.service redis.service",
		"Wants=network-online.target",
		"",
		"[Service]",
		"Type=simple",
		"User=" + opts.User,
		"WorkingDirectory=" + opts.WorkDir,
		"EnvironmentFile=-" + opts.EnvFile,
		execStart,
		"Restart=on-failure",
		"RestartSec=5",
		"KillSignal=SIGTERM",
		"TimeoutStopSec=30",
		"",
		"[Install]",
		"WantedBy=multi-user.target",
		"",
	}
	return strings.Join(lines, "\n")
}

func writeUnitFile(name, content string) error {
	unitPath := filepath.Join(systemdUnitDir, name)
	return os.WriteFile(unitPath, []byte(content), 0o644)
}

func runSystemctl(args ...string) error {
	cmd := exec.Command("systemctl", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("systemctl %s: %w", strings.Join(args, " "), err)
	}
	return nil
}
