package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"horse.fit/cargoscoop/internal/cli"
	"horse.fit/cargoscoop/internal/lifecycle"
)

func runLifecycle(args []string) int {
	if len(args) == 0 {
		printLifecycleUsage(os.Stderr)
		return 2
	}

	job := strings.ToLower(strings.TrimSpace(args[0]))
	switch job {
	case "help", "-h", "--help":
		printLifecycleUsage(os.Stderr)
		return 0
	case "recheck", "hourly", "daily":
	default:
		fmt.Fprintf(os.Stderr, "unknown lifecycle job: %s\n\n", args[0])
		printLifecycleUsage(os.Stderr)
		return 2
	}

	fs := flag.NewFlagSet("lifecycle "+job, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	channel := fs.String("channel", "", "Recheck only this channel (recheck)")

	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintf(os.Stderr, "lifecycle %s does not accept positional args\n", job)
		return 2
	}
	if *channel != "" && job != "recheck" {
		fmt.Fprintln(os.Stderr, "--channel only applies to recheck")
		return 2
	}

	rt, code := openRuntime("lifecycle", envLoader)
	if rt == nil {
		return code
	}
	defer rt.Close()

	ctx, cancel := signalContext()
	defer cancel()

	svc, err := wire(ctx, rt)
	if err != nil {
		rt.logger.Error().Err(err).Msg("lifecycle setup failed")
		fmt.Fprintf(os.Stderr, "Lifecycle setup failed: %v\n", err)
		return 1
	}
	defer svc.Close()

	switch job {
	case "recheck":
		failed, err := recheckChannels(ctx, svc, strings.TrimSpace(*channel), os.Stdout)
		if err != nil {
			rt.logger.Error().Err(err).Msg("recheck failed")
			fmt.Fprintf(os.Stderr, "Recheck failed: %v\n", err)
			return 1
		}
		if failed > 0 {
			return 1
		}
	case "hourly":
		report, err := svc.lifecycle.Hourly(ctx)
		if err != nil {
			rt.logger.Error().Err(err).Msg("hourly sweep failed")
			fmt.Fprintf(os.Stderr, "Hourly sweep failed: %v\n", err)
			return 1
		}
		fmt.Printf("Archived %d loads and %d vehicles, pruned %d marks, removed %d duplicates\n",
			report.LoadsArchived, report.VehiclesArchived, report.MarksPruned, report.DuplicatesRemoved)
	case "daily":
		report, err := svc.lifecycle.Daily(ctx)
		if err != nil {
			rt.logger.Error().Err(err).Msg("daily jobs failed")
			fmt.Fprintf(os.Stderr, "Daily jobs failed: %v\n", err)
			return 1
		}
		fmt.Printf("Reset %d search limits, filled %d owners, swapped %d routes, saved %d price statistics\n",
			report.LimitsReset, report.OwnersFilled, report.RoutesSwapped, report.StatisticsSaved)
	}
	return 0
}

// recheckChannels rechecks every enabled channel, or only name when set,
// through the source of its session. It returns how many channels failed.
func recheckChannels(ctx context.Context, svc *services, name string, w io.Writer) (int, error) {
	channels, err := svc.store.Channels(ctx, false)
	if err != nil {
		return 0, fmt.Errorf("list channels: %w", err)
	}

	failed, matched := 0, false
	for _, ch := range channels {
		if name != "" && ch.Name != name {
			continue
		}
		matched = true
		src, ok := svc.sources[ch.Session]
		if !ok {
			fmt.Fprintf(w, "%s: no source for session %q\n", ch.Name, ch.Session)
			failed++
			continue
		}
		report, err := svc.lifecycle.Recheck(ctx, src, ch.Name)
		if err != nil {
			fmt.Fprintf(w, "%s: %v\n", ch.Name, err)
			failed++
			continue
		}
		printRecheck(w, ch.Name, report)
	}
	if name != "" && !matched {
		return 0, fmt.Errorf("channel %q is not enabled", name)
	}
	return failed, nil
}

func printRecheck(w io.Writer, channel string, r lifecycle.RecheckReport) {
	fmt.Fprintf(w, "%s: loads %d confirmed %d retired, vehicles %d confirmed %d retired\n",
		channel, r.LoadsConfirmed, r.LoadsRetired, r.VehiclesConfirmed, r.VehiclesRetired)
}

func printLifecycleUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  cargoscoop lifecycle <recheck|hourly|daily> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Jobs:")
	fmt.Fprintln(w, "  recheck  Confirm that recent ads still exist upstream")
	fmt.Fprintln(w, "  hourly   Archive stale ads, prune marks and retire repeats")
	fmt.Fprintln(w, "  daily    Reset quotas, backfill owners, fix routes, save price statistics")
}
