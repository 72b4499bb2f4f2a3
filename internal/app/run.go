package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"horse.fit/cargoscoop/internal/cli"
	"horse.fit/cargoscoop/internal/globaltime"
	"horse.fit/cargoscoop/internal/lifecycle"
)

// runAll is the long-running process: the crawl scheduler, the lifecycle
// jobs and the API share one wiring and stop together.
func runAll(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file").Optional()
	hf := addHTTPFlags(fs)
	noAPI := fs.Bool("no-api", false, "Do not start the API server")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if err := hf.validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	rt, code := openRuntime("run", envLoader)
	if rt == nil {
		return code
	}
	defer rt.Close()

	ctx, cancel := signalContext()
	defer cancel()

	svc, err := wire(ctx, rt)
	if err != nil {
		rt.logger.Error().Err(err).Msg("run setup failed")
		fmt.Fprintf(os.Stderr, "Run setup failed: %v\n", err)
		return 1
	}
	defer svc.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return svc.crawler.Run(gctx, rt.cfg.CrawlInterval)
	})
	g.Go(func() error {
		return runJobs(gctx, svc.lifecycle, rt.cfg.LifecycleInterval, globaltime.UTC, rt.logger)
	})
	if !*noAPI {
		host, port := hf.listen(rt)
		srv := newAPIServer(rt, svc, host, port, *hf.readTimeout, *hf.writeTimeout, *hf.shutdownTimeout)
		g.Go(func() error {
			return srv.Start(gctx)
		})
	}

	rt.logger.Info().
		Dur("crawl_interval", rt.cfg.CrawlInterval).
		Dur("lifecycle_interval", rt.cfg.LifecycleInterval).
		Bool("api", !*noAPI).
		Msg("cargoscoop running")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		rt.logger.Error().Err(err).Msg("run stopped")
		fmt.Fprintf(os.Stderr, "Run stopped: %v\n", err)
		return 1
	}
	return 0
}

// jobRunner is the part of the lifecycle manager the scheduler drives.
type jobRunner interface {
	Hourly(ctx context.Context) (lifecycle.SweepReport, error)
	Daily(ctx context.Context) (lifecycle.DailyReport, error)
}

// runJobs sweeps every interval and runs the daily jobs on the first tick
// of each new UTC day. Job failures are logged and retried next tick.
func runJobs(ctx context.Context, jobs jobRunner, interval time.Duration, now func() time.Time, logger zerolog.Logger) error {
	if interval <= 0 {
		return fmt.Errorf("lifecycle interval must be > 0")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastDaily := now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			return nil
		}

		report, err := jobs.Hourly(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("hourly sweep failed")
		} else {
			logger.Info().
				Int("loads_archived", report.LoadsArchived).
				Int("vehicles_archived", report.VehiclesArchived).
				Int64("marks_pruned", report.MarksPruned).
				Int64("duplicates_removed", report.DuplicatesRemoved).
				Msg("hourly sweep completed")
		}

		t := now()
		if !dailyDue(lastDaily, t) {
			continue
		}
		daily, err := jobs.Daily(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("daily jobs failed")
			continue
		}
		lastDaily = t
		logger.Info().
			Int64("limits_reset", daily.LimitsReset).
			Int64("owners_filled", daily.OwnersFilled).
			Int64("routes_swapped", daily.RoutesSwapped).
			Int("statistics_saved", daily.StatisticsSaved).
			Msg("daily jobs completed")
	}
}

// dailyDue reports whether t falls on a later UTC day than last.
func dailyDue(last, t time.Time) bool {
	ly, lm, ld := last.UTC().Date()
	ty, tm, td := t.UTC().Date()
	return time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC).After(time.Date(ly, lm, ld, 0, 0, 0, 0, time.UTC))
}
