package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"horse.fit/cargoscoop/internal/cli"
	"horse.fit/cargoscoop/internal/crawler"
)

func runCrawl(args []string) int {
	fs := flag.NewFlagSet("crawl", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	once := fs.Bool("once", false, "Run a single crawl cycle and exit")
	interval := fs.Duration("interval", 0, "Override CRAWL_INTERVAL")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "crawl does not accept positional args")
		return 2
	}
	if *interval < 0 {
		fmt.Fprintln(os.Stderr, "--interval must be >= 0")
		return 2
	}

	rt, code := openRuntime("crawl", envLoader)
	if rt == nil {
		return code
	}
	defer rt.Close()

	ctx, cancel := signalContext()
	defer cancel()

	svc, err := wire(ctx, rt)
	if err != nil {
		rt.logger.Error().Err(err).Msg("crawl setup failed")
		fmt.Fprintf(os.Stderr, "Crawl setup failed: %v\n", err)
		return 1
	}
	defer svc.Close()

	if *once {
		return crawlOnce(ctx, rt, svc)
	}

	every := rt.cfg.CrawlInterval
	if *interval > 0 {
		every = *interval
	}
	if err := svc.crawler.Run(ctx, every); err != nil {
		rt.logger.Error().Err(err).Msg("crawler stopped")
		fmt.Fprintf(os.Stderr, "Crawler stopped: %v\n", err)
		return 1
	}
	return 0
}

func crawlOnce(ctx context.Context, rt *runtime, svc *services) int {
	started := time.Now()
	report, err := svc.crawler.RunOnce(ctx)
	if err != nil {
		rt.logger.Error().Err(err).Msg("crawl cycle failed")
		fmt.Fprintf(os.Stderr, "Crawl failed: %v\n", err)
		return 1
	}
	printCycle(os.Stdout, report, time.Since(started))
	if report.Failed > 0 {
		return 1
	}
	return 0
}

func printCycle(w io.Writer, report crawler.CycleReport, took time.Duration) {
	fmt.Fprintf(w, "Crawled %d channels in %s (%d failed)\n", len(report.Channels), took.Round(time.Millisecond), report.Failed)
	if len(report.Channels) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CHANNEL\tSTATUS\tFETCHED\tKEPT\tLOADS\tVEHICLES\tCHECKPOINT\tREASON")
	for _, ch := range report.Channels {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			ch.Channel, ch.Status, ch.Fetched, ch.Kept, ch.Loads, ch.Vehicles, ch.Checkpoint, ch.Reason)
	}
	_ = tw.Flush()
}
