package crawler

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"horse.fit/cargoscoop/internal/db"
)

// CycleReport collects the channel passes of one crawl cycle.
type CycleReport struct {
	Channels []Report
	Failed   int
}

// RunOnce crawls every enabled channel. Sessions run in parallel, the
// channels of one session one after another. A failing channel is logged
// and counted without stopping the others.
func (c *Crawler) RunOnce(ctx context.Context) (CycleReport, error) {
	channels, err := c.store.Channels(ctx, false)
	if err != nil {
		return CycleReport{}, fmt.Errorf("list channels: %w", err)
	}

	bySession := map[string][]db.Channel{}
	var sessions []string
	for _, ch := range channels {
		if _, ok := bySession[ch.Session]; !ok {
			sessions = append(sessions, ch.Session)
		}
		bySession[ch.Session] = append(bySession[ch.Session], ch)
	}

	results := make([][]Report, len(sessions))
	failed := make([]int, len(sessions))
	g, gctx := errgroup.WithContext(ctx)
	for i, session := range sessions {
		g.Go(func() error {
			for _, ch := range bySession[session] {
				if err := gctx.Err(); err != nil {
					return err
				}
				report, err := c.CrawlChannel(gctx, ch)
				if err != nil {
					failed[i]++
					c.logger.Error().Err(err).Str("channel", ch.Name).Str("session", session).Msg("channel crawl failed")
				}
				results[i] = append(results[i], report)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return CycleReport{}, err
	}

	var out CycleReport
	for i := range sessions {
		out.Channels = append(out.Channels, results[i]...)
		out.Failed += failed[i]
	}
	return out, nil
}

// Run crawls immediately and then every interval until ctx ends.
func (c *Crawler) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("crawl interval must be > 0")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		started := time.Now()
		report, err := c.RunOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error().Err(err).Msg("crawl cycle failed")
		} else {
			c.logger.Info().
				Int("channels", len(report.Channels)).
				Int("failed", report.Failed).
				Dur("took", time.Since(started)).
				Msg("crawl cycle completed")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
