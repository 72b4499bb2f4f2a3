package crawler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"horse.fit/cargoscoop/internal/cache"
	"horse.fit/cargoscoop/internal/db"
	"horse.fit/cargoscoop/internal/dedup"
	"horse.fit/cargoscoop/internal/langdetect"
	"horse.fit/cargoscoop/internal/telegram"
	"horse.fit/cargoscoop/internal/textnorm"
)

const maxRunErrorLength = 4000

// Report summarizes one channel pass.
type Report struct {
	Channel    string
	Status     string
	Reason     string
	Fetched    int
	Kept       int
	Loads      int
	Vehicles   int
	Checkpoint string
}

// CrawlChannel runs one pass over ch: fetch the messages after the
// checkpoint, gate them, extract and resolve the survivors and advance the
// checkpoint. Every pass is recorded in the run ledger.
func (c *Crawler) CrawlChannel(ctx context.Context, ch db.Channel) (Report, error) {
	report := Report{Channel: ch.Name, Status: StatusFailed}
	src, ok := c.sources[ch.Session]
	if !ok {
		return report, fmt.Errorf("channel %s: no source for session %q", ch.Name, ch.Session)
	}
	log := c.logger.With().Str("channel", ch.Name).Str("session", ch.Session).Logger()

	if c.cache != nil {
		key := "crawl:" + ch.Name
		if err := cache.Acquire(ctx, c.cache, key, lockTTL, 0); err != nil {
			if errors.Is(err, cache.ErrLockTimeout) {
				log.Debug().Msg("channel is being crawled elsewhere")
				report.Status, report.Reason = StatusSkipped, "locked"
				return report, nil
			}
			return report, err
		}
		defer func() {
			if err := cache.Release(context.WithoutCancel(ctx), c.cache, key); err != nil {
				log.Warn().Err(err).Msg("release crawl lock")
			}
		}()
		if c.backingOff(ctx, ch.Name) {
			log.Info().Msg("channel failed repeatedly, skipping this cycle")
			report.Status, report.Reason = StatusSkipped, "backoff"
			return report, nil
		}
	}

	started := time.Now()
	run := &db.CrawlRun{ID: uuid.NewString(), Channel: ch.Name, Status: StatusRunning, StartedAt: c.now()}
	if err := c.store.StartRun(ctx, run); err != nil {
		return report, err
	}

	report, crawlErr := c.crawl(ctx, src, ch, log)
	c.finishRun(ctx, run, report, crawlErr, log)
	c.observeCrawl(ch.Name, report.Status, time.Since(started))
	c.recordFailure(ctx, ch.Name, crawlErr, log)
	if crawlErr != nil {
		return report, fmt.Errorf("crawl %s: %w", ch.Name, crawlErr)
	}

	log.Info().
		Str("status", report.Status).
		Str("reason", report.Reason).
		Int("fetched", report.Fetched).
		Int("kept", report.Kept).
		Int("loads", report.Loads).
		Int("vehicles", report.Vehicles).
		Str("checkpoint", report.Checkpoint).
		Msg("channel crawled")

	if c.rechecker != nil {
		rr, err := c.rechecker.Recheck(ctx, src, ch.Name)
		if err != nil {
			log.Warn().Err(err).Msg("recheck failed")
		} else {
			log.Debug().
				Int("loads_confirmed", rr.LoadsConfirmed).
				Int("loads_retired", rr.LoadsRetired).
				Int("vehicles_confirmed", rr.VehiclesConfirmed).
				Int("vehicles_retired", rr.VehiclesRetired).
				Msg("channel rechecked")
		}
	}
	return report, nil
}

func (c *Crawler) crawl(ctx context.Context, src Source, ch db.Channel, log zerolog.Logger) (Report, error) {
	report := Report{Channel: ch.Name, Status: StatusSkipped}
	now := c.now()

	msgs, err := src.Messages(ctx, ch.Name, ParseCheckpoint(ch.LastMessageID), PageSize(now))
	if err != nil {
		report.Status = StatusFailed
		return report, err
	}
	report.Fetched = len(msgs)
	if len(msgs) < MinMessages {
		report.Reason = "too_few_messages"
		return report, nil
	}

	if ch.Title == nil || *ch.Title == "" {
		c.fillTitle(ctx, src, ch, log)
	}

	blocklist, err := c.store.Blocklist(ctx)
	if err != nil {
		report.Status = StatusFailed
		return report, err
	}

	newest := newestID(msgs)
	msgs = uniqueMessages(msgs)
	senders := map[int64]*telegram.Sender{}

	var loads, vehicles []dedup.Source
	seen := map[string]bool{}
	for _, msg := range msgs {
		msg.Sender = c.profile(ctx, src, msg.Sender, senders, log)
		p := textnorm.Prepare(msg.Normalized(), now, blocklist)
		c.observeMessage(ch.Name, p.Verdict)
		if p.Verdict == textnorm.RejectedDeletedAccount {
			continue
		}

		item := dedup.Source{
			Channel:   ch.Name,
			MessageID: msg.ID,
			Published: msg.Sent(),
			Sender:    p.Sender,
			Text:      p.Text,
			Hashes:    p.Hashes,
		}
		if c.recalled(ctx, ch, item, log) {
			continue
		}
		if !p.Accepted() || seen[p.Hashes.Text] {
			continue
		}
		item.Language = string(langdetect.Detect(p.Text))

		switch {
		case p.Kind == textnorm.KindVehicle && ch.CrawlVehicles:
			vehicles = append(vehicles, item)
		case p.Kind == textnorm.KindLoad && ch.CrawlLoads:
			loads = append(loads, item)
		default:
			continue
		}
		seen[p.Hashes.Text] = true
	}
	report.Kept = len(loads) + len(vehicles)

	if ch.CrawlLoads && len(loads) < MinLoadTexts {
		report.Reason = "too_few_loads"
		return report, nil
	}

	var errs []error
	if len(loads) > 0 {
		n, err := c.extractLoads(ctx, loads, log)
		report.Loads = n
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(vehicles) > 0 {
		n, err := c.extractVehicles(ctx, vehicles, log)
		report.Vehicles = n
		if err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		report.Status = StatusFailed
		return report, err
	}

	report.Checkpoint = strconv.FormatInt(newest, 10)
	if err := c.store.AdvanceCheckpoint(ctx, ch.ID, report.Checkpoint, c.now()); err != nil {
		report.Status = StatusFailed
		return report, err
	}
	report.Status = StatusCompleted
	return report, nil
}

// recalled reports whether the memo already knows the text. Vehicles are
// looked up before loads.
func (c *Crawler) recalled(ctx context.Context, ch db.Channel, src dedup.Source, log zerolog.Logger) bool {
	kinds := make([]textnorm.Kind, 0, 2)
	if ch.CrawlVehicles {
		kinds = append(kinds, textnorm.KindVehicle)
	}
	if ch.CrawlLoads {
		kinds = append(kinds, textnorm.KindLoad)
	}
	for _, kind := range kinds {
		_, ok, err := c.resolver.Recall(ctx, kind, src)
		if err != nil {
			log.Warn().Err(err).Int64("message_id", src.MessageID).Str("ad_kind", string(kind)).Msg("memo lookup failed")
			continue
		}
		if ok {
			return true
		}
	}
	return false
}

// extractLoads sends the texts to extraction and resolves every extracted
// load. It returns the number of records inserted or merged.
func (c *Crawler) extractLoads(ctx context.Context, items []dedup.Source, log zerolog.Logger) (int, error) {
	texts := make([]string, len(items))
	for i, it := range items {
		texts[i] = it.Text
	}
	results, extractErr := c.extractor.ExtractLoads(ctx, texts)
	if extractErr != nil {
		log.Error().Err(extractErr).Str("ad_kind", string(textnorm.KindLoad)).Int("results", len(results)).Msg("load extraction incomplete")
	}

	saved := 0
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(items) {
			continue
		}
		src := items[r.Index]
		var ids []int64
		if r.Err() == nil {
			for _, l := range r.Loads {
				out, err := c.resolver.ResolveLoad(ctx, dedup.LoadCandidate{Source: src, Load: l})
				if err != nil {
					log.Error().Err(err).Int64("message_id", src.MessageID).Str("ad_kind", string(textnorm.KindLoad)).Msg("resolve load")
					continue
				}
				ids = append(ids, out.IDs...)
				if out.Decision == dedup.DecisionInsert || out.Decision == dedup.DecisionMerge {
					saved++
				}
			}
		}
		if err := c.resolver.Remember(ctx, textnorm.KindLoad, src.Hashes.Text, ids); err != nil {
			log.Warn().Err(err).Int64("message_id", src.MessageID).Msg("remember load text")
		}
	}
	return saved, extractErr
}

func (c *Crawler) extractVehicles(ctx context.Context, items []dedup.Source, log zerolog.Logger) (int, error) {
	texts := make([]string, len(items))
	for i, it := range items {
		texts[i] = it.Text
	}
	results, extractErr := c.extractor.ExtractVehicles(ctx, texts)
	if extractErr != nil {
		log.Error().Err(extractErr).Str("ad_kind", string(textnorm.KindVehicle)).Int("results", len(results)).Msg("vehicle extraction incomplete")
	}

	saved := 0
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(items) {
			continue
		}
		src := items[r.Index]
		var ids []int64
		for _, v := range r.Vehicles {
			out, err := c.resolver.ResolveVehicle(ctx, dedup.VehicleCandidate{Source: src, Vehicle: v})
			if err != nil {
				log.Error().Err(err).Int64("message_id", src.MessageID).Str("ad_kind", string(textnorm.KindVehicle)).Msg("resolve vehicle")
				continue
			}
			ids = append(ids, out.IDs...)
			if out.Decision == dedup.DecisionInsert || out.Decision == dedup.DecisionMerge {
				saved++
			}
		}
		if err := c.resolver.Remember(ctx, textnorm.KindVehicle, src.Hashes.Text, ids); err != nil {
			log.Warn().Err(err).Int64("message_id", src.MessageID).Msg("remember vehicle text")
		}
	}
	return saved, extractErr
}

func (c *Crawler) fillTitle(ctx context.Context, src Source, ch db.Channel, log zerolog.Logger) {
	info, err := src.Channel(ctx, ch.Name)
	if err != nil {
		log.Warn().Err(err).Msg("fetch channel title")
		return
	}
	if info.Title == "" {
		return
	}
	if err := c.store.SetChannelTitle(ctx, ch.ID, info.Title); err != nil {
		log.Warn().Err(err).Msg("store channel title")
	}
}

// profile completes a sender the gateway returned without a name, once per
// sender and pass.
func (c *Crawler) profile(ctx context.Context, src Source, s *telegram.Sender, cached map[int64]*telegram.Sender, log zerolog.Logger) *telegram.Sender {
	if s == nil || s.ID == 0 || s.FirstName != "" || s.Username != "" {
		return s
	}
	if p, ok := cached[s.ID]; ok {
		return p
	}
	full, err := src.User(ctx, s.ID)
	if err != nil {
		log.Debug().Err(err).Int64("sender_id", s.ID).Msg("fetch sender profile")
		cached[s.ID] = s
		return s
	}
	if full.ID == 0 {
		full.ID = s.ID
	}
	cached[s.ID] = &full
	return &full
}

func (c *Crawler) finishRun(ctx context.Context, run *db.CrawlRun, report Report, crawlErr error, log zerolog.Logger) {
	finished := c.now()
	run.Status = report.Status
	run.FinishedAt = &finished
	run.MessagesFetched = report.Fetched
	run.MessagesKept = report.Kept
	run.LoadsSaved = report.Loads
	run.VehiclesSaved = report.Vehicles
	run.Checkpoint = report.Checkpoint
	if crawlErr != nil {
		msg := crawlErr.Error()
		if len(msg) > maxRunErrorLength {
			msg = msg[:maxRunErrorLength]
		}
		run.ErrorMessage = &msg
	}
	if err := c.store.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		log.Warn().Err(err).Str("run_id", run.ID).Msg("finish crawl run")
	}
}

func failureKey(channel string) string { return "crawl:failures:" + channel }

func (c *Crawler) backingOff(ctx context.Context, channel string) bool {
	raw, ok, err := c.cache.Get(ctx, failureKey(channel))
	if err != nil || !ok {
		return false
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	return err == nil && n >= maxFailures
}

// recordFailure counts consecutive failed passes and clears the count on
// success.
func (c *Crawler) recordFailure(ctx context.Context, channel string, crawlErr error, log zerolog.Logger) {
	if c.cache == nil {
		return
	}
	var err error
	if crawlErr == nil {
		err = c.cache.Delete(ctx, failureKey(channel))
	} else {
		_, err = c.cache.Incr(ctx, failureKey(channel), failureTTL)
	}
	if err != nil {
		log.Warn().Err(err).Msg("update failure counter")
	}
}

// uniqueMessages drops repeated ids and empty texts and orders the rest
// newest first.
func uniqueMessages(msgs []telegram.Message) []telegram.Message {
	seen := make(map[int64]bool, len(msgs))
	out := make([]telegram.Message, 0, len(msgs))
	for _, m := range msgs {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		if m.Text == "" {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func newestID(msgs []telegram.Message) int64 {
	var newest int64
	for _, m := range msgs {
		if m.ID > newest {
			newest = m.ID
		}
	}
	return newest
}
