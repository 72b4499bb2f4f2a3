package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"horse.fit/cargoscoop/internal/cache"
	"horse.fit/cargoscoop/internal/db"
	"horse.fit/cargoscoop/internal/dedup"
	"horse.fit/cargoscoop/internal/extraction"
	"horse.fit/cargoscoop/internal/telegram"
	"horse.fit/cargoscoop/internal/textnorm"
)

// 15:00 in the operations zone.
var testNow = time.Date(2024, time.August, 21, 10, 0, 0, 0, time.UTC)

var ali = &telegram.Sender{ID: 77, FirstName: "Ali"}

func loadText(n int) string {
	return fmt.Sprintf("Toshkentdan Samarqandga 20 tonna un, tent kerak. Tel 901234567 #%d", n)
}

func vehicleText(n int) string {
	return fmt.Sprintf("Fura bor Toshkentdan Moskvaga yuk kerak 901112233 #%d", n)
}

func message(id int64, text string) telegram.Message {
	return telegram.Message{ID: id, Text: text, Date: testNow.Add(-time.Hour).Unix(), Sender: ali}
}

type fakeSource struct {
	mu       sync.Mutex
	messages []telegram.Message
	err      error
	title    string
	minID    int64
	limit    int
	users    int
}

func (f *fakeSource) Messages(_ context.Context, _ string, minID int64, limit int) ([]telegram.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.minID, f.limit = minID, limit
	return f.messages, f.err
}

func (f *fakeSource) MessagesByID(context.Context, string, []int64) ([]telegram.Message, error) {
	return nil, nil
}

func (f *fakeSource) Channel(_ context.Context, channel string) (telegram.Channel, error) {
	return telegram.Channel{ID: channel, Title: f.title}, nil
}

func (f *fakeSource) User(_ context.Context, id int64) (telegram.Sender, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users++
	return telegram.Sender{ID: id, FirstName: "Bobur", Username: "bobur_yuk"}, nil
}

type fakeStore struct {
	mu          sync.Mutex
	channels    []db.Channel
	titles      map[int64]string
	checkpoints map[int64]string
	runs        map[string]db.CrawlRun
}

func newFakeStore(channels ...db.Channel) *fakeStore {
	return &fakeStore{
		channels:    channels,
		titles:      map[int64]string{},
		checkpoints: map[int64]string{},
		runs:        map[string]db.CrawlRun{},
	}
}

func (f *fakeStore) Channels(context.Context, bool) ([]db.Channel, error) {
	return f.channels, nil
}

func (f *fakeStore) SetChannelTitle(_ context.Context, id int64, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titles[id] = title
	return nil
}

func (f *fakeStore) AdvanceCheckpoint(_ context.Context, id int64, last string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkpoints[id] = last
	return nil
}

func (f *fakeStore) StartRun(_ context.Context, run *db.CrawlRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[run.ID] = *run
	return nil
}

func (f *fakeStore) FinishRun(_ context.Context, run *db.CrawlRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[run.ID] = *run
	return nil
}

func (f *fakeStore) Blocklist(context.Context) (*textnorm.Blocklist, error) {
	return textnorm.NewBlocklist(nil, []string{"reklama"}), nil
}

func (f *fakeStore) onlyRun(t *testing.T) db.CrawlRun {
	t.Helper()
	if len(f.runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(f.runs))
	}
	for _, r := range f.runs {
		return r
	}
	return db.CrawlRun{}
}

// fakeExtractor returns one load per text; texts ending in " #3" come back
// as low quality.
type fakeExtractor struct {
	mu           sync.Mutex
	loadTexts    []string
	vehicleTexts []string
	err          error
}

func (f *fakeExtractor) ExtractLoads(_ context.Context, texts []string) ([]extraction.LoadResult, error) {
	f.mu.Lock()
	f.loadTexts = append(f.loadTexts, texts...)
	f.mu.Unlock()
	var out []extraction.LoadResult
	for i, text := range texts {
		if f.err != nil && i%2 == 1 {
			continue
		}
		if strings.HasSuffix(text, " #3") {
			out = append(out, extraction.LoadResult{Index: i, Loads: []extraction.Load{{}, {}}, LowQuality: true})
			continue
		}
		out = append(out, extraction.LoadResult{Index: i, Loads: []extraction.Load{{Origin: "Toshkent", Destination: "Samarqand"}}})
	}
	return out, f.err
}

func (f *fakeExtractor) ExtractVehicles(_ context.Context, texts []string) ([]extraction.VehicleResult, error) {
	f.mu.Lock()
	f.vehicleTexts = append(f.vehicleTexts, texts...)
	f.mu.Unlock()
	out := make([]extraction.VehicleResult, len(texts))
	for i := range texts {
		out[i] = extraction.VehicleResult{Index: i, Vehicles: []extraction.Vehicle{{Origin: "Toshkent"}}}
	}
	return out, nil
}

type fakeResolver struct {
	mu         sync.Mutex
	known      map[string]bool
	remembered map[string][]int64
	senders    []string
	nextID     int64
}

func newFakeResolver(knownTexts ...string) *fakeResolver {
	r := &fakeResolver{known: map[string]bool{}, remembered: map[string][]int64{}, nextID: 100}
	for _, text := range knownTexts {
		r.known[textnorm.HashMessage(text).Text] = true
	}
	return r
}

func (f *fakeResolver) Recall(_ context.Context, _ textnorm.Kind, src dedup.Source) (dedup.Outcome, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.known[src.Hashes.Text] {
		return dedup.Outcome{Decision: dedup.DecisionMemo}, true, nil
	}
	return dedup.Outcome{}, false, nil
}

func (f *fakeResolver) Remember(_ context.Context, kind textnorm.Kind, hash string, ids []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remembered[string(kind)+":"+hash] = ids
	return nil
}

func (f *fakeResolver) insert(src dedup.Source) dedup.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	if src.Sender != nil {
		f.senders = append(f.senders, src.Sender.FirstName)
	}
	return dedup.Outcome{Decision: dedup.DecisionInsert, IDs: []int64{f.nextID}}
}

func (f *fakeResolver) ResolveLoad(_ context.Context, c dedup.LoadCandidate) (dedup.Outcome, error) {
	return f.insert(c.Source), nil
}

func (f *fakeResolver) ResolveVehicle(_ context.Context, c dedup.VehicleCandidate) (dedup.Outcome, error) {
	return f.insert(c.Source), nil
}

func newTestCrawler(store *fakeStore, sources map[string]Source, ex *fakeExtractor, res *fakeResolver, opts ...Option) *Crawler {
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return New(store, sources, ex, res, opts...)
}

func TestParseCheckpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want int64
	}{
		{"5120", 5120},
		{"5120a", 5120},
		{" 77 ", 77},
		{"", 0},
		{"abc", 0},
		{"-4", 0},
	}
	for _, tt := range tests {
		if got := ParseCheckpoint(tt.raw); got != tt.want {
			t.Fatalf("ParseCheckpoint(%q) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}

func TestPageSize(t *testing.T) {
	t.Parallel()

	if got := PageSize(testNow); got != 100 {
		t.Fatalf("day PageSize = %d, want 100", got)
	}
	night := time.Date(2024, time.August, 20, 22, 30, 0, 0, time.UTC) // 03:30 GMT+5
	if got := PageSize(night); got != 40 {
		t.Fatalf("night PageSize = %d, want 40", got)
	}
}

func TestCrawlChannel_ProcessesPageAndAdvancesCheckpoint(t *testing.T) {
	t.Parallel()

	msgs := []telegram.Message{}
	for i := 1; i <= 8; i++ {
		msgs = append(msgs, message(int64(5100+i), loadText(i)))
	}
	msgs = append(msgs,
		message(5108, loadText(8)),
		message(5109, loadText(1)),
		message(5110, ""),
		telegram.Message{ID: 5111, Text: loadText(11), Date: testNow.Unix(), Sender: &telegram.Sender{ID: 9, FirstName: "Deleted Account"}},
		message(5112, vehicleText(1)),
	)

	ch := db.Channel{ID: 1, Name: "yuk_markazi", Session: "main", LastMessageID: "5100a", CrawlLoads: true}
	store := newFakeStore(ch)
	src := &fakeSource{messages: msgs, title: "Yuk markazi"}
	ex := &fakeExtractor{}
	res := newFakeResolver()
	c := newTestCrawler(store, map[string]Source{"main": src}, ex, res)

	report, err := c.CrawlChannel(context.Background(), ch)
	if err != nil {
		t.Fatalf("CrawlChannel() error = %v", err)
	}
	if src.minID != 5100 || src.limit != 100 {
		t.Fatalf("fetched after %d limit %d, want 5100 and 100", src.minID, src.limit)
	}

	want := Report{Channel: "yuk_markazi", Status: StatusCompleted, Fetched: 13, Kept: 8, Loads: 7, Checkpoint: "5112"}
	if diff := cmp.Diff(want, report); diff != "" {
		t.Fatalf("report mismatch (-want +got):\n%s", diff)
	}
	if len(ex.loadTexts) != 8 || len(ex.vehicleTexts) != 0 {
		t.Fatalf("extracted %d load and %d vehicle texts", len(ex.loadTexts), len(ex.vehicleTexts))
	}
	if got := store.checkpoints[1]; got != "5112" {
		t.Fatalf("checkpoint = %q, want 5112", got)
	}
	if got := store.titles[1]; got != "Yuk markazi" {
		t.Fatalf("title = %q", got)
	}
	if len(res.remembered) != 8 {
		t.Fatalf("remembered %d texts, want 8", len(res.remembered))
	}
	lowKey := string(textnorm.KindLoad) + ":" + textnorm.HashMessage(loadText(3)).Text
	if ids, ok := res.remembered[lowKey]; !ok || len(ids) != 0 {
		t.Fatalf("low quality text remembered as %v (%t), want no ids", ids, ok)
	}

	run := store.onlyRun(t)
	if run.Status != StatusCompleted || run.LoadsSaved != 7 || run.Checkpoint != "5112" || run.FinishedAt == nil {
		t.Fatalf("run = %+v", run)
	}
}

func TestCrawlChannel_TooFewLoadTextsKeepsCheckpoint(t *testing.T) {
	t.Parallel()

	var msgs []telegram.Message
	var known []string
	for i := 1; i <= 10; i++ {
		msgs = append(msgs, message(int64(i), loadText(i)))
		if i > 3 {
			known = append(known, loadText(i))
		}
	}
	ch := db.Channel{ID: 2, Name: "gruz", Session: "main", LastMessageID: "0", CrawlLoads: true, Title: ptr("Gruz")}
	store := newFakeStore(ch)
	ex := &fakeExtractor{}
	c := newTestCrawler(store, map[string]Source{"main": &fakeSource{messages: msgs}}, ex, newFakeResolver(known...))

	report, err := c.CrawlChannel(context.Background(), ch)
	if err != nil {
		t.Fatalf("CrawlChannel() error = %v", err)
	}
	if report.Status != StatusSkipped || report.Reason != "too_few_loads" || report.Kept != 3 {
		t.Fatalf("report = %+v", report)
	}
	if len(ex.loadTexts) != 0 {
		t.Fatalf("extraction ran on %d texts", len(ex.loadTexts))
	}
	if _, ok := store.checkpoints[2]; ok {
		t.Fatalf("checkpoint advanced")
	}
	if len(store.titles) != 0 {
		t.Fatalf("title refetched for a titled channel")
	}
}

func TestCrawlChannel_TooFewMessages(t *testing.T) {
	t.Parallel()

	msgs := []telegram.Message{message(1, loadText(1)), message(2, loadText(2))}
	ch := db.Channel{ID: 3, Name: "quiet", Session: "main", CrawlLoads: true}
	store := newFakeStore(ch)
	c := newTestCrawler(store, map[string]Source{"main": &fakeSource{messages: msgs}}, &fakeExtractor{}, newFakeResolver())

	report, err := c.CrawlChannel(context.Background(), ch)
	if err != nil {
		t.Fatalf("CrawlChannel() error = %v", err)
	}
	if report.Status != StatusSkipped || report.Reason != "too_few_messages" {
		t.Fatalf("report = %+v", report)
	}
	if run := store.onlyRun(t); run.Status != StatusSkipped || run.MessagesFetched != 2 {
		t.Fatalf("run = %+v", run)
	}
}

func TestCrawlChannel_VehicleChannelSkipsLoadMinimum(t *testing.T) {
	t.Parallel()

	var msgs []telegram.Message
	for i := 1; i <= 8; i++ {
		msgs = append(msgs, message(int64(i), loadText(i)))
	}
	msgs = append(msgs, message(9, vehicleText(1)), message(10, vehicleText(2)))

	ch := db.Channel{ID: 4, Name: "fura", Session: "main", CrawlVehicles: true, Title: ptr("Fura")}
	store := newFakeStore(ch)
	ex := &fakeExtractor{}
	c := newTestCrawler(store, map[string]Source{"main": &fakeSource{messages: msgs}}, ex, newFakeResolver())

	report, err := c.CrawlChannel(context.Background(), ch)
	if err != nil {
		t.Fatalf("CrawlChannel() error = %v", err)
	}
	if report.Status != StatusCompleted || report.Vehicles != 2 || report.Loads != 0 {
		t.Fatalf("report = %+v", report)
	}
	if len(ex.vehicleTexts) != 2 || len(ex.loadTexts) != 0 {
		t.Fatalf("extracted %d vehicle and %d load texts", len(ex.vehicleTexts), len(ex.loadTexts))
	}
	if store.checkpoints[4] != "10" {
		t.Fatalf("checkpoint = %q, want 10", store.checkpoints[4])
	}
}

func TestCrawlChannel_ExtractionFailureKeepsCheckpoint(t *testing.T) {
	t.Parallel()

	var msgs []telegram.Message
	for i := 10; i < 20; i++ {
		msgs = append(msgs, message(int64(i), loadText(i)))
	}
	ch := db.Channel{ID: 5, Name: "flaky", Session: "main", LastMessageID: "9", CrawlLoads: true, Title: ptr("Flaky")}
	store := newFakeStore(ch)
	ex := &fakeExtractor{err: errors.New("batch 2: upstream timeout")}
	res := newFakeResolver()
	c := newTestCrawler(store, map[string]Source{"main": &fakeSource{messages: msgs}}, ex, res)

	report, err := c.CrawlChannel(context.Background(), ch)
	if err == nil {
		t.Fatalf("CrawlChannel() succeeded with a failed batch")
	}
	if report.Status != StatusFailed || report.Loads != 5 {
		t.Fatalf("report = %+v", report)
	}
	if _, ok := store.checkpoints[5]; ok {
		t.Fatalf("checkpoint advanced after failure")
	}
	if len(res.remembered) != 5 {
		t.Fatalf("remembered %d texts, want the 5 extracted ones", len(res.remembered))
	}
	run := store.onlyRun(t)
	if run.Status != StatusFailed || run.ErrorMessage == nil || !strings.Contains(*run.ErrorMessage, "upstream timeout") {
		t.Fatalf("run = %+v", run)
	}
}

func TestCrawlChannel_FetchesMissingSenderProfile(t *testing.T) {
	t.Parallel()

	var msgs []telegram.Message
	for i := 1; i <= 10; i++ {
		m := message(int64(i), loadText(i))
		m.Sender = &telegram.Sender{ID: 501}
		msgs = append(msgs, m)
	}
	ch := db.Channel{ID: 6, Name: "nameless", Session: "main", CrawlLoads: true, Title: ptr("x")}
	src := &fakeSource{messages: msgs}
	res := newFakeResolver()
	c := newTestCrawler(newFakeStore(ch), map[string]Source{"main": src}, &fakeExtractor{}, res)

	if _, err := c.CrawlChannel(context.Background(), ch); err != nil {
		t.Fatalf("CrawlChannel() error = %v", err)
	}
	if src.users != 1 {
		t.Fatalf("profile fetched %d times, want once", src.users)
	}
	for _, name := range res.senders {
		if name != "Bobur" {
			t.Fatalf("resolved with sender %q, want the fetched profile", name)
		}
	}
}

func TestRunOnce_IsolatesFailingChannel(t *testing.T) {
	t.Parallel()

	var msgs []telegram.Message
	for i := 1; i <= 10; i++ {
		msgs = append(msgs, message(int64(i), loadText(i)))
	}
	good := db.Channel{ID: 7, Name: "good", Session: "main", CrawlLoads: true, Title: ptr("Good")}
	bad := db.Channel{ID: 8, Name: "bad", Session: "second", CrawlLoads: true, Title: ptr("Bad")}
	store := newFakeStore(good, bad)
	sources := map[string]Source{
		"main":   &fakeSource{messages: msgs},
		"second": &fakeSource{err: errors.New("session expired")},
	}
	mem := cache.NewMemory()
	c := newTestCrawler(store, sources, &fakeExtractor{}, newFakeResolver(), WithCache(mem))

	report, err := c.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if len(report.Channels) != 2 || report.Failed != 1 {
		t.Fatalf("report = %+v", report)
	}
	if store.checkpoints[7] != "10" {
		t.Fatalf("good checkpoint = %q, want 10", store.checkpoints[7])
	}
	raw, ok, _ := mem.Get(context.Background(), failureKey("bad"))
	if !ok || raw != "1" {
		t.Fatalf("failure counter = %q (%t), want 1", raw, ok)
	}
}

func TestCrawlChannel_BacksOffAfterRepeatedFailures(t *testing.T) {
	t.Parallel()

	ch := db.Channel{ID: 9, Name: "broken", Session: "main", CrawlLoads: true}
	store := newFakeStore(ch)
	src := &fakeSource{err: errors.New("boom")}
	mem := cache.NewMemory()
	if err := mem.Set(context.Background(), failureKey("broken"), fmt.Sprint(maxFailures), time.Hour); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	c := newTestCrawler(store, map[string]Source{"main": src}, &fakeExtractor{}, newFakeResolver(), WithCache(mem))

	report, err := c.CrawlChannel(context.Background(), ch)
	if err != nil {
		t.Fatalf("CrawlChannel() error = %v", err)
	}
	if report.Status != StatusSkipped || report.Reason != "backoff" {
		t.Fatalf("report = %+v", report)
	}
	if len(store.runs) != 0 {
		t.Fatalf("backed off pass recorded a run")
	}
}

func TestCrawlChannel_UnknownSession(t *testing.T) {
	t.Parallel()

	ch := db.Channel{ID: 10, Name: "orphan", Session: "gone"}
	c := newTestCrawler(newFakeStore(ch), map[string]Source{}, &fakeExtractor{}, newFakeResolver())
	if _, err := c.CrawlChannel(context.Background(), ch); err == nil {
		t.Fatalf("CrawlChannel() succeeded without a source")
	}
}

func ptr[T any](v T) *T { return &v }
