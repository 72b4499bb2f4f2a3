package dedup_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"horse.fit/cargoscoop/internal/cache"
	"horse.fit/cargoscoop/internal/db"
	"horse.fit/cargoscoop/internal/db/dbtest"
	"horse.fit/cargoscoop/internal/dedup"
	"horse.fit/cargoscoop/internal/extraction"
	"horse.fit/cargoscoop/internal/places"
	"horse.fit/cargoscoop/internal/store"
	"horse.fit/cargoscoop/internal/textnorm"
)

var now = time.Date(2024, time.August, 21, 10, 0, 0, 0, time.UTC)

const adText = "Toshkentdan Samarqandga 20 tonna un, tent kerak. Tel 901234567"

func ptr[T any](v T) *T { return &v }

type harness struct {
	store    *store.Store
	resolver *dedup.Resolver
	cache    *cache.Memory
}

func catalog() *places.Catalog {
	return places.NewCatalog(
		[]places.City{
			{ID: 1, Name: "Toshkent", Variants: []string{"tashkent", "ташкент"}, CountryID: 1},
			{ID: 2, Name: "Samarqand", Variants: []string{"samarkand", "самарканд"}, CountryID: 1},
			{ID: 6, Name: "Moskva", Variants: []string{"moscow", "москва"}, CountryID: 2},
		},
		[]places.Country{
			{ID: 1, Name: "O'zbekiston", Variants: []string{"uzbekistan"}},
			{ID: 2, Name: "Rossiya", Variants: []string{"russia"}},
		},
		[]places.Good{{ID: 3, Name: "пиломатериал", Variants: []string{"taxta"}}},
	)
}

func newHarness(t *testing.T, opts ...dedup.Option) *harness {
	t.Helper()
	clock := func() time.Time { return now }
	s, err := store.New(dbtest.Open(t), store.WithClock(clock))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	mem := cache.NewMemory().WithClock(clock)
	opts = append([]dedup.Option{dedup.WithClock(clock)}, opts...)
	return &harness{store: s, resolver: dedup.NewResolver(s, mem, catalog(), opts...), cache: mem}
}

func source(messageID int64, senderID int64, text string) dedup.Source {
	return dedup.Source{
		Channel:   "yuk_markazi",
		MessageID: messageID,
		Published: now.Add(-time.Hour),
		Sender:    &textnorm.Sender{ID: senderID, FirstName: "Ali"},
		Text:      text,
		Hashes:    textnorm.HashMessage(text),
		Language:  "uz",
	}
}

func load() extraction.Load {
	return extraction.Load{
		Origin:      "Toshkent",
		Destination: "Samarqand",
		CargoType:   extraction.TruckTented,
		Weight:      ptr(20.0),
		Goods:       "пиломатериал",
		Phone:       "901234567",
	}
}

func TestResolveLoad_InsertsNewLoad(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	out, err := h.resolver.ResolveLoad(ctx, dedup.LoadCandidate{Source: source(500, 77, adText), Load: load()})
	if err != nil {
		t.Fatalf("ResolveLoad() error = %v", err)
	}
	if out.Decision != dedup.DecisionInsert || len(out.IDs) != 1 {
		t.Fatalf("outcome = %+v", out)
	}

	got, err := h.store.LoadByID(ctx, out.IDs[0])
	if err != nil {
		t.Fatalf("LoadByID() error = %v", err)
	}
	if got.DuplicationCount != 0 || got.URL != "https://t.me/yuk_markazi/500" {
		t.Fatalf("stored load = %+v", got)
	}
	if got.OriginCityID == nil || *got.OriginCityID != 1 || got.DestinationCityID == nil || *got.DestinationCityID != 2 {
		t.Fatalf("route ids = %v -> %v", got.OriginCityID, got.DestinationCityID)
	}
	if got.OwnerID == nil || *got.OwnerID != 77 || got.Phone == nil || *got.Phone != "901234567" {
		t.Fatalf("owner %v phone %v", got.OwnerID, got.Phone)
	}
	if got.GoodID == nil || *got.GoodID != 3 {
		t.Fatalf("good id = %v, want 3", got.GoodID)
	}
	if diff := cmp.Diff([]string{}, got.DuplicateURLs); diff != "" {
		t.Fatalf("duplicate urls (-want +got):\n%s", diff)
	}
}

func TestResolveLoad_SameSenderRetransmissionMerges(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	first, err := h.resolver.ResolveLoad(ctx, dedup.LoadCandidate{Source: source(500, 77, adText), Load: load()})
	if err != nil {
		t.Fatalf("first ResolveLoad() error = %v", err)
	}
	second, err := h.resolver.ResolveLoad(ctx, dedup.LoadCandidate{Source: source(530, 77, adText), Load: load()})
	if err != nil {
		t.Fatalf("second ResolveLoad() error = %v", err)
	}
	if second.Decision != dedup.DecisionMerge || second.Rule != "params_hash" {
		t.Fatalf("second outcome = %+v", second)
	}
	if diff := cmp.Diff(first.IDs, second.IDs); diff != "" {
		t.Fatalf("merged into another record (-first +second):\n%s", diff)
	}

	got, err := h.store.LoadByID(ctx, first.IDs[0])
	if err != nil {
		t.Fatalf("LoadByID() error = %v", err)
	}
	if got.DuplicationCount != 1 || got.MessageID == nil || *got.MessageID != 530 {
		t.Fatalf("merged load counter %d message %v", got.DuplicationCount, got.MessageID)
	}
	if diff := cmp.Diff([]string{"https://t.me/yuk_markazi/500"}, got.DuplicateURLs); diff != "" {
		t.Fatalf("duplicate urls (-want +got):\n%s", diff)
	}
}

func TestResolveLoad_InvalidCandidateIsSkipped(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	l := load()
	l.Destination = " "
	out, err := h.resolver.ResolveLoad(context.Background(), dedup.LoadCandidate{Source: source(1, 77, adText), Load: l})
	if err != nil || out.Decision != dedup.DecisionSkip {
		t.Fatalf("ResolveLoad() = %+v, %v; want skip", out, err)
	}
}

// seedEcho stores a copy of adText posted by another sender under a
// different text hash.
func seedEcho(t *testing.T, h *harness) *db.Load {
	t.Helper()
	l := &db.Load{
		Origin:          "Toshkent",
		Destination:     "Samarqand",
		OriginNorm:      "toshkent",
		DestinationNorm: "samarqand",
		Channel:         "boshqa",
		MessageID:       ptr(int64(9)),
		URL:             "https://t.me/boshqa/9",
		PublishedAt:     now.Add(-2 * time.Hour),
		TextHash:        "another-text",
		NoPhoneHash:     textnorm.HashMessage(adText).NoPhone,
		Phone:           ptr("935554433"),
		SenderID:        ptr(int64(78)),
	}
	if err := h.store.InsertLoad(context.Background(), l); err != nil {
		t.Fatalf("InsertLoad() error = %v", err)
	}
	return l
}

func TestResolveLoad_CrossSenderCopyIsEcho(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	echo := seedEcho(t, h)

	l := load()
	l.Phone = ""
	out, err := h.resolver.ResolveLoad(ctx, dedup.LoadCandidate{Source: source(600, 77, adText), Load: l})
	if err != nil {
		t.Fatalf("ResolveLoad() error = %v", err)
	}
	want := dedup.Outcome{Decision: dedup.DecisionEcho, Rule: "description", IDs: []int64{dedup.SentinelID}}
	if diff := cmp.Diff(want, out); diff != "" {
		t.Fatalf("outcome mismatch (-want +got):\n%s", diff)
	}
	got, err := h.store.LoadByID(ctx, echo.ID)
	if err != nil {
		t.Fatalf("LoadByID() error = %v", err)
	}
	if got.DiffPhoneDupCount != 1 {
		t.Fatalf("different phone counter = %d, want 1", got.DiffPhoneDupCount)
	}
}

func TestResolveLoad_EchoPolicyOffInserts(t *testing.T) {
	t.Parallel()

	h := newHarness(t, dedup.WithEchoPolicy(dedup.EchoOff))
	ctx := context.Background()
	echo := seedEcho(t, h)

	l := load()
	l.Phone = ""
	out, err := h.resolver.ResolveLoad(ctx, dedup.LoadCandidate{Source: source(600, 77, adText), Load: l})
	if err != nil {
		t.Fatalf("ResolveLoad() error = %v", err)
	}
	if out.Decision != dedup.DecisionInsert || out.IDs[0] == echo.ID {
		t.Fatalf("outcome = %+v", out)
	}
	got, err := h.store.LoadByID(ctx, echo.ID)
	if err != nil || got.DiffPhoneDupCount != 1 {
		t.Fatalf("echo counter = %+v, %v", got, err)
	}
}

func TestResolveLoad_DuplicateKeyMergesIntoWinner(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	// A live record holding the candidate's route hash but outside every
	// lookup window, as if a concurrent writer had won.
	hash := textnorm.MD5("Toshkent-Samarqand-77-" + textnorm.HashMessage(adText).Text)
	winner := &db.Load{
		Origin:      "x",
		Destination: "y",
		OriginNorm:  "x",
		Channel:     "yuk_markazi",
		URL:         "https://t.me/yuk_markazi/1",
		PublishedAt: now.Add(-10 * 24 * time.Hour),
		ParamsHash:  &hash,
		SenderID:    ptr(int64(79)),
	}
	if err := h.store.InsertLoad(ctx, winner); err != nil {
		t.Fatalf("InsertLoad() error = %v", err)
	}

	out, err := h.resolver.ResolveLoad(ctx, dedup.LoadCandidate{Source: source(700, 77, adText), Load: load()})
	if err != nil {
		t.Fatalf("ResolveLoad() error = %v", err)
	}
	want := dedup.Outcome{Decision: dedup.DecisionMerge, Rule: "params_hash_conflict", IDs: []int64{winner.ID}}
	if diff := cmp.Diff(want, out); diff != "" {
		t.Fatalf("outcome mismatch (-want +got):\n%s", diff)
	}
	got, err := h.store.LoadByID(ctx, winner.ID)
	if err != nil {
		t.Fatalf("LoadByID() error = %v", err)
	}
	if got.DuplicationCount != 1 || got.MessageID == nil || *got.MessageID != 700 {
		t.Fatalf("winner = %+v", got)
	}
}

// seedLoad stores a live Toshkent -> Samarqand load published an hour ago
// under a text hash no candidate shares.
func seedLoad(t *testing.T, h *harness, edit func(*db.Load)) *db.Load {
	t.Helper()
	l := &db.Load{
		Origin:          "Toshkent",
		Destination:     "Samarqand",
		OriginNorm:      "toshkent",
		DestinationNorm: "samarqand",
		Channel:         "boshqa",
		MessageID:       ptr(int64(9)),
		URL:             "https://t.me/boshqa/9",
		PublishedAt:     now.Add(-time.Hour),
		TextHash:        "stored-text",
	}
	if edit != nil {
		edit(l)
	}
	if err := h.store.InsertLoad(context.Background(), l); err != nil {
		t.Fatalf("InsertLoad() error = %v", err)
	}
	return l
}

func TestResolveLoad_CascadeRules(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		text string
		seed func(*db.Load)
		rule string
	}{
		{
			name: "same phone and goods from another sender",
			text: "Toshkent - Samarqand, 20 t taxta, tent. 901234567",
			seed: func(l *db.Load) {
				l.Phone = ptr("901234567")
				l.Goods = ptr("пиломатериал")
				l.GoodsNorm = ptr("пиломатериал")
				l.SenderID = ptr(int64(78))
				l.PublishedAt = now.Add(-3 * 24 * time.Hour)
			},
			rule: "phone_goods",
		},
		{
			name: "same sender and route",
			text: "Toshkentdan Samarqandga yuk bor, tent kerak",
			seed: func(l *db.Load) {
				l.Goods = ptr("un")
				l.GoodsNorm = ptr("un")
				l.SenderID = ptr(int64(77))
			},
			rule: "contact",
		},
		{
			name: "same sender and resolved cities",
			text: "Tashkent -> Samarkand 20 tonna, tent",
			seed: func(l *db.Load) {
				l.Origin, l.OriginNorm = "Tashkent shahri", "tashkent shahri"
				l.Destination, l.DestinationNorm = "Samarkand", "samarkand"
				l.OriginCityID = ptr(int64(1))
				l.OriginCountryID = ptr(int64(1))
				l.DestinationCityID = ptr(int64(2))
				l.DestinationCountryID = ptr(int64(1))
				l.SenderID = ptr(int64(77))
			},
			rule: "geography",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t)
			ctx := context.Background()
			stored := seedLoad(t, h, tc.seed)

			out, err := h.resolver.ResolveLoad(ctx, dedup.LoadCandidate{Source: source(1000, 77, tc.text), Load: load()})
			if err != nil {
				t.Fatalf("ResolveLoad() error = %v", err)
			}
			want := dedup.Outcome{Decision: dedup.DecisionMerge, Rule: tc.rule, IDs: []int64{stored.ID}}
			if diff := cmp.Diff(want, out); diff != "" {
				t.Fatalf("outcome mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMergeLoad_UnarchiveCeilings(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		counter    int
		expiration int
		archived   bool
	}{
		{name: "below counter ceiling", counter: 278, archived: false},
		{name: "reaches counter ceiling", counter: 279, archived: true},
		{name: "expiration ceiling", counter: 10, expiration: 4, archived: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t)
			ctx := context.Background()
			hash := textnorm.MD5("Toshkent-Samarqand-77-" + textnorm.HashMessage(adText).Text)
			stored := seedLoad(t, h, func(l *db.Load) {
				l.ParamsHash = &hash
				l.SenderID = ptr(int64(77))
				l.IsArchived = true
				l.DuplicationCount = tc.counter
				l.ExpirationCount = tc.expiration
			})

			out, err := h.resolver.ResolveLoad(ctx, dedup.LoadCandidate{Source: source(1100, 77, adText), Load: load()})
			if err != nil {
				t.Fatalf("ResolveLoad() error = %v", err)
			}
			if out.Rule != "params_hash" || out.IDs[0] != stored.ID {
				t.Fatalf("outcome = %+v", out)
			}
			got, err := h.store.LoadByID(ctx, stored.ID)
			if err != nil {
				t.Fatalf("LoadByID() error = %v", err)
			}
			if got.IsArchived != tc.archived || got.DuplicationCount != tc.counter+1 {
				t.Fatalf("archived = %v counter = %d; want %v and %d", got.IsArchived, got.DuplicationCount, tc.archived, tc.counter+1)
			}
		})
	}
}

func TestMemo_RecallRefreshesRememberedLoads(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	first, err := h.resolver.ResolveLoad(ctx, dedup.LoadCandidate{Source: source(500, 77, adText), Load: load()})
	if err != nil {
		t.Fatalf("ResolveLoad() error = %v", err)
	}
	src := source(800, 77, adText)
	if err := h.resolver.Remember(ctx, textnorm.KindLoad, src.Hashes.Text, first.IDs); err != nil {
		t.Fatalf("Remember() error = %v", err)
	}

	out, ok, err := h.resolver.Recall(ctx, textnorm.KindLoad, src)
	if err != nil || !ok {
		t.Fatalf("Recall() = %+v, %t, %v", out, ok, err)
	}
	if out.Decision != dedup.DecisionMemo {
		t.Fatalf("decision = %q", out.Decision)
	}
	if diff := cmp.Diff(first.IDs, out.IDs); diff != "" {
		t.Fatalf("recalled ids (-want +got):\n%s", diff)
	}
	got, err := h.store.LoadByID(ctx, first.IDs[0])
	if err != nil {
		t.Fatalf("LoadByID() error = %v", err)
	}
	if got.DuplicationCount != 1 || got.URL != "https://t.me/yuk_markazi/800" {
		t.Fatalf("touched load counter %d url %q", got.DuplicationCount, got.URL)
	}

	// Vehicle memos are separate.
	if _, ok, err := h.resolver.Recall(ctx, textnorm.KindVehicle, src); err != nil || ok {
		t.Fatalf("vehicle Recall() = %t, %v; want miss", ok, err)
	}
}

func TestMemo_SentinelIsNotARecall(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	src := source(900, 77, adText)

	if err := h.resolver.Remember(ctx, textnorm.KindLoad, src.Hashes.Text, nil); err != nil {
		t.Fatalf("Remember() error = %v", err)
	}
	raw, ok, _ := h.cache.Get(ctx, dedup.LoadMemoPrefix+src.Hashes.Text)
	if !ok || raw != "1" {
		t.Fatalf("memo = %q (%t), want the sentinel", raw, ok)
	}
	if _, ok, err := h.resolver.Recall(ctx, textnorm.KindLoad, src); err != nil || ok {
		t.Fatalf("Recall() = %t, %v; want miss", ok, err)
	}
}

func TestResolveVehicle_InsertsThenMerges(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	text := "Fura bor Toshkentdan Moskvaga yuk kerak 901112233"
	v := extraction.Vehicle{Origin: "Toshkent", Destinations: []string{"Moskva"}, CargoType: extraction.TruckTented, Phone: "901112233"}

	first, err := h.resolver.ResolveVehicle(ctx, dedup.VehicleCandidate{Source: source(10, 77, text), Vehicle: v})
	if err != nil || first.Decision != dedup.DecisionInsert {
		t.Fatalf("first ResolveVehicle() = %+v, %v", first, err)
	}
	stored, err := h.store.VehicleByID(ctx, first.IDs[0])
	if err != nil {
		t.Fatalf("VehicleByID() error = %v", err)
	}
	if diff := cmp.Diff([]int64{6}, stored.DestinationCityIDs); diff != "" {
		t.Fatalf("destination cities (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{2}, stored.DestinationCountryIDs); diff != "" {
		t.Fatalf("destination countries (-want +got):\n%s", diff)
	}

	second, err := h.resolver.ResolveVehicle(ctx, dedup.VehicleCandidate{Source: source(11, 77, text), Vehicle: v})
	if err != nil {
		t.Fatalf("second ResolveVehicle() error = %v", err)
	}
	if second.Decision != dedup.DecisionMerge || second.IDs[0] != first.IDs[0] {
		t.Fatalf("second outcome = %+v", second)
	}
	merged, err := h.store.VehicleByID(ctx, first.IDs[0])
	if err != nil || merged.DuplicationCount != 1 {
		t.Fatalf("merged vehicle = %+v, %v", merged, err)
	}
}
