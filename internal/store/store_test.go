package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"horse.fit/cargoscoop/internal/db"
	"horse.fit/cargoscoop/internal/db/dbtest"
	"horse.fit/cargoscoop/internal/dedup"
	"horse.fit/cargoscoop/internal/lifecycle"
	"horse.fit/cargoscoop/internal/places"
	"horse.fit/cargoscoop/internal/query"
	"horse.fit/cargoscoop/internal/store"
)

var now = time.Date(2024, time.August, 21, 10, 0, 0, 0, time.UTC)

func newStore(t *testing.T) (*store.Store, *db.Pool) {
	t.Helper()
	pool := dbtest.Open(t)
	s, err := store.New(pool, store.WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	return s, pool
}

func ptr[T any](v T) *T { return &v }

func seedLoad(t *testing.T, s *store.Store, edit func(*db.Load)) *db.Load {
	t.Helper()
	l := &db.Load{
		Origin:          "Toshkent",
		Destination:     "Samarqand",
		OriginNorm:      "toshkent",
		DestinationNorm: "samarqand",
		Channel:         "yuk_markazi",
		MessageID:       ptr(int64(100)),
		URL:             "https://t.me/yuk_markazi/100",
		PublishedAt:     now.Add(-time.Hour),
		TextHash:        "text",
		NoPhoneHash:     "nophone",
		Phone:           ptr("901234567"),
		SenderID:        ptr(int64(77)),
	}
	if edit != nil {
		edit(l)
	}
	if err := s.InsertLoad(context.Background(), l); err != nil {
		t.Fatalf("InsertLoad() error = %v", err)
	}
	return l
}

func TestFindLoad_MatchesContactAndSkipsDeleted(t *testing.T) {
	t.Parallel()

	s, pool := newStore(t)
	ctx := context.Background()
	want := seedLoad(t, s, nil)
	seedLoad(t, s, func(l *db.Load) {
		l.Phone = ptr("998935554433")
		l.SenderID = ptr(int64(78))
		l.IsDeleted = true
	})

	got, err := s.FindLoad(ctx, dedup.LoadQuery{
		OriginLike:    "TOSHKENT",
		DestLike:      "samar",
		PhoneSuffixes: []string{"901234567"},
		Since:         now.Add(-48 * time.Hour),
	})
	if err != nil || got == nil || got.ID != want.ID {
		t.Fatalf("FindLoad() = %+v, %v; want id %d", got, err, want.ID)
	}

	// The deleted copy is the only one with this phone.
	got, err = s.FindLoad(ctx, dedup.LoadQuery{PhoneSuffixes: []string{"935554433"}})
	if err != nil || got != nil {
		t.Fatalf("FindLoad() on deleted = %+v, %v; want nil", got, err)
	}

	// Outside the window.
	got, err = s.FindLoad(ctx, dedup.LoadQuery{SenderID: 77, Since: now})
	if err != nil || got != nil {
		t.Fatalf("FindLoad() outside window = %+v, %v; want nil", got, err)
	}

	var count int64
	pool.GORM().Model(&db.Load{}).Where("id <> ?", db.ReservedID).Count(&count)
	if count != 2 {
		t.Fatalf("loads = %d, want 2", count)
	}
}

func TestFindLoad_LikePatternIsEscaped(t *testing.T) {
	t.Parallel()

	s, _ := newStore(t)
	seedLoad(t, s, nil)

	got, err := s.FindLoad(context.Background(), dedup.LoadQuery{OriginLike: "to%t"})
	if err != nil || got != nil {
		t.Fatalf("FindLoad() = %+v, %v; wildcard must match literally", got, err)
	}
}

func TestFindLoad_RouteNilMeansNull(t *testing.T) {
	t.Parallel()

	s, _ := newStore(t)
	ctx := context.Background()
	withCountry := seedLoad(t, s, func(l *db.Load) {
		l.OriginCityID = ptr(int64(10))
		l.DestinationCountryID = ptr(int64(2))
		l.TextHash = "a"
	})
	seedLoad(t, s, func(l *db.Load) {
		l.OriginCityID = ptr(int64(10))
		l.DestinationCityID = ptr(int64(20))
		l.DestinationCountryID = ptr(int64(2))
		l.TextHash = "b"
		l.PublishedAt = now
	})

	got, err := s.FindLoad(ctx, dedup.LoadQuery{
		Route: &places.RouteMatch{OriginCityID: ptr(int64(10)), DestinationCountryID: ptr(int64(2))},
	})
	if err != nil || got == nil || got.ID != withCountry.ID {
		t.Fatalf("FindLoad() = %+v, %v; want id %d", got, err, withCountry.ID)
	}
}

func TestMarkEchoes_IncrementsDifferentPhoneCounter(t *testing.T) {
	t.Parallel()

	s, pool := newStore(t)
	ctx := context.Background()
	copyA := seedLoad(t, s, func(l *db.Load) { l.TextHash = "a" })
	seedLoad(t, s, func(l *db.Load) { l.TextHash = "self" })

	got, err := s.MarkEchoes(ctx, dedup.EchoQuery{
		OriginLike:  "toshkent",
		DestLike:    "samarqand",
		NoPhoneHash: "nophone",
		ExceptHash:  "self",
		Since:       now.Add(-8 * 24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("MarkEchoes() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != copyA.ID || got[0].DiffPhoneDupCount != 1 {
		t.Fatalf("MarkEchoes() = %+v", got)
	}

	var stored db.Load
	pool.GORM().First(&stored, copyA.ID)
	if stored.DiffPhoneDupCount != 1 {
		t.Fatalf("stored counter = %d, want 1", stored.DiffPhoneDupCount)
	}
}

func TestSaveLoad_LeavesDeletedLoads(t *testing.T) {
	t.Parallel()

	s, pool := newStore(t)
	ctx := context.Background()
	l := seedLoad(t, s, nil)
	pool.GORM().Model(&db.Load{}).Where("id = ?", l.ID).UpdateColumn("is_deleted", true)

	l.DuplicationCount = 9
	l.IsDeleted = false
	if err := s.SaveLoad(ctx, l); err != nil {
		t.Fatalf("SaveLoad() error = %v", err)
	}
	var stored db.Load
	pool.GORM().First(&stored, l.ID)
	if !stored.IsDeleted || stored.DuplicationCount != 0 {
		t.Fatalf("deleted load changed: deleted=%v counter=%d", stored.IsDeleted, stored.DuplicationCount)
	}
}

func TestTouchVehicles_UnarchivesAndCounts(t *testing.T) {
	t.Parallel()

	s, pool := newStore(t)
	ctx := context.Background()
	v := &db.Vehicle{Origin: "Andijon", OriginNorm: "andijon", PublishedAt: now.Add(-time.Hour), IsArchived: true}
	if err := s.InsertVehicle(ctx, v); err != nil {
		t.Fatalf("InsertVehicle() error = %v", err)
	}

	err := s.TouchVehicles(ctx, []int64{v.ID}, dedup.Touch{URL: "https://t.me/c/5", Channel: "c", MessageID: 5, Published: now})
	if err != nil {
		t.Fatalf("TouchVehicles() error = %v", err)
	}
	var stored db.Vehicle
	pool.GORM().First(&stored, v.ID)
	if stored.IsArchived || stored.DuplicationCount != 1 || stored.URL != "https://t.me/c/5" {
		t.Fatalf("stored = archived %v, counter %d, url %q", stored.IsArchived, stored.DuplicationCount, stored.URL)
	}
}

func TestSenders_EnsureAndAddPhone(t *testing.T) {
	t.Parallel()

	s, _ := newStore(t)
	ctx := context.Background()

	got, err := s.EnsureSender(ctx, db.Sender{ID: 77, FirstName: ptr("Alisher")})
	if err != nil {
		t.Fatalf("EnsureSender() error = %v", err)
	}
	if got.LoadSearchLimit != 20 || got.VehicleSearchLimit != 2 {
		t.Fatalf("limits = %d/%d, want 20/2", got.LoadSearchLimit, got.VehicleSearchLimit)
	}

	for _, phone := range []string{"901234567", "901234567", "935554433"} {
		if err := s.AddSenderPhone(ctx, 77, phone); err != nil {
			t.Fatalf("AddSenderPhone(%q) error = %v", phone, err)
		}
	}
	got, err = s.EnsureSender(ctx, db.Sender{ID: 77, Phone: ptr("998901112233")})
	if err != nil {
		t.Fatalf("EnsureSender() second error = %v", err)
	}
	if diff := cmp.Diff([]string{"901234567", "935554433"}, got.OtherPhones); diff != "" {
		t.Fatalf("other phones mismatch (-want +got):\n%s", diff)
	}
	if got.Phone == nil || *got.Phone != "998901112233" {
		t.Fatalf("profile phone = %v", got.Phone)
	}
}

func TestDistance_EitherDirection(t *testing.T) {
	t.Parallel()

	s, pool := newStore(t)
	ctx := context.Background()
	pool.GORM().Create(&db.DistanceMatrix{OriginCityID: 1, DestinationCityID: 2, DistanceMeters: 300000, DurationSeconds: 14000})

	for _, pair := range [][2]int64{{1, 2}, {2, 1}} {
		d, err := s.Distance(ctx, pair[0], pair[1])
		if err != nil || d == nil || d.DistanceMeters != 300000 {
			t.Fatalf("Distance(%d, %d) = %+v, %v", pair[0], pair[1], d, err)
		}
	}
	if d, err := s.Distance(ctx, 1, 3); err != nil || d != nil {
		t.Fatalf("Distance(1, 3) = %+v, %v; want nil", d, err)
	}
}

func TestArchiveLoads_ReportsMarksAndPrunes(t *testing.T) {
	t.Parallel()

	s, pool := newStore(t)
	ctx := context.Background()
	hot := seedLoad(t, s, func(l *db.Load) { l.DuplicationCount = 651; l.ExpirationCount = 2 })
	seedLoad(t, s, func(l *db.Load) { l.TextHash = "calm" })
	pool.GORM().Create(&db.MarkedAd{UserID: 5, AdKind: lifecycle.KindLoad, AdID: hot.ID, CreatedAt: now})

	got, err := s.ArchiveLoads(ctx, query.Where("duplication_counter > ?", 650))
	if err != nil {
		t.Fatalf("ArchiveLoads() error = %v", err)
	}
	if diff := cmp.Diff([]lifecycle.Archived{{ID: hot.ID, Marks: 2}}, got); diff != "" {
		t.Fatalf("archived mismatch (-want +got):\n%s", diff)
	}

	n, err := s.PruneMarks(ctx, lifecycle.KindLoad, []int64{hot.ID})
	if err != nil || n != 1 {
		t.Fatalf("PruneMarks() = %d, %v", n, err)
	}

	again, err := s.ArchiveLoads(ctx, query.Where("duplication_counter > ?", 650))
	if err != nil || len(again) != 0 {
		t.Fatalf("second ArchiveLoads() = %+v, %v; archived loads must not match", again, err)
	}
}

func TestRemoveDuplicateLoads_KeepsNewest(t *testing.T) {
	t.Parallel()

	s, pool := newStore(t)
	ctx := context.Background()
	old := seedLoad(t, s, func(l *db.Load) { l.PublishedAt = now.Add(-3 * time.Hour) })
	newest := seedLoad(t, s, func(l *db.Load) { l.PublishedAt = now.Add(-time.Minute) })

	n, err := s.RemoveDuplicateLoads(ctx)
	if err != nil || n != 1 {
		t.Fatalf("RemoveDuplicateLoads() = %d, %v; want 1", n, err)
	}
	var rows []db.Load
	pool.GORM().Order("id").Find(&rows)
	if !rows[0].IsDeleted || rows[0].ID != old.ID || rows[1].IsDeleted || rows[1].ID != newest.ID {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestUpsertChannel_KeepsCheckpoint(t *testing.T) {
	t.Parallel()

	s, _ := newStore(t)
	ctx := context.Background()
	ch := &db.Channel{Name: "yuk_markazi", CrawlLoads: true}
	if err := s.UpsertChannel(ctx, ch); err != nil {
		t.Fatalf("UpsertChannel() error = %v", err)
	}
	if err := s.AdvanceCheckpoint(ctx, ch.ID, "5120", now); err != nil {
		t.Fatalf("AdvanceCheckpoint() error = %v", err)
	}
	if err := s.UpsertChannel(ctx, &db.Channel{Name: "yuk_markazi", Session: "second", CrawlVehicles: true}); err != nil {
		t.Fatalf("second UpsertChannel() error = %v", err)
	}

	got, err := s.ChannelByName(ctx, "yuk_markazi")
	if err != nil {
		t.Fatalf("ChannelByName() error = %v", err)
	}
	if got.LastMessageID != "5120" || got.Session != "second" || got.CrawlLoads || !got.CrawlVehicles {
		t.Fatalf("channel = %+v", got)
	}
}
