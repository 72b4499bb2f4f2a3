package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"horse.fit/cargoscoop/internal/db"
	"horse.fit/cargoscoop/internal/db/dbtest"
	"horse.fit/cargoscoop/internal/lifecycle"
	"horse.fit/cargoscoop/internal/places"
	"horse.fit/cargoscoop/internal/query"
	"horse.fit/cargoscoop/internal/store"
)

var now = time.Date(2024, time.August, 21, 10, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

type harness struct {
	pool   *db.Pool
	store  *store.Store
	router *echo.Echo
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	pool := dbtest.Open(t)
	clock := func() time.Time { return now }
	s, err := store.New(pool, store.WithClock(clock))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	catalog := places.NewCatalog(
		[]places.City{
			{ID: 1, Name: "Toshkent", Variants: []string{"Ташкент"}, CountryID: 1},
			{ID: 2, Name: "Samarqand", CountryID: 1},
		},
		[]places.Country{{ID: 1, Name: "Uzbekiston"}},
		nil,
	)
	builder := query.NewBuilder(catalog, places.NewMemoryGeo(catalog.Cities()), query.WithClock(clock))
	srv := NewServer(s, builder, catalog, zerolog.Nop(), Options{})
	return &harness{pool: pool, store: s, router: srv.Handler()}
}

func (h *harness) seedLoad(t *testing.T, edit func(*db.Load)) int64 {
	t.Helper()
	l := &db.Load{
		Origin:               "Toshkent",
		Destination:          "Samarqand",
		OriginCityID:         ptr(int64(1)),
		OriginCountryID:      ptr(int64(1)),
		DestinationCityID:    ptr(int64(2)),
		DestinationCountryID: ptr(int64(1)),
		Channel:              "yuk_markazi",
		URL:                  "https://t.me/yuk_markazi/1",
		PublishedAt:          now.Add(-time.Hour),
		CreatedAt:            now.Add(-time.Hour),
	}
	if edit != nil {
		edit(l)
	}
	if err := h.store.InsertLoad(t.Context(), l); err != nil {
		t.Fatalf("InsertLoad() error = %v", err)
	}
	return l.ID
}

type envelope[T any] struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

func do[T any](t *testing.T, h *harness, method, target, body string) (int, envelope[T]) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	var out envelope[T]
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("%s %s: decode %q: %v", method, target, rec.Body.String(), err)
	}
	return rec.Code, out
}

type page[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
	Next  *int  `json:"next"`
}

func TestHealth(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	code, got := do[map[string]any](t, h, http.MethodGet, "/api/v1/health", "")
	if code != http.StatusOK || got.Status != "success" || got.Data["service"] != "cargoscoop" {
		t.Fatalf("GET /health = %d %+v", code, got)
	}
}

func TestLoadSearch_HidesMarkedAds(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	kept := h.seedLoad(t, nil)
	marked := h.seedLoad(t, nil)
	h.pool.GORM().Create(&db.MarkedAd{UserID: 9, AdKind: lifecycle.KindLoad, AdID: marked, CreatedAt: now})

	code, got := do[page[loadItem]](t, h, http.MethodPost, "/api/v1/loads/search",
		`{"user_id": 9, "origin_city_id": 1, "destination_country_id": 1}`)
	if code != http.StatusOK {
		t.Fatalf("POST /loads/search = %d %+v", code, got)
	}
	if len(got.Data.Items) != 1 || got.Data.Items[0].ID != kept || got.Data.Total != 1 || got.Data.Next != nil {
		t.Fatalf("search page = %+v", got.Data)
	}
	if got.Data.Items[0].Origin != "Toshkent" || got.Data.Items[0].URL != "https://t.me/yuk_markazi/1" {
		t.Fatalf("item = %+v", got.Data.Items[0])
	}
}

func TestLoadSearch_NextPage(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	for i := 0; i < 12; i++ {
		h.seedLoad(t, nil)
	}
	_, got := do[page[loadItem]](t, h, http.MethodPost, "/api/v1/loads/search", `{}`)
	if len(got.Data.Items) != query.FirstPageSize || got.Data.Total != 12 || got.Data.Next == nil || *got.Data.Next != 10 {
		t.Fatalf("first page = %d items, total %d, next %v", len(got.Data.Items), got.Data.Total, got.Data.Next)
	}
}

func TestLoadSearch_Validation(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	code, got := do[map[string]map[string]string](t, h, http.MethodPost, "/api/v1/loads/search",
		`{"cargo_type": "rocket", "lat": 41.3, "start": -1}`)
	if code != http.StatusBadRequest || got.Status != "fail" {
		t.Fatalf("POST /loads/search = %d %+v", code, got)
	}
	want := map[string]string{
		"cargo_type": "failed oneof=not_specified isuzu small_isuzu big_isuzu reefer reefer-mode tented labo",
		"lng":        "failed required_with=Lat",
		"start":      "failed gte=0",
	}
	if diff := cmp.Diff(want, got.Data["validation_errors"]); diff != "" {
		t.Fatalf("validation errors mismatch (-want +got):\n%s", diff)
	}
}

func TestVehicleSearch_OwnerMode(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	mine := &db.Vehicle{Origin: "Toshkent", OwnerID: ptr(int64(77)), PublishedAt: now, Destinations: []string{"Moskva"}}
	other := &db.Vehicle{Origin: "Toshkent", OwnerID: ptr(int64(78)), PublishedAt: now}
	for _, v := range []*db.Vehicle{mine, other} {
		if err := h.store.InsertVehicle(t.Context(), v); err != nil {
			t.Fatalf("InsertVehicle() error = %v", err)
		}
	}

	code, got := do[page[vehicleItem]](t, h, http.MethodPost, "/api/v1/vehicles/search", `{"owner_id": 77}`)
	if code != http.StatusOK || len(got.Data.Items) != 1 || got.Data.Items[0].ID != mine.ID {
		t.Fatalf("POST /vehicles/search = %d %+v", code, got.Data)
	}
	if diff := cmp.Diff([]string{"Moskva"}, got.Data.Items[0].Destinations); diff != "" {
		t.Fatalf("destinations mismatch (-want +got):\n%s", diff)
	}
}

func TestResolvePlace(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	code, got := do[placeItem](t, h, http.MethodGet, "/api/v1/places/resolve?q="+url.QueryEscape("Ташкент"), "")
	if code != http.StatusOK || got.Data.ID != 1 || got.Data.Kind != places.KindCity || got.Data.CountryID != 1 {
		t.Fatalf("resolve = %d %+v", code, got)
	}

	if code, _ := do[any](t, h, http.MethodGet, "/api/v1/places/resolve?q=", ""); code != http.StatusBadRequest {
		t.Fatalf("empty q = %d, want 400", code)
	}
	if code, _ := do[any](t, h, http.MethodGet, "/api/v1/places/resolve?q=Toshkent&side=middle", ""); code != http.StatusBadRequest {
		t.Fatalf("bad side = %d, want 400", code)
	}
	if code, _ := do[any](t, h, http.MethodGet, "/api/v1/places/resolve?q=zzzzqqq", ""); code != http.StatusNotFound {
		t.Fatalf("unknown place = %d, want 404", code)
	}
}

func TestChannels_IncludesDisabled(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	for _, ch := range []*db.Channel{
		{Name: "yuk_markazi", CrawlLoads: true},
		{Name: "eski_kanal", Disabled: true},
	} {
		if err := h.store.UpsertChannel(t.Context(), ch); err != nil {
			t.Fatalf("UpsertChannel() error = %v", err)
		}
	}

	code, got := do[map[string][]channelItem](t, h, http.MethodGet, "/api/v1/channels", "")
	if code != http.StatusOK || len(got.Data["items"]) != 2 {
		t.Fatalf("GET /channels = %d %+v", code, got)
	}
}

func TestUnknownRouteIsJSendFail(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	code, got := do[any](t, h, http.MethodGet, "/api/v1/nothing", "")
	if code != http.StatusNotFound || got.Status != "fail" {
		t.Fatalf("GET /nothing = %d %+v", code, got)
	}
}
