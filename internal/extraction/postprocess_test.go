package extraction

import (
	"testing"
	"time"
)

func ptr[T any](v T) *T { return &v }

func TestValidPrice(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		fare  *float64
		phone string
		want  int64 // 0 means rejected
	}{
		{name: "large round", fare: ptr(3000000.0), want: 3000000},
		{name: "large not round", fare: ptr(1234567.0)},
		{name: "mid hundreds", fare: ptr(6500.0), want: 6500},
		{name: "mid fifty", fare: ptr(7350.0), want: 7350},
		{name: "mid odd", fare: ptr(7310.0)},
		{name: "small tens", fare: ptr(900.0), want: 900},
		{name: "small odd", fare: ptr(905.0)},
		{name: "too small", fare: ptr(5.0)},
		{name: "missing", fare: nil},
		{name: "part of phone", fare: ptr(4500.0), phone: "901234500"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := ValidPrice(tc.fare, tc.phone)
			switch {
			case tc.want == 0 && got != nil:
				t.Fatalf("ValidPrice = %d, want rejected", *got)
			case tc.want != 0 && (got == nil || *got != tc.want):
				t.Fatalf("ValidPrice = %v, want %d", got, tc.want)
			}
		})
	}
}

func TestTruckType(t *testing.T) {
	t.Parallel()

	cases := []struct {
		code   string
		reefer bool
		want   string
	}{
		{"porsche", true, TruckReeferMode},
		{"porsche", false, TruckReefer},
		{" BMW ", false, TruckBigIsuzu},
		{"ford", false, TruckSmallIsuzu},
		{"none", false, TruckNotSpecified},
		{"xyz", false, TruckNotSpecified},
	}
	for _, tc := range cases {
		if got := TruckType(tc.code, tc.reefer); got != tc.want {
			t.Fatalf("TruckType(%q, %v) = %q, want %q", tc.code, tc.reefer, got, tc.want)
		}
	}
}

func TestReadyDate(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, time.August, 21, 10, 0, 0, 0, time.UTC)
	got := ReadyDate(ptr("2023-08-25"), now)
	if got == nil || !got.Equal(time.Date(2024, time.August, 25, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("ReadyDate(2023-08-25) = %v", got)
	}
	if got := ReadyDate(ptr("2024-08-21"), now); got == nil {
		t.Fatalf("ReadyDate(today) dropped")
	}
	if got := ReadyDate(ptr("2024-08-20"), now); got != nil {
		t.Fatalf("ReadyDate(past) = %v, want nil", got)
	}
	if got := ReadyDate(ptr("next week"), now); got != nil {
		t.Fatalf("ReadyDate(garbage) = %v, want nil", got)
	}
}

func TestToLoad_NormalizesFields(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, time.August, 21, 10, 0, 0, 0, time.UTC)
	raw := rawLoad{
		Fare:             ptr(2500000.0),
		Origin:           ptr("Toshkent"),
		Destination:      ptr("Samarqand"),
		PaymentType:      ptr("none"),
		PrepaymentAmount: ptr(5000.0),
		TruckType:        []string{"bmw"},
		Weight:           ptr(15.0),
		Volume:           ptr(10.0),
		Load:             ptr("Мясо!"),
		LoadingSide:      ptr("задняя"),
	}
	l := raw.toLoad("901234567", now)

	if l.Price == nil || *l.Price != 2500000 {
		t.Fatalf("price = %v", l.Price)
	}
	if l.Prepayment != nil {
		t.Fatalf("prepayment = %d, want nil for a large fare", *l.Prepayment)
	}
	if l.PaymentType != TruckNotSpecified {
		t.Fatalf("payment type = %q", l.PaymentType)
	}
	if l.CargoType != TruckBigIsuzu || l.CargoType2 != TruckNotSpecified {
		t.Fatalf("cargo types = %q, %q", l.CargoType, l.CargoType2)
	}
	if !l.Refrigerated || l.Goods != "мясо" {
		t.Fatalf("refrigerated = %v goods = %q", l.Refrigerated, l.Goods)
	}
	if l.Weight == nil || *l.Weight != 15 || l.Volume != nil {
		t.Fatalf("weight = %v volume = %v", l.Weight, l.Volume)
	}
	if l.Dagruz || l.LoadingSide != "rear" {
		t.Fatalf("dagruz = %v loading side = %q", l.Dagruz, l.LoadingSide)
	}
}

func TestToLoad_RouteRepairs(t *testing.T) {
	t.Parallel()

	now := time.Now()
	swapped := rawLoad{Origin: ptr("Samarqand"), Destination: ptr("Toshkentdan")}.toLoad("", now)
	if swapped.Origin != "Toshkentdan" || swapped.Destination != "Samarqand" {
		t.Fatalf("swap = %q -> %q", swapped.Origin, swapped.Destination)
	}

	split := rawLoad{Origin: ptr("Toshkent-Samarqand")}.toLoad("", now)
	if split.Origin != "Toshkent" || split.Destination != "Samarqand" {
		t.Fatalf("split = %q -> %q", split.Origin, split.Destination)
	}
}

func TestToLoad_Dagruz(t *testing.T) {
	t.Parallel()

	now := time.Now()
	cases := []struct {
		name      string
		weight    *float64
		hazardous bool
		want      bool
	}{
		{name: "light", weight: ptr(0.5), want: true},
		{name: "hazardous under two tons", weight: ptr(1.5), hazardous: true, want: true},
		{name: "heavy hazardous", weight: ptr(5.0), hazardous: true, want: false},
		{name: "unknown weight hazardous", hazardous: true, want: true},
		{name: "unknown weight", want: false},
	}
	for _, tc := range cases {
		l := rawLoad{Origin: ptr("a"), Destination: ptr("b"), Weight: tc.weight, IsLoadHazardous: ptr(tc.hazardous)}.toLoad("", now)
		if l.Dagruz != tc.want {
			t.Fatalf("%s: dagruz = %v, want %v", tc.name, l.Dagruz, tc.want)
		}
	}
}

func TestToVehicle(t *testing.T) {
	t.Parallel()

	v := rawVehicle{
		Origin:       ptr("Toshkent"),
		Destinations: []string{"Moskva", " ", "Qozon"},
		TruckType:    []string{"porsche", "chevrolet"},
		CargoWeight:  ptr(0.5),
	}.toVehicle("901234567")
	if v.CargoType != TruckReefer || v.CargoType2 != TruckTented {
		t.Fatalf("cargo types = %q, %q", v.CargoType, v.CargoType2)
	}
	if len(v.Destinations) != 2 || !v.Dagruz || v.Phone != "901234567" {
		t.Fatalf("vehicle = %+v", v)
	}
}
