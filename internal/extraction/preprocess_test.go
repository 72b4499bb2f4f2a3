package extraction

import "testing"

func TestRewriteTruckVocabulary(t *testing.T) {
	t.Parallel()

	cases := []struct{ in, want string }{
		{"kichkina isuzu kerak", "ford kerak"},
		{"Тент 20 тонна", "chevrolet 20 тонна"},
		{"реф-18 режим", "porsche-18 режим"},
		{"tentative", "tentative"},
		{"text: Labo bor", "text: ferrari bor"},
	}
	for _, tc := range cases {
		if got := RewriteTruckVocabulary(tc.in); got != tc.want {
			t.Fatalf("RewriteTruckVocabulary(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMarkSmallShipments(t *testing.T) {
	t.Parallel()

	if got := MarkSmallShipments("Догруз 2 тонна"); got != "hazardous 2 тонна" {
		t.Fatalf("MarkSmallShipments = %q", got)
	}
}

func TestJoinSpacedDigits(t *testing.T) {
	t.Parallel()

	if got := JoinSpacedDigits("tel 90 123 45 67"); got != "tel 901234567" {
		t.Fatalf("JoinSpacedDigits = %q", got)
	}
}

func TestMarkRouteArrow(t *testing.T) {
	t.Parallel()

	got := MarkRouteArrow("Toshkentdan Samarqandga 15 tonna")
	if got != "Toshkentdan ->  Samarqandga 15 tonna" {
		t.Fatalf("MarkRouteArrow = %q", got)
	}
	if got := MarkRouteArrow("Toshkent, Samarqand"); got != "Toshkent, Samarqand" {
		t.Fatalf("MarkRouteArrow without markers = %q", got)
	}
}
