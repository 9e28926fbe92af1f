package utils

import (
	"context"
	"testing"
)

func TestNormalizePlace(t *testing.T) {
	if got := NormalizePlace("  Kigali   City "); got != "kigali city" {
		t.Fatalf("unexpected %q", got)
	}
	if got := CleanList([]string{" a ", "", "  ", "b  c"}); len(got) != 2 || got[1] != "b c" {
		t.Fatalf("unexpected %v", got)
	}
}

func TestMoney(t *testing.T) {
	if got := FormatAmount(1250000); got != "1.250.000" {
		t.Fatalf("unexpected %q", got)
	}
	if got := FormatAmount(-500); got != "-500" {
		t.Fatalf("unexpected %q", got)
	}
	if got := Percent(2000, 50); got != 1000 {
		t.Fatalf("unexpected %d", got)
	}
	if got := Percent(2000, 150); got != 2000 {
		t.Fatalf("percent above 100 must clamp, got %d", got)
	}
	if got := Percent(2000, 0); got != 0 {
		t.Fatalf("unexpected %d", got)
	}
}

func TestDateRoundTrip(t *testing.T) {
	d, err := ParseDate("2026-05-02")
	if err != nil {
		t.Fatalf("ParseDate returned error: %v", err)
	}
	if FormatDate(d) != "2026-05-02" {
		t.Fatalf("unexpected %s", FormatDate(d))
	}
	if _, err := ParseDate("02/05/2026"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRequestIDOnContext(t *testing.T) {
	if RequestIDFrom(context.Background()) != "" {
		t.Fatalf("expected empty request id")
	}
	ctx := WithRequestID(context.Background(), "rid-1")
	if RequestIDFrom(ctx) != "rid-1" {
		t.Fatalf("expected rid-1")
	}
}
