package env

import "testing"

func TestGetTrimsAndFallsBack(t *testing.T) {
	t.Setenv("DANTE_TEST_VALUE", "  ")
	if got := Get("DANTE_TEST_VALUE", "fallback"); got != "fallback" {
		t.Fatalf("blank value should fall back, got %q", got)
	}
	t.Setenv("DANTE_TEST_VALUE", " console ")
	if got := Get("DANTE_TEST_VALUE", "json"); got != "console" {
		t.Fatalf("expected trimmed value, got %q", got)
	}
}

func TestListenAddrPrefersPlatformPort(t *testing.T) {
	t.Setenv("PORT", "")
	if got := ListenAddr("8080"); got != ":8080" {
		t.Fatalf("expected configured port, got %q", got)
	}
	t.Setenv("PORT", "5000")
	if got := ListenAddr("8080"); got != ":5000" {
		t.Fatalf("expected platform port, got %q", got)
	}
	t.Setenv("PORT", ":7000")
	if got := ListenAddr("8080"); got != ":7000" {
		t.Fatalf("expected single colon, got %q", got)
	}
}

func TestInstanceUsesDyno(t *testing.T) {
	t.Setenv("DYNO", "web.2")
	if got := Instance(); got != "web.2" {
		t.Fatalf("expected dyno name, got %q", got)
	}
	t.Setenv("DYNO", "")
	if got := Instance(); got == "" {
		t.Fatal("expected a hostname fallback")
	}
}
