package domains

import (
	"context"
	"testing"

	"github.com/skydeck-host/skydeck/internal/app/domain/application"
	"github.com/skydeck-host/skydeck/internal/app/storage/memory"
)

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"My Site!!":       "my-site",
		"my_cool_app":     "my-cool-app",
		"  Spaces   Out ": "spaces-out",
		"UPPER":           "upper",
		"héllo wörld":     "hllo-wrld",
		"!!!":             "app",
		"":                "app",
		"a--b":            "a-b",
		"-lead-trail-":    "lead-trail",
		"v2.0 beta":       "v20-beta",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func seedDomain(t *testing.T, store *memory.Store, domain string) {
	t.Helper()
	if _, err := store.CreateApplication(context.Background(), application.Application{
		Name:   domain,
		Domain: domain,
	}); err != nil {
		t.Fatalf("seed %s: %v", domain, err)
	}
}

func TestAllocatePlainSlug(t *testing.T) {
	store := memory.New()
	alloc := NewAllocator(store, "skydeck.site")

	domain, err := alloc.Allocate(context.Background(), "My Site!!")
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if domain != "my-site.skydeck.site" {
		t.Fatalf("domain = %q, want my-site.skydeck.site", domain)
	}
}

func TestAllocateProbesSequentially(t *testing.T) {
	store := memory.New()
	alloc := NewAllocator(store, "skydeck.site")

	seedDomain(t, store, "my-site.skydeck.site")
	seedDomain(t, store, "my-site-1.skydeck.site")

	domain, err := alloc.Allocate(context.Background(), "My Site!!")
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if domain != "my-site-2.skydeck.site" {
		t.Fatalf("domain = %q, want my-site-2.skydeck.site", domain)
	}
}

func TestAllocateHonorsContext(t *testing.T) {
	store := memory.New()
	alloc := NewAllocator(store, "skydeck.site")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := alloc.Allocate(ctx, "anything"); err == nil {
		t.Fatal("expected context error")
	}
}

func TestCheckAvailable(t *testing.T) {
	store := memory.New()
	alloc := NewAllocator(store, "skydeck.site")

	domain, available, suggestions, err := alloc.Check(context.Background(), "fresh name")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !available {
		t.Fatal("expected domain to be available")
	}
	if domain != "fresh-name.skydeck.site" {
		t.Fatalf("domain = %q", domain)
	}
	if len(suggestions) != 0 {
		t.Fatalf("available names need no suggestions, got %v", suggestions)
	}
}

func TestCheckTakenSuggestsAlternatives(t *testing.T) {
	store := memory.New()
	alloc := NewAllocator(store, "skydeck.site")

	seedDomain(t, store, "shop.skydeck.site")
	seedDomain(t, store, "shop-app.skydeck.site")

	domain, available, suggestions, err := alloc.Check(context.Background(), "Shop")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if available {
		t.Fatal("expected domain to be taken")
	}
	if domain != "shop.skydeck.site" {
		t.Fatalf("domain = %q", domain)
	}
	want := []string{
		"shop-web.skydeck.site",
		"shop-site.skydeck.site",
		"shop-online.skydeck.site",
		"shop-demo.skydeck.site",
		"shop-pro.skydeck.site",
	}
	if len(suggestions) != len(want) {
		t.Fatalf("suggestions = %v, want %v", suggestions, want)
	}
	for i := range want {
		if suggestions[i] != want[i] {
			t.Fatalf("suggestion[%d] = %q, want %q", i, suggestions[i], want[i])
		}
	}
}
