// Package domains derives synthetic domain names from display names and
// allocates free ones against the metadata store. Allocation here is an
// optimization: the store's uniqueness constraint settles races.
package domains

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/skydeck-host/skydeck/internal/app/storage"
)

// suggestionWords decorate a taken slug when proposing alternatives.
var suggestionWords = []string{"app", "web", "site", "online", "demo", "pro"}

var (
	hyphenRuns    = regexp.MustCompile(`[\s_]+`)
	invalidChars  = regexp.MustCompile(`[^a-z0-9-]+`)
	repeatHyphens = regexp.MustCompile(`-{2,}`)
)

// Slugify normalizes a display name into a domain label: lower-cased,
// whitespace and underscores become hyphens, everything outside [a-z0-9-]
// is dropped. Names that reduce to nothing become "app".
func Slugify(name string) string {
	slug := strings.ToLower(name)
	slug = hyphenRuns.ReplaceAllString(slug, "-")
	slug = invalidChars.ReplaceAllString(slug, "")
	slug = repeatHyphens.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		return "app"
	}
	return slug
}

// Allocator builds fully qualified domains under a base domain.
type Allocator struct {
	store storage.ApplicationStore
	base  string
}

// NewAllocator creates an Allocator for a base domain such as
// "skydeck.site".
func NewAllocator(store storage.ApplicationStore, baseDomain string) *Allocator {
	return &Allocator{store: store, base: strings.Trim(baseDomain, ".")}
}

// Qualify appends the base domain to a slug.
func (a *Allocator) Qualify(slug string) string {
	return slug + "." + a.base
}

// Allocate returns the first free domain derived from name: the plain slug,
// then slug-1, slug-2, and so on. Probing is unbounded; a deliberate flood
// of identical names is an accepted cost. The returned domain can still be
// lost to a concurrent insert, which surfaces as a collision at persist
// time.
func (a *Allocator) Allocate(ctx context.Context, name string) (string, error) {
	slug := Slugify(name)

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		candidate := slug
		if attempt > 0 {
			candidate = fmt.Sprintf("%s-%d", slug, attempt)
		}
		domain := a.Qualify(candidate)
		taken, err := a.store.DomainExists(ctx, domain)
		if err != nil {
			return "", fmt.Errorf("probe domain %s: %w", domain, err)
		}
		if !taken {
			return domain, nil
		}
	}
}

// Check reports whether the domain derived from name is free and, when it
// is not, proposes free alternatives decorated with the suggestion words.
func (a *Allocator) Check(ctx context.Context, name string) (string, bool, []string, error) {
	slug := Slugify(name)
	domain := a.Qualify(slug)

	taken, err := a.store.DomainExists(ctx, domain)
	if err != nil {
		return "", false, nil, fmt.Errorf("probe domain %s: %w", domain, err)
	}
	if !taken {
		return domain, true, nil, nil
	}

	suggestions := make([]string, 0, len(suggestionWords))
	for _, word := range suggestionWords {
		alternative := a.Qualify(slug + "-" + word)
		altTaken, err := a.store.DomainExists(ctx, alternative)
		if err != nil {
			return "", false, nil, fmt.Errorf("probe domain %s: %w", alternative, err)
		}
		if !altTaken {
			suggestions = append(suggestions, alternative)
		}
	}
	return domain, false, suggestions, nil
}
