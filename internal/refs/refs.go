// Package refs decides which references a push must replicate: it expands the
// configured ref patterns against the live reference namespace and intersects
// the result with the refs the push actually updated.
package refs

import (
	"context"
	"fmt"

	"github.com/gobwas/glob"
)

// Repository is the subset of git operations resolution needs.
type Repository interface {
	ListRefs(ctx context.Context) ([]string, error)
	DefaultBranch(ctx context.Context) (string, error)
}

// FallbackPatterns returns the pattern list to resolve: the configured
// patterns when any exist, otherwise the repository's default ref alone.
func FallbackPatterns(patterns []string, defaultRef string) []string {
	if len(patterns) > 0 {
		return patterns
	}
	return []string{defaultRef}
}

// Match returns the refs in refNames matching at least one pattern. Patterns
// support '*' and '{a,b}' alternation; '*' does not cross a '/' boundary,
// matching for-each-ref wildcard semantics. The result is deduplicated and
// keeps the input order of refNames, so it is deterministic for a fixed
// repository state and pattern set.
func Match(patterns, refNames []string) ([]string, error) {
	matchers := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		m, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid ref pattern %q: %w", p, err)
		}
		matchers = append(matchers, m)
	}

	var matched []string
	seen := make(map[string]struct{})
	for _, name := range refNames {
		if _, ok := seen[name]; ok {
			continue
		}
		for _, m := range matchers {
			if m.Match(name) {
				matched = append(matched, name)
				seen[name] = struct{}{}
				break
			}
		}
	}
	return matched, nil
}

// Resolver expands ref patterns against the live reference namespace.
type Resolver struct {
	repo Repository
}

// NewResolver creates a resolver backed by the given repository.
func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve computes the set of existing refs eligible for mirroring. The ref
// list is read fresh on every call; an enumeration failure is fatal because an
// incomplete result could silently drop refs from mirroring.
func (r *Resolver) Resolve(ctx context.Context, patterns []string) ([]string, error) {
	if len(patterns) == 0 {
		defaultRef, err := r.repo.DefaultBranch(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve default branch: %w", err)
		}
		patterns = FallbackPatterns(nil, defaultRef)
	}

	names, err := r.repo.ListRefs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate refs: %w", err)
	}

	return Match(patterns, names)
}

// ForwardingSet intersects the refs updated by the push with the resolved
// eligible refs. The result is deduplicated and keeps the encounter order of
// updated, which makes it independent of how resolved is ordered.
func ForwardingSet(updated, resolved []string) []string {
	eligible := make(map[string]struct{}, len(resolved))
	for _, name := range resolved {
		eligible[name] = struct{}{}
	}

	var forward []string
	seen := make(map[string]struct{})
	for _, name := range updated {
		if _, ok := eligible[name]; !ok {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		forward = append(forward, name)
		seen[name] = struct{}{}
	}
	return forward
}
