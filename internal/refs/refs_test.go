package refs

import (
	"context"
	"errors"
	"slices"
	"testing"
)

func TestFallbackPatterns(t *testing.T) {
	got := FallbackPatterns([]string{"refs/heads/*"}, "refs/heads/main")
	if !slices.Equal(got, []string{"refs/heads/*"}) {
		t.Errorf("expected configured patterns back, got %v", got)
	}

	got = FallbackPatterns(nil, "refs/heads/main")
	if !slices.Equal(got, []string{"refs/heads/main"}) {
		t.Errorf("expected default ref fallback, got %v", got)
	}
}

func TestMatch(t *testing.T) {
	refNames := []string{
		"refs/heads/main",
		"refs/heads/dev",
		"refs/heads/feature/x",
		"refs/tags/v1.0",
		"refs/notes/commits",
	}

	for _, tc := range []struct {
		name     string
		patterns []string
		want     []string
	}{
		{
			name:     "exact",
			patterns: []string{"refs/heads/main"},
			want:     []string{"refs/heads/main"},
		},
		{
			name:     "wildcard stays within one level",
			patterns: []string{"refs/heads/*"},
			want:     []string{"refs/heads/main", "refs/heads/dev"},
		},
		{
			name:     "brace alternation",
			patterns: []string{"refs/{heads,tags}/*"},
			want:     []string{"refs/heads/main", "refs/heads/dev", "refs/tags/v1.0"},
		},
		{
			name:     "no match",
			patterns: []string{"refs/heads/release-*"},
			want:     nil,
		},
		{
			name:     "overlapping patterns deduplicate",
			patterns: []string{"refs/heads/*", "refs/heads/main"},
			want:     []string{"refs/heads/main", "refs/heads/dev"},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Match(tc.patterns, refNames)
			if err != nil {
				t.Fatalf("Match failed: %v", err)
			}
			if !slices.Equal(got, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestMatch_ResultIsSubsetOfRefs(t *testing.T) {
	refNames := []string{"refs/heads/main", "refs/tags/v1.0"}
	got, err := Match([]string{"refs/*/*", "refs/heads/missing"}, refNames)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	for _, name := range got {
		if !slices.Contains(refNames, name) {
			t.Errorf("matched %s which does not exist", name)
		}
	}
}

func TestMatch_InvalidPattern(t *testing.T) {
	if _, err := Match([]string{"refs/heads/["}, []string{"refs/heads/main"}); err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}

// fakeRepo implements Repository for resolver tests.
type fakeRepo struct {
	refs          []string
	listErr       error
	defaultRef    string
	defaultErr    error
	defaultCalled bool
}

func (f *fakeRepo) ListRefs(_ context.Context) ([]string, error) {
	return f.refs, f.listErr
}

func (f *fakeRepo) DefaultBranch(_ context.Context) (string, error) {
	f.defaultCalled = true
	return f.defaultRef, f.defaultErr
}

func TestResolve(t *testing.T) {
	repo := &fakeRepo{refs: []string{"refs/heads/main", "refs/heads/dev", "refs/tags/v1.0"}}

	got, err := NewResolver(repo).Resolve(context.Background(), []string{"refs/tags/*"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !slices.Equal(got, []string{"refs/tags/v1.0"}) {
		t.Errorf("expected tags only, got %v", got)
	}
	if repo.defaultCalled {
		t.Error("default branch must not be consulted when patterns exist")
	}
}

func TestResolve_EmptyPatternsUseDefaultBranch(t *testing.T) {
	repo := &fakeRepo{
		refs:       []string{"refs/heads/main", "refs/heads/dev"},
		defaultRef: "refs/heads/main",
	}

	got, err := NewResolver(repo).Resolve(context.Background(), nil)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !slices.Equal(got, []string{"refs/heads/main"}) {
		t.Errorf("expected default branch only, got %v", got)
	}
}

func TestResolve_EnumerationFailureIsFatal(t *testing.T) {
	repo := &fakeRepo{listErr: errors.New("boom")}

	if _, err := NewResolver(repo).Resolve(context.Background(), []string{"refs/heads/*"}); err == nil {
		t.Fatal("expected error when ref enumeration fails")
	}
}

func TestForwardingSet(t *testing.T) {
	resolved := []string{"refs/heads/main", "refs/tags/v1.0"}

	for _, tc := range []struct {
		name    string
		updated []string
		want    []string
	}{
		{
			name:    "intersection",
			updated: []string{"refs/heads/main", "refs/heads/dev"},
			want:    []string{"refs/heads/main"},
		},
		{
			name:    "no overlap",
			updated: []string{"refs/heads/dev"},
			want:    nil,
		},
		{
			name:    "duplicates collapse",
			updated: []string{"refs/heads/main", "refs/heads/main"},
			want:    []string{"refs/heads/main"},
		},
		{
			name:    "encounter order preserved",
			updated: []string{"refs/tags/v1.0", "refs/heads/main"},
			want:    []string{"refs/tags/v1.0", "refs/heads/main"},
		},
		{
			name:    "empty push",
			updated: nil,
			want:    nil,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got := ForwardingSet(tc.updated, resolved)
			if !slices.Equal(got, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestForwardingSet_OrderOfUpdatedDoesNotChangeMembership(t *testing.T) {
	resolved := []string{"refs/heads/main", "refs/heads/dev"}
	a := ForwardingSet([]string{"refs/heads/main", "refs/heads/dev"}, resolved)
	b := ForwardingSet([]string{"refs/heads/dev", "refs/heads/main"}, resolved)

	slices.Sort(a)
	slices.Sort(b)
	if !slices.Equal(a, b) {
		t.Errorf("membership differs by order: %v vs %v", a, b)
	}
}
