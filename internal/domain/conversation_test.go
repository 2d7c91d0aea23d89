package domain_test

import (
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/threadline-ai/threadline/internal/domain"
)

func TestTitleFromContent(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    string
	}{
		{"short", "Hello", "Hello"},
		{"exactly 50", strings.Repeat("a", 50), strings.Repeat("a", 50)},
		{"51 runes gets ellipsis", strings.Repeat("a", 51), strings.Repeat("a", 50) + "..."},
		{"80 runes", strings.Repeat("a", 80), strings.Repeat("a", 50) + "..."},
		{"leading whitespace trimmed", "   Hello   ", "Hello"},
		{"multibyte runes counted as runes", strings.Repeat("é", 60), strings.Repeat("é", 50) + "..."},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := domain.TitleFromContent(tc.content); got != tc.want {
				t.Fatalf("TitleFromContent(%q) = %q, want %q", tc.content, got, tc.want)
			}
		})
	}
}

func TestNewIDSortsInCreationOrder(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	var ids []string
	for i := 0; i < 10; i++ {
		ids = append(ids, domain.NewID(base.Add(time.Duration(i)*time.Millisecond)))
	}

	if !sort.StringsAreSorted(ids) {
		t.Fatalf("IDs do not sort in creation order: %v", ids)
	}

	seen := make(map[string]bool)
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}
