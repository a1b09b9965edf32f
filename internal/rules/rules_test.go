package rules

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plate-gate/internal/domain/anpr"
)

func buildSets(t *testing.T, entries ...Entry) *RuleSets {
	t.Helper()
	sets, _ := FromEntries(entries)
	return sets
}

func TestClassify_Order(t *testing.T) {
	sets := buildSets(t,
		Entry{Plate: "ALLOW1", Category: anpr.CategoryAllowed},
		Entry{Plate: "DENY1", Category: anpr.CategoryDenied},
		Entry{Plate: "WATCH1", Category: anpr.CategoryWatchlist, Group: "security"},
		Entry{Plate: "IGN1", Category: anpr.CategoryIgnored},
	)

	assert.Equal(t, anpr.CategoryAllowed, Classify("allow1", sets))
	assert.Equal(t, anpr.CategoryDenied, Classify(" DENY-1 ", sets))
	assert.Equal(t, anpr.CategoryWatchlist, Classify("WATCH1", sets))
	assert.Equal(t, anpr.CategoryIgnored, Classify("IGN1", sets))
	assert.Equal(t, anpr.CategoryUnknown, Classify("OTHER9", sets))
	assert.Equal(t, "security", sets.Group("watch1"))
}

func TestClassify_IgnoredOverridesEverything(t *testing.T) {
	for _, other := range []anpr.Category{anpr.CategoryAllowed, anpr.CategoryDenied, anpr.CategoryWatchlist} {
		sets := buildSets(t,
			Entry{Plate: "ABC123", Category: other},
			Entry{Plate: "ABC123", Category: anpr.CategoryIgnored},
		)
		assert.Equal(t, anpr.CategoryIgnored, Classify("ABC123", sets), "ignored vs %s", other)
	}
}

func TestClassify_AmbiguousFollowsLookupOrder(t *testing.T) {
	sets := buildSets(t,
		Entry{Plate: "ABC123", Category: anpr.CategoryWatchlist},
		Entry{Plate: "ABC123", Category: anpr.CategoryDenied},
		Entry{Plate: "ABC123", Category: anpr.CategoryAllowed},
	)
	assert.Equal(t, anpr.CategoryAllowed, Classify("ABC123", sets))

	sets = buildSets(t,
		Entry{Plate: "ABC123", Category: anpr.CategoryWatchlist},
		Entry{Plate: "ABC123", Category: anpr.CategoryDenied},
	)
	assert.Equal(t, anpr.CategoryDenied, Classify("ABC123", sets))
}

func TestClassify_EmptyAndNilSets(t *testing.T) {
	assert.Equal(t, anpr.CategoryUnknown, Classify("ABC123", Empty()))
	assert.Equal(t, anpr.CategoryUnknown, Classify("ABC123", nil))
	assert.Equal(t, anpr.CategoryUnknown, Classify("", Empty()))
}

func TestBuilder_Conflicts(t *testing.T) {
	sets, conflicts := FromEntries([]Entry{
		{Plate: "abc123", Category: anpr.CategoryAllowed},
		{Plate: "ABC 123", Category: anpr.CategoryDenied},
		{Plate: "XYZ999", Category: anpr.CategoryDenied},
		{Plate: "XYZ999", Category: anpr.CategoryDenied},
		{Plate: "---", Category: anpr.CategoryDenied},
		{Plate: "BAD1", Category: anpr.CategoryUnreadable},
	})

	require.Len(t, conflicts, 1)
	assert.Equal(t, "ABC123", conflicts[0].Plate)
	assert.ElementsMatch(t, []anpr.Category{anpr.CategoryAllowed, anpr.CategoryDenied}, conflicts[0].Categories)
	assert.Equal(t, 2, sets.Size()[anpr.CategoryDenied])
	assert.Equal(t, 1, sets.Size()[anpr.CategoryAllowed])
}

func TestParseCategory(t *testing.T) {
	c, ok := ParseCategory("WHITELIST")
	assert.True(t, ok)
	assert.Equal(t, anpr.CategoryAllowed, c)

	c, ok = ParseCategory("watchlist")
	assert.True(t, ok)
	assert.Equal(t, anpr.CategoryWatchlist, c)

	_, ok = ParseCategory("unreadable")
	assert.False(t, ok)
}

func TestStore_Swap(t *testing.T) {
	store := NewStore(nil)
	assert.Equal(t, anpr.CategoryUnknown, Classify("ABC123", store.Load()))

	next := buildSets(t, Entry{Plate: "ABC123", Category: anpr.CategoryAllowed})
	prev := store.Swap(next)
	assert.NotNil(t, prev)
	assert.Equal(t, anpr.CategoryAllowed, Classify("ABC123", store.Load()))

	var nilStore *Store
	assert.NotNil(t, nilStore.Load())
}

func TestStore_ConcurrentReadsDuringSwap(t *testing.T) {
	store := NewStore(buildSets(t, Entry{Plate: "ABC123", Category: anpr.CategoryAllowed}))
	denied := buildSets(t, Entry{Plate: "ABC123", Category: anpr.CategoryDenied})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c := Classify("ABC123", store.Load())
				if c != anpr.CategoryAllowed && c != anpr.CategoryDenied {
					t.Errorf("unexpected category %s", c)
					return
				}
			}
		}()
	}
	store.Swap(denied)
	wg.Wait()
	assert.Equal(t, anpr.CategoryDenied, Classify("ABC123", store.Load()))
}

func TestReadCSV(t *testing.T) {
	input := "# plates\nabc123,family\n\n XYZ999 \nQWE111,\n"
	entries, err := ReadCSV(strings.NewReader(input), anpr.CategoryWatchlist)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "family", entries[0].Group)
	assert.Equal(t, "", entries[2].Group)

	sets, _ := FromEntries(entries)
	assert.Equal(t, anpr.CategoryWatchlist, Classify("XYZ999", sets))
}

func TestLoadCSV_MissingFilesAreEmpty(t *testing.T) {
	dir := t.TempDir()
	denied := filepath.Join(dir, "denied.csv")
	require.NoError(t, os.WriteFile(denied, []byte("XYZ999\n"), 0o600))

	entries, err := LoadCSV(Files{
		Allowed: filepath.Join(dir, "missing.csv"),
		Denied:  denied,
	})
	require.NoError(t, err)

	sets, conflicts := FromEntries(entries)
	assert.Empty(t, conflicts)
	assert.Equal(t, anpr.CategoryDenied, Classify("xyz999", sets))
	assert.Equal(t, 0, sets.Size()[anpr.CategoryAllowed])
}
