package news

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKeywords = map[string][]string{
	"EURUSD": {"EUR", "euro", "ECB", "Fed"},
	"XAUUSD": {"gold", "XAU", "safe haven"},
}

func fixedNormalizer(now time.Time) *Normalizer {
	n := NewNormalizer(testKeywords, 24*time.Hour)
	n.now = func() time.Time { return now }
	return n
}

func TestNormalizeDedupKeepsEarliestPublishedAt(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	n := fixedNormalizer(now)

	early := now.Add(-3 * time.Hour)
	late := now.Add(-1 * time.Hour)
	batches := []SourceBatch{
		{Source: "forexlive", Articles: []Article{
			{Source: "ForexLive", Title: "ECB holds rates", URL: "https://www.forexlive.com/news/ecb-holds", PublishedAt: late},
			{Source: "forexlive", Title: "ECB holds rates", URL: "https://www.forexlive.com/news/ecb-holds/", PublishedAt: early},
			{Source: "FOREXLIVE", Title: "ECB holds rates", URL: "https://www.forexlive.com/news/ecb-holds?utm=x#top", PublishedAt: now},
		}},
	}

	out := n.Normalize(batches)
	require.Len(t, out, 1)
	assert.True(t, out[0].PublishedAt.Equal(early))
}

func TestNormalizeFailSoftPerSource(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	n := fixedNormalizer(now)

	batches := []SourceBatch{
		{Source: "forexlive", Err: errors.New("timeout")},
		{Source: "dailyfx", Articles: []Article{
			{Title: "Gold rallies on safe haven demand", URL: "https://x/1", PublishedAt: now.Add(-time.Hour)},
		}},
	}

	out := n.Normalize(batches)
	require.Len(t, out, 1)
	assert.Equal(t, "dailyfx", out[0].Source)
	assert.Equal(t, []string{"XAUUSD"}, out[0].Pairs)
}

func TestNormalizeDropsUnrelatedAndStale(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	n := fixedNormalizer(now)

	batches := []SourceBatch{
		{Source: "fxstreet", Articles: []Article{
			{Title: "Crop futures mixed", URL: "https://x/a", PublishedAt: now.Add(-time.Hour)},
			{Title: "Euro slides as Fed talks", URL: "https://x/b", PublishedAt: now.Add(-25 * time.Hour)},
			{Title: "Euro steadies ahead of ECB", URL: "https://x/c", PublishedAt: now.Add(-2 * time.Hour)},
		}},
	}

	out := n.Normalize(batches)
	require.Len(t, out, 1)
	assert.Equal(t, "https://x/c", out[0].URL)
}

func TestNormalizeOrdersNewestFirst(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	n := fixedNormalizer(now)

	batches := []SourceBatch{
		{Source: "fxstreet", Articles: []Article{
			{Title: "Euro at two week low", URL: "https://x/old", PublishedAt: now.Add(-5 * time.Hour)},
			{Title: "Euro rebounds on ECB remarks", URL: "https://x/new", PublishedAt: now.Add(-time.Hour)},
		}},
	}

	out := n.Normalize(batches)
	require.Len(t, out, 2)
	assert.Equal(t, "https://x/new", out[0].URL)
	assert.Equal(t, "https://x/old", out[1].URL)
}

func TestDedupKeyTitleFallback(t *testing.T) {
	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	a := Article{Source: "FXStreet", Title: "  Euro   Slides  ", PublishedAt: at}
	b := Article{Source: "fxstreet", Title: "euro slides", PublishedAt: at}
	c := Article{Source: "fxstreet", Title: "euro slides", PublishedAt: at.Add(time.Minute)}

	assert.Equal(t, a.DedupKey(), b.DedupKey())
	assert.NotEqual(t, a.DedupKey(), c.DedupKey())
}

func TestMatchPairsCaseInsensitive(t *testing.T) {
	pairs := MatchPairs("GOLD hits record", "flows into Safe Haven assets", testKeywords)
	assert.Equal(t, []string{"XAUUSD"}, pairs)

	both := MatchPairs("Euro firms, gold dips", "", testKeywords)
	assert.Equal(t, []string{"EURUSD", "XAUUSD"}, both)

	none := MatchPairs("Equities rally", "tech leads", testKeywords)
	assert.Empty(t, none)
}

func TestForPair(t *testing.T) {
	articles := []Article{
		{Title: "a", Pairs: []string{"EURUSD"}},
		{Title: "b", Pairs: []string{"XAUUSD"}},
		{Title: "c", Pairs: []string{"EURUSD", "XAUUSD"}},
	}
	got := ForPair(articles, "eurusd")
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Title)
	assert.Equal(t, "c", got[1].Title)
}

func TestAllFailed(t *testing.T) {
	assert.True(t, AllFailed(nil))
	assert.True(t, AllFailed([]SourceBatch{{Err: errors.New("x")}}))
	assert.False(t, AllFailed([]SourceBatch{{Err: errors.New("x")}, {Source: "ok"}}))
}

func TestCacheWindowAndCap(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	c := NewCache(2*time.Hour, 3)

	c.Put([]Article{
		{Source: "s", Title: "t1", URL: "u1", PublishedAt: now.Add(-3 * time.Hour)}, // 窗口外
		{Source: "s", Title: "t2", URL: "u2", PublishedAt: now.Add(-90 * time.Minute)},
		{Source: "s", Title: "t3", URL: "u3", PublishedAt: now.Add(-time.Hour)},
	}, now)

	snap := c.Snapshot(now)
	require.Len(t, snap, 2)
	assert.Equal(t, "t3", snap[0].Title)

	c.Put([]Article{
		{Source: "s", Title: "t4", URL: "u4", PublishedAt: now.Add(-30 * time.Minute)},
		{Source: "s", Title: "t5", URL: "u5", PublishedAt: now.Add(-10 * time.Minute)},
	}, now)
	assert.Equal(t, 3, c.Len())
	snap = c.Snapshot(now)
	assert.Equal(t, "t5", snap[0].Title)
}
