package newswire

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScraper(t *testing.T, name string, handler http.HandlerFunc) *Scraper {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	site, ok := sites[name]
	require.True(t, ok, "站点 %s 未注册", name)
	site.baseURL = srv.URL
	return newScraper(site, 5*time.Second)
}

func TestBuildFiltersAndValidatesSources(t *testing.T) {
	adapters, err := Build([]string{"DailyFX", " fxstreet ", "dailyfx"}, 0)
	require.NoError(t, err)
	require.Len(t, adapters, 2)
	assert.Equal(t, "dailyfx", adapters[0].Name())
	assert.Equal(t, "fxstreet", adapters[1].Name())

	_, err = Build([]string{"reuters"}, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reuters")

	_, err = Build(nil, 0)
	require.Error(t, err)

	assert.Equal(t, []string{"dailyfx", "forexfactory", "forexlive", "fxstreet", "investing"}, Known())
}

const dailyfxList = `<html><body><div class="dfx-articleList">
<a href="/forex/eur-usd-outlook"><h3>Euro  climbs as ECB holds firm</h3><p>EUR/USD pushes higher after the rate decision.</p></a>
<a href="https://www.dailyfx.com/yen-watch"><h3>Yen slides after BOJ surprise</h3><p>The yen weakened overnight.</p></a>
<a href="/forex/empty"></a>
</div></body></html>`

func TestFetchParsesDailyFXList(t *testing.T) {
	var gotUA string
	s := newTestScraper(t, "dailyfx", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/forex" {
			gotUA = r.Header.Get("User-Agent")
			fmt.Fprint(w, dailyfxList)
			return
		}
		http.NotFound(w, r)
	})

	articles, err := s.Fetch(context.Background(), []string{"EURUSD", "USDJPY"})
	require.NoError(t, err)
	require.Len(t, articles, 2)
	assert.Contains(t, gotUA, "AppleWebKit")

	first := articles[0]
	assert.Equal(t, "DailyFX", first.Source)
	assert.Equal(t, "Euro climbs as ECB holds firm", first.Title)
	assert.Equal(t, s.site.baseURL+"/forex/eur-usd-outlook", first.URL)
	assert.Equal(t, "EUR/USD pushes higher after the rate decision.", first.RawText)
	assert.Equal(t, []string{"EURUSD"}, first.Pairs)
	assert.False(t, first.PublishedAt.IsZero())

	second := articles[1]
	assert.Equal(t, "https://www.dailyfx.com/yen-watch", second.URL)
	assert.Equal(t, []string{"USDJPY"}, second.Pairs)
}

func TestFetchFXStreetFallsBackToAltSelectors(t *testing.T) {
	s := newTestScraper(t, "fxstreet", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/news" {
			fmt.Fprint(w, `<html><body><a class="fxs_headline" href="/news/gold-record">Gold surges to fresh record</a></body></html>`)
			return
		}
		http.NotFound(w, r)
	})

	articles, err := s.Fetch(context.Background(), []string{"XAUUSD"})
	require.NoError(t, err)
	require.Len(t, articles, 1)
	assert.Equal(t, "FXStreet", articles[0].Source)
	assert.Equal(t, "Gold surges to fresh record", articles[0].Title)
	assert.Equal(t, s.site.baseURL+"/news/gold-record", articles[0].URL)
	assert.Equal(t, []string{"XAUUSD"}, articles[0].Pairs)
}

func TestFetchForexFactoryNewsAndCalendar(t *testing.T) {
	s := newTestScraper(t, "forexfactory", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/news":
			fmt.Fprint(w, `<html><body><div class="flexposts__item"><a class="flexposts__title" href="/news/1042">Dollar advances ahead of CPI print</a><div class="flexposts__excerpt">Greenback strength continues into the release.</div></div></body></html>`)
		case "/calendar":
			fmt.Fprint(w, `<html><body><table><tbody><tr class="calendar__row"><td class="calendar__currency">USD</td><td class="calendar__event"><span class="calendar__event-title">Fed Chair Powell Testifies</span></td></tr></tbody></table></body></html>`)
		default:
			http.NotFound(w, r)
		}
	})

	articles, err := s.Fetch(context.Background(), []string{"EURUSD"})
	require.NoError(t, err)
	require.Len(t, articles, 2)

	assert.Equal(t, "Forex Factory", articles[0].Source)
	assert.Equal(t, "Dollar advances ahead of CPI print", articles[0].Title)
	assert.Equal(t, s.site.baseURL+"/news/1042", articles[0].URL)
	assert.Equal(t, "Greenback strength continues into the release.", articles[0].RawText)
	assert.Equal(t, []string{"EURUSD"}, articles[0].Pairs)

	assert.Equal(t, "Fed Chair Powell Testifies", articles[1].Title)
	assert.Empty(t, articles[1].URL)
	assert.Equal(t, []string{"EURUSD"}, articles[1].Pairs)
}

func TestFetchCapsItemsPerPage(t *testing.T) {
	var page strings.Builder
	page.WriteString(`<html><body><div class="dfx-articleList">`)
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&page, `<a href="/forex/story-%02d"><h3>Dollar headline %02d</h3><p>Fed watch.</p></a>`, i, i)
	}
	page.WriteString(`</div></body></html>`)

	s := newTestScraper(t, "dailyfx", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/forex" {
			fmt.Fprint(w, page.String())
			return
		}
		http.NotFound(w, r)
	})

	articles, err := s.Fetch(context.Background(), []string{"EURUSD"})
	require.NoError(t, err)
	assert.Len(t, articles, maxItemsPerPage)
}

func TestFetchReturnsErrorWhenAllPagesFail(t *testing.T) {
	s := newTestScraper(t, "fxstreet", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	})

	articles, err := s.Fetch(context.Background(), []string{"EURUSD"})
	require.Error(t, err)
	assert.Nil(t, articles)
	assert.Contains(t, err.Error(), "fxstreet")
	assert.Contains(t, err.Error(), "502")
}

func TestKeywordTableDerivesFromPairSpecs(t *testing.T) {
	table := keywordTable([]string{"eur/usd", "XAUUSD", " ", "EURUSD"})
	require.Len(t, table, 2)
	require.NotEmpty(t, table["EURUSD"])
	assert.Equal(t, "EURUSD", table["EURUSD"][0])
	assert.Contains(t, table["EURUSD"], "euro")
	assert.Contains(t, table["XAUUSD"], "gold")
}
