package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/onesmallpr/questboard/internal/models"
)

func scrape(m *Metrics) string {
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rec.Body.String()
}

func TestMetrics(t *testing.T) {
	Convey("Given a fresh metrics set", t, func() {
		m := New()

		Convey("When refreshes are observed", func() {
			m.ObserveRefresh("committed", 2*time.Second)
			m.ObserveRefresh("failed", time.Second)
			m.ObserveRefresh("committed", time.Second)
			m.EnrichmentFallback()

			Convey("Then counters are labelled by outcome", func() {
				body := scrape(m)
				So(body, ShouldContainSubstring, `questboard_catalog_refreshes_total{outcome="committed"} 2`)
				So(body, ShouldContainSubstring, `questboard_catalog_refreshes_total{outcome="failed"} 1`)
				So(body, ShouldContainSubstring, "questboard_catalog_enrichment_fallbacks_total 1")
				So(body, ShouldContainSubstring, "questboard_catalog_refresh_duration_seconds_count 3")
			})
		})

		Convey("When a snapshot is committed", func() {
			at := time.Unix(1700000000, 0)
			m.CatalogCommitted(models.Snapshot{Quests: make([]models.Quest, 4), LastRefreshedAt: at})

			Convey("Then catalog gauges follow it", func() {
				body := scrape(m)
				So(body, ShouldContainSubstring, "questboard_catalog_entries 4")
				So(body, ShouldContainSubstring, "questboard_catalog_last_refresh_timestamp_seconds 1.7e+09")
			})
		})

		Convey("When generations and requests are observed", func() {
			m.ObserveGeneration("quiz", "fallback")
			m.ObserveHTTP("/api/v1/quests", "GET", 200, 10*time.Millisecond)
			m.StreamClients(3)

			Convey("Then the handler exposes them", func() {
				body := scrape(m)
				So(body, ShouldContainSubstring, `questboard_generations_total{kind="quiz",outcome="fallback"} 1`)
				So(body, ShouldContainSubstring, `questboard_http_requests_total{method="GET",route="/api/v1/quests",status="200"} 1`)
				So(body, ShouldContainSubstring, "questboard_stream_clients 3")
				So(strings.Contains(body, "go_goroutines"), ShouldBeTrue)
			})
		})
	})
}
