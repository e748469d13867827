package stats

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// expvar names are process-global, so the updater is created once and
// shared by the subtests.
func TestStatsUpdater(t *testing.T) {
	mux := http.NewServeMux()
	su := NewStatsUpdater(mux)

	t.Run("registers the debug handler", func(t *testing.T) {
		assert.NotNil(t, su, "expected StatsUpdater to be non-nil")
		assert.NotNil(t, su.updateChan, "expected updateChan to be initialized")
		handler, pattern := mux.Handler(&http.Request{URL: &url.URL{Path: "/debug/vars"}, Method: http.MethodGet})
		assert.NotNil(t, handler, "expected handler for /debug/vars to be set")
		assert.Equal(t, "GET /debug/vars", pattern, "expected handler to be registered for GET method on /debug/vars")
	})

	t.Run("applies metric updates", func(t *testing.T) {
		su.RegisterMetric("TestMetric")
		su.Run()
		defer su.Stop()

		su.Incr("TestMetric")
		su.Incr("TestMetric")
		su.Decr("TestMetric")

		assert.Eventually(t, func() bool {
			return su.vars.Get("TestMetric").String() == "1"
		}, time.Second, 10*time.Millisecond, "expected metric to settle at 1")
	})
}
