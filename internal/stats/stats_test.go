package stats

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewUpdater(t *testing.T) {
	mux := http.NewServeMux()
	u := NewUpdater(mux)
	assert.NotNil(t, u, "expected Updater to be non-nil")
	assert.NotNil(t, u.updateChan, "expected updateChan to be initialized")
	handler, pattern := mux.Handler(&http.Request{URL: &url.URL{Path: "/debug/vars"}, Method: http.MethodGet})
	assert.NotNil(t, handler, "expected handler for /debug/vars to be set")
	assert.Equal(t, "GET /debug/vars", pattern, "expected handler to be registered for GET method on /debug/vars")
}

func TestUpdaterCounts(t *testing.T) {
	u := NewUpdater(http.NewServeMux())
	u.RegisterMetric(MetricMembersEvicted)
	u.Run()
	defer u.Stop()

	u.Incr(MetricMembersEvicted)
	u.Add(MetricMembersEvicted, 2)
	u.Decr(MetricMembersEvicted)

	assert.Eventually(t, func() bool {
		return u.vars.Get(MetricMembersEvicted).String() == "2"
	}, time.Second, 10*time.Millisecond, "expected counter to settle at 2")
}
