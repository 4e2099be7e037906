package stats

import (
	"encoding/json"
	"expvar"
	"net/http"
	"sync"
	"time"
)

// Metric names registered by the engines.
const (
	MetricChannelsCreated    = "ChannelsCreated"
	MetricChannelsDeleted    = "ChannelsDeleted"
	MetricPostsPublished     = "PostsPublished"
	MetricRequestsCreated    = "SubscriptionRequestsCreated"
	MetricRequestsApproved   = "SubscriptionRequestsApproved"
	MetricRequestsRejected   = "SubscriptionRequestsRejected"
	MetricRequestsCancelled  = "SubscriptionRequestsCancelled"
	MetricSweepsRun          = "ExpirySweepsRun"
	MetricMembersEvicted     = "MembersEvicted"
	MetricMessagesSent       = "MessagesSent"
	MetricMessagesBlocked    = "MessagesBlocked"
	MetricAlertsStarted      = "AlertsStarted"
	MetricAlertsAcknowledged = "AlertsAcknowledged"
	MetricAlertsExpired      = "AlertsExpired"
)

type Provider interface {
	Incr(name string)
	Decr(name string)
	Add(name string, delta int)
	RegisterMetric(name string)
	Run()
}

type Updater struct {
	vars       *expvar.Map
	updateChan chan *metricsUpdateReq
}

type metricsUpdateReq struct {
	name  string
	value int
}

func (u *Updater) expvarHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	expvarData := make(map[string]any)
	u.vars.Do(func(kv expvar.KeyValue) {
		var value any
		json.Unmarshal([]byte(kv.Value.String()), &value)
		expvarData[kv.Key] = value
	})

	json.NewEncoder(w).Encode(expvarData)
}

var statsVars struct {
	once sync.Once
	m    *expvar.Map
}

// NewUpdater creates a stats updater and registers its handler on mux.
func NewUpdater(mux *http.ServeMux) *Updater {
	u := &Updater{
		updateChan: make(chan *metricsUpdateReq, 512),
	}
	mux.Handle("GET /debug/vars", http.HandlerFunc(u.expvarHandler))
	// expvar panics on duplicate registration, so the map is shared
	// across updaters in one process.
	statsVars.once.Do(func() {
		statsVars.m = expvar.NewMap("channelhub-stats")
	})
	u.vars = statsVars.m
	u.initializeMetrics()

	return u
}

func (u *Updater) initializeMetrics() {
	startTime := time.Now()
	u.vars.Set("Uptime", expvar.Func(func() any {
		return time.Since(startTime).Milliseconds()
	}))
}

func (u *Updater) updateMetrics() {
	for req := range u.updateChan {
		metric := u.vars.Get(req.name)
		if metric == nil {
			panic("metric not found: " + req.name)
		}

		metric.(*expvar.Int).Add(int64(req.value))
	}
}

func (u *Updater) Incr(name string) {
	u.updateChan <- &metricsUpdateReq{name: name, value: 1}
}

func (u *Updater) Decr(name string) {
	u.updateChan <- &metricsUpdateReq{name: name, value: -1}
}

func (u *Updater) Add(name string, delta int) {
	u.updateChan <- &metricsUpdateReq{name: name, value: delta}
}

// RegisterMetric publishes a counter. Registering an already published
// name is a no-op so that components sharing a metric can both declare
// it.
func (u *Updater) RegisterMetric(name string) {
	if u.vars.Get(name) == nil {
		u.vars.Set(name, expvar.NewInt(name))
	}
}

func (u *Updater) Run() {
	go u.updateMetrics()
}

func (u *Updater) Stop() {
	close(u.updateChan)
}

// Noop is a Provider that records nothing; used where metrics are not
// wired, primarily in tests.
type Noop struct{}

func (Noop) Incr(string)           {}
func (Noop) Decr(string)           {}
func (Noop) Add(string, int)       {}
func (Noop) RegisterMetric(string) {}
func (Noop) Run()                  {}
