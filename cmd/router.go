package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/angeloszaimis/uptime-monitor/internal/circuitbreaker"
	"github.com/angeloszaimis/uptime-monitor/internal/downtime"
	"github.com/angeloszaimis/uptime-monitor/internal/metrics"
)

type downLister interface {
	Down() []downtime.Entry
	Active() int
}

type siteLister interface {
	Sites() []string
}

type queueLen interface {
	Len() int
	Delay() time.Duration
}

type healthyCounter interface {
	Healthy() int
}

type statusResponse struct {
	Sites            []string                        `json:"sites"`
	Down             []downtime.Entry                `json:"down"`
	RecoveryLoops    int                             `json:"recovery_loops"`
	PendingMessages  int                             `json:"pending_messages"`
	NotifyDelay      string                          `json:"notify_delay"`
	HealthyProxies   int                             `json:"healthy_proxies"`
	ProxyPoolEnabled bool                            `json:"proxy_pool_enabled"`
	Breakers         map[string]circuitbreaker.State `json:"breakers"`
}

func setupRouter(collector *metrics.Collector, status http.HandlerFunc) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /metrics", collector.Handler())
	mux.HandleFunc("GET /status", status)

	return mux
}

// statusHandler reports the live monitor state. proxies may be nil when the
// pool is disabled.
func statusHandler(tracker downLister, sites siteLister, queue queueLen, proxies healthyCounter, breakers *circuitbreaker.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := statusResponse{
			Sites:           sites.Sites(),
			Down:            tracker.Down(),
			RecoveryLoops:   tracker.Active(),
			PendingMessages: queue.Len(),
			NotifyDelay:     queue.Delay().String(),
			Breakers:        breakers.Stats(),
		}
		if resp.Sites == nil {
			resp.Sites = []string{}
		}
		if proxies != nil {
			resp.ProxyPoolEnabled = true
			resp.HealthyProxies = proxies.Healthy()
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}
