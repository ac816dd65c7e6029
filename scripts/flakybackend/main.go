// Flakybackend is a test HTTP server for exercising the monitor's retry,
// downtime and recovery paths.
//
// Usage:
//
//	go run ./scripts/flakybackend -port 8081 -fail 3 -status 503
//
// The first -fail requests are answered with -status, later ones with 200.
// POST /reset starts a new outage, POST /down keeps failing until the next
// reset.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
)

type backend struct {
	mu       sync.Mutex
	failN    int
	status   int
	served   int
	stuck    bool
	outageID string
}

func (b *backend) handle(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.served++
	n := b.served
	failing := b.stuck || n <= b.failN
	outage := b.outageID
	b.mu.Unlock()

	log.Printf("request: n=%d method=%s from=%s ua=%q failing=%t", n, r.Method, r.RemoteAddr, r.UserAgent(), failing)

	w.Header().Set("Content-Type", "application/json")
	if failing {
		w.WriteHeader(b.status)
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"request": n, "outage": outage, "failing": failing})
}

func (b *backend) reset(stuck bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		b.mu.Lock()
		b.served = 0
		b.stuck = stuck
		b.outageID = uuid.NewString()
		b.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}
}

func main() {
	port := flag.Int("port", 8081, "port to listen on")
	fail := flag.Int("fail", 3, "number of requests to fail before recovering")
	status := flag.Int("status", http.StatusInternalServerError, "status code for failing requests")
	flag.Parse()

	b := &backend{failN: *fail, status: *status, outageID: uuid.NewString()}

	mux := http.NewServeMux()
	mux.HandleFunc("/", b.handle)
	mux.HandleFunc("/reset", b.reset(false))
	mux.HandleFunc("/down", b.reset(true))

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("starting flaky backend on %s (fail=%d status=%d)", addr, *fail, *status)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
