package metrics

import (
	"sort"
	"sync"
	"time"
)

const maxSamples = 1000

type Metrics struct {
	mutex         sync.RWMutex
	checks        map[string]int64
	failures      map[string]int64
	responseTimes map[string][]time.Duration
	statusCodes   map[string]map[int]int64
	down          map[string]bool
	transitions   map[string]int64
	downtime      map[string]time.Duration
	lastChecked   map[string]time.Time
	cycles        int64
	lastCycle     time.Duration
	evictions     int64
	dropped       int64
	startTime     time.Time
}

type Snapshot struct {
	TotalChecks    int64                      `json:"total_checks"`
	Cycles         int64                      `json:"cycles"`
	LastCycle      time.Duration              `json:"last_cycle"`
	ProxyEvictions int64                      `json:"proxy_evictions"`
	DroppedEvents  int64                      `json:"dropped_events"`
	Uptime         time.Duration              `json:"uptime"`
	Endpoints      map[string]EndpointMetrics `json:"endpoints"`
}

type EndpointMetrics struct {
	Checks        int64         `json:"checks"`
	Failures      int64         `json:"failures"`
	Down          bool          `json:"down"`
	DownEvents    int64         `json:"down_events"`
	TotalDowntime time.Duration `json:"total_downtime"`
	LastChecked   time.Time     `json:"last_checked"`
	AvgResponse   time.Duration `json:"avg_response"`
	P50Response   time.Duration `json:"p50_response"`
	P95Response   time.Duration `json:"p95_response"`
	P99Response   time.Duration `json:"p99_response"`
	StatusCodes   map[int]int64 `json:"status_codes"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		checks:        make(map[string]int64),
		failures:      make(map[string]int64),
		responseTimes: make(map[string][]time.Duration),
		statusCodes:   make(map[string]map[int]int64),
		down:          make(map[string]bool),
		transitions:   make(map[string]int64),
		downtime:      make(map[string]time.Duration),
		lastChecked:   make(map[string]time.Time),
		startTime:     time.Now(),
	}
}

// RecordCheck stores one completed check. A status other than 200 counts as
// a failure.
func (m *Metrics) RecordCheck(url string, statusCode int, duration time.Duration, at time.Time) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.checks[url]++
	if statusCode != 200 {
		m.failures[url]++
	}
	m.lastChecked[url] = at

	m.responseTimes[url] = append(m.responseTimes[url], duration)
	if len(m.responseTimes[url]) > maxSamples {
		m.responseTimes[url] = m.responseTimes[url][1:]
	}

	if m.statusCodes[url] == nil {
		m.statusCodes[url] = make(map[int]int64)
	}
	m.statusCodes[url][statusCode]++
}

// UpdateState records a transition. downtime is the length of the outage that
// just ended and is ignored when down is true.
func (m *Metrics) UpdateState(url string, down bool, downtime time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.down[url] = down
	if down {
		m.transitions[url]++
		return
	}
	m.downtime[url] += downtime
}

func (m *Metrics) RecordCycle(duration time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.cycles++
	m.lastCycle = duration
}

func (m *Metrics) RecordEviction() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.evictions++
}

func (m *Metrics) recordDropped() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.dropped++
}

func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Cycles:         m.cycles,
		LastCycle:      m.lastCycle,
		ProxyEvictions: m.evictions,
		DroppedEvents:  m.dropped,
		Uptime:         time.Since(m.startTime),
		Endpoints:      make(map[string]EndpointMetrics),
	}

	// Collect all known endpoints
	all := make(map[string]bool)
	for url := range m.checks {
		all[url] = true
	}
	for url := range m.down {
		all[url] = true
	}

	for url := range all {
		snap.TotalChecks += m.checks[url]

		em := EndpointMetrics{
			Checks:        m.checks[url],
			Failures:      m.failures[url],
			Down:          m.down[url],
			DownEvents:    m.transitions[url],
			TotalDowntime: m.downtime[url],
			LastChecked:   m.lastChecked[url],
			StatusCodes:   make(map[int]int64, len(m.statusCodes[url])),
		}
		for code, n := range m.statusCodes[url] {
			em.StatusCodes[code] = n
		}

		durations := m.responseTimes[url]
		if len(durations) > 0 {
			sorted := make([]time.Duration, len(durations))
			copy(sorted, durations)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			em.AvgResponse = average(sorted)
			em.P50Response = percentile(sorted, 0.50)
			em.P95Response = percentile(sorted, 0.95)
			em.P99Response = percentile(sorted, 0.99)
		}

		snap.Endpoints[url] = em
	}

	return snap
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
