package metrics

import (
	"context"
	"log/slog"
	"time"
)

type EventType string

const (
	EventCheckCompleted EventType = "check_completed"
	EventStateChanged   EventType = "state_changed"
	EventCycleCompleted EventType = "cycle_completed"
	EventProxyEvicted   EventType = "proxy_evicted"
)

type MetricEvent struct {
	Type       EventType
	Timestamp  time.Time
	URL        string
	Duration   time.Duration
	StatusCode int
	Attempts   int
	Down       bool
}

type Collector struct {
	eventCh chan MetricEvent
	metrics *Metrics
	logger  *slog.Logger
	done    chan struct{}
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	return &Collector{
		eventCh: make(chan MetricEvent, bufferSize),
		metrics: NewMetrics(),
		logger:  logger,
		done:    make(chan struct{}),
	}
}

func (c *Collector) EventChannel() chan<- MetricEvent {
	return c.eventCh
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

// Done is closed once the collector has drained and stopped.
func (c *Collector) Done() <-chan struct{} {
	return c.done
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")
	defer close(c.done)

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event MetricEvent) {
	switch event.Type {
	case EventCheckCompleted:
		c.metrics.RecordCheck(event.URL, event.StatusCode, event.Duration, event.Timestamp)

	case EventStateChanged:
		c.metrics.UpdateState(event.URL, event.Down, event.Duration)

	case EventCycleCompleted:
		c.metrics.RecordCycle(event.Duration)

	case EventProxyEvicted:
		c.metrics.RecordEviction()
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) emit(event MetricEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case c.eventCh <- event:
	default:
		c.metrics.recordDropped()
	}
}

// RecordCheck reports a completed check.
func (c *Collector) RecordCheck(url string, statusCode int, duration time.Duration, attempts int) {
	c.emit(MetricEvent{
		Type:       EventCheckCompleted,
		URL:        url,
		StatusCode: statusCode,
		Duration:   duration,
		Attempts:   attempts,
	})
}

// Transition reports a down or up transition.
func (c *Collector) Transition(url string, down bool, downtime time.Duration) {
	c.emit(MetricEvent{Type: EventStateChanged, URL: url, Down: down, Duration: downtime})
}

func (c *Collector) RecordCycle(duration time.Duration) {
	c.emit(MetricEvent{Type: EventCycleCompleted, Duration: duration})
}

func (c *Collector) RecordEviction(proxyURL string) {
	c.emit(MetricEvent{Type: EventProxyEvicted, URL: proxyURL})
}

func (c *Collector) Snapshot() Snapshot {
	return c.metrics.Snapshot()
}
