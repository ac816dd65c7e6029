package checker

import (
	"net/http"
	"sync"
	"time"

	"github.com/angeloszaimis/uptime-monitor/internal/proxypool"
)

// Session owns the connection pools used during one check cycle or one
// recovery loop. Each proxy URL gets its own transport cloned from the
// session template, so pool limits apply per session.
type Session struct {
	mu         sync.Mutex
	template   *http.Transport
	timeout    time.Duration
	transports map[string]*http.Transport
}

func newSession(template *http.Transport, timeout time.Duration) *Session {
	return &Session{
		template:   template,
		timeout:    timeout,
		transports: make(map[string]*http.Transport),
	}
}

func (s *Session) client(proxyURL string) (*http.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transports[proxyURL]
	if !ok {
		var err error
		t, err = proxypool.NewTransport(s.template, proxyURL)
		if err != nil {
			return nil, err
		}
		s.transports[proxyURL] = t
	}

	return &http.Client{
		Transport: t,
		Timeout:   s.timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}, nil
}

// reset drops the pooled connections for proxyURL so the next attempt dials
// afresh.
func (s *Session) reset(proxyURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.transports[proxyURL]; ok {
		t.CloseIdleConnections()
		delete(s.transports, proxyURL)
	}
}

// Close releases every pooled connection.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, t := range s.transports {
		t.CloseIdleConnections()
		delete(s.transports, key)
	}
}
