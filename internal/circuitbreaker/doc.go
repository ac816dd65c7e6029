// Package circuitbreaker guards calls to external dependencies that may be
// unavailable for long stretches, such as the database behind the endpoint
// list.
//
// A breaker has three states:
//
//   - CLOSED: calls pass through
//   - OPEN: the dependency is failing, calls are refused with ErrOpen
//   - HALF-OPEN: one trial call is let through after the reset timeout
//
// Usage:
//
//	registry := circuitbreaker.NewRegistry(3, time.Minute)
//	cb := registry.GetBreaker("sites-db")
//	err := cb.Do(func() error {
//	    return queryDatabase()
//	})
//	if errors.Is(err, circuitbreaker.ErrOpen) {
//	    // serve a fallback
//	}
package circuitbreaker
