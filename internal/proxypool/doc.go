// Package proxypool keeps a pool of upstream proxies that checks can be routed
// through when the direct network path misbehaves.
//
// Candidates are loaded from a JSON list whose entries are either strings of
// the form [scheme://][user:pass@]host:port or structured records. A health
// sweep probes every candidate through a known-good URL; only proxies that
// passed their most recent probe keep a HealthRecord. The record table is
// persisted after every sweep and every eviction through a StateStore (a JSON
// file or a redis hash) and is read back at startup.
//
// Usage:
//
//	pool := proxypool.New(proxypool.NewFileCandidates("all_proxies.json"),
//		proxypool.NewFileStore("checked_proxies.json"), opts, logger)
//	if err := pool.Init(ctx); err != nil {
//		// candidates or state could not be read; the pool starts empty
//	}
//	if proxyURL, ok := pool.GetProxy(); ok {
//		// route the request through proxyURL
//	}
package proxypool
