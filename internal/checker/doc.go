// Package checker performs one logical availability check of a URL.
//
// A check is a bounded sequence of GET attempts. Only HTTP 200 counts as
// success; any other status is retried. Network failures are classified into a
// closed set of kinds and the retry loop dispatches on the kind: proxy
// failures evict the proxy from the pool, certificate failures only rotate it,
// and other transient errors drop the pooled connection before rotating.
package checker
