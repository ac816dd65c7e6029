// Package monitor runs the periodic check cycle.
//
// Each cycle reloads the endpoint list, checks every endpoint concurrently
// under its per-IP permit, stores the results and hands failures to the
// downtime tracker, which owns the DOWN/UP lifecycle from there on.
package monitor
