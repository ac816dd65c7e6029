// Package downtime tracks which URLs are down and supervises one recovery
// loop per down URL until it answers 200 again or is disabled.
package downtime
