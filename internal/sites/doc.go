// Package sites provides the list of endpoints to monitor and answers whether
// a given endpoint is still enabled.
//
// The database-backed source keeps a JSON backup of the last successful load
// and serves it whenever the database cannot be reached.
package sites
