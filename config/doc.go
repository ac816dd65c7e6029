// Package config handles loading and parsing of configuration from YAML files
// and environment variables. It defines the monitor configuration structure
// including check cycle timings, proxy pool settings, the endpoint source,
// the result sink and the notification transport.
package config
