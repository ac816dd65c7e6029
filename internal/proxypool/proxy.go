package proxypool

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// ErrInvalidSpec is returned for proxy specs that cannot be normalized.
var ErrInvalidSpec = errors.New("invalid proxy spec")

const defaultScheme = "http"

var supportedSchemes = map[string]bool{
	"http":    true,
	"https":   true,
	"socks5":  true,
	"socks5h": true,
}

// Proxy is a parsed upstream proxy. Its identity is host:port.
type Proxy struct {
	Scheme   string
	Host     string
	Port     int
	User     string
	Password string
}

// Key returns the host:port identity of the proxy.
func (p Proxy) Key() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// URL returns the connection string used to dial through the proxy.
func (p Proxy) URL() string {
	u := url.URL{Scheme: p.Scheme, Host: p.Key()}
	if p.User != "" {
		u.User = url.UserPassword(p.User, p.Password)
	}
	return u.String()
}

// KeyFromURL extracts host:port from a connection string, ignoring credentials.
func KeyFromURL(connURL string) string {
	if u, err := url.Parse(connURL); err == nil && u.Host != "" {
		return u.Host
	}
	rest := connURL
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	if i := strings.LastIndex(rest, "@"); i >= 0 {
		rest = rest[i+1:]
	}
	return rest
}

// Record is the structured form of a proxy spec.
type Record struct {
	Scheme   string `json:"scheme"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
}

// Spec is a proxy entry as found in the candidate list: exactly one of Text
// or Record is set.
type Spec struct {
	Text   string
	Record *Record
}

// UnmarshalJSON accepts either a JSON string or a JSON object.
func (s *Spec) UnmarshalJSON(b []byte) error {
	trimmed := strings.TrimSpace(string(b))
	if strings.HasPrefix(trimmed, `"`) {
		return json.Unmarshal(b, &s.Text)
	}
	var raw struct {
		Record
		Schema string `json:"schema"`
		IP     string `json:"ip"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	rec := raw.Record
	if rec.Scheme == "" {
		rec.Scheme = raw.Schema
	}
	if rec.Host == "" {
		rec.Host = raw.IP
	}
	s.Record = &rec
	return nil
}

// Normalize turns either candidate form into a Proxy.
func (s Spec) Normalize() (Proxy, error) {
	switch {
	case s.Record != nil:
		return fromRecord(*s.Record)
	case s.Text != "":
		return Parse(s.Text)
	default:
		return Proxy{}, fmt.Errorf("%w: empty entry", ErrInvalidSpec)
	}
}

// Parse parses [scheme://][user:pass@]host:port.
func Parse(raw string) (Proxy, error) {
	row := strings.TrimSpace(raw)
	rec := Record{Scheme: defaultScheme}

	if i := strings.Index(row, "://"); i >= 0 {
		rec.Scheme, row = row[:i], row[i+3:]
	}
	if i := strings.LastIndex(row, "@"); i >= 0 {
		var creds string
		creds, row = row[:i], row[i+1:]
		user, pass, _ := strings.Cut(creds, ":")
		rec.User, rec.Password = user, pass
	}

	host, portStr, err := net.SplitHostPort(row)
	if err != nil {
		return Proxy{}, fmt.Errorf("%w: %q: %v", ErrInvalidSpec, raw, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Proxy{}, fmt.Errorf("%w: %q: bad port", ErrInvalidSpec, raw)
	}
	rec.Host, rec.Port = host, port

	return fromRecord(rec)
}

func fromRecord(rec Record) (Proxy, error) {
	scheme := strings.ToLower(rec.Scheme)
	if scheme == "" {
		scheme = defaultScheme
	}
	if !supportedSchemes[scheme] {
		return Proxy{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidSpec, rec.Scheme)
	}
	if rec.Host == "" {
		return Proxy{}, fmt.Errorf("%w: missing host", ErrInvalidSpec)
	}
	if rec.Port < 1 || rec.Port > 65535 {
		return Proxy{}, fmt.Errorf("%w: port %d out of range", ErrInvalidSpec, rec.Port)
	}
	return Proxy{
		Scheme:   scheme,
		Host:     rec.Host,
		Port:     rec.Port,
		User:     rec.User,
		Password: rec.Password,
	}, nil
}
