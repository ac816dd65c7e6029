package checker

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"strings"
)

// Classify maps a transport error to a Kind. viaProxy tells whether the
// attempt was routed through a proxy.
func Classify(err error, viaProxy bool) Kind {
	if err == nil {
		return KindSuccess
	}

	var (
		certErr     *tls.CertificateVerificationError
		unknownAuth x509.UnknownAuthorityError
		hostnameErr x509.HostnameError
		invalidCert x509.CertificateInvalidError
	)
	if errors.As(err, &certErr) || errors.As(err, &unknownAuth) ||
		errors.As(err, &hostnameErr) || errors.As(err, &invalidCert) {
		return KindCertificate
	}

	if viaProxy && isProxyError(err) {
		return KindProxy
	}

	if errors.Is(err, context.Canceled) {
		return KindFatal
	}
	return KindTransient
}

func isProxyError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "proxyconnect" || strings.HasPrefix(opErr.Op, "socks") {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "proxyconnect") ||
		strings.Contains(msg, "proxy authentication required") ||
		strings.Contains(msg, "socks connect")
}
