package vuser

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"net/url"
	"strings"
	"syscall"

	"github.com/studiowebux/restswarm/internal/stats"
)

// ErrorKind classifies a request error for the stats collector.
// It inspects the error chain first and falls back to the error text.
func ErrorKind(err error) stats.ErrorKind {
	if err == nil {
		return stats.KindNone
	}

	// Context errors first: a cancelled call may also surface as a net error
	if errors.Is(err, context.Canceled) {
		return stats.KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return stats.KindTimeout
	}

	var certInvalid x509.CertificateInvalidError
	var unknownAuthority x509.UnknownAuthorityError
	var hostname x509.HostnameError
	var recordHeader tls.RecordHeaderError
	if errors.As(err, &certInvalid) || errors.As(err, &unknownAuthority) ||
		errors.As(err, &hostname) || errors.As(err, &recordHeader) {
		return stats.KindTLS
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return stats.KindTimeout
		}
		return stats.KindDNS
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if kind := netErrorKind(opErr); kind != stats.KindNone {
			return kind
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return stats.KindTimeout
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return stats.KindEOF
	}

	if errors.Is(err, ErrInvalidRequest) || errors.Is(err, ErrInvalidBaseURL) {
		return stats.KindInvalidURL
	}

	// Fall back to string-based categorization
	return errorKindFromText(err.Error())
}

// netErrorKind maps a net.OpError, or KindNone when it carries nothing specific
func netErrorKind(e *net.OpError) stats.ErrorKind {
	if e.Timeout() {
		return stats.KindTimeout
	}

	var errno syscall.Errno
	if errors.As(e.Err, &errno) {
		switch errno {
		case syscall.ECONNREFUSED:
			return stats.KindConnectionRefused
		case syscall.ECONNRESET, syscall.EPIPE:
			return stats.KindConnectionReset
		case syscall.ETIMEDOUT:
			return stats.KindTimeout
		}
	}

	return stats.KindNone
}

// errorKindFromText categorizes errors that lost their type on the way up
func errorKindFromText(errStr string) stats.ErrorKind {
	errLower := strings.ToLower(errStr)

	switch {
	case strings.Contains(errLower, "context canceled"),
		strings.Contains(errLower, "context cancelled"):
		return stats.KindCancelled

	case strings.Contains(errLower, "deadline exceeded"),
		strings.Contains(errLower, "timeout"),
		strings.Contains(errLower, "timed out"):
		return stats.KindTimeout

	case strings.Contains(errLower, "no such host"),
		strings.Contains(errLower, "dial tcp: lookup"):
		return stats.KindDNS

	case strings.Contains(errLower, "connection refused"):
		return stats.KindConnectionRefused

	case strings.Contains(errLower, "connection reset"),
		strings.Contains(errLower, "broken pipe"):
		return stats.KindConnectionReset

	case strings.Contains(errLower, "tls"),
		strings.Contains(errLower, "x509"),
		strings.Contains(errLower, "certificate"):
		return stats.KindTLS

	case strings.Contains(errLower, "unsupported protocol"),
		strings.Contains(errLower, "invalid url"),
		strings.Contains(errLower, "missing protocol scheme"):
		return stats.KindInvalidURL

	case strings.Contains(errLower, "eof"):
		return stats.KindEOF
	}

	return stats.KindOther
}
