package vuser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"syscall"
	"testing"

	"github.com/studiowebux/restswarm/internal/stats"
)

func TestErrorKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want stats.ErrorKind
	}{
		{
			name: "nil error",
			err:  nil,
			want: stats.KindNone,
		},
		{
			name: "context canceled",
			err:  &url.Error{Op: "Get", URL: "http://example.com", Err: context.Canceled},
			want: stats.KindCancelled,
		},
		{
			name: "context deadline exceeded",
			err:  fmt.Errorf("request: %w", context.DeadlineExceeded),
			want: stats.KindTimeout,
		},
		{
			name: "connection refused errno",
			err: &url.Error{Op: "Get", URL: "http://127.0.0.1:9", Err: &net.OpError{
				Op:  "dial",
				Net: "tcp",
				Err: &osSyscallError{err: syscall.ECONNREFUSED},
			}},
			want: stats.KindConnectionRefused,
		},
		{
			name: "connection reset errno",
			err:  &net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET},
			want: stats.KindConnectionReset,
		},
		{
			name: "dns error",
			err:  &url.Error{Op: "Get", URL: "http://nope.invalid", Err: &net.DNSError{Err: "no such host", Name: "nope.invalid"}},
			want: stats.KindDNS,
		},
		{
			name: "unexpected eof",
			err:  &url.Error{Op: "Get", URL: "http://example.com", Err: io.ErrUnexpectedEOF},
			want: stats.KindEOF,
		},
		{
			name: "invalid request",
			err:  fmt.Errorf("%w: bad path", ErrInvalidRequest),
			want: stats.KindInvalidURL,
		},
		{
			name: "timeout by text",
			err:  errors.New("Client.Timeout exceeded while awaiting headers"),
			want: stats.KindTimeout,
		},
		{
			name: "tls by text",
			err:  errors.New("x509: certificate signed by unknown authority"),
			want: stats.KindTLS,
		},
		{
			name: "unsupported protocol by text",
			err:  errors.New(`Get "ftp://example.com": unsupported protocol scheme "ftp"`),
			want: stats.KindInvalidURL,
		},
		{
			name: "unknown error",
			err:  errors.New("something odd"),
			want: stats.KindOther,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorKind(tt.err); got != tt.want {
				t.Errorf("ErrorKind() = %q, want %q", got, tt.want)
			}
		})
	}
}

// osSyscallError mimics os.SyscallError wrapping an errno
type osSyscallError struct {
	err error
}

func (e *osSyscallError) Error() string { return "connect: " + e.err.Error() }
func (e *osSyscallError) Unwrap() error { return e.err }
