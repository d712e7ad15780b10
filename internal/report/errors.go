package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"syscall"
)

// Transport failure codes. They are negative so they can share the status
// code field with HTTP statuses, numbered as the node's original HTTP stack
// numbered them.
const (
	CodeConnectionRefused = -1
	CodeSendHeaderFailed  = -2
	CodeSendPayloadFailed = -3
	CodeNotConnected      = -4
	CodeConnectionLost    = -5
	CodeNoStream          = -6
	CodeNoHTTPServer      = -7
	CodeTooLessRAM        = -8
	CodeEncoding          = -9
	CodeStreamWrite       = -10
	CodeReadTimeout       = -11
)

// CodeText returns the text for a transport failure code.
func CodeText(code int) string {
	switch code {
	case CodeConnectionRefused:
		return "connection refused"
	case CodeSendHeaderFailed:
		return "send header failed"
	case CodeSendPayloadFailed:
		return "send payload failed"
	case CodeNotConnected:
		return "not connected"
	case CodeConnectionLost:
		return "connection lost"
	case CodeNoStream:
		return "no stream"
	case CodeNoHTTPServer:
		return "no HTTP server"
	case CodeTooLessRAM:
		return "too less ram"
	case CodeEncoding:
		return "Transfer-Encoding not supported"
	case CodeStreamWrite:
		return "Stream write error"
	case CodeReadTimeout:
		return "read Timeout"
	default:
		return ""
	}
}

// TransportError is a POST that produced no HTTP status.
type TransportError struct {
	Code      int    // One of the Code* constants
	Message   string // Human-readable cause
	Err       error  // Underlying error
	Retryable bool   // Whether the next iteration can expect a different outcome
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%d): %s (caused by: %v)", CodeText(e.Code), e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s (%d): %s", CodeText(e.Code), e.Code, e.Message)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ClassifyTransportError maps an error from the HTTP client to a code.
func ClassifyTransportError(err error) *TransportError {
	if err == nil {
		return nil
	}

	if os.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return &TransportError{Code: CodeReadTimeout, Message: "Request timed out", Err: err, Retryable: true}
	}

	if errors.Is(err, context.Canceled) {
		return &TransportError{Code: CodeConnectionLost, Message: "Request cancelled", Err: err}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &TransportError{
			Code:      CodeConnectionRefused,
			Message:   fmt.Sprintf("DNS resolution failed for %s", dnsErr.Name),
			Err:       err,
			Retryable: dnsErr.IsTemporary || dnsErr.IsNotFound,
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch {
		case errors.Is(opErr.Err, syscall.ECONNREFUSED):
			return &TransportError{Code: CodeConnectionRefused, Message: "Collector refused connection", Err: err, Retryable: true}
		case errors.Is(opErr.Err, syscall.EHOSTUNREACH):
			return &TransportError{Code: CodeNotConnected, Message: "Host unreachable", Err: err, Retryable: true}
		case errors.Is(opErr.Err, syscall.ENETUNREACH):
			return &TransportError{Code: CodeNotConnected, Message: "Network unreachable", Err: err, Retryable: true}
		case errors.Is(opErr.Err, syscall.ECONNRESET), errors.Is(opErr.Err, syscall.EPIPE):
			return &TransportError{Code: CodeConnectionLost, Message: "Connection reset", Err: err, Retryable: true}
		}
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &TransportError{Code: CodeConnectionLost, Message: "Connection closed before response", Err: err, Retryable: true}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		return ClassifyTransportError(urlErr.Err)
	}

	return &TransportError{Code: CodeConnectionRefused, Message: "Connection failed", Err: err, Retryable: true}
}
