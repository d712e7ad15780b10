package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"syscall"
	"testing"
	"time"
)

type recordingMirror struct {
	kinds  []Kind
	bodies []string
}

func (m *recordingMirror) Mirror(kind Kind, body []byte) {
	m.kinds = append(m.kinds, kind)
	m.bodies = append(m.bodies, string(body))
}

func TestPostSendsPayload(t *testing.T) {
	var gotBody, gotType, gotAgent, gotMethod string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotType = r.Header.Get("Content-Type")
		gotAgent = r.Header.Get("User-Agent")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}))
	defer server.Close()

	mirror := &recordingMirror{}
	c := NewClient(time.Second)
	c.Mirror = mirror

	resp := c.Post(context.Background(), server.URL+"/api/v1/heartbeat", NewHeartbeat(testIdentity))

	if resp.StatusCode != http.StatusOK || resp.Body != "OK" || resp.Err != nil {
		t.Errorf("Post() = %+v", resp)
	}
	if !resp.OK() || resp.Text() != "OK" {
		t.Errorf("OK() = %v, Text() = %q", resp.OK(), resp.Text())
	}
	if gotMethod != http.MethodPost {
		t.Errorf("method = %s, want POST", gotMethod)
	}
	if gotType != "application/json" {
		t.Errorf("Content-Type = %q", gotType)
	}
	if gotAgent != c.UserAgent || gotAgent == "" {
		t.Errorf("User-Agent = %q", gotAgent)
	}
	if want := `{"SensorID": "14", "Password": "foobar"}`; gotBody != want {
		t.Errorf("body = %s, want %s", gotBody, want)
	}
	if len(mirror.kinds) != 1 || mirror.kinds[0] != KindHeartbeat || mirror.bodies[0] != gotBody {
		t.Errorf("mirror got %v %v", mirror.kinds, mirror.bodies)
	}
}

func TestPostReturnsHTTPStatusAsIs(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		http.Error(w, "Password Incorrect", http.StatusUnauthorized)
	}))
	defer server.Close()

	resp := NewClient(time.Second).Post(context.Background(), server.URL, NewHeartbeat(testIdentity))

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want 401", resp.StatusCode)
	}
	if resp.Body != "Password Incorrect\n" {
		t.Errorf("Body = %q", resp.Body)
	}
	if resp.Err != nil {
		t.Errorf("Err = %v, want nil for an HTTP status", resp.Err)
	}
	if requests != 1 {
		t.Errorf("requests = %d, want exactly 1", requests)
	}
}

func TestPostConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	endpoint := server.URL
	server.Close()

	resp := NewClient(time.Second).Post(context.Background(), endpoint, NewHeartbeat(testIdentity))

	if resp.StatusCode != CodeConnectionRefused {
		t.Errorf("StatusCode = %d, want %d (%v)", resp.StatusCode, CodeConnectionRefused, resp.Err)
	}
	var te *TransportError
	if !errors.As(resp.Err, &te) {
		t.Fatalf("Err = %v, want *TransportError", resp.Err)
	}
	if resp.Text() != "connection refused" {
		t.Errorf("Text() = %q", resp.Text())
	}
}

func TestPostTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer server.Close()
	defer close(release)

	resp := NewClient(50*time.Millisecond).Post(context.Background(), server.URL, NewHeartbeat(testIdentity))

	if resp.StatusCode != CodeReadTimeout {
		t.Errorf("StatusCode = %d, want %d (%v)", resp.StatusCode, CodeReadTimeout, resp.Err)
	}
}

func TestPostBadEndpoint(t *testing.T) {
	resp := NewClient(time.Second).Post(context.Background(), "http://bad host/", NewHeartbeat(testIdentity))
	if resp.StatusCode != CodeSendHeaderFailed {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, CodeSendHeaderFailed)
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyTransportError(t *testing.T) {
	opErr := func(errno error) error {
		return &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", errno)}
	}

	tests := []struct {
		name      string
		err       error
		want      int
		retryable bool
	}{
		{name: "refused", err: opErr(syscall.ECONNREFUSED), want: CodeConnectionRefused, retryable: true},
		{name: "host unreachable", err: opErr(syscall.EHOSTUNREACH), want: CodeNotConnected, retryable: true},
		{name: "network unreachable", err: opErr(syscall.ENETUNREACH), want: CodeNotConnected, retryable: true},
		{name: "reset", err: opErr(syscall.ECONNRESET), want: CodeConnectionLost, retryable: true},
		{name: "dns not found", err: &net.DNSError{Name: "temperatures.example", IsNotFound: true}, want: CodeConnectionRefused, retryable: true},
		{name: "dns malformed name", err: &net.DNSError{Err: "no such host", Name: "bad..name"}, want: CodeConnectionRefused},
		{name: "timeout", err: timeoutErr{}, want: CodeReadTimeout, retryable: true},
		{name: "eof", err: io.ErrUnexpectedEOF, want: CodeConnectionLost, retryable: true},
		{name: "cancelled", err: context.Canceled, want: CodeConnectionLost},
		{
			name:      "wrapped in url error",
			err:       &url.Error{Op: "Post", URL: "http://x", Err: opErr(syscall.EHOSTUNREACH)},
			want:      CodeNotConnected,
			retryable: true,
		},
		{name: "other", err: fmt.Errorf("tls: handshake failure"), want: CodeConnectionRefused, retryable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyTransportError(tt.err)
			if got.Code != tt.want {
				t.Errorf("Code = %d (%s), want %d (%s)", got.Code, CodeText(got.Code), tt.want, CodeText(tt.want))
			}
			if got.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", got.Retryable, tt.retryable)
			}
			if !errors.Is(got, tt.err) {
				t.Errorf("classified error does not wrap the original")
			}
		})
	}

	if ClassifyTransportError(nil) != nil {
		t.Error("ClassifyTransportError(nil) should be nil")
	}
}

func TestCodeText(t *testing.T) {
	for code := CodeReadTimeout; code <= CodeConnectionRefused; code++ {
		if CodeText(code) == "" {
			t.Errorf("CodeText(%d) is empty", code)
		}
	}
	if CodeText(200) != "" {
		t.Error("CodeText(200) should be empty")
	}
}
