package report

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/muurk/tempnode/internal/logging"
	"github.com/muurk/tempnode/internal/version"
	"go.uber.org/zap"
)

const (
	// DefaultTimeout bounds one POST including the response body.
	DefaultTimeout = 5 * time.Second

	// maxBody caps how much of a response is kept for logging.
	maxBody = 4096
)

// Response is the outcome of one POST. StatusCode is an HTTP status, or a
// negative transport failure code with Err set.
type Response struct {
	StatusCode int
	Body       string
	Err        error
}

// OK reports a 2xx status.
func (r Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Text is the transport failure text or the HTTP status text.
func (r Response) Text() string {
	if r.StatusCode <= 0 {
		return CodeText(r.StatusCode)
	}
	return http.StatusText(r.StatusCode)
}

// Mirror receives a copy of every encoded report.
type Mirror interface {
	Mirror(kind Kind, body []byte)
}

// Client posts reports to the collector. It never retries; the control loop
// sends a fresh report on its next iteration instead.
type Client struct {
	// HTTPClient is the underlying HTTP client
	HTTPClient *http.Client

	// UserAgent is sent with every request
	UserAgent string

	// Mirror, if set, is handed every encoded payload after the POST
	Mirror Mirror
}

// NewClient creates a reporting client with the given request timeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		HTTPClient: &http.Client{Timeout: timeout},
		UserAgent:  version.UserAgent(),
	}
}

// Post serializes p and sends it to endpoint. Failures are returned in the
// Response and logged; Post itself never fails.
func (c *Client) Post(ctx context.Context, endpoint string, p Payload) Response {
	body, err := p.MarshalJSON()
	if err != nil {
		return c.fail(endpoint, &TransportError{Code: CodeSendHeaderFailed, Message: "Failed to encode payload", Err: err})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return c.fail(endpoint, &TransportError{Code: CodeSendHeaderFailed, Message: "Failed to create request", Err: err})
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.UserAgent)

	logging.Debug("Posting report",
		zap.String("kind", string(p.Kind())),
		zap.String("endpoint", endpoint),
		zap.ByteString("body", body),
	)

	resp := c.do(req)
	logging.LogPost(endpoint, resp.StatusCode, resp.errorText(), resp.Body)

	if c.Mirror != nil {
		c.Mirror.Mirror(p.Kind(), body)
	}
	return resp
}

func (c *Client) do(req *http.Request) Response {
	httpResp, err := c.HTTPClient.Do(req)
	if err != nil {
		te := ClassifyTransportError(err)
		return Response{StatusCode: te.Code, Err: te}
	}
	defer func() { _ = httpResp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBody))
	if err != nil {
		// The status line arrived, so the collector saw the request.
		logging.Debug("Failed to read response body", zap.Error(err))
	}
	return Response{StatusCode: httpResp.StatusCode, Body: string(data)}
}

func (c *Client) fail(endpoint string, te *TransportError) Response {
	resp := Response{StatusCode: te.Code, Err: te}
	logging.LogPost(endpoint, resp.StatusCode, resp.errorText(), "")
	return resp
}

func (r Response) errorText() string {
	if r.Err != nil {
		return r.Err.Error()
	}
	return r.Text()
}
