package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/muurk/tempnode/internal/node"
	"github.com/muurk/tempnode/internal/report"
)

// OutcomeResult summarises one loop iteration. Delivered readings are a
// success, every other path is a warning, and a cancelled iteration or a
// failed delivery is a failure.
func OutcomeResult(o node.Outcome) *Result {
	title := fmt.Sprintf("iteration %d: %s", o.Iteration, o.Path)

	var r *Result
	switch {
	case o.Err != nil:
		r = NewFailureResult(title, o.Err, nil)
	case o.Response != nil && !o.Response.OK():
		r = NewFailureResult(title, fmt.Errorf("%d %s", o.Response.StatusCode, o.Response.Text()), deliveryTips(*o.Response))
	case o.Path == node.PathReport:
		r = NewSuccessResult(title)
	default:
		r = NewWarningResult(title)
	}

	r.AddDetail("Link", linkText(o.Condition.Connected))
	if o.Reading.Valid {
		r.AddDetail("Temperature", fmt.Sprintf("%.2f°F", o.Reading.TemperatureF))
		r.AddDetail("Humidity", fmt.Sprintf("%.2f%%", o.Reading.Humidity))
	} else {
		r.AddDetail("Reading", "invalid")
	}
	if o.Payload != nil {
		r.AddDetail("Sent", string(o.Payload.Kind()))
	}
	if o.Response != nil && o.Response.OK() {
		r.AddDetail("Status", fmt.Sprintf("%d %s", o.Response.StatusCode, o.Response.Text()))
	}
	r.AddDetail("Next", o.Delay.String())
	return r
}

// RenderOutcome renders an outcome box, followed by the payload and response
// bodies when verbose.
func RenderOutcome(o node.Outcome, width int, verbose bool) string {
	parts := []string{OutcomeResult(o).SetWidth(width).Render()}
	if verbose && o.Payload != nil {
		if body, err := o.Payload.MarshalJSON(); err == nil {
			parts = append(parts, RenderRawBox("Payload", string(body), width))
		}
	}
	if verbose && o.Response != nil && o.Response.Body != "" {
		parts = append(parts, RenderRawBox("Response", o.Response.Body, width))
	}
	return strings.Join(parts, "\n")
}

func linkText(connected bool) string {
	if connected {
		return "connected"
	}
	return "disconnected"
}

func deliveryTips(resp report.Response) []string {
	var te *report.TransportError
	switch status := resp.StatusCode; {
	case status == 400:
		return []string{"Check the sensor ID is registered with the collector"}
	case status == 401:
		return []string{"Check the password matches the collector registration"}
	case status <= 0 && errors.As(resp.Err, &te) && !te.Retryable:
		return []string{
			"The next iteration will fail the same way",
			"Check the endpoint URLs in the configuration",
		}
	case status <= 0:
		return []string{
			"Check the collector is running and reachable from this network",
			"Check the endpoint URLs in the configuration",
		}
	default:
		return nil
	}
}
