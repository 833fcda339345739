// Package httpexec implements the HTTP Executor (§4.5): a single
// shared client with a bounded pool, keep-alive, and per-request
// timeout, classifying each send into a success/validation-fail/
// timeout/transport-fail ExecutionResult.
package httpexec

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/fibi-poc-dev/load-runner/pkg/model"
	"github.com/fibi-poc-dev/load-runner/pkg/request"
	"github.com/fibi-poc-dev/load-runner/pkg/validate"
)

// Executor owns the shared *http.Client used by every virtual user. It
// is safe for concurrent use (§5: "the HTTP client (safe for concurrent
// use)").
type Executor struct {
	client *http.Client
}

// New builds an Executor whose transport is tuned for many concurrent
// short-lived requests against one or a few target hosts: a bounded
// idle connection pool sized to the virtual-user count, keep-alive,
// and HTTP/2 where available.
func New(requestTimeout time.Duration, maxVUs int) *Executor {
	idlePerHost := maxVUs
	if idlePerHost < 2 {
		idlePerHost = 2
	}
	transport := &http.Transport{
		MaxIdleConns:        idlePerHost * 2,
		MaxIdleConnsPerHost: idlePerHost,
		MaxConnsPerHost:     idlePerHost * 2,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  false,
		ForceAttemptHTTP2:   true,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &Executor{
		client: &http.Client{
			Transport: transport,
			Timeout:   requestTimeout,
		},
	}
}

// Execute sends prepared via the shared client, evaluates criteria
// against the response, and returns an immutable ExecutionResult. ctx
// should carry the run's overall cancellation signal; the per-request
// timeout is additionally enforced by the client itself (§4.5, §5).
func (e *Executor) Execute(ctx context.Context, prepared *request.Prepared, stepName string, criteria *model.SuccessCriteria) (model.ExecutionResult, string) {
	start := time.Now()

	httpReq, err := e.buildHTTPRequest(ctx, prepared)
	if err != nil {
		return transportFailure(stepName, prepared, start, err), ""
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return transportFailure(stepName, prepared, start, err), ""
		}
		if isTimeout(err) {
			return timeoutResult(stepName, prepared, start), ""
		}
		return transportFailure(stepName, prepared, start, err), ""
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	responseTime := time.Since(start)
	if err != nil {
		return transportFailure(stepName, prepared, start, err), ""
	}

	bodyText := string(bodyBytes)
	verdict := validate.Evaluate(validate.Head{StatusCode: resp.StatusCode, Headers: resp.Header}, bodyText, responseTime, criteria)
	isSuccess := resp.StatusCode >= 200 && resp.StatusCode < 300 && verdict.OK

	result := model.ExecutionResult{
		StepName:          stepName,
		Method:            prepared.Method,
		URL:               prepared.URL,
		StatusCode:        resp.StatusCode,
		ResponseTime:       responseTime,
		ResponseBytes:      len(bodyBytes),
		IsSuccess:          isSuccess,
		ValidationVerdict:  verdict,
		CapturedAt:         time.Now().UTC(),
		ErrorMessage:       bodyTextForResult(bodyText, verdict),
	}
	return result, bodyText
}

// bodyTextForResult picks the ErrorMessage for a received response: the
// first validation reason when validation failed, else empty. The
// response body itself is never stored in ErrorMessage.
func bodyTextForResult(_ string, verdict model.ValidationVerdict) string {
	if verdict.OK {
		return ""
	}
	if len(verdict.Reasons) == 0 {
		return ""
	}
	return verdict.Reasons[0]
}

func (e *Executor) buildHTTPRequest(ctx context.Context, prepared *request.Prepared) (*http.Request, error) {
	var body io.Reader
	if len(prepared.Body) > 0 {
		body = bytes.NewReader(prepared.Body)
	}
	req, err := http.NewRequestWithContext(ctx, string(prepared.Method), prepared.URL, body)
	if err != nil {
		return nil, err
	}
	if prepared.ContentType != "" {
		req.Header.Set("Content-Type", prepared.ContentType)
	}
	for _, h := range prepared.Headers {
		req.Header.Set(h.Key, h.Value)
	}
	return req, nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// timeoutResult synthesizes the §4.5 "cancellation due to deadline ->
// synthetic status=408" outcome.
func timeoutResult(stepName string, prepared *request.Prepared, start time.Time) model.ExecutionResult {
	return model.ExecutionResult{
		StepName:     stepName,
		Method:       prepared.Method,
		URL:          prepared.URL,
		StatusCode:   408,
		ResponseTime: time.Since(start),
		IsSuccess:    false,
		ErrorMessage: "request timed out",
		CapturedAt:   time.Now().UTC(),
	}
}

// transportFailure synthesizes the §4.5 "transport failure -> status=0"
// outcome.
func transportFailure(stepName string, prepared *request.Prepared, start time.Time, err error) model.ExecutionResult {
	return model.ExecutionResult{
		StepName:     stepName,
		Method:       prepared.Method,
		URL:          prepared.URL,
		StatusCode:   0,
		ResponseTime: time.Since(start),
		IsSuccess:    false,
		ErrorMessage: err.Error(),
		CapturedAt:   time.Now().UTC(),
	}
}
