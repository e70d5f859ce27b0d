package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/cfn"
	"github.com/aws/aws-lambda-go/lambdacontext"

	"github.com/picklr-io/zipbuilder/internal/logging"
	"github.com/picklr-io/zipbuilder/internal/retry"
)

// maxReasonLen keeps the response body well under CloudFormation's 4 KiB limit.
const maxReasonLen = 1024

// Response is one CloudFormation custom resource response and where to send it.
type Response struct {
	URL  string
	Body cfn.Response
}

// NewResponse builds the response for event. An empty physicalID falls back
// to the id CloudFormation already holds and then to the log stream name,
// since CloudFormation rejects responses without one.
func NewResponse(event *cfn.Event, status cfn.StatusType, reason, physicalID string) *Response {
	if physicalID == "" {
		physicalID = event.PhysicalResourceID
	}
	if physicalID == "" {
		physicalID = lambdacontext.LogStreamName
	}

	if status == cfn.StatusFailed {
		if reason == "" {
			reason = "unknown failure"
		}
		if lambdacontext.LogStreamName != "" {
			reason += " (see CloudWatch log stream " + lambdacontext.LogStreamName + ")"
		}
	}
	if len(reason) > maxReasonLen {
		reason = strings.ToValidUTF8(reason[:maxReasonLen], "")
	}

	return &Response{
		URL: event.ResponseURL,
		Body: cfn.Response{
			Status:             status,
			RequestID:          event.RequestID,
			LogicalResourceID:  event.LogicalResourceID,
			StackID:            event.StackID,
			PhysicalResourceID: physicalID,
			Reason:             reason,
			Data:               map[string]interface{}{},
		},
	}
}

// Notifier delivers a response in the background. The returned channel
// receives exactly one value, the delivery result, and is then closed.
type Notifier interface {
	Send(ctx context.Context, resp *Response) <-chan error
}

// StatusError is a non-2xx answer from the response endpoint.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("response endpoint returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// HTTPNotifier PUTs responses to the pre-signed S3 URL CloudFormation
// supplies with each event.
type HTTPNotifier struct {
	client *http.Client
	policy *retry.Policy
	logger *slog.Logger
}

// NewHTTPNotifier returns an HTTPNotifier. A nil client means http.DefaultClient.
func NewHTTPNotifier(client *http.Client, policy *retry.Policy) *HTTPNotifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPNotifier{
		client: client,
		policy: policy,
		logger: logging.Logger(),
	}
}

func (n *HTTPNotifier) Send(ctx context.Context, resp *Response) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		done <- n.deliver(ctx, resp)
	}()
	return done
}

func (n *HTTPNotifier) deliver(ctx context.Context, resp *Response) error {
	if resp.URL == "" {
		return fmt.Errorf("event has no ResponseURL")
	}

	body, err := json.Marshal(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}

	n.logger.Info("sending response",
		"status", resp.Body.Status,
		"physical_resource_id", resp.Body.PhysicalResourceID,
		"reason", resp.Body.Reason,
	)

	err = retry.Do(ctx, n.policy, func() error {
		return n.put(ctx, resp.URL, body)
	}, shouldRetry)
	if err != nil {
		return fmt.Errorf("failed to send response: %w", err)
	}
	return nil
}

func (n *HTTPNotifier) put(ctx context.Context, url string, body []byte) error {
	// No Content-Type: the pre-signed URL is signed without one.
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	res, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return &StatusError{StatusCode: res.StatusCode}
	}
	return nil
}

func shouldRetry(err error) bool {
	if se, ok := err.(*StatusError); ok {
		return se.StatusCode >= 500 || se.StatusCode == http.StatusTooManyRequests
	}
	return retry.IsTransient(err)
}
