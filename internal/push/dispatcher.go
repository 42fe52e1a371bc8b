package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"notifier/internal/config"
	"notifier/internal/constants"
	"notifier/internal/logger"
	"notifier/pkg/circuitbreaker"
	"notifier/pkg/metrics"
)

// Dispatcher performs outbound push-gateway calls and normalizes the
// gateway's inconsistent response shapes into per-device outcomes.
type Dispatcher struct {
	cfg     config.PushGatewayConfig
	client  *http.Client
	breaker *circuitbreaker.Wrapper
	logger  logger.Logger
}

// NewDispatcher builds a dispatcher. breaker may be nil to call the
// gateway without circuit protection.
func NewDispatcher(cfg config.PushGatewayConfig, breaker *circuitbreaker.Wrapper, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:     cfg,
		client:  &http.Client{},
		breaker: breaker,
		logger:  log,
	}
}

// Send performs the gateway call with an explicit timeout. Transport
// failures are classified: a fired timeout becomes TimeoutError, other
// failures carry the underlying error message when present, falling back
// to RequestError. No automatic retry.
func (d *Dispatcher) Send(ctx context.Context, payload Payload) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize push payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.cfg.APIKey != "" {
		req.Header.Set("Authorization", "key="+d.cfg.APIKey)
	}

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		gwErr := classifyTransportError(err)
		metrics.PushRequestsTotal.WithLabelValues(strings.ToLower(gwErr.Message)).Inc()
		metrics.ObservePushDuration("error", time.Since(start))
		return nil, gwErr
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		gwErr := classifyTransportError(err)
		metrics.PushRequestsTotal.WithLabelValues(strings.ToLower(gwErr.Message)).Inc()
		metrics.ObservePushDuration("error", time.Since(start))
		return nil, gwErr
	}

	metrics.PushRequestsTotal.WithLabelValues("completed").Inc()
	metrics.ObservePushDuration("completed", time.Since(start))

	return &Response{
		StatusCode:      resp.StatusCode,
		ContentType:     resp.Header.Get("Content-Type"),
		Body:            data,
		RegistrationIDs: payload.RegistrationIDs,
	}, nil
}

// Dispatch sends the payload, through the circuit breaker when one is
// configured, and normalizes the reply.
func (d *Dispatcher) Dispatch(ctx context.Context, payload Payload) ([]DeviceOutcome, int64, error) {
	var resp *Response
	var err error

	if d.breaker != nil {
		var result interface{}
		result, err = d.breaker.ExecuteWithContext(ctx, func() (interface{}, error) {
			return d.Send(ctx, payload)
		})
		if err == nil {
			resp = result.(*Response)
		}
	} else {
		resp, err = d.Send(ctx, payload)
	}

	if err != nil {
		return nil, 0, err
	}

	return d.Normalize(resp)
}

// Normalize interprets the gateway reply per device. The gateway is known
// to occasionally report validation failures as 200 text/plain bodies of
// the form "...Error=<reason>"; those are requalified as 400 validation
// errors. JSON replies are correlated with the request's registration ids
// by array position.
func (d *Dispatcher) Normalize(resp *Response) ([]DeviceOutcome, int64, error) {
	if resp.StatusCode != http.StatusOK {
		return nil, 0, &GatewayError{
			Message:    string(resp.Body),
			StatusCode: resp.StatusCode,
		}
	}

	switch {
	case strings.Contains(resp.ContentType, constants.ContentTypeText):
		return nil, 0, &GatewayError{
			Message:    extractErrorReason(string(resp.Body)),
			StatusCode: http.StatusBadRequest,
		}
	case strings.Contains(resp.ContentType, constants.ContentTypeJSON):
		return d.normalizeJSON(resp)
	default:
		return nil, 0, &GatewayError{
			Message:    errUnknownContentType,
			StatusCode: http.StatusBadRequest,
		}
	}
}

type gatewayResponse struct {
	MulticastID int64            `json:"multicast_id"`
	Success     *int             `json:"success"`
	Failure     *int             `json:"failure"`
	Results     *[]gatewayResult `json:"results"`
}

type gatewayResult struct {
	MessageID *string `json:"message_id"`
	Error     *string `json:"error"`
}

func (d *Dispatcher) normalizeJSON(resp *Response) ([]DeviceOutcome, int64, error) {
	var parsed gatewayResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, 0, &GatewayError{
			Message:    errInvalidJSONFormat,
			StatusCode: http.StatusBadRequest,
		}
	}

	// A well-formed reply carries failure, success and results.
	if parsed.Failure == nil || parsed.Success == nil || parsed.Results == nil {
		return nil, 0, &GatewayError{
			Message:    errUnknownResponseFormat,
			StatusCode: http.StatusBadRequest,
		}
	}

	results := *parsed.Results
	outcomes := make([]DeviceOutcome, 0, len(results))
	for i, result := range results {
		outcome := DeviceOutcome{}
		if i < len(resp.RegistrationIDs) {
			outcome.RegistrationID = resp.RegistrationIDs[i]
		}

		switch {
		case result.Error != nil:
			outcome.Status = OutcomeError
			outcome.Message = *result.Error
		case result.MessageID != nil:
			outcome.Status = OutcomeSent
			outcome.MessageID = *result.MessageID
		default:
			outcome.Status = OutcomeUnknown
			outcome.Message = errUnknownResponseFormat
		}

		metrics.PushDeviceOutcomesTotal.WithLabelValues(string(outcome.Status)).Inc()
		outcomes = append(outcomes, outcome)
	}

	return outcomes, parsed.MulticastID, nil
}

func classifyTransportError(err error) *GatewayError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &GatewayError{Message: errTimeout, StatusCode: -1}
	}

	message := errRequest
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		message = urlErr.Err.Error()
	}

	return &GatewayError{Message: message, StatusCode: -1}
}

// extractErrorReason pulls the substring after "Error=" out of a plain
// text gateway body.
func extractErrorReason(body string) string {
	if idx := strings.Index(body, "Error="); idx >= 0 {
		return body[idx+len("Error="):]
	}
	return body
}
