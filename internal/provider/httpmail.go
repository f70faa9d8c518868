package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultMailTimeout = 10 * time.Second

type mailRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// HTTPMailer delivers reminder emails through an HTTP mail API (Mailgun,
// SendGrid-style JSON POST). The endpoint and sender identity come from
// config; retries are the queue's job, so the client never retries itself.
type HTTPMailer struct {
	client   *resty.Client
	endpoint string
	from     string
}

var _ Mailer = (*HTTPMailer)(nil)

func NewHTTPMailer(endpoint, from string, timeout time.Duration) (*HTTPMailer, error) {
	client := resty.New()
	if timeout <= 0 {
		timeout = defaultMailTimeout
	}
	client.SetTimeout(timeout)
	client.SetRetryCount(0)

	return NewHTTPMailerWithClient(endpoint, from, client)
}

func NewHTTPMailerWithClient(endpoint, from string, client *resty.Client) (*HTTPMailer, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("mail endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid mail endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultMailTimeout)
	}
	client.SetRetryCount(0)

	if strings.TrimSpace(from) == "" {
		from = `"Habits for Good" <noreply@habitsforgood.org>`
	}

	return &HTTPMailer{
		client:   client,
		endpoint: trimmedEndpoint,
		from:     from,
	}, nil
}

func (p *HTTPMailer) Deliver(ctx context.Context, msg Message) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("mailer is not initialized")
	}
	if strings.TrimSpace(msg.To) == "" {
		return &DeliveryError{Message: "recipient address is required", Transient: false}
	}

	reqBody := mailRequest{
		From:    p.from,
		To:      msg.To,
		Subject: msg.Subject,
		HTML:    msg.HTML,
	}

	response, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(reqBody).
		Post(p.endpoint)
	if err != nil {
		return &DeliveryError{
			Message:   "mail request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return &DeliveryError{
			Message:   "mail provider returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return nil
	}

	responseBody := strings.TrimSpace(response.String())
	return &DeliveryError{
		StatusCode: statusCode,
		Message:    deliveryErrorMessage(statusCode, responseBody),
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func deliveryErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("mail provider returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}
