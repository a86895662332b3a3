package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/backend-grocer/internal/common"
	"github.com/noah-isme/backend-grocer/internal/resilience"
)

// HTTPMailer posts emails as JSON to a transactional mail relay.
type HTTPMailer struct {
	Endpoint string
	APIKey   string
	Client   *http.Client
	// Breaker short-circuits sends while the relay is failing. Optional.
	Breaker *resilience.Breaker
}

// NewHTTPMailer returns a mailer with a traced client and a relay breaker.
func NewHTTPMailer(endpoint, apiKey string, timeout time.Duration) *HTTPMailer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPMailer{
		Endpoint: endpoint,
		APIKey:   apiKey,
		Client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		Breaker: resilience.NewBreaker(resilience.BreakerConfig{
			Target:       "mail-relay",
			MinRequests:  5,
			FailureRatio: 0.5,
			OpenFor:      30 * time.Second,
		}),
	}
}

type mailRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Send implements common.EmailSender.
func (m *HTTPMailer) Send(ctx context.Context, msg common.Email) error {
	if m.Breaker == nil {
		return m.send(ctx, msg)
	}
	return m.Breaker.Do(ctx, func(ctx context.Context) error {
		return m.send(ctx, msg)
	})
}

func (m *HTTPMailer) send(ctx context.Context, msg common.Email) error {
	body, err := json.Marshal(mailRequest{From: msg.From, To: msg.To, Subject: msg.Subject, HTML: msg.HTML})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if m.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.APIKey)
	}
	client := m.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("mail relay: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("mail relay: unexpected status %d", resp.StatusCode)
	}
	return nil
}
