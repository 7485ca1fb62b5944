package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"product-importer/models"
)

const userAgent = "product-importer-webhooks/1.0"

// HTTPSender delivers envelopes as JSON POSTs with a bounded timeout.
type HTTPSender struct {
	httpClient *http.Client
}

func NewHTTPSender(timeout time.Duration) *HTTPSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSender{httpClient: &http.Client{Timeout: timeout}}
}

// Send posts envelope to url. Any response is returned with its status code; only
// transport failures produce an error.
func (s *HTTPSender) Send(ctx context.Context, url string, envelope models.WebhookEnvelope) (SendResult, error) {
	body, err := json.Marshal(envelope)
	if err != nil {
		return SendResult{}, fmt.Errorf("marshal webhook envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return SendResult{}, fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Webhook-Event", envelope.Event)

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return SendResult{}, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	return SendResult{StatusCode: resp.StatusCode, Duration: time.Since(start)}, nil
}
