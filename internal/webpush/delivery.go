package webpush

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/and161185/goph-push/internal/model"
)

// Request header values required by RFC 8291 and RFC 8030.
const (
	ContentEncoding = "aes128gcm"
	ContentType     = "application/octet-stream"

	DefaultTTL     = 86400
	DefaultUrgency = "normal"
	DefaultTimeout = 30 * time.Second

	maxErrBody   = 512
	maxDrainBody = 64 << 10
)

// Client posts encrypted messages to push services. It makes exactly one
// attempt per call; retry policy belongs to the caller.
type Client struct {
	hc      *http.Client
	ttl     int
	urgency string
}

// NewClient returns a delivery client. A nil hc gets a client with DefaultTimeout,
// a negative ttl means DefaultTTL and an empty urgency means DefaultUrgency.
func NewClient(hc *http.Client, ttl int, urgency string) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: DefaultTimeout}
	}
	if ttl < 0 {
		ttl = DefaultTTL
	}
	if urgency == "" {
		urgency = DefaultUrgency
	}
	return &Client{hc: hc, ttl: ttl, urgency: urgency}
}

// Deliver POSTs body to the subscription endpoint and classifies the response.
func (c *Client) Deliver(ctx context.Context, sub model.PushSubscription, body []byte, authHeader string) model.DeliveryResult {
	res := model.DeliveryResult{Endpoint: sub.Endpoint, Outcome: model.OutcomeTransient}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.Endpoint, bytes.NewReader(body))
	if err != nil {
		res.Err = fmt.Errorf("build request: %w", err)
		return res
	}
	req.Header.Set("Authorization", authHeader)
	req.Header.Set("Content-Encoding", ContentEncoding)
	req.Header.Set("Content-Type", ContentType)
	req.Header.Set("TTL", strconv.Itoa(c.ttl))
	req.Header.Set("Urgency", c.urgency)

	resp, err := c.hc.Do(req)
	if err != nil {
		res.Err = err
		return res
	}
	defer resp.Body.Close()

	res.StatusCode = resp.StatusCode
	res.Outcome = Classify(resp.StatusCode)
	if res.Outcome != model.OutcomeDelivered {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
		res.Err = fmt.Errorf("push service: status=%d, body=%s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	// drain so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBody))
	return res
}

// Classify maps a push service status code to a delivery outcome.
func Classify(status int) model.Outcome {
	switch {
	case status >= 200 && status < 300:
		return model.OutcomeDelivered
	case status == http.StatusNotFound || status == http.StatusGone:
		return model.OutcomeGone
	default:
		return model.OutcomeTransient
	}
}
