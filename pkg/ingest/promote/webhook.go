package promote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cenk/backoff"
	"github.com/rs/dnscache"
	circuit "github.com/rubyist/circuitbreaker"
	"github.com/tendant/simple-repository/pkg/ingest"
)

// ErrWebhookDown is returned while the webhook circuit is open
var ErrWebhookDown = errors.New("promotion webhook unavailable")

// WebhookPromoter POSTs each task as JSON to a URL. Consecutive failures
// trip a circuit breaker so a dead endpoint is not hammered by retries.
type WebhookPromoter struct {
	url      string
	client   *http.Client
	resolver *dnscache.Resolver
	breaker  *circuit.Breaker
	token    string
}

// WebhookOption configures a WebhookPromoter
type WebhookOption func(*WebhookPromoter)

// WithHTTPClient replaces the DNS-caching default client
func WithHTTPClient(c *http.Client) WebhookOption {
	return func(p *WebhookPromoter) {
		p.client = c
	}
}

// WithBearerToken sends an Authorization header with each request
func WithBearerToken(token string) WebhookOption {
	return func(p *WebhookPromoter) {
		p.token = token
	}
}

// WithTripThreshold sets how many consecutive failures open the circuit
func WithTripThreshold(n int64) WebhookOption {
	return func(p *WebhookPromoter) {
		p.breaker = newBreaker(n)
	}
}

// NewWebhookPromoter creates a promoter posting to url
func NewWebhookPromoter(url string, opts ...WebhookOption) *WebhookPromoter {
	p := &WebhookPromoter{
		url:      url,
		resolver: &dnscache.Resolver{},
		breaker:  newBreaker(5),
	}
	p.client = &http.Client{
		Timeout:   30 * time.Second,
		Transport: p.transport(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func newBreaker(threshold int64) *circuit.Breaker {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Second
	b.MaxInterval = 2 * time.Minute
	b.Multiplier = 2.0
	b.Reset()

	return circuit.NewBreakerWithOptions(&circuit.Options{
		BackOff:    b,
		ShouldTrip: circuit.ThresholdTripFunc(threshold),
	})
}

func (p *WebhookPromoter) transport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			ips, err := p.resolver.LookupHost(ctx, host)
			if err != nil {
				return nil, err
			}
			for _, ip := range ips {
				conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
				if err == nil {
					return conn, nil
				}
			}
			return nil, fmt.Errorf("failed to dial any resolved IP for %s", host)
		},
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

// RefreshDNS refreshes the resolver cache every interval until ctx is done
func (p *WebhookPromoter) RefreshDNS(ctx context.Context, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.resolver.Refresh(true)
		}
	}
}

// Promote implements Promoter
func (p *WebhookPromoter) Promote(ctx context.Context, task ingest.PromotionTask) error {
	if !p.breaker.Ready() {
		return ErrWebhookDown
	}

	var sendErr error
	err := p.breaker.Call(func() error {
		sendErr = p.send(ctx, task)
		if IsPermanent(sendErr) {
			// the endpoint answered; do not count this against it
			return nil
		}
		return sendErr
	}, 0)
	if err != nil {
		if errors.Is(err, circuit.ErrBreakerOpen) {
			return ErrWebhookDown
		}
		return err
	}
	return sendErr
}

func (p *WebhookPromoter) send(ctx context.Context, task ingest.PromotionTask) error {
	body, err := json.Marshal(task)
	if err != nil {
		return Permanent(fmt.Errorf("encode task: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return Permanent(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting task: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("webhook returned %s", resp.Status)
	default:
		return Permanent(fmt.Errorf("webhook rejected task: %s", resp.Status))
	}
}
