package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

const (
	// DefaultGraphQLURL is GitHub's public GraphQL endpoint.
	DefaultGraphQLURL = "https://api.github.com/graphql"
	// DefaultTimeout bounds one GraphQL round trip.
	DefaultTimeout = 20 * time.Second

	maxResponseBytes = 4 << 20
)

// Payload is a decoded GraphQL response envelope
type Payload struct {
	Data   json.RawMessage
	Errors []GraphQLError
	// Quota headers, zero when absent.
	Remaining    int
	HasRemaining bool
	ResetAt      time.Time
}

// Transport executes one GraphQL query with the given token. Failures are
// returned already classified.
type Transport interface {
	Execute(ctx context.Context, token, query string) (*Payload, error)
}

// HTTPTransport posts GraphQL queries over HTTPS with a bearer token
type HTTPTransport struct {
	endpoint   string
	timeout    time.Duration
	base       http.RoundTripper
	classifier *Classifier

	mu      sync.Mutex
	clients map[string]*http.Client
}

// NewHTTPTransport creates a transport for endpoint. timeout <= 0 uses DefaultTimeout.
func NewHTTPTransport(endpoint string, timeout time.Duration, classifier *Classifier) *HTTPTransport {
	if endpoint == "" {
		endpoint = DefaultGraphQLURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPTransport{
		endpoint:   endpoint,
		timeout:    timeout,
		base:       newBaseTransport(timeout),
		classifier: classifier,
		clients:    make(map[string]*http.Client),
	}
}

func newBaseTransport(timeout time.Duration) *http.Transport {
	dialer := &net.Dialer{Timeout: timeout / 2, KeepAlive: 30 * time.Second}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
	}
}

// clientFor returns the cached oauth2 client for token.
func (t *HTTPTransport) clientFor(token string) *http.Client {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.clients[token]; ok {
		return c
	}
	c := &http.Client{
		Timeout: t.timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   t.base,
		},
	}
	t.clients[token] = c
	return c
}

// Execute implements Transport.
func (t *HTTPTransport) Execute(ctx context.Context, token, query string) (*Payload, error) {
	if token == "" {
		return nil, &APIError{Kind: KindClientError, Message: "access token required"}
	}

	body, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, fmt.Errorf("encode graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build graphql request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := t.clientFor(token).Do(req)
	if err != nil {
		return nil, t.classifier.ClassifyTransport(err)
	}
	defer resp.Body.Close()

	if classified := t.classifier.ClassifyStatus(resp.StatusCode, resp.Header); classified != nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, classified
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, t.classifier.ClassifyTransport(err)
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []GraphQLError  `json:"errors"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, t.classifier.ClassifyDecode("malformed graphql response", err)
	}

	payload := &Payload{Data: envelope.Data, Errors: envelope.Errors}
	if v := resp.Header.Get("X-RateLimit-Remaining"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			payload.Remaining = n
			payload.HasRemaining = true
		}
	}
	if v := resp.Header.Get("X-RateLimit-Reset"); v != "" {
		if epoch, err := strconv.ParseInt(v, 10, 64); err == nil {
			payload.ResetAt = time.Unix(epoch, 0)
		}
	}
	return payload, nil
}
