package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/imrishuroy/merchant-orderdesk/internal/orders"
	"github.com/imrishuroy/merchant-orderdesk/internal/session"
)

// DefaultTimeout bounds every request when no http.Client is supplied.
const DefaultTimeout = 15 * time.Second

// maxErrorBody caps how much of a failed response is kept in StatusError.
const maxErrorBody = 512

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.URL, e.Code, e.Body)
}

// ErrOrderNotFound is returned when the API reports 404 on a status update.
var ErrOrderNotFound = errors.New("order not found")

// Client talks to the merchant REST API.
type Client struct {
	baseURL    string
	session    session.Provider
	httpClient *http.Client
	tracer     trace.Tracer
	vocabulary orders.Vocabulary
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithVocabulary selects the status spelling sent on updates.
func WithVocabulary(v orders.Vocabulary) Option {
	return func(cl *Client) { cl.vocabulary = v }
}

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(cl *Client) { cl.tracer = t }
}

// New returns a Client for baseURL. Requests carry the session user's token.
func New(baseURL string, sess session.Provider, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		session: sess,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
			},
		},
		tracer:     otel.Tracer("orderdesk/restapi"),
		vocabulary: orders.VocabularyCanonical,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetMerchantOrders returns every order of the authenticated merchant.
func (c *Client) GetMerchantOrders(ctx context.Context, merchantID string) ([]orders.Order, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/orders/merchant/"+url.PathEscape(merchantID), nil)
	if err != nil {
		return nil, err
	}
	list, err := orders.DecodeOrders(body)
	if err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	return list, nil
}

type statusUpdate struct {
	Status string `json:"status"`
}

// UpdateOrderStatus persists a status transition.
func (c *Client) UpdateOrderStatus(ctx context.Context, orderID string, status orders.Status) error {
	payload, err := json.Marshal(statusUpdate{Status: c.vocabulary.Encode(status)})
	if err != nil {
		return fmt.Errorf("marshal status update: %w", err)
	}
	_, err = c.do(ctx, http.MethodPut, "/api/orders/"+url.PathEscape(orderID)+"/status", payload)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return fmt.Errorf("%w: %w", ErrOrderNotFound, err)
	}
	return err
}

// GetProductsByMerchant returns the merchant's products.
func (c *Client) GetProductsByMerchant(ctx context.Context, merchantID string) ([]orders.Product, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/products/merchant/"+url.PathEscape(merchantID), nil)
	if err != nil {
		return nil, err
	}
	list, err := orders.DecodeProducts(body)
	if err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	return list, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	user, err := c.session.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}

	target := c.baseURL + path
	ctx, span := c.tracer.Start(ctx, method+" "+path, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("http.url", target),
	)

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+user.Token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(body)
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		se := &StatusError{Method: method, URL: target, Code: resp.StatusCode, Body: snippet}
		span.RecordError(se)
		span.SetStatus(codes.Error, se.Error())
		return nil, se
	}
	return body, nil
}
