// Package judicial talks to the public case-tracking API of the judiciary.
package judicial

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/JakeFAU/causas-crawler/internal/metrics"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Endpoint names, used for errors, metrics and payload archiving.
const (
	EndpointCountCases = "contarCausas"
	EndpointSearch     = "buscarCausas"
	EndpointMovements  = "getIncidenteJudicatura"
	EndpointActions    = "actuacionesJudiciales"
)

const (
	// DefaultBaseURL serves case search and actions.
	DefaultBaseURL = "https://api.funcionjudicial.gob.ec/EXPEL-CONSULTA-CAUSAS-SERVICE/api/consulta-causas/informacion/"
	// DefaultMovementsBaseURL serves the movements (incidents by court) lookup.
	DefaultMovementsBaseURL = "https://api.funcionjudicial.gob.ec/EXPEL-CONSULTA-CAUSAS-CLEX-SERVICE/api/consulta-causas-clex/informacion/"

	defaultRecaptcha = "verdad"
)

// DefaultHeaders mimics the browser client of the public portal. Accept-Encoding
// is left to the transport so responses are decompressed transparently.
func DefaultHeaders() map[string]string {
	return map[string]string{
		"User-Agent":      "Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:127.0) Gecko/20100101 Firefox/127.0",
		"Accept":          "application/json, text/plain, */*",
		"Accept-Language": "en-US,en;q=0.5",
		"Content-Type":    "application/json",
		"Connection":      "keep-alive",
		"Sec-Fetch-Dest":  "empty",
		"Sec-Fetch-Mode":  "cors",
		"Sec-Fetch-Site":  "same-site",
		"Pragma":          "no-cache",
		"Cache-Control":   "no-cache",
		"Origin":          "https://procesosjudiciales.funcionjudicial.gob.ec",
		"Referer":         "https://procesosjudiciales.funcionjudicial.gob.ec/",
	}
}

// Config tunes the client.
type Config struct {
	BaseURL          string
	MovementsBaseURL string
	Timeout          time.Duration
	Headers          map[string]string
}

// DefaultConfig returns the production endpoints and headers.
func DefaultConfig() Config {
	return Config{
		BaseURL:          DefaultBaseURL,
		MovementsBaseURL: DefaultMovementsBaseURL,
		Timeout:          30 * time.Second,
		Headers:          DefaultHeaders(),
	}
}

// PayloadRecorder receives every successful raw response body.
type PayloadRecorder interface {
	RecordPayload(ctx context.Context, endpoint, key string, body []byte)
}

// Limiter throttles outgoing requests.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Option customizes a Client.
type Option func(*Client)

// WithRecorder archives raw payloads.
func WithRecorder(r PayloadRecorder) Option {
	return func(c *Client) {
		c.recorder = r
	}
}

// WithLimiter throttles requests through l.
func WithLimiter(l Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

// WithTransport overrides the round tripper used by new sessions.
func WithTransport(newTransport func() http.RoundTripper) Option {
	return func(c *Client) {
		c.newTransport = newTransport
	}
}

// Client holds the configuration shared by sessions. It is safe for
// concurrent use; the HTTP connections live in Sessions.
type Client struct {
	cfg          Config
	headers      http.Header
	validate     *validator.Validate
	recorder     PayloadRecorder
	limiter      Limiter
	newTransport func() http.RoundTripper
	logger       *zap.Logger
}

// New builds a Client. Zero fields of cfg fall back to DefaultConfig.
func New(cfg Config, logger *zap.Logger, opts ...Option) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.MovementsBaseURL == "" {
		cfg.MovementsBaseURL = def.MovementsBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if len(cfg.Headers) == 0 {
		cfg.Headers = def.Headers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	headers := make(http.Header, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers.Set(k, v)
	}
	c := &Client{
		cfg:      cfg,
		headers:  headers,
		validate: newValidator(),
		logger:   logger.Named("judicial"),
		newTransport: func() http.RoundTripper {
			return http.DefaultTransport.(*http.Transport).Clone()
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open starts a session with its own connection pool. The caller must Close it.
func (c *Client) Open(ctx context.Context) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("open judicial session: %w", err)
	}
	transport := c.newTransport()
	return &Session{
		client:    c,
		transport: transport,
		http: &http.Client{
			Transport: transport,
			Timeout:   c.cfg.Timeout,
		},
	}, nil
}

// Session is a scoped connection to the service.
type Session struct {
	client    *Client
	transport http.RoundTripper
	http      *http.Client
	closed    atomic.Bool
}

// Close releases pooled connections. It is idempotent.
func (s *Session) Close() {
	if s.closed.Swap(true) {
		return
	}
	if t, ok := s.transport.(interface{ CloseIdleConnections() }); ok {
		t.CloseIdleConnections()
	}
}

// CountCases returns how many cases match criteria.
func (s *Session) CountCases(ctx context.Context, criteria SearchCriteria) (int, error) {
	criteria = withDefaults(criteria)
	body, err := s.do(ctx, EndpointCountCases, http.MethodPost, s.client.cfg.BaseURL+EndpointCountCases, criteriaKey(criteria), criteria)
	if err != nil {
		return 0, err
	}
	total, err := strconv.Atoi(strings.TrimSpace(string(body)))
	if err != nil {
		return 0, &ValidationError{Endpoint: EndpointCountCases, Err: err}
	}
	if total < 0 {
		return 0, &ValidationError{Endpoint: EndpointCountCases, Err: fmt.Errorf("negative count %d", total)}
	}
	return total, nil
}

// SearchCases returns every case matching criteria, sizing a single page
// with CountCases.
func (s *Session) SearchCases(ctx context.Context, criteria SearchCriteria) ([]CaseSummary, error) {
	criteria = withDefaults(criteria)
	total, err := s.CountCases(ctx, criteria)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return []CaseSummary{}, nil
	}
	query := url.Values{}
	query.Set("page", "1")
	query.Set("size", strconv.Itoa(total))
	target := s.client.cfg.BaseURL + EndpointSearch + "?" + query.Encode()
	body, err := s.do(ctx, EndpointSearch, http.MethodPost, target, criteriaKey(criteria), searchRequest{
		SearchCriteria: criteria,
		Page:           1,
		Size:           total,
	})
	if err != nil {
		return nil, err
	}
	return decodeList[CaseSummary](s.client.validate, EndpointSearch, body)
}

// GetMovements returns the per-court movements of a case.
func (s *Session) GetMovements(ctx context.Context, caseID string) ([]MovementDetail, error) {
	target := s.client.cfg.MovementsBaseURL + EndpointMovements + "/" + url.PathEscape(caseID)
	body, err := s.do(ctx, EndpointMovements, http.MethodGet, target, caseID, nil)
	if err != nil {
		return nil, err
	}
	return decodeList[MovementDetail](s.client.validate, EndpointMovements, body)
}

// GetActions returns the docket entries of one incident.
func (s *Session) GetActions(ctx context.Context, req ActionRequest) ([]ActionRecord, error) {
	if req.Application == "" {
		req.Application = "web"
	}
	key := fmt.Sprintf("%s-%d", req.CaseID, req.IncidentCourtID)
	body, err := s.do(ctx, EndpointActions, http.MethodPost, s.client.cfg.BaseURL+EndpointActions, key, req)
	if err != nil {
		return nil, err
	}
	return decodeList[ActionRecord](s.client.validate, EndpointActions, body)
}

func (s *Session) do(ctx context.Context, endpoint, method, target, key string, payload any) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrSessionClosed
	}
	c := s.client
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, target); err != nil {
			return nil, fmt.Errorf("%s: %w", endpoint, err)
		}
	}
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s request: %w", endpoint, err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header = c.headers.Clone()

	start := time.Now()
	resp, err := s.http.Do(req)
	if err != nil {
		metrics.ObserveUpstreamRequest(endpoint, 0, time.Since(start))
		return nil, &RemoteServiceError{Endpoint: endpoint, Err: err}
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("close response body", zap.String("endpoint", endpoint), zap.Error(cerr))
		}
	}()
	body, readErr := io.ReadAll(resp.Body)
	metrics.ObserveUpstreamRequest(endpoint, resp.StatusCode, time.Since(start))

	if resp.StatusCode >= http.StatusBadRequest {
		c.logger.Debug("upstream error status",
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode),
			zap.String("key", key),
		)
		return nil, &RemoteServiceError{
			Endpoint: endpoint,
			Status:   resp.StatusCode,
			Reason:   reason(resp),
		}
	}
	if readErr != nil {
		return nil, &RemoteServiceError{Endpoint: endpoint, Err: readErr}
	}
	if c.recorder != nil {
		c.recorder.RecordPayload(ctx, endpoint, key, body)
	}
	return body, nil
}

func reason(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}

func withDefaults(criteria SearchCriteria) SearchCriteria {
	if criteria.Recaptcha == "" {
		criteria.Recaptcha = defaultRecaptcha
	}
	return criteria
}

func criteriaKey(criteria SearchCriteria) string {
	switch {
	case criteria.Plaintiff.NationalID != "":
		return criteria.Plaintiff.NationalID
	case criteria.Defendant.NationalID != "":
		return criteria.Defendant.NationalID
	case criteria.CaseNumber != "":
		return criteria.CaseNumber
	default:
		return "query"
	}
}
