// API service for the analysis backend
package services

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

	"github.com/charmbracelet/log"
	"github.com/desertthunder/vqa/internal/shared"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const (
	DefaultBaseURL = "http://localhost:8000"
	DefaultTimeout = 30 * time.Second

	RequestIDHeader = "X-Request-ID"
)

// CredentialSource supplies the bearer credential attached to outgoing requests.
//
// Token returns nil when no session is active.
type CredentialSource interface {
	Token() *oauth2.Token
}

// APIService makes requests to the analysis backend. When built with [WithCredentials] every
// request carries exactly one Authorization header derived from the current credential.
type APIService struct {
	baseURL    string
	httpClient *http.Client
	anonymous  *http.Client
	timeout    time.Duration
	logger     *log.Logger
}

// Option configures an [APIService].
type Option func(*APIService)

// WithCredentials attaches the bearer credential from src to every request.
func WithCredentials(src CredentialSource) Option {
	return func(a *APIService) {
		base := a.httpClient.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		client := *a.httpClient
		client.Transport = &bearerTransport{base: base, source: src}
		a.httpClient = &client
	}
}

// WithTimeout bounds every request. Zero disables the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(a *APIService) { a.timeout = d }
}

// WithLogger logs each request at debug level.
func WithLogger(l *log.Logger) Option {
	return func(a *APIService) { a.logger = l }
}

// NewAPIService creates a new API service instance for the analysis backend.
func NewAPIService(baseURL string, client *http.Client, opts ...Option) *APIService {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}

	a := &APIService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
		anonymous:  client,
		timeout:    DefaultTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// BaseURL returns the backend root without a trailing slash.
func (a *APIService) BaseURL() string {
	return a.baseURL
}

// APIResponse represents a raw API response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	IsJSON     bool
	JSONData   any
}

// OK reports whether the response has a 2xx status.
func (r *APIResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Get performs a GET request to the specified path and returns the raw response.
func (a *APIService) Get(ctx context.Context, path string) (*APIResponse, error) {
	return a.send(ctx, http.MethodGet, path, nil)
}

// Post performs a POST request with the given JSON data and returns the raw response.
func (a *APIService) Post(ctx context.Context, path string, data []byte) (*APIResponse, error) {
	return a.send(ctx, http.MethodPost, path, data)
}

// Put performs a PUT request with the given JSON data and returns the raw response.
func (a *APIService) Put(ctx context.Context, path string, data []byte) (*APIResponse, error) {
	return a.send(ctx, http.MethodPut, path, data)
}

// Delete performs a DELETE request and returns the raw response.
func (a *APIService) Delete(ctx context.Context, path string) (*APIResponse, error) {
	return a.send(ctx, http.MethodDelete, path, nil)
}

func (a *APIService) send(ctx context.Context, method, path string, data []byte) (*APIResponse, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	var body io.Reader
	if data != nil {
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, uuid.NewString())

	start := time.Now()
	resp, err := a.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s %s", shared.ErrTimeout, method, path)
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if a.logger != nil {
		a.logger.Debug("api request", "method", method, "path", path, "status", resp.StatusCode,
			"duration", time.Since(start), "request_id", req.Header.Get(RequestIDHeader))
	}

	apiResp := &APIResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       raw,
	}

	var jsonData any
	if err := json.Unmarshal(raw, &jsonData); err == nil {
		apiResp.IsJSON = true
		apiResp.JSONData = jsonData
	}

	return apiResp, nil
}

// do sends in as JSON, turns non-2xx statuses into [*APIError] and decodes the body into out.
func (a *APIService) do(ctx context.Context, method, path string, in, out any) error {
	var data []byte
	if in != nil {
		var err error
		if data, err = json.Marshal(in); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	resp, err := a.send(ctx, method, path, data)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return newAPIError(method, path, resp)
	}

	if out != nil && len(bytes.TrimSpace(resp.Body)) > 0 {
		if raw, ok := out.(*[]byte); ok {
			*raw = resp.Body
			return nil
		}
		if err := json.Unmarshal(resp.Body, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// GetJSON performs a GET request and decodes a 2xx JSON body into out.
func (a *APIService) GetJSON(ctx context.Context, path string, out any) error {
	return a.do(ctx, http.MethodGet, path, nil, out)
}

// PostJSON encodes in, performs a POST request and decodes a 2xx JSON body into out.
func (a *APIService) PostJSON(ctx context.Context, path string, in, out any) error {
	return a.do(ctx, http.MethodPost, path, in, out)
}

// PutJSON encodes in, performs a PUT request and decodes a 2xx JSON body into out.
func (a *APIService) PutJSON(ctx context.Context, path string, in, out any) error {
	return a.do(ctx, http.MethodPut, path, in, out)
}

// DeleteJSON performs a DELETE request, failing on non-2xx statuses.
func (a *APIService) DeleteJSON(ctx context.Context, path string) error {
	return a.do(ctx, http.MethodDelete, path, nil, nil)
}

// PasswordToken exchanges username and password for an access token at POST /token using the
// form-encoded resource-owner password grant. The request never carries an existing credential.
//
// Rejections are returned as [*APIError]; a malformed token response wraps [shared.ErrAuthFailed].
func (a *APIService) PasswordToken(ctx context.Context, username, password string) (*oauth2.Token, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	conf := oauth2.Config{
		Endpoint: oauth2.Endpoint{
			TokenURL:  a.baseURL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.anonymous)

	tok, err := conf.PasswordCredentialsToken(ctx, username, password)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			return nil, &APIError{
				Method:     http.MethodPost,
				Path:       "/token",
				StatusCode: re.Response.StatusCode,
				Detail:     ErrorDetail(re.Body),
				Body:       re.Body,
			}
		}
		var ue *url.Error
		if errors.As(err, &ue) {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		return nil, fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}
	return tok, nil
}
