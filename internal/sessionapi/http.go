package sessionapi

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

	"github.com/felixgeelhaar/intervue/internal/auth"
)

// HTTPClient talks to the daemon over HTTP.
type HTTPClient struct {
	baseURL    string
	cred       auth.Credential
	httpClient *http.Client
}

// NewHTTPClient creates a client for baseURL, e.g. http://127.0.0.1:7437.
func NewHTTPClient(baseURL string, cred auth.Credential) *HTTPClient {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
		IdleConnTimeout:     90 * time.Second,
		MaxIdleConnsPerHost: 4,
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		cred:    cred,
		// Requests are bounded by the caller's context, not a client timeout.
		httpClient: &http.Client{Transport: transport},
	}
}

func (c *HTTPClient) Start(ctx context.Context, req StartRequest) (*StartResponse, error) {
	var out StartResponse
	if err := c.do(ctx, http.MethodPost, "/v1/interviews", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Reply(ctx context.Context, sessionID, text string) (*ReplyResponse, error) {
	var out ReplyResponse
	path := "/v1/interviews/" + url.PathEscape(sessionID) + "/reply"
	if err := c.do(ctx, http.MethodPost, path, ReplyRequest{Text: text}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) End(ctx context.Context, sessionID string) error {
	var out EndResponse
	path := "/v1/interviews/" + url.PathEscape(sessionID) + "/end"
	return c.do(ctx, http.MethodPost, path, nil, &out)
}

// Transcript fetches the stored conversation of an interview.
func (c *HTTPClient) Transcript(ctx context.Context, sessionID string) (*TranscriptResponse, error) {
	var out TranscriptResponse
	path := "/v1/interviews/" + url.PathEscape(sessionID) + "/transcript"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Limits(ctx context.Context) (*Limits, error) {
	var out Limits
	if err := c.do(ctx, http.MethodGet, "/v1/interviews/limits", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) ResetQuota(ctx context.Context) (*Limits, error) {
	var out Limits
	if err := c.do(ctx, http.MethodPost, "/v1/interviews/reset-quota", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	token, err := c.cred.Token()
	if err != nil {
		return fmt.Errorf("load credential: %w", err)
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var er ErrorResponse
	if err := json.Unmarshal(data, &er); err != nil || er.Error == "" {
		er = ErrorResponse{Error: strings.TrimSpace(string(data)), Status: resp.StatusCode}
	}

	apiErr := &APIError{
		Status:  resp.StatusCode,
		Code:    er.Code,
		Message: er.Error,
	}
	apiErr.err = classify(resp.StatusCode, er.Code)
	return apiErr
}

// classify maps a response onto a sentinel, preferring the explicit code.
func classify(status int, code string) error {
	switch code {
	case CodeQuotaExceeded:
		return ErrQuotaExceeded
	case CodeResumeMissing:
		return ErrResumeMissing
	case CodeSessionInvalid:
		return ErrSessionInvalid
	case CodeAuthExpired, CodeUnauthorized:
		return auth.ErrAuthExpired
	case CodeBadRequest:
		return ErrBadRequest
	}

	switch {
	case status == http.StatusUnauthorized:
		return auth.ErrAuthExpired
	case status == http.StatusTooManyRequests:
		return ErrQuotaExceeded
	case status == http.StatusNotFound, status == http.StatusGone:
		return ErrSessionInvalid
	case status >= 500:
		return ErrUnavailable
	default:
		return ErrBadRequest
	}
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, ErrUnavailable)
}
